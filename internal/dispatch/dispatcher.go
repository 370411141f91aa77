// Package dispatch decides, for every inbound message, whether it ends the
// session, runs a ledger command or goes to the conversational fallback.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/NgigiN/ledgerbot/internal/chat"
	"github.com/NgigiN/ledgerbot/internal/classifier"
	"github.com/NgigiN/ledgerbot/internal/command"
	"github.com/NgigiN/ledgerbot/internal/events"
	"github.com/NgigiN/ledgerbot/internal/ledger"
	"github.com/NgigiN/ledgerbot/internal/memory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTerminationToken ends a session when sent as a whole message.
const DefaultTerminationToken = "/end"

type State int

const (
	Idle State = iota
	Classifying
	Executing
	Conversing
	Terminated
)

func (s State) String() string {
	switch s {
	case Classifying:
		return "classifying"
	case Executing:
		return "executing"
	case Conversing:
		return "conversing"
	case Terminated:
		return "terminated"
	}
	return "idle"
}

type Classifier interface {
	Classify(ctx context.Context, text string) (classifier.Result, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Journal persists recorded turns.
type Journal interface {
	AppendTurn(ctx context.Context, chatID string, t memory.Turn) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.LedgerEvent) error
}

type Config struct {
	TerminationToken string
	// LedgerPath is rewritten after every ledger mutation. Empty disables saving.
	LedgerPath string
}

// quickReplies are offered after an unknown command.
var quickReplies = []string{"/balance", "/summary", "/recent 5"}

// Dispatcher owns the ledger and memory of one session and processes
// messages strictly one at a time. It is not safe for concurrent use.
type Dispatcher struct {
	cfg        Config
	ledger     *ledger.Ledger
	memory     *memory.Memory
	classifier Classifier
	completer  Completer
	sender     chat.Sender
	journal    Journal
	publisher  Publisher
	logger     *zap.Logger
	session    string
	state      State
}

type Option func(*Dispatcher)

// WithLedger hands an already loaded ledger to the session.
func WithLedger(l *ledger.Ledger) Option {
	return func(d *Dispatcher) { d.ledger = l }
}

// WithMemory hands restored conversation memory to the session.
func WithMemory(m *memory.Memory) Option {
	return func(d *Dispatcher) { d.memory = m }
}

func WithJournal(j Journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func New(cfg Config, cl Classifier, completer Completer, sender chat.Sender, opts ...Option) *Dispatcher {
	if cfg.TerminationToken == "" {
		cfg.TerminationToken = DefaultTerminationToken
	}
	d := &Dispatcher{
		cfg:        cfg,
		classifier: cl,
		completer:  completer,
		sender:     sender,
		session:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.ledger == nil {
		d.ledger = ledger.New()
	}
	if d.memory == nil {
		d.memory = memory.New()
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	d.logger = d.logger.With(zap.String("session", d.session))
	return d
}

func (d *Dispatcher) State() State {
	return d.state
}

func (d *Dispatcher) Session() string {
	return d.session
}

// Run handles messages from rx until the session terminates, the receiver
// is exhausted or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, rx chat.Receiver) error {
	d.logger.Info("Session started")
	for d.state != Terminated {
		msg, err := rx.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				d.logger.Info("Session stopped", zap.NamedError("reason", err))
				return nil
			}
			return fmt.Errorf("failed to receive message: %w", err)
		}
		d.Handle(ctx, msg)
	}
	d.logger.Info("Session terminated")
	return nil
}

// Handle fully dispatches one message and returns the resulting state,
// either Idle or Terminated.
func (d *Dispatcher) Handle(ctx context.Context, msg chat.Message) State {
	if d.state == Terminated {
		return d.state
	}
	text := strings.TrimSpace(msg.Text)
	if text == d.cfg.TerminationToken {
		d.logger.Info("Termination token received", zap.String("chat", msg.ChatID))
		d.state = Terminated
		return d.state
	}

	if command.IsCommand(text) {
		d.execute(ctx, msg.ChatID, text, text)
		return d.idle()
	}

	d.state = Classifying
	res, err := d.classifier.Classify(ctx, text)
	if err != nil {
		d.logger.Warn("Classifier failed, falling back to conversation", zap.Error(err))
		res = classifier.NoCommandResult()
	}

	switch res.Kind {
	case classifier.Terminate:
		d.logger.Info("Classifier requested termination", zap.String("chat", msg.ChatID))
		d.state = Terminated
		return d.state
	case classifier.Command:
		d.execute(ctx, msg.ChatID, text, res.Command)
	default:
		d.converse(ctx, msg.ChatID, text)
	}
	return d.idle()
}

func (d *Dispatcher) idle() State {
	d.state = Idle
	return d.state
}

func (d *Dispatcher) execute(ctx context.Context, chatID, text, cmd string) {
	d.state = Executing
	res := command.Execute(d.ledger, cmd)
	d.logger.Info("Executed command",
		zap.String("command", cmd),
		zap.String("effect", res.Effect.String()))

	if res.Effect != command.EffectNone {
		d.persist(ctx, res)
	}

	var err error
	if res.Unknown {
		err = d.sender.SendWithOptions(ctx, chatID, res.Reply, quickReplies)
	} else {
		err = d.sender.Send(ctx, chatID, res.Reply)
	}
	if err != nil {
		d.logger.Error("Failed to deliver reply", zap.String("chat", chatID), zap.Error(err))
	}

	d.record(ctx, chatID, d.memory.AddUser(text))
	d.record(ctx, chatID, d.memory.AddAssistant(res.Reply))
}

func (d *Dispatcher) converse(ctx context.Context, chatID, text string) {
	d.state = Conversing
	reply, err := d.completer.Complete(ctx, d.memory.RenderContext(text))
	if err != nil {
		d.logger.Error("Language model call failed, no reply sent", zap.Error(err))
		d.record(ctx, chatID, d.memory.AddUser(text))
		return
	}

	d.record(ctx, chatID, d.memory.AddUser(text))
	d.record(ctx, chatID, d.memory.AddAssistant(reply))
	if err := d.sender.Send(ctx, chatID, reply); err != nil {
		d.logger.Error("Failed to deliver reply", zap.String("chat", chatID), zap.Error(err))
	}
}

// persist saves the ledger file and announces the change. Failures are
// logged; the in-memory ledger stays authoritative for the session.
func (d *Dispatcher) persist(ctx context.Context, res command.Result) {
	if d.cfg.LedgerPath != "" {
		if err := d.ledger.SaveFile(d.cfg.LedgerPath); err != nil {
			d.logger.Error("Failed to save ledger", zap.String("path", d.cfg.LedgerPath), zap.Error(err))
		}
	}
	if d.publisher != nil {
		ev := events.NewLedgerEvent(d.session, res.Effect.String(), res.Entry, d.ledger.Balance().StringFixed(2))
		if err := d.publisher.Publish(ctx, ev); err != nil {
			d.logger.Error("Failed to publish ledger event", zap.Error(err))
		}
	}
}

func (d *Dispatcher) record(ctx context.Context, chatID string, t memory.Turn) {
	if d.journal == nil {
		return
	}
	if err := d.journal.AppendTurn(ctx, chatID, t); err != nil {
		d.logger.Warn("Failed to journal turn", zap.Error(err))
	}
}
