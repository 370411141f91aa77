package dispatch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/NgigiN/ledgerbot/internal/chat"
	"github.com/NgigiN/ledgerbot/internal/classifier"
	"github.com/NgigiN/ledgerbot/internal/events"
	"github.com/NgigiN/ledgerbot/internal/ledger"
	"github.com/NgigiN/ledgerbot/internal/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClassifier struct {
	results map[string]classifier.Result
	err     error
	calls   []string
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (classifier.Result, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return classifier.Result{}, f.err
	}
	if res, ok := f.results[text]; ok {
		return res, nil
	}
	return classifier.NoCommandResult(), nil
}

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type sent struct {
	chatID  string
	text    string
	options []string
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(_ context.Context, chatID, text string) error {
	f.sent = append(f.sent, sent{chatID: chatID, text: text})
	return f.err
}

func (f *fakeSender) SendWithOptions(_ context.Context, chatID, text string, options []string) error {
	f.sent = append(f.sent, sent{chatID: chatID, text: text, options: options})
	return f.err
}

type fakeJournal struct {
	turns []memory.Turn
	err   error
}

func (f *fakeJournal) AppendTurn(_ context.Context, _ string, t memory.Turn) error {
	f.turns = append(f.turns, t)
	return f.err
}

type fakePublisher struct {
	events []events.LedgerEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, ev events.LedgerEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

type scriptedReceiver struct {
	msgs []chat.Message
	err  error
}

func (r *scriptedReceiver) Receive(context.Context) (chat.Message, error) {
	if len(r.msgs) == 0 {
		if r.err != nil {
			return chat.Message{}, r.err
		}
		return chat.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

type harness struct {
	d      *Dispatcher
	cl     *fakeClassifier
	model  *fakeCompleter
	sender *fakeSender
	logs   *observer.ObservedLogs
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		cl:     &fakeClassifier{results: map[string]classifier.Result{}},
		model:  &fakeCompleter{reply: "Hello!"},
		sender: &fakeSender{},
		logs:   logs,
	}
	opts = append([]Option{WithLogger(zap.New(core))}, opts...)
	h.d = New(cfg, h.cl, h.model, h.sender, opts...)
	return h
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func msg(text string) chat.Message {
	return chat.Message{ChatID: "chan-1", AuthorID: "user-1", Text: text}
}

func (h *harness) lastReply(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, h.sender.sent)
	return h.sender.sent[len(h.sender.sent)-1].text
}

func TestTerminationTokenEndsSessionWithoutSideEffects(t *testing.T) {
	h := newHarness(t, Config{})

	state := h.d.Handle(context.Background(), msg("  /end  "))
	assert.Equal(t, Terminated, state)
	assert.Empty(t, h.cl.calls)
	assert.Empty(t, h.model.prompts)
	assert.Empty(t, h.sender.sent)
	assert.Equal(t, 0, h.d.memory.Len())

	// Nothing is processed after termination.
	assert.Equal(t, Terminated, h.d.Handle(context.Background(), msg("/in 5 late")))
	assert.Equal(t, 0, h.d.ledger.Len())
}

func TestCustomTerminationToken(t *testing.T) {
	h := newHarness(t, Config{TerminationToken: "bye"})
	assert.Equal(t, Idle, h.d.Handle(context.Background(), msg("/end")))
	assert.Equal(t, "Unknown command: /end", h.lastReply(t))
	assert.Equal(t, Terminated, h.d.Handle(context.Background(), msg("bye")))
}

func TestExplicitCommandSkipsClassifier(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	assert.Equal(t, Idle, h.d.Handle(ctx, msg("/in 50.00 coffee")))
	assert.Equal(t, "Logged income: 50.00 - coffee", h.lastReply(t))
	h.d.Handle(ctx, msg("/balance"))
	assert.Equal(t, "Current balance: 50.00", h.lastReply(t))

	assert.Empty(t, h.cl.calls)
	assert.Empty(t, h.model.prompts)
	assert.Equal(t, "chan-1", h.sender.sent[0].chatID)

	assert.Equal(t, []memory.Turn{
		{Role: memory.User, Content: "/in 50.00 coffee"},
		{Role: memory.Assistant, Content: "Logged income: 50.00 - coffee"},
		{Role: memory.User, Content: "/balance"},
		{Role: memory.Assistant, Content: "Current balance: 50.00"},
	}, h.d.memory.Turns())
}

func TestClassifiedCommandIsExecuted(t *testing.T) {
	h := newHarness(t, Config{})
	h.cl.results["I spent 20 on a snack"] = classifier.CommandResult("/out 20 snack")

	h.d.Handle(context.Background(), msg("I spent 20 on a snack"))
	assert.Equal(t, []string{"I spent 20 on a snack"}, h.cl.calls)
	assert.Equal(t, "Logged expense: 20.00 - snack", h.lastReply(t))
	assert.Empty(t, h.model.prompts)
	assert.Equal(t, "-20", h.d.ledger.Balance().String())

	turns := h.d.memory.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "I spent 20 on a snack", turns[0].Content)
}

func TestClassifierTermination(t *testing.T) {
	h := newHarness(t, Config{})
	h.cl.results["that's all, bye"] = classifier.TerminateResult()

	assert.Equal(t, Terminated, h.d.Handle(context.Background(), msg("that's all, bye")))
	assert.Empty(t, h.sender.sent)
	assert.Equal(t, 0, h.d.memory.Len())
}

func TestConversationUsesMemoryContext(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	h.d.Handle(ctx, msg("/in 10 tip"))
	h.d.Handle(ctx, msg("how are you?"))

	require.Len(t, h.model.prompts, 1)
	assert.Equal(t, "User: /in 10 tip\nAssistant: Logged income: 10.00 - tip\nUser: how are you?\nAssistant:", h.model.prompts[0])
	assert.Equal(t, "Hello!", h.lastReply(t))

	turns := h.d.memory.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, memory.Turn{Role: memory.User, Content: "how are you?"}, turns[2])
	assert.Equal(t, memory.Turn{Role: memory.Assistant, Content: "Hello!"}, turns[3])
}

func TestClassifierFailureFallsBackToConversation(t *testing.T) {
	h := newHarness(t, Config{})
	h.cl.err = errors.New("classifier down")

	assert.Equal(t, Idle, h.d.Handle(context.Background(), msg("tell me a joke")))
	assert.Len(t, h.model.prompts, 1)
	assert.Equal(t, "Hello!", h.lastReply(t))
	assert.Equal(t, 1, h.logs.FilterMessage("Classifier failed, falling back to conversation").Len())
}

func TestModelFailureSendsNothing(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.err = errors.New("model timeout")

	assert.Equal(t, Idle, h.d.Handle(context.Background(), msg("hello?")))
	assert.Empty(t, h.sender.sent)
	assert.Equal(t, []memory.Turn{{Role: memory.User, Content: "hello?"}}, h.d.memory.Turns())

	entries := h.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Language model call failed, no reply sent", entries[0].Message)

	// The session keeps going.
	h.model.err = nil
	h.d.Handle(context.Background(), msg("hello again"))
	assert.Equal(t, "Hello!", h.lastReply(t))
}

func TestUnknownCommandOffersQuickReplies(t *testing.T) {
	h := newHarness(t, Config{})
	h.d.Handle(context.Background(), msg("/transfer 5 bob"))

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "Unknown command: /transfer", h.sender.sent[0].text)
	assert.Equal(t, []string{"/balance", "/summary", "/recent 5"}, h.sender.sent[0].options)
}

func TestMutationsAreSavedAndPublished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	pub := &fakePublisher{}
	h := newHarness(t, Config{LedgerPath: path}, WithPublisher(pub))
	ctx := context.Background()

	h.d.Handle(ctx, msg("/in 50 salary"))
	h.d.Handle(ctx, msg("/balance"))
	h.d.Handle(ctx, msg("/out 20 snack"))
	h.d.Handle(ctx, msg("/undo"))

	restored := ledger.New()
	report, err := restored.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, "50", restored.Balance().String())

	require.Len(t, pub.events, 3)
	assert.Equal(t, "append", pub.events[0].Operation)
	assert.Equal(t, "50.00", pub.events[0].Balance)
	assert.Equal(t, "append", pub.events[1].Operation)
	assert.Equal(t, "30.00", pub.events[1].Balance)
	assert.Equal(t, "undo", pub.events[2].Operation)
	assert.Equal(t, "OUT", pub.events[2].Kind)
	assert.Equal(t, "50.00", pub.events[2].Balance)
	assert.Equal(t, h.d.Session(), pub.events[2].Session)
}

func TestSideChannelFailuresAreNotFatal(t *testing.T) {
	journal := &fakeJournal{err: errors.New("disk full")}
	pub := &fakePublisher{err: errors.New("broker gone")}
	badPath := filepath.Join(t.TempDir(), "missing-dir", "ledger.csv")
	h := newHarness(t, Config{LedgerPath: badPath}, WithJournal(journal), WithPublisher(pub))
	h.sender.err = errors.New("discord unavailable")

	assert.Equal(t, Idle, h.d.Handle(context.Background(), msg("/in 5 gift")))
	assert.Equal(t, 1, h.d.ledger.Len())
	assert.Len(t, journal.turns, 2)
	assert.Equal(t, 1, h.logs.FilterMessage("Failed to save ledger").Len())
	assert.Equal(t, 1, h.logs.FilterMessage("Failed to publish ledger event").Len())
	assert.Equal(t, 1, h.logs.FilterMessage("Failed to deliver reply").Len())
	assert.Equal(t, 2, h.logs.FilterMessage("Failed to journal turn").Len())

	_, err := os.Stat(badPath)
	assert.True(t, os.IsNotExist(err))
}

func TestJournalReceivesEveryTurn(t *testing.T) {
	journal := &fakeJournal{}
	h := newHarness(t, Config{}, WithJournal(journal))
	ctx := context.Background()

	h.d.Handle(ctx, msg("/summary"))
	h.d.Handle(ctx, msg("thanks!"))
	h.d.Handle(ctx, msg("/end"))

	assert.Equal(t, h.d.memory.Turns(), journal.turns)
	assert.Len(t, journal.turns, 4)
}

func TestRestoredStateIsUsed(t *testing.T) {
	l := ledger.New()
	_, err := l.Income(mustDecimal("12.5"), "restored")
	require.NoError(t, err)
	m := memory.New()
	m.Restore([]memory.Turn{{Role: memory.User, Content: "earlier"}})

	h := newHarness(t, Config{}, WithLedger(l), WithMemory(m))
	h.d.Handle(context.Background(), msg("/balance"))
	assert.Equal(t, "Current balance: 12.50", h.lastReply(t))
	assert.Equal(t, 3, m.Len())
}

func TestRunStopsOnTermination(t *testing.T) {
	h := newHarness(t, Config{})
	rx := &scriptedReceiver{msgs: []chat.Message{
		msg("/in 50.00 coffee"),
		msg("/end"),
		msg("/in 1 never"),
	}}

	require.NoError(t, h.d.Run(context.Background(), rx))
	assert.Equal(t, Terminated, h.d.State())
	assert.Equal(t, 1, h.d.ledger.Len())
	assert.Len(t, rx.msgs, 1, "messages after termination stay unread")
}

func TestRunStopsAtEOF(t *testing.T) {
	h := newHarness(t, Config{})
	rx := &scriptedReceiver{msgs: []chat.Message{msg("/in 1 a"), msg("/in 2 b")}}

	require.NoError(t, h.d.Run(context.Background(), rx))
	assert.Equal(t, Idle, h.d.State())
	assert.Equal(t, "3", h.d.ledger.Balance().String())
}

func TestRunReportsReceiveErrors(t *testing.T) {
	h := newHarness(t, Config{})
	boom := errors.New("gateway closed")
	err := h.d.Run(context.Background(), &scriptedReceiver{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestRunReturnsCleanlyOnCancel(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.d.Run(ctx, &scriptedReceiver{err: context.Canceled})
	assert.NoError(t, err)
}

func TestStateNames(t *testing.T) {
	names := map[State]string{
		Idle:        "idle",
		Classifying: "classifying",
		Executing:   "executing",
		Conversing:  "conversing",
		Terminated:  "terminated",
	}
	for s, want := range names {
		assert.Equal(t, want, s.String())
	}
}
