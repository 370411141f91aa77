// Package classifier maps free text to a ledger command, a request to end the
// session, or nothing at all.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/NgigiN/ledgerbot/internal/command"
	"go.uber.org/zap"
)

type Kind int

const (
	NoCommand Kind = iota
	Command
	Terminate
)

func (k Kind) String() string {
	switch k {
	case Command:
		return "command"
	case Terminate:
		return "terminate"
	}
	return "no_command"
}

// Result is the outcome of classifying one message. Command is only set when
// Kind is Command.
type Result struct {
	Kind    Kind
	Command string
}

func CommandResult(text string) Result {
	return Result{Kind: Command, Command: text}
}

func NoCommandResult() Result {
	return Result{Kind: NoCommand}
}

func TerminateResult() Result {
	return Result{Kind: Terminate}
}

// NoCommandToken is what the model is told to answer when no command applies.
const NoCommandToken = "NONE"

// Completer turns a prompt into a model response.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLM classifies messages by asking a language model to translate them into a
// single command line.
type LLM struct {
	completer        Completer
	terminationToken string
	logger           *zap.Logger
}

func NewLLM(completer Completer, terminationToken string, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{
		completer:        completer,
		terminationToken: terminationToken,
		logger:           logger,
	}
}

func (c *LLM) Classify(ctx context.Context, text string) (Result, error) {
	out, err := c.completer.Complete(ctx, c.Prompt(text))
	if err != nil {
		return Result{}, fmt.Errorf("failed to classify message: %w", err)
	}
	res := c.interpret(out)
	c.logger.Debug("Classified message",
		zap.String("kind", res.Kind.String()),
		zap.String("command", res.Command))
	return res, nil
}

// Prompt builds the instruction sent to the model for text.
func (c *LLM) Prompt(text string) string {
	var b strings.Builder
	b.WriteString("You translate a user's chat message into exactly one bot command.\n")
	b.WriteString("Available commands:\n")
	for _, spec := range command.Menu() {
		fmt.Fprintf(&b, "- %s: %s\n", spec.Usage, spec.Description)
	}
	fmt.Fprintf(&b, "- %s: end the session\n", c.terminationToken)
	b.WriteString("Amounts are plain positive numbers without currency symbols.\n")
	fmt.Fprintf(&b, "If no command applies, answer %s.\n", NoCommandToken)
	b.WriteString("Answer with the command line only, no explanation.\n\n")
	fmt.Fprintf(&b, "Message: %q", text)
	return b.String()
}

// interpret maps raw model output to a Result. Anything that is not a
// command line is treated as no command.
func (c *LLM) interpret(out string) Result {
	line := strings.TrimSpace(out)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.Trim(line, "`\"' ")

	switch {
	case line == c.terminationToken:
		return TerminateResult()
	case strings.EqualFold(line, NoCommandToken), line == "":
		return NoCommandResult()
	case command.IsCommand(line):
		return CommandResult(line)
	}
	return NoCommandResult()
}
