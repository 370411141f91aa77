// Package llm holds the language-model clients used for classification and
// the conversational fallback.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var ErrEmptyResponse = errors.New("model returned no content")

// DefaultPersona is used when no persona file is configured.
const DefaultPersona = "You are a friendly personal accountant. Keep answers short and practical."

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LoadPersona reads the system prompt from path. A missing file yields
// DefaultPersona.
func LoadPersona(path string) (string, error) {
	if path == "" {
		return DefaultPersona, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPersona, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read persona file: %w", err)
	}
	persona := strings.TrimSpace(string(raw))
	if persona == "" {
		return DefaultPersona, nil
	}
	return persona, nil
}

// WithTimeout bounds every call to c.
func WithTimeout(c Completer, timeout time.Duration) Completer {
	if timeout <= 0 {
		return c
	}
	return timeoutCompleter{next: c, timeout: timeout}
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

func (t timeoutCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, prompt)
}
