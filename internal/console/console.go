// Package console runs a session over plain text streams.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/NgigiN/ledgerbot/internal/chat"
)

// ChatID identifies the single console conversation.
const ChatID = "console"

// Console reads one message per line from in and writes replies to out.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	prompt string
	lines  chan string
	err    error // set by scan before lines is closed
	done   chan struct{}
	once   sync.Once
}

func New(in io.Reader, out io.Writer, prompt string) *Console {
	c := &Console{
		out:    out,
		prompt: prompt,
		lines:  make(chan string),
		done:   make(chan struct{}),
	}
	go c.scan(in)
	return c
}

func (c *Console) scan(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case c.lines <- sc.Text():
		case <-c.done:
			return
		}
	}
	c.err = sc.Err()
	if c.err == nil {
		c.err = io.EOF
	}
	close(c.lines)
}

func (c *Console) Receive(ctx context.Context) (chat.Message, error) {
	for {
		select {
		case <-c.done:
			return chat.Message{}, io.EOF
		default:
		}
		c.showPrompt()
		select {
		case <-ctx.Done():
			return chat.Message{}, ctx.Err()
		case <-c.done:
			return chat.Message{}, io.EOF
		case line, ok := <-c.lines:
			if !ok {
				return chat.Message{}, c.err
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			return chat.Message{ChatID: ChatID, AuthorID: ChatID, Text: line}, nil
		}
	}
}

// Close stops delivering input. A read already blocked on the underlying
// reader finishes when that reader returns.
func (c *Console) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Console) showPrompt() {
	if c.prompt == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, c.prompt)
}

func (c *Console) Send(_ context.Context, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, text)
	return err
}

func (c *Console) SendWithOptions(ctx context.Context, chatID, text string, options []string) error {
	if len(options) == 0 {
		return c.Send(ctx, chatID, text)
	}
	return c.Send(ctx, chatID, text+"\nTry: "+strings.Join(options, ", "))
}

var (
	_ chat.Receiver = (*Console)(nil)
	_ chat.Sender   = (*Console)(nil)
)
