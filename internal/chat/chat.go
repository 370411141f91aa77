// Package chat defines the transport contracts shared by the Discord and
// console front-ends.
package chat

import "context"

// Message is one inbound chat message.
type Message struct {
	ChatID   string
	AuthorID string
	Text     string
}

// Receiver yields inbound messages one at a time. Receive returns io.EOF
// once the source is exhausted.
type Receiver interface {
	Receive(ctx context.Context) (Message, error)
}

// Sender delivers replies. Options are rendered as quick-reply choices whose
// selection comes back as an inbound message with the option text.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
	SendWithOptions(ctx context.Context, chatID, text string, options []string) error
}
