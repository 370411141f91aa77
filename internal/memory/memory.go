// Package memory keeps the dialogue history used to give the conversational
// fallback some continuity.
package memory

import (
	"fmt"
	"strings"
)

// Window is the number of stored turns included in a rendered context.
const Window = 5

type Role int

const (
	User Role = iota
	Assistant
)

func (r Role) String() string {
	if r == Assistant {
		return "Assistant"
	}
	return "User"
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	switch s {
	case "User":
		return User, nil
	case "Assistant":
		return Assistant, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

type Turn struct {
	Role    Role
	Content string
}

// Memory stores every turn; only reads are windowed. Not safe for
// concurrent use.
type Memory struct {
	turns []Turn
}

func New() *Memory {
	return &Memory{}
}

func (m *Memory) AddUser(content string) Turn {
	return m.add(User, content)
}

func (m *Memory) AddAssistant(content string) Turn {
	return m.add(Assistant, content)
}

func (m *Memory) add(role Role, content string) Turn {
	t := Turn{Role: role, Content: content}
	m.turns = append(m.turns, t)
	return t
}

// Restore appends previously stored turns, oldest first.
func (m *Memory) Restore(turns []Turn) {
	m.turns = append(m.turns, turns...)
}

// RenderContext renders the last Window turns followed by prompt as a new
// user line and an open assistant line. It does not record prompt.
func (m *Memory) RenderContext(prompt string) string {
	start := 0
	if len(m.turns) > Window {
		start = len(m.turns) - Window
	}

	var b strings.Builder
	for _, t := range m.turns[start:] {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	fmt.Fprintf(&b, "User: %s\nAssistant:", prompt)
	return b.String()
}

func (m *Memory) Len() int {
	return len(m.turns)
}

// Turns returns a copy of the stored turns, oldest first.
func (m *Memory) Turns() []Turn {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}
