// Package command interprets slash commands against a ledger.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NgigiN/ledgerbot/internal/ledger"
	"github.com/shopspring/decimal"
)

// Marker prefixes every command keyword.
const Marker = "/"

type Effect int

const (
	EffectNone Effect = iota
	EffectAppended
	EffectUndone
)

func (e Effect) String() string {
	switch e {
	case EffectAppended:
		return "append"
	case EffectUndone:
		return "undo"
	}
	return "none"
}

// Result is the reply for the user plus what happened to the ledger.
// Entry is set when Effect is not EffectNone.
type Result struct {
	Reply   string
	Effect  Effect
	Entry   ledger.Entry
	Unknown bool
}

// Spec describes one command for menus and classifier prompts.
type Spec struct {
	Keyword     string
	Usage       string
	Description string
}

var menu = []Spec{
	{"in", "/in <amount> <description>", "log income (alias /income)"},
	{"out", "/out <amount> <description>", "log an expense"},
	{"balance", "/balance", "show the current balance"},
	{"summary", "/summary", "show income, expenses and net"},
	{"recent", "/recent <count>", "list the most recent entries"},
	{"undo", "/undo", "remove the last entry"},
}

// Menu returns the supported commands in display order.
func Menu() []Spec {
	out := make([]Spec, len(menu))
	copy(out, menu)
	return out
}

// IsCommand reports whether text starts with the command marker.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), Marker)
}

// Execute parses text and applies it to l. Parse failures are reported in
// Reply and never touch the ledger.
func Execute(l *ledger.Ledger, text string) Result {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return unknown("")
	}
	if !strings.HasPrefix(fields[0], Marker) {
		return unknown(fields[0])
	}
	keyword, args := strings.TrimPrefix(fields[0], Marker), fields[1:]

	switch keyword {
	case "income", "in":
		return record(l, ledger.Income, args)
	case "out":
		return record(l, ledger.Expense, args)
	case "balance":
		if len(args) != 0 {
			return reply("Usage: /balance")
		}
		return reply(fmt.Sprintf("Current balance: %s", l.Balance().StringFixed(2)))
	case "summary":
		if len(args) != 0 {
			return reply("Usage: /summary")
		}
		s := l.Summary()
		return reply(fmt.Sprintf("Income: %s, Expenses: %s, Net: %s",
			s.Income.StringFixed(2), s.Expenses.StringFixed(2), s.Net.StringFixed(2)))
	case "recent":
		return recent(l, args)
	case "undo":
		if len(args) != 0 {
			return reply("Usage: /undo")
		}
		e, ok := l.Undo()
		if !ok {
			return reply("Nothing to undo.")
		}
		return Result{
			Reply:  fmt.Sprintf("Removed %s: %s - %s", e.Kind, e.Amount.StringFixed(2), e.Description),
			Effect: EffectUndone,
			Entry:  e,
		}
	}
	return unknown(fields[0])
}

func record(l *ledger.Ledger, kind ledger.Kind, args []string) Result {
	if len(args) < 2 {
		if kind == ledger.Expense {
			return reply("Usage: /out <amount> <description>")
		}
		return reply("Usage: /in <amount> <description>")
	}
	amount, err := ParseAmount(args[0])
	if err != nil {
		return reply(fmt.Sprintf("Invalid amount %q: must be a positive number", args[0]))
	}
	description := strings.Join(args[1:], " ")

	var e ledger.Entry
	if kind == ledger.Expense {
		e, err = l.Out(amount, description)
	} else {
		e, err = l.Income(amount, description)
	}
	if err != nil {
		return reply(fmt.Sprintf("Could not log %s: %v", kind, err))
	}
	return Result{
		Reply:  fmt.Sprintf("Logged %s: %s - %s", e.Kind, e.Amount.StringFixed(2), e.Description),
		Effect: EffectAppended,
		Entry:  e,
	}
}

func recent(l *ledger.Ledger, args []string) Result {
	if len(args) != 1 {
		return reply("Usage: /recent <count>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return reply(fmt.Sprintf("Invalid count %q: must be a whole number of at least 1", args[0]))
	}
	out := l.ListRecent(n)
	if out == "" {
		return reply("No entries recorded.")
	}
	return reply(strings.TrimSuffix(out, "\n"))
}

// ParseAmount accepts plain positive decimals such as "20", "20.5" or "1,250.00".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, ledger.ErrNonPositiveAmount
	}
	return d, nil
}

func reply(text string) Result {
	return Result{Reply: text}
}

func unknown(keyword string) Result {
	return Result{Reply: fmt.Sprintf("Unknown command: %s", keyword), Unknown: true}
}
