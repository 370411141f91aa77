package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNonPositiveAmount = errors.New("amount must be positive")

// Ledger is an insertion-ordered list of entries owned by a single session.
// It is not safe for concurrent use.
type Ledger struct {
	entries []Entry
	now     func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the clock used to date new entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Income records money coming in.
func (l *Ledger) Income(amount decimal.Decimal, description string) (Entry, error) {
	return l.add(Income, amount, description)
}

// Out records money going out.
func (l *Ledger) Out(amount decimal.Decimal, description string) (Entry, error) {
	return l.add(Expense, amount, description)
}

func (l *Ledger) add(kind Kind, amount decimal.Decimal, description string) (Entry, error) {
	if amount.Cmp(decimal.Zero) <= 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount.String())
	}
	e := Entry{
		Kind:        kind,
		Amount:      amount,
		Description: description,
		Date:        calendarDay(l.now()),
	}
	l.entries = append(l.entries, e)
	return e, nil
}

func (l *Ledger) Balance() decimal.Decimal {
	balance := decimal.Zero
	for _, e := range l.entries {
		balance = balance.Add(e.Signed())
	}
	return balance
}

type Summary struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
	Net      decimal.Decimal
}

func (l *Ledger) Summary() Summary {
	income, expenses := decimal.Zero, decimal.Zero
	for _, e := range l.entries {
		if e.Kind == Income {
			income = income.Add(e.Amount)
		} else {
			expenses = expenses.Add(e.Amount)
		}
	}
	return Summary{
		Income:   income,
		Expenses: expenses,
		Net:      income.Sub(expenses),
	}
}

// Undo removes the most recently added entry. It reports false when the
// ledger is empty.
func (l *Ledger) Undo() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	last := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	return last, true
}

// ListRecent renders the n most recent entries, newest first, one per line.
func (l *Ledger) ListRecent(n int) string {
	var b strings.Builder
	for i := len(l.entries) - 1; i >= 0 && n > 0; i-- {
		b.WriteString(FormatLine(l.entries[i]))
		b.WriteByte('\n')
		n--
	}
	return b.String()
}

// FormatLine renders e as "KIND | DATE | AMOUNT | CATEGORY: DESCRIPTION".
func FormatLine(e Entry) string {
	return fmt.Sprintf("%s | %s | %s | %s: %s",
		e.Kind.Code(),
		e.Date.Format(DateLayout),
		e.Amount.StringFixed(2),
		e.CategoryOrDefault(),
		e.Description)
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of all entries, oldest first.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
