package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used in listings and ledger files.
const DateLayout = "2006-01-02"

// DefaultCategory is shown and persisted for entries without a category.
const DefaultCategory = "uncategorized"

type Kind int

const (
	Income Kind = iota
	Expense
)

// Code is the short form used in listings and ledger files.
func (k Kind) Code() string {
	if k == Expense {
		return "OUT"
	}
	return "IN"
}

func (k Kind) String() string {
	if k == Expense {
		return "expense"
	}
	return "income"
}

func parseKind(code string) (Kind, bool) {
	switch code {
	case "IN":
		return Income, true
	case "OUT":
		return Expense, true
	}
	return 0, false
}

// Entry is one immutable ledger record. Amount is always positive; the sign
// comes from Kind.
type Entry struct {
	Kind        Kind
	Amount      decimal.Decimal
	Description string
	Date        time.Time
	Category    string
}

// CategoryOrDefault returns the category, falling back to DefaultCategory.
func (e Entry) CategoryOrDefault() string {
	if e.Category == "" {
		return DefaultCategory
	}
	return e.Category
}

// Signed returns the entry's contribution to the balance.
func (e Entry) Signed() decimal.Decimal {
	if e.Kind == Expense {
		return e.Amount.Neg()
	}
	return e.Amount
}

// calendarDay strips the clock part of t, keeping the local calendar day.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
