// Package mpesa recognises outgoing M-PESA confirmation messages pasted into
// the chat.
package mpesa

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotConfirmation = errors.New("not a valid outgoing M-PESA message")

type Confirmation struct {
	TransactionID string
	Amount        decimal.Decimal
	Recipient     string
	DateTime      time.Time
	Balance       decimal.Decimal
	Cost          decimal.Decimal
}

// Ksh<number>[,number]* with an optional fractional part.
const money = `Ksh[\d,]+(?:\.\d+)?`

// Tolerates the variants seen in practice: "paid"/"sent", an optional
// "for account ..." inside the recipient, "M-PESA" or "business" balance,
// a missing space before "New" and before AM/PM.
var confirmationRe = regexp.MustCompile(`(?i)(\w+)\s+Confirmed\.?\s+(` + money + `)\s+(?:sent|paid)\s+to\s+(.*?)\s*\.?\s+on\s+(\d{1,2}/\d{1,2}/\d{2})\s+at\s+(\d{1,2}:\d{2})\s?(AM|PM)\.?\s*New\s+(?:M-PESA|business)\s+balance\s+is\s+(` + money + `)\.\s*Transaction\s+cost,?\s*(` + money + `)(?:\.|\b)`)

// LooksLikeConfirmation is a cheap pre-check before Parse.
func LooksLikeConfirmation(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "confirmed") &&
		(strings.Contains(lower, "sent to") || strings.Contains(lower, "paid to"))
}

func Parse(msg string) (*Confirmation, error) {
	m := confirmationRe.FindStringSubmatch(msg)
	if m == nil {
		return nil, ErrNotConfirmation
	}

	amount, err := parseKsh(m[2])
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	recipient := strings.Join(strings.Fields(strings.TrimSuffix(m[3], ".")), " ")

	dateTime, err := time.ParseInLocation("2/1/06 3:04 PM", m[4]+" "+m[5]+" "+strings.ToUpper(m[6]), time.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date/time: %w", err)
	}
	balance, err := parseKsh(m[7])
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	cost, err := parseKsh(m[8])
	if err != nil {
		return nil, fmt.Errorf("failed to parse cost: %w", err)
	}

	return &Confirmation{
		TransactionID: m[1],
		Amount:        amount,
		Recipient:     recipient,
		DateTime:      dateTime,
		Balance:       balance,
		Cost:          cost,
	}, nil
}

// parseKsh accepts the currency prefix in any case, as the pattern does.
func parseKsh(s string) (decimal.Decimal, error) {
	if len(s) >= 3 && strings.EqualFold(s[:3], "Ksh") {
		s = s[3:]
	}
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}
