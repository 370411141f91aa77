// Package events publishes ledger mutations to RabbitMQ.
package events

import (
	"encoding/json"
	"time"

	"github.com/NgigiN/ledgerbot/internal/ledger"
	"github.com/google/uuid"
)

// LedgerEvent describes one append or undo.
type LedgerEvent struct {
	ID          string    `json:"id"`
	Session     string    `json:"session"`
	Operation   string    `json:"operation"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	Category    string    `json:"category"`
	Balance     string    `json:"balance"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewLedgerEvent builds the event for e after operation left the ledger at
// balance.
func NewLedgerEvent(session, operation string, e ledger.Entry, balance string) LedgerEvent {
	return LedgerEvent{
		ID:          uuid.NewString(),
		Session:     session,
		Operation:   operation,
		Kind:        e.Kind.Code(),
		Amount:      e.Amount.String(),
		Description: e.Description,
		Date:        e.Date.Format(ledger.DateLayout),
		Category:    e.CategoryOrDefault(),
		Balance:     balance,
		Timestamp:   time.Now().UTC(),
	}
}

func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
