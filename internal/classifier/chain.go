package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/NgigiN/ledgerbot/internal/mpesa"
)

// Classifier is implemented by LLM, MPesa and Chain.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Chain asks each classifier in turn and returns the first result that is not
// NoCommand. An error stops the chain.
type Chain []Classifier

func (c Chain) Classify(ctx context.Context, text string) (Result, error) {
	for _, cl := range c {
		res, err := cl.Classify(ctx, text)
		if err != nil {
			return Result{}, err
		}
		if res.Kind != NoCommand {
			return res, nil
		}
	}
	return NoCommandResult(), nil
}

// MPesa turns a pasted outgoing M-PESA confirmation into an expense command
// without a model round trip.
type MPesa struct{}

func (MPesa) Classify(_ context.Context, text string) (Result, error) {
	if !mpesa.LooksLikeConfirmation(text) {
		return NoCommandResult(), nil
	}
	c, err := mpesa.Parse(text)
	if err != nil {
		return NoCommandResult(), nil
	}
	recipient := strings.ReplaceAll(c.Recipient, ",", " ")
	return CommandResult(fmt.Sprintf("/out %s %s (%s)", c.Amount.StringFixed(2), recipient, c.TransactionID)), nil
}
