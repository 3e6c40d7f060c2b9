package domain

import (
	"context"
	"time"
)

// Transaction is a provider-side transaction record, amounts in the
// provider's minor units.
type Transaction struct {
	ID                string
	Reference         string
	Status            string
	Amount            int64
	Currency          string
	AuthorizationCode string
	CustomerCode      string
	PaidAt            time.Time
}

const TransactionStatusSuccess = "success"

func (t Transaction) Succeeded() bool {
	return t.Status == TransactionStatusSuccess
}

// Evidence converts a successful provider transaction into activation
// evidence for the state machine.
func (t Transaction) Evidence() Evidence {
	return Evidence{
		Reference:         t.Reference,
		ProviderPaymentID: t.ID,
		Amount:            t.Amount,
		Currency:          t.Currency,
		AuthorizationCode: t.AuthorizationCode,
	}
}

// Gateway is the read-only contract with the payment provider. Both calls
// are idempotent; implementations carry their own request timeouts.
type Gateway interface {
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
	ListTransactions(ctx context.Context, customerCode string, status string) ([]Transaction, error)
}
