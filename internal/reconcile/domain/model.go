package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
)

var ErrInvalidRequest = errors.New("invalid_reconcile_request")

// Diagnostic explains why a search came up empty.
type Diagnostic string

const (
	// DiagnosticCandidatesUnverified means local payment rows looked like
	// candidates but none could be confirmed with the provider.
	DiagnosticCandidatesUnverified Diagnostic = "local_candidates_unverified"
	// DiagnosticNoTransactions means neither local rows nor the provider's
	// transaction history produced anything to verify.
	DiagnosticNoTransactions Diagnostic = "no_provider_transactions_found"
)

// ExhaustedError is the terminal result when every tier has been tried
// without producing an activation.
type ExhaustedError struct {
	SubscriptionID snowflake.ID
	Diagnostic     Diagnostic
	TierErrors     []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("reconciliation exhausted for subscription %s: %s", e.SubscriptionID, e.Diagnostic)
}

type Request struct {
	SubscriptionID snowflake.ID
	// Reference is an optional provider reference supplied by the caller;
	// when set it is verified first.
	Reference string
}

// Outcome reports the tier that produced the activation.
type Outcome struct {
	Subscription subscriptiondomain.Subscription
	Source       subscriptiondomain.Source
	Tier         string
	Reason       string
}

type Engine interface {
	Reconcile(ctx context.Context, req Request) (Outcome, error)
}
