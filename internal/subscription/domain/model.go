package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/droplinklabs/droplink/internal/payment/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete  SubscriptionStatus = "incomplete"
	SubscriptionStatusActive      SubscriptionStatus = "active"
	SubscriptionStatusPastDue     SubscriptionStatus = "past_due"
	SubscriptionStatusGracePeriod SubscriptionStatus = "grace_period"
	SubscriptionStatusCanceled    SubscriptionStatus = "canceled"
)

// ActiveLike are the statuses that count against the one-subscription-per-
// owner rule.
var ActiveLike = []SubscriptionStatus{
	SubscriptionStatusIncomplete,
	SubscriptionStatusActive,
	SubscriptionStatusPastDue,
	SubscriptionStatusGracePeriod,
}

type Subscription struct {
	ID     snowflake.ID       `json:"id" gorm:"primaryKey"`
	UserID snowflake.ID       `json:"user_id" gorm:"not null;index"`
	PlanID snowflake.ID       `json:"plan_id" gorm:"not null"`
	Status SubscriptionStatus `json:"status" gorm:"type:text;not null;index"`

	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	NextBillingDate    time.Time `json:"next_billing_date"`

	CancelAtPeriodEnd bool       `json:"cancel_at_period_end" gorm:"not null;default:false"`
	GracePeriodEnd    *time.Time `json:"grace_period_end" gorm:"index"`
	RetryCount        int        `json:"retry_count" gorm:"not null;default:0"`

	ProviderCustomerID     *string `json:"provider_customer_id" gorm:"type:text"`
	ProviderSubscriptionID *string `json:"provider_subscription_id" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Source tags where an activation came from; recorded in history reasons and
// audit details only.
type Source string

const (
	SourceWebhook            Source = "webhook"
	SourceManualRecoveryRef  Source = "manual_recovery_ref"
	SourceManualCheck        Source = "manual_check"
	SourceManualVerification Source = "manual_verification"
	SourceDeepSearchRecovery Source = "deep_search_recovery"
	SourceDeepSearchSync     Source = "deep_search_sync"
	SourceScript             Source = "script"
)

type Effective string

const (
	EffectiveImmediate Effective = "immediate"
	EffectivePeriodEnd Effective = "period_end"
)

type CreateRequest struct {
	UserID             snowflake.ID
	PlanID             snowflake.ID
	ProviderCustomerID string
}

type ActivateRequest struct {
	SubscriptionID snowflake.ID
	Evidence       paymentdomain.Evidence
	Source         Source
}

type CancelRequest struct {
	SubscriptionID snowflake.ID
	Reason         string
	Effective      Effective
}

type ChangePlanRequest struct {
	SubscriptionID snowflake.ID
	NewPlanID      snowflake.ID
	Effective      Effective
	Prorate        bool
}

// Result is the structured outcome of a state machine operation: the
// resulting subscription snapshot, whether anything changed, and a
// human-readable reason for logging/UI.
type Result struct {
	Subscription Subscription `json:"subscription"`
	Changed      bool         `json:"changed"`
	Reason       string       `json:"reason"`
}

// Service is the only component permitted to mutate Subscription and
// Payment rows. Every transition writes exactly one history row in the same
// transaction.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (Result, error)
	GetByID(ctx context.Context, id snowflake.ID) (Subscription, error)
	Activate(ctx context.Context, req ActivateRequest) (Result, error)
	Cancel(ctx context.Context, req CancelRequest) (Result, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (Result, error)
	SetGracePeriod(ctx context.Context, subscriptionID snowflake.ID, days int) (Result, error)
	MarkPastDue(ctx context.Context, subscriptionID snowflake.ID, reason string) (Result, error)
}

var (
	ErrInvalidSubscription         = errors.New("invalid_subscription")
	ErrSubscriptionNotFound        = errors.New("subscription_not_found")
	ErrInvalidTransition           = errors.New("invalid_transition")
	ErrInvalidEffective            = errors.New("invalid_effective")
	ErrInvalidEvidence             = errors.New("invalid_payment_evidence")
	ErrInvalidGraceDays            = errors.New("invalid_grace_period_days")
	ErrDuplicateActiveSubscription = errors.New("duplicate_active_subscription")
	ErrPlanUnchanged               = errors.New("plan_unchanged")
)

// TransactionError wraps a failed multi-row write. Nothing was committed.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed in %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
