package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Payment is a locally tracked charge or credit. SubscriptionID is nullable:
// a payment discovered before its subscription is known stays orphaned until
// reconciliation links it.
type Payment struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID  `json:"user_id" gorm:"not null;index"`
	SubscriptionID *snowflake.ID `json:"subscription_id" gorm:"index"`

	Amount   decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency string          `json:"currency" gorm:"type:varchar(3);not null"`
	Status   PaymentStatus   `json:"status" gorm:"type:text;not null;index"`

	// ProviderPaymentRef is the client-chosen idempotency key sent to the
	// provider. ProviderPaymentID is assigned by the provider and unique
	// once populated. Together they are the dedup keys for reconciliation.
	ProviderPaymentRef string  `json:"provider_payment_ref" gorm:"type:text;not null;uniqueIndex"`
	ProviderPaymentID  *string `json:"provider_payment_id" gorm:"type:text;uniqueIndex"`

	// AuthorizationCode can be reused for future off-session charges.
	AuthorizationCode *string `json:"authorization_code" gorm:"type:text"`

	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null;index"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Evidence is a normalized record of provider-side proof that a payment
// succeeded. Amounts are provider minor units.
type Evidence struct {
	Reference         string
	ProviderPaymentID string
	Amount            int64
	Currency          string
	AuthorizationCode string
}

var (
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrInvalidReference  = errors.New("invalid_reference")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrProviderFailed    = errors.New("provider_request_failed")
	ErrProviderDeclined  = errors.New("provider_transaction_not_successful")
	ErrMissingProviderID = errors.New("missing_provider_payment_id")
)
