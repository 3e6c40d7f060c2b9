package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionActivated      Action = "activated"
	ActionPlanChanged    Action = "plan_changed"
	ActionCancelled      Action = "cancelled"
	ActionStatusChanged  Action = "status_changed"
	ActionGracePeriodSet Action = "grace_period_set"
)

// Payload is the closed set of history snapshot types, one variant per
// action. Consumers decode with DecodePayload and switch on the concrete
// type; there is no loosely-typed snapshot blob.
type Payload interface {
	Action() Action
	payload()
}

type ActivatedSnapshot struct {
	Status            string  `json:"status"`
	ProviderPaymentID *string `json:"provider_payment_id,omitempty"`
	PaymentReference  *string `json:"payment_reference,omitempty"`
	RetryCount        int     `json:"retry_count"`
}

func (ActivatedSnapshot) Action() Action { return ActionActivated }
func (ActivatedSnapshot) payload()       {}

type PlanChangedSnapshot struct {
	PlanID          string          `json:"plan_id"`
	PlanCode        string          `json:"plan_code"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	ProrationAmount decimal.Decimal `json:"proration_amount"`
}

func (PlanChangedSnapshot) Action() Action { return ActionPlanChanged }
func (PlanChangedSnapshot) payload()       {}

type CancelledSnapshot struct {
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

func (CancelledSnapshot) Action() Action { return ActionCancelled }
func (CancelledSnapshot) payload()       {}

type StatusChangedSnapshot struct {
	Status string `json:"status"`
}

func (StatusChangedSnapshot) Action() Action { return ActionStatusChanged }
func (StatusChangedSnapshot) payload()       {}

type GracePeriodSnapshot struct {
	Status         string     `json:"status"`
	GracePeriodEnd *time.Time `json:"grace_period_end,omitempty"`
}

func (GracePeriodSnapshot) Action() Action { return ActionGracePeriodSet }
func (GracePeriodSnapshot) payload()       {}

// DecodePayload deserializes a stored snapshot back into its typed variant.
func DecodePayload(action Action, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	switch action {
	case ActionActivated:
		var p ActivatedSnapshot
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ActionPlanChanged:
		var p PlanChangedSnapshot
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ActionCancelled:
		var p CancelledSnapshot
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ActionStatusChanged:
		var p StatusChangedSnapshot
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ActionGracePeriodSet:
		var p GracePeriodSnapshot
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, ErrUnknownAction
	}
}
