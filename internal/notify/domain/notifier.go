package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrNotifyFailed = errors.New("notify_failed")

// Warning tells a subscriber their grace period is running out.
type Warning struct {
	SubscriptionID snowflake.ID `json:"subscription_id"`
	UserID         snowflake.ID `json:"user_id"`
	DaysRemaining  int          `json:"days_remaining"`
	GracePeriodEnd time.Time    `json:"grace_period_end"`
}

type Notifier interface {
	SendWarning(ctx context.Context, warning Warning) error
}
