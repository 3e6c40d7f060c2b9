package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrUnknownAction = errors.New("unknown_history_action")

// Entry is an append-only subscription history row. Rows are never updated
// or deleted.
type Entry struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	SubscriptionID snowflake.ID   `json:"subscription_id" gorm:"not null;index"`
	Action         Action         `json:"action" gorm:"type:text;not null"`
	OldValue       datatypes.JSON `json:"old_value" gorm:"type:jsonb"`
	NewValue       datatypes.JSON `json:"new_value" gorm:"type:jsonb"`
	Reason         string         `json:"reason" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;index"`
}

func (Entry) TableName() string { return "subscription_history" }

// Record is the write request for one history row; Old and New carry the
// typed payload variant for the action.
type Record struct {
	SubscriptionID snowflake.ID
	Action         Action
	Old            Payload
	New            Payload
	Reason         string
}

// Writer appends history inside the caller's transaction so the row commits
// or rolls back with the state change it describes.
type Writer interface {
	Append(ctx context.Context, tx *gorm.DB, rec Record) error
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]Entry, error)
}
