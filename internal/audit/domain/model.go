package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SystemActor is recorded as UserID for scheduled jobs.
const SystemActor = "system"

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID     string            `json:"user_id" gorm:"type:text;not null;index"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	Resource   string            `json:"resource" gorm:"type:text;not null"`
	ResourceID string            `json:"resource_id" gorm:"type:text;index"`
	Details    datatypes.JSONMap `json:"details" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type Entry struct {
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	Details    map[string]any
}

// Service writes audit entries best-effort: a failed write is logged and
// swallowed, never returned to the caller.
type Service interface {
	Write(ctx context.Context, entry Entry)
}
