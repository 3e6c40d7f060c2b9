package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrPlanNotFound = errors.New("plan_not_found")
	ErrInvalidPlan  = errors.New("invalid_plan")
)

type Plan struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	Code         string          `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name         string          `json:"name" gorm:"type:text;not null"`
	Price        decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Currency     string          `json:"currency" gorm:"type:varchar(3);not null"`
	IntervalDays int             `json:"interval_days" gorm:"not null;default:30"`
	Active       bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
}
