// Package proration computes the mid-cycle monetary adjustment for a plan
// change: credit for unused time on the old plan against the charge for the
// remainder of the period on the new plan.
package proration

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPeriod = errors.New("invalid_billing_period")
	ErrNegativePrice = errors.New("negative_price")
)

type Kind string

const (
	KindCharge Kind = "charge"
	KindCredit Kind = "credit"
	KindNone   Kind = "none"
)

type Result struct {
	// Net is the signed prorated amount in major units, rounded to 2
	// places. Positive means the customer owes a charge, negative a
	// credit.
	Net decimal.Decimal

	// Amount is abs(Net), the value a payment row is created with.
	Amount decimal.Decimal

	Kind            Kind
	DaysRemaining   int64
	TotalDays       int64
	UnusedOldCredit decimal.Decimal
	NewPlanCharge   decimal.Decimal
	Description     string
}

// Prorate computes the adjustment for switching from oldPrice to newPrice at
// changeAt within [periodStart, periodEnd). Prices are per-period major-unit
// amounts. The upgrade/downgrade distinction only affects wording.
func Prorate(oldPrice, newPrice decimal.Decimal, periodStart, periodEnd, changeAt time.Time) (Result, error) {
	if !periodEnd.After(periodStart) {
		return Result{}, ErrInvalidPeriod
	}
	if oldPrice.IsNegative() || newPrice.IsNegative() {
		return Result{}, ErrNegativePrice
	}

	totalDays := daysBetween(periodStart, periodEnd)
	if totalDays == 0 {
		return Result{}, ErrInvalidPeriod
	}
	daysRemaining := daysBetween(changeAt, periodEnd)
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	if daysRemaining > totalDays {
		daysRemaining = totalDays
	}

	ratio := decimal.NewFromInt(daysRemaining).Div(decimal.NewFromInt(totalDays))
	unusedOldCredit := oldPrice.Mul(ratio)
	newPlanCharge := newPrice.Mul(ratio)
	net := newPlanCharge.Sub(unusedOldCredit).Round(2)

	result := Result{
		Net:             net,
		Amount:          net.Abs(),
		DaysRemaining:   daysRemaining,
		TotalDays:       totalDays,
		UnusedOldCredit: unusedOldCredit,
		NewPlanCharge:   newPlanCharge,
	}

	switch {
	case net.IsPositive():
		result.Kind = KindCharge
	case net.IsNegative():
		result.Kind = KindCredit
	default:
		result.Kind = KindNone
	}
	result.Description = describe(oldPrice, newPrice, result)

	return result, nil
}

func daysBetween(from, to time.Time) int64 {
	return int64(to.Sub(from).Hours() / 24)
}

func describe(oldPrice, newPrice decimal.Decimal, r Result) string {
	direction := "plan change"
	if newPrice.GreaterThan(oldPrice) {
		direction = "upgrade"
	} else if newPrice.LessThan(oldPrice) {
		direction = "downgrade"
	}

	switch r.Kind {
	case KindCharge:
		return fmt.Sprintf("prorated %s charge of %s for %d of %d remaining days", direction, r.Amount.StringFixed(2), r.DaysRemaining, r.TotalDays)
	case KindCredit:
		return fmt.Sprintf("prorated %s credit of %s for %d of %d remaining days", direction, r.Amount.StringFixed(2), r.DaysRemaining, r.TotalDays)
	default:
		return fmt.Sprintf("prorated %s with no balance change", direction)
	}
}
