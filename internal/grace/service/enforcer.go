package service

import (
	"context"
	"fmt"
	"math"

	auditdomain "github.com/droplinklabs/droplink/internal/audit/domain"
	"github.com/droplinklabs/droplink/internal/clock"
	gracedomain "github.com/droplinklabs/droplink/internal/grace/domain"
	notifydomain "github.com/droplinklabs/droplink/internal/notify/domain"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Enforcer struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	subSvc   subscriptiondomain.Service
	notifier notifydomain.Notifier
	audit    auditdomain.Service

	sweepOutcomes *prometheus.CounterVec
}

type EnforcerParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	SubSvc   subscriptiondomain.Service
	Notifier notifydomain.Notifier
	Audit    auditdomain.Service
	Registry *prometheus.Registry
}

func NewEnforcer(p EnforcerParam) gracedomain.Enforcer {
	sweepOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "droplink",
		Subsystem: "grace",
		Name:      "sweep_outcomes_total",
		Help:      "Grace sweep per-subscription outcomes.",
	}, []string{"outcome"})
	p.Registry.MustRegister(sweepOutcomes)

	return &Enforcer{
		db:    p.DB,
		log:   p.Log.Named("grace.enforcer"),
		clock: p.Clock,

		subSvc:   p.SubSvc,
		notifier: p.Notifier,
		audit:    p.Audit,

		sweepOutcomes: sweepOutcomes,
	}
}

// RunSweep walks every subscription sitting in a grace period and either
// cancels it, warns the owner, or leaves it alone. Per-item failures are
// collected; the sweep never aborts early.
func (e *Enforcer) RunSweep(ctx context.Context, cfg gracedomain.SweepConfig) (gracedomain.SweepResult, error) {
	var subs []subscriptiondomain.Subscription
	err := e.db.WithContext(ctx).
		Where("status = ? AND grace_period_end IS NOT NULL", subscriptiondomain.SubscriptionStatusGracePeriod).
		Order("grace_period_end ASC").
		Find(&subs).Error
	if err != nil {
		return gracedomain.SweepResult{}, err
	}

	now := e.clock.Now(ctx)
	result := gracedomain.SweepResult{Scanned: len(subs)}

	for _, sub := range subs {
		remaining := sub.GracePeriodEnd.Sub(now)

		if remaining <= 0 {
			if !cfg.EnableAutoCancel {
				e.log.Info("grace period expired, auto-cancel disabled",
					zap.String("subscription_id", sub.ID.String()))
				e.sweepOutcomes.WithLabelValues("skipped").Inc()
				result.Skipped++
				continue
			}
			_, err := e.subSvc.Cancel(ctx, subscriptiondomain.CancelRequest{
				SubscriptionID: sub.ID,
				Reason:         "grace_period_expired",
				Effective:      subscriptiondomain.EffectiveImmediate,
			})
			if err != nil {
				e.sweepOutcomes.WithLabelValues("error").Inc()
				result.Errors = append(result.Errors, fmt.Sprintf("cancel %s: %v", sub.ID, err))
				continue
			}
			e.sweepOutcomes.WithLabelValues("canceled").Inc()
			result.Canceled++
			continue
		}

		daysUntilExpiry := int(math.Ceil(remaining.Hours() / 24))
		if !containsDay(cfg.WarningDays, daysUntilExpiry) {
			e.sweepOutcomes.WithLabelValues("noop").Inc()
			continue
		}

		warning := notifydomain.Warning{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			DaysRemaining:  daysUntilExpiry,
			GracePeriodEnd: *sub.GracePeriodEnd,
		}
		if err := e.notifier.SendWarning(ctx, warning); err != nil {
			e.log.Warn("grace warning delivery failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err))
			e.sweepOutcomes.WithLabelValues("error").Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("warn %s: %v", sub.ID, err))
			continue
		}

		e.audit.Write(ctx, auditdomain.Entry{
			Action:     "grace.warning_sent",
			Resource:   "subscription",
			ResourceID: sub.ID.String(),
			Details: map[string]any{
				"days_remaining":   daysUntilExpiry,
				"grace_period_end": sub.GracePeriodEnd,
			},
		})
		e.sweepOutcomes.WithLabelValues("warned").Inc()
		result.Warned++
	}

	return result, nil
}

func containsDay(days []int, d int) bool {
	for _, v := range days {
		if v == d {
			return true
		}
	}
	return false
}
