package scheduler

import (
	"context"
	"time"

	"github.com/droplinklabs/droplink/internal/clock"
	"github.com/droplinklabs/droplink/internal/config"
	gracedomain "github.com/droplinklabs/droplink/internal/grace/domain"
	reconciledomain "github.com/droplinklabs/droplink/internal/reconcile/domain"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// staleIncompleteWindow bounds how far back the reconcile job looks for
// incomplete subscriptions worth recovering.
const staleIncompleteWindow = 30 * 24 * time.Hour

type Scheduler struct {
	cfg   config.Config
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	enforcer gracedomain.Enforcer
	engine   reconciledomain.Engine
}

type SchedulerParam struct {
	fx.In

	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock

	Enforcer gracedomain.Enforcer
	Engine   reconciledomain.Engine
}

func NewScheduler(p SchedulerParam) *Scheduler {
	return &Scheduler{
		cfg:   p.Cfg,
		db:    p.DB,
		log:   p.Log.Named("scheduler"),
		clock: p.Clock,

		enforcer: p.Enforcer,
		engine:   p.Engine,
	}
}

// RunForever drives the periodic jobs until ctx is done. Jobs are run once
// at startup, then on their configured intervals.
func (s *Scheduler) RunForever(ctx context.Context) {
	sweepTicker := time.NewTicker(s.cfg.SweepInterval)
	defer sweepTicker.Stop()
	reconcileTicker := time.NewTicker(s.cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	s.runGraceSweep(ctx)
	s.runStaleIncompleteReconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-sweepTicker.C:
			s.runGraceSweep(ctx)
		case <-reconcileTicker.C:
			s.runStaleIncompleteReconcile(ctx)
		}
	}
}

func (s *Scheduler) runGraceSweep(ctx context.Context) {
	result, err := s.enforcer.RunSweep(ctx, gracedomain.SweepConfig{
		WarningDays:      s.cfg.WarningDays,
		EnableAutoCancel: s.cfg.EnableAutoCancel,
	})
	if err != nil {
		s.log.Error("grace sweep failed", zap.Error(err))
		return
	}
	s.log.Info("grace sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("canceled", result.Canceled),
		zap.Int("warned", result.Warned),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
}

// runStaleIncompleteReconcile retries recovery for subscriptions that never
// activated. Exhaustion is the expected steady state here, not a failure.
func (s *Scheduler) runStaleIncompleteReconcile(ctx context.Context) {
	cutoff := s.clock.Now(ctx).Add(-staleIncompleteWindow)

	var subs []subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", subscriptiondomain.SubscriptionStatusIncomplete, cutoff).
		Order("created_at ASC").
		Find(&subs).Error
	if err != nil {
		s.log.Error("stale incomplete scan failed", zap.Error(err))
		return
	}

	recovered := 0
	for _, sub := range subs {
		out, err := s.engine.Reconcile(ctx, reconciledomain.Request{SubscriptionID: sub.ID})
		if err != nil {
			continue
		}
		recovered++
		s.log.Info("recovered incomplete subscription",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("tier", out.Tier),
			zap.String("source", string(out.Source)))
	}
	s.log.Info("stale incomplete reconcile finished",
		zap.Int("scanned", len(subs)),
		zap.Int("recovered", recovered))
}

var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
)
