package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/droplinklabs/droplink/internal/clock"
	"github.com/droplinklabs/droplink/internal/currency"
	paymentdomain "github.com/droplinklabs/droplink/internal/payment/domain"
	reconciledomain "github.com/droplinklabs/droplink/internal/reconcile/domain"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	succeededScanWindow = 7 * 24 * time.Hour
	pendingScanWindow   = 30 * 24 * time.Hour
)

type Engine struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	gateway paymentdomain.Gateway
	subSvc  subscriptiondomain.Service

	tierOutcomes *prometheus.CounterVec
}

type EngineParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Gateway  paymentdomain.Gateway
	SubSvc   subscriptiondomain.Service
	Registry *prometheus.Registry
}

func NewEngine(p EngineParam) reconciledomain.Engine {
	tierOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "droplink",
		Subsystem: "reconcile",
		Name:      "tier_outcomes_total",
		Help:      "Reconciliation tier results by tier name and outcome.",
	}, []string{"tier", "outcome"})
	p.Registry.MustRegister(tierOutcomes)

	return &Engine{
		db:    p.DB,
		log:   p.Log.Named("reconcile.engine"),
		clock: p.Clock,

		gateway: p.Gateway,
		subSvc:  p.SubSvc,

		tierOutcomes: tierOutcomes,
	}
}

// tierResult is the value each tier returns; the tier loop matches on it
// instead of catching anything.
type tierResult struct {
	activated     bool
	subscription  subscriptiondomain.Subscription
	source        subscriptiondomain.Source
	reason        string
	sawCandidates bool
	err           error
}

type tier struct {
	name string
	run  func(ctx context.Context, sub subscriptiondomain.Subscription, req reconciledomain.Request) tierResult
}

// Reconcile walks the recovery tiers in order and stops at the first one
// that activates the subscription.
func (e *Engine) Reconcile(ctx context.Context, req reconciledomain.Request) (reconciledomain.Outcome, error) {
	if req.SubscriptionID == 0 {
		return reconciledomain.Outcome{}, reconciledomain.ErrInvalidRequest
	}

	sub, err := e.subSvc.GetByID(ctx, req.SubscriptionID)
	if err != nil {
		return reconciledomain.Outcome{}, err
	}

	tiers := []tier{
		{name: "explicit_reference", run: e.tierExplicitReference},
		{name: "local_succeeded_scan", run: e.tierLocalSucceeded},
		{name: "pending_verification", run: e.tierPendingVerification},
		{name: "deep_search", run: e.tierDeepSearch},
	}

	sawCandidates := false
	var tierErrors []string

	for _, t := range tiers {
		res := t.run(ctx, sub, req)
		sawCandidates = sawCandidates || res.sawCandidates

		switch {
		case res.activated:
			e.tierOutcomes.WithLabelValues(t.name, "success").Inc()
			e.log.Info("reconciliation activated subscription",
				zap.String("tier", t.name),
				zap.String("subscription_id", sub.ID.String()),
				zap.String("source", string(res.source)))
			return reconciledomain.Outcome{
				Subscription: res.subscription,
				Source:       res.source,
				Tier:         t.name,
				Reason:       res.reason,
			}, nil
		case res.err != nil:
			e.tierOutcomes.WithLabelValues(t.name, "error").Inc()
			e.log.Warn("reconciliation tier failed",
				zap.String("tier", t.name),
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(res.err))
			tierErrors = append(tierErrors, t.name+": "+res.err.Error())
		default:
			e.tierOutcomes.WithLabelValues(t.name, "miss").Inc()
		}
	}

	diagnostic := reconciledomain.DiagnosticNoTransactions
	if sawCandidates {
		diagnostic = reconciledomain.DiagnosticCandidatesUnverified
	}
	return reconciledomain.Outcome{}, &reconciledomain.ExhaustedError{
		SubscriptionID: sub.ID,
		Diagnostic:     diagnostic,
		TierErrors:     tierErrors,
	}
}

func (e *Engine) tierExplicitReference(ctx context.Context, sub subscriptiondomain.Subscription, req reconciledomain.Request) tierResult {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return tierResult{}
	}

	tx, err := e.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return tierResult{sawCandidates: true, err: err}
	}
	if tx == nil || !tx.Succeeded() {
		return tierResult{sawCandidates: true}
	}
	return e.activate(ctx, sub.ID, tx.Evidence(), subscriptiondomain.SourceManualRecoveryRef)
}

func (e *Engine) tierLocalSucceeded(ctx context.Context, sub subscriptiondomain.Subscription, _ reconciledomain.Request) tierResult {
	since := e.clock.Now(ctx).Add(-succeededScanWindow)

	var payments []paymentdomain.Payment
	err := e.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND created_at >= ?", sub.UserID, paymentdomain.PaymentStatusSucceeded, since).
		Where("subscription_id IS NULL OR subscription_id = ?", sub.ID).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return tierResult{err: err}
	}
	if len(payments) == 0 {
		return tierResult{}
	}

	payment := payments[0]
	evidence := paymentdomain.Evidence{
		Reference: payment.ProviderPaymentRef,
		Amount:    currency.ToMinor(payment.Amount, payment.Currency),
		Currency:  payment.Currency,
	}
	if payment.ProviderPaymentID != nil {
		evidence.ProviderPaymentID = *payment.ProviderPaymentID
	}
	if payment.AuthorizationCode != nil {
		evidence.AuthorizationCode = *payment.AuthorizationCode
	}
	res := e.activate(ctx, sub.ID, evidence, subscriptiondomain.SourceManualCheck)
	res.sawCandidates = true
	return res
}

func (e *Engine) tierPendingVerification(ctx context.Context, sub subscriptiondomain.Subscription, _ reconciledomain.Request) tierResult {
	since := e.clock.Now(ctx).Add(-pendingScanWindow)

	var payments []paymentdomain.Payment
	err := e.db.WithContext(ctx).
		Where("user_id = ? AND status IN ? AND created_at >= ?",
			sub.UserID,
			[]paymentdomain.PaymentStatus{paymentdomain.PaymentStatusPending, paymentdomain.PaymentStatusProcessing},
			since).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return tierResult{err: err}
	}
	if len(payments) == 0 {
		return tierResult{}
	}

	var lastErr error
	for _, payment := range payments {
		tx, err := e.gateway.VerifyTransaction(ctx, payment.ProviderPaymentRef)
		if err != nil {
			lastErr = err
			continue
		}
		if tx == nil || !tx.Succeeded() {
			continue
		}
		res := e.activate(ctx, sub.ID, tx.Evidence(), subscriptiondomain.SourceManualVerification)
		res.sawCandidates = true
		return res
	}
	return tierResult{sawCandidates: true, err: lastErr}
}

func (e *Engine) tierDeepSearch(ctx context.Context, sub subscriptiondomain.Subscription, _ reconciledomain.Request) tierResult {
	if sub.ProviderCustomerID == nil || *sub.ProviderCustomerID == "" {
		return tierResult{}
	}

	transactions, err := e.gateway.ListTransactions(ctx, *sub.ProviderCustomerID, paymentdomain.TransactionStatusSuccess)
	if err != nil {
		return tierResult{err: err}
	}
	if len(transactions) == 0 {
		return tierResult{}
	}

	for _, tx := range transactions {
		if !tx.Succeeded() {
			continue
		}

		existing, err := e.findByProviderID(ctx, tx.ID)
		if err != nil {
			return tierResult{sawCandidates: true, err: err}
		}
		if existing != nil {
			// already recorded locally; re-sync only when it belongs to
			// this subscription and the subscription never activated
			if existing.SubscriptionID != nil && *existing.SubscriptionID == sub.ID &&
				sub.Status == subscriptiondomain.SubscriptionStatusIncomplete {
				res := e.activate(ctx, sub.ID, tx.Evidence(), subscriptiondomain.SourceDeepSearchSync)
				res.sawCandidates = true
				return res
			}
			continue
		}

		evidence := tx.Evidence()
		matched, err := e.matchPendingByAmount(ctx, sub, tx)
		if err != nil {
			return tierResult{sawCandidates: true, err: err}
		}
		if matched != nil {
			// adopt the local row: provider id attaches to it, the local
			// reference stays the dedup key
			if err := e.db.WithContext(ctx).Model(&paymentdomain.Payment{}).
				Where("id = ?", matched.ID).
				Update("provider_payment_id", tx.ID).Error; err != nil {
				return tierResult{sawCandidates: true, err: err}
			}
			evidence.Reference = matched.ProviderPaymentRef
		}

		res := e.activate(ctx, sub.ID, evidence, subscriptiondomain.SourceDeepSearchRecovery)
		res.sawCandidates = true
		return res
	}
	return tierResult{sawCandidates: true}
}

func (e *Engine) findByProviderID(ctx context.Context, providerPaymentID string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := e.db.WithContext(ctx).First(&payment, "provider_payment_id = ?", providerPaymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (e *Engine) matchPendingByAmount(ctx context.Context, sub subscriptiondomain.Subscription, tx paymentdomain.Transaction) (*paymentdomain.Payment, error) {
	var payments []paymentdomain.Payment
	err := e.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND provider_payment_id IS NULL", sub.UserID, paymentdomain.PaymentStatusPending).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}

	amount := currency.FromMinor(tx.Amount, tx.Currency)
	for i := range payments {
		if payments[i].Amount.Equal(amount) && strings.EqualFold(payments[i].Currency, tx.Currency) {
			return &payments[i], nil
		}
	}
	return nil, nil
}

func (e *Engine) activate(ctx context.Context, subscriptionID snowflake.ID, evidence paymentdomain.Evidence, source subscriptiondomain.Source) tierResult {
	res, err := e.subSvc.Activate(ctx, subscriptiondomain.ActivateRequest{
		SubscriptionID: subscriptionID,
		Evidence:       evidence,
		Source:         source,
	})
	if err != nil {
		return tierResult{err: err}
	}
	return tierResult{
		activated:    true,
		subscription: res.Subscription,
		source:       source,
		reason:       res.Reason,
	}
}
