package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/droplinklabs/droplink/internal/audit/domain"
	"github.com/droplinklabs/droplink/internal/clock"
	"github.com/droplinklabs/droplink/internal/currency"
	ledgerdomain "github.com/droplinklabs/droplink/internal/ledger/domain"
	paymentdomain "github.com/droplinklabs/droplink/internal/payment/domain"
	plandomain "github.com/droplinklabs/droplink/internal/plan/domain"
	"github.com/droplinklabs/droplink/internal/proration"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	ledger   ledgerdomain.Writer
	audit    auditdomain.Service
	planRepo plandomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Ledger   ledgerdomain.Writer
	Audit    auditdomain.Service
	PlanRepo plandomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,

		ledger:   p.Ledger,
		audit:    p.Audit,
		planRepo: p.PlanRepo,
	}
}

// Create is the single subscription-creation entry point. It enforces the
// one-active-ish-subscription-per-owner rule at creation time.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (subscriptiondomain.Result, error) {
	if req.UserID == 0 {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidSubscription
	}
	if req.PlanID == 0 {
		return subscriptiondomain.Result{}, plandomain.ErrInvalidPlan
	}

	plan, err := s.planRepo.FindByID(ctx, s.db, req.PlanID)
	if err != nil {
		return subscriptiondomain.Result{}, err
	}
	if plan == nil || !plan.Active {
		return subscriptiondomain.Result{}, plandomain.ErrPlanNotFound
	}

	now := s.clock.Now(ctx)
	subscription := subscriptiondomain.Subscription{
		ID:                 s.genID.Generate(),
		UserID:             req.UserID,
		PlanID:             plan.ID,
		Status:             subscriptiondomain.SubscriptionStatusIncomplete,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, plan.IntervalDays),
		NextBillingDate:    now.AddDate(0, 0, plan.IntervalDays),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if code := strings.TrimSpace(req.ProviderCustomerID); code != "" {
		subscription.ProviderCustomerID = &code
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&subscriptiondomain.Subscription{}).
			Where("user_id = ? AND status IN ?", req.UserID, subscriptiondomain.ActiveLike).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return subscriptiondomain.ErrDuplicateActiveSubscription
		}
		return tx.Create(&subscription).Error
	}); err != nil {
		return subscriptiondomain.Result{}, s.wrapTx("create", err)
	}

	s.audit.Write(ctx, auditdomain.Entry{
		UserID:     subscription.UserID.String(),
		Action:     "subscription.create",
		Resource:   "subscription",
		ResourceID: subscription.ID.String(),
		Details:    map[string]any{"plan_id": plan.ID.String(), "status": string(subscription.Status)},
	})

	return subscriptiondomain.Result{
		Subscription: subscription,
		Changed:      true,
		Reason:       "subscription created",
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (subscriptiondomain.Subscription, error) {
	if id == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidSubscription
	}
	sub, err := s.findByID(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if sub == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *sub, nil
}

// Activate drives a subscription to active on provider-confirmed payment
// evidence. Re-activating with a provider payment id that is already linked
// is a no-op, not an error.
func (s *Service) Activate(ctx context.Context, req subscriptiondomain.ActivateRequest) (subscriptiondomain.Result, error) {
	if req.SubscriptionID == 0 {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidSubscription
	}
	reference := strings.TrimSpace(req.Evidence.Reference)
	if reference == "" {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidEvidence
	}
	if req.Evidence.Amount < 0 {
		return subscriptiondomain.Result{}, paymentdomain.ErrInvalidAmount
	}
	code := strings.ToUpper(strings.TrimSpace(req.Evidence.Currency))
	if code == "" {
		return subscriptiondomain.Result{}, paymentdomain.ErrInvalidCurrency
	}

	var result subscriptiondomain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.findByID(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		providerPaymentID := strings.TrimSpace(req.Evidence.ProviderPaymentID)
		if sub.Status == subscriptiondomain.SubscriptionStatusActive {
			linked, err := s.paymentLinked(ctx, tx, sub.ID, providerPaymentID, reference)
			if err != nil {
				return err
			}
			if linked {
				result = subscriptiondomain.Result{
					Subscription: *sub,
					Changed:      false,
					Reason:       "already active with payment linked",
				}
				return nil
			}
		}

		if !activationAllowed(sub.Status) {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now(ctx)
		oldSnapshot := ledgerdomain.ActivatedSnapshot{
			Status:     string(sub.Status),
			RetryCount: sub.RetryCount,
		}

		payment, err := s.upsertSucceededPayment(ctx, tx, sub, req.Evidence, now)
		if err != nil {
			return err
		}

		sub.Status = subscriptiondomain.SubscriptionStatusActive
		sub.RetryCount = 0
		sub.GracePeriodEnd = nil
		sub.CancelAtPeriodEnd = false
		sub.UpdatedAt = now
		if err := s.updateLifecycle(ctx, tx, sub); err != nil {
			return err
		}

		newSnapshot := ledgerdomain.ActivatedSnapshot{
			Status:            string(sub.Status),
			ProviderPaymentID: payment.ProviderPaymentID,
			PaymentReference:  &payment.ProviderPaymentRef,
		}
		if err := s.ledger.Append(ctx, tx, ledgerdomain.Record{
			SubscriptionID: sub.ID,
			Action:         ledgerdomain.ActionActivated,
			Old:            oldSnapshot,
			New:            newSnapshot,
			Reason:         string(req.Source),
		}); err != nil {
			return err
		}

		result = subscriptiondomain.Result{
			Subscription: *sub,
			Changed:      true,
			Reason:       "activated via " + string(req.Source),
		}
		return nil
	})
	if err != nil {
		return subscriptiondomain.Result{}, s.wrapTx("activate", err)
	}

	if result.Changed {
		s.audit.Write(ctx, auditdomain.Entry{
			UserID:     result.Subscription.UserID.String(),
			Action:     "subscription.activate",
			Resource:   "subscription",
			ResourceID: result.Subscription.ID.String(),
			Details: map[string]any{
				"source":    string(req.Source),
				"reference": reference,
			},
		})
	}
	return result, nil
}

func (s *Service) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (subscriptiondomain.Result, error) {
	if req.SubscriptionID == 0 {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidSubscription
	}
	if req.Effective != subscriptiondomain.EffectiveImmediate && req.Effective != subscriptiondomain.EffectivePeriodEnd {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidEffective
	}

	var result subscriptiondomain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.findByID(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		now := s.clock.Now(ctx)
		oldSnapshot := ledgerdomain.CancelledSnapshot{
			Status:            string(sub.Status),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}

		switch req.Effective {
		case subscriptiondomain.EffectiveImmediate:
			if !isTransitionAllowed(sub.Status, subscriptiondomain.SubscriptionStatusCanceled) {
				return subscriptiondomain.ErrInvalidTransition
			}
			sub.Status = subscriptiondomain.SubscriptionStatusCanceled
			sub.GracePeriodEnd = nil
			sub.CancelAtPeriodEnd = false
		case subscriptiondomain.EffectivePeriodEnd:
			if sub.Status != subscriptiondomain.SubscriptionStatusActive {
				return subscriptiondomain.ErrInvalidTransition
			}
			sub.CancelAtPeriodEnd = true
		}
		sub.UpdatedAt = now

		if err := s.updateLifecycle(ctx, tx, sub); err != nil {
			return err
		}

		if err := s.ledger.Append(ctx, tx, ledgerdomain.Record{
			SubscriptionID: sub.ID,
			Action:         ledgerdomain.ActionCancelled,
			Old:            oldSnapshot,
			New: ledgerdomain.CancelledSnapshot{
				Status:            string(sub.Status),
				CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			},
			Reason: req.Reason,
		}); err != nil {
			return err
		}

		reason := "canceled immediately"
		if req.Effective == subscriptiondomain.EffectivePeriodEnd {
			reason = "cancellation scheduled at period end"
		}
		result = subscriptiondomain.Result{Subscription: *sub, Changed: true, Reason: reason}
		return nil
	})
	if err != nil {
		return subscriptiondomain.Result{}, s.wrapTx("cancel", err)
	}

	s.audit.Write(ctx, auditdomain.Entry{
		UserID:     result.Subscription.UserID.String(),
		Action:     "subscription.cancel",
		Resource:   "subscription",
		ResourceID: result.Subscription.ID.String(),
		Details: map[string]any{
			"effective": string(req.Effective),
			"reason":    req.Reason,
		},
	})
	return result, nil
}

func (s *Service) ChangePlan(ctx context.Context, req subscriptiondomain.ChangePlanRequest) (subscriptiondomain.Result, error) {
	if req.SubscriptionID == 0 {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidSubscription
	}
	if req.NewPlanID == 0 {
		return subscriptiondomain.Result{}, plandomain.ErrInvalidPlan
	}
	if req.Effective == "" {
		req.Effective = subscriptiondomain.EffectiveImmediate
	}
	if req.Effective != subscriptiondomain.EffectiveImmediate && req.Effective != subscriptiondomain.EffectivePeriodEnd {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidEffective
	}

	var result subscriptiondomain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.findByID(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if !planChangeAllowed(sub.Status) {
			return subscriptiondomain.ErrInvalidTransition
		}
		if sub.PlanID == req.NewPlanID {
			return subscriptiondomain.ErrPlanUnchanged
		}

		oldPlan, err := s.planRepo.FindByID(ctx, tx, sub.PlanID)
		if err != nil {
			return err
		}
		newPlan, err := s.planRepo.FindByID(ctx, tx, req.NewPlanID)
		if err != nil {
			return err
		}
		if oldPlan == nil || newPlan == nil || !newPlan.Active {
			return plandomain.ErrPlanNotFound
		}

		now := s.clock.Now(ctx)
		prorationNet := decimal.Zero

		if req.Prorate && req.Effective == subscriptiondomain.EffectiveImmediate {
			res, err := proration.Prorate(oldPlan.Price, newPlan.Price, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now)
			if err != nil {
				return err
			}
			prorationNet = res.Net

			switch res.Kind {
			case proration.KindCharge:
				if err := s.insertProrationPayment(ctx, tx, sub, res.Amount, newPlan.Currency, paymentdomain.PaymentStatusPending, nil, now, "prorate_charge_"); err != nil {
					return err
				}
			case proration.KindCredit:
				paidAt := now
				if err := s.insertProrationPayment(ctx, tx, sub, res.Amount, newPlan.Currency, paymentdomain.PaymentStatusSucceeded, &paidAt, now, "prorate_credit_"); err != nil {
					return err
				}
			}
		}

		oldSnapshot := ledgerdomain.PlanChangedSnapshot{
			PlanID:          oldPlan.ID.String(),
			PlanCode:        oldPlan.Code,
			Price:           oldPlan.Price,
			Currency:        oldPlan.Currency,
			ProrationAmount: decimal.Zero,
		}

		sub.PlanID = newPlan.ID
		sub.UpdatedAt = now
		if err := tx.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
			Where("id = ?", sub.ID).
			Updates(map[string]any{"plan_id": sub.PlanID, "updated_at": sub.UpdatedAt}).Error; err != nil {
			return err
		}

		if err := s.ledger.Append(ctx, tx, ledgerdomain.Record{
			SubscriptionID: sub.ID,
			Action:         ledgerdomain.ActionPlanChanged,
			Old:            oldSnapshot,
			New: ledgerdomain.PlanChangedSnapshot{
				PlanID:          newPlan.ID.String(),
				PlanCode:        newPlan.Code,
				Price:           newPlan.Price,
				Currency:        newPlan.Currency,
				ProrationAmount: prorationNet,
			},
			Reason: fmt.Sprintf("plan changed from %s to %s", oldPlan.Code, newPlan.Code),
		}); err != nil {
			return err
		}

		result = subscriptiondomain.Result{
			Subscription: *sub,
			Changed:      true,
			Reason:       fmt.Sprintf("plan changed to %s", newPlan.Code),
		}
		return nil
	})
	if err != nil {
		return subscriptiondomain.Result{}, s.wrapTx("change_plan", err)
	}

	s.audit.Write(ctx, auditdomain.Entry{
		UserID:     result.Subscription.UserID.String(),
		Action:     "subscription.change_plan",
		Resource:   "subscription",
		ResourceID: result.Subscription.ID.String(),
		Details: map[string]any{
			"new_plan_id": req.NewPlanID.String(),
			"prorate":     req.Prorate,
			"effective":   string(req.Effective),
		},
	})
	return result, nil
}

// SetGracePeriod is called by the dunning flow when recovery attempts are
// exhausted but service should continue for a bounded window.
func (s *Service) SetGracePeriod(ctx context.Context, subscriptionID snowflake.ID, days int) (subscriptiondomain.Result, error) {
	if subscriptionID == 0 {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidSubscription
	}
	if days <= 0 {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidGraceDays
	}

	var result subscriptiondomain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.findByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if !isTransitionAllowed(sub.Status, subscriptiondomain.SubscriptionStatusGracePeriod) {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now(ctx)
		oldSnapshot := ledgerdomain.GracePeriodSnapshot{
			Status:         string(sub.Status),
			GracePeriodEnd: sub.GracePeriodEnd,
		}

		end := now.AddDate(0, 0, days)
		sub.Status = subscriptiondomain.SubscriptionStatusGracePeriod
		sub.GracePeriodEnd = &end
		sub.UpdatedAt = now
		if err := s.updateLifecycle(ctx, tx, sub); err != nil {
			return err
		}

		if err := s.ledger.Append(ctx, tx, ledgerdomain.Record{
			SubscriptionID: sub.ID,
			Action:         ledgerdomain.ActionGracePeriodSet,
			Old:            oldSnapshot,
			New: ledgerdomain.GracePeriodSnapshot{
				Status:         string(sub.Status),
				GracePeriodEnd: sub.GracePeriodEnd,
			},
			Reason: fmt.Sprintf("grace period of %d days", days),
		}); err != nil {
			return err
		}

		result = subscriptiondomain.Result{
			Subscription: *sub,
			Changed:      true,
			Reason:       fmt.Sprintf("grace period until %s", end.Format(time.RFC3339)),
		}
		return nil
	})
	if err != nil {
		return subscriptiondomain.Result{}, s.wrapTx("set_grace_period", err)
	}

	s.audit.Write(ctx, auditdomain.Entry{
		UserID:     result.Subscription.UserID.String(),
		Action:     "subscription.grace_period_set",
		Resource:   "subscription",
		ResourceID: result.Subscription.ID.String(),
		Details:    map[string]any{"days": days},
	})
	return result, nil
}

// MarkPastDue flags a failed renewal charge and bumps the retry counter.
func (s *Service) MarkPastDue(ctx context.Context, subscriptionID snowflake.ID, reason string) (subscriptiondomain.Result, error) {
	if subscriptionID == 0 {
		return subscriptiondomain.Result{}, subscriptiondomain.ErrInvalidSubscription
	}

	var result subscriptiondomain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.findByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if sub.Status == subscriptiondomain.SubscriptionStatusPastDue {
			sub.RetryCount++
			sub.UpdatedAt = s.clock.Now(ctx)
			if err := s.updateLifecycle(ctx, tx, sub); err != nil {
				return err
			}
			result = subscriptiondomain.Result{Subscription: *sub, Changed: true, Reason: "retry recorded"}
			return nil
		}
		if !isTransitionAllowed(sub.Status, subscriptiondomain.SubscriptionStatusPastDue) {
			return subscriptiondomain.ErrInvalidTransition
		}

		oldSnapshot := ledgerdomain.StatusChangedSnapshot{Status: string(sub.Status)}
		sub.Status = subscriptiondomain.SubscriptionStatusPastDue
		sub.RetryCount++
		sub.UpdatedAt = s.clock.Now(ctx)
		if err := s.updateLifecycle(ctx, tx, sub); err != nil {
			return err
		}

		if err := s.ledger.Append(ctx, tx, ledgerdomain.Record{
			SubscriptionID: sub.ID,
			Action:         ledgerdomain.ActionStatusChanged,
			Old:            oldSnapshot,
			New:            ledgerdomain.StatusChangedSnapshot{Status: string(sub.Status)},
			Reason:         reason,
		}); err != nil {
			return err
		}

		result = subscriptiondomain.Result{Subscription: *sub, Changed: true, Reason: "marked past due"}
		return nil
	})
	if err != nil {
		return subscriptiondomain.Result{}, s.wrapTx("mark_past_due", err)
	}
	return result, nil
}

func (s *Service) findByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := tx.WithContext(ctx).First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// paymentLinked reports whether a succeeded payment for this subscription
// already matches the activation evidence. Evidence without a provider
// payment id is matched by reference instead, so re-running a local scan
// over an already linked payment stays a no-op.
func (s *Service) paymentLinked(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, providerPaymentID, reference string) (bool, error) {
	query := tx.WithContext(ctx).Model(&paymentdomain.Payment{}).
		Where("subscription_id = ? AND status = ?", subscriptionID, paymentdomain.PaymentStatusSucceeded)
	if providerPaymentID != "" {
		query = query.Where("provider_payment_id = ?", providerPaymentID)
	} else {
		query = query.Where("provider_payment_ref = ?", reference)
	}
	var count int64
	err := query.Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// upsertSucceededPayment finds the local payment by provider payment id or
// reference and marks it succeeded and linked; when no local row exists the
// evidence itself becomes a new payment row.
func (s *Service) upsertSucceededPayment(
	ctx context.Context,
	tx *gorm.DB,
	sub *subscriptiondomain.Subscription,
	evidence paymentdomain.Evidence,
	now time.Time,
) (*paymentdomain.Payment, error) {
	reference := strings.TrimSpace(evidence.Reference)
	providerPaymentID := strings.TrimSpace(evidence.ProviderPaymentID)
	code := strings.ToUpper(strings.TrimSpace(evidence.Currency))
	amount := currency.FromMinor(evidence.Amount, code)

	var payment paymentdomain.Payment
	found := false

	if providerPaymentID != "" {
		err := tx.WithContext(ctx).First(&payment, "provider_payment_id = ?", providerPaymentID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		found = err == nil
	}
	if !found {
		err := tx.WithContext(ctx).First(&payment, "provider_payment_ref = ?", reference).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		found = err == nil
	}

	if !found {
		payment = paymentdomain.Payment{
			ID:                 s.genID.Generate(),
			UserID:             sub.UserID,
			ProviderPaymentRef: reference,
			CreatedAt:          now,
		}
	}

	payment.SubscriptionID = &sub.ID
	payment.Status = paymentdomain.PaymentStatusSucceeded
	payment.Amount = amount
	payment.Currency = code
	payment.PaidAt = &now
	payment.UpdatedAt = now
	if providerPaymentID != "" {
		payment.ProviderPaymentID = &providerPaymentID
	}
	if auth := strings.TrimSpace(evidence.AuthorizationCode); auth != "" {
		payment.AuthorizationCode = &auth
	}

	if err := tx.WithContext(ctx).Save(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Service) insertProrationPayment(
	ctx context.Context,
	tx *gorm.DB,
	sub *subscriptiondomain.Subscription,
	amount decimal.Decimal,
	currencyCode string,
	status paymentdomain.PaymentStatus,
	paidAt *time.Time,
	now time.Time,
	refPrefix string,
) error {
	payment := paymentdomain.Payment{
		ID:                 s.genID.Generate(),
		UserID:             sub.UserID,
		SubscriptionID:     &sub.ID,
		Amount:             amount,
		Currency:           strings.ToUpper(strings.TrimSpace(currencyCode)),
		Status:             status,
		ProviderPaymentRef: refPrefix + uuid.NewString(),
		PaidAt:             paidAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return tx.WithContext(ctx).Create(&payment).Error
}

func (s *Service) updateLifecycle(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return tx.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"status":               sub.Status,
			"retry_count":          sub.RetryCount,
			"grace_period_end":     sub.GracePeriodEnd,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
			"plan_id":              sub.PlanID,
			"updated_at":           sub.UpdatedAt,
		}).Error
}

// wrapTx keeps domain sentinels intact and wraps everything else as a
// transaction failure.
func (s *Service) wrapTx(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		subscriptiondomain.ErrInvalidSubscription,
		subscriptiondomain.ErrSubscriptionNotFound,
		subscriptiondomain.ErrInvalidTransition,
		subscriptiondomain.ErrInvalidEffective,
		subscriptiondomain.ErrInvalidEvidence,
		subscriptiondomain.ErrInvalidGraceDays,
		subscriptiondomain.ErrDuplicateActiveSubscription,
		subscriptiondomain.ErrPlanUnchanged,
		plandomain.ErrPlanNotFound,
		plandomain.ErrInvalidPlan,
		paymentdomain.ErrInvalidAmount,
		paymentdomain.ErrInvalidCurrency,
		proration.ErrInvalidPeriod,
		proration.ErrNegativePrice,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	s.log.Error("transaction failed", zap.String("op", op), zap.Error(err))
	return &subscriptiondomain.TransactionError{Op: op, Err: err}
}

func activationAllowed(current subscriptiondomain.SubscriptionStatus) bool {
	switch current {
	case subscriptiondomain.SubscriptionStatusIncomplete,
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusPastDue,
		subscriptiondomain.SubscriptionStatusGracePeriod:
		return true
	default:
		return false
	}
}

func planChangeAllowed(current subscriptiondomain.SubscriptionStatus) bool {
	switch current {
	case subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusPastDue,
		subscriptiondomain.SubscriptionStatusGracePeriod:
		return true
	default:
		return false
	}
}

func isTransitionAllowed(current, target subscriptiondomain.SubscriptionStatus) bool {
	switch current {
	case subscriptiondomain.SubscriptionStatusIncomplete:
		return target == subscriptiondomain.SubscriptionStatusActive
	case subscriptiondomain.SubscriptionStatusActive:
		return target == subscriptiondomain.SubscriptionStatusPastDue ||
			target == subscriptiondomain.SubscriptionStatusGracePeriod ||
			target == subscriptiondomain.SubscriptionStatusCanceled
	case subscriptiondomain.SubscriptionStatusPastDue:
		return target == subscriptiondomain.SubscriptionStatusActive ||
			target == subscriptiondomain.SubscriptionStatusGracePeriod
	case subscriptiondomain.SubscriptionStatusGracePeriod:
		return target == subscriptiondomain.SubscriptionStatusActive ||
			target == subscriptiondomain.SubscriptionStatusCanceled
	default:
		return false
	}
}
