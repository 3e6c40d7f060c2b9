package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/droplinklabs/droplink/internal/audit/domain"
	auditservice "github.com/droplinklabs/droplink/internal/audit/service"
	"github.com/droplinklabs/droplink/internal/clock"
	ledgerdomain "github.com/droplinklabs/droplink/internal/ledger/domain"
	ledgerservice "github.com/droplinklabs/droplink/internal/ledger/service"
	paymentdomain "github.com/droplinklabs/droplink/internal/payment/domain"
	plandomain "github.com/droplinklabs/droplink/internal/plan/domain"
	planrepository "github.com/droplinklabs/droplink/internal/plan/repository"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc    subscriptiondomain.Service
	db     *gorm.DB
	ledger ledgerdomain.Writer
	node   *snowflake.Node
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Payment{},
		&ledgerdomain.Entry{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	log := zap.NewNop()
	clk := clock.Fixed{T: now}

	ledger := ledgerservice.NewWriter(ledgerservice.WriterParam{Log: log, GenID: node, Clock: clk})
	audit := auditservice.NewService(auditservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: clk})

	svc := NewService(ServiceParam{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Ledger:   ledger,
		Audit:    audit,
		PlanRepo: planrepository.Provide(),
	})

	return &testEnv{svc: svc, db: db, ledger: ledger, node: node, now: now}
}

func (e *testEnv) createPlan(t *testing.T, code string, price string, intervalDays int) *plandomain.Plan {
	t.Helper()
	plan := &plandomain.Plan{
		ID:           e.node.Generate(),
		Code:         code,
		Name:         code,
		Price:        decimal.RequireFromString(price),
		Currency:     "USD",
		IntervalDays: intervalDays,
		Active:       true,
		CreatedAt:    e.now,
		UpdatedAt:    e.now,
	}
	require.NoError(t, e.db.Create(plan).Error)
	return plan
}

func (e *testEnv) createSubscription(t *testing.T, planID snowflake.ID) subscriptiondomain.Subscription {
	t.Helper()
	res, err := e.svc.Create(context.Background(), subscriptiondomain.CreateRequest{
		UserID: e.node.Generate(),
		PlanID: planID,
	})
	require.NoError(t, err)
	return res.Subscription
}

func (e *testEnv) historyFor(t *testing.T, subscriptionID snowflake.ID) []ledgerdomain.Entry {
	t.Helper()
	entries, err := e.ledger.ListBySubscription(context.Background(), e.db, subscriptionID)
	require.NoError(t, err)
	return entries
}

func evidence(reference, providerPaymentID string, minor int64) paymentdomain.Evidence {
	return paymentdomain.Evidence{
		Reference:         reference,
		ProviderPaymentID: providerPaymentID,
		Amount:            minor,
		Currency:          "USD",
	}
}

func TestCreateRejectsSecondActiveLikeSubscription(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)

	res, err := env.svc.Create(context.Background(), subscriptiondomain.CreateRequest{
		UserID: 42, PlanID: plan.ID,
	})
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusIncomplete, res.Subscription.Status)
	require.Equal(t, env.now.AddDate(0, 0, 30), res.Subscription.CurrentPeriodEnd)

	_, err = env.svc.Create(context.Background(), subscriptiondomain.CreateRequest{
		UserID: 42, PlanID: plan.ID,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrDuplicateActiveSubscription)
}

func TestCreateRejectsUnknownPlan(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Create(context.Background(), subscriptiondomain.CreateRequest{
		UserID: 1, PlanID: env.node.Generate(),
	})
	require.ErrorIs(t, err, plandomain.ErrPlanNotFound)
}

func TestActivateFromIncomplete(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)

	res, err := env.svc.Activate(context.Background(), subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID,
		Evidence:       evidence("ref_123", "pay_9", 1000),
		Source:         subscriptiondomain.SourceWebhook,
	})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, res.Subscription.Status)
	require.Zero(t, res.Subscription.RetryCount)
	require.Nil(t, res.Subscription.GracePeriodEnd)

	var payment paymentdomain.Payment
	require.NoError(t, env.db.First(&payment, "provider_payment_ref = ?", "ref_123").Error)
	require.Equal(t, paymentdomain.PaymentStatusSucceeded, payment.Status)
	require.NotNil(t, payment.SubscriptionID)
	require.Equal(t, sub.ID, *payment.SubscriptionID)
	require.True(t, payment.Amount.Equal(decimal.RequireFromString("10.00")))

	entries := env.historyFor(t, sub.ID)
	require.Len(t, entries, 1)
	require.Equal(t, ledgerdomain.ActionActivated, entries[0].Action)
	require.Equal(t, string(subscriptiondomain.SourceWebhook), entries[0].Reason)
}

func TestActivateIsIdempotentOnLinkedPayment(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)

	req := subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID,
		Evidence:       evidence("ref_abc", "pay_1", 1000),
		Source:         subscriptiondomain.SourceManualCheck,
	}
	first, err := env.svc.Activate(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Changed)

	second, err := env.svc.Activate(context.Background(), req)
	require.NoError(t, err)
	require.False(t, second.Changed)

	// repeated delivery must not write a second history row
	require.Len(t, env.historyFor(t, sub.ID), 1)

	var count int64
	require.NoError(t, env.db.Model(&paymentdomain.Payment{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestActivateIsIdempotentWithoutProviderPaymentID(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)

	// evidence from a local scan carries only the reference
	req := subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID,
		Evidence:       evidence("ref_local_only", "", 1000),
		Source:         subscriptiondomain.SourceManualCheck,
	}
	first, err := env.svc.Activate(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Changed)

	second, err := env.svc.Activate(context.Background(), req)
	require.NoError(t, err)
	require.False(t, second.Changed)

	require.Len(t, env.historyFor(t, sub.ID), 1)
}

func TestActivateUpdatesExistingPendingPayment(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)

	pending := paymentdomain.Payment{
		ID:                 env.node.Generate(),
		UserID:             sub.UserID,
		Amount:             decimal.RequireFromString("10.00"),
		Currency:           "USD",
		Status:             paymentdomain.PaymentStatusPending,
		ProviderPaymentRef: "ref_pending",
		CreatedAt:          env.now,
		UpdatedAt:          env.now,
	}
	require.NoError(t, env.db.Create(&pending).Error)

	_, err := env.svc.Activate(context.Background(), subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID,
		Evidence:       evidence("ref_pending", "pay_2", 1000),
		Source:         subscriptiondomain.SourceManualVerification,
	})
	require.NoError(t, err)

	var reloaded paymentdomain.Payment
	require.NoError(t, env.db.First(&reloaded, "id = ?", pending.ID).Error)
	require.Equal(t, paymentdomain.PaymentStatusSucceeded, reloaded.Status)
	require.NotNil(t, reloaded.ProviderPaymentID)
	require.Equal(t, "pay_2", *reloaded.ProviderPaymentID)
	require.NotNil(t, reloaded.PaidAt)

	var count int64
	require.NoError(t, env.db.Model(&paymentdomain.Payment{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestActivateRejectsCanceledSubscription(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)

	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", sub.ID).
		Update("status", subscriptiondomain.SubscriptionStatusCanceled).Error)

	_, err := env.svc.Activate(context.Background(), subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID,
		Evidence:       evidence("ref_x", "pay_x", 1000),
		Source:         subscriptiondomain.SourceWebhook,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestActivateRejectsEmptyReference(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Activate(context.Background(), subscriptiondomain.ActivateRequest{
		SubscriptionID: env.node.Generate(),
		Evidence:       paymentdomain.Evidence{Currency: "USD"},
		Source:         subscriptiondomain.SourceWebhook,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidEvidence)
}

func TestCancelImmediate(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)
	mustActivate(t, env, sub.ID, "ref_c1", "pay_c1")

	res, err := env.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		SubscriptionID: sub.ID,
		Reason:         "user requested",
		Effective:      subscriptiondomain.EffectiveImmediate,
	})
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, res.Subscription.Status)
	require.Nil(t, res.Subscription.GracePeriodEnd)

	entries := env.historyFor(t, sub.ID)
	require.Len(t, entries, 2)
	require.Equal(t, ledgerdomain.ActionCancelled, entries[len(entries)-1].Action)
	require.Equal(t, "user requested", entries[len(entries)-1].Reason)
}

func TestCancelAtPeriodEndKeepsActive(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)
	mustActivate(t, env, sub.ID, "ref_c2", "pay_c2")

	res, err := env.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		SubscriptionID: sub.ID,
		Reason:         "downgrade later",
		Effective:      subscriptiondomain.EffectivePeriodEnd,
	})
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, res.Subscription.Status)
	require.True(t, res.Subscription.CancelAtPeriodEnd)
}

func TestCancelRejectsIncomplete(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)

	_, err := env.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		SubscriptionID: sub.ID,
		Effective:      subscriptiondomain.EffectiveImmediate,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestChangePlanWithProrationCharge(t *testing.T) {
	env := newTestEnv(t)
	basic := env.createPlan(t, "basic", "10.00", 30)
	pro := env.createPlan(t, "pro", "20.00", 30)
	sub := env.createSubscription(t, basic.ID)
	mustActivate(t, env, sub.ID, "ref_p1", "pay_p1")

	// move the clock 10 days into the 30-day period
	changeAt := env.now.AddDate(0, 0, 10)
	svc := env.svc.(*Service)
	svc.clock = clock.Fixed{T: changeAt}

	res, err := env.svc.ChangePlan(context.Background(), subscriptiondomain.ChangePlanRequest{
		SubscriptionID: sub.ID,
		NewPlanID:      pro.ID,
		Effective:      subscriptiondomain.EffectiveImmediate,
		Prorate:        true,
	})
	require.NoError(t, err)
	require.Equal(t, pro.ID, res.Subscription.PlanID)

	var payment paymentdomain.Payment
	require.NoError(t, env.db.
		Where("provider_payment_ref LIKE ?", "prorate_charge_%").
		First(&payment).Error)
	require.Equal(t, paymentdomain.PaymentStatusPending, payment.Status)
	require.True(t, payment.Amount.Equal(decimal.RequireFromString("6.67")), payment.Amount.String())

	entries := env.historyFor(t, sub.ID)
	last := entries[len(entries)-1]
	require.Equal(t, ledgerdomain.ActionPlanChanged, last.Action)

	payload, err := ledgerdomain.DecodePayload(last.Action, []byte(last.NewValue))
	require.NoError(t, err)
	snapshot, ok := payload.(ledgerdomain.PlanChangedSnapshot)
	require.True(t, ok)
	require.Equal(t, "pro", snapshot.PlanCode)
	require.True(t, snapshot.ProrationAmount.Equal(decimal.RequireFromString("6.67")))
}

func TestChangePlanWithProrationCredit(t *testing.T) {
	env := newTestEnv(t)
	pro := env.createPlan(t, "pro", "20.00", 30)
	basic := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, pro.ID)
	mustActivate(t, env, sub.ID, "ref_p2", "pay_p2")

	changeAt := env.now.AddDate(0, 0, 10)
	env.svc.(*Service).clock = clock.Fixed{T: changeAt}

	_, err := env.svc.ChangePlan(context.Background(), subscriptiondomain.ChangePlanRequest{
		SubscriptionID: sub.ID,
		NewPlanID:      basic.ID,
		Effective:      subscriptiondomain.EffectiveImmediate,
		Prorate:        true,
	})
	require.NoError(t, err)

	// the credit amount stays positive, direction lives in the reference
	var payment paymentdomain.Payment
	require.NoError(t, env.db.
		Where("provider_payment_ref LIKE ?", "prorate_credit_%").
		First(&payment).Error)
	require.Equal(t, paymentdomain.PaymentStatusSucceeded, payment.Status)
	require.True(t, payment.Amount.Equal(decimal.RequireFromString("6.67")), payment.Amount.String())
	require.NotNil(t, payment.PaidAt)
}

func TestChangePlanSamePlanRejected(t *testing.T) {
	env := newTestEnv(t)
	basic := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, basic.ID)
	mustActivate(t, env, sub.ID, "ref_p3", "pay_p3")

	_, err := env.svc.ChangePlan(context.Background(), subscriptiondomain.ChangePlanRequest{
		SubscriptionID: sub.ID,
		NewPlanID:      basic.ID,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrPlanUnchanged)
}

func TestChangePlanWithoutProrationWritesNoPayment(t *testing.T) {
	env := newTestEnv(t)
	basic := env.createPlan(t, "basic", "10.00", 30)
	pro := env.createPlan(t, "pro", "20.00", 30)
	sub := env.createSubscription(t, basic.ID)
	mustActivate(t, env, sub.ID, "ref_p4", "pay_p4")

	_, err := env.svc.ChangePlan(context.Background(), subscriptiondomain.ChangePlanRequest{
		SubscriptionID: sub.ID,
		NewPlanID:      pro.ID,
		Effective:      subscriptiondomain.EffectiveImmediate,
		Prorate:        false,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&paymentdomain.Payment{}).
		Where("provider_payment_ref LIKE ?", "prorate_%").
		Count(&count).Error)
	require.Zero(t, count)
}

func TestSetGracePeriod(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)
	mustActivate(t, env, sub.ID, "ref_g1", "pay_g1")

	res, err := env.svc.SetGracePeriod(context.Background(), sub.ID, 7)
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusGracePeriod, res.Subscription.Status)
	require.NotNil(t, res.Subscription.GracePeriodEnd)
	require.Equal(t, env.now.AddDate(0, 0, 7), res.Subscription.GracePeriodEnd.UTC())

	_, err = env.svc.SetGracePeriod(context.Background(), sub.ID, 0)
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidGraceDays)
}

func TestSetGracePeriodRejectsIncomplete(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)

	_, err := env.svc.SetGracePeriod(context.Background(), sub.ID, 7)
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestMarkPastDueIncrementsRetryCount(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)
	mustActivate(t, env, sub.ID, "ref_d1", "pay_d1")

	res, err := env.svc.MarkPastDue(context.Background(), sub.ID, "charge declined")
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusPastDue, res.Subscription.Status)
	require.Equal(t, 1, res.Subscription.RetryCount)

	res, err = env.svc.MarkPastDue(context.Background(), sub.ID, "charge declined")
	require.NoError(t, err)
	require.Equal(t, 2, res.Subscription.RetryCount)
}

func TestActivateRecoversPastDue(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, "basic", "10.00", 30)
	sub := env.createSubscription(t, plan.ID)
	mustActivate(t, env, sub.ID, "ref_r1", "pay_r1")

	_, err := env.svc.MarkPastDue(context.Background(), sub.ID, "charge declined")
	require.NoError(t, err)

	res, err := env.svc.Activate(context.Background(), subscriptiondomain.ActivateRequest{
		SubscriptionID: sub.ID,
		Evidence:       evidence("ref_r2", "pay_r2", 1000),
		Source:         subscriptiondomain.SourceDeepSearchRecovery,
	})
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, res.Subscription.Status)
	require.Zero(t, res.Subscription.RetryCount)
}

func mustActivate(t *testing.T, env *testEnv, subscriptionID snowflake.ID, reference, providerPaymentID string) {
	t.Helper()
	_, err := env.svc.Activate(context.Background(), subscriptiondomain.ActivateRequest{
		SubscriptionID: subscriptionID,
		Evidence:       evidence(reference, providerPaymentID, 1000),
		Source:         subscriptiondomain.SourceWebhook,
	})
	require.NoError(t, err)
}
