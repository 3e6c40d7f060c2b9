package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/droplinklabs/droplink/internal/clock"
	ledgerdomain "github.com/droplinklabs/droplink/internal/ledger/domain"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestWriter(t *testing.T) (ledgerdomain.Writer, *gorm.DB, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.Entry{}))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	w := NewWriter(WriterParam{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.Fixed{T: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
	})
	return w, db, node
}

func TestAppendAndDecode(t *testing.T) {
	w, db, node := newTestWriter(t)
	subID := node.Generate()

	err := db.Transaction(func(tx *gorm.DB) error {
		return w.Append(context.Background(), tx, ledgerdomain.Record{
			SubscriptionID: subID,
			Action:         ledgerdomain.ActionPlanChanged,
			Old: ledgerdomain.PlanChangedSnapshot{
				PlanID: "1", PlanCode: "basic",
				Price: decimal.RequireFromString("10.00"), Currency: "USD",
				ProrationAmount: decimal.Zero,
			},
			New: ledgerdomain.PlanChangedSnapshot{
				PlanID: "2", PlanCode: "pro",
				Price: decimal.RequireFromString("20.00"), Currency: "USD",
				ProrationAmount: decimal.RequireFromString("6.67"),
			},
			Reason: "plan changed from basic to pro",
		})
	})
	require.NoError(t, err)

	entries, err := w.ListBySubscription(context.Background(), db, subID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	payload, err := ledgerdomain.DecodePayload(entries[0].Action, []byte(entries[0].NewValue))
	require.NoError(t, err)
	snapshot, ok := payload.(ledgerdomain.PlanChangedSnapshot)
	require.True(t, ok)
	require.Equal(t, "pro", snapshot.PlanCode)
	require.True(t, snapshot.ProrationAmount.Equal(decimal.RequireFromString("6.67")))
}

func TestAppendRollsBackWithCaller(t *testing.T) {
	w, db, node := newTestWriter(t)
	subID := node.Generate()

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, w.Append(context.Background(), tx, ledgerdomain.Record{
			SubscriptionID: subID,
			Action:         ledgerdomain.ActionStatusChanged,
			New:            ledgerdomain.StatusChangedSnapshot{Status: "past_due"},
			Reason:         "charge declined",
		}))
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	entries, err := w.ListBySubscription(context.Background(), db, subID)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDecodeUnknownAction(t *testing.T) {
	_, err := ledgerdomain.DecodePayload(ledgerdomain.Action("mystery"), []byte(`{}`))
	require.ErrorIs(t, err, ledgerdomain.ErrUnknownAction)
}

func TestDecodeEmptyPayload(t *testing.T) {
	payload, err := ledgerdomain.DecodePayload(ledgerdomain.ActionActivated, nil)
	require.NoError(t, err)
	require.Nil(t, payload)
}
