package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/droplinklabs/droplink/internal/clock"
	ledgerdomain "github.com/droplinklabs/droplink/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Writer struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

type WriterParam struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewWriter(p WriterParam) ledgerdomain.Writer {
	return &Writer{
		log:   p.Log.Named("ledger.writer"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (w *Writer) Append(ctx context.Context, tx *gorm.DB, rec ledgerdomain.Record) error {
	oldValue, err := marshalPayload(rec.Old)
	if err != nil {
		return err
	}
	newValue, err := marshalPayload(rec.New)
	if err != nil {
		return err
	}

	entry := ledgerdomain.Entry{
		ID:             w.genID.Generate(),
		SubscriptionID: rec.SubscriptionID,
		Action:         rec.Action,
		OldValue:       oldValue,
		NewValue:       newValue,
		Reason:         rec.Reason,
		CreatedAt:      w.clock.Now(ctx),
	}
	return tx.WithContext(ctx).Create(&entry).Error
}

func (w *Writer) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]ledgerdomain.Entry, error) {
	var entries []ledgerdomain.Entry
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func marshalPayload(p ledgerdomain.Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}
