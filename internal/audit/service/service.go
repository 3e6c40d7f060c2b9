package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/droplinklabs/droplink/internal/audit/domain"
	"github.com/droplinklabs/droplink/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParam) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Write(ctx context.Context, entry auditdomain.Entry) {
	userID := strings.TrimSpace(entry.UserID)
	if userID == "" {
		userID = auditdomain.SystemActor
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		UserID:     userID,
		Action:     entry.Action,
		Resource:   entry.Resource,
		ResourceID: entry.ResourceID,
		Details:    datatypes.JSONMap(entry.Details),
		CreatedAt:  s.clock.Now(ctx),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.String("resource_id", entry.ResourceID),
			zap.Error(err))
	}
}
