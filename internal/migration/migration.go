package migration

import (
	auditdomain "github.com/droplinklabs/droplink/internal/audit/domain"
	ledgerdomain "github.com/droplinklabs/droplink/internal/ledger/domain"
	paymentdomain "github.com/droplinklabs/droplink/internal/payment/domain"
	plandomain "github.com/droplinklabs/droplink/internal/plan/domain"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run applies the schema for every domain model.
func Run(db *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")
	log.Info("applying schema")
	return db.AutoMigrate(
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Payment{},
		&ledgerdomain.Entry{},
		&auditdomain.AuditLog{},
	)
}

var Module = fx.Module("migration",
	fx.Invoke(Run),
)
