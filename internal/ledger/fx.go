package ledger

import (
	"github.com/droplinklabs/droplink/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.writer",
	fx.Provide(service.NewWriter),
)
