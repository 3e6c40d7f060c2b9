package reconcile

import (
	"github.com/droplinklabs/droplink/internal/reconcile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile",
	fx.Provide(service.NewEngine),
)
