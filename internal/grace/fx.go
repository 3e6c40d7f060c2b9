package grace

import (
	"github.com/droplinklabs/droplink/internal/grace/service"
	"go.uber.org/fx"
)

var Module = fx.Module("grace",
	fx.Provide(service.NewEnforcer),
)
