package subscription

import (
	"github.com/droplinklabs/droplink/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(service.NewService),
)
