package payment

import (
	"github.com/droplinklabs/droplink/internal/payment/domain"
	"github.com/droplinklabs/droplink/internal/payment/gateway/paystack"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(func(c *paystack.Client) domain.Gateway { return c }),
	fx.Provide(paystack.NewClient),
)
