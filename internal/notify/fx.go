package notify

import (
	notifydomain "github.com/droplinklabs/droplink/internal/notify/domain"
	"github.com/droplinklabs/droplink/internal/notify/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("notify",
	fx.Provide(
		webhook.NewNotifier,
		func(n *webhook.Notifier) notifydomain.Notifier { return n },
	),
)
