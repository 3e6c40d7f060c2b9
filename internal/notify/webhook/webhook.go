package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/droplinklabs/droplink/internal/config"
	notifydomain "github.com/droplinklabs/droplink/internal/notify/domain"
	"go.uber.org/zap"
)

type Notifier struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewNotifier(cfg config.Config, log *zap.Logger) *Notifier {
	return &Notifier{
		url: cfg.NotifyWebhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.Named("notify.webhook"),
	}
}

func (n *Notifier) SendWarning(ctx context.Context, warning notifydomain.Warning) error {
	if n.url == "" {
		n.log.Debug("no webhook configured, dropping warning",
			zap.String("subscription_id", warning.SubscriptionID.String()))
		return nil
	}

	msg := map[string]any{
		"type":    "grace_period_warning",
		"warning": warning,
		"text": fmt.Sprintf("subscription %s expires in %d day(s)",
			warning.SubscriptionID, warning.DaysRemaining),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", notifydomain.ErrNotifyFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status=%d", notifydomain.ErrNotifyFailed, resp.StatusCode)
	}
	return nil
}
