// Package paystack implements the provider gateway contract against the
// Paystack REST API.
package paystack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/droplinklabs/droplink/internal/config"
	paymentdomain "github.com/droplinklabs/droplink/internal/payment/domain"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.paystack.co"

type Client struct {
	secretKey string
	baseURL   string
	client    *http.Client
	log       *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PaystackBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		secretKey: strings.TrimSpace(cfg.PaystackSecretKey),
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 12 * time.Second},
		log:       log.Named("paystack"),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transactionData struct {
	ID            int64  `json:"id"`
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaidAt        string `json:"paid_at"`
	Authorization struct {
		AuthorizationCode string `json:"authorization_code"`
		Reusable          bool   `json:"reusable"`
	} `json:"authorization"`
	Customer struct {
		CustomerCode string `json:"customer_code"`
	} `json:"customer"`
}

func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*paymentdomain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	var data transactionData
	if err := c.get(ctx, "/transaction/verify/"+url.PathEscape(reference), &data); err != nil {
		return nil, err
	}

	tx := toTransaction(data)
	return &tx, nil
}

func (c *Client) ListTransactions(ctx context.Context, customerCode string, status string) ([]paymentdomain.Transaction, error) {
	customerCode = strings.TrimSpace(customerCode)
	if customerCode == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	values := url.Values{}
	values.Set("customer", customerCode)
	if status = strings.TrimSpace(status); status != "" {
		values.Set("status", status)
	}

	var rows []transactionData
	if err := c.get(ctx, "/transaction?"+values.Encode(), &rows); err != nil {
		return nil, err
	}

	out := make([]paymentdomain.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toTransaction(row))
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.secretKey == "" {
		return paymentdomain.ErrProviderFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: invalid response body", paymentdomain.ErrProviderFailed)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		message := strings.TrimSpace(env.Message)
		if message == "" {
			message = "status " + strconv.Itoa(resp.StatusCode)
		}
		c.log.Warn("paystack request failed",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("message", message))
		return fmt.Errorf("%w: %s", paymentdomain.ErrProviderFailed, message)
	}

	return json.Unmarshal(env.Data, out)
}

func toTransaction(data transactionData) paymentdomain.Transaction {
	paidAt, _ := time.Parse(time.RFC3339, data.PaidAt)
	return paymentdomain.Transaction{
		ID:                strconv.FormatInt(data.ID, 10),
		Reference:         strings.TrimSpace(data.Reference),
		Status:            strings.ToLower(strings.TrimSpace(data.Status)),
		Amount:            data.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(data.Currency)),
		AuthorizationCode: strings.TrimSpace(data.Authorization.AuthorizationCode),
		CustomerCode:      strings.TrimSpace(data.Customer.CustomerCode),
		PaidAt:            paidAt,
	}
}
