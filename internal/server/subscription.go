package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/droplinklabs/droplink/internal/ledger/domain"
	paymentdomain "github.com/droplinklabs/droplink/internal/payment/domain"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
	"github.com/gin-gonic/gin"
)

type createSubscriptionRequest struct {
	UserID             string `json:"user_id"`
	PlanID             string `json:"plan_id"`
	ProviderCustomerID string `json:"provider_customer_id,omitempty"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseID(req.UserID)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	planID, err := parseID(req.PlanID)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateRequest{
		UserID:             userID,
		PlanID:             planID,
		ProviderCustomerID: strings.TrimSpace(req.ProviderCustomerID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, res)
}

func (s *Server) GetSubscription(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, sub)
}

type historyEntry struct {
	Action    ledgerdomain.Action  `json:"action"`
	Old       ledgerdomain.Payload `json:"old,omitempty"`
	New       ledgerdomain.Payload `json:"new,omitempty"`
	Reason    string               `json:"reason"`
	CreatedAt string               `json:"created_at"`
}

func (s *Server) GetSubscriptionHistory(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entries, err := s.ledger.ListBySubscription(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		oldPayload, err := ledgerdomain.DecodePayload(e.Action, []byte(e.OldValue))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		newPayload, err := ledgerdomain.DecodePayload(e.Action, []byte(e.NewValue))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		out = append(out, historyEntry{
			Action:    e.Action,
			Old:       oldPayload,
			New:       newPayload,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	respondData(c, out)
}

type activateSubscriptionRequest struct {
	Reference         string `json:"reference"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	Source            string `json:"source,omitempty"`
}

func (s *Server) ActivateSubscription(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req activateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	source := subscriptiondomain.Source(strings.TrimSpace(req.Source))
	if source == "" {
		source = subscriptiondomain.SourceWebhook
	}

	res, err := s.subscriptionSvc.Activate(c.Request.Context(), subscriptiondomain.ActivateRequest{
		SubscriptionID: id,
		Evidence: paymentdomain.Evidence{
			Reference:         strings.TrimSpace(req.Reference),
			ProviderPaymentID: strings.TrimSpace(req.ProviderPaymentID),
			Amount:            req.Amount,
			Currency:          strings.TrimSpace(req.Currency),
			AuthorizationCode: strings.TrimSpace(req.AuthorizationCode),
		},
		Source: source,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, res)
}

type cancelSubscriptionRequest struct {
	Reason    string `json:"reason"`
	Effective string `json:"effective,omitempty"`
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req cancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	effective := subscriptiondomain.Effective(strings.TrimSpace(req.Effective))
	if effective == "" {
		effective = subscriptiondomain.EffectiveImmediate
	}

	res, err := s.subscriptionSvc.Cancel(c.Request.Context(), subscriptiondomain.CancelRequest{
		SubscriptionID: id,
		Reason:         strings.TrimSpace(req.Reason),
		Effective:      effective,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, res)
}

type changePlanRequest struct {
	NewPlanID string `json:"new_plan_id"`
	Effective string `json:"effective,omitempty"`
	Prorate   bool   `json:"prorate"`
}

func (s *Server) ChangePlan(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	newPlanID, err := parseID(req.NewPlanID)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.subscriptionSvc.ChangePlan(c.Request.Context(), subscriptiondomain.ChangePlanRequest{
		SubscriptionID: id,
		NewPlanID:      newPlanID,
		Effective:      subscriptiondomain.Effective(strings.TrimSpace(req.Effective)),
		Prorate:        req.Prorate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, res)
}

type setGracePeriodRequest struct {
	Days int `json:"days"`
}

func (s *Server) SetGracePeriod(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req setGracePeriodRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	// callers that omit days get the configured default
	if req.Days == 0 {
		req.Days = s.cfg.GracePeriodDays
	}

	res, err := s.subscriptionSvc.SetGracePeriod(c.Request.Context(), id, req.Days)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, res)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
