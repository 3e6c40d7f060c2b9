package server

import (
	"strings"

	gracedomain "github.com/droplinklabs/droplink/internal/grace/domain"
	reconciledomain "github.com/droplinklabs/droplink/internal/reconcile/domain"
	"github.com/gin-gonic/gin"
)

type reconcileRequest struct {
	Reference string `json:"reference,omitempty"`
}

func (s *Server) ReconcileSubscription(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := reconcileRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	out, err := s.engine.Reconcile(c.Request.Context(), reconciledomain.Request{
		SubscriptionID: id,
		Reference:      strings.TrimSpace(req.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, out)
}

type graceSweepRequest struct {
	WarningDays      []int `json:"warning_days,omitempty"`
	EnableAutoCancel *bool `json:"enable_auto_cancel,omitempty"`
}

// RunGraceSweep triggers one enforcement pass; body fields override the
// configured defaults.
func (s *Server) RunGraceSweep(c *gin.Context) {
	req := graceSweepRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	cfg := gracedomain.SweepConfig{
		WarningDays:      s.cfg.WarningDays,
		EnableAutoCancel: s.cfg.EnableAutoCancel,
	}
	if len(req.WarningDays) > 0 {
		cfg.WarningDays = req.WarningDays
	}
	if req.EnableAutoCancel != nil {
		cfg.EnableAutoCancel = *req.EnableAutoCancel
	}

	result, err := s.enforcer.RunSweep(c.Request.Context(), cfg)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, result)
}
