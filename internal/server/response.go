package server

import (
	"errors"
	"net/http"

	paymentdomain "github.com/droplinklabs/droplink/internal/payment/domain"
	plandomain "github.com/droplinklabs/droplink/internal/plan/domain"
	"github.com/droplinklabs/droplink/internal/proration"
	reconciledomain "github.com/droplinklabs/droplink/internal/reconcile/domain"
	subscriptiondomain "github.com/droplinklabs/droplink/internal/subscription/domain"
	"github.com/gin-gonic/gin"
)

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errInvalidRequest = errors.New("invalid_request")

func invalidRequestError() error { return errInvalidRequest }

// AbortWithError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is a 500.
func AbortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrInvalidSubscription),
		errors.Is(err, subscriptiondomain.ErrInvalidEffective),
		errors.Is(err, subscriptiondomain.ErrInvalidEvidence),
		errors.Is(err, subscriptiondomain.ErrInvalidGraceDays),
		errors.Is(err, plandomain.ErrInvalidPlan),
		errors.Is(err, paymentdomain.ErrInvalidReference),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidCurrency),
		errors.Is(err, proration.ErrInvalidPeriod),
		errors.Is(err, proration.ErrNegativePrice),
		errors.Is(err, reconciledomain.ErrInvalidRequest):
		status = http.StatusBadRequest
		code = "invalid_request"
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, subscriptiondomain.ErrDuplicateActiveSubscription),
		errors.Is(err, subscriptiondomain.ErrPlanUnchanged),
		errors.Is(err, subscriptiondomain.ErrInvalidTransition):
		status = http.StatusConflict
		code = "conflict"
	case errors.Is(err, paymentdomain.ErrProviderFailed),
		errors.Is(err, paymentdomain.ErrProviderDeclined):
		status = http.StatusBadGateway
		code = "provider_error"
	default:
		var exhausted *reconciledomain.ExhaustedError
		if errors.As(err, &exhausted) {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": errorBody{
				Code:    "reconciliation_exhausted",
				Message: string(exhausted.Diagnostic),
			}})
			return
		}
	}

	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{
		Code:    code,
		Message: err.Error(),
	}})
}
