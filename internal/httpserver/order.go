package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

type statusResponse struct {
	OrderNumber string                `json:"orderNumber"`
	Status      domain.PaymentStatus  `json:"status"`
	Reason      *domain.FailureReason `json:"reason,omitempty"`
	Retryable   *bool                 `json:"retryable,omitempty"`
}

func orderStatusResponse(o *domain.Order) statusResponse {
	resp := statusResponse{
		OrderNumber: o.OrderNumber,
		Status:      o.PaymentStatus,
		Reason:      o.FailureReason,
	}
	if o.FailureReason != nil {
		retryable := o.FailureReason.Retryable()
		resp.Retryable = &retryable
	}
	return resp
}

// orderStatusHandler backs client-side polling UIs; it reconciles pending
// orders against the gateway before answering.
func orderStatusHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := deps.OrderSvc.Status(c.Request.Context(), c.Param("number"))
		if err != nil {
			confirmationError(c, err)
			return
		}
		c.JSON(http.StatusOK, orderStatusResponse(o))
	}
}

func cancelOrderHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := deps.OrderSvc.Cancel(c.Request.Context(), c.Param("number"))
		if err != nil {
			confirmationError(c, err)
			return
		}
		c.JSON(http.StatusOK, orderStatusResponse(o))
	}
}

// refundOrderHandler represents the support-driven refund action.
func refundOrderHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := deps.OrderSvc.Refund(c.Request.Context(), c.Param("number"))
		if err != nil {
			confirmationError(c, err)
			return
		}
		c.JSON(http.StatusOK, orderStatusResponse(o))
	}
}
