package httpserver

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

// webhookHandler accepts provider-specific payloads, normalizes them through
// the matching adapter and feeds the state machine. Replayed confirmations
// come back as no-ops; conflicting ones are rejected with 409.
func webhookHandler(deps Deps, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		gw, err := deps.Gateways.Get(domain.PaymentMethod(c.Param("gateway")))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown gateway"})
			return
		}

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
			return
		}

		ctx := c.Request.Context()
		conf, err := gw.ConfirmPayment(ctx, payload)
		if err != nil {
			logger.Printf("webhook %s: rejected payload: %v", gw.Name(), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "unprocessable payload"})
			return
		}

		o, err := deps.OrderSvc.ApplyConfirmation(ctx, conf)
		if err != nil {
			confirmationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orderNumber": o.OrderNumber, "status": o.PaymentStatus})
	}
}

// paymentReturnHandler lands the buyer back from a hosted gateway page and
// reconciles the order against the gateway right away.
func paymentReturnHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		number := c.Query("order")
		if number == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order query parameter required"})
			return
		}
		o, err := deps.OrderSvc.Reconcile(c.Request.Context(), number)
		if err != nil {
			confirmationError(c, err)
			return
		}
		c.JSON(http.StatusOK, orderStatusResponse(o))
	}
}

// paymentCancelHandler lands the buyer who backed out at the gateway; the
// order is cancelled if still pending.
func paymentCancelHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		number := c.Query("order")
		if number == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order query parameter required"})
			return
		}
		o, err := deps.OrderSvc.Cancel(c.Request.Context(), number)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotPending) {
				// Payment raced the cancellation; report where it landed.
				if current, getErr := deps.OrderSvc.Status(c.Request.Context(), number); getErr == nil {
					c.JSON(http.StatusOK, orderStatusResponse(current))
					return
				}
			}
			confirmationError(c, err)
			return
		}
		c.JSON(http.StatusOK, orderStatusResponse(o))
	}
}

func confirmationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, domain.ErrPaymentIDConflict), errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrOrderNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "order is not pending"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation processing failed"})
	}
}
