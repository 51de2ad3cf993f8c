package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/service/checkout"
)

type submitOrderRequest struct {
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail" binding:"required"`
	PaymentMethod string `json:"paymentMethod"`
}

func prepareCheckoutHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := deps.CheckoutSvc.Prepare(c.Request.Context(), ownerKey(c))
		if err != nil {
			checkoutError(c, err)
			return
		}
		c.JSON(http.StatusOK, data)
	}
}

func submitOrderHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "customerEmail required"})
			return
		}

		ctx := c.Request.Context()
		data, err := deps.CheckoutSvc.Prepare(ctx, ownerKey(c))
		if err != nil {
			checkoutError(c, err)
			return
		}

		method := domain.PaymentMethod(req.PaymentMethod)
		if !data.RequiresPayment {
			method = domain.PaymentMethodFree
		}

		result, err := deps.CheckoutSvc.Submit(ctx, data, checkout.BuyerInfo{
			UserID: userID(c),
			Name:   req.CustomerName,
			Email:  req.CustomerEmail,
		}, method)
		if err != nil {
			checkoutError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

// checkoutError maps the error taxonomy: validation problems are actionable
// 4xx responses with the cart left intact; gateway trouble reports the order
// as pending and retryable.
func checkoutError(c *gin.Context, err error) {
	var validation domain.ValidationErrors
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "cart validation failed", "violations": validation})
	default:
		if reason, ok := gateway.IsDecline(err); ok {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":     "payment could not be initiated",
				"reason":    reason,
				"retryable": reason.Retryable(),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "payment gateway unavailable, order is pending",
			"retryable": true,
		})
	}
}
