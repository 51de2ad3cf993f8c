package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/pricing"
)

type cartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type cartResponse struct {
	Items  []domain.CartItem `json:"items"`
	Totals domain.CartTotals `json:"totals"`
}

func getCartHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := deps.CartSvc.Items(c.Request.Context(), ownerKey(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cart"})
			return
		}
		if items == nil {
			items = []domain.CartItem{}
		}
		c.JSON(http.StatusOK, cartResponse{
			Items:  items,
			Totals: pricing.ComputeTotals(items, deps.TaxRate),
		})
	}
}

func addCartItemHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "productId required"})
			return
		}
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}
		if err := deps.CartSvc.Add(c.Request.Context(), ownerKey(c), req.ProductID, qty); err != nil {
			cartError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func updateCartItemHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity required"})
			return
		}
		if err := deps.CartSvc.Update(c.Request.Context(), ownerKey(c), c.Param("productId"), req.Quantity); err != nil {
			cartError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func removeCartItemHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.CartSvc.Remove(c.Request.Context(), ownerKey(c), c.Param("productId")); err != nil {
			cartError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func clearCartHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.CartSvc.Clear(c.Request.Context(), ownerKey(c)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear cart"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func cartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrProductUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "item not in cart"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cart operation failed"})
	}
}
