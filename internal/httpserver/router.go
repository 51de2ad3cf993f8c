package httpserver

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/service/checkout"
)

// Deps carries the services the router needs.
type Deps struct {
	Catalog     catalogReader
	CartSvc     cartService
	CheckoutSvc checkoutService
	OrderSvc    orderService
	LicenseSvc  licenseService
	Gateways    *gateway.Selector
	TaxRate     decimal.Decimal
}

type catalogReader interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	ListActive(ctx context.Context) ([]domain.Product, error)
}

type cartService interface {
	Add(ctx context.Context, ownerKey, productID string, qty int) error
	Update(ctx context.Context, ownerKey, productID string, qty int) error
	Remove(ctx context.Context, ownerKey, productID string) error
	Clear(ctx context.Context, ownerKey string) error
	Items(ctx context.Context, ownerKey string) ([]domain.CartItem, error)
}

type checkoutService interface {
	Prepare(ctx context.Context, ownerKey string) (*checkout.CheckoutData, error)
	Submit(ctx context.Context, data *checkout.CheckoutData, buyer checkout.BuyerInfo, method domain.PaymentMethod) (*checkout.SubmitResult, error)
}

type orderService interface {
	ApplyConfirmation(ctx context.Context, conf *gateway.Confirmation) (*domain.Order, error)
	Status(ctx context.Context, orderNumber string) (*domain.Order, error)
	Reconcile(ctx context.Context, orderNumber string) (*domain.Order, error)
	Cancel(ctx context.Context, orderNumber string) (*domain.Order, error)
	Refund(ctx context.Context, orderNumber string) (*domain.Order, error)
}

type licenseService interface {
	ConsumeDownload(ctx context.Context, userID, productID string) (*domain.DownloadToken, error)
}

// buildRouter wires all storefront routes.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	router.GET("/products", listProductsHandler(deps))
	router.GET("/products/:id", getProductHandler(deps))

	cart := router.Group("/cart", requireOwner())
	{
		cart.GET("", getCartHandler(deps))
		cart.DELETE("", clearCartHandler(deps))
		cart.POST("/items", addCartItemHandler(deps))
		cart.PATCH("/items/:productId", updateCartItemHandler(deps))
		cart.DELETE("/items/:productId", removeCartItemHandler(deps))
	}

	router.POST("/checkout", requireOwner(), prepareCheckoutHandler(deps))
	router.POST("/orders", requireOwner(), submitOrderHandler(deps))

	router.GET("/orders/:number/status", orderStatusHandler(deps))
	router.POST("/orders/:number/cancel", cancelOrderHandler(deps))
	router.POST("/orders/:number/refund", refundOrderHandler(deps))

	router.POST("/webhooks/:gateway", webhookHandler(deps, logger))
	router.GET("/payments/:gateway/return", paymentReturnHandler(deps))
	router.GET("/payments/:gateway/cancel", paymentCancelHandler(deps))

	router.POST("/downloads", downloadHandler(deps))

	return router
}

const ownerKeyCtx = "ownerKey"

// requireOwner resolves the cart owner: a logged-in user via X-User-ID or a
// guest session via X-Session-ID. The key is explicit, never ambient.
func requireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set(ownerKeyCtx, "user:"+userID)
			c.Next()
			return
		}
		if sessionID := c.GetHeader("X-Session-ID"); sessionID != "" {
			c.Set(ownerKeyCtx, sessionID)
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-User-ID or X-Session-ID header required"})
	}
}

func ownerKey(c *gin.Context) string {
	return c.GetString(ownerKeyCtx)
}

func userID(c *gin.Context) *string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return &id
	}
	return nil
}
