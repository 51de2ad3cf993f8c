package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

type downloadRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

// downloadHandler consumes one download from the caller's license and hands
// back a single-use token.
func downloadHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader("X-User-ID")
		if uid == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header required"})
			return
		}

		var req downloadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required"})
			return
		}

		token, err := deps.LicenseSvc.ConsumeDownload(c.Request.Context(), uid, req.ProductID)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrQuotaExceeded):
				c.JSON(http.StatusForbidden, gin.H{"error": "quota_exceeded"})
			case errors.Is(err, domain.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "no license for product"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "download request failed"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":              token.Token,
			"productId":          token.ProductID,
			"downloadsRemaining": token.DownloadsRemaining,
		})
	}
}
