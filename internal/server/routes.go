package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stocktake-system/internal/server/middleware"
)

func NewRouter(handler *Handler) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit())

	api := r.Group("/api/v1")
	{
		restaurants := api.Group("/restaurants/:id")
		{
			restaurants.GET("/products", handler.ListProducts)
			restaurants.GET("/products/:productID/impact", handler.ProductImpact)

			sessions := restaurants.Group("/count-sessions")
			{
				sessions.POST("", handler.StartSession)
				sessions.GET("/active", handler.GetActiveSession)
				sessions.GET("/active/summary", handler.GetSummary)
				sessions.POST("/active/items/:itemID/edit", handler.BeginItemEdit)
				sessions.PUT("/active/items/:itemID", handler.EnterCount)
				sessions.POST("/active/save", handler.SaveProgress)
				sessions.POST("/active/complete", handler.CompleteSession)
				sessions.POST("/active/cancel", handler.CancelSession)
			}

			restaurants.GET("/usage-variance", handler.UsageVariance)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"message":   "Server is running",
			"timestamp": time.Now(),
		})
	})

	return r
}
