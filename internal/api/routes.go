package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes.
func SetupRoutes(router *gin.Engine, handler *Handler, metricsHandler http.Handler) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/ready", handler.ReadinessCheck)
	router.GET("/metrics", gin.WrapH(metricsHandler))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handler.HealthCheck)
		v1.GET("/ready", handler.ReadinessCheck)

		search := v1.Group("/search")
		{
			search.POST("", handler.Search) // POST for full request bodies
			search.GET("", handler.Search)  // GET for simple queries
		}

		v1.GET("/suggest", handler.Suggest)
		v1.GET("/recommendations/:userID", handler.Recommendations)
		v1.GET("/explore", handler.Explore)
		v1.GET("/trending", handler.Trending)
		v1.POST("/interactions", handler.Interactions)
	}
}
