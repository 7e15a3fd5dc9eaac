package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/toloka-partners/featuretrack/internal/api/handlers"
	"github.com/toloka-partners/featuretrack/internal/api/middleware"
)

func newRouter(server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(middleware.Actor())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type",
			middleware.RequestIDHeader, middleware.ActorHeader, middleware.IdempotencyKeyHeader,
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/health/live", server.GetLiveness)
	router.GET("/health/ready", server.GetReadiness)

	v1 := router.Group("/api/v1")
	{
		// Commands.
		v1.POST("/features/changes", server.PostFeatureChange)
		v1.POST("/features/:code/dependencies", server.PostDependency)
		v1.POST("/features/:code/planning-status", server.PostPlanningStatus)
		v1.POST("/releases/:code/status", server.PostReleaseStatus)

		// Event log queries.
		v1.GET("/events", server.GetEvents)
		v1.GET("/events/:id", server.GetEvent)
		v1.GET("/events/:id/notification", server.GetEventNotification)
		v1.POST("/events/replay", server.PostReplay)
		v1.GET("/aggregates/:code/version", server.GetAggregateVersion)
		v1.GET("/aggregates/:code/events", server.GetAggregateEventsAfter)

		// Notifications.
		v1.GET("/notifications/:recipient", server.GetNotifications)
	}

	return router
}
