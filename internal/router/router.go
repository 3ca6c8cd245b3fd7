package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"beeper/backend/internal/handler"
	"beeper/backend/internal/middleware"
	"beeper/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	schedulerHandler *handler.SchedulerHandler,
	corsOrigins []string,
	allowedSubjects []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/token", authHandler.Token)

	scheduler := api.Group("/scheduler")
	scheduler.Use(middleware.Auth(authService, allowedSubjects))
	scheduler.GET("/state", schedulerHandler.GetState)
	scheduler.GET("/stats", schedulerHandler.GetStats)
	scheduler.PUT("/status", schedulerHandler.SetStatus)
	scheduler.POST("/beep/accept", schedulerHandler.Accept)
	scheduler.POST("/beep/decline", schedulerHandler.Decline)
	scheduler.POST("/beep/pause", schedulerHandler.Pause)
	scheduler.POST("/beep/expire", schedulerHandler.Expire)
	scheduler.POST("/call", schedulerHandler.Call)
	scheduler.GET("/events", schedulerHandler.Events)

	return engine
}
