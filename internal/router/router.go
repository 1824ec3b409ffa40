package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pomodoro/sessions/internal/handler"
	"pomodoro/sessions/internal/middleware"
	"pomodoro/sessions/internal/service"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Activity *handler.ActivityHandler
	Session  *handler.SessionHandler
	Events   *handler.EventsHandler
}

func New(authService *service.AuthService, handlers Handlers, corsOrigins []string) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.Tracing(), middleware.RequestLogger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", handlers.Auth.Register)
	auth.POST("/login", handlers.Auth.Login)

	protected := api.Group("")
	protected.Use(middleware.Auth(authService))

	protected.POST("/activities", handlers.Activity.Create)
	protected.GET("/activities/:activityId", handlers.Activity.Get)
	protected.POST("/activities/:activityId/sessions", handlers.Session.Create)
	protected.GET("/activities/:activityId/sessions", handlers.Session.List)

	sessions := protected.Group("/sessions/:sessionId")
	sessions.GET("", handlers.Session.Get)
	sessions.GET("/notifications", handlers.Session.Deliveries)
	sessions.POST("/start", handlers.Session.Start)
	sessions.POST("/pause", handlers.Session.Pause)
	sessions.POST("/resume", handlers.Session.Resume)
	sessions.POST("/stop", handlers.Session.Stop)
	sessions.POST("/cancel", handlers.Session.Cancel)
	sessions.POST("/complete-phase", handlers.Session.CompletePhase)
	sessions.POST("/finish", handlers.Session.Finish)
	sessions.PUT("/timing", handlers.Session.UpdateTiming)
	sessions.PUT("/note", handlers.Session.SetNote)

	protected.GET("/events", handlers.Events.Stream)

	return engine
}
