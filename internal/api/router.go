package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps is everything the router mounts. Realtime and Health may be nil.
type Deps struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Chats       *ChatHandler
	Memberships *MembershipHandler
	Messages    *MessageHandler

	// Realtime serves the websocket upgrade. It resolves the credential
	// itself so it can answer 401 before upgrading.
	Realtime http.Handler

	Health   func(context.Context) error
	Resolver *auth.Resolver
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Logger))
	if d.Registry != nil {
		r.Use(middleware.NewHTTPMetrics(d.Registry).Handler())
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	// Public: load balancers and signup/login have no token.
	r.GET("/v1/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				d.Logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	public := r.Group("/v1/auth")
	public.POST("/signup", d.Auth.Signup)
	public.POST("/login", d.Auth.Login)

	if d.Realtime != nil {
		r.GET("/v1/ws", gin.WrapH(d.Realtime))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.Auth(d.Resolver))

	v1.GET("/users/me", d.Users.GetMe)

	v1.GET("/chats", d.Chats.List)
	v1.POST("/chats", d.Chats.Create)
	v1.GET("/chats/:id", d.Chats.Get)
	v1.PUT("/chats/:id", d.Chats.Rename)
	v1.DELETE("/chats/:id", d.Chats.Delete)
	v1.GET("/chats/:id/online", d.Chats.Online)
	v1.POST("/chats/:id/members", d.Memberships.Add)
	v1.DELETE("/chats/:id/members/:userID", d.Memberships.Remove)

	v1.GET("/memberships", d.Memberships.List)

	v1.GET("/messages", d.Messages.List)
	v1.POST("/messages", d.Messages.Create)
	v1.GET("/messages/:id", d.Messages.Get)
	v1.PUT("/messages/:id", d.Messages.Update)
	v1.DELETE("/messages/:id", d.Messages.Delete)

	return r
}
