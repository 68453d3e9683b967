package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app/broadcast"
	"github.com/dkeye/Huddle/internal/app/rooms"
	"github.com/dkeye/Huddle/internal/config"
)

// ServiceAuthMiddleware guards the service-to-service endpoints the
// lifecycle service calls; clients never hit these.
func ServiceAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader("X-Service-Secret") != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, registry *rooms.Registry, bridges *broadcast.Manager, signalCtl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HuddleSessions", store))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/hangouts/:id/media", func(c *gin.Context) {
		signalCtl.HandleSignal(ctx, c)
	})

	h := &hangoutHandlers{registry: registry, bridges: bridges, signal: signalCtl}
	svc := api.Group("/hangouts", ServiceAuthMiddleware(cfg.Secret))
	svc.POST("/:id/media", h.ensureRoom)
	svc.GET("/:id/media", h.roomStats)
	svc.DELETE("/:id/media", h.closeRoom)
	svc.POST("/:id/broadcast", h.startBroadcast)
	svc.GET("/:id/broadcast", h.broadcastStatus)
	svc.DELETE("/:id/broadcast", h.stopBroadcast)

	return r
}
