package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// cookie session. It only tags log lines; identity is assigned at sign-in.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ice []webrtc.ICEServer) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("HuddleSessions", store))
	r.Use(ClientTokenMiddleware())

	ctrl := signal.NewSignalWSController(cfg, o, ice)
	upgrade := func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Str("path", c.Request.URL.Path).Msg("ws endpoint hit")
		ctrl.HandleUpgrade(ctx, c)
	}

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			upgrade(c)
			return
		}
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/ws", upgrade)
	r.GET(strings.TrimSuffix(cfg.BreakoutPrefix, "/"), upgrade)
	r.GET(cfg.BreakoutPrefix+":id", upgrade)
	r.NoRoute(func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			upgrade(c)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/users", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"users": o.Presence.Snapshot()})
	})
	api.GET("/breakouts", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Breakouts.List())
	})
	api.DELETE("/breakouts/:id", func(c *gin.Context) {
		id := domain.BreakoutID(c.Param("id"))
		if err := o.EndBreakoutByID(id); err != nil {
			if errors.Is(err, app.ErrUnknownBreakout) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		log.Info().Str("module", "adapters.http").Str("room", string(id)).Msg("breakout ended via api")
		c.Status(http.StatusNoContent)
	})
	api.GET("/ice-servers", func(c *gin.Context) {
		servers := ice
		if servers == nil {
			servers = []webrtc.ICEServer{}
		}
		c.JSON(http.StatusOK, gin.H{"iceServers": servers})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Str("breakout", cfg.BreakoutPrefix).Msg("router setup")
	return r
}
