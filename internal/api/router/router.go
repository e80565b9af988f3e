// Package router assembles the HTTP surface: WebSocket, Connect services,
// health check and CORS, all behind one gin engine.
package router

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"
)

// Config holds the pieces mounted on the engine.
type Config struct {
	AllowedOrigins []string
	// WebSocket registers the /ws route.
	WebSocket interface{ Register(gin.IRoutes) }
	// Services maps a Connect mount path to its handler.
	Services map[string]http.Handler
	// Health reports extra fields for /healthz.
	Health func() gin.H
}

// New builds the engine.
func New(cfg Config) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), corsMiddleware(cfg.AllowedOrigins))

	engine.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if cfg.Health != nil {
			for k, v := range cfg.Health() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})

	if cfg.WebSocket != nil {
		cfg.WebSocket.Register(engine)
	}
	for path, h := range cfg.Services {
		engine.Any(strings.TrimSuffix(path, "/")+"/*procedure", gin.WrapH(h))
	}
	return engine
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		zlog.Debug().Msgf("http: method=%s path=%s status=%d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

// corsMiddleware answers preflight requests and sets CORS headers for allowed
// origins. An empty list allows every origin.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0 || slices.Contains(allowed, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || slices.Contains(allowed, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms, X-Admin-Token, Authorization")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Expose-Headers", "Grpc-Status, Grpc-Message, X-Connection-Id")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
