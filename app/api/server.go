package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/feed-sync/app/cfg"
)

// NewServer creates a new HTTP server with all routes configured.
// metricsHandler may be nil, in which case /metrics is not served.
func NewServer(handler *Handler, apiAccessKey string, metricsHandler http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey, metricsHandler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string, metricsHandler http.Handler) {
	r.GET("/feeds/:name", handler.GetFeed)
	r.GET("/feeds/:name/posts", handler.GetPosts)
	r.GET("/feeds/:name/events", handler.GetEvents)

	r.GET("/tags", handler.GetTags)
	r.GET("/tags/subscribed", handler.GetSubscribedTags)

	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.GET("/feeds", handler.APIListFeeds)
			api.POST("/feeds/:name/sync", handler.APISyncFeed)
			api.POST("/tags/refresh", handler.APIRefreshTagList)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Info("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"feed":       "/feeds/<name>",
			"posts":      "/feeds/<name>/posts?tag=<tag>&limit=<n>",
			"events":     "/feeds/<name>/events?from=<date>&limit=<n>",
			"tags":       "/tags",
			"subscribed": "/tags/subscribed?tag=<tag>",
			"health":     "/health",
			"stats":      "/stats",
		}
		if metricsHandler != nil {
			endpoints["metrics"] = "/metrics"
		}

		if apiAccessKey != "" {
			endpoints["feeds"] = "/api/feeds (requires X-API-Key header)"
			endpoints["sync"] = "/api/feeds/<name>/sync?mode=<full|backfill|selective> (POST, requires X-API-Key header)"
			endpoints["refresh"] = "/api/tags/refresh (POST, requires X-API-Key header)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Feed Sync",
			"version":     cfg.GetVersion(),
			"description": "Local cache of school blog posts and calendar events with version-gated sync",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware accepts the key from X-API-Key or an Authorization: Bearer header.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
