package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-radar/app/metrics"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, m *metrics.Metrics) *gin.Engine {
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
	r.Use(metricsMiddleware(m))

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, m)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, m *metrics.Metrics) {
	r.GET("/settings", handler.GetSettings)
	r.PUT("/settings", handler.UpdateSettings)

	r.GET("/items", handler.ListItems)
	r.PATCH("/items/:id", handler.UpdateItem)
	r.POST("/items/:id/summarize", handler.SummarizeItem)

	r.POST("/scan", handler.TriggerScan)
	r.GET("/runs", handler.ListRuns)

	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "RSS Radar",
			"version":     "1.0.0",
			"description": "Feed radar with relevance filtering, scoring and a triage queue",
			"endpoints": map[string]string{
				"settings":  "/settings (GET, PUT)",
				"items":     "/items?status=<status>&limit=<n>",
				"item":      "/items/<id> (PATCH)",
				"summarize": "/items/<id>/summarize (POST, ?force=true)",
				"scan":      "/scan (POST, ?async=true)",
				"runs":      "/runs",
				"stats":     "/stats",
				"health":    "/health",
				"metrics":   "/metrics",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
