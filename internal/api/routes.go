package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nayasahai/recovery/internal/auth"
	"github.com/nayasahai/recovery/internal/config"
	"github.com/nayasahai/recovery/internal/metrics"
)

// SetupRouter sets up the API routes
func SetupRouter(cfg *config.Config, logger *zap.Logger, deps Dependencies) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	if deps.Metrics != nil {
		router.Use(MetricsMiddleware(deps.Metrics))
	}

	handler := NewHandler(cfg, logger, deps)

	router.GET("/health", handler.Health)
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled && deps.Gatherer != nil {
		router.GET(cfg.Metrics.Prometheus.Endpoint, gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.Use(auth.Middleware(deps.Auth))
	{
		incidents := v1.Group("/incidents")
		{
			incidents.GET("", handler.ListIncidents)
			incidents.GET("/categories", handler.ListCategories)
			incidents.GET("/:id", handler.GetIncident)
			incidents.GET("/:id/next-action", handler.GetNextAction)
		}

		v1.GET("/statuses", handler.ListStatuses)
		v1.POST("/advisory", handler.GenerateAdvisory)

		caseRoutes := v1.Group("/cases")
		{
			caseRoutes.GET("", handler.ListCases)
			caseRoutes.POST("", handler.CreateCase)
			caseRoutes.GET("/summary", handler.CaseSummary)
			caseRoutes.GET("/:id", handler.GetCase)
			caseRoutes.PATCH("/:id", handler.UpdateCaseDetails)
			caseRoutes.DELETE("/:id", handler.DeleteCase)
			caseRoutes.PUT("/:id/status", handler.UpdateCaseStatus)
			caseRoutes.PUT("/:id/evidence", handler.SelectEvidence)
			caseRoutes.POST("/:id/advisory", handler.GenerateCaseAdvisory)
		}

		evidence := v1.Group("/evidence")
		{
			evidence.GET("/folders", handler.EvidenceFolders)
			evidence.POST("/identifiers", handler.ExtractIdentifiers)
		}

		if deps.Hub != nil {
			v1.GET("/realtime/ws", deps.Hub.HandleWebSocket)
		}
	}

	return router
}

// CORSMiddleware handles CORS headers
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// MetricsMiddleware records request counts and latency by route
func MetricsMiddleware(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
