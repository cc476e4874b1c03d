package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"pointtbridge/config"
	"pointtbridge/internal/api/handlers"
	"pointtbridge/internal/api/middleware"
	"pointtbridge/internal/auth"
	"pointtbridge/internal/engine"
	"pointtbridge/internal/pointt"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Coordinator *engine.Coordinator
	Auth        *auth.Manager
	Client      *pointt.Client
	Cloud       config.CloudConfig
	APIKey      string
	Logger      *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(cfg.Logger))
	router.Use(middleware.Logging(cfg.Logger))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	// API v1 routes (with authentication)
	v1 := router.Group("/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		snapshotHandler := handlers.NewSnapshotHandler(cfg.Coordinator)
		v1.GET("/snapshot", snapshotHandler.GetSnapshot)

		resourcesHandler := handlers.NewResourcesHandler(
			cfg.Coordinator,
			cfg.Client,
			cfg.Coordinator,
			cfg.Logger,
		)
		v1.GET("/resources/*path", resourcesHandler.GetResource)
		v1.PUT("/resources/*path", resourcesHandler.PutResource)

		statusHandler := handlers.NewStatusHandler(cfg.Coordinator, cfg.Auth)
		v1.GET("/status", statusHandler.GetStatus)

		authHandler := handlers.NewAuthHandler(cfg.Auth, cfg.Coordinator, cfg.Logger)
		v1.POST("/auth/url", authHandler.BeginLogin)
		v1.POST("/auth/callback", authHandler.CompleteLogin)

		diagnosticsHandler := handlers.NewDiagnosticsHandler(
			diagnosticsConfig(cfg.Cloud),
			cfg.Coordinator,
		)
		v1.GET("/diagnostics", diagnosticsHandler.GetDiagnostics)
	}

	return router
}

// diagnosticsConfig builds the redacted config view for the diagnostics
// endpoint
func diagnosticsConfig(cloud config.CloudConfig) handlers.DiagnosticsConfig {
	baseURL := cloud.BaseURL
	if baseURL == "" {
		baseURL = pointt.DefaultBaseURL
	}
	return handlers.DiagnosticsConfig{
		DeviceID:         cloud.DeviceID,
		BaseURL:          baseURL,
		Roots:            cloud.Roots,
		PollInterval:     (time.Duration(cloud.PollIntervalSeconds) * time.Second).String(),
		CycleTimeout:     (time.Duration(cloud.CycleTimeoutSeconds) * time.Second).String(),
		FailureThreshold: cloud.FailureThreshold,
	}
}

// authMiddleware verifies API key authentication
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-Bridge-Key")
		if providedKey != apiKey {
			c.JSON(401, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
