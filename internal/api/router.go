// Package api wires together all HTTP routes for the FlakeWatch backend.
//
// Route grouping philosophy:
//   - Ingestion and run query routes (/api/v1/runs) require a project-scoped
//     bearer token; the auth middleware resolves it to a project identity and
//     every query downstream is scoped by that identity.
//   - The control plane (/api/v1/organizations, /api/v1/projects,
//     /api/v1/tokens) carries no token auth of its own. It is operator-facing
//     and expected to sit behind a private ingress; project tokens are
//     deliberately not accepted here because a CI credential must never be able
//     to mint further credentials.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/flakewatch/flakewatch/internal/api/admin"
	"github.com/flakewatch/flakewatch/internal/api/runs"
	"github.com/flakewatch/flakewatch/internal/audit"
	"github.com/flakewatch/flakewatch/internal/config"
	"github.com/flakewatch/flakewatch/internal/db/repositories"
	"github.com/flakewatch/flakewatch/internal/jobs"
	"github.com/flakewatch/flakewatch/internal/middleware"
	"github.com/flakewatch/flakewatch/internal/safego"
)

// BackgroundServices holds references to background resources that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters       []*middleware.RateLimiter
	staleTokenNotifier *jobs.StaleTokenNotifier
	auditShipper       *audit.MultiShipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.staleTokenNotifier != nil {
		bg.staleTokenNotifier.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Error("failed to close audit shipper", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	tokenRepo := repositories.NewTokenRepository(db)
	runRepo := repositories.NewRunRepository(sqlx.NewDb(db, "postgres"))

	orgHandlers := admin.NewOrganizationHandlers(cfg, db)
	projectHandlers := admin.NewProjectHandlers(cfg, db)
	tokenHandlers := admin.NewTokenHandlers(cfg, db)
	runHandlers := runs.NewHandler(runRepo, cfg.Ingest.MaxBodyBytes)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health endpoints
	router.GET("/health", healthCheckHandler())
	router.GET("/health/ready", readinessHandler(db))

	// API version
	router.GET("/version", versionHandler())

	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	ingestRateLimiter := middleware.NewRateLimiter(middleware.IngestRateLimitConfig())

	auditShipper := newAuditShipper(cfg)

	apiV1 := router.Group("/api/v1")
	{
		// Control plane (operator-facing)
		adminGroup := apiV1.Group("")
		if cfg.Security.RateLimiting.Enabled {
			adminGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		}
		if auditShipper != nil {
			adminGroup.Use(audit.Middleware(auditShipper))
		}
		{
			adminGroup.GET("/organizations", orgHandlers.ListOrganizationsHandler())
			adminGroup.POST("/organizations", orgHandlers.CreateOrganizationHandler())
			adminGroup.GET("/organizations/:id", orgHandlers.GetOrganizationHandler())
			adminGroup.DELETE("/organizations/:id", orgHandlers.DeleteOrganizationHandler())

			adminGroup.GET("/organizations/:id/projects", projectHandlers.ListProjectsHandler())
			adminGroup.POST("/organizations/:id/projects", projectHandlers.CreateProjectHandler())
			adminGroup.GET("/projects/:id", projectHandlers.GetProjectHandler())
			adminGroup.DELETE("/projects/:id", projectHandlers.DeleteProjectHandler())

			adminGroup.GET("/projects/:id/tokens", tokenHandlers.ListTokensHandler())
			adminGroup.POST("/projects/:id/tokens", tokenHandlers.CreateTokenHandler())
			adminGroup.DELETE("/tokens/:id", tokenHandlers.DeleteTokenHandler())
		}

		// Ingestion plane (token-authenticated, stricter rate limit)
		runsGroup := apiV1.Group("/runs")
		runsGroup.Use(middleware.AuthMiddleware(tokenRepo))
		if cfg.Security.RateLimiting.Enabled {
			runsGroup.Use(middleware.RateLimitMiddleware(ingestRateLimiter))
		}
		{
			runsGroup.POST("", runHandlers.IngestHandler())
			runsGroup.GET("", runHandlers.ListRunsHandler())
			runsGroup.GET("/:run_id", runHandlers.GetRunHandler())
		}
	}

	staleTokenNotifier := jobs.NewStaleTokenNotifier(
		tokenRepo,
		cfg.Jobs.StaleTokenCheckInterval,
		cfg.Jobs.StaleTokenMaxAge,
	)
	safego.Go(func() { staleTokenNotifier.Start(context.Background()) })

	bg := &BackgroundServices{
		rateLimiters:       []*middleware.RateLimiter{generalRateLimiter, ingestRateLimiter},
		staleTokenNotifier: staleTokenNotifier,
		auditShipper:       auditShipper,
	}

	return router, bg
}

// newAuditShipper builds the control-plane audit destination set from config.
// Returns nil when auditing is disabled or misconfigured; the control plane
// still serves requests either way.
func newAuditShipper(cfg *config.Config) *audit.MultiShipper {
	if !cfg.Audit.Enabled {
		return nil
	}

	var shipperConfigs []audit.ShipperConfig
	if cfg.Audit.File.Path != "" {
		shipperConfigs = append(shipperConfigs, audit.ShipperConfig{
			Enabled: true,
			Type:    "file",
			File: &audit.FileConfig{
				Path:       cfg.Audit.File.Path,
				MaxSizeMB:  cfg.Audit.File.MaxSizeMB,
				MaxBackups: cfg.Audit.File.MaxBackups,
			},
		})
	}
	if cfg.Audit.Webhook.URL != "" {
		shipperConfigs = append(shipperConfigs, audit.ShipperConfig{
			Enabled: true,
			Type:    "webhook",
			Webhook: &audit.WebhookConfig{
				URL:     cfg.Audit.Webhook.URL,
				Timeout: cfg.Audit.Webhook.Timeout,
			},
		})
	}

	shipper, err := audit.NewMultiShipper(shipperConfigs)
	if err != nil {
		slog.Error("failed to configure audit shippers, control-plane auditing disabled", "error", err)
		return nil
	}
	return shipper
}

// @Summary      Health check
// @Description  Liveness probe. Returns 200 whenever the process is serving requests.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /health/ready [get]
// readinessHandler returns the readiness status of the service. Unlike the
// liveness probe (/health), this pings the database so a readiness gate fails
// when ingestion would error.
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready": false,
				"error": "database not ready",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ready": true,
			"time":  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging via slog
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
