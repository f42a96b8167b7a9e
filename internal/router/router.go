// Package router assembles the gin engine and wires routes to handlers.
package router

import (
	"net/http"
	"strconv"
	"strings"

	"yls-backend/internal/config"
	"yls-backend/internal/handlers"
	"yls-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers collects everything the router mounts
type Handlers struct {
	Relay     *handlers.RelayHandler
	Staking   *handlers.StakingHandler
	Swap      *handlers.SwapHandler
	Gas       *handlers.GasHandler
	AdminAuth *handlers.AdminAuthHandler
	Admin     *handlers.AdminHandler
}

// New builds the gin engine with all routes and middleware
func New(cfg *config.Config, h *Handlers) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(corsMiddleware(cfg.CORS))

	r.GET("/health", handlers.Health)
	r.GET("/ping", handlers.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/relay/stake", h.Relay.RelayStake)
		api.GET("/relay/tx/:hash", h.Relay.GetTransaction)
		api.GET("/staking/:address", h.Staking.GetStakingInfo)
		api.GET("/swap/quote", h.Swap.GetQuote)
		api.GET("/gas/estimate", h.Gas.GetEstimate)
		api.GET("/contracts", handlers.Contracts)

		admin := api.Group("/admin")
		admin.Use(middleware.NewIPAllowlist(cfg.Admin.AllowedIPs).Restrict())
		{
			admin.POST("/auth/login", h.AdminAuth.Login)

			protected := admin.Group("")
			protected.Use(middleware.NewAuthMiddleware(h.AdminAuth).RequireAuth())
			{
				protected.GET("/relayer/status", h.Admin.RelayerStatus)
			}
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"ip":     c.ClientIP(),
		}).Info("🌐 [API] Request")
	}
}

// corsMiddleware applies the configured origin whitelist; an empty
// configuration allows all origins.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		switch {
		case len(cfg.AllowedOrigins) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && originAllowed(origin, cfg.AllowedOrigins):
			c.Header("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		case origin != "":
			logrus.WithFields(logrus.Fields{
				"origin": origin,
				"path":   c.Request.URL.Path,
			}).Warn("🚫 [CORS] Origin not in whitelist")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if strings.TrimSpace(a) == origin {
			return true
		}
	}
	return false
}
