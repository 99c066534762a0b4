// Package api exposes NF-e import and receipt encoding over HTTP.
package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/middlewares"
	"github.com/cellsync/fiscal_backend/reconcile"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("fiscal-api")

// Upload limits for raw and multipart NF-e bodies.
const (
	maxDocumentBytes  = 5 << 20
	maxMultipartBytes = 32 << 20
)

type Config struct {
	Engine *reconcile.Engine
	Logger *logrus.Logger
	// Ready gates every route except /healthz; nil means always ready.
	Ready       func() bool
	RateLimiter *middlewares.RateLimiter
}

type handler struct {
	engine   *reconcile.Engine
	logger   *logrus.Logger
	location *time.Location
}

// NewRouter wires the middleware chain and every route.
func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = config.GetLogger()
	}

	h := &handler{engine: cfg.Engine, logger: logger, location: receiptLocation(logger)}

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.ReadinessMiddleware(cfg.Ready))
	r.Use(cors.New(corsConfig()))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	v1 := r.Group("/api/v1", middlewares.TenantMiddleware())
	v1.POST("/nfe/preview", h.previewNfe)
	v1.POST("/nfe/import", h.importNfe)
	v1.POST("/nfe/import/batch", h.importNfeBatch)
	v1.POST("/receipts/escpos", h.encodeReceipt)

	r.NoRoute(customNotFoundHandler)
	return r
}

func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist; elsewhere allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization",
		middlewares.HeaderTenantId, middlewares.HeaderUserId, middlewares.HeaderUserName, middlewares.HeaderCorrelationId)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.HeaderCorrelationId)
	corsConfig.AllowCredentials = true
	return corsConfig
}

func receiptLocation(logger *logrus.Logger) *time.Location {
	name := config.ReceiptTimezone()
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"field":    "receiptLocation",
			"timezone": name,
		}).Warn("unknown receipt timezone; printing dates in UTC: " + err.Error())
		return time.UTC
	}
	return loc
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
