package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/cellsync/fiscal_backend/api"
	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/events"
	"github.com/cellsync/fiscal_backend/middlewares"
	"github.com/cellsync/fiscal_backend/models"
	"github.com/cellsync/fiscal_backend/reconcile"
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// swapHandler serves the bootstrap router until the real one is installed.
type swapHandler struct {
	h atomic.Pointer[http.Handler]
}

func (s *swapHandler) set(h http.Handler) { s.h.Store(&h) }

func (s *swapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.h.Load()).ServeHTTP(w, r)
}

// bootstrapRouter answers /healthz and 503 for everything else.
func bootstrapRouter() *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.ReadinessMiddleware(func() bool { return false }))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func newEngine(ctx context.Context, logger *logrus.Logger) (*reconcile.Engine, func()) {
	opts := []reconcile.EngineOption{
		reconcile.WithLocker(utils.NewRedisLocker(config.GetRedisLock())),
	}
	var closers []func()

	// nil values must not reach the engine as typed-nil interfaces
	archiver, err := utils.NewGCSArchiverFromEnv(ctx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "archive"}).Warn("nf-e archive disabled: " + err.Error())
	} else if archiver != nil {
		opts = append(opts, reconcile.WithArchiver(archiver))
		closers = append(closers, func() { _ = archiver.Close() })
	}

	publisher, err := events.NewPubSubPublisherFromEnv(ctx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn("nf-e imported events disabled: " + err.Error())
	} else if publisher != nil {
		opts = append(opts, reconcile.WithPublisher(publisher))
		closers = append(closers, publisher.Stop)
	}

	engine := reconcile.NewEngine(models.NewCatalogStore(config.GetDB()), logger, opts...)
	return engine, func() {
		for _, c := range closers {
			c()
		}
	}
}

// rateLimiterFromEnv is enabled by RATE_LIMIT_ENABLED=true, with
// RATE_LIMIT_MAX_REQUESTS (default 600) per RATE_LIMIT_WINDOW_SECONDS (default 60).
func rateLimiterFromEnv() *middlewares.RateLimiter {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		return nil
	}
	limit := int64(600)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	windowSec := int64(60)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			windowSec = n
		}
	}
	return middlewares.NewRateLimiter(config.GetRedisDB(), limit, time.Duration(windowSec)*time.Second)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Listen first so the startup probe passes while dependencies connect.
	handler := &swapHandler{}
	handler.set(bootstrapRouter())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx)

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate runs DDL that can block tables; run it as a separate job when SKIP_MIGRATIONS=true.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	engine, closeEngine := newEngine(sigCtx, logger)
	defer closeEngine()

	handler.set(api.NewRouter(api.Config{
		Engine:      engine,
		Logger:      logger,
		Ready:       func() bool { return config.GetDB() != nil },
		RateLimiter: rateLimiterFromEnv(),
	}))

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
