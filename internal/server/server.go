package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/strefethen/playback-hub-go/internal/api"
	"github.com/strefethen/playback-hub-go/internal/audit"
	"github.com/strefethen/playback-hub-go/internal/auth"
	"github.com/strefethen/playback-hub-go/internal/config"
	"github.com/strefethen/playback-hub-go/internal/db"
	"github.com/strefethen/playback-hub-go/internal/devices"
	"github.com/strefethen/playback-hub-go/internal/hub"
	"github.com/strefethen/playback-hub-go/internal/logging"
	"github.com/strefethen/playback-hub-go/internal/openapi"
	"github.com/strefethen/playback-hub-go/internal/playback"
	"github.com/strefethen/playback-hub-go/internal/system"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.Infow("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", time.Since(start).Round(time.Millisecond),
				"request_id", api.GetRequestID(r),
			)
		})
	}
}

// Options controls server wiring.
type Options struct {
	// Clock replaces the wall clock in the registry, hub writers and stores.
	Clock clockwork.Clock
	// DisableAudit skips the audit writer and prune job.
	DisableAudit bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, logger *zap.SugaredLogger, options Options) (http.Handler, func(context.Context) error, error) {
	logger = logging.OrNop(logger)
	clock := options.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	logger.Infow("Using database", "path", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestIDMiddleware)
	router.Use(requestLoggerMiddleware(logger.Named("http")))
	router.Use(api.RecovererMiddleware(logger))
	router.Use(auth.Middleware(cfg))

	router.Handle("/metrics", promhttp.Handler())
	openapi.RegisterRoutes(router)
	auth.RegisterRoutes(router, cfg)

	registry := playback.NewRegistry(logger,
		playback.WithClock(clock),
		playback.WithFreshnessWindow(cfg.FreshnessWindow()),
		playback.WithMaxConnectionsPerUser(cfg.HubMaxConnectionsPerUser),
	)

	deviceRepo := devices.NewRepository(dbPair, clock)
	devices.RegisterRoutes(router, deviceRepo)

	coordinatorOpts := []playback.CoordinatorOption{playback.WithDeviceStore(deviceRepo)}

	var auditService *audit.Service
	if !options.DisableAudit {
		auditService = audit.NewService(cfg, dbPair, logger, clock)
		if err := auditService.Start(); err != nil {
			_ = dbPair.Close()
			return nil, nil, err
		}
		audit.RegisterRoutes(router, auditService)
		coordinatorOpts = append(coordinatorOpts, playback.WithEventRecorder(auditService))
	}

	coordinator := playback.NewCoordinator(registry, logger, coordinatorOpts...)
	playback.RegisterRoutes(router, coordinator)

	hubHandler := hub.NewHandler(cfg, coordinator, logger, clock)
	hub.RegisterRoutes(router, hubHandler)

	var auditHealth system.HealthChecker
	if auditService != nil {
		auditHealth = auditService
	}
	system.RegisterRoutes(router, system.NewService(dbPair, registry, auditHealth, clock))

	shutdown := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		var errs []error
		if err := hubHandler.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close hub connections: %w", err))
		}
		// The hub is drained first so DISCONNECTED events reach the audit queue.
		if auditService != nil {
			auditService.Stop()
		}
		if err := dbPair.Close(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	return router, shutdown, nil
}
