package system

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playback-hub-go/internal/api"
	"github.com/strefethen/playback-hub-go/internal/apperrors"
)

// RegisterRoutes wires health and system routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(getHealth(service)))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(getReady(service)))
	router.Method(http.MethodGet, "/v1/system/info", api.Handler(getSystemInfo(service)))
}

func getHealth(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "playback-hub",
			"timestamp": service.clock.Now().UTC().Format(time.RFC3339),
		})
	}
}

// getReady handles GET /v1/health/ready
func getReady(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := service.Ready(); err != nil {
			return apperrors.NewAppError(apperrors.ErrorCodeInternalError, "Not ready: "+err.Error(), http.StatusServiceUnavailable, nil)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

// getSystemInfo handles GET /v1/system/info
func getSystemInfo(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		info := service.GetSystemInfo()
		return api.WriteResource(w, http.StatusOK, formatSystemInfo(info))
	}
}

func formatSystemInfo(info *SystemInfo) map[string]any {
	return map[string]any{
		"object":               "system_info",
		"hub_version":          info.HubVersion,
		"uptime_seconds":       info.Uptime,
		"memory_mb":            info.MemoryUsageMB,
		"goroutines":           info.Goroutines,
		"sqlite_connected":     info.SQLiteConnected,
		"audit_writer_healthy": info.AuditWriterHealthy,
		"connections_current":  info.ConnectionsCurrent,
	}
}
