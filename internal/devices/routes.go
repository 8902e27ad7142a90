package devices

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playback-hub-go/internal/api"
	"github.com/strefethen/playback-hub-go/internal/apperrors"
	"github.com/strefethen/playback-hub-go/internal/auth"
)

const maxListLimit = 500

// rfc3339Millis formats time with milliseconds to match the web client's ISO format
func rfc3339Millis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// RegisterRoutes wires known-device routes to the router.
func RegisterRoutes(router chi.Router, repo *Repository) {
	router.Method(http.MethodGet, "/v1/devices/known", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			return apperrors.NewUnauthorizedError("Authentication required")
		}

		limit := DefaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxListLimit {
				return apperrors.NewValidationError("limit must be between 1 and 500", map[string]any{"limit": raw})
			}
			limit = parsed
		}

		devices, err := repo.ListByUser(r.Context(), user.ID, limit+1)
		if err != nil {
			return apperrors.NewInternalError("Failed to load known devices")
		}

		hasMore := len(devices) > limit
		if hasMore {
			devices = devices[:limit]
		}

		formatted := make([]map[string]any, 0, len(devices))
		for _, device := range devices {
			formatted = append(formatted, formatDevice(device))
		}

		return api.WriteList(w, "/v1/devices/known", formatted, hasMore)
	}))

	router.Method(http.MethodGet, "/v1/devices/known/{device_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			return apperrors.NewUnauthorizedError("Authentication required")
		}
		deviceID := chi.URLParam(r, "device_id")

		device, err := repo.Get(r.Context(), user.ID, deviceID)
		if err != nil {
			return apperrors.NewInternalError("Failed to load known device")
		}
		if device == nil {
			return apperrors.NewNotFoundResource("Device", deviceID)
		}

		return api.WriteResource(w, http.StatusOK, formatDevice(*device))
	}))

	router.Method(http.MethodDelete, "/v1/devices/known/{device_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			return apperrors.NewUnauthorizedError("Authentication required")
		}
		deviceID := chi.URLParam(r, "device_id")

		deleted, err := repo.Delete(r.Context(), user.ID, deviceID)
		if err != nil {
			return apperrors.NewInternalError("Failed to delete known device")
		}
		if !deleted {
			return apperrors.NewNotFoundResource("Device", deviceID)
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":    "known_device",
			"device_id": deviceID,
			"deleted":   true,
		})
	}))
}

func formatDevice(device KnownDevice) map[string]any {
	return map[string]any{
		"object":      "known_device",
		"device_id":   device.DeviceID,
		"device_name": device.DeviceName,
		"device_type": device.DeviceType,
		"first_seen":  rfc3339Millis(device.FirstSeen),
		"last_seen":   rfc3339Millis(device.LastSeen),
	}
}
