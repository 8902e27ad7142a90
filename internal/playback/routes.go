package playback

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playback-hub-go/internal/api"
	"github.com/strefethen/playback-hub-go/internal/apperrors"
	"github.com/strefethen/playback-hub-go/internal/auth"
)

// RegisterRoutes wires the REST view of live devices to the router.
func RegisterRoutes(router chi.Router, coordinator *Coordinator) {
	router.Method(http.MethodGet, "/v1/playback/devices", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			return apperrors.NewUnauthorizedError("Authentication required")
		}
		return api.WriteList(w, "/v1/playback/devices", coordinator.DevicesForUser(user.ID), false)
	}))
}
