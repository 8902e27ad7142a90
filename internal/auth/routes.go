package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playback-hub-go/internal/api"
	"github.com/strefethen/playback-hub-go/internal/apperrors"
	"github.com/strefethen/playback-hub-go/internal/config"
)

// DevTokenPath issues access tokens in development test mode only.
const DevTokenPath = "/v1/auth/dev-token"

// RegisterRoutes wires auth routes to the router.
func RegisterRoutes(router chi.Router, cfg config.Config) {
	router.Method(http.MethodGet, "/v1/session/whoami", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		user, ok := UserFromContext(r.Context())
		if !ok {
			return apperrors.NewUnauthorizedError("Authentication required")
		}

		result := map[string]any{
			"object":           "session",
			"user_id":          user.ID,
			"is_authenticated": true,
		}
		if user.Email != "" {
			result["email"] = user.Email
		}
		return api.WriteResource(w, http.StatusOK, result)
	}))

	router.Method(http.MethodPost, DevTokenPath, api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if !cfg.AllowTestMode || cfg.NodeEnv != "development" {
			return apperrors.NewNotFoundResource("Route", "")
		}

		var body struct {
			UserID string `json:"user_id"`
			Email  string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("user_id is required", nil)
		}
		if body.UserID == "" {
			return apperrors.NewValidationError("user_id is required", nil)
		}

		token, err := GenerateAccessToken(cfg, TokenPayload{UserID: body.UserID, Email: body.Email})
		if err != nil {
			return apperrors.NewInternalError("Failed to generate access token")
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "access_token",
			"access_token":   token,
			"expires_in_sec": cfg.JWTAccessTokenExpirySec,
		})
	}))
}
