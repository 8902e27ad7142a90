package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playback-hub-go/internal/api"
	"github.com/strefethen/playback-hub-go/internal/apperrors"
	"github.com/strefethen/playback-hub-go/internal/auth"
)

// RegisterRoutes wires audit routes to the router.
// Events are produced by the hub only; there is no write endpoint.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/audit/events", api.Handler(queryEvents(service)))
	router.Method(http.MethodGet, "/v1/audit/events/{event_id}", api.Handler(getEvent(service)))
}

// queryEvents retrieves the caller's events with optional filters.
// GET /v1/audit/events
func queryEvents(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			return apperrors.NewUnauthorizedError("Authentication required")
		}

		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}
		filters.UserID = user.ID

		events, _, hasMore, err := service.QueryEvents(r.Context(), filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query audit events")
		}

		formatted := make([]map[string]any, 0, len(events))
		for _, event := range events {
			formatted = append(formatted, formatEvent(&event))
		}

		return api.WriteList(w, "/v1/audit/events", formatted, hasMore)
	}
}

// getEvent retrieves a single event by ID.
// GET /v1/audit/events/{event_id}
func getEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			return apperrors.NewUnauthorizedError("Authentication required")
		}
		eventID := chi.URLParam(r, "event_id")

		event, err := service.GetEvent(r.Context(), user.ID, eventID)
		if err != nil {
			var notFoundErr *EventNotFoundError
			if errors.As(err, &notFoundErr) {
				return apperrors.NewNotFoundResource("Event", eventID)
			}
			return apperrors.NewInternalError("Failed to get audit event")
		}

		return api.WriteResource(w, http.StatusOK, formatEvent(event))
	}
}

// parseQueryFilters extracts and validates query parameters for event filtering.
func parseQueryFilters(r *http.Request) (EventQueryFilters, error) {
	filters := EventQueryFilters{
		Limit: DefaultQueryLimit,
	}

	query := r.URL.Query()

	if from := query.Get("from"); from != "" {
		since, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'from' datetime format, expected ISO 8601", map[string]any{"from": from})
		}
		filters.Since = &since
	}

	if eventType := query.Get("type"); eventType != "" {
		parsed := EventType(eventType)
		if !validEventTypes[parsed] {
			return filters, apperrors.NewValidationError("invalid event type", map[string]any{"type": eventType})
		}
		filters.Type = &parsed
	}

	if connectionID := query.Get("connection_id"); connectionID != "" {
		filters.ConnectionID = &connectionID
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{
				"limit": limitStr,
			})
		}
		filters.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{
				"offset": offsetStr,
			})
		}
		filters.Offset = offset
	}

	return filters, nil
}

// formatEvent formats a HubEvent for JSON response.
func formatEvent(event *HubEvent) map[string]any {
	result := map[string]any{
		"object":    "hub_event",
		"event_id":  event.EventID,
		"timestamp": event.Timestamp.UTC().Format(timeLayout),
		"type":      string(event.Type),
		"level":     string(event.Level),
		"message":   event.Message,
	}

	if event.ConnectionID != nil {
		result["connection_id"] = *event.ConnectionID
	}
	if event.DeviceID != nil {
		result["device_id"] = *event.DeviceID
	}
	if len(event.Payload) > 0 {
		result["payload"] = event.Payload
	}

	return result
}
