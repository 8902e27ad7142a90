// Package hub is the websocket transport for the playback coordinator.
package hub

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/strefethen/playback-hub-go/internal/api"
	"github.com/strefethen/playback-hub-go/internal/apperrors"
	"github.com/strefethen/playback-hub-go/internal/auth"
	"github.com/strefethen/playback-hub-go/internal/config"
	"github.com/strefethen/playback-hub-go/internal/logging"
	"github.com/strefethen/playback-hub-go/internal/metrics"
	"github.com/strefethen/playback-hub-go/internal/playback"
)

// Path is the websocket endpoint of the playback hub.
const Path = auth.HubPathPrefix + "playback"

const (
	maxFrameBytes       = 64 << 10
	closeReasonShutdown = "server shutting down"
	closeReasonTooMany  = "too many connected devices"
)

// connection is the transport state of one live websocket.
type connection struct {
	id      string
	userID  string
	writer  *clientWriter
	limiter *rate.Limiter
}

// Handler upgrades authenticated requests and runs one read loop per connection.
type Handler struct {
	cfg         config.Config
	coordinator *playback.Coordinator
	clock       clockwork.Clock
	logger      *zap.SugaredLogger
	upgrader    websocket.Upgrader

	mu      sync.Mutex
	conns   map[string]*connection
	closing bool
	wg      sync.WaitGroup
}

// NewHandler creates the hub endpoint handler.
func NewHandler(cfg config.Config, coordinator *playback.Coordinator, logger *zap.SugaredLogger, clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	h := &Handler{
		cfg:         cfg,
		coordinator: coordinator,
		clock:       clock,
		logger:      logging.OrNop(logger).Named("hub"),
		conns:       make(map[string]*connection),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// RegisterRoutes wires the hub endpoint to the router.
func RegisterRoutes(router chi.Router, handler *Handler) {
	router.Method(http.MethodGet, Path, handler)
}

// ConnectionCount returns the number of websockets currently served.
func (h *Handler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		metrics.ConnectionsRejected.WithLabelValues("unauthenticated").Inc()
		api.WriteError(w, r, apperrors.NewUnauthorizedError("Authentication required"))
		return
	}
	if h.isClosing() {
		metrics.ConnectionsRejected.WithLabelValues("shutting_down").Inc()
		api.WriteError(w, r, apperrors.NewUnavailableError("Hub is shutting down"))
		return
	}
	if limit := h.cfg.HubMaxConnectionsPerUser; limit > 0 && h.coordinator.Registry().CountByUser(user.ID) >= limit {
		metrics.ConnectionsRejected.WithLabelValues("too_many_devices").Inc()
		api.WriteError(w, r, apperrors.NewTooManyDevicesError(limit))
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debugw("Websocket upgrade failed", "user_id", user.ID, "error", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	h.serve(ws, user.ID, r.UserAgent())
}

func (h *Handler) serve(ws *websocket.Conn, userID, transportHints string) {
	c := &connection{
		id:      uuid.NewString(),
		userID:  userID,
		writer:  newClientWriter(ws, h.clock, h.cfg.HubSendBuffer, h.logger),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.HubCallsPerSecond), h.cfg.HubCallBurst),
	}
	if !h.track(c) {
		c.writer.stopGraceful(websocket.CloseGoingAway, closeReasonShutdown)
		return
	}
	defer h.untrack(c.id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := h.coordinator.Connect(ctx, c.id, userID, transportHints, c.writer); err != nil {
		if errors.Is(err, playback.ErrTooManyConnections) {
			metrics.ConnectionsRejected.WithLabelValues("too_many_devices").Inc()
			c.writer.stopGraceful(websocket.ClosePolicyViolation, closeReasonTooMany)
			return
		}
		h.logger.Errorw("Failed to register hub connection", "user_id", userID, "connection_id", c.id, "error", err)
		c.writer.stopGraceful(websocket.CloseInternalServerErr, "registration failed")
		return
	}
	defer func() {
		h.coordinator.Disconnect(ctx, c.id)
		c.writer.stop()
	}()

	h.readLoop(ctx, c)
}

// readLoop handles frames one at a time, in arrival order, until the socket fails.
func (h *Handler) readLoop(ctx context.Context, c *connection) {
	for {
		messageType, data, err := c.writer.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Debugw("Hub connection closed", "connection_id", c.id, "error", err)
			}
			return
		}
		c.writer.updateReadDeadline()

		if messageType != websocket.TextMessage {
			h.fail(c, "", apperrors.NewValidationError("Only text frames are supported", nil))
			continue
		}
		h.handleFrame(ctx, c, data)
	}
}

func (h *Handler) handleFrame(ctx context.Context, c *connection, data []byte) {
	var invocationID string
	defer func() {
		if recovered := recover(); recovered != nil {
			h.logger.Errorw("Panic handling hub frame", "connection_id", c.id, "panic", recovered)
			h.fail(c, invocationID, apperrors.NewInternalError("Internal server error"))
		}
	}()

	frame, err := decodeFrame(data)
	if err != nil {
		h.fail(c, "", apperrors.NewValidationError(err.Error(), nil))
		return
	}
	invocationID = frame.InvocationID

	switch frame.Type {
	case framePing:
		return
	case frameInvoke:
	default:
		h.fail(c, invocationID, apperrors.NewValidationError("Unsupported frame type: "+frame.Type, nil))
		return
	}

	if !c.limiter.Allow() {
		h.fail(c, invocationID, apperrors.NewRateLimitError("Too many hub calls"))
		return
	}

	run, ok := methods[frame.Target]
	if !ok {
		metrics.InvocationsTotal.WithLabelValues("unknown").Inc()
		h.fail(c, invocationID, apperrors.NewUnknownMethodError(frame.Target))
		return
	}
	metrics.InvocationsTotal.WithLabelValues(frame.Target).Inc()

	result, err := run(ctx, h.coordinator, c.id, arguments(frame.Arguments))
	if err != nil {
		h.fail(c, invocationID, err)
		return
	}
	if invocationID != "" {
		c.writer.sendFrame(completionFrame{Type: frameCompletion, InvocationID: invocationID, Result: result})
	}
}

// fail reports err to the caller as an Error notification and, for invocations that
// expect one, an error completion. The connection stays open.
func (h *Handler) fail(c *connection, invocationID string, err error) {
	appErr := apperrors.EnsureAppError(err)
	h.logger.Debugw("Hub call rejected",
		"connection_id", c.id,
		"user_id", c.userID,
		"code", appErr.Code,
		"message", appErr.Message,
	)

	c.writer.Send(playback.Notification{
		Target:  playback.EventError,
		Payload: playback.ErrorPayload{Code: string(appErr.Code), Message: appErr.Message},
	})
	if invocationID != "" {
		c.writer.sendFrame(completionFrame{Type: frameCompletion, InvocationID: invocationID, Error: appErr.Message})
	}
}

// Shutdown closes every connection with a close frame and waits for their read loops
// to unregister them. New upgrades are refused from the first call on.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.logger.Infow("Closing hub connections", "count", len(conns))
	for _, c := range conns {
		c.writer.stopGraceful(websocket.CloseGoingAway, closeReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	metrics.ConnectionsRejected.WithLabelValues("origin").Inc()
	return false
}

func (h *Handler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

func (h *Handler) track(c *connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[c.id] = c
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(connectionID string) {
	h.mu.Lock()
	delete(h.conns, connectionID)
	h.mu.Unlock()
	h.wg.Done()
}
