package playback

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/strefethen/playback-hub-go/internal/logging"
	"github.com/strefethen/playback-hub-go/internal/metrics"
)

var (
	// ErrUnauthenticated is returned when a connection registers without a user id.
	ErrUnauthenticated = errors.New("connection has no authenticated user")
	// ErrDuplicateConnection is returned when a connection id is registered twice.
	ErrDuplicateConnection = errors.New("connection already registered")
	// ErrTooManyConnections is returned when a user is at the per-user connection cap.
	ErrTooManyConnections = errors.New("too many connections for user")
)

// Sink receives notifications for one connection.
type Sink interface {
	// Send queues n without blocking and reports whether it was queued.
	Send(n Notification) bool
}

type entry struct {
	session Session
	sink    Sink
}

// Registry is the single table of live connections and the user groups derived from it.
// One mutex guards sessions, groups, and every session field mutation.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*entry              // connectionID -> entry
	groups     map[string]map[string]struct{} // userID -> connectionIDs
	clock      clockwork.Clock
	window     time.Duration
	maxPerUser int
	logger     *zap.SugaredLogger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithFreshnessWindow overrides DefaultFreshnessWindow.
func WithFreshnessWindow(window time.Duration) RegistryOption {
	return func(r *Registry) {
		if window > 0 {
			r.window = window
		}
	}
}

// WithMaxConnectionsPerUser caps simultaneous connections per user. Zero means no cap.
func WithMaxConnectionsPerUser(max int) RegistryOption {
	return func(r *Registry) {
		r.maxPerUser = max
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.SugaredLogger, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*entry),
		groups:   make(map[string]map[string]struct{}),
		clock:    clockwork.NewRealClock(),
		window:   DefaultFreshnessWindow,
		logger:   logging.OrNop(logger).Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry clock's current time.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// FreshnessWindow returns the configured freshness window.
func (r *Registry) FreshnessWindow() time.Duration {
	return r.window
}

// Register records a new connection and adds it to its user's group.
func (r *Registry) Register(connectionID, userID, transportHints string, sink Sink) (Session, error) {
	if userID == "" {
		return Session{}, ErrUnauthenticated
	}
	if connectionID == "" {
		return Session{}, fmt.Errorf("connection id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connectionID]; exists {
		return Session{}, ErrDuplicateConnection
	}
	if r.maxPerUser > 0 && len(r.groups[userID]) >= r.maxPerUser {
		return Session{}, ErrTooManyConnections
	}

	e := &entry{
		session: Session{
			UserID:         userID,
			ConnectionID:   connectionID,
			TransportHints: transportHints,
			ConnectedAt:    r.clock.Now(),
		},
		sink: sink,
	}
	r.sessions[connectionID] = e
	r.addToGroup(connectionID, userID)
	metrics.ConnectionsCurrent.Set(float64(len(r.sessions)))

	r.logger.Debugw("Session registered",
		"user_id", userID,
		"connection_id", connectionID,
		"user_connections", len(r.groups[userID]),
		"total_sessions", len(r.sessions),
	)
	return e.session, nil
}

// Unregister removes a connection and its group membership.
// It returns the removed session, or false if the connection was unknown.
func (r *Registry) Unregister(connectionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connectionID)
	r.removeFromGroup(connectionID, e.session.UserID)
	metrics.ConnectionsCurrent.Set(float64(len(r.sessions)))

	r.logger.Debugw("Session unregistered",
		"user_id", e.session.UserID,
		"connection_id", connectionID,
		"total_sessions", len(r.sessions),
	)
	return e.session, true
}

// Get returns a copy of the session for connectionID.
func (r *Registry) Get(connectionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// ListByUser returns copies of all sessions of userID, oldest connection first.
func (r *Registry) ListByUser(userID string) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.membersLocked(userID)
	sessions := make([]Session, 0, len(members))
	for _, e := range members {
		sessions = append(sessions, e.session)
	}
	return sessions
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CountByUser returns the number of live sessions for userID.
func (r *Registry) CountByUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups[userID])
}

// ResolveLabel returns the explicit label of connectionID when one is registered,
// otherwise the label inferred from transportHints. Callers already holding a Session
// copy use Session.Label, which applies the same precedence.
func (r *Registry) ResolveLabel(connectionID, transportHints string) string {
	r.mu.Lock()
	var explicit string
	if e, ok := r.sessions[connectionID]; ok {
		explicit = e.session.DeviceName
	}
	r.mu.Unlock()

	return resolveLabel(explicit, transportHints)
}

// ActiveSession returns the fresh session of userID other than exceptConnectionID.
// When several are fresh the most recent claim wins.
func (r *Registry) ActiveSession(userID, exceptConnectionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activeLocked(userID, exceptConnectionID)
}

func (r *Registry) activeLocked(userID, exceptConnectionID string) (Session, bool) {
	now := r.clock.Now()
	var active Session
	found := false
	for _, e := range r.membersLocked(userID) {
		if e.session.ConnectionID == exceptConnectionID || !e.session.IsFresh(now, r.window) {
			continue
		}
		if !found || e.session.LastPlaybackAt.After(active.LastPlaybackAt) {
			active = e.session
			found = true
		}
	}
	return active, found
}

// update runs fn with the caller's entry and all entries of the caller's user (self
// included, in device order) while holding the registry lock. It returns false, without
// calling fn, when connectionID is not registered. fn must not block.
func (r *Registry) update(connectionID string, fn func(now time.Time, self *entry, members []*entry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	self, ok := r.sessions[connectionID]
	if !ok {
		return false
	}
	fn(r.clock.Now(), self, r.membersLocked(self.session.UserID))
	return true
}

// recipients snapshots the sinks of userID's connections except exceptConnectionID.
func (r *Registry) recipients(userID, exceptConnectionID string) []Sink {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.membersLocked(userID)
	sinks := make([]Sink, 0, len(members))
	for _, e := range members {
		if e.session.ConnectionID == exceptConnectionID || e.sink == nil {
			continue
		}
		sinks = append(sinks, e.sink)
	}
	return sinks
}

func (r *Registry) sinkFor(connectionID string) Sink {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[connectionID]; ok {
		return e.sink
	}
	return nil
}

// addToGroup and removeFromGroup must be called with mu held.
func (r *Registry) addToGroup(connectionID, userID string) {
	members, ok := r.groups[userID]
	if !ok {
		members = make(map[string]struct{})
		r.groups[userID] = members
	}
	members[connectionID] = struct{}{}
}

func (r *Registry) removeFromGroup(connectionID, userID string) {
	members, ok := r.groups[userID]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(r.groups, userID)
	}
}

// membersLocked returns userID's entries ordered by connect time, then connection id.
func (r *Registry) membersLocked(userID string) []*entry {
	ids := r.groups[userID]
	members := make([]*entry, 0, len(ids))
	for id := range ids {
		if e, ok := r.sessions[id]; ok {
			members = append(members, e)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i].session, members[j].session
		if !a.ConnectedAt.Equal(b.ConnectedAt) {
			return a.ConnectedAt.Before(b.ConnectedAt)
		}
		return a.ConnectionID < b.ConnectionID
	})
	return members
}
