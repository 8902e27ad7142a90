package playback

import (
	"github.com/strefethen/playback-hub-go/internal/metrics"
)

// Publisher fans notifications out to a user's connections. It is the seam where an
// external pub/sub backplane would plug in for multi-process deployments.
type Publisher interface {
	// Publish delivers notifications, in order, to every connection of userID except
	// exceptConnectionID and returns the number of recipients.
	Publish(userID, exceptConnectionID string, notifications ...Notification) int
	// SendToOne delivers n to a single connection and reports whether it was queued.
	SendToOne(connectionID string, n Notification) bool
}

// Groups is the in-process Publisher. Membership is read from the Registry, so a
// connection leaves its group in the same critical section that unregisters it.
type Groups struct {
	registry *Registry
}

// NewGroups returns a Publisher backed by registry.
func NewGroups(registry *Registry) *Groups {
	return &Groups{registry: registry}
}

// Members returns the connection ids currently in userID's group.
func (g *Groups) Members(userID string) []string {
	sessions := g.registry.ListByUser(userID)
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ConnectionID)
	}
	return ids
}

// Publish implements Publisher. Recipients are snapshotted once, then sent to without
// holding the registry lock. A recipient whose queue is closed or full is skipped.
func (g *Groups) Publish(userID, exceptConnectionID string, notifications ...Notification) int {
	sinks := g.registry.recipients(userID, exceptConnectionID)
	for _, sink := range sinks {
		for _, n := range notifications {
			deliver(sink, n)
		}
	}
	return len(sinks)
}

// SendToGroupExcept is Publish for a single notification.
func (g *Groups) SendToGroupExcept(userID, exceptConnectionID string, n Notification) int {
	return g.Publish(userID, exceptConnectionID, n)
}

// SendToOne implements Publisher.
func (g *Groups) SendToOne(connectionID string, n Notification) bool {
	sink := g.registry.sinkFor(connectionID)
	if sink == nil {
		return false
	}
	return deliver(sink, n)
}

func deliver(sink Sink, n Notification) bool {
	if !sink.Send(n) {
		metrics.DroppedMessagesTotal.Inc()
		return false
	}
	metrics.NotificationsTotal.WithLabelValues(n.Target).Inc()
	return true
}
