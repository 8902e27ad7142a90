package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// recordingSink captures notifications in arrival order.
type recordingSink struct {
	mu     sync.Mutex
	got    []Notification
	refuse bool
}

func (s *recordingSink) Send(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse {
		return false
	}
	s.got = append(s.got, n)
	return true
}

func (s *recordingSink) all() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.got...)
}

func (s *recordingSink) targets() []string {
	var targets []string
	for _, n := range s.all() {
		targets = append(targets, n.Target)
	}
	return targets
}

func (s *recordingSink) byTarget(target string) []Notification {
	var matched []Notification
	for _, n := range s.all() {
		if n.Target == target {
			matched = append(matched, n)
		}
	}
	return matched
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = nil
}

func newTestRegistry(t *testing.T, opts ...RegistryOption) (*Registry, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	opts = append([]RegistryOption{WithClock(clock)}, opts...)
	return NewRegistry(nil, opts...), clock
}

// connect registers a connection one second after the previous one and clears its greeting.
func connect(t *testing.T, c *Coordinator, clock clockwork.FakeClock, connectionID, userID, hints string) *recordingSink {
	t.Helper()
	clock.Advance(time.Second)
	sink := &recordingSink{}
	_, err := c.Connect(context.Background(), connectionID, userID, hints, sink)
	require.NoError(t, err)
	sink.reset()
	return sink
}
