package playback

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterRequiresUser(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register("conn-1", "", "", &recordingSink{})
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.Zero(t, r.Count())
}

func TestRegistry_RegisterRejectsDuplicate(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register("conn-1", "u1", "", &recordingSink{})
	require.NoError(t, err)

	_, err = r.Register("conn-1", "u1", "", &recordingSink{})
	require.ErrorIs(t, err, ErrDuplicateConnection)
	require.Equal(t, 1, r.Count())
}

func TestRegistry_RegisterEnforcesPerUserCap(t *testing.T) {
	r, _ := newTestRegistry(t, WithMaxConnectionsPerUser(2))

	for i := 0; i < 2; i++ {
		_, err := r.Register(fmt.Sprintf("conn-%d", i), "u1", "", &recordingSink{})
		require.NoError(t, err)
	}

	_, err := r.Register("conn-extra", "u1", "", &recordingSink{})
	require.ErrorIs(t, err, ErrTooManyConnections)

	_, err = r.Register("conn-other", "u2", "", &recordingSink{})
	require.NoError(t, err, "cap is per user")

	r.Unregister("conn-0")
	_, err = r.Register("conn-extra", "u1", "", &recordingSink{})
	require.NoError(t, err)
}

func TestRegistry_RegisterStampsConnectTime(t *testing.T) {
	r, clock := newTestRegistry(t)

	session, err := r.Register("conn-1", "u1", "Firefox/121.0", &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "conn-1", session.ConnectionID)
	assert.True(t, session.ConnectedAt.Equal(clock.Now()))
	assert.True(t, session.LastPlaybackAt.IsZero())
}

func TestRegistry_UnregisterRemovesSessionAndGroup(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register("conn-1", "u1", "", &recordingSink{})
	require.NoError(t, err)

	removed, ok := r.Unregister("conn-1")
	require.True(t, ok)
	assert.Equal(t, "conn-1", removed.ConnectionID)

	_, ok = r.Get("conn-1")
	assert.False(t, ok)
	assert.Empty(t, r.ListByUser("u1"))
	assert.Zero(t, r.CountByUser("u1"))
	assert.Empty(t, r.groups, "empty groups are dropped")

	_, ok = r.Unregister("conn-1")
	assert.False(t, ok)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register("conn-1", "u1", "", &recordingSink{})
	require.NoError(t, err)

	s, ok := r.Get("conn-1")
	require.True(t, ok)
	s.DeviceName = "mutated"

	again, _ := r.Get("conn-1")
	assert.Empty(t, again.DeviceName)
}

func TestRegistry_ListByUserIsOrderedAndScoped(t *testing.T) {
	r, clock := newTestRegistry(t)

	_, err := r.Register("conn-b", "u1", "", &recordingSink{})
	require.NoError(t, err)
	_, err = r.Register("conn-a", "u1", "", &recordingSink{})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = r.Register("conn-0", "u1", "", &recordingSink{})
	require.NoError(t, err)
	_, err = r.Register("conn-x", "u2", "", &recordingSink{})
	require.NoError(t, err)

	var ids []string
	for _, s := range r.ListByUser("u1") {
		ids = append(ids, s.ConnectionID)
	}
	assert.Equal(t, []string{"conn-a", "conn-b", "conn-0"}, ids, "connect time first, then connection id")
}

func TestRegistry_ResolveLabel(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register("conn-1", "u1", "", &recordingSink{})
	require.NoError(t, err)

	assert.Equal(t, "Firefox Browser", r.ResolveLabel("conn-1", "Firefox/121.0"))
	assert.Equal(t, "Chrome Browser", r.ResolveLabel("unknown-conn", "Chrome/120.0"))

	r.update("conn-1", func(_ time.Time, self *entry, _ []*entry) {
		self.session.DeviceName = "My Phone"
	})
	assert.Equal(t, "My Phone", r.ResolveLabel("conn-1", "Firefox/121.0"))
}

func TestRegistry_ActiveSessionHonorsWindowAndExclusion(t *testing.T) {
	r, clock := newTestRegistry(t, WithFreshnessWindow(time.Minute))

	_, err := r.Register("conn-a", "u1", "", &recordingSink{})
	require.NoError(t, err)
	_, err = r.Register("conn-b", "u1", "", &recordingSink{})
	require.NoError(t, err)

	_, playing := r.ActiveSession("u1", "")
	require.False(t, playing)

	r.update("conn-a", func(now time.Time, self *entry, _ []*entry) {
		self.session.LastPlaybackAt = now
	})

	active, playing := r.ActiveSession("u1", "conn-b")
	require.True(t, playing)
	assert.Equal(t, "conn-a", active.ConnectionID)

	_, playing = r.ActiveSession("u1", "conn-a")
	assert.False(t, playing, "caller is excluded")

	clock.Advance(time.Minute)
	_, playing = r.ActiveSession("u1", "conn-b")
	assert.False(t, playing, "claim expires after the window")
}

func TestRegistry_UnregisterActiveLeavesNoDanglingClaim(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register("conn-a", "u1", "", &recordingSink{})
	require.NoError(t, err)
	_, err = r.Register("conn-b", "u1", "", &recordingSink{})
	require.NoError(t, err)
	r.update("conn-a", func(now time.Time, self *entry, _ []*entry) {
		self.session.LastPlaybackAt = now
	})

	r.Unregister("conn-a")

	_, playing := r.ActiveSession("u1", "conn-b")
	assert.False(t, playing)
}

func TestRegistry_ConcurrentRegisterAndUnregister(t *testing.T) {
	r, _ := newTestRegistry(t)

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			userID := fmt.Sprintf("u%d", w%4)
			for i := 0; i < perWorker; i++ {
				connID := fmt.Sprintf("conn-%d-%d", w, i)
				_, err := r.Register(connID, userID, "", &recordingSink{})
				assert.NoError(t, err)
				r.ListByUser(userID)
				r.ActiveSession(userID, connID)
				if i%2 == 0 {
					r.Unregister(connID)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker/2, r.Count())
	total := 0
	for u := 0; u < 4; u++ {
		total += r.CountByUser(fmt.Sprintf("u%d", u))
	}
	assert.Equal(t, r.Count(), total, "group index matches sessions")
}
