package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/playback-hub-go/internal/db"
)

func setupTestDB(t *testing.T) (*db.DBPair, clockwork.FakeClock) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	return dbPair, clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func setupTestRepo(t *testing.T) (*Repository, clockwork.FakeClock) {
	t.Helper()
	dbPair, clock := setupTestDB(t)
	return NewRepository(dbPair, clock), clock
}

func TestRepository_InsertEvent(t *testing.T) {
	repo, clock := setupTestRepo(t)

	event, err := repo.InsertEvent(context.Background(), WriteEventInput{
		Type:         EventDeviceRegistered,
		UserID:       "u1",
		ConnectionID: "conn-1",
		DeviceID:     "d1",
		Message:      "Device registered",
		Payload:      map[string]any{"device_name": "My Phone"},
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	require.NotEmpty(t, event.EventID)
	require.Equal(t, EventDeviceRegistered, event.Type)
	require.Equal(t, EventLevelInfo, event.Level)
	require.Equal(t, "u1", event.UserID)
	require.NotNil(t, event.ConnectionID)
	require.Equal(t, "conn-1", *event.ConnectionID)
	require.NotNil(t, event.DeviceID)
	require.Equal(t, "d1", *event.DeviceID)
	require.Equal(t, "My Phone", event.Payload["device_name"])
	require.True(t, event.Timestamp.Equal(clock.Now()))
}

func TestRepository_InsertEvent_Defaults(t *testing.T) {
	repo, _ := setupTestRepo(t)

	event, err := repo.InsertEvent(context.Background(), WriteEventInput{
		Type:    EventConnected,
		UserID:  "u1",
		Message: "Connected",
	})
	require.NoError(t, err)
	require.Nil(t, event.ConnectionID)
	require.Nil(t, event.DeviceID)
	require.NotNil(t, event.Payload)
	require.Empty(t, event.Payload)
}

func TestRepository_InsertEvent_RequiresUser(t *testing.T) {
	repo, _ := setupTestRepo(t)

	_, err := repo.InsertEvent(context.Background(), WriteEventInput{Type: EventConnected})
	require.Error(t, err)
}

func TestRepository_GetEvent_ScopedToUser(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.InsertEvent(ctx, WriteEventInput{Type: EventTakeover, UserID: "u1", Message: "Takeover"})
	require.NoError(t, err)

	fetched, err := repo.GetEvent(ctx, "u1", created.EventID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Equal(t, created.EventID, fetched.EventID)

	other, err := repo.GetEvent(ctx, "u2", created.EventID)
	require.NoError(t, err)
	require.Nil(t, other)

	missing, err := repo.GetEvent(ctx, "u1", "nonexistent-id")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepository_QueryEvents(t *testing.T) {
	repo, clock := setupTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.InsertEvent(ctx, WriteEventInput{Type: EventConnected, UserID: "u1", ConnectionID: "conn-a", Message: "Connected"})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	_, err := repo.InsertEvent(ctx, WriteEventInput{Type: EventTransfer, UserID: "u1", ConnectionID: "conn-b", Message: "Transfer"})
	require.NoError(t, err)
	_, err = repo.InsertEvent(ctx, WriteEventInput{Type: EventConnected, UserID: "u2", Message: "Connected"})
	require.NoError(t, err)

	events, total, err := repo.QueryEvents(ctx, EventQueryFilters{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Len(t, events, 4)
	require.Equal(t, EventTransfer, events[0].Type, "newest first")

	transferType := EventTransfer
	events, total, err = repo.QueryEvents(ctx, EventQueryFilters{UserID: "u1", Type: &transferType})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, events, 1)

	connA := "conn-a"
	events, total, err = repo.QueryEvents(ctx, EventQueryFilters{UserID: "u1", ConnectionID: &connA, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, events, 2)

	since := clock.Now()
	events, _, err = repo.QueryEvents(ctx, EventQueryFilters{UserID: "u1", Since: &since})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestRepository_QueryEvents_Empty(t *testing.T) {
	repo, _ := setupTestRepo(t)

	events, total, err := repo.QueryEvents(context.Background(), EventQueryFilters{UserID: "nobody"})
	require.NoError(t, err)
	require.Zero(t, total)
	require.NotNil(t, events)
	require.Empty(t, events)
}

func TestRepository_Prune(t *testing.T) {
	repo, clock := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.InsertEvent(ctx, WriteEventInput{Type: EventConnected, UserID: "u1", Message: "old", Timestamp: clock.Now().AddDate(0, 0, -40)})
	require.NoError(t, err)
	_, err = repo.InsertEvent(ctx, WriteEventInput{Type: EventConnected, UserID: "u1", Message: "new"})
	require.NoError(t, err)

	deleted, err := repo.Prune(ctx, clock.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	events, _, err := repo.QueryEvents(ctx, EventQueryFilters{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "new", events[0].Message)
}
