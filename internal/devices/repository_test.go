package devices

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/playback-hub-go/internal/db"
)

func setupTestDB(t *testing.T) (*Repository, clockwork.FakeClock) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewRepository(dbPair, clock), clock
}

func TestRepository_UpsertInsertsDevice(t *testing.T) {
	repo, clock := setupTestDB(t)
	ctx := context.Background()

	device, err := repo.Upsert(ctx, UpsertInput{UserID: "u1", DeviceID: "d1", DeviceName: "My Phone", DeviceType: "mobile"})
	require.NoError(t, err)
	require.NotNil(t, device)
	require.Equal(t, "u1", device.UserID)
	require.Equal(t, "d1", device.DeviceID)
	require.Equal(t, "My Phone", device.DeviceName)
	require.Equal(t, "mobile", device.DeviceType)
	require.True(t, device.FirstSeen.Equal(clock.Now()))
	require.True(t, device.LastSeen.Equal(clock.Now()))
}

func TestRepository_UpsertRefreshesLastSeenKeepsFirstSeen(t *testing.T) {
	repo, clock := setupTestDB(t)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, UpsertInput{UserID: "u1", DeviceID: "d1", DeviceName: "My Phone", DeviceType: "mobile"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := repo.Upsert(ctx, UpsertInput{UserID: "u1", DeviceID: "d1", DeviceName: "Renamed Phone"})
	require.NoError(t, err)

	require.True(t, second.FirstSeen.Equal(first.FirstSeen))
	require.True(t, second.LastSeen.Equal(clock.Now()))
	require.Equal(t, "Renamed Phone", second.DeviceName)
	require.Equal(t, "mobile", second.DeviceType, "empty type keeps stored type")
}

func TestRepository_UpsertEmptyNameKeepsStoredName(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, UpsertInput{UserID: "u1", DeviceID: "d2", DeviceName: "Kitchen Speaker", DeviceType: "speaker"})
	require.NoError(t, err)

	device, err := repo.Upsert(ctx, UpsertInput{UserID: "u1", DeviceID: "d2"})
	require.NoError(t, err)
	require.Equal(t, "Kitchen Speaker", device.DeviceName)
}

func TestRepository_UpsertRequiresIDs(t *testing.T) {
	repo, _ := setupTestDB(t)

	_, err := repo.Upsert(context.Background(), UpsertInput{UserID: "u1"})
	require.Error(t, err)
	_, err = repo.Upsert(context.Background(), UpsertInput{DeviceID: "d1"})
	require.Error(t, err)
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, _ := setupTestDB(t)

	device, err := repo.Get(context.Background(), "u1", "missing")
	require.NoError(t, err)
	require.Nil(t, device)
}

func TestRepository_GetIsScopedToUser(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, UpsertInput{UserID: "u1", DeviceID: "d1", DeviceName: "Phone"})
	require.NoError(t, err)

	device, err := repo.Get(ctx, "u2", "d1")
	require.NoError(t, err)
	require.Nil(t, device)
}

func TestRepository_ListByUserOrdersByLastSeen(t *testing.T) {
	repo, clock := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, UpsertInput{UserID: "u1", DeviceID: "old", DeviceName: "Old"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = repo.Upsert(ctx, UpsertInput{UserID: "u1", DeviceID: "new", DeviceName: "New"})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, UpsertInput{UserID: "u2", DeviceID: "other", DeviceName: "Other"})
	require.NoError(t, err)

	devices, err := repo.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Equal(t, "new", devices[0].DeviceID)
	require.Equal(t, "old", devices[1].DeviceID)

	limited, err := repo.ListByUser(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestRepository_ListByUserEmpty(t *testing.T) {
	repo, _ := setupTestDB(t)

	devices, err := repo.ListByUser(context.Background(), "nobody", 10)
	require.NoError(t, err)
	require.NotNil(t, devices)
	require.Empty(t, devices)
}

func TestRepository_Delete(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, UpsertInput{UserID: "u1", DeviceID: "d1", DeviceName: "Phone"})
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, "u1", "d1")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.Delete(ctx, "u1", "d1")
	require.NoError(t, err)
	require.False(t, deleted)
}
