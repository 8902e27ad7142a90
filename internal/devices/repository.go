package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultListLimit caps ListByUser when no limit is given.
const DefaultListLimit = 100

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository persists known devices.
// Uses separate reader/writer connections for SQLite concurrency.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
	clock  clockwork.Clock
}

// NewRepository creates a new devices Repository.
func NewRepository(dbPair DBPair, clock clockwork.Clock) *Repository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer(), clock: clock}
}

// Upsert inserts the device or refreshes its label, type and last_seen.
func (r *Repository) Upsert(ctx context.Context, input UpsertInput) (*KnownDevice, error) {
	if input.UserID == "" || input.DeviceID == "" {
		return nil, errors.New("user id and device id are required")
	}

	now := formatTime(r.clock.Now())
	_, err := r.writer.ExecContext(ctx, `
		INSERT INTO known_devices (user_id, device_id, device_name, device_type, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, device_id) DO UPDATE SET
			device_name = CASE WHEN excluded.device_name = '' THEN known_devices.device_name ELSE excluded.device_name END,
			device_type = CASE WHEN excluded.device_type = '' THEN known_devices.device_type ELSE excluded.device_type END,
			last_seen = excluded.last_seen
	`, input.UserID, input.DeviceID, input.DeviceName, input.DeviceType, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert known device: %w", err)
	}

	return r.getFrom(ctx, r.writer, input.UserID, input.DeviceID)
}

// Get returns the device, or nil, nil if the user never registered it.
func (r *Repository) Get(ctx context.Context, userID, deviceID string) (*KnownDevice, error) {
	return r.getFrom(ctx, r.reader, userID, deviceID)
}

// ListByUser returns the user's devices, most recently seen first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]KnownDevice, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.reader.QueryContext(ctx, `
		SELECT user_id, device_id, device_name, device_type, first_seen, last_seen
		FROM known_devices
		WHERE user_id = ?
		ORDER BY last_seen DESC, device_id ASC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []KnownDevice{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return devices, nil
}

// Delete forgets a device. It reports whether a row was removed.
func (r *Repository) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	result, err := r.writer.ExecContext(ctx, `
		DELETE FROM known_devices WHERE user_id = ? AND device_id = ?
	`, userID, deviceID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *Repository) getFrom(ctx context.Context, conn *sql.DB, userID, deviceID string) (*KnownDevice, error) {
	row := conn.QueryRowContext(ctx, `
		SELECT user_id, device_id, device_name, device_type, first_seen, last_seen
		FROM known_devices
		WHERE user_id = ? AND device_id = ?
	`, userID, deviceID)

	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return device, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*KnownDevice, error) {
	var device KnownDevice
	var firstSeen, lastSeen string

	if err := s.Scan(&device.UserID, &device.DeviceID, &device.DeviceName, &device.DeviceType, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}

	device.FirstSeen = parseTime(firstSeen)
	device.LastSeen = parseTime(lastSeen)
	return &device, nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
