package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// timeLayout is fixed-width so stored timestamps sort and compare lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for hub events.
// Uses separate reader/writer connections for optimal SQLite concurrency.
type Repository struct {
	reader *sql.DB // For SELECT queries
	writer *sql.DB // For INSERT/DELETE
	clock  clockwork.Clock
}

// NewRepository creates a new audit Repository.
func NewRepository(dbPair DBPair, clock clockwork.Clock) *Repository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer(), clock: clock}
}

// InsertEvent writes a new event and returns it as stored.
func (r *Repository) InsertEvent(ctx context.Context, input WriteEventInput) (*HubEvent, error) {
	if input.UserID == "" {
		return nil, errors.New("user id is required")
	}

	eventID := uuid.New().String()

	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = r.clock.Now()
	}

	level := input.Level
	if level == "" {
		level = EventLevelInfo
	}

	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.ExecContext(ctx, `
		INSERT INTO hub_events (event_id, timestamp, user_id, connection_id, device_id, type, level, message, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, formatTime(timestamp), input.UserID, nullable(input.ConnectionID), nullable(input.DeviceID),
		string(input.Type), string(level), input.Message, string(payloadJSON))
	if err != nil {
		return nil, err
	}

	row := r.writer.QueryRowContext(ctx, selectColumns+` WHERE event_id = ?`, eventID)
	return scanEvent(row)
}

// GetEvent retrieves a single event of userID.
// Returns nil, nil if not found or owned by another user.
func (r *Repository) GetEvent(ctx context.Context, userID, eventID string) (*HubEvent, error) {
	row := r.reader.QueryRowContext(ctx, selectColumns+` WHERE event_id = ? AND user_id = ?`, eventID, userID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// QueryEvents retrieves events matching filters, newest first.
// Returns events, total count, and error.
func (r *Repository) QueryEvents(ctx context.Context, filters EventQueryFilters) ([]HubEvent, int, error) {
	whereClause, args := buildWhereClause(filters)

	var total int
	if err := r.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM hub_events "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := selectColumns + " " + whereClause + `
		ORDER BY timestamp DESC, event_id ASC
		LIMIT ? OFFSET ?
	`
	queryArgs := append(args, limit, filters.Offset)

	rows, err := r.reader.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []HubEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// Prune deletes events older than the cutoff time.
// Returns number of rows deleted.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.writer.ExecContext(ctx, `
		DELETE FROM hub_events
		WHERE timestamp < ?
	`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

const selectColumns = `
		SELECT event_id, timestamp, user_id, connection_id, device_id, type, level, message, payload
		FROM hub_events`

func buildWhereClause(filters EventQueryFilters) (string, []any) {
	conditions := []string{"user_id = ?"}
	args := []any{filters.UserID}

	if filters.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*filters.Type))
	}
	if filters.ConnectionID != nil {
		conditions = append(conditions, "connection_id = ?")
		args = append(args, *filters.ConnectionID)
	}
	if filters.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(*filters.Since))
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*HubEvent, error) {
	var event HubEvent
	var timestamp, eventType, level, payloadJSON string
	var connectionID, deviceID sql.NullString

	err := s.Scan(
		&event.EventID,
		&timestamp,
		&event.UserID,
		&connectionID,
		&deviceID,
		&eventType,
		&level,
		&event.Message,
		&payloadJSON,
	)
	if err != nil {
		return nil, err
	}

	event.Timestamp, _ = time.Parse(timeLayout, timestamp)
	event.Type = EventType(eventType)
	event.Level = EventLevel(level)
	if connectionID.Valid {
		event.ConnectionID = &connectionID.String
	}
	if deviceID.Valid {
		event.DeviceID = &deviceID.String
	}

	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, err
	}

	return &event, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
