package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/strefethen/playback-hub-go/internal/config"
	"github.com/strefethen/playback-hub-go/internal/logging"
	"github.com/strefethen/playback-hub-go/internal/metrics"
)

// Default configuration values
const (
	DefaultRetentionDays   = 30
	DefaultPruneSchedule   = "0 3 * * *"
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	DefaultRecordBuffer    = 256
	MaxConsecutiveFailures = 3

	writeTimeout = 5 * time.Second
)

// Service records hub events asynchronously and prunes them on a cron schedule.
type Service struct {
	logger        *zap.SugaredLogger
	repo          *Repository
	clock         clockwork.Clock
	retentionDays int
	pruneSchedule string

	events   chan WriteEventInput
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	wg       sync.WaitGroup
	cron     *cron.Cron

	healthy             bool
	healthMu            sync.RWMutex
	consecutiveFailures int
}

// NewService creates a new audit service.
// Accepts a DBPair for optimal SQLite concurrency with separate reader/writer pools.
func NewService(cfg config.Config, dbPair DBPair, logger *zap.SugaredLogger, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	retentionDays := cfg.AuditRetentionDays
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	schedule := cfg.AuditPruneSchedule
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	return &Service{
		logger:        logging.OrNop(logger).Named("audit"),
		repo:          NewRepository(dbPair, clock),
		clock:         clock,
		retentionDays: retentionDays,
		pruneSchedule: schedule,
		events:        make(chan WriteEventInput, DefaultRecordBuffer),
		stopCh:        make(chan struct{}),
		healthy:       true,
	}
}

// Record queues an event for writing and returns immediately.
// The timestamp is captured now, not when the worker writes it.
// A full buffer drops the event.
func (s *Service) Record(input WriteEventInput) {
	if s.stopped.Load() {
		return
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = s.clock.Now()
	}

	select {
	case s.events <- input:
	default:
		metrics.AuditEventsDropped.Inc()
		s.logger.Warnw("Audit buffer full, dropping event",
			"type", input.Type,
			"user_id", input.UserID,
		)
	}
}

// Start launches the writer goroutine and the prune schedule.
// Pruning also runs once immediately.
func (s *Service) Start() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	if _, err := s.cron.AddFunc(s.pruneSchedule, s.runPrune); err != nil {
		return fmt.Errorf("invalid audit prune schedule %q: %w", s.pruneSchedule, err)
	}

	s.logger.Infow("Starting audit service",
		"prune_schedule", s.pruneSchedule,
		"retention_days", s.retentionDays,
	)

	s.wg.Add(1)
	go s.runWriter()

	s.runPrune()
	s.cron.Start()
	return nil
}

// Stop halts the prune schedule and flushes queued events.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Infow("Audit service stopped")
	})
}

func (s *Service) runWriter() {
	defer s.wg.Done()

	for {
		select {
		case input := <-s.events:
			s.write(input)
		case <-s.stopCh:
			for {
				select {
				case input := <-s.events:
					s.write(input)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(input WriteEventInput) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if _, err := s.repo.InsertEvent(ctx, input); err != nil {
		s.recordFailure()
		s.logger.Errorw("Failed to record audit event",
			"type", input.Type,
			"user_id", input.UserID,
			"error", err,
		)
		return
	}
	s.recordSuccess()
}

func (s *Service) runPrune() {
	count, err := s.Prune(context.Background())
	if err != nil {
		s.logger.Errorw("Error pruning audit events", "error", err)
		return
	}
	if count > 0 {
		s.logger.Infow("Pruned audit events", "count", count)
	}
}

// Prune deletes events older than the retention period, returns count deleted.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -s.retentionDays)
	count, err := s.repo.Prune(ctx, cutoff)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// QueryEvents retrieves a user's events with pagination.
// Clamps limit to MaxQueryLimit. Returns events, total count, hasMore flag, error.
func (s *Service) QueryEvents(ctx context.Context, filters EventQueryFilters) ([]HubEvent, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(ctx, filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query audit events: %w", err)
	}

	s.recordSuccess()

	hasMore := filters.Offset+len(events) < total
	return events, total, hasMore, nil
}

// GetEvent retrieves a single event owned by userID.
func (s *Service) GetEvent(ctx context.Context, userID, eventID string) (*HubEvent, error) {
	event, err := s.repo.GetEvent(ctx, userID, eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}

	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}

	s.recordSuccess()
	return event, nil
}

// IsHealthy returns current health status.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

// recordSuccess resets the consecutive failure count and marks service as healthy.
func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

// recordFailure increments the consecutive failure count and marks unhealthy after threshold.
func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when an audit event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("audit event not found: %s", e.EventID)
}
