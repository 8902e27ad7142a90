package system

import (
	"fmt"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
)

// Version is the hub version, set at build time or defaulted.
var Version = "1.0.0"

// Pinger checks database connectivity (matches db.DBPair).
type Pinger interface {
	Ping() error
}

// ConnectionCounter reports live hub connections (matches playback.Registry).
type ConnectionCounter interface {
	Count() int
}

// HealthChecker reports whether a background worker is healthy (matches audit.Service).
type HealthChecker interface {
	IsHealthy() bool
}

// Service reports process status for the info and readiness endpoints.
type Service struct {
	db          Pinger
	connections ConnectionCounter
	auditWriter HealthChecker
	clock       clockwork.Clock
	startTime   time.Time
}

// NewService creates a new system service. auditWriter may be nil.
func NewService(db Pinger, connections ConnectionCounter, auditWriter HealthChecker, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		db:          db,
		connections: connections,
		auditWriter: auditWriter,
		clock:       clock,
		startTime:   clock.Now(),
	}
}

// SystemInfo holds system information.
type SystemInfo struct {
	HubVersion         string  `json:"hub_version"`
	Uptime             int64   `json:"uptime_seconds"`
	MemoryUsageMB      float64 `json:"memory_mb"`
	Goroutines         int     `json:"goroutines"`
	SQLiteConnected    bool    `json:"sqlite_connected"`
	AuditWriterHealthy bool    `json:"audit_writer_healthy"`
	ConnectionsCurrent int     `json:"connections_current"`
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo() *SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemInfo{
		HubVersion:         Version,
		Uptime:             int64(s.clock.Since(s.startTime).Seconds()),
		MemoryUsageMB:      float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:         runtime.NumGoroutine(),
		SQLiteConnected:    s.db.Ping() == nil,
		AuditWriterHealthy: s.auditWriterHealthy(),
		ConnectionsCurrent: s.connections.Count(),
	}
}

// Ready returns an error naming the first dependency that is not ready.
func (s *Service) Ready() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if !s.auditWriterHealthy() {
		return fmt.Errorf("audit writer is unhealthy")
	}
	return nil
}

func (s *Service) auditWriterHealthy() bool {
	if s.auditWriter == nil {
		return true
	}
	return s.auditWriter.IsHealthy()
}
