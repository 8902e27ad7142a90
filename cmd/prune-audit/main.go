// Command prune-audit deletes coordination events older than the retention window.
//
// The server prunes on its own schedule; this is for one-off cleanup, for example
// after lowering AUDIT_RETENTION_DAYS.
//
// Usage:
//
//	go run ./cmd/prune-audit
//
// SQLITE_DB_PATH and AUDIT_RETENTION_DAYS are read like the server reads them.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/strefethen/playback-hub-go/internal/audit"
	"github.com/strefethen/playback-hub-go/internal/config"
	"github.com/strefethen/playback-hub-go/internal/db"
	"github.com/strefethen/playback-hub-go/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		logger.Fatalw("Failed to open database", "path", cfg.SQLiteDBPath, "error", err)
	}
	defer dbPair.Close()

	clock := clockwork.NewRealClock()
	cutoff := clock.Now().Add(-time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := audit.NewRepository(dbPair, clock).Prune(ctx, cutoff)
	if err != nil {
		logger.Fatalw("Prune failed", "error", err)
	}

	logger.Infow("Audit events pruned",
		"deleted", deleted,
		"cutoff", cutoff.UTC().Format(time.RFC3339),
		"retention_days", cfg.AuditRetentionDays,
	)
}
