// Package audit records data-plane mutations and prunes old entries.
//
// The audit_log table is intentionally left out of the policy registry, so
// only admin callers can read it through the generic data endpoints.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"planbase/internal/domain"
)

// Recorder writes audit entries. Failures are logged and swallowed; an
// audit write never fails the mutation it describes.
type Recorder struct {
	writeDB *sql.DB
	logger  *slog.Logger
}

// NewRecorder creates a Recorder on the write pool.
func NewRecorder(writeDB *sql.DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{writeDB: writeDB, logger: logger}
}

// Record inserts one audit entry.
func (r *Recorder) Record(ctx context.Context, actorID, action, table, recordID string) {
	_, err := r.writeDB.ExecContext(ctx,
		"INSERT INTO audit_log (id, actor_id, action, table_name, record_id) VALUES (?, ?, ?, ?, ?)",
		domain.NewID(), actorID, action, table, recordID)
	if err != nil {
		r.logger.Error("audit write failed",
			"actor_id", actorID, "action", action, "table", table, "error", err)
	}
}

// Retention prunes audit entries older than the configured number of days on
// a nightly schedule.
type Retention struct {
	writeDB *sql.DB
	days    int
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewRetention creates a Retention sweeper. days must be positive.
func NewRetention(writeDB *sql.DB, days int, logger *slog.Logger) (*Retention, error) {
	if days <= 0 {
		return nil, fmt.Errorf("audit retention days must be positive, got %d", days)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{writeDB: writeDB, days: days, cron: cron.New(), logger: logger}, nil
}

// Start schedules the nightly purge. Call Stop on shutdown.
func (r *Retention) Start() error {
	_, err := r.cron.AddFunc("0 3 * * *", func() {
		n, err := r.Purge(context.Background())
		if err != nil {
			r.logger.Error("audit purge failed", "error", err)
			return
		}
		r.logger.Info("audit purge complete", "deleted", n, "retention_days", r.days)
	})
	if err != nil {
		return fmt.Errorf("schedule audit purge: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running purge to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// Purge deletes entries older than the retention window and returns how many
// rows were removed.
func (r *Retention) Purge(ctx context.Context) (int64, error) {
	res, err := r.writeDB.ExecContext(ctx,
		"DELETE FROM audit_log WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", r.days))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
