package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
)

// Cleanup deletes files under sessions/, steps/, and issues/ whose
// mtime is older than retentionDays, returning the count removed.
// Grounded on original_source/norn/core/audit_logger.py::
// LocalFileStore.cleanup_old_logs.
func (s *Store) Cleanup(retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, sub := range []string{"sessions", "steps", "issues"} {
		dir := filepath.Join(s.root, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}

// RetentionScheduler runs Cleanup on a cron cadence, following the
// Start/Stop/background-goroutine shape of tarsy's
// pkg/cleanup/service.go, with the fixed ticker replaced by a cron
// expression parsed by github.com/adhocore/gronx (domain-stack pick
// from vanducng-goclaw) so the sweep cadence is independently
// configurable from the retention window itself.
type RetentionScheduler struct {
	store         *Store
	cron          *gronx.Gronx
	cronExpr      string
	retentionDays func() int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetentionScheduler builds a scheduler. retentionDays is read
// lazily on every tick so a runtime config change (PUT /config) takes
// effect on the next sweep without restarting the scheduler.
func NewRetentionScheduler(s *Store, cronExpr string, retentionDays func() int) *RetentionScheduler {
	return &RetentionScheduler{store: s, cron: gronx.New(), cronExpr: cronExpr, retentionDays: retentionDays}
}

// Start launches the background sweep loop.
func (r *RetentionScheduler) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
	slog.Info("Retention scheduler started", "cron", r.cronExpr)
}

// Stop signals the loop to exit and waits for it.
func (r *RetentionScheduler) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	slog.Info("Retention scheduler stopped")
}

func (r *RetentionScheduler) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := r.cron.IsDue(r.cronExpr)
			if err != nil {
				slog.Error("Retention: invalid cron expression", "cron", r.cronExpr, "error", err)
				continue
			}
			if !due {
				continue
			}
			count, err := r.store.Cleanup(r.retentionDays())
			if err != nil {
				slog.Error("Retention sweep failed", "error", err)
				continue
			}
			if count > 0 {
				slog.Info("Retention sweep removed files", "count", count)
			}
		}
	}
}
