package worker

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// Expirer lists and retires finished jobs.
type Expirer interface {
	ListExpired(ctx context.Context, before time.Time) ([]model.Job, error)
	MarkExpired(ctx context.Context, id string) error
}

// JobLookup resolves a job directory name to its job row.
type JobLookup interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// Forgetter drops cached state for an expired job.
type Forgetter interface {
	Forget(id string)
}

// Sweeper removes the output of finished jobs once their retention window
// has passed.
type Sweeper struct {
	expirer   Expirer
	forgetter Forgetter
	retention time.Duration
	interval  time.Duration

	// dataDir and lookup enable pruning of directories without a job row.
	dataDir string
	lookup  JobLookup
}

// NewSweeper creates a Sweeper. forgetter may be nil.
func NewSweeper(expirer Expirer, forgetter Forgetter, retention, interval time.Duration) *Sweeper {
	return &Sweeper{expirer: expirer, forgetter: forgetter, retention: retention, interval: interval}
}

// PruneOrphans makes every sweep also remove directories directly under
// dataDir that are older than the retention window and belong to no job,
// such as metadata rewrite output or leftovers of rejected submissions.
func (s *Sweeper) PruneOrphans(dataDir string, lookup JobLookup) *Sweeper {
	s.dataDir = dataDir
	s.lookup = lookup
	return s
}

// Start sweeps every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("sweeper started", "retention", s.retention.String(), "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			slog.Error("sweep failed", "error", err)
		}
		if _, err := s.SweepOrphans(ctx); err != nil && ctx.Err() == nil {
			slog.Error("orphan sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires every job that finished more than the retention window ago
// and returns how many were expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	jobs, err := s.expirer.ListExpired(ctx, time.Now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if job.Dir != "" {
			if err := os.RemoveAll(job.Dir); err != nil {
				slog.Warn("failed to remove expired job output", "job_id", job.ID, "dir", job.Dir, "error", err)
				continue
			}
		}
		if err := s.expirer.MarkExpired(ctx, job.ID); err != nil {
			slog.Warn("failed to mark job expired", "job_id", job.ID, "error", err)
			continue
		}
		if s.forgetter != nil {
			s.forgetter.Forget(job.ID)
		}
		slog.Info("cleaned up expired job output", "job_id", job.ID)
		n++
	}
	return n, nil
}

// SweepOrphans removes stale directories under the data dir that no job row
// claims. It is a no-op unless PruneOrphans was called.
func (s *Sweeper) SweepOrphans(ctx context.Context) (int, error) {
	if s.dataDir == "" || s.lookup == nil {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dataDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.retention)
	n := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if _, err := s.lookup.GetJob(ctx, e.Name()); err == nil {
			// Job rows are retired by Sweep.
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return n, err
		}
		dir := filepath.Join(s.dataDir, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove orphaned output", "dir", dir, "error", err)
			continue
		}
		slog.Info("removed orphaned output", "dir", dir)
		n++
	}
	return n, nil
}
