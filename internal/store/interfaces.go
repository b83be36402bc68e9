package store

import (
	"context"
	"time"

	"github.com/rikiramadhan1028/NEW-ART/internal/engine"
	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// JobReader provides read access to jobs.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, f model.JobFilter) ([]model.Job, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// JobWriter provides write access to jobs.
type JobWriter interface {
	CreateJob(ctx context.Context, job model.Job) error
	UpdateJobStatus(ctx context.Context, id, newStatus string, result, errorInfo *string) error
}

// JobClaimer provides atomic claim operations for background processing.
type JobClaimer interface {
	ClaimNextPending(ctx context.Context) (*model.Job, error)
	ResetStaleRunning(ctx context.Context) (int64, error)
}

// JobReporter records the outcome of a finished job.
type JobReporter interface {
	engine.Reporter
	ReportFailure(ctx context.Context, id string, info model.ErrorInfo) error
}

// JobExpirer finds and retires finished jobs whose output is past retention.
type JobExpirer interface {
	ListExpired(ctx context.Context, before time.Time) ([]model.Job, error)
	MarkExpired(ctx context.Context, id string) error
}

// JobRepository combines the job operations used by the API layer.
type JobRepository interface {
	JobReader
	JobWriter
}
