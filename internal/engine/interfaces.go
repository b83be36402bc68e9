package engine

import (
	"context"
	"time"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// Compositor renders one item image from its per-layer sources.
type Compositor interface {
	ComposeFile(ctx context.Context, sources []string, format, dst string) error
}

// MetricsRecorder receives generation counters. Implementations must be safe
// for concurrent use.
type MetricsRecorder interface {
	RecordItem(format string)
	RecordCompositionFailure()
	RecordRejections(n int)
	ObserveJob(status string, d time.Duration)
}

// NopRecorder discards all metrics.
type NopRecorder struct{}

func (NopRecorder) RecordItem(string)                {}
func (NopRecorder) RecordCompositionFailure()        {}
func (NopRecorder) RecordRejections(int)             {}
func (NopRecorder) ObserveJob(string, time.Duration) {}

// Reporter receives the result of every completed job.
type Reporter interface {
	Report(ctx context.Context, jobID string, result model.JobResult) error
}
