package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/rikiramadhan1028/NEW-ART/internal/engine"
	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// reportTimeout bounds the final status write of a job.
const reportTimeout = 5 * time.Second

// Processor runs the processing pipeline for a single job.
type Processor interface {
	Run(ctx context.Context, job *model.Job) (*model.JobResult, error)
}

// JobClaimer provides the atomic claim used to pick up work.
type JobClaimer interface {
	ClaimNextPending(ctx context.Context) (*model.Job, error)
}

// Reporter records the outcome of a finished job.
type Reporter interface {
	engine.Reporter
	ReportFailure(ctx context.Context, id string, info model.ErrorInfo) error
}

// Observer receives the duration of every finished job.
type Observer interface {
	ObserveJob(status string, d time.Duration)
}

// Worker polls for PENDING jobs and runs the pipeline, one job at a time.
type Worker struct {
	claimer   JobClaimer
	processor Processor
	reporter  Reporter
	observer  Observer
	interval  time.Duration
	// permanent reports whether a failure would recur on retry.
	permanent func(error) bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithObserver reports job durations to o.
func WithObserver(o Observer) Option {
	return func(w *Worker) { w.observer = o }
}

// WithPermanentErrors classifies pipeline errors as non-retryable.
func WithPermanentErrors(fn func(error) bool) Option {
	return func(w *Worker) { w.permanent = fn }
}

// New creates a new Worker.
func New(claimer JobClaimer, processor Processor, reporter Reporter, interval time.Duration, opts ...Option) *Worker {
	w := &Worker{claimer: claimer, processor: processor, reporter: reporter, interval: interval}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the polling loop. It blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("worker started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return
		default:
		}

		job, err := w.claimer.ClaimNextPending(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("worker claim error", "error", err)
			}
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *model.Job) {
	log := slog.With("job_id", job.ID)
	log.Info("processing job", "user_address", job.UserAddress)
	started := time.Now()

	result, err := w.processor.Run(ctx, job)
	if err != nil {
		log.Error("pipeline failed", "error", err)
		// Failed jobs keep no output around.
		if job.Dir != "" {
			if rmErr := os.RemoveAll(job.Dir); rmErr != nil {
				log.Warn("failed to remove job directory", "dir", job.Dir, "error", rmErr)
			}
		}
		rctx, cancel := reportContext(ctx)
		defer cancel()
		if sErr := w.reporter.ReportFailure(rctx, job.ID, w.buildErrorInfo(err)); sErr != nil {
			log.Error("failed to set FAILED status", "error", sErr)
		}
		w.observe(model.StatusFailed, started)
		return
	}

	rctx, cancel := reportContext(ctx)
	defer cancel()
	if err := w.reporter.Report(rctx, job.ID, *result); err != nil {
		log.Error("failed to set COMPLETED status", "error", err)
		return
	}
	w.observe(model.StatusCompleted, started)
	log.Info("job completed", "final_count", result.FinalCount, "zip", result.ZipDownloadURL, "took", time.Since(started).Round(time.Millisecond))
}

// reportContext detaches the final status write from ctx so a shutdown
// that lands after the pipeline finished does not leave the job RUNNING.
func reportContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
}

func (w *Worker) observe(status string, started time.Time) {
	if w.observer != nil {
		w.observer.ObserveJob(status, time.Since(started))
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.interval):
	}
}

// stepNamer is implemented by errors that carry a pipeline step name.
type stepNamer interface {
	StepName() string
}

func (w *Worker) buildErrorInfo(err error) model.ErrorInfo {
	step := "unknown"
	var sn stepNamer
	if errors.As(err, &sn) {
		step = sn.StepName()
	}
	retryable := !errors.Is(err, context.Canceled)
	if w.permanent != nil && w.permanent(err) {
		retryable = false
	}
	return model.ErrorInfo{
		FailedStep: step,
		Message:    err.Error(),
		Retryable:  retryable,
		FailedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}
