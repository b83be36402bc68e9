package worker

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func (q *fakeQueue) ClaimNextPending(context.Context) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	j.Status = model.StatusRunning
	return j, nil
}

type fakeReporter struct {
	mu       sync.Mutex
	results  map[string]model.JobResult
	failures map[string]model.ErrorInfo
	done     chan string
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{
		results:  map[string]model.JobResult{},
		failures: map[string]model.ErrorInfo{},
		done:     make(chan string, 8),
	}
}

func (r *fakeReporter) Report(ctx context.Context, id string, res model.JobResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.results[id] = res
	r.mu.Unlock()
	r.done <- id
	return nil
}

func (r *fakeReporter) ReportFailure(ctx context.Context, id string, info model.ErrorInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.failures[id] = info
	r.mu.Unlock()
	r.done <- id
	return nil
}

type stepErr struct{ step string }

func (e *stepErr) Error() string    { return e.step + ": broken" }
func (e *stepErr) StepName() string { return e.step }

type fakeProcessor struct {
	fail map[string]error
}

func (p *fakeProcessor) Run(_ context.Context, job *model.Job) (*model.JobResult, error) {
	if err := p.fail[job.ID]; err != nil {
		return nil, err
	}
	return &model.JobResult{Success: true, JobID: job.ID, Status: model.ResultStatusReady, FinalCount: 2}, nil
}

func waitFor(t *testing.T, ch <-chan string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for job %d of %d", i+1, n)
		}
	}
}

func TestWorker_ProcessesJobs(t *testing.T) {
	failedDir := filepath.Join(t.TempDir(), "gen-bad")
	require.NoError(t, os.MkdirAll(failedDir, 0o755))
	okDir := filepath.Join(t.TempDir(), "gen-ok")
	require.NoError(t, os.MkdirAll(okDir, 0o755))

	q := &fakeQueue{jobs: []*model.Job{
		{ID: "gen-ok", Status: model.StatusPending, Dir: okDir},
		{ID: "gen-bad", Status: model.StatusPending, Dir: failedDir},
	}}
	rep := newFakeReporter()
	proc := &fakeProcessor{fail: map[string]error{"gen-bad": &stepErr{step: "generate"}}}
	w := New(q, proc, rep, 10*time.Millisecond,
		WithPermanentErrors(func(err error) bool { return true }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	waitFor(t, rep.done, 2)
	cancel()
	<-done

	rep.mu.Lock()
	defer rep.mu.Unlock()
	assert.Equal(t, 2, rep.results["gen-ok"].FinalCount)
	assert.DirExists(t, okDir)

	info, ok := rep.failures["gen-bad"]
	require.True(t, ok)
	assert.Equal(t, "generate", info.FailedStep)
	assert.Equal(t, "generate: broken", info.Message)
	assert.False(t, info.Retryable)
	assert.NotEmpty(t, info.FailedAt)
	assert.NoDirExists(t, failedDir)
}

// cancelOnRun cancels the worker context while the job is running, as a
// shutdown signal arriving at the end of a pipeline does.
type cancelOnRun struct {
	cancel context.CancelFunc
	err    error
}

func (p *cancelOnRun) Run(_ context.Context, job *model.Job) (*model.JobResult, error) {
	p.cancel()
	if p.err != nil {
		return nil, p.err
	}
	return &model.JobResult{Success: true, JobID: job.ID, Status: model.ResultStatusReady, FinalCount: 3}, nil
}

func TestWorker_ReportsAfterShutdownSignal(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "completed"},
		{name: "failed", err: &stepErr{step: "package"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			rep := newFakeReporter()
			w := New(nil, &cancelOnRun{cancel: cancel, err: tt.err}, rep, time.Second)

			w.process(ctx, &model.Job{ID: "gen-1", Status: model.StatusRunning})

			require.Error(t, ctx.Err())
			rep.mu.Lock()
			defer rep.mu.Unlock()
			if tt.err == nil {
				assert.Equal(t, 3, rep.results["gen-1"].FinalCount)
			} else {
				assert.Equal(t, "package", rep.failures["gen-1"].FailedStep)
			}
		})
	}
}

func TestBuildErrorInfo(t *testing.T) {
	w := New(nil, nil, nil, time.Second)

	info := w.buildErrorInfo(errors.New("plain"))
	assert.Equal(t, "unknown", info.FailedStep)
	assert.True(t, info.Retryable)

	info = w.buildErrorInfo(context.Canceled)
	assert.False(t, info.Retryable)
}

type fakeExpirer struct {
	jobs    []model.Job
	expired []string
	before  time.Time
}

func (e *fakeExpirer) ListExpired(_ context.Context, before time.Time) ([]model.Job, error) {
	e.before = before
	return e.jobs, nil
}

func (e *fakeExpirer) MarkExpired(_ context.Context, id string) error {
	e.expired = append(e.expired, id)
	return nil
}

type fakeForgetter struct{ ids []string }

func (f *fakeForgetter) Forget(id string) { f.ids = append(f.ids, id) }

func TestSweeper_Sweep(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gen-old")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "generated_output"), 0o755))

	exp := &fakeExpirer{jobs: []model.Job{{ID: "gen-old", Status: model.StatusCompleted, Dir: dir}}}
	fg := &fakeForgetter{}
	s := NewSweeper(exp, fg, 2*time.Hour, time.Minute)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, dir)
	assert.Equal(t, []string{"gen-old"}, exp.expired)
	assert.Equal(t, []string{"gen-old"}, fg.ids)
	assert.WithinDuration(t, time.Now().Add(-2*time.Hour), exp.before, time.Minute)
}

func TestSweeper_StartStops(t *testing.T) {
	exp := &fakeExpirer{}
	s := NewSweeper(exp, nil, time.Hour, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Start(ctx)
}

type fakeLookup struct{ known map[string]bool }

func (l *fakeLookup) GetJob(_ context.Context, id string) (*model.Job, error) {
	if l.known[id] {
		return &model.Job{ID: id}, nil
	}
	return nil, sql.ErrNoRows
}

func TestSweeper_SweepOrphans(t *testing.T) {
	dataDir := t.TempDir()
	old := time.Now().Add(-3 * time.Hour)
	for _, name := range []string{"rewrite-1", "gen-known", "fresh"} {
		dir := filepath.Join(dataDir, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		if name != "fresh" {
			require.NoError(t, os.Chtimes(dir, old, old))
		}
	}

	s := NewSweeper(&fakeExpirer{}, nil, 2*time.Hour, time.Minute).
		PruneOrphans(dataDir, &fakeLookup{known: map[string]bool{"gen-known": true}})

	n, err := s.SweepOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, filepath.Join(dataDir, "rewrite-1"))
	assert.DirExists(t, filepath.Join(dataDir, "gen-known"))
	assert.DirExists(t, filepath.Join(dataDir, "fresh"))
}
