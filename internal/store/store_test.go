package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func makeJob(id string, createdAt time.Time) model.Job {
	job := model.NewJob(id, "0xabc", "/data/"+id, `{"request":{"nft_count":1}}`)
	job.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	job.UpdatedAt = job.CreatedAt
	return job
}

func mustCreate(t *testing.T, s *Store, jobs ...model.Job) {
	t.Helper()
	for _, j := range jobs {
		if err := s.CreateJob(context.Background(), j); err != nil {
			t.Fatalf("CreateJob(%s): %v", j.ID, err)
		}
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, makeJob("gen-1", time.Now()))

	got, err := s.GetJob(ctx, "gen-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusPending)
	}
	if got.Dir != "/data/gen-1" {
		t.Errorf("Dir = %q", got.Dir)
	}
	if got.Payload == "" {
		t.Error("Payload should round-trip")
	}
	if got.Result != nil || got.ErrorInfo != nil {
		t.Error("new job should have no result or error info")
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetJob(context.Background(), "nonexistent")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestListJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	mustCreate(t, s, makeJob("gen-1", base), makeJob("gen-2", base.Add(time.Minute)), makeJob("gen-3", base.Add(2*time.Minute)))

	if _, err := s.ClaimNextPending(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	all, err := s.ListJobs(ctx, model.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != "gen-3" {
		t.Errorf("first = %q, want newest gen-3", all[0].ID)
	}

	pending, err := s.ListJobs(ctx, model.JobFilter{Status: []string{model.StatusPending}})
	if err != nil {
		t.Fatalf("ListJobs(PENDING): %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
}

func TestClaimNextPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	mustCreate(t, s, makeJob("gen-new", base.Add(time.Minute)), makeJob("gen-old", base))

	job, err := s.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if job == nil || job.ID != "gen-old" {
		t.Fatalf("claimed %+v, want gen-old", job)
	}
	if job.Status != model.StatusRunning {
		t.Errorf("Status = %q, want RUNNING", job.Status)
	}

	if job, _ = s.ClaimNextPending(ctx); job == nil || job.ID != "gen-new" {
		t.Fatalf("second claim = %+v, want gen-new", job)
	}

	job, err = s.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("ClaimNextPending (empty): %v", err)
	}
	if job != nil {
		t.Errorf("expected nil when nothing is pending, got %s", job.ID)
	}
}

func TestUpdateJobStatus_Transitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, makeJob("gen-1", time.Now()))

	// PENDING -> COMPLETED is not allowed.
	err := s.UpdateJobStatus(ctx, "gen-1", model.StatusCompleted, nil, nil)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	if _, err := s.ClaimNextPending(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	result := `{"success":true}`
	if err := s.UpdateJobStatus(ctx, "gen-1", model.StatusCompleted, &result, nil); err != nil {
		t.Fatalf("RUNNING -> COMPLETED: %v", err)
	}

	got, _ := s.GetJob(ctx, "gen-1")
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q", got.Status)
	}
	if got.Result == nil || *got.Result != result {
		t.Errorf("Result = %v", got.Result)
	}

	err = s.UpdateJobStatus(ctx, "missing", model.StatusFailed, nil, nil)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown id err = %v, want sql.ErrNoRows", err)
	}
}

func TestReportAndFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	mustCreate(t, s, makeJob("gen-ok", base), makeJob("gen-bad", base.Add(time.Second)))
	s.ClaimNextPending(ctx)
	s.ClaimNextPending(ctx)

	res := model.JobResult{Success: true, JobID: "gen-ok", Status: model.ResultStatusReady, FinalCount: 3}
	if err := s.Report(ctx, "gen-ok", res); err != nil {
		t.Fatalf("Report: %v", err)
	}
	info := model.ErrorInfo{FailedStep: "generate", Message: "boom"}
	if err := s.ReportFailure(ctx, "gen-bad", info); err != nil {
		t.Fatalf("ReportFailure: %v", err)
	}

	ok, _ := s.GetJob(ctx, "gen-ok")
	if ok.Status != model.StatusCompleted || ok.Result == nil {
		t.Errorf("gen-ok = %s result=%v", ok.Status, ok.Result)
	}
	bad, _ := s.GetJob(ctx, "gen-bad")
	if bad.Status != model.StatusFailed {
		t.Errorf("gen-bad status = %s", bad.Status)
	}
	if got := model.ParseErrorInfo(bad.ErrorInfo); got.FailedStep != "generate" {
		t.Errorf("FailedStep = %q", got.FailedStep)
	}
}

func TestResetStaleRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, makeJob("gen-1", time.Now()))
	s.ClaimNextPending(ctx)

	n, err := s.ResetStaleRunning(ctx)
	if err != nil {
		t.Fatalf("ResetStaleRunning: %v", err)
	}
	if n != 1 {
		t.Errorf("reset = %d, want 1", n)
	}
	got, _ := s.GetJob(ctx, "gen-1")
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want PENDING", got.Status)
	}
}

func TestListExpiredAndMarkExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, makeJob("gen-done", time.Now().Add(-time.Hour)), makeJob("gen-waiting", time.Now()))
	s.ClaimNextPending(ctx)
	if err := s.Report(ctx, "gen-done", model.JobResult{Success: true}); err != nil {
		t.Fatalf("Report: %v", err)
	}

	none, err := s.ListExpired(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expired before finishing = %d, want 0", len(none))
	}

	expired, err := s.ListExpired(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "gen-done" {
		t.Fatalf("expired = %+v, want only gen-done", expired)
	}

	if err := s.MarkExpired(ctx, "gen-done"); err != nil {
		t.Fatalf("MarkExpired: %v", err)
	}
	if err := s.MarkExpired(ctx, "gen-waiting"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("MarkExpired(pending) err = %v, want ErrInvalidTransition", err)
	}
	again, _ := s.ListExpired(ctx, time.Now().Add(time.Hour))
	if len(again) != 0 {
		t.Errorf("expired after marking = %d, want 0", len(again))
	}
}

func TestCountByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	mustCreate(t, s, makeJob("gen-1", base), makeJob("gen-2", base.Add(time.Second)))
	s.ClaimNextPending(ctx)

	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[model.StatusPending] != 1 || counts[model.StatusRunning] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

type recordingReporter struct {
	results  int
	failures int
}

func (r *recordingReporter) Report(context.Context, string, model.JobResult) error {
	r.results++
	return nil
}

func (r *recordingReporter) ReportFailure(context.Context, string, model.ErrorInfo) error {
	r.failures++
	return nil
}

func TestResultCache(t *testing.T) {
	next := &recordingReporter{}
	c := NewResultCache(next, time.Hour)
	ctx := context.Background()

	if _, ok := c.Result("gen-1"); ok {
		t.Fatal("empty cache should miss")
	}
	want := model.JobResult{Success: true, JobID: "gen-1", FinalCount: 7}
	if err := c.Report(ctx, "gen-1", want); err != nil {
		t.Fatalf("Report: %v", err)
	}
	got, ok := c.Result("gen-1")
	if !ok || got != want {
		t.Errorf("Result = %+v, %v", got, ok)
	}
	if next.results != 1 {
		t.Errorf("forwarded results = %d, want 1", next.results)
	}

	c.Forget("gen-1")
	if _, ok := c.Result("gen-1"); ok {
		t.Error("Forget should drop the entry")
	}

	c.ReportFailure(ctx, "gen-2", model.ErrorInfo{})
	if next.failures != 1 {
		t.Errorf("forwarded failures = %d, want 1", next.failures)
	}
}

func TestMigration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if _, err := New(db); err != nil {
		t.Fatalf("New: %v", err)
	}

	var version int
	if err := db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}

	// Running New again should be idempotent.
	if _, err := New(db); err != nil {
		t.Fatalf("New (second time): %v", err)
	}
}
