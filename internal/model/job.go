package model

import (
	"errors"
	"fmt"
	"time"
)

// Job status constants
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusExpired   = "EXPIRED"
)

// ResultStatusReady is the status reported to clients once the output archive can be downloaded.
const ResultStatusReady = "COMPLETED_FOR_DOWNLOAD"

// ErrInvalidTransition is returned when a job cannot move to the requested status.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Job is one generation request tracked through the background worker.
type Job struct {
	ID          string  `json:"id"`
	UserAddress string  `json:"user_address"`
	Status      string  `json:"status"`
	Payload     string  `json:"-"` // JSON-encoded JobPayload
	Result      *string `json:"result,omitempty"`
	ErrorInfo   *string `json:"error_info,omitempty"`
	Dir         string  `json:"-"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// JobPayload is everything the worker needs to run a job, fixed at submission time.
type JobPayload struct {
	Request JobRequest `json:"request"`
	Catalog Catalog    `json:"catalog"`
	// InputDir is the directory layer paths in Catalog are relative to.
	InputDir string `json:"input_dir"`
	// UploadDir is where the upload was extracted; it may be a parent of InputDir.
	UploadDir string `json:"upload_dir,omitempty"`
	OutputDir string `json:"output_dir"`
}

// JobResult is what a completed job reports to the status endpoint.
type JobResult struct {
	Success        bool   `json:"success"`
	JobID          string `json:"jobId"`
	Status         string `json:"status"`
	ZipDownloadURL string `json:"zipDownloadUrl"`
	FinalCount     int    `json:"finalCount"`
	OutputFormat   string `json:"outputFormat"`
}

// JobFilter holds query parameters for listing jobs.
type JobFilter struct {
	Status []string
}

// NewJob creates a new Job with PENDING status.
func NewJob(id, userAddress, dir, payload string) Job {
	now := time.Now().UTC().Format(time.RFC3339)
	return Job{
		ID:          id,
		UserAddress: userAddress,
		Status:      StatusPending,
		Payload:     payload,
		Dir:         dir,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// transitions lists, for each target status, the statuses a job may leave to reach it.
var transitions = map[string][]string{
	StatusRunning:   {StatusPending},
	StatusPending:   {StatusRunning}, // stale reset after restart
	StatusCompleted: {StatusRunning},
	StatusFailed:    {StatusPending, StatusRunning},
	StatusExpired:   {StatusCompleted, StatusFailed},
}

// AllowedFrom returns the statuses from which a job may move to status.
func AllowedFrom(status string) []string {
	return transitions[status]
}

// ValidateTransition checks whether the job may move to the target status.
func (j *Job) ValidateTransition(to string) error {
	for _, from := range transitions[to] {
		if from == j.Status {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
}

// IsTerminal reports whether the job will not change status again without cleanup.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}
