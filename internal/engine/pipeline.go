package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// StepContext carries state between the steps of one job run.
type StepContext struct {
	Job      *model.Job
	Payload  model.JobPayload
	Assembly *Assembly
	// ArchivePath is set by the package step.
	ArchivePath string
	Result      model.JobResult
}

// Step is one stage of job processing.
type Step interface {
	Name() string
	Run(ctx context.Context, sc *StepContext) error
}

// Pipeline runs steps in order and stops at the first failure.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a pipeline from the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Run executes all steps for job. On failure it returns a *StepError naming
// the step that failed.
func (p *Pipeline) Run(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	sc := &StepContext{Job: job}
	if err := json.Unmarshal([]byte(job.Payload), &sc.Payload); err != nil {
		return nil, &StepError{Step: "decode_payload", Err: fmt.Errorf("decode job payload: %w", err)}
	}
	sc.Result = model.JobResult{
		JobID:        job.ID,
		OutputFormat: sc.Payload.Request.OutputFormat,
	}

	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, &StepError{Step: s.Name(), Err: err}
		}
		if err := s.Run(ctx, sc); err != nil {
			return nil, &StepError{Step: s.Name(), Err: err}
		}
	}

	sc.Result.Success = true
	sc.Result.Status = model.ResultStatusReady
	return &sc.Result, nil
}

// StepError wraps an error with the step name that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepName returns the failing step.
func (e *StepError) StepName() string {
	return e.Step
}
