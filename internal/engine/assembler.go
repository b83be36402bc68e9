package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rikiramadhan1028/NEW-ART/internal/metadata"
	"github.com/rikiramadhan1028/NEW-ART/internal/model"
	"github.com/rikiramadhan1028/NEW-ART/internal/sampler"
)

// DefaultMaxConsecutiveFailures bounds back-to-back item failures before a
// job is declared stuck.
const DefaultMaxConsecutiveFailures = 100

// ErrNoProgress is returned when items keep failing and the job cannot
// reach its target count.
var ErrNoProgress = errors.New("generation is not making progress")

// Output directory names inside a job's output folder.
const (
	ImagesDirName   = "images"
	MetadataDirName = "metadata"
)

// AssemblerOptions configures an Assembler.
type AssemblerOptions struct {
	MaxConsecutiveRejections int
	MaxConsecutiveFailures   int
	// Rand seeds the sampler; nil uses a random seed per job.
	Rand *rand.Rand
}

// Assembler drives sampling, compositing and metadata emission for one job
// at a time. Items are produced strictly sequentially.
type Assembler struct {
	compositor Compositor
	metrics    MetricsRecorder
	opts       AssemblerOptions
}

// NewAssembler creates an Assembler. A nil recorder disables metrics.
func NewAssembler(c Compositor, m MetricsRecorder, opts AssemblerOptions) *Assembler {
	if m == nil {
		m = NopRecorder{}
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	return &Assembler{compositor: c, metrics: m, opts: opts}
}

// Spec is the input of one assembly run.
type Spec struct {
	JobID     string
	Request   model.JobRequest
	Catalog   model.Catalog
	InputDir  string
	OutputDir string
}

// Assembly reports where a run wrote its output and how it went.
type Assembly struct {
	ImagesDir   string
	MetadataDir string
	FinalCount  int
	Rejections  int
	Failures    int
}

// Assemble generates spec.Request.Count unique items into
// OutputDir/images/{id}.{ext} and OutputDir/metadata/{id}.json. Ids are
// assigned from the live accepted count, so a failed item's id is reused by
// the next success and the output ids stay contiguous. The combination of a
// failed item is released so it can be drawn again.
func (a *Assembler) Assemble(ctx context.Context, spec Spec) (*Assembly, error) {
	log := slog.With("job_id", spec.JobID)
	req := spec.Request

	if space := spec.Catalog.Space(); space < req.Count {
		return nil, fmt.Errorf("%w: %d combinations cannot make %d unique items",
			sampler.ErrExhaustedCombinationSpace, space, req.Count)
	}

	res := &Assembly{
		ImagesDir:   filepath.Join(spec.OutputDir, ImagesDirName),
		MetadataDir: filepath.Join(spec.OutputDir, MetadataDirName),
	}
	for _, dir := range []string{res.ImagesDir, res.MetadataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	s, err := sampler.New(spec.Catalog, sampler.Options{
		MaxConsecutiveRejections: a.opts.MaxConsecutiveRejections,
		Rand:                     a.opts.Rand,
	})
	if err != nil {
		return nil, err
	}

	col := metadata.CollectionFromRequest(req)
	log.Info("starting generation", "count", req.Count, "layers", len(spec.Catalog), "format", req.OutputFormat)

	accepted := 0
	streak := 0
	for accepted < req.Count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rejectedBefore := s.Rejections()
		combo, err := s.Next()
		a.metrics.RecordRejections(s.Rejections() - rejectedBefore)
		if err != nil {
			res.Rejections = s.Rejections()
			return nil, err
		}

		id := accepted
		accepted++

		if err := a.realize(ctx, spec, col, res, id, combo); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("failed to create item", "item_id", id, "error", err)
			accepted--
			s.Release(combo)
			res.Failures++
			streak++
			a.metrics.RecordCompositionFailure()
			if streak >= a.opts.MaxConsecutiveFailures {
				return nil, fmt.Errorf("%w: %d consecutive item failures, last: %w", ErrNoProgress, streak, err)
			}
			continue
		}
		streak = 0
		a.metrics.RecordItem(req.OutputFormat)
		log.Debug("created item", "item_id", id)
	}

	res.FinalCount = accepted
	res.Rejections = s.Rejections()
	log.Info("generation complete", "final_count", accepted, "rejected_draws", res.Rejections, "failed_items", res.Failures)
	return res, nil
}

// realize composes and records a single accepted combination. On failure no
// file for id is left behind.
func (a *Assembler) realize(ctx context.Context, spec Spec, col metadata.Collection, res *Assembly, id int, combo model.Combination) error {
	sources := make([]string, len(combo))
	for i, sel := range combo {
		sources[i] = filepath.Join(spec.InputDir, sel.Directory, sel.Trait.File)
	}

	name := strconv.Itoa(id)
	imagePath := filepath.Join(res.ImagesDir, name+"."+spec.Request.OutputFormat)
	if err := a.compositor.ComposeFile(ctx, sources, spec.Request.OutputFormat, imagePath); err != nil {
		os.Remove(imagePath)
		return err
	}

	rec := metadata.NewRecord(col, id, combo)
	if err := metadata.WriteRecord(filepath.Join(res.MetadataDir, name+".json"), rec); err != nil {
		os.Remove(imagePath)
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
