package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rikiramadhan1028/NEW-ART/internal/archive"
	"github.com/rikiramadhan1028/NEW-ART/internal/compositor"
	"github.com/rikiramadhan1028/NEW-ART/internal/model"
	"github.com/rikiramadhan1028/NEW-ART/internal/sampler"
)

// ---------------------------------------------------------------------------
// Step 1: Generate
// ---------------------------------------------------------------------------

// GenerateStep assembles the collection into the job's output directory.
type GenerateStep struct {
	Assembler *Assembler
}

func (s *GenerateStep) Name() string { return "generate" }

func (s *GenerateStep) Run(ctx context.Context, sc *StepContext) error {
	if s.Assembler == nil {
		return errors.New("no assembler configured")
	}
	res, err := s.Assembler.Assemble(ctx, Spec{
		JobID:     sc.Job.ID,
		Request:   sc.Payload.Request,
		Catalog:   sc.Payload.Catalog,
		InputDir:  sc.Payload.InputDir,
		OutputDir: sc.Payload.OutputDir,
	})
	if err != nil {
		return err
	}
	sc.Assembly = res
	sc.Result.FinalCount = res.FinalCount
	return nil
}

// ---------------------------------------------------------------------------
// Step 2: Cleanup input
// ---------------------------------------------------------------------------

// CleanupInputStep removes the extracted trait assets once generation is done.
type CleanupInputStep struct{}

func (s *CleanupInputStep) Name() string { return "cleanup_input" }

func (s *CleanupInputStep) Run(_ context.Context, sc *StepContext) error {
	dir := sc.Payload.UploadDir
	if dir == "" {
		dir = sc.Payload.InputDir
	}
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		// Leftover input is reclaimed by the sweeper with the rest of the job.
		slog.Warn("failed to remove job input", "job_id", sc.Job.ID, "error", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Step 3: Optimize
// ---------------------------------------------------------------------------

// OptimizeStep re-encodes the generated images at maximum compression when
// the request asked for it.
type OptimizeStep struct{}

func (s *OptimizeStep) Name() string { return "optimize" }

func (s *OptimizeStep) Run(ctx context.Context, sc *StepContext) error {
	if !sc.Payload.Request.CompressImages || sc.Assembly == nil {
		return nil
	}
	n, err := compositor.OptimizeDir(ctx, sc.Assembly.ImagesDir)
	if err != nil {
		return err
	}
	slog.Info("optimized images", "job_id", sc.Job.ID, "files", n)
	return nil
}

// ---------------------------------------------------------------------------
// Step 4: Package
// ---------------------------------------------------------------------------

// PackageStep zips images/ and metadata/ into
// <output>/<job>.zip and removes the loose directories.
type PackageStep struct {
	// DataDir is the root that download URLs are relative to.
	DataDir string
	// URLPrefix is prepended to the archive path, e.g. "/api/download/".
	URLPrefix string
}

func (s *PackageStep) Name() string { return "package" }

func (s *PackageStep) Run(ctx context.Context, sc *StepContext) error {
	if sc.Assembly == nil {
		return errors.New("nothing to package")
	}
	out := filepath.Join(sc.Payload.OutputDir, sc.Job.ID+".zip")
	_, err := archive.Directory(ctx, out,
		archive.Entry{Dir: sc.Assembly.ImagesDir, Name: ImagesDirName},
		archive.Entry{Dir: sc.Assembly.MetadataDir, Name: MetadataDirName},
	)
	if err != nil {
		return err
	}
	for _, dir := range []string{sc.Assembly.ImagesDir, sc.Assembly.MetadataDir} {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove packaged directory", "job_id", sc.Job.ID, "dir", dir, "error", err)
		}
	}

	rel, err := filepath.Rel(s.DataDir, out)
	if err != nil {
		return fmt.Errorf("archive outside data dir: %w", err)
	}
	sc.ArchivePath = out
	sc.Result.ZipDownloadURL = s.URLPrefix + filepath.ToSlash(rel)
	return nil
}

// DefaultSteps returns the standard job pipeline.
func DefaultSteps(a *Assembler, dataDir string) []Step {
	return []Step{
		&GenerateStep{Assembler: a},
		&CleanupInputStep{},
		&OptimizeStep{},
		&PackageStep{DataDir: dataDir, URLPrefix: "/api/download/"},
	}
}

// IsPermanent reports whether err cannot be fixed by rerunning the job.
func IsPermanent(err error) bool {
	var ve *model.ValidationError
	return errors.Is(err, ErrNoProgress) || errors.Is(err, model.ErrInvalidTransition) ||
		errors.As(err, &ve) || errors.Is(err, sampler.ErrExhaustedCombinationSpace)
}
