package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// DefaultConcurrency is the number of files parsed or written in parallel.
const DefaultConcurrency = 8

// ParseError reports a metadata file that is not valid JSON. It aborts the
// whole rewrite before any file is modified.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse metadata %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FinalBaseURL joins a gateway URL and a content identifier into the prefix
// of published image URLs.
func FinalBaseURL(gatewayURL, cid string) string {
	return gatewayURL + cid + "/"
}

// Rewriter binds metadata records to published image URLs.
type Rewriter struct {
	// Concurrency bounds parallel file work. Zero means DefaultConcurrency.
	Concurrency int
}

type pending struct {
	path string
	doc  document
}

// Rewrite sets the image field of every *.json record below dir to
// baseURL + <file stem> + "." + ext and returns the number of records
// rewritten. Every other field is kept as it was, in its original order. ext defaults to png. All records are parsed before any is
// written, so a malformed file leaves the directory untouched.
func (rw *Rewriter) Rewrite(ctx context.Context, dir, baseURL, ext string) (int, error) {
	if ext == "" {
		ext = model.FormatPNG
	}
	ext = strings.TrimPrefix(ext, ".")

	paths, err := recordFiles(dir)
	if err != nil {
		return 0, err
	}

	limit := rw.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	records := make([]pending, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", filepath.Base(path), err)
			}
			var doc document
			if err := json.Unmarshal(b, &doc); err != nil {
				return &ParseError{File: filepath.Base(path), Err: err}
			}
			stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if err := doc.setString("image", baseURL+stem+"."+ext); err != nil {
				return err
			}
			records[i] = pending{path: path, doc: doc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := encode(p.doc, "    ")
			if err != nil {
				return err
			}
			return writeFileAtomic(p.path, b)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	slog.Info("metadata rewritten", "dir", dir, "records", len(records), "base_url", baseURL)
	return len(records), nil
}

// recordFiles lists every .json file below dir, skipping dotfiles and the
// macOS resource-fork folder.
func recordFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || name == "__MACOSX") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".json") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	return paths, nil
}
