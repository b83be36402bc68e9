// Package catalog builds the layer/trait configuration of a generation job
// from an extracted directory of trait images.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// ErrEmptyCatalog is returned when no layer yields a usable trait.
var ErrEmptyCatalog = errors.New("no valid image files (PNG/JPG/JPEG/GIF) found in any layer directory")

// DecodeError reports a trait image that could not be decoded. One such file
// fails the whole build.
type DecodeError struct {
	Layer string
	File  string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid image file %s in layer %s: %v", e.File, e.Layer, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// imageExtensions is the set of file extensions treated as trait images.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// IsImageFile reports whether name carries an accepted image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Build scans every immediate subdirectory of root as a layer, in directory
// listing order. Every accepted image inside becomes a trait with rarity 1,
// unless a rarity manifest overrides it. Layers without traits are dropped.
func Build(ctx context.Context, root string) (model.Catalog, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read layer root: %w", err)
	}

	manifest, err := loadManifest(root)
	if err != nil {
		return nil, err
	}

	var catalog model.Catalog
	for _, e := range entries {
		if !e.IsDir() || skipName(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		layer, err := buildLayer(ctx, root, e.Name())
		if err != nil {
			return nil, err
		}
		if len(layer.Traits) == 0 {
			slog.Debug("skipping layer without images", "layer", layer.Name)
			continue
		}
		if err := manifest.apply(&layer); err != nil {
			return nil, err
		}
		catalog = append(catalog, layer)
	}

	if len(catalog) == 0 {
		return nil, ErrEmptyCatalog
	}
	return catalog, nil
}

func buildLayer(ctx context.Context, root, name string) (model.Layer, error) {
	layer := model.Layer{Name: name, Directory: name}

	files, err := os.ReadDir(filepath.Join(root, name))
	if err != nil {
		return layer, fmt.Errorf("read layer %s: %w", name, err)
	}
	byTrait := map[string]string{}
	for _, f := range files {
		if f.IsDir() || skipName(f.Name()) || !IsImageFile(f.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return layer, err
		}
		if _, err := imaging.Open(filepath.Join(root, name, f.Name())); err != nil {
			return layer, &DecodeError{Layer: name, File: f.Name(), Err: err}
		}
		trait := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		// The trait name is the metadata value, so two files may not share it.
		if other, dup := byTrait[trait]; dup {
			return layer, &model.ValidationError{
				Field:   name,
				Message: fmt.Sprintf("files %s and %s both define trait %q", other, f.Name(), trait),
			}
		}
		byTrait[trait] = f.Name()
		layer.Traits = append(layer.Traits, model.Trait{
			Name:   trait,
			File:   f.Name(),
			Rarity: 1,
		})
	}
	return layer, nil
}

// ResolveRoot returns the directory that actually holds the layer folders.
// Archives are often zipped from their parent folder, leaving a single
// wrapper directory; in that case the wrapper is descended into.
func ResolveRoot(dir string) (string, error) {
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", fmt.Errorf("read upload root: %w", err)
		}
		var dirs []string
		files := 0
		for _, e := range entries {
			if skipName(e.Name()) {
				continue
			}
			if e.IsDir() {
				dirs = append(dirs, e.Name())
			} else {
				files++
			}
		}
		if len(dirs) != 1 || files != 0 {
			return dir, nil
		}
		// A single folder that directly holds images is a layer, not a wrapper.
		inner, err := os.ReadDir(filepath.Join(dir, dirs[0]))
		if err != nil {
			return "", fmt.Errorf("read upload root: %w", err)
		}
		for _, e := range inner {
			if !e.IsDir() && IsImageFile(e.Name()) {
				return dir, nil
			}
		}
		dir = filepath.Join(dir, dirs[0])
	}
}

// skipName filters dotfiles and the resource-fork folder macOS adds to zips.
func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}
