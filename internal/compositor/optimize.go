package compositor

import (
	"context"
	"fmt"
	"image/png"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// JPEGQuality is the quality used when re-encoding JPEG files.
const JPEGQuality = 80

// OptimizeFile re-encodes a PNG at best compression or a JPEG at
// JPEGQuality, in place. Other formats are left untouched.
func OptimizeFile(path string) error {
	var opt imaging.EncodeOption
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		opt = imaging.PNGCompressionLevel(png.BestCompression)
	case ".jpg", ".jpeg":
		opt = imaging.JPEGQuality(JPEGQuality)
	default:
		return nil
	}
	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("optimize %s: %w", filepath.Base(path), err)
	}
	if err := imaging.Save(img, path, opt); err != nil {
		return fmt.Errorf("optimize %s: %w", filepath.Base(path), err)
	}
	return nil
}

// OptimizeDir runs OptimizeFile on every file below dir and returns how many
// files were rewritten.
func OptimizeDir(ctx context.Context, dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".png", ".jpg", ".jpeg":
		default:
			return nil
		}
		if err := OptimizeFile(path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
