// Package archive unpacks uploaded zip files and packages job output.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

var (
	// ErrUnsafePath is returned for entries that would land outside the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
	// ErrTooLarge is returned when the uncompressed content exceeds the limit.
	ErrTooLarge = errors.New("archive exceeds size limit")
	// ErrNotZip is returned when the source cannot be read as a zip archive.
	ErrNotZip = errors.New("not a readable zip archive")
)

// IsZip reports whether an upload looks like a zip archive, by content type
// or, failing that, by file name.
func IsZip(filename, contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "application/zip", "application/x-zip-compressed":
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".zip")
}

// Extract unpacks src into dest and returns the number of files written.
// Directories, dotfiles and the macOS resource-fork folder are skipped.
// maxBytes <= 0 disables the size limit.
func Extract(ctx context.Context, src, dest string, maxBytes int64) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotZip, err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}

	var total int64
	n := 0
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		target, err := safeJoin(root, zf.Name)
		if err != nil {
			return n, err
		}
		if zf.FileInfo().IsDir() || skipEntry(zf.Name) {
			continue
		}
		written, err := extractFile(zf, target, maxBytes-total, maxBytes > 0)
		total += written
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func extractFile(zf *zip.File, target string, remaining int64, limited bool) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	rc, err := zf.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	var r io.Reader = rc
	if limited {
		r = io.LimitReader(rc, remaining+1)
	}
	written, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return written, fmt.Errorf("extract %s: %w", zf.Name, err)
	}
	if limited && written > remaining {
		return written, ErrTooLarge
	}
	return written, nil
}

// safeJoin resolves name below root and rejects entries containing "..".
func safeJoin(root, name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
		}
	}
	return filepath.Join(root, filepath.FromSlash(path.Clean("/"+slashed))), nil
}

func skipEntry(name string) bool {
	for _, part := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		if part == "__MACOSX" || (strings.HasPrefix(part, ".") && part != ".") {
			return true
		}
	}
	return false
}

// Entry places the contents of Dir under Name inside the archive. An empty
// Name puts the files at the archive root.
type Entry struct {
	Dir  string
	Name string
}

// Directory writes a zip archive at out holding every entry and returns out.
// The output file is always closed; on error it is removed.
func Directory(ctx context.Context, out string, entries ...Entry) (_ string, err error) {
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
		}
	}()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	for _, e := range entries {
		if err := addDir(ctx, zw, e, out); err != nil {
			zw.Close()
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	return out, nil
}

func addDir(ctx context.Context, zw *zip.Writer, e Entry, out string) error {
	absOut, _ := filepath.Abs(out)
	return filepath.WalkDir(e.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if abs, _ := filepath.Abs(p); abs == absOut {
			return nil
		}
		rel, err := filepath.Rel(e.Dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if e.Name != "" {
			name = e.Name + "/" + name
		}
		return addFile(zw, p, name)
	})
}

func addFile(zw *zip.Writer, src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}
