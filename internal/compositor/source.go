package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zip"
	xdraw "golang.org/x/image/draw"
)

// decoded holds the frames of one source image, fully coalesced.
type decoded struct {
	frames    []image.Image
	delays    []int
	loopCount int
}

var supported = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// load decodes the image at path. A .zip path is opened and its first
// supported image entry is used instead; nested archives are not followed.
func load(path string, allFrames bool) (*decoded, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".zip" {
		return loadFromArchive(path, allFrames)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f, ext, allFrames)
}

func loadFromArchive(path string, allFrames bool) (*decoded, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		name := zf.Name
		if zf.FileInfo().IsDir() || strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(filepath.Base(name), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !supported[ext] {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in archive: %w", name, err)
		}
		d, err := decode(rc, ext, allFrames)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s in archive: %w", name, err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("archive %s contains no supported image", filepath.Base(path))
}

func decode(r io.Reader, ext string, allFrames bool) (*decoded, error) {
	if ext == ".gif" && allFrames {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		g, err := gif.DecodeAll(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		return coalesce(g), nil
	}
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return &decoded{frames: []image.Image{img}, delays: []int{0}}, nil
}

// coalesce renders every GIF frame onto a full-size canvas, honouring the
// disposal method of the previous frame.
func coalesce(g *gif.GIF) *decoded {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() && len(g.Image) > 0 {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewNRGBA(bounds)
	d := &decoded{loopCount: g.LoopCount}

	for i, frame := range g.Image {
		var restore *image.NRGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			restore = imaging.Clone(canvas)
		}

		xdraw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, xdraw.Over)
		d.frames = append(d.frames, imaging.Clone(canvas))
		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}
		d.delays = append(d.delays, delay)

		switch disposal {
		case gif.DisposalBackground:
			xdraw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, xdraw.Src)
		case gif.DisposalPrevious:
			canvas = restore
		}
	}
	return d
}
