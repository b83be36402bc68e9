// Package compositor stacks per-layer trait images into one output raster.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// DefaultCanvasSize is the side length of the square output canvas.
const DefaultCanvasSize = 1000

// ErrNoLayers is returned when Compose is called without sources.
var ErrNoLayers = errors.New("no layers selected for composition")

// CompositionError reports why a single item could not be composed.
type CompositionError struct {
	Source string
	Err    error
}

func (e *CompositionError) Error() string {
	if e.Source == "" {
		return "compose: " + e.Err.Error()
	}
	return fmt.Sprintf("compose %s: %v", e.Source, e.Err)
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// Options configures a Compositor.
type Options struct {
	// Size is the canvas side length in pixels. Zero means DefaultCanvasSize.
	Size int
	// Background is an optional hex color ("#rrggbb") painted under the base layer.
	Background string
}

// Compositor resizes every layer to a square canvas with a cover fit and
// blends them bottom to top in layer order.
type Compositor struct {
	size       int
	background *color.NRGBA
}

// New creates a Compositor.
func New(opts Options) (*Compositor, error) {
	c := &Compositor{size: opts.Size}
	if c.size <= 0 {
		c.size = DefaultCanvasSize
	}
	if opts.Background != "" {
		bg, err := colorful.Hex(opts.Background)
		if err != nil {
			return nil, fmt.Errorf("canvas background %q: %w", opts.Background, err)
		}
		r, g, b := bg.RGB255()
		c.background = &color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return c, nil
}

// Size returns the canvas side length.
func (c *Compositor) Size() int {
	return c.size
}

// Output is a composed item: one frame for still images, several when an
// animated base layer was preserved.
type Output struct {
	Frames    []*image.NRGBA
	Delays    []int
	LoopCount int
}

// Compose layers sources (one image path per layer, base first). When
// animate is true and the base is an animated GIF, every base frame is kept;
// overlays always contribute their first frame only.
func (c *Compositor) Compose(ctx context.Context, sources []string, animate bool) (*Output, error) {
	if len(sources) == 0 {
		return nil, &CompositionError{Err: ErrNoLayers}
	}

	base, err := load(sources[0], animate)
	if err != nil {
		return nil, &CompositionError{Source: sources[0], Err: err}
	}
	out := &Output{
		Frames:    make([]*image.NRGBA, len(base.frames)),
		Delays:    base.delays,
		LoopCount: base.loopCount,
	}
	for i, f := range base.frames {
		out.Frames[i] = c.fit(f)
		if c.background != nil {
			out.Frames[i] = imaging.Overlay(imaging.New(c.size, c.size, *c.background), out.Frames[i], image.Point{}, 1.0)
		}
	}

	for _, src := range sources[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		layer, err := load(src, false)
		if err != nil {
			return nil, &CompositionError{Source: src, Err: err}
		}
		top := c.fit(layer.frames[0])
		for i := range out.Frames {
			out.Frames[i] = imaging.Overlay(out.Frames[i], top, image.Point{}, 1.0)
		}
	}
	return out, nil
}

// fit scales img to fill the canvas, cropping the overflow around the centre.
func (c *Compositor) fit(img image.Image) *image.NRGBA {
	return imaging.Fill(img, c.size, c.size, imaging.Center, imaging.Lanczos)
}

// ComposeFile composes sources and writes the result to dst in format.
func (c *Compositor) ComposeFile(ctx context.Context, sources []string, format, dst string) error {
	out, err := c.Compose(ctx, sources, format == model.FormatGIF)
	if err != nil {
		return err
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dst), err)
	}
	if err := out.Encode(f, format); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("encode %s: %w", filepath.Base(dst), err)
	}
	return f.Close()
}
