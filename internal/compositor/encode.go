package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"io"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// gifPalette reserves index 0 for full transparency.
var gifPalette = append(color.Palette{color.Transparent}, palette.WebSafe...)

// Encode writes the output in format. PNG output uses the first frame.
func (o *Output) Encode(w io.Writer, format string) error {
	if len(o.Frames) == 0 {
		return fmt.Errorf("no frames to encode")
	}
	switch format {
	case model.FormatPNG, "":
		return imaging.Encode(w, o.Frames[0], imaging.PNG)
	case model.FormatGIF:
		return gif.EncodeAll(w, o.paletted())
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func (o *Output) paletted() *gif.GIF {
	g := &gif.GIF{LoopCount: o.LoopCount}
	for i, frame := range o.Frames {
		p := image.NewPaletted(frame.Bounds(), gifPalette)
		xdraw.FloydSteinberg.Draw(p, frame.Bounds(), frame, frame.Bounds().Min)
		g.Image = append(g.Image, p)
		delay := 0
		if i < len(o.Delays) {
			delay = o.Delays[i]
		}
		g.Delay = append(g.Delay, delay)
		g.Disposal = append(g.Disposal, gif.DisposalBackground)
	}
	return g
}
