package transcoder

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

// PixelSize is a width/height pair in pixels. Axes are independent: a resize
// to a PixelSize is exact, not aspect-preserving.
type PixelSize struct {
	Width  int
	Height int
}

// Position is a top-left offset for cropping.
type Position struct {
	X int
	Y int
}

// Operation is a single buffer transformation. Operations are applied in
// list order. Coordinates are not validated against the source dimensions
// here; out-of-bounds values fail inside libvips.
type Operation interface {
	apply(ref *vips.ImageRef) error
}

// Resize scales to an exact target size with a Catmull-Rom class cubic
// kernel.
type Resize struct {
	Size PixelSize
}

func (r Resize) apply(ref *vips.ImageRef) error {
	hscale := float64(r.Size.Width) / float64(ref.Width())
	vscale := float64(r.Size.Height) / float64(ref.Height())

	if err := ref.ResizeWithVScale(hscale, vscale, vips.KernelCubic); err != nil {
		return fmt.Errorf("resize to %dx%d: %w", r.Size.Width, r.Size.Height, err)
	}

	return nil
}

// Crop extracts a region starting at Pos with the given size.
type Crop struct {
	Pos  Position
	Size PixelSize
}

func (c Crop) apply(ref *vips.ImageRef) error {
	if err := ref.ExtractArea(c.Pos.X, c.Pos.Y, c.Size.Width, c.Size.Height); err != nil {
		return fmt.Errorf("crop %dx%d at (%d,%d): %w", c.Size.Width, c.Size.Height, c.Pos.X, c.Pos.Y, err)
	}

	return nil
}
