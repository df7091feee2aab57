package capture

import (
	"image"
	"image/color"
)

// isBlackFrame downsamples img to a small thumbnail and reports whether its
// mean luminance falls below threshold (expressed on the 0-255 scale,
// matching the configured default of ~5).
func isBlackFrame(img image.Image, threshold float64) bool {
	const thumbSide = 16

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return true
	}

	var sum float64
	var n int
	for ty := 0; ty < thumbSide; ty++ {
		for tx := 0; tx < thumbSide; tx++ {
			x := b.Min.X + tx*w/thumbSide
			y := b.Min.Y + ty*h/thumbSide
			sum += luminance(img.At(x, y))
			n++
		}
	}
	return sum/float64(n) < threshold
}

func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	// r/g/b are 16-bit; rescale to 8-bit before the standard luma weights.
	r8, g8, b8 := float64(r>>8), float64(g>>8), float64(b>>8)
	return 0.299*r8 + 0.587*g8 + 0.114*b8
}
