package capture

import (
	"image"

	"github.com/disintegration/imaging"
)

// Resolution is the configured downscale target. Original leaves the
// source dimensions untouched.
type Resolution string

const (
	Resolution1080p   Resolution = "1080p"
	Resolution2K      Resolution = "2k"
	Resolution4K      Resolution = "4k"
	ResolutionOriginal Resolution = "original"
)

func (r Resolution) maxWidth() int {
	switch r {
	case Resolution1080p:
		return 1920
	case Resolution2K:
		return 2560
	case Resolution4K:
		return 3840
	default:
		return 0
	}
}

// resizeToPolicy downscales img to fit within the policy's target width,
// preserving aspect ratio. A source narrower than the target, or
// ResolutionOriginal, is returned unchanged.
func resizeToPolicy(img *image.RGBA, r Resolution) image.Image {
	maxW := r.maxWidth()
	if maxW == 0 || img.Bounds().Dx() <= maxW {
		return img
	}
	return imaging.Resize(img, maxW, 0, imaging.Lanczos)
}
