package vision

import (
	"errors"
	"image"
	"math"
)

// Cutout is a garment image with a computed per-pixel opacity channel.
// It is immutable once produced by the segmenter.
type Cutout struct {
	Image *image.NRGBA
	// FastPath records which strategy produced the cutout.
	FastPath bool
}

// Segmenter isolates a garment from its background. Two strategies exist:
// a cheap white-background mask for clean studio photos and an iterative
// foreground-extraction fallback for noisier shots. The dispatch between
// them is automatic, driven by how white the frame is.
type Segmenter struct {
	// LegacyWhiteThreshold switches the fast path to the old plain
	// channel-threshold mask (>=245 on every channel). Kept for parity with
	// earlier pipeline revisions, off by default.
	LegacyWhiteThreshold bool
}

const (
	dispatchWhiteLevel  = 232
	dispatchWhiteRatio  = 0.55
	whiteDistanceCutoff = 18.0
	legacyWhiteCutoff   = 245
	featherSigma        = 1.2

	dehaloLow      = 0.02
	dehaloHigh     = 0.85
	dehaloStrength = 0.35

	fallbackMargin     = 0.08
	fallbackIterations = 5
)

var errEmptyImage = errors.New("segment: empty image")

// Segment produces a cutout of the garment. Clean white backgrounds take the
// fast path; anything else falls back to iterative foreground extraction.
func (s Segmenter) Segment(garment *image.NRGBA) (*Cutout, error) {
	b := garment.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, errEmptyImage
	}

	fast := whiteRatio(garment, dispatchWhiteLevel) >= dispatchWhiteRatio

	var mask []uint8
	if fast {
		mask = s.whiteMask(garment, w, h)
		mask = morphOpen(mask, w, h, 1)
		mask = morphClose(mask, w, h, 2)
	} else {
		mask = foregroundExtract(garment, w, h)
		mask = morphClose(mask, w, h, 2)
		mask = morphOpen(mask, w, h, 1)
	}

	alpha := gaussianBlurPlane(mask, w, h, featherSigma)

	out := cloneNRGBA(garment)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := out.PixOffset(b.Min.X+x, b.Min.Y+y)
			out.Pix[i+3] = alpha[y*w+x]
		}
	}
	if fast {
		decontaminateBorder(out)
	}
	return &Cutout{Image: out, FastPath: fast}, nil
}

// whiteMask marks garment pixels by their color distance from pure white.
func (s Segmenter) whiteMask(img *image.NRGBA, w, h int) []uint8 {
	b := img.Bounds()
	mask := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r, g, bl := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
			var background bool
			if s.LegacyWhiteThreshold {
				background = r >= legacyWhiteCutoff && g >= legacyWhiteCutoff && bl >= legacyWhiteCutoff
			} else {
				background = distanceFromWhite(r, g, bl) <= whiteDistanceCutoff
			}
			if !background {
				mask[y*w+x] = 255
			}
		}
	}
	return mask
}

// foregroundExtract runs a rectangle-seeded two-cluster refinement: pixels
// inside a centered rectangle (8% margin per side) start as foreground,
// everything else as background, and membership is re-assigned toward the
// nearer cluster mean for a fixed number of rounds. Pixels outside the seed
// rectangle are pinned to background.
func foregroundExtract(img *image.NRGBA, w, h int) []uint8 {
	b := img.Bounds()
	x0 := int(float64(w) * fallbackMargin)
	y0 := int(float64(h) * fallbackMargin)
	x1 := w - x0
	y1 := h - y0

	fg := make([]bool, w*h)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			fg[y*w+x] = true
		}
	}

	for iter := 0; iter < fallbackIterations; iter++ {
		var fgSum, bgSum [3]float64
		fgN, bgN := 0, 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
				r := float64(img.Pix[i])
				g := float64(img.Pix[i+1])
				bl := float64(img.Pix[i+2])
				if fg[y*w+x] {
					fgSum[0] += r
					fgSum[1] += g
					fgSum[2] += bl
					fgN++
				} else {
					bgSum[0] += r
					bgSum[1] += g
					bgSum[2] += bl
					bgN++
				}
			}
		}
		if fgN == 0 || bgN == 0 {
			break
		}
		fgMean := [3]float64{fgSum[0] / float64(fgN), fgSum[1] / float64(fgN), fgSum[2] / float64(fgN)}
		bgMean := [3]float64{bgSum[0] / float64(bgN), bgSum[1] / float64(bgN), bgSum[2] / float64(bgN)}

		changed := false
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
				r := float64(img.Pix[i])
				g := float64(img.Pix[i+1])
				bl := float64(img.Pix[i+2])
				df := sqDist3(r, g, bl, fgMean)
				db := sqDist3(r, g, bl, bgMean)
				want := df <= db
				if fg[y*w+x] != want {
					fg[y*w+x] = want
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	mask := make([]uint8, w*h)
	for i, isFg := range fg {
		if isFg {
			mask[i] = 255
		}
	}
	return mask
}

func sqDist3(r, g, b float64, m [3]float64) float64 {
	dr, dg, db := r-m[0], g-m[1], b-m[2]
	return dr*dr + dg*dg + db*db
}

// decontaminateBorder darkens semi-transparent edge pixels to suppress the
// white halo bleeding in from the background. The correction scales with how
// transparent the pixel is inside the (0.02, 0.85) opacity band.
func decontaminateBorder(img *image.NRGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			a := float64(img.Pix[i+3]) / 255.0
			if a <= dehaloLow || a >= dehaloHigh {
				continue
			}
			factor := 1.0 - dehaloStrength*(dehaloHigh-a)/(dehaloHigh-dehaloLow)
			img.Pix[i] = uint8(math.Round(float64(img.Pix[i]) * factor))
			img.Pix[i+1] = uint8(math.Round(float64(img.Pix[i+1]) * factor))
			img.Pix[i+2] = uint8(math.Round(float64(img.Pix[i+2]) * factor))
		}
	}
}
