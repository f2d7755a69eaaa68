package vision

import (
	"image"
	"image/draw"
	"math"
)

// toNRGBA normalizes any decoded image to NRGBA so the rest of the engine
// can index pixels directly.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// luma returns the rec.601 luma plane of img as one float per pixel.
func luma(img *image.NRGBA) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r := float64(img.Pix[i])
			g := float64(img.Pix[i+1])
			bl := float64(img.Pix[i+2])
			out[y*w+x] = 0.299*r + 0.587*g + 0.114*bl
		}
	}
	return out
}

// whiteRatio returns the fraction of pixels whose channels all sit at or
// above threshold. On a studio garment photo this approximates the visible
// background share.
func whiteRatio(img *image.NRGBA, threshold uint8) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	white := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			if img.Pix[i] >= threshold && img.Pix[i+1] >= threshold && img.Pix[i+2] >= threshold {
				white++
			}
		}
	}
	return float64(white) / float64(w*h)
}

// distanceFromWhite is the euclidean RGB distance of a pixel from pure white.
func distanceFromWhite(r, g, b uint8) float64 {
	dr := 255 - float64(r)
	dg := 255 - float64(g)
	db := 255 - float64(b)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
