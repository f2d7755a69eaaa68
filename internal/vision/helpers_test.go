package vision

import (
	"image"
	"image/color"
)

func newFilled(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func fillRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

var (
	white = color.NRGBA{255, 255, 255, 255}
	black = color.NRGBA{0, 0, 0, 255}
	red   = color.NRGBA{200, 30, 30, 255}
	gray  = color.NRGBA{128, 128, 128, 255}
	blue  = color.NRGBA{20, 40, 200, 255}
)

// studioGarment builds a clean white-background photo with a block of fine
// vertical stripes: sharp, bright, mostly white, but with stripes too thin
// for the edge detector to latch onto.
func studioGarment(w, h int) *image.NRGBA {
	img := newFilled(w, h, white)
	x0, y0 := w/3, h/3
	x1, y1 := 2*w/3, 2*h/3
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x += 2 {
			img.SetNRGBA(x, y, black)
		}
	}
	return img
}
