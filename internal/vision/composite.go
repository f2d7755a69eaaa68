package vision

import (
	"image"
	"math"
)

// Compositor pastes a cutout onto the person image at the anchor rectangle.
type Compositor struct{}

// Composite resizes the cutout to the anchor and alpha-blends it onto a copy
// of the person image. Placement is clamped to the image bounds; an empty
// destination region yields an untouched copy.
func (Compositor) Composite(person *image.NRGBA, cutout *Cutout, anchor AnchorBox) *image.NRGBA {
	out := cloneNRGBA(person)
	if anchor.W <= 0 || anchor.H <= 0 {
		return out
	}

	fg := resizeNRGBA(cutout.Image, anchor.W, anchor.H)

	pb := out.Bounds()
	bw, bh := pb.Dx(), pb.Dy()

	x0 := anchor.X
	y0 := anchor.Y
	x1 := x0 + anchor.W
	y1 := y0 + anchor.H

	// Crop source and destination symmetrically when the anchor sticks out.
	srcX, srcY := 0, 0
	if x0 < 0 {
		srcX = -x0
		x0 = 0
	}
	if y0 < 0 {
		srcY = -y0
		y0 = 0
	}
	if x1 > bw {
		x1 = bw
	}
	if y1 > bh {
		y1 = bh
	}
	if x0 >= x1 || y0 >= y1 {
		return out
	}

	fb := fg.Bounds()
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			fi := fg.PixOffset(fb.Min.X+srcX+(x-x0), fb.Min.Y+srcY+(y-y0))
			oi := out.PixOffset(pb.Min.X+x, pb.Min.Y+y)
			a := float64(fg.Pix[fi+3]) / 255.0
			for c := 0; c < 3; c++ {
				blended := float64(fg.Pix[fi+c])*a + float64(out.Pix[oi+c])*(1.0-a)
				out.Pix[oi+c] = uint8(math.Round(blended))
			}
		}
	}
	return out
}

// resizeNRGBA scales src to w×h. Downscaling uses area averaging so fine
// garment detail does not alias; upscaling uses nearest neighbour.
func resizeNRGBA(src *image.NRGBA, w, h int) *image.NRGBA {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == w && sh == h {
		return src
	}
	if w >= sw || h >= sh {
		return resizeNearest(src, w, h)
	}
	return resizeArea(src, w, h)
}

func resizeNearest(src *image.NRGBA, w, h int) *image.NRGBA {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := clampInt(y*sh/h, 0, sh-1)
		for x := 0; x < w; x++ {
			sx := clampInt(x*sw/w, 0, sw-1)
			si := src.PixOffset(sb.Min.X+sx, sb.Min.Y+sy)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}

// resizeArea averages every source pixel that overlaps a destination cell,
// weighting partial overlaps by covered area.
func resizeArea(src *image.NRGBA, w, h int) *image.NRGBA {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	xRatio := float64(sw) / float64(w)
	yRatio := float64(sh) / float64(h)

	for y := 0; y < h; y++ {
		syTop := float64(y) * yRatio
		syBot := float64(y+1) * yRatio
		for x := 0; x < w; x++ {
			sxLeft := float64(x) * xRatio
			sxRight := float64(x+1) * xRatio

			var acc [4]float64
			total := 0.0
			for sy := int(syTop); sy < int(math.Ceil(syBot)) && sy < sh; sy++ {
				wy := math.Min(syBot, float64(sy+1)) - math.Max(syTop, float64(sy))
				if wy <= 0 {
					continue
				}
				for sx := int(sxLeft); sx < int(math.Ceil(sxRight)) && sx < sw; sx++ {
					wx := math.Min(sxRight, float64(sx+1)) - math.Max(sxLeft, float64(sx))
					if wx <= 0 {
						continue
					}
					weight := wx * wy
					si := src.PixOffset(sb.Min.X+sx, sb.Min.Y+sy)
					for c := 0; c < 4; c++ {
						acc[c] += weight * float64(src.Pix[si+c])
					}
					total += weight
				}
			}
			di := dst.PixOffset(x, y)
			if total > 0 {
				for c := 0; c < 4; c++ {
					dst.Pix[di+c] = uint8(math.Round(acc[c] / total))
				}
			}
		}
	}
	return dst
}
