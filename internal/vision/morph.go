package vision

import "math"

// Binary morphology and blur kernels over a single byte plane. The plane is
// treated as binary for erode/dilate (any non-zero value is foreground).

func erode(mask []uint8, w, h int) []uint8 {
	out := make([]uint8, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			keep := true
			for dy := -1; dy <= 1 && keep; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny := clampInt(y+dy, 0, h-1)
					nx := clampInt(x+dx, 0, w-1)
					if mask[ny*w+nx] == 0 {
						keep = false
						break
					}
				}
			}
			if keep {
				out[y*w+x] = 255
			}
		}
	}
	return out
}

func dilate(mask []uint8, w, h int) []uint8 {
	out := make([]uint8, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hit := false
			for dy := -1; dy <= 1 && !hit; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny := clampInt(y+dy, 0, h-1)
					nx := clampInt(x+dx, 0, w-1)
					if mask[ny*w+nx] != 0 {
						hit = true
						break
					}
				}
			}
			if hit {
				out[y*w+x] = 255
			}
		}
	}
	return out
}

// morphOpen removes speckle noise: erode then dilate, iterations times.
func morphOpen(mask []uint8, w, h, iterations int) []uint8 {
	for i := 0; i < iterations; i++ {
		mask = dilate(erode(mask, w, h), w, h)
	}
	return mask
}

// morphClose fills pinholes: dilate then erode, iterations times.
func morphClose(mask []uint8, w, h, iterations int) []uint8 {
	for i := 0; i < iterations; i++ {
		mask = erode(dilate(mask, w, h), w, h)
	}
	return mask
}

// gaussianBlurPlane applies a separable gaussian to the plane. Used to
// feather mask edges so the cutout does not look jagged.
func gaussianBlurPlane(plane []uint8, w, h int, sigma float64) []uint8 {
	if sigma <= 0 {
		out := make([]uint8, len(plane))
		copy(out, plane)
		return out
	}
	radius := int(math.Ceil(sigma * 3))
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * float64(plane[y*w+clampInt(x+k, 0, w-1)])
			}
			tmp[y*w+x] = acc
		}
	}
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * tmp[clampInt(y+k, 0, h-1)*w+x]
			}
			out[y*w+x] = uint8(math.Round(math.Min(255, math.Max(0, acc))))
		}
	}
	return out
}
