package vision

import (
	"image"

	"golang.org/x/text/language"
)

// Reason codes attached to failing quality signals, in evaluation order.
const (
	ReasonLowResolution  = "LOW_RESOLUTION"
	ReasonTooBlurry      = "TOO_BLURRY"
	ReasonLowLight       = "LOW_LIGHT"
	ReasonBusyBackground = "BUSY_BACKGROUND"
	ReasonTooMuchTexture = "TOO_MUCH_TEXTURE"
)

// QualityReport is the advisory verdict on a garment photo. It is produced
// fresh per call and never persisted.
type QualityReport struct {
	OK      bool               `json:"ok"`
	Score   float64            `json:"score"`
	Reasons []string           `json:"reasons"`
	Tips    []string           `json:"tips"`
	Signals map[string]float64 `json:"signals"`
}

// Validator scores garment photos before they enter the pipeline. A zero
// Validator uses the production thresholds.
type Validator struct{}

const (
	minScoreOK = 0.55
	maxTips    = 4

	minResolution        = 480
	minSharpness         = 70.0
	minBrightness        = 70.0
	minWhiteRatio        = 0.25
	maxEdgeDensity       = 0.18
	whiteSignalThreshold = 232
)

type qualitySignal struct {
	name      string
	reason    string
	deduction float64
	failed    bool
	value     float64
}

// Validate computes five independent signals and deducts a fixed penalty per
// failed signal from a baseline score of 1.0, clamped to [0,1].
func (Validator) Validate(img *image.NRGBA, locale language.Tag) QualityReport {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	minSide := float64(w)
	if h < w {
		minSide = float64(h)
	}

	lum := luma(img)
	sharp := varianceOfLaplacian(lum, w, h)
	bright := mean(lum)
	white := whiteRatio(img, whiteSignalThreshold)
	edges := edgeDensity(lum, w, h)

	signals := []qualitySignal{
		{name: "resolution", reason: ReasonLowResolution, deduction: 0.18, failed: minSide < minResolution, value: minSide},
		{name: "sharpness", reason: ReasonTooBlurry, deduction: 0.25, failed: sharp < minSharpness, value: sharp},
		{name: "brightness", reason: ReasonLowLight, deduction: 0.18, failed: bright < minBrightness, value: bright},
		{name: "background", reason: ReasonBusyBackground, deduction: 0.22, failed: white < minWhiteRatio, value: white},
		{name: "texture", reason: ReasonTooMuchTexture, deduction: 0.12, failed: edges > maxEdgeDensity, value: edges},
	}

	report := QualityReport{
		Score:   1.0,
		Reasons: []string{},
		Tips:    []string{},
		Signals: map[string]float64{},
	}
	for _, s := range signals {
		report.Signals[s.name] = s.value
		if !s.failed {
			continue
		}
		report.Score -= s.deduction
		report.Reasons = append(report.Reasons, s.reason)
		if len(report.Tips) < maxTips {
			report.Tips = append(report.Tips, tipFor(s.reason, locale))
		}
	}
	if report.Score < 0 {
		report.Score = 0
	}
	report.OK = report.Score >= minScoreOK
	return report
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// varianceOfLaplacian is the classic focus measure: blurry photos have a
// flat second derivative.
func varianceOfLaplacian(lum []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	n := 0
	sum, sumSq := 0.0, 0.0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := lum[(y-1)*w+x] + lum[(y+1)*w+x] + lum[y*w+x-1] + lum[y*w+x+1] - 4*lum[y*w+x]
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	m := sum / float64(n)
	return sumSq/float64(n) - m*m
}

// edgeDensity is the fraction of pixels whose Sobel gradient magnitude
// exceeds a fixed threshold. Busy prints and patterned cloth push it up.
func edgeDensity(lum []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	const edgeThreshold = 100.0
	edges := 0
	total := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -lum[(y-1)*w+x-1] + lum[(y-1)*w+x+1] +
				-2*lum[y*w+x-1] + 2*lum[y*w+x+1] +
				-lum[(y+1)*w+x-1] + lum[(y+1)*w+x+1]
			gy := -lum[(y-1)*w+x-1] - 2*lum[(y-1)*w+x] - lum[(y-1)*w+x+1] +
				lum[(y+1)*w+x-1] + 2*lum[(y+1)*w+x] + lum[(y+1)*w+x+1]
			if gx*gx+gy*gy > edgeThreshold*edgeThreshold {
				edges++
			}
			total++
		}
	}
	return float64(edges) / float64(total)
}
