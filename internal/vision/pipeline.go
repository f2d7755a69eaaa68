package vision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"tryon/internal/domain"
)

// Result is the tagged outcome of a pipeline run: either an encoded result
// image, or a stable error code with detail. Exactly one of Image and
// ErrorKind is set.
type Result struct {
	Image     []byte
	ErrorKind string
	Detail    string
}

// Failed reports whether the run produced an error instead of an image.
func (r Result) Failed() bool { return r.ErrorKind != "" }

// StepLogger receives one line per pipeline step. The worker wires it to the
// per-job log stream.
type StepLogger func(step string)

// Pipeline composes the quality gate, anchor locator, segmentation engine
// and compositor into one deterministic function: raw images in, result
// image or failure out. All stages are synchronous and CPU-bound.
type Pipeline struct {
	Validator  Validator
	Segmenter  Segmenter
	Locator    Locator
	Compositor Compositor
	Codec      Codec
	Logger     zerolog.Logger

	// MinQualityScore is the hard floor below which a garment photo is
	// refused outright. The advisory OK threshold is higher and enforced at
	// the API edge.
	MinQualityScore float64
}

const defaultMinQualityScore = 0.35

// Run executes the full compositing pipeline. Failures are always recovered
// into the Result; Run never panics and never returns a Go error.
func (p *Pipeline) Run(ctx context.Context, personData, garmentData []byte, step StepLogger) Result {
	if step == nil {
		step = func(string) {}
	}
	floor := p.MinQualityScore
	if floor <= 0 {
		floor = defaultMinQualityScore
	}

	step("decoding input images")
	person, err := p.Codec.Decode(personData)
	if err != nil {
		return failure(domain.ErrCodeWorkerError, fmt.Sprintf("decode person image: %v", err))
	}
	garment, err := p.Codec.Decode(garmentData)
	if err != nil {
		return failure(domain.ErrCodeWorkerError, fmt.Sprintf("decode garment image: %v", err))
	}

	step("scoring garment quality")
	report := p.Validator.Validate(garment, language.English)
	if report.Score < floor {
		return failure(domain.ErrCodeGarmentLowQuality,
			fmt.Sprintf("garment photo scored %.2f, below usable floor %.2f: %v", report.Score, floor, report.Reasons))
	}

	step("detecting torso anchor")
	anchor, err := p.Locator.Locate(ctx, person)
	if err != nil {
		return failure(domain.ErrCodeWorkerError, fmt.Sprintf("pose estimation: %v", err))
	}
	if anchor == nil {
		return failure(domain.ErrCodePoseNotFound,
			"could not detect shoulders/torso; use a frontal photo with the upper body visible")
	}

	step("segmenting garment")
	cutout, err := p.Segmenter.Segment(garment)
	if err != nil {
		return failure(domain.ErrCodeWorkerError, fmt.Sprintf("segmentation: %v", err))
	}
	p.Logger.Debug().Bool("fast_path", cutout.FastPath).Msg("pipeline: segmentation strategy chosen")

	step("resize + composite")
	composed := p.Compositor.Composite(person, cutout, *anchor)

	step("encoding result")
	encoded, err := p.Codec.Encode(composed)
	if err != nil {
		return failure(domain.ErrCodeWorkerError, fmt.Sprintf("encode result: %v", err))
	}
	return Result{Image: encoded}
}

func failure(kind, detail string) Result {
	return Result{ErrorKind: kind, Detail: domain.TruncateErrorMessage(detail)}
}
