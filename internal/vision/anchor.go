package vision

import (
	"context"
	"image"
)

// AnchorBox is the rectangle on the person image where the garment lands,
// in pixel space. W and H are always positive and the box always sits
// inside the image bounds.
type AnchorBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Landmark is a pose keypoint in normalized [0,1] image coordinates with a
// visibility confidence in [0,1].
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Landmarks carries the body keypoints the locator needs. Hips may be
// missing on tightly cropped photos; shoulders are mandatory.
type Landmarks struct {
	LeftShoulder  *Landmark `json:"left_shoulder"`
	RightShoulder *Landmark `json:"right_shoulder"`
	LeftHip       *Landmark `json:"left_hip"`
	RightHip      *Landmark `json:"right_hip"`
}

// PoseEstimator is the external pose-estimation capability. Implementations
// return nil landmarks when no person is detected.
type PoseEstimator interface {
	LocateLandmarks(ctx context.Context, img *image.NRGBA) (*Landmarks, error)
}

// Locator estimates the garment anchor rectangle from body landmarks.
type Locator struct {
	Estimator PoseEstimator
}

const (
	visibilityFloor = 0.4
	// The anchor opens a little wider than the shoulders and hangs down
	// from just above the collar line.
	anchorWidthRatio  = 0.62
	anchorHeightRatio = 0.55
	anchorCollarLift  = 0.25
	minAnchorSide     = 20
)

// Locate returns the anchor rectangle for the person image, or nil when the
// pose cannot be established with enough confidence.
func (l Locator) Locate(ctx context.Context, person *image.NRGBA) (*AnchorBox, error) {
	lm, err := l.Estimator.LocateLandmarks(ctx, person)
	if err != nil {
		return nil, err
	}
	if lm == nil {
		return nil, nil
	}
	b := person.Bounds()
	return anchorFromLandmarks(lm, b.Dx(), b.Dy()), nil
}

func anchorFromLandmarks(lm *Landmarks, w, h int) *AnchorBox {
	ls, rs := lm.LeftShoulder, lm.RightShoulder
	if ls == nil || rs == nil {
		return nil
	}
	if ls.Visibility < visibilityFloor || rs.Visibility < visibilityFloor {
		return nil
	}

	lx, ly := int(ls.X*float64(w)), int(ls.Y*float64(h))
	rx, ry := int(rs.X*float64(w)), int(rs.Y*float64(h))

	shoulderW := rx - lx
	if shoulderW < 0 {
		shoulderW = -shoulderW
	}
	if shoulderW < 1 {
		shoulderW = 1
	}
	cx := (lx + rx) / 2
	cy := (ly + ry) / 2

	targetW := int(float64(shoulderW) / anchorWidthRatio)
	targetH := int(float64(targetW) * anchorHeightRatio)

	x := cx - targetW/2
	y := cy - int(float64(targetH)*anchorCollarLift)

	// When the hips are visible, make sure the garment reaches them.
	if hipY, ok := hipLine(lm, h); ok && y+targetH < hipY {
		targetH = hipY - y
	}

	x = clampInt(x, 0, w-1)
	y = clampInt(y, 0, h-1)
	if x+targetW > w {
		targetW = w - x
	}
	if y+targetH > h {
		targetH = h - y
	}

	if targetW <= minAnchorSide || targetH <= minAnchorSide {
		return nil
	}
	return &AnchorBox{X: x, Y: y, W: targetW, H: targetH}
}

func hipLine(lm *Landmarks, h int) (int, bool) {
	lh, rh := lm.LeftHip, lm.RightHip
	if lh == nil || rh == nil {
		return 0, false
	}
	if lh.Visibility < visibilityFloor || rh.Visibility < visibilityFloor {
		return 0, false
	}
	ly := int(lh.Y * float64(h))
	ry := int(rh.Y * float64(h))
	if ry > ly {
		return ry, true
	}
	return ly, true
}
