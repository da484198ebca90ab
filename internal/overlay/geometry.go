package overlay

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Facing is the active camera direction.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// ParseFacing accepts "front" or "back" (case-insensitive).
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "front":
		return FacingFront, nil
	case "back":
		return FacingBack, nil
	default:
		return FacingBack, fmt.Errorf("unknown camera facing %q", s)
	}
}

// Rect is an axis-aligned rectangle, origin at the top-left corner.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

func (r Rect) finite() bool {
	for _, v := range [4]float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Viewport describes the rendering surface. PreviewHeight is the height of
// the camera preview when it only covers part of the surface; zero means the
// preview fills the whole height.
type Viewport struct {
	Width         float64 `json:"width" yaml:"width"`
	Height        float64 `json:"height" yaml:"height"`
	PreviewHeight float64 `json:"preview_height,omitempty" yaml:"preview_height"`
}

// ReferenceHeight is the dimension used to scale both y and height.
func (v Viewport) ReferenceHeight() float64 {
	if v.PreviewHeight > 0 {
		return v.PreviewHeight
	}
	return v.Height
}

// Ready reports whether the layout is known. A transient zero size means
// normalization must be skipped.
func (v Viewport) Ready() bool {
	return v.Width > 0 && v.Height > 0 && v.ReferenceHeight() > 0
}

// Validate rejects geometry that can never become ready. Zero values are
// allowed: they mean "layout not known yet".
func (v Viewport) Validate() error {
	if v.Width < 0 || v.Height < 0 || v.PreviewHeight < 0 {
		return fmt.Errorf("viewport dimensions must not be negative")
	}
	if v.PreviewHeight > v.Height && v.Height > 0 {
		return fmt.Errorf("preview height %.1f exceeds viewport height %.1f", v.PreviewHeight, v.Height)
	}
	for _, d := range [3]float64{v.Width, v.Height, v.PreviewHeight} {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("viewport dimensions must be finite")
		}
	}
	return nil
}

// GeometryError is returned when the viewport is not ready for normalization.
type GeometryError struct {
	Viewport Viewport
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("viewport not ready: %.1fx%.1f (preview height %.1f)",
		e.Viewport.Width, e.Viewport.Height, e.Viewport.PreviewHeight)
}

// ErrInvalidBounds is returned for detections whose bounds are not finite.
var ErrInvalidBounds = errors.New("detection bounds are not finite")

// Normalize maps a sensor-normalized detection into viewport space.
// Front-camera images are mirrored horizontally. The result is clamped so
// the rectangle lies fully inside [0,W]x[0,Href].
func Normalize(d RawDetection, facing Facing, vp Viewport) (NormalizedFace, error) {
	if !vp.Ready() {
		return NormalizedFace{}, &GeometryError{Viewport: vp}
	}
	if !d.Bounds.finite() {
		return NormalizedFace{}, ErrInvalidBounds
	}

	refH := vp.ReferenceHeight()

	w := clamp(d.Bounds.Width*vp.Width, 0, vp.Width)
	h := clamp(d.Bounds.Height*refH, 0, refH)
	x := d.Bounds.X * vp.Width
	y := d.Bounds.Y * refH

	if facing == FacingFront {
		x = vp.Width - (x + w)
	}

	return NormalizedFace{
		ID:        d.TrackingID,
		Synthetic: d.TrackingID == "",
		Rect: Rect{
			X:      clamp(x, 0, vp.Width-w),
			Y:      clamp(y, 0, refH-h),
			Width:  w,
			Height: h,
		},
		Confidence: d.Confidence,
		Attributes: d.Attributes.Clone(),
	}, nil
}

// NormalizeBatch normalizes one detector invocation. Detections without a
// tracking id get a placeholder from ids. Detections scored below
// minConfidence or with invalid bounds are dropped; unscored detections are
// kept. A viewport that is not ready fails the
// whole batch with *GeometryError.
func NormalizeBatch(ds []RawDetection, facing Facing, vp Viewport, ids *IDSource, minConfidence float64) ([]NormalizedFace, error) {
	if !vp.Ready() {
		return nil, &GeometryError{Viewport: vp}
	}

	out := make([]NormalizedFace, 0, len(ds))
	for _, d := range ds {
		if minConfidence > 0 && d.Confidence != nil && *d.Confidence < minConfidence {
			continue
		}
		f, err := Normalize(d, facing, vp)
		if err != nil {
			if errors.Is(err, ErrInvalidBounds) {
				continue
			}
			return nil, err
		}
		if f.Synthetic {
			f.ID = ids.Next()
		}
		out = append(out, f)
	}
	return out, nil
}

// Mirror flips r horizontally inside a surface of the given width.
// Applying it twice returns the original rectangle.
func Mirror(r Rect, width float64) Rect {
	r.X = width - (r.X + r.Width)
	return r
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(v, hi))
}

// iou computes the intersection-over-union of two rectangles.
func iou(a, b Rect) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.X+a.Width, b.X+b.Width)
	y2 := math.Min(a.Y+a.Height, b.Y+b.Height)

	interW := math.Max(0, x2-x1)
	interH := math.Max(0, y2-y1)
	inter := interW * interH

	union := a.Width*a.Height + b.Width*b.Height - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
