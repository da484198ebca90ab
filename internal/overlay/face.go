package overlay

import (
	"strconv"
	"time"
)

// scalar indexes the five independently smoothed components of a box.
type scalar int

const (
	sX scalar = iota
	sY
	sWidth
	sHeight
	sOpacity
	numScalars
)

// TrackedFace is a logical face kept across detector invocations.
// Target is written only by the Tracker, Rendered only by the Smoother.
type TrackedFace struct {
	ID            string
	Synthetic     bool
	Target        Rect
	TargetOpacity float64
	Rendered      Rect
	Opacity       float64
	LastSeen      time.Time
	Attributes    Attributes
	Removing      bool

	velocity [numScalars]float64
	gen      uint64 // distinguishes a re-created face from the one it replaced
}

func (f *TrackedFace) rendered() [numScalars]float64 {
	return [numScalars]float64{f.Rendered.X, f.Rendered.Y, f.Rendered.Width, f.Rendered.Height, f.Opacity}
}

func (f *TrackedFace) targets() [numScalars]float64 {
	return [numScalars]float64{f.Target.X, f.Target.Y, f.Target.Width, f.Target.Height, f.TargetOpacity}
}

// Box is one rendered overlay rectangle handed to the renderer.
type Box struct {
	ID         string     `json:"id"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	Opacity    float64    `json:"opacity"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// Overlay is the read-only snapshot consumed once per render tick.
type Overlay struct {
	StreamID  string    `json:"stream_id"`
	Facing    string    `json:"facing"`
	Viewport  Viewport  `json:"viewport"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Boxes     []Box     `json:"boxes"`
}

// lessID orders detector ids numerically when both are integers and
// lexically otherwise. Synthetic ids sort after detector ids.
func lessID(a, b string) bool {
	sa, sb := IsSyntheticID(a), IsSyntheticID(b)
	if sa != sb {
		return sb
	}
	if sa {
		a, b = a[len(syntheticPrefix):], b[len(syntheticPrefix):]
	}
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}
