package overlay

import (
	"maps"
	"math"
	"strconv"
	"sync/atomic"
	"time"
)

// Well-known attribute names reported by face detectors.
const (
	AttrSmile        = "smile"
	AttrLeftEyeOpen  = "left_eye_open"
	AttrRightEyeOpen = "right_eye_open"
	AttrYaw          = "yaw"
	AttrRoll         = "roll"
	AttrPitch        = "pitch"
)

// Attributes holds named per-face scalars. A missing key means the detector
// did not report that value.
type Attributes map[string]float64

// Clone returns an independent copy (nil stays nil).
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// Smile levels derived from the smile attribute.
const (
	SmileHappy   = "happy"
	SmileNeutral = "neutral"
	SmileSad     = "sad"
)

// SmileLevel buckets the smile score after rounding it to one decimal:
// 0.7 and above is happy, 0.4 and above neutral, anything lower sad.
// ok is false when no smile score was reported.
func (a Attributes) SmileLevel() (level string, ok bool) {
	v, ok := a[AttrSmile]
	if !ok || math.IsNaN(v) {
		return "", false
	}
	switch r := math.Round(v*10) / 10; {
	case r >= 0.7:
		return SmileHappy, true
	case r >= 0.4:
		return SmileNeutral, true
	default:
		return SmileSad, true
	}
}

// Get returns the value and whether it was reported.
func (a Attributes) Get(name string) (float64, bool) {
	v, ok := a[name]
	return v, ok
}

// RawDetection is one face reported by the detection source. Bounds are
// normalized to the analyzed frame. An empty TrackingID means the detector
// could not correlate the face with a previous one.
type RawDetection struct {
	Bounds     Rect
	TrackingID string
	// Confidence is nil when the detector does not score its detections.
	Confidence *float64
	Attributes Attributes
}

// NormalizedFace is a detection mapped into viewport space.
type NormalizedFace struct {
	ID         string
	Synthetic  bool // ID was generated locally, not by the detector
	Rect       Rect
	Confidence *float64
	Attributes Attributes
}

// Batch is the result of one detector invocation.
type Batch struct {
	Detections []RawDetection
	// Facing, when set, is the camera facing the frame was captured with.
	// Batches from a different facing than the session's are discarded.
	Facing     *Facing
	CapturedAt time.Time
	// Err marks a failed invocation. The batch carries no detections.
	Err error
}

const syntheticPrefix = "~"

// IDSource hands out placeholder ids for detections without a tracking id.
type IDSource struct {
	n atomic.Uint64
}

// Next returns an id unique until the next Reset.
func (s *IDSource) Next() string {
	return syntheticPrefix + strconv.FormatUint(s.n.Add(1), 10)
}

// Reset restarts the sequence. Called on every camera switch.
func (s *IDSource) Reset() {
	s.n.Store(0)
}

// IsSyntheticID reports whether id was produced by an IDSource.
func IsSyntheticID(id string) bool {
	return len(id) > 0 && id[:1] == syntheticPrefix
}
