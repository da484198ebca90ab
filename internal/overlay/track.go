package overlay

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

var (
	// ErrStaleEpoch is returned when a batch was prepared before the last reset.
	ErrStaleEpoch = errors.New("batch predates camera switch")
	// ErrClosed is returned once the tracker has been torn down.
	ErrClosed = errors.New("tracker closed")
	// ErrOutOfOrder is returned for a batch captured before the last applied one.
	ErrOutOfOrder = errors.New("batch captured before the last applied batch")
)

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	// StalenessWindow is how long a face may go unobserved before it fades out.
	StalenessWindow time.Duration
	// ProximityIoU lets a detection without a tracking id take over the id of
	// the best-overlapping live face above this IoU. Zero disables it.
	ProximityIoU float64
}

// ApplyResult summarizes one applied batch.
type ApplyResult struct {
	Created  int
	Updated  int
	Adopted  int
	Expiring int
}

// Tracker correlates normalized faces across detector invocations. It owns
// the set of TrackedFace and is the only place that set is mutated.
type Tracker struct {
	mu        sync.Mutex
	faces     map[string]*TrackedFace
	staleness time.Duration
	proximity float64
	epoch     uint64
	nextGen   uint64
	closed    bool

	// lastCaptured is the capture time of the newest applied batch in this epoch.
	lastCaptured time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	return &Tracker{
		faces:     make(map[string]*TrackedFace),
		staleness: opts.StalenessWindow,
		proximity: opts.ProximityIoU,
	}
}

// Epoch identifies the current camera session. It changes on every Reset.
func (t *Tracker) Epoch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// LastCaptured returns the capture time of the newest batch applied since
// the last reset. It is zero when no timestamped batch has been applied.
func (t *Tracker) LastCaptured() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCaptured
}

// Apply commits one batch of unknown capture time atomically.
func (t *Tracker) Apply(epoch uint64, faces []NormalizedFace, now time.Time) (ApplyResult, error) {
	return t.ApplyCaptured(epoch, time.Time{}, faces, now)
}

// ApplyCaptured commits one batch atomically. epoch must be the value read
// together with the facing the batch was normalized with. A batch captured
// before the newest applied one is rejected with ErrOutOfOrder; a zero
// capturedAt is always accepted.
func (t *Tracker) ApplyCaptured(epoch uint64, capturedAt time.Time, faces []NormalizedFace, now time.Time) (ApplyResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res ApplyResult
	if t.closed {
		return res, ErrClosed
	}
	if epoch != t.epoch {
		return res, ErrStaleEpoch
	}
	if !capturedAt.IsZero() {
		if capturedAt.Before(t.lastCaptured) {
			return res, ErrOutOfOrder
		}
		t.lastCaptured = capturedAt
	}

	seen := make(map[string]bool, len(faces))
	var unmatched []NormalizedFace

	for _, f := range faces {
		if f.Synthetic && t.proximity > 0 {
			unmatched = append(unmatched, f)
			continue
		}
		t.observe(f, now, seen, &res)
	}

	// Id matches go first so placeholder detections can only take over faces
	// nobody else claimed in this batch.
	for _, f := range unmatched {
		if id := t.closest(f.Rect, seen); id != "" {
			f.ID = id
			f.Synthetic = t.faces[id].Synthetic
			res.Adopted++
		}
		t.observe(f, now, seen, &res)
	}

	for id, tf := range t.faces {
		if seen[id] || tf.Removing {
			continue
		}
		// Placeholder ids are never reported twice, so a non-empty batch
		// without them means they are gone. Empty batches leave them to the
		// staleness window like any other face.
		if (tf.Synthetic && len(faces) > 0) || now.Sub(tf.LastSeen) > t.staleness {
			retire(tf)
			res.Expiring++
		}
	}

	return res, nil
}

func (t *Tracker) observe(f NormalizedFace, now time.Time, seen map[string]bool, res *ApplyResult) {
	seen[f.ID] = true

	if tf, ok := t.faces[f.ID]; ok {
		tf.Target = f.Rect
		tf.TargetOpacity = 1
		tf.Attributes = f.Attributes
		tf.LastSeen = now
		tf.Removing = false
		res.Updated++
		return
	}

	t.nextGen++
	t.faces[f.ID] = &TrackedFace{
		ID:            f.ID,
		Synthetic:     f.Synthetic,
		Target:        f.Rect,
		TargetOpacity: 1,
		// Start at full size so the box fades in rather than growing from a point.
		Rendered:   f.Rect,
		Opacity:    0,
		LastSeen:   now,
		Attributes: f.Attributes,
		gen:        t.nextGen,
	}
	res.Created++
}

func (t *Tracker) closest(r Rect, seen map[string]bool) string {
	best := t.proximity
	bestID := ""
	for id, tf := range t.faces {
		if seen[id] || tf.Removing {
			continue
		}
		if v := iou(r, tf.Target); v > best {
			best = v
			bestID = id
		}
	}
	return bestID
}

func retire(tf *TrackedFace) {
	tf.Removing = true
	tf.TargetOpacity = 0
}

// Expire starts fading out every face unobserved for longer than the
// staleness window. It returns the number of faces newly retired.
func (t *Tracker) Expire(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}
	n := 0
	for _, tf := range t.faces {
		if !tf.Removing && now.Sub(tf.LastSeen) > t.staleness {
			retire(tf)
			n++
		}
	}
	return n
}

// Reset drops every face and starts a new epoch, so batches normalized
// under the previous camera are rejected.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faces = make(map[string]*TrackedFace)
	t.epoch++
	t.lastCaptured = time.Time{}
}

// Close drops every face and rejects all further updates.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faces = make(map[string]*TrackedFace)
	t.epoch++
	t.lastCaptured = time.Time{}
	t.closed = true
}

// Len returns the number of live faces, including those fading out.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.faces)
}

// Faces returns copies of the live faces ordered by id.
func (t *Tracker) Faces() []TrackedFace {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := lo.MapToSlice(t.faces, func(_ string, tf *TrackedFace) TrackedFace {
		c := *tf
		c.Attributes = tf.Attributes.Clone()
		return c
	})
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

// Snapshot returns the rendered boxes ordered by id.
func (t *Tracker) Snapshot() []Box {
	t.mu.Lock()
	defer t.mu.Unlock()

	boxes := lo.MapToSlice(t.faces, func(_ string, tf *TrackedFace) Box {
		return Box{
			ID:         tf.ID,
			X:          tf.Rendered.X,
			Y:          tf.Rendered.Y,
			Width:      tf.Rendered.Width,
			Height:     tf.Rendered.Height,
			Opacity:    tf.Opacity,
			Attributes: tf.Attributes.Clone(),
		}
	})
	sort.Slice(boxes, func(i, j int) bool { return lessID(boxes[i].ID, boxes[j].ID) })
	return boxes
}

// faceState is the part of a TrackedFace the smoother works on, copied out
// of the tracker so the spring math runs without holding the lock.
type faceState struct {
	id       string
	gen      uint64
	current  [numScalars]float64
	velocity [numScalars]float64
	target   [numScalars]float64

	settledAtZero bool
}

// frame copies the smoothing state of every face. ok is false after Close.
func (t *Tracker) frame() (epoch uint64, states []faceState, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, nil, false
	}
	states = make([]faceState, 0, len(t.faces))
	for _, tf := range t.faces {
		states = append(states, faceState{
			id:       tf.ID,
			gen:      tf.gen,
			current:  tf.rendered(),
			velocity: tf.velocity,
			target:   tf.targets(),
		})
	}
	return t.epoch, states, true
}

// commit writes smoothed geometry back and evicts faces that finished
// fading out. States from an older epoch, or for faces that have since been
// replaced, are discarded.
func (t *Tracker) commit(epoch uint64, states []faceState) (evicted []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || epoch != t.epoch {
		return nil
	}
	for _, st := range states {
		tf, ok := t.faces[st.id]
		if !ok || tf.gen != st.gen {
			continue
		}
		tf.Rendered = Rect{X: st.current[sX], Y: st.current[sY], Width: st.current[sWidth], Height: st.current[sHeight]}
		tf.Opacity = st.current[sOpacity]
		tf.velocity = st.velocity

		// The face may have been re-observed while the smoother ran.
		if st.settledAtZero && tf.Removing {
			delete(t.faces, st.id)
			evicted = append(evicted, st.id)
		}
	}
	return evicted
}
