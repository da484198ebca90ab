package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/faceoverlay/internal/observability"
)

var (
	ErrAlreadyRunning = errors.New("session already running")
	ErrNotRunning     = errors.New("session not running")
	ErrSessionClosed  = errors.New("session closed")
)

// Event types delivered to a Sink.
const (
	EventSessionStarted = "session_started"
	EventSessionStopped = "session_stopped"
	EventCameraSwitched = "camera_switched"
	EventSourceError    = "source_error"
)

// Event is a non-geometry notification about a session.
type Event struct {
	Type      string    `json:"type"`
	StreamID  string    `json:"stream_id"`
	Facing    string    `json:"facing"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives rendered overlays and session events. Implementations must
// not block: they are called from the tick loop.
type Sink interface {
	PublishOverlay(o Overlay)
	PublishEvent(e Event)
}

type nopSink struct{}

func (nopSink) PublishOverlay(Overlay) {}
func (nopSink) PublishEvent(Event)     {}

// DetectionSourceError wraps a failure reported by the detection source.
// It is never fatal: the batch is discarded and tracked faces keep
// animating toward their last target until they go stale.
type DetectionSourceError struct {
	StreamID string
	Err      error
}

func (e *DetectionSourceError) Error() string {
	return fmt.Sprintf("detection source %s: %v", e.StreamID, e.Err)
}

func (e *DetectionSourceError) Unwrap() error { return e.Err }

// Options configures a Session.
type Options struct {
	StreamID      string
	Facing        Facing
	Viewport      Viewport
	TickRate      int // ticks per second
	MinConfidence float64
	Tracker       TrackerOptions
	Smoother      SmootherOptions
	Clock         clock.Clock
	Sink          Sink
}

const (
	defaultTickRate  = 60
	defaultStaleness = 500 * time.Millisecond
)

// envelope is a submitted batch stamped with the tracker epoch and the
// facing that epoch belongs to.
type envelope struct {
	batch  Batch
	epoch  uint64
	facing Facing
}

// capturedBefore reports whether a was captured strictly before b. Batches
// without a capture time are never ordered.
func capturedBefore(a, b time.Time) bool {
	return !a.IsZero() && !b.IsZero() && a.Before(b)
}

// Session runs the detection-to-overlay pipeline for one camera stream:
// batches are normalized and applied by one goroutine, geometry is smoothed
// by a second one on the render cadence.
type Session struct {
	id            string
	clock         clock.Clock
	sink          Sink
	tickInterval  time.Duration
	minConfidence float64

	tracker  *Tracker
	smoother *Smoother
	ids      IDSource
	inbox    chan envelope // holds at most one pending batch
	seq      atomic.Uint64

	mu        sync.RWMutex
	facing    Facing
	viewport  Viewport
	running   bool
	closed    bool
	startedAt time.Time
	lastTick  time.Time
	cancel    context.CancelFunc
	group     *errgroup.Group

	// owned by the tick goroutine
	publishedEmpty bool
}

// NewSession creates a stopped session.
func NewSession(opts Options) (*Session, error) {
	if opts.StreamID == "" {
		return nil, fmt.Errorf("stream id is required")
	}
	if err := opts.Viewport.Validate(); err != nil {
		return nil, fmt.Errorf("invalid viewport: %w", err)
	}
	if opts.TickRate <= 0 {
		opts.TickRate = defaultTickRate
	}
	if opts.Tracker.StalenessWindow <= 0 {
		opts.Tracker.StalenessWindow = defaultStaleness
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}

	return &Session{
		id:            opts.StreamID,
		clock:         opts.Clock,
		sink:          opts.Sink,
		tickInterval:  time.Second / time.Duration(opts.TickRate),
		minConfidence: opts.MinConfidence,
		tracker:       NewTracker(opts.Tracker),
		smoother:      NewSmoother(opts.Smoother),
		inbox:         make(chan envelope, 1),
		facing:        opts.Facing,
		viewport:      opts.Viewport,
	}, nil
}

// ID returns the stream id.
func (s *Session) ID() string { return s.id }

// Start resets tracking state and launches the apply and tick loops.
// A stopped session cannot be restarted.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.resetLocked()

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	s.running = true
	s.cancel = cancel
	s.group = g
	s.startedAt = s.clock.Now()
	s.lastTick = s.startedAt
	s.mu.Unlock()

	g.Go(func() error { return s.applyLoop(gctx) })
	g.Go(func() error { return s.tickLoop(gctx) })

	slog.Info("overlay session started", "stream_id", s.id, "facing", s.Facing().String(), "tick_interval", s.tickInterval)
	s.emit(EventSessionStarted, "")
	return nil
}

// Stop halts batch application and ticking. Tracking state is dropped
// before the loops are cancelled, so no tick observes it after teardown
// begins.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.closed = true
	s.tracker.Close()
	cancel, g := s.cancel, s.group
	s.mu.Unlock()

	cancel()
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	observability.TrackedFaces.DeleteLabelValues(s.id)
	slog.Info("overlay session stopped", "stream_id", s.id)
	s.emit(EventSessionStopped, "")
	return err
}

// Running reports whether the loops are active.
func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Facing returns the active camera facing.
func (s *Session) Facing() Facing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facing
}

// Viewport returns the current viewport geometry.
func (s *Session) Viewport() Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

// SetCameraFacing switches the active camera. Any change resets tracking.
func (s *Session) SetCameraFacing(f Facing) {
	s.mu.Lock()
	changed := s.facing != f
	s.facing = f
	if changed {
		s.resetLocked()
	}
	s.mu.Unlock()

	if changed {
		observability.CameraSwitches.WithLabelValues(s.id).Inc()
		slog.Info("camera switched", "stream_id", s.id, "facing", f.String())
		s.emit(EventCameraSwitched, "")
	}
}

// ResetForCameraSwitch drops every tracked face, any pending batch, and the
// placeholder id sequence. Batches handed off before the reset are rejected.
func (s *Session) ResetForCameraSwitch() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *Session) resetLocked() {
	s.tracker.Reset()
	s.ids.Reset()
	select {
	case <-s.inbox:
		observability.BatchesDropped.WithLabelValues(s.id, "reset").Inc()
	default:
	}
}

// SetViewportGeometry updates the rendering surface. Zero dimensions are
// accepted and pause normalization until a real size arrives.
func (s *Session) SetViewportGeometry(vp Viewport) error {
	if err := vp.Validate(); err != nil {
		return fmt.Errorf("invalid viewport: %w", err)
	}
	s.mu.Lock()
	s.viewport = vp
	s.mu.Unlock()
	return nil
}

// Submit hands off one detection batch without blocking. A batch still
// waiting to be applied is replaced unless it was captured later than b.
// Batches captured before the last applied one are dropped. Batches carrying
// Err are discarded and reported as a DetectionSourceError event.
func (s *Session) Submit(b Batch) error {
	s.mu.RLock()
	running, facing := s.running, s.facing
	epoch := s.tracker.Epoch()
	s.mu.RUnlock()

	if !running {
		return ErrNotRunning
	}
	if b.Err != nil {
		s.reportSourceError(b.Err)
		return nil
	}
	if b.Facing != nil && *b.Facing != facing {
		observability.BatchesDropped.WithLabelValues(s.id, "stale_facing").Inc()
		return nil
	}

	if capturedBefore(b.CapturedAt, s.tracker.LastCaptured()) {
		observability.BatchesDropped.WithLabelValues(s.id, "out_of_order").Inc()
		return nil
	}

	env := envelope{batch: b, epoch: epoch, facing: facing}
	for i := 0; i < 2; i++ {
		select {
		case s.inbox <- env:
			return nil
		default:
		}
		select {
		case pending := <-s.inbox:
			if pending.epoch == epoch && capturedBefore(b.CapturedAt, pending.batch.CapturedAt) {
				s.requeue(pending)
				observability.BatchesDropped.WithLabelValues(s.id, "out_of_order").Inc()
				return nil
			}
			observability.BatchesDropped.WithLabelValues(s.id, "superseded").Inc()
		default:
		}
	}
	// Another producer refilled the slot between our attempts; theirs wins.
	observability.BatchesDropped.WithLabelValues(s.id, "superseded").Inc()
	return nil
}

// requeue puts back a pending batch that turned out newer than the one
// being submitted. If another producer took the slot meanwhile, the apply
// side still rejects whichever of them is older than what it has applied.
func (s *Session) requeue(env envelope) {
	select {
	case s.inbox <- env:
	default:
		observability.BatchesDropped.WithLabelValues(s.id, "superseded").Inc()
	}
}

func (s *Session) reportSourceError(err error) {
	serr := &DetectionSourceError{StreamID: s.id, Err: err}
	slog.Warn("detection batch discarded", "stream_id", s.id, "error", serr)
	observability.SourceErrors.WithLabelValues(s.id).Inc()
	s.emit(EventSourceError, serr.Error())
}

func (s *Session) applyLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-s.inbox:
			s.apply(env)
		}
	}
}

// apply normalizes outside the tracker lock, using the facing stamped at
// hand-off, and commits the batch in one Tracker.ApplyCaptured call.
func (s *Session) apply(env envelope) {
	s.mu.RLock()
	vp := s.viewport
	s.mu.RUnlock()

	faces, err := NormalizeBatch(env.batch.Detections, env.facing, vp, &s.ids, s.minConfidence)
	if err != nil {
		var gerr *GeometryError
		if errors.As(err, &gerr) {
			slog.Debug("skipping batch, viewport not ready", "stream_id", s.id, "error", err)
			observability.BatchesDropped.WithLabelValues(s.id, "geometry").Inc()
			return
		}
		slog.Warn("normalize batch", "stream_id", s.id, "error", err)
		return
	}

	res, err := s.tracker.ApplyCaptured(env.epoch, env.batch.CapturedAt, faces, s.clock.Now())
	switch {
	case errors.Is(err, ErrStaleEpoch):
		observability.BatchesDropped.WithLabelValues(s.id, "reset").Inc()
		return
	case errors.Is(err, ErrOutOfOrder):
		observability.BatchesDropped.WithLabelValues(s.id, "out_of_order").Inc()
		return
	case errors.Is(err, ErrClosed):
		observability.BatchesDropped.WithLabelValues(s.id, "stopped").Inc()
		return
	case err != nil:
		slog.Error("apply batch", "stream_id", s.id, "error", err)
		return
	}

	observability.BatchesApplied.WithLabelValues(s.id).Inc()
	observability.FacesDetected.WithLabelValues(s.id).Add(float64(len(faces)))
	if res.Created > 0 || res.Expiring > 0 {
		slog.Debug("batch applied",
			"stream_id", s.id,
			"created", res.Created,
			"updated", res.Updated,
			"adopted", res.Adopted,
			"expiring", res.Expiring,
		)
	}
}

func (s *Session) tickLoop(ctx context.Context) error {
	ticker := s.clock.Ticker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// tick runs one smoothing step: expire stale faces, copy state out, spring
// math without the lock, commit, publish.
func (s *Session) tick(now time.Time) {
	start := time.Now()

	s.mu.Lock()
	dt := now.Sub(s.lastTick)
	s.lastTick = now
	s.mu.Unlock()

	s.tracker.Expire(now)

	epoch, states, ok := s.tracker.frame()
	if !ok {
		return
	}
	s.smoother.advance(states, dt)
	evicted := s.tracker.commit(epoch, states)
	if len(evicted) > 0 {
		observability.FacesEvicted.WithLabelValues(s.id).Add(float64(len(evicted)))
	}

	o := s.render(now)
	observability.TrackedFaces.WithLabelValues(s.id).Set(float64(len(o.Boxes)))
	observability.TickDuration.Observe(time.Since(start).Seconds())

	// One empty frame clears the renderer; repeating it is noise.
	if len(o.Boxes) == 0 {
		if s.publishedEmpty {
			return
		}
		s.publishedEmpty = true
	} else {
		s.publishedEmpty = false
	}
	o.Seq = s.seq.Add(1)
	s.sink.PublishOverlay(o)
}

// Snapshot returns the current overlay.
func (s *Session) Snapshot() Overlay {
	o := s.render(s.clock.Now())
	o.Seq = s.seq.Add(1)
	return o
}

// render reads the boxes under the same lock that guards facing changes, so
// an overlay never pairs one camera's faces with another camera's facing.
func (s *Session) render(now time.Time) Overlay {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Overlay{
		StreamID:  s.id,
		Facing:    s.facing.String(),
		Viewport:  s.viewport,
		Timestamp: now,
		Boxes:     s.tracker.Snapshot(),
	}
}

// Status is a point-in-time description of a session.
type Status struct {
	StreamID     string
	Facing       Facing
	Viewport     Viewport
	Running      bool
	StartedAt    time.Time
	TrackedFaces int
}

// Status reports the session state.
func (s *Session) Status() Status {
	s.mu.RLock()
	st := Status{
		StreamID:  s.id,
		Facing:    s.facing,
		Viewport:  s.viewport,
		Running:   s.running,
		StartedAt: s.startedAt,
	}
	s.mu.RUnlock()
	st.TrackedFaces = s.tracker.Len()
	return st
}

func (s *Session) emit(typ, msg string) {
	s.sink.PublishEvent(Event{
		Type:      typ,
		StreamID:  s.id,
		Facing:    s.Facing().String(),
		Message:   msg,
		Timestamp: s.clock.Now(),
	})
}
