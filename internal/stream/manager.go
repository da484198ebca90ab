package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/your-org/faceoverlay/internal/models"
	"github.com/your-org/faceoverlay/internal/observability"
	"github.com/your-org/faceoverlay/internal/overlay"
)

var (
	ErrStreamNotFound = errors.New("stream not found")
	ErrStreamExists   = errors.New("stream already running")
)

// StartOptions overrides the configured session defaults for one stream.
type StartOptions struct {
	StreamID string
	Facing   *overlay.Facing
	Viewport *overlay.Viewport
}

// Manager owns one overlay session per active camera stream.
type Manager struct {
	defaults overlay.Options
	sink     overlay.Sink

	mu       sync.RWMutex
	sessions map[string]*overlay.Session
}

// NewManager creates a manager. defaults supplies every session option
// except the stream id; sink receives the output of all sessions.
func NewManager(defaults overlay.Options, sink overlay.Sink) *Manager {
	return &Manager{
		defaults: defaults,
		sink:     sink,
		sessions: make(map[string]*overlay.Session),
	}
}

// Start creates and starts a session. A random id is assigned when none is
// given. Sessions outlive ctx; they run until Stop or StopAll.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (overlay.Status, error) {
	id := opts.StreamID
	if id == "" {
		id = uuid.NewString()
	}

	sessOpts := m.defaults
	sessOpts.StreamID = id
	sessOpts.Sink = m.sink
	if opts.Facing != nil {
		sessOpts.Facing = *opts.Facing
	}
	if opts.Viewport != nil {
		sessOpts.Viewport = *opts.Viewport
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return overlay.Status{}, fmt.Errorf("start %s: %w", id, ErrStreamExists)
	}

	sess, err := overlay.NewSession(sessOpts)
	if err != nil {
		return overlay.Status{}, fmt.Errorf("create session: %w", err)
	}
	if err := sess.Start(context.WithoutCancel(ctx)); err != nil {
		return overlay.Status{}, fmt.Errorf("start session: %w", err)
	}

	m.sessions[id] = sess
	observability.ActiveStreams.Inc()
	slog.Info("stream started", "stream_id", id, "facing", sessOpts.Facing.String())
	return sess.Status(), nil
}

// Stop tears down a session and forgets it.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	sess, exists := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("stop %s: %w", id, ErrStreamNotFound)
	}
	observability.ActiveStreams.Dec()

	if err := sess.Stop(); err != nil && !errors.Is(err, overlay.ErrNotRunning) {
		return fmt.Errorf("stop session %s: %w", id, err)
	}
	return nil
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*overlay.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrStreamNotFound)
	}
	return sess, nil
}

// List returns the status of every session, ordered by stream id.
func (m *Manager) List() []overlay.Status {
	m.mu.RLock()
	sessions := lo.Values(m.sessions)
	m.mu.RUnlock()

	out := lo.Map(sessions, func(s *overlay.Session, _ int) overlay.Status {
		return s.Status()
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

// Submit hands a detection batch to the stream's session.
func (m *Manager) Submit(id string, b overlay.Batch) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	return sess.Submit(b)
}

// SetFacing switches the camera of a stream, resetting its overlay.
func (m *Manager) SetFacing(id string, f overlay.Facing) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.SetCameraFacing(f)
	return nil
}

// SetViewport updates the rendering surface of a stream.
func (m *Manager) SetViewport(id string, vp overlay.Viewport) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	return sess.SetViewportGeometry(vp)
}

// HandleCommand applies a control command received over NATS.
func (m *Manager) HandleCommand(ctx context.Context, cmd models.StreamCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	switch cmd.Action {
	case models.ActionStart:
		opts := StartOptions{StreamID: cmd.StreamID, Viewport: cmd.Viewport}
		if cmd.Facing != "" {
			f, err := overlay.ParseFacing(cmd.Facing)
			if err != nil {
				return err
			}
			opts.Facing = &f
		}
		_, err := m.Start(ctx, opts)
		return err
	case models.ActionStop:
		return m.Stop(cmd.StreamID)
	case models.ActionFacing:
		f, err := overlay.ParseFacing(cmd.Facing)
		if err != nil {
			return err
		}
		return m.SetFacing(cmd.StreamID, f)
	case models.ActionViewport:
		return m.SetViewport(cmd.StreamID, *cmd.Viewport)
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

// ActiveCount returns the number of running sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopAll stops every session and returns the combined errors.
func (m *Manager) StopAll() error {
	m.mu.RLock()
	ids := lo.Keys(m.sessions)
	m.mu.RUnlock()

	var err error
	for _, id := range ids {
		if stopErr := m.Stop(id); stopErr != nil && !errors.Is(stopErr, ErrStreamNotFound) {
			err = multierr.Append(err, stopErr)
		}
	}
	return err
}
