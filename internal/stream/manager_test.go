package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceoverlay/internal/models"
	"github.com/your-org/faceoverlay/internal/overlay"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []overlay.Event
}

func (r *eventRecorder) PublishOverlay(overlay.Overlay) {}

func (r *eventRecorder) PublishEvent(e overlay.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types(streamID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.StreamID == streamID {
			out = append(out, e.Type)
		}
	}
	return out
}

func newTestManager(t *testing.T) (*Manager, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{}
	m := NewManager(overlay.Options{
		Facing:   overlay.FacingBack,
		Viewport: overlay.Viewport{Width: 400, Height: 800},
		Clock:    clock.NewMock(),
	}, rec)
	t.Cleanup(func() { _ = m.StopAll() })
	return m, rec
}

func TestManager_StartAndDuplicate(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()

	st, err := m.Start(ctx, StartOptions{StreamID: "cam-1"})
	require.NoError(t, err)
	assert.Equal(t, "cam-1", st.StreamID)
	assert.True(t, st.Running)
	assert.Equal(t, overlay.FacingBack, st.Facing)

	_, err = m.Start(ctx, StartOptions{StreamID: "cam-1"})
	assert.ErrorIs(t, err, ErrStreamExists)
	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, []string{overlay.EventSessionStarted}, rec.types("cam-1"))
}

func TestManager_StartGeneratesID(t *testing.T) {
	m, _ := newTestManager(t)

	st, err := m.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	assert.Len(t, st.StreamID, 36)
}

func TestManager_StartOverrides(t *testing.T) {
	m, _ := newTestManager(t)
	front := overlay.FacingFront
	vp := overlay.Viewport{Width: 360, Height: 740, PreviewHeight: 370}

	st, err := m.Start(context.Background(), StartOptions{StreamID: "cam-1", Facing: &front, Viewport: &vp})
	require.NoError(t, err)
	assert.Equal(t, overlay.FacingFront, st.Facing)
	assert.Equal(t, vp, st.Viewport)

	bad := overlay.Viewport{Width: 10, Height: 10, PreviewHeight: 20}
	_, err = m.Start(context.Background(), StartOptions{StreamID: "cam-2", Viewport: &bad})
	assert.Error(t, err)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestManager_SessionOutlivesStartContext(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := m.Start(ctx, StartOptions{StreamID: "cam-1"})
	require.NoError(t, err)
	cancel()

	sess, err := m.Get("cam-1")
	require.NoError(t, err)
	assert.True(t, sess.Running())
}

func TestManager_StopAndNotFound(t *testing.T) {
	m, rec := newTestManager(t)
	_, err := m.Start(context.Background(), StartOptions{StreamID: "cam-1"})
	require.NoError(t, err)

	require.NoError(t, m.Stop("cam-1"))
	assert.Zero(t, m.ActiveCount())
	assert.Contains(t, rec.types("cam-1"), overlay.EventSessionStopped)

	assert.ErrorIs(t, m.Stop("cam-1"), ErrStreamNotFound)
	_, err = m.Get("cam-1")
	assert.ErrorIs(t, err, ErrStreamNotFound)
	assert.ErrorIs(t, m.Submit("cam-1", overlay.Batch{}), ErrStreamNotFound)
	assert.ErrorIs(t, m.SetFacing("cam-1", overlay.FacingFront), ErrStreamNotFound)
	assert.ErrorIs(t, m.SetViewport("cam-1", overlay.Viewport{}), ErrStreamNotFound)
}

func TestManager_ListOrdered(t *testing.T) {
	m, _ := newTestManager(t)
	for _, id := range []string{"c", "a", "b"} {
		_, err := m.Start(context.Background(), StartOptions{StreamID: id})
		require.NoError(t, err)
	}

	var ids []string
	for _, st := range m.List() {
		ids = append(ids, st.StreamID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestManager_SubmitReachesSession(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Start(context.Background(), StartOptions{StreamID: "cam-1"})
	require.NoError(t, err)

	err = m.Submit("cam-1", overlay.Batch{Detections: []overlay.RawDetection{{
		TrackingID: "7",
		Bounds:     overlay.Rect{X: 0.25, Y: 0.25, Width: 0.1, Height: 0.05},
	}}})
	require.NoError(t, err)

	sess, err := m.Get("cam-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sess.Status().TrackedFaces == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager_HandleCommand(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.HandleCommand(ctx, models.StreamCommand{Action: models.ActionStart, StreamID: "cam-1", Facing: "front"}))
	sess, err := m.Get("cam-1")
	require.NoError(t, err)
	assert.Equal(t, overlay.FacingFront, sess.Facing())

	require.NoError(t, m.HandleCommand(ctx, models.StreamCommand{Action: models.ActionFacing, StreamID: "cam-1", Facing: "back"}))
	assert.Equal(t, overlay.FacingBack, sess.Facing())
	assert.Contains(t, rec.types("cam-1"), overlay.EventCameraSwitched)

	vp := overlay.Viewport{Width: 200, Height: 300}
	require.NoError(t, m.HandleCommand(ctx, models.StreamCommand{Action: models.ActionViewport, StreamID: "cam-1", Viewport: &vp}))
	assert.Equal(t, vp, sess.Viewport())

	assert.Error(t, m.HandleCommand(ctx, models.StreamCommand{Action: "explode", StreamID: "cam-1"}))

	require.NoError(t, m.HandleCommand(ctx, models.StreamCommand{Action: models.ActionStop, StreamID: "cam-1"}))
	assert.False(t, sess.Running())
	assert.ErrorIs(t, m.HandleCommand(ctx, models.StreamCommand{Action: models.ActionStop, StreamID: "cam-1"}), ErrStreamNotFound)
}

func TestManager_StopAll(t *testing.T) {
	m, _ := newTestManager(t)
	for _, id := range []string{"a", "b"} {
		_, err := m.Start(context.Background(), StartOptions{StreamID: id})
		require.NoError(t, err)
	}

	require.NoError(t, m.StopAll())
	assert.Zero(t, m.ActiveCount())
	assert.Empty(t, m.List())
}

func TestFanOut(t *testing.T) {
	a, b := &eventRecorder{}, &eventRecorder{}
	sink := FanOut(a, nil, b)

	sink.PublishEvent(overlay.Event{Type: overlay.EventSourceError, StreamID: "x"})
	sink.PublishOverlay(overlay.Overlay{})

	assert.Equal(t, []string{overlay.EventSourceError}, a.types("x"))
	assert.Equal(t, []string{overlay.EventSourceError}, b.types("x"))
}
