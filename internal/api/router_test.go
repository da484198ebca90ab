package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceoverlay/internal/api/handlers"
	"github.com/your-org/faceoverlay/internal/api/ws"
	"github.com/your-org/faceoverlay/internal/overlay"
	"github.com/your-org/faceoverlay/internal/stream"
	"github.com/your-org/faceoverlay/pkg/dto"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping() error { return f.err }

type testServer struct {
	t       *testing.T
	handler http.Handler
	apiKey  string
}

func newTestServer(t *testing.T, apiKey string, nats handlers.Pinger) *testServer {
	t.Helper()
	hub := ws.NewHub()
	manager := stream.NewManager(overlay.Options{
		Facing:   overlay.FacingBack,
		Viewport: overlay.Viewport{Width: 400, Height: 800},
		Clock:    clock.NewMock(),
	}, hub)
	t.Cleanup(func() { _ = manager.StopAll() })

	return &testServer{
		t:       t,
		handler: NewRouter(RouterConfig{APIKey: apiKey, Manager: manager, NATS: nats, Hub: hub}),
		apiKey:  apiKey,
	}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, "", nil)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", nil).Code)

	w := s.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "disabled")

	s = newTestServer(t, "", fakePinger{err: errors.New("nats not connected")})
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/readyz", nil).Code)

	s = newTestServer(t, "", fakePinger{})
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/readyz", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/metrics", nil).Code)
}

func TestRouter_RequiresAPIKey(t *testing.T) {
	s := newTestServer(t, "secret", nil)
	s.apiKey = ""
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/streams", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", nil).Code)

	s.apiKey = "secret"
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/streams", nil).Code)
}

func TestRouter_StreamLifecycle(t *testing.T) {
	s := newTestServer(t, "k", nil)

	w := s.do(http.MethodPost, "/v1/streams", dto.CreateStreamRequest{StreamID: "cam-1", Facing: "front"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.StreamResponse](t, w)
	assert.Equal(t, "cam-1", created.StreamID)
	assert.Equal(t, "front", created.Facing)
	assert.True(t, created.Running)
	assert.Equal(t, 400.0, created.Viewport.Width)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/v1/streams", dto.CreateStreamRequest{StreamID: "cam-1"}).Code)

	list := decode[dto.StreamListResponse](t, s.do(http.MethodGet, "/v1/streams", nil))
	assert.Equal(t, 1, list.Total)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/streams/cam-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/streams/nope", nil).Code)

	w = s.do(http.MethodPost, "/v1/streams/cam-1/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/streams/cam-1/stop", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/v1/streams/cam-1", nil).Code)
}

func TestRouter_CreateValidation(t *testing.T) {
	s := newTestServer(t, "", nil)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/streams", `{"facing":"sideways"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/streams",
		`{"viewport":{"width":100,"height":100,"preview_height":200}}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/streams",
		`{"viewport":{"width":-1,"height":100}}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/streams", `{`).Code)

	w := s.do(http.MethodPost, "/v1/streams", `{}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, decode[dto.StreamResponse](t, w).StreamID)
}

func TestRouter_FacingAndViewport(t *testing.T) {
	s := newTestServer(t, "", nil)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/streams", dto.CreateStreamRequest{StreamID: "cam-1"}).Code)

	w := s.do(http.MethodPut, "/v1/streams/cam-1/facing", dto.SetFacingRequest{Facing: "front"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "front", decode[dto.StreamResponse](t, w).Facing)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/v1/streams/cam-1/facing", `{"facing":"up"}`).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/v1/streams/nope/facing", dto.SetFacingRequest{Facing: "back"}).Code)

	w = s.do(http.MethodPut, "/v1/streams/cam-1/viewport", dto.ViewportPayload{Width: 360, Height: 740, PreviewHeight: 370})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 370.0, decode[dto.StreamResponse](t, w).Viewport.PreviewHeight)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/v1/streams/cam-1/viewport",
		dto.ViewportPayload{Width: 10, Height: 10, PreviewHeight: 20}).Code)
}

func TestRouter_SubmitDetectionsAndOverlay(t *testing.T) {
	s := newTestServer(t, "", nil)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/streams", dto.CreateStreamRequest{StreamID: "cam-1"}).Code)

	w := s.do(http.MethodPost, "/v1/streams/cam-1/detections",
		`{"detections":[{"tracking_id":7,"x":0.25,"y":0.25,"width":0.1,"height":0.05,"attributes":{"smile":0.7}}]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[dto.SubmitDetectionsResponse](t, w).Detections)

	var got dto.OverlayResponse
	require.Eventually(t, func() bool {
		got = decode[dto.OverlayResponse](t, s.do(http.MethodGet, "/v1/streams/cam-1/overlay", nil))
		return len(got.Boxes) == 1
	}, 2*time.Second, 5*time.Millisecond)

	box := got.Boxes[0]
	assert.Equal(t, "7", box.ID)
	assert.InDelta(t, 100, box.X, 1e-9)
	assert.InDelta(t, 200, box.Y, 1e-9)
	assert.InDelta(t, 40, box.Width, 1e-9)
	assert.Equal(t, 0.7, box.Attributes["smile"])
	assert.Equal(t, "back", got.Facing)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/streams/cam-1/detections", `{"detections":[{"tracking_id":true}]}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/streams/cam-1/detections", `{"facing":"up","detections":[]}`).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/streams/nope/detections", `{"detections":[]}`).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/streams/nope/overlay", nil).Code)

	// A reported source failure is accepted and surfaced as an event, not an HTTP error.
	assert.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/v1/streams/cam-1/detections", `{"error":"camera busy"}`).Code)
}
