package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceoverlay/internal/api/ws"
	"github.com/your-org/faceoverlay/internal/models"
	"github.com/your-org/faceoverlay/internal/overlay"
	"github.com/your-org/faceoverlay/internal/stream"
	"github.com/your-org/faceoverlay/pkg/dto"
)

type StreamHandler struct {
	manager *stream.Manager
}

func NewStreamHandler(manager *stream.Manager) *StreamHandler {
	return &StreamHandler{manager: manager}
}

func (h *StreamHandler) Create(c *gin.Context) {
	var req dto.CreateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := stream.StartOptions{StreamID: req.StreamID}
	if req.Facing != "" {
		f, err := overlay.ParseFacing(req.Facing)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.Facing = &f
	}
	if req.Viewport != nil {
		vp := viewportFromPayload(*req.Viewport)
		if err := vp.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.Viewport = &vp
	}

	st, err := h.manager.Start(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, statusToResponse(st))
}

func (h *StreamHandler) List(c *gin.Context) {
	statuses := h.manager.List()

	resp := make([]dto.StreamResponse, 0, len(statuses))
	for _, st := range statuses {
		resp = append(resp, statusToResponse(st))
	}

	c.JSON(http.StatusOK, dto.StreamListResponse{Streams: resp, Total: len(resp)})
}

func (h *StreamHandler) Get(c *gin.Context) {
	sess, err := h.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusToResponse(sess.Status()))
}

func (h *StreamHandler) Stop(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Stop(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "stream_id": id})
}

// Delete stops the stream like Stop; sessions hold no other state.
func (h *StreamHandler) Delete(c *gin.Context) {
	if err := h.manager.Stop(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *StreamHandler) SetFacing(c *gin.Context) {
	var req dto.SetFacingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := overlay.ParseFacing(req.Facing)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.manager.SetFacing(id, f); err != nil {
		writeError(c, err)
		return
	}
	h.respondStatus(c, id)
}

func (h *StreamHandler) SetViewport(c *gin.Context) {
	var req dto.ViewportPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vp := viewportFromPayload(req)
	if err := vp.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.manager.SetViewport(id, vp); err != nil {
		writeError(c, err)
		return
	}
	h.respondStatus(c, id)
}

func (h *StreamHandler) Overlay(c *gin.Context) {
	sess, err := h.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.NewOverlayResponse(sess.Snapshot()))
}

// SubmitDetections accepts one detection batch over HTTP, for sources that
// do not publish to NATS.
func (h *StreamHandler) SubmitDetections(c *gin.Context) {
	var req models.DetectionBatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.StreamID = c.Param("id")
	if req.CapturedAt.IsZero() {
		req.CapturedAt = time.Now()
	}

	batch, err := req.ToBatch()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.Submit(req.StreamID, batch); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitDetectionsResponse{
		StreamID:   req.StreamID,
		Detections: len(batch.Detections),
		Status:     "accepted",
	})
}

func (h *StreamHandler) respondStatus(c *gin.Context, id string) {
	sess, err := h.manager.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusToResponse(sess.Status()))
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, stream.ErrStreamNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
	case errors.Is(err, stream.ErrStreamExists):
		c.JSON(http.StatusConflict, gin.H{"error": "stream already running"})
	case errors.Is(err, overlay.ErrNotRunning), errors.Is(err, overlay.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("stream request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func viewportFromPayload(p dto.ViewportPayload) overlay.Viewport {
	return overlay.Viewport{Width: p.Width, Height: p.Height, PreviewHeight: p.PreviewHeight}
}

func statusToResponse(st overlay.Status) dto.StreamResponse {
	resp := dto.StreamResponse{
		StreamID:     st.StreamID,
		Facing:       st.Facing.String(),
		Viewport:     ws.NewViewportPayload(st.Viewport),
		Running:      st.Running,
		TrackedFaces: st.TrackedFaces,
	}
	if !st.StartedAt.IsZero() {
		resp.StartedAt = st.StartedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
