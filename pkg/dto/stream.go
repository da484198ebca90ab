package dto

type ViewportPayload struct {
	Width         float64 `json:"width" binding:"gte=0"`
	Height        float64 `json:"height" binding:"gte=0"`
	PreviewHeight float64 `json:"preview_height,omitempty" binding:"gte=0"`
}

type CreateStreamRequest struct {
	StreamID string           `json:"stream_id,omitempty" binding:"omitempty,max=128"`
	Facing   string           `json:"facing,omitempty" binding:"omitempty,oneof=back front"`
	Viewport *ViewportPayload `json:"viewport,omitempty"`
}

type SetFacingRequest struct {
	Facing string `json:"facing" binding:"required,oneof=back front"`
}

type StreamResponse struct {
	StreamID     string          `json:"stream_id"`
	Facing       string          `json:"facing"`
	Viewport     ViewportPayload `json:"viewport"`
	Running      bool            `json:"running"`
	TrackedFaces int             `json:"tracked_faces"`
	StartedAt    string          `json:"started_at,omitempty"`
}

type StreamListResponse struct {
	Streams []StreamResponse `json:"streams"`
	Total   int              `json:"total"`
}
