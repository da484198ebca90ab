package dto

// BoxResponse is one rendered face rectangle in viewport coordinates.
type BoxResponse struct {
	ID         string             `json:"id"`
	X          float64            `json:"x"`
	Y          float64            `json:"y"`
	Width      float64            `json:"width"`
	Height     float64            `json:"height"`
	Opacity    float64            `json:"opacity"`
	Attributes map[string]float64 `json:"attributes,omitempty"`
	SmileLevel string             `json:"smile_level,omitempty"` // happy, neutral or sad
}

type OverlayResponse struct {
	StreamID  string          `json:"stream_id"`
	Facing    string          `json:"facing"`
	Viewport  ViewportPayload `json:"viewport"`
	Seq       uint64          `json:"seq"`
	Timestamp string          `json:"timestamp"`
	Boxes     []BoxResponse   `json:"boxes"`
}

type EventPayload struct {
	Type      string `json:"type"`
	Facing    string `json:"facing"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// WSMessage is pushed to WebSocket clients: an overlay frame on every
// render tick, or a session event.
type WSMessage struct {
	Type     string           `json:"type"` // overlay, session_started, session_stopped, camera_switched, source_error
	StreamID string           `json:"stream_id"`
	Overlay  *OverlayResponse `json:"overlay,omitempty"`
	Event    *EventPayload    `json:"event,omitempty"`
}

// SubmitDetectionsResponse acknowledges a batch handed to a session.
type SubmitDetectionsResponse struct {
	StreamID   string `json:"stream_id"`
	Detections int    `json:"detections"`
	Status     string `json:"status"`
}
