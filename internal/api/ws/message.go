package ws

import (
	"time"

	"github.com/samber/lo"

	"github.com/your-org/faceoverlay/internal/overlay"
	"github.com/your-org/faceoverlay/pkg/dto"
)

const MessageTypeOverlay = "overlay"

// NewOverlayResponse converts a session snapshot into its wire form.
func NewOverlayResponse(o overlay.Overlay) dto.OverlayResponse {
	return dto.OverlayResponse{
		StreamID:  o.StreamID,
		Facing:    o.Facing,
		Viewport:  NewViewportPayload(o.Viewport),
		Seq:       o.Seq,
		Timestamp: o.Timestamp.UTC().Format(time.RFC3339Nano),
		Boxes: lo.Map(o.Boxes, func(b overlay.Box, _ int) dto.BoxResponse {
			smile, _ := b.Attributes.SmileLevel()
			return dto.BoxResponse{
				ID:         b.ID,
				X:          b.X,
				Y:          b.Y,
				Width:      b.Width,
				Height:     b.Height,
				Opacity:    b.Opacity,
				Attributes: b.Attributes,
				SmileLevel: smile,
			}
		}),
	}
}

func NewViewportPayload(vp overlay.Viewport) dto.ViewportPayload {
	return dto.ViewportPayload{Width: vp.Width, Height: vp.Height, PreviewHeight: vp.PreviewHeight}
}

func newEventPayload(e overlay.Event) dto.EventPayload {
	return dto.EventPayload{
		Type:      e.Type,
		Facing:    e.Facing,
		Message:   e.Message,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
