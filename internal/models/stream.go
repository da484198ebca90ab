package models

import (
	"encoding/json"
	"fmt"

	"github.com/your-org/faceoverlay/internal/overlay"
)

type CommandAction string

const (
	ActionStart    CommandAction = "start"
	ActionStop     CommandAction = "stop"
	ActionFacing   CommandAction = "facing"
	ActionViewport CommandAction = "viewport"
)

// StreamCommand is published on overlay.control to drive sessions from
// outside the HTTP API.
type StreamCommand struct {
	Action   CommandAction     `json:"action"`
	StreamID string            `json:"stream_id"`
	Facing   string            `json:"facing,omitempty"`
	Viewport *overlay.Viewport `json:"viewport,omitempty"`
}

func (c StreamCommand) Validate() error {
	if c.StreamID == "" {
		return fmt.Errorf("stream_id is required")
	}
	switch c.Action {
	case ActionStart, ActionStop:
	case ActionFacing:
		if _, err := overlay.ParseFacing(c.Facing); err != nil {
			return err
		}
	case ActionViewport:
		if c.Viewport == nil {
			return fmt.Errorf("viewport is required for %q", c.Action)
		}
	default:
		return fmt.Errorf("unknown action %q", c.Action)
	}
	return nil
}

// DecodeStreamCommand parses and validates a control message.
func DecodeStreamCommand(data []byte) (StreamCommand, error) {
	var c StreamCommand
	if err := json.Unmarshal(data, &c); err != nil {
		return StreamCommand{}, fmt.Errorf("unmarshal stream command: %w", err)
	}
	if err := c.Validate(); err != nil {
		return StreamCommand{}, fmt.Errorf("invalid stream command: %w", err)
	}
	return c, nil
}
