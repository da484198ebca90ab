package replay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/your-org/faceoverlay/internal/models"
	"github.com/your-org/faceoverlay/internal/overlay"
)

// Recording is a scripted detection source: a list of frames replayed at a
// fixed interval.
type Recording struct {
	StreamID string            `yaml:"stream_id"`
	Facing   string            `yaml:"facing"`
	Viewport *overlay.Viewport `yaml:"viewport"`
	Interval time.Duration     `yaml:"interval"`
	Loop     bool              `yaml:"loop"`
	// StartStream sends a start command before the first frame.
	StartStream bool    `yaml:"start_stream"`
	Frames      []Frame `yaml:"frames"`
}

// Frame is one detector invocation. Setting Facing switches the camera
// before the frame is published; setting Error simulates a failed call.
type Frame struct {
	Facing     string             `yaml:"facing,omitempty"`
	Error      string             `yaml:"error,omitempty"`
	Detections []models.Detection `yaml:"detections"`
}

// Load reads and validates a YAML recording.
func Load(path string) (*Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Recording, error) {
	rec := &Recording{}
	if err := yaml.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("parse recording: %w", err)
	}
	if rec.Interval == 0 {
		rec.Interval = 100 * time.Millisecond
	}
	if rec.Facing == "" {
		rec.Facing = overlay.FacingBack.String()
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("validate recording: %w", err)
	}
	return rec, nil
}

func (r *Recording) Validate() error {
	if r.StreamID == "" {
		return fmt.Errorf("stream_id is required")
	}
	if r.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if len(r.Frames) == 0 {
		return fmt.Errorf("recording has no frames")
	}
	if _, err := overlay.ParseFacing(r.Facing); err != nil {
		return err
	}
	for i, f := range r.Frames {
		if f.Facing == "" {
			continue
		}
		if _, err := overlay.ParseFacing(f.Facing); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	if r.Viewport != nil {
		if err := r.Viewport.Validate(); err != nil {
			return fmt.Errorf("viewport: %w", err)
		}
	}
	return nil
}
