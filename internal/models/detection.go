package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/your-org/faceoverlay/internal/overlay"
)

// TrackingID is a detector-assigned face id. Detectors report it either as
// a JSON number or a string; both decode to the same textual id.
type TrackingID string

func (id *TrackingID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TrackingID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("tracking_id must be a number or string: %w", err)
	}
	*id = TrackingID(n.String())
	return nil
}

func (id *TrackingID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("tracking_id must be a scalar (line %d)", node.Line)
	}
	if node.Tag == "!!null" {
		*id = ""
		return nil
	}
	*id = TrackingID(node.Value)
	return nil
}

// Detection is one face as reported by the detection source. Coordinates are
// fractions of the analyzed frame.
type Detection struct {
	TrackingID TrackingID         `json:"tracking_id,omitempty" yaml:"tracking_id,omitempty"`
	X          float64            `json:"x" yaml:"x"`
	Y          float64            `json:"y" yaml:"y"`
	Width      float64            `json:"width" yaml:"width"`
	Height     float64            `json:"height" yaml:"height"`
	Confidence *float64           `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Attributes map[string]float64 `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// DetectionBatch is the message published to detections.<stream_id>, one per
// detector invocation.
type DetectionBatch struct {
	StreamID   string      `json:"stream_id" yaml:"stream_id,omitempty"`
	Facing     string      `json:"facing,omitempty" yaml:"facing,omitempty"`
	CapturedAt time.Time   `json:"captured_at,omitempty" yaml:"captured_at,omitempty"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
	Detections []Detection `json:"detections" yaml:"detections"`
}

// ToBatch converts the wire message into the form a session accepts.
func (b DetectionBatch) ToBatch() (overlay.Batch, error) {
	out := overlay.Batch{CapturedAt: b.CapturedAt}
	if b.Facing != "" {
		f, err := overlay.ParseFacing(b.Facing)
		if err != nil {
			return overlay.Batch{}, fmt.Errorf("decode batch: %w", err)
		}
		out.Facing = &f
	}
	if b.Error != "" {
		out.Err = errors.New(b.Error)
		return out, nil
	}

	out.Detections = make([]overlay.RawDetection, 0, len(b.Detections))
	for _, d := range b.Detections {
		out.Detections = append(out.Detections, overlay.RawDetection{
			Bounds:     overlay.Rect{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height},
			TrackingID: string(d.TrackingID),
			Confidence: d.Confidence,
			Attributes: overlay.Attributes(d.Attributes),
		})
	}
	return out, nil
}

// DecodeDetectionBatch parses a JSON detection batch.
func DecodeDetectionBatch(data []byte) (DetectionBatch, error) {
	var b DetectionBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return DetectionBatch{}, fmt.Errorf("unmarshal detection batch: %w", err)
	}
	return b, nil
}
