package stream

import (
	"errors"
	"fmt"

	"github.com/your-org/faceoverlay/internal/models"
	"github.com/your-org/faceoverlay/internal/observability"
	"github.com/your-org/faceoverlay/internal/overlay"
)

// HandleDetectionMessage decodes a JSON detection batch and submits it.
// The stream id in the payload wins; subjectID is the fallback taken from
// the message subject. Batches for unknown or stopped streams are dropped
// without error, since no retry can make them useful.
func (m *Manager) HandleDetectionMessage(subjectID string, data []byte) error {
	msg, err := models.DecodeDetectionBatch(data)
	if err != nil {
		observability.BatchesDropped.WithLabelValues(subjectID, "decode").Inc()
		return err
	}
	if msg.StreamID == "" {
		msg.StreamID = subjectID
	}

	batch, err := msg.ToBatch()
	if err != nil {
		observability.BatchesDropped.WithLabelValues(msg.StreamID, "decode").Inc()
		return err
	}

	err = m.Submit(msg.StreamID, batch)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStreamNotFound), errors.Is(err, overlay.ErrNotRunning):
		observability.BatchesDropped.WithLabelValues(msg.StreamID, "unknown_stream").Inc()
		return nil
	default:
		return fmt.Errorf("submit batch for %s: %w", msg.StreamID, err)
	}
}
