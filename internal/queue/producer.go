package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceoverlay/internal/models"
	"github.com/your-org/faceoverlay/internal/overlay"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// detectionsStream holds batches only briefly: a batch older than a few
// seconds describes faces that are no longer there.
func detectionsStream() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        DetectionsStreamName,
		Subjects:    []string{DetectionsSubjectBase + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      5 * time.Second,
		Storage:     jetstream.MemoryStorage,
		Discard:     jetstream.DiscardOld,
		Description: "Face detection batches from detection sources",
	}
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{detectionsStream()}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishDetections publishes one detection batch to detections.<stream_id>.
func (p *Producer) PublishDetections(ctx context.Context, batch models.DetectionBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal detection batch: %w", err)
	}

	_, err = p.js.Publish(ctx, DetectionsSubject(batch.StreamID), payload)
	if err != nil {
		return fmt.Errorf("publish detections: %w", err)
	}
	return nil
}

// PendingDetections returns the number of batches waiting in the DETECTIONS stream.
func (p *Producer) PendingDetections(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, DetectionsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

// PublishControl publishes a control command via raw NATS (not JetStream).
// The overlay service subscribes to overlay.control.
func (p *Producer) PublishControl(cmd models.StreamCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return p.nc.Publish(ControlSubject, data)
}

// PublishOverlay mirrors a rendered overlay to overlay.frames.<stream_id>.
// Core NATS publishes are buffered, so this is safe to call from a tick.
func (p *Producer) PublishOverlay(o overlay.Overlay) {
	p.publishJSON(FramesSubject(o.StreamID), o)
}

// PublishEvent mirrors a session event to overlay.events.<stream_id>.
func (p *Producer) PublishEvent(e overlay.Event) {
	p.publishJSON(EventsSubject(e.StreamID), e)
}

func (p *Producer) publishJSON(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal nats payload", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Debug("publish to nats", "subject", subject, "error", err)
	}
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
