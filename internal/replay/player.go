package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/your-org/faceoverlay/internal/models"
)

// Publisher is the transport a Player writes to.
type Publisher interface {
	PublishDetections(ctx context.Context, batch models.DetectionBatch) error
	PublishControl(cmd models.StreamCommand) error
}

type Player struct {
	rec   *Recording
	pub   Publisher
	clock clock.Clock
}

func NewPlayer(rec *Recording, pub Publisher, clk clock.Clock) *Player {
	if clk == nil {
		clk = clock.New()
	}
	return &Player{rec: rec, pub: pub, clock: clk}
}

// Play publishes every frame, pacing them by the recording interval, and
// repeats when the recording loops. It returns when the frames run out or
// ctx is done. Publish failures are logged and skipped, like a detector
// that missed a frame.
func (p *Player) Play(ctx context.Context) (published int, err error) {
	facing := p.rec.Facing

	if p.rec.StartStream {
		cmd := models.StreamCommand{
			Action:   models.ActionStart,
			StreamID: p.rec.StreamID,
			Facing:   facing,
			Viewport: p.rec.Viewport,
		}
		if err := p.pub.PublishControl(cmd); err != nil {
			return 0, fmt.Errorf("publish start command: %w", err)
		}
	}

	for {
		for i, f := range p.rec.Frames {
			if f.Facing != "" && f.Facing != facing {
				facing = f.Facing
				cmd := models.StreamCommand{Action: models.ActionFacing, StreamID: p.rec.StreamID, Facing: facing}
				if err := p.pub.PublishControl(cmd); err != nil {
					slog.Warn("publish facing command", "stream_id", p.rec.StreamID, "error", err)
				}
			}

			batch := models.DetectionBatch{
				StreamID:   p.rec.StreamID,
				Facing:     facing,
				CapturedAt: p.clock.Now(),
				Error:      f.Error,
				Detections: f.Detections,
			}
			if err := p.pub.PublishDetections(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return published, ctx.Err()
				}
				slog.Warn("publish detections", "stream_id", p.rec.StreamID, "frame", i, "error", err)
			} else {
				published++
			}

			select {
			case <-ctx.Done():
				return published, ctx.Err()
			case <-p.clock.After(p.rec.Interval):
			}
		}
		if !p.rec.Loop {
			return published, nil
		}
	}
}
