package stream

import "github.com/your-org/faceoverlay/internal/overlay"

type fanOut []overlay.Sink

// FanOut returns a sink that forwards to every non-nil sink in order.
func FanOut(sinks ...overlay.Sink) overlay.Sink {
	var out fanOut
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanOut) PublishOverlay(o overlay.Overlay) {
	for _, s := range f {
		s.PublishOverlay(o)
	}
}

func (f fanOut) PublishEvent(e overlay.Event) {
	for _, s := range f {
		s.PublishEvent(e)
	}
}
