package overlay

import (
	"math"
	"time"
)

// SmootherOptions configures a Smoother.
type SmootherOptions struct {
	Spring Spring
	// SettleEpsilon snaps a scalar onto its target once both the distance
	// and the speed fall below it.
	SettleEpsilon float64
	// OpacityFloor is the opacity at which a fading face counts as gone.
	OpacityFloor float64
	// MaxTickDelta bounds a single step after a stalled tick.
	MaxTickDelta time.Duration
}

// DefaultSmootherOptions returns the tuning used when nothing is configured.
func DefaultSmootherOptions() SmootherOptions {
	return SmootherOptions{
		Spring:        DefaultSpring(),
		SettleEpsilon: 1e-3,
		OpacityFloor:  0.01,
		MaxTickDelta:  100 * time.Millisecond,
	}
}

// Smoother advances rendered geometry toward target geometry. It holds no
// face state of its own.
type Smoother struct {
	opts SmootherOptions
}

// NewSmoother creates a smoother. Zero option fields fall back to defaults.
func NewSmoother(opts SmootherOptions) *Smoother {
	def := DefaultSmootherOptions()
	if opts.Spring.Validate() != nil {
		opts.Spring = def.Spring
	}
	if opts.SettleEpsilon <= 0 {
		opts.SettleEpsilon = def.SettleEpsilon
	}
	if opts.OpacityFloor <= 0 {
		opts.OpacityFloor = def.OpacityFloor
	}
	if opts.MaxTickDelta <= 0 {
		opts.MaxTickDelta = def.MaxTickDelta
	}
	return &Smoother{opts: opts}
}

// Options returns the effective tuning.
func (s *Smoother) Options() SmootherOptions {
	return s.opts
}

// advance integrates every state in place over dt.
func (s *Smoother) advance(states []faceState, dt time.Duration) {
	if dt > s.opts.MaxTickDelta {
		dt = s.opts.MaxTickDelta
	}
	sec := dt.Seconds()

	for i := range states {
		st := &states[i]
		for k := scalar(0); k < numScalars; k++ {
			x, v := s.opts.Spring.Step(st.current[k], st.velocity[k], st.target[k], sec)
			if math.Abs(x-st.target[k]) < s.opts.SettleEpsilon && math.Abs(v) < s.opts.SettleEpsilon {
				x, v = st.target[k], 0
			}
			st.current[k], st.velocity[k] = x, v
		}

		// Under-damped tuning can swing past the ends of the valid ranges.
		st.current[sWidth] = math.Max(st.current[sWidth], 0)
		st.current[sHeight] = math.Max(st.current[sHeight], 0)
		st.current[sOpacity] = clamp(st.current[sOpacity], 0, 1)
		st.settledAtZero = st.target[sOpacity] == 0 && st.current[sOpacity] <= s.opts.OpacityFloor
	}
}
