package overlay

import (
	"fmt"
	"math"
)

// Spring is a unit-mass damped harmonic oscillator pulling a value toward
// its target.
type Spring struct {
	Stiffness float64
	Damping   float64
}

// DefaultSpring is critically damped and settles within roughly 0.4s.
func DefaultSpring() Spring {
	const k = 300
	return Spring{Stiffness: k, Damping: 2 * math.Sqrt(k)}
}

// Validate checks that the spring converges.
func (s Spring) Validate() error {
	if !(s.Stiffness > 0) || math.IsInf(s.Stiffness, 0) {
		return fmt.Errorf("spring stiffness must be positive, got %v", s.Stiffness)
	}
	if !(s.Damping > 0) || math.IsInf(s.Damping, 0) {
		return fmt.Errorf("spring damping must be positive, got %v", s.Damping)
	}
	return nil
}

// DampingRatio is 1 for a critically damped spring, below 1 when it
// oscillates and above 1 when it creeps.
func (s Spring) DampingRatio() float64 {
	return s.Damping / (2 * math.Sqrt(s.Stiffness))
}

// criticalBand treats ratios this close to 1 as critically damped; the
// under/over-damped closed forms lose precision near that point.
const criticalBand = 1e-6

// Step advances position x with velocity v toward target over dt seconds
// using the closed-form solution, so it is exact for any dt.
func (s Spring) Step(x, v, target, dt float64) (float64, float64) {
	if dt <= 0 {
		return x, v
	}

	x0 := x - target
	w0 := math.Sqrt(s.Stiffness)
	zeta := s.DampingRatio()

	var xt, vt float64
	switch {
	case math.Abs(zeta-1) < criticalBand:
		e := math.Exp(-w0 * dt)
		c := v + w0*x0
		xt = (x0 + c*dt) * e
		vt = (v - w0*c*dt) * e

	case zeta < 1:
		a := zeta * w0
		wd := w0 * math.Sqrt(1-zeta*zeta)
		e := math.Exp(-a * dt)
		cos, sin := math.Cos(wd*dt), math.Sin(wd*dt)
		xt = e * (x0*cos + (v+a*x0)/wd*sin)
		vt = e * (v*cos - (a*v+w0*w0*x0)/wd*sin)

	default:
		root := w0 * math.Sqrt(zeta*zeta-1)
		r1 := -zeta*w0 + root
		r2 := -zeta*w0 - root
		c1 := (v - r2*x0) / (r1 - r2)
		c2 := x0 - c1
		e1, e2 := math.Exp(r1*dt), math.Exp(r2*dt)
		xt = c1*e1 + c2*e2
		vt = r1*c1*e1 + r2*c2*e2
	}

	return target + xt, vt
}
