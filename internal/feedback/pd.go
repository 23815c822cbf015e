package feedback

import "github.com/golang/geo/r3"

// Reference is a desired point trajectory sample.
type Reference struct {
	Position     r3.Vector
	Velocity     r3.Vector
	Acceleration r3.Vector
}

// Measured is the observed point state.
type Measured struct {
	Position r3.Vector
	Velocity r3.Vector
}

type PD struct {
	Kp float64 `yaml:"kp"`
	Kd float64 `yaml:"kd"`
}

// Acceleration is ref.Acceleration + Kp·(p* − p) + Kd·(v* − v).
func (g PD) Acceleration(ref Reference, m Measured) r3.Vector {
	return ref.Acceleration.
		Add(ref.Position.Sub(m.Position).Mul(g.Kp)).
		Add(ref.Velocity.Sub(m.Velocity).Mul(g.Kd))
}

// Angular is the PD law on a small orientation error expressed as a
// rotation vector, with zero desired rate and feedforward.
func (g PD) Angular(errorVector, rate r3.Vector) r3.Vector {
	return errorVector.Mul(g.Kp).Sub(rate.Mul(g.Kd))
}
