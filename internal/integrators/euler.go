package integrators

import "github.com/san-kum/stride/internal/sim"

// Euler is semi-implicit when the state is [q, v] and the derivative is
// [v, u]: the position update uses the new velocity.
type Euler struct {
	SemiImplicit bool
}

func NewEuler() *Euler {
	return &Euler{}
}

// NewSemiImplicitEuler is the default plant integrator of the walking
// scenarios.
func NewSemiImplicitEuler() *Euler {
	return &Euler{SemiImplicit: true}
}

func (e *Euler) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t float64, dt float64) sim.State {
	dx := dyn.Derivative(x, u, t)
	result := make(sim.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	if e.SemiImplicit && len(x)%2 == 0 {
		n := len(x) / 2
		for i := 0; i < n; i++ {
			result[i] = x[i] + dt*result[n+i]
		}
	}
	return result
}
