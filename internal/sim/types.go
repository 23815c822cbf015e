package sim

import (
	"context"
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Control is the commanded generalized acceleration of the plant.
type Control []float64

type Dynamics interface {
	Derivative(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn Dynamics, x State, u Control, t float64, dt float64) State
}

// Controller closes the loop once per tick. A returned error stops the run.
type Controller interface {
	Compute(ctx context.Context, x State, t float64) (Control, error)
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

type Config struct {
	Dt            float64 `yaml:"dt"`
	Duration      float64 `yaml:"duration"`
	ValidateState bool    `yaml:"validate_state"`
	RecordEvery   int     `yaml:"record_every"`
}

type Result struct {
	States     []State
	Controls   []Control
	Times      []float64
	StepsTaken int
}

// SimError stops a run at one step.
type SimError struct {
	Time    float64
	Step    int
	Message string
	Err     error
}

func (e SimError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %d (t=%.4f): %s: %v", e.Step, e.Time, e.Message, e.Err)
	}
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}

func (e SimError) Unwrap() error { return e.Err }
