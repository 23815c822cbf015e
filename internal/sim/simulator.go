package sim

import (
	"context"
	"fmt"
)

type Simulator struct {
	dyn        Dynamics
	integrator Integrator
	controller Controller
	observers  []Observer
}

func New(dyn Dynamics, integrator Integrator, controller Controller) *Simulator {
	return &Simulator{
		dyn:        dyn,
		integrator: integrator,
		controller: controller,
		observers:  make([]Observer, 0),
	}
}

func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run integrates the closed loop from x0. The partial result is returned
// with any error that stopped the run.
func (s *Simulator) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	every := max(cfg.RecordEvery, 1)

	steps := int(cfg.Duration/cfg.Dt + 0.5)
	result := &Result{
		States:   make([]State, 0, steps/every+1),
		Controls: make([]Control, 0, steps/every),
		Times:    make([]float64, 0, steps/every+1),
	}

	x := x0.Clone()
	t := 0.0
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		u, err := s.controller.Compute(ctx, x, t)
		if err != nil {
			return result, SimError{Time: t, Step: i, Message: "controller", Err: err}
		}
		for _, obs := range s.observers {
			obs.OnStep(x, u, t)
		}

		x = s.integrator.Step(s.dyn, x, u, t, cfg.Dt)
		t += cfg.Dt
		result.StepsTaken++

		if cfg.ValidateState && !x.IsValid() {
			return result, SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"}
		}
		if (i+1)%every == 0 {
			result.States = append(result.States, x.Clone())
			result.Controls = append(result.Controls, u)
			result.Times = append(result.Times, t)
		}
	}
	return result, nil
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	return nil
}

// RunWithCallback steps the loop without recording until the callback
// returns false or the duration ends.
func (s *Simulator) RunWithCallback(ctx context.Context, x0 State, cfg Config, callback func(State, Control, float64) bool) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	x := x0.Clone()
	t := 0.0

	for step := 0; t < cfg.Duration; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		u, err := s.controller.Compute(ctx, x, t)
		if err != nil {
			return SimError{Time: t, Step: step, Message: "controller", Err: err}
		}

		if !callback(x, u, t) {
			return nil
		}

		x = s.integrator.Step(s.dyn, x, u, t, cfg.Dt)
		t += cfg.Dt

		if cfg.ValidateState && !x.IsValid() {
			return fmt.Errorf("invalid state at t=%.4f", t)
		}
	}

	return nil
}
