package sim

import (
	"context"
	"errors"
	"math"
	"testing"
)

type testDynamics struct{}

func (t *testDynamics) Derivative(x State, u Control, time float64) State {
	return State{-x[0]}
}

func (t *testDynamics) StateDim() int   { return 1 }
func (t *testDynamics) ControlDim() int { return 0 }

type testIntegrator struct{}

func (t *testIntegrator) Step(dyn Dynamics, x State, u Control, time float64, dt float64) State {
	dx := dyn.Derivative(x, u, time)
	return State{x[0] + dt*dx[0]}
}

type testController struct {
	failAt float64
}

var errTest = errors.New("controller gave up")

func (t *testController) Compute(_ context.Context, x State, time float64) (Control, error) {
	if t.failAt > 0 && time >= t.failAt {
		return nil, errTest
	}
	return Control{}, nil
}

type countingObserver struct{ steps int }

func (o *countingObserver) OnStep(State, Control, float64) { o.steps++ }

func TestSimulatorRun(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})
	obs := &countingObserver{}
	sim.AddObserver(obs)

	cfg := Config{
		Dt:       0.1,
		Duration: 1.0,
	}

	x0 := State{1.0}
	result, err := sim.Run(context.Background(), x0, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}

	if len(result.Times) != 11 {
		t.Errorf("expected 11 times, got %d", len(result.Times))
	}
	if obs.steps != 10 {
		t.Errorf("expected 10 observed steps, got %d", obs.steps)
	}

	finalState := result.States[len(result.States)-1][0]
	expected := 1.0 * math.Exp(-1.0)
	if math.Abs(finalState-expected) > 0.2 {
		t.Errorf("expected final state ~%.4f, got %.4f", expected, finalState)
	}
}

func TestSimulatorRecordEvery(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})
	result, err := sim.Run(context.Background(), State{1}, Config{Dt: 0.1, Duration: 1.0, RecordEvery: 5})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.States) != 3 || result.StepsTaken != 10 {
		t.Errorf("expected 3 states over 10 steps, got %d over %d", len(result.States), result.StepsTaken)
	}
}

func TestSimulatorControllerError(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{failAt: 0.45})
	result, err := sim.Run(context.Background(), State{1}, Config{Dt: 0.1, Duration: 1.0})
	if !errors.Is(err, errTest) {
		t.Fatalf("expected controller error, got %v", err)
	}
	var se SimError
	if !errors.As(err, &se) || se.Step != 5 {
		t.Errorf("expected failure at step 5, got %v", err)
	}
	if result.StepsTaken != 5 {
		t.Errorf("expected 5 steps before the failure, got %d", result.StepsTaken)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, Duration: 1.0}},
		{"negative dt", Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", Config{Dt: 0.1, Duration: 0}},
		{"negative duration", Config{Dt: 0.1, Duration: -1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x0 := State{1.0}
			_, err := sim.Run(context.Background(), x0, tt.cfg)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRunWithCallbackStops(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, &testController{})
	calls := 0
	err := sim.RunWithCallback(context.Background(), State{1}, Config{Dt: 0.1, Duration: 1.0}, func(State, Control, float64) bool {
		calls++
		return calls < 3
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("expected 3 callbacks, got %d", calls)
	}
}

func TestRunBatch(t *testing.T) {
	build := func(failAt float64) func() (*Simulator, State, error) {
		return func() (*Simulator, State, error) {
			return New(&testDynamics{}, &testIntegrator{}, &testController{failAt: failAt}), State{1}, nil
		}
	}
	jobs := []Job{
		{Name: "ok", Build: build(0), Config: Config{Dt: 0.1, Duration: 1}},
		{Name: "fails", Build: build(0.25), Config: Config{Dt: 0.1, Duration: 1}},
		{Name: "broken", Build: func() (*Simulator, State, error) { return nil, nil, errTest }},
	}
	results := RunBatch(context.Background(), jobs, 2)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Name != "ok" || results[0].Err != nil || results[0].Result.StepsTaken != 10 {
		t.Errorf("unexpected ok result: %+v", results[0])
	}
	if !errors.Is(results[1].Err, errTest) {
		t.Errorf("expected controller failure, got %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, errTest) || results[2].Result != nil {
		t.Errorf("expected build failure, got %+v", results[2])
	}
}
