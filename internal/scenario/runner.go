package scenario

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/stride/internal/config"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/integrators"
	"github.com/san-kum/stride/internal/metrics"
	"github.com/san-kum/stride/internal/models"
	"github.com/san-kum/stride/internal/sim"
	"github.com/san-kum/stride/internal/walking"
	"go.uber.org/zap"
)

// ICPErrorThreshold is the ICP error above which a tick counts as unstable.
const ICPErrorThreshold = 0.05

type Options struct {
	Logger     *zap.Logger
	Registry   prometheus.Registerer
	Supervisor walking.Supervisor
	OnTick     func(walking.TickResult)
}

// Harness is one fully wired run: a biped plant, its walking controller
// closed around it and a simulator ready to start from X0.
type Harness struct {
	Scenario   *Scenario
	Robot      *models.CartesianBiped
	Controller *walking.Controller
	Loop       *walking.Loop
	Integrator sim.Integrator
	Simulator  *sim.Simulator
	X0         sim.State
	SimConfig  sim.Config

	recordEvery int
	metrics     []metrics.Metric
	ticks       []walking.TickResult
	seen        int
}

type Outcome struct {
	Scenario string
	Result   *sim.Result
	Ticks    []walking.TickResult
	Metrics  map[string]float64
}

func Build(cfg *config.Config, sc *Scenario, opts Options) (*Harness, error) {
	integ, ok := integrators.ByName(cfg.Integrator)
	if !ok {
		return nil, fmt.Errorf("scenario: unknown integrator %q", cfg.Integrator)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	robot := models.NewCartesianBiped(cfg.Robot)
	var feet [2]contact.Plane
	for _, s := range contact.Sides {
		feet[s] = robot.ContactPlane(s, cfg.Friction, cfg.BasisPerPoint)
	}
	steps, err := sc.Footsteps(feet)
	if err != nil {
		return nil, err
	}

	ctrl := walking.NewController(cfg.Controller, robot, robot.Limits(), feet, walking.Deps{
		Supervisor: opts.Supervisor,
		Logger:     logger.With(zap.String("scenario", sc.Name)),
		Registry:   opts.Registry,
	})
	loop := walking.NewLoop(ctrl, robot, cfg.ContactHeight)

	h := &Harness{
		Scenario:    sc,
		Robot:       robot,
		Controller:  ctrl,
		Loop:        loop,
		Integrator:  integ,
		Simulator:   sim.New(robot, integ, loop),
		X0:          robot.Standing(),
		recordEvery: max(cfg.RecordEvery, 1),
		metrics:     metrics.Standard(ICPErrorThreshold),
	}
	h.SimConfig = sim.Config{
		Dt:            cfg.Controller.Dt,
		Duration:      sc.NominalDuration(cfg.Controller.Generator.FinalTransferDuration),
		ValidateState: true,
		RecordEvery:   h.recordEvery,
	}
	if sc.Duration <= 0 && len(sc.Steps) == 0 {
		h.SimConfig.Duration = cfg.Duration
	}

	loop.OnTick(h.observe)
	if opts.OnTick != nil {
		loop.OnTick(opts.OnTick)
	}
	if len(steps) > 0 {
		loop.Walk(steps)
	}
	return h, nil
}

func (h *Harness) observe(res walking.TickResult) {
	rec := metrics.Record{
		Time:          res.Time,
		ICPError:      res.ICPError,
		Torques:       res.WBC.Torques,
		Solved:        res.WBC.Solved,
		LateTouchdown: res.Late,
		Iterations:    res.WBC.Iterations,
	}
	for _, m := range h.metrics {
		m.Observe(rec)
	}
	if h.seen%h.recordEvery == 0 {
		h.ticks = append(h.ticks, res)
	}
	h.seen++
}

func (h *Harness) Metrics() map[string]float64 {
	out := make(map[string]float64, len(h.metrics))
	for _, m := range h.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// Ticks returns every recorded tick result, one per RecordEvery ticks.
func (h *Harness) Ticks() []walking.TickResult { return h.ticks }

// Step advances x by one control period outside the simulator, for callers
// that drive the loop themselves.
func (h *Harness) Step(ctx context.Context, x sim.State, t float64) (sim.State, error) {
	u, err := h.Loop.Compute(ctx, x, t)
	if err != nil {
		return x, err
	}
	return h.Integrator.Step(h.Robot, x, u, t, h.SimConfig.Dt), nil
}

// Run simulates the harness once. On failure the partial outcome is
// returned with the error.
func (h *Harness) Run(ctx context.Context) (*Outcome, error) {
	res, err := h.Simulator.Run(ctx, h.X0, h.SimConfig)
	return &Outcome{
		Scenario: h.Scenario.Name,
		Result:   res,
		Ticks:    h.ticks,
		Metrics:  h.Metrics(),
	}, err
}

func Run(ctx context.Context, cfg *config.Config, sc *Scenario, opts Options) (*Outcome, error) {
	h, err := Build(cfg, sc, opts)
	if err != nil {
		return nil, err
	}
	return h.Run(ctx)
}
