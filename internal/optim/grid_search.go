// Package optim tunes controller gains by exhaustive search over a grid of
// candidate values, running every candidate as an independent simulation.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/stride/internal/config"
	"github.com/san-kum/stride/internal/scenario"
	"github.com/san-kum/stride/internal/sim"
)

var ErrUnknownParam = errors.New("optim: unknown parameter")

// Params are the tunable knobs, by name.
var Params = map[string]func(*config.Config, float64){
	"icp_gain":      func(c *config.Config, v float64) { c.Controller.ICP.Gain = v },
	"icp_max_shift": func(c *config.Config, v float64) { c.Controller.ICP.MaxShift = v },
	"com_weight":    func(c *config.Config, v float64) { c.Controller.CoMWeight = v },
	"pelvis_kp":     func(c *config.Config, v float64) { c.Controller.Pelvis.Kp = v },
	"pelvis_kd":     func(c *config.Config, v float64) { c.Controller.Pelvis.Kd = v },
	"swing_kp":      func(c *config.Config, v float64) { c.Controller.Foot.Swing.Kp = v },
	"swing_kd":      func(c *config.Config, v float64) { c.Controller.Foot.Swing.Kd = v },
	"vrp_weight":    func(c *config.Config, v float64) { c.Controller.MPC.VRPTrackingWeight = v },
	"rho_weight":    func(c *config.Config, v float64) { c.Controller.MPC.RhoWeight = v },
}

func ParamNames() []string {
	names := make([]string, 0, len(Params))
	for name := range Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Objective names the run metric to optimize.
type Objective struct {
	Metric   string
	Maximize bool
}

func (o Objective) score(metrics map[string]float64) float64 {
	v, ok := metrics[o.Metric]
	if !ok || math.IsNaN(v) {
		return math.Inf(1)
	}
	if o.Maximize {
		return -v
	}
	return v
}

type Trial struct {
	Params  map[string]float64
	Metrics map[string]float64
	Score   float64
	Err     error
}

// Value is the objective metric of the trial, or NaN when it failed.
func (t Trial) Value(o Objective) float64 {
	if t.Err != nil {
		return math.NaN()
	}
	return t.Metrics[o.Metric]
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64, workers int) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters but %d ranges", len(params), len(ranges))
	}
	for i, p := range params {
		if _, ok := Params[p]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParam, p)
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", p)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: workers}, nil
}

// Candidates enumerates the grid in row-major order.
func (g *GridSearch) Candidates() []map[string]float64 {
	var out []map[string]float64
	g.enumerate(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[g.paramNames[depth]] = val
		g.enumerate(depth+1, next, out)
	}
}

// Search runs every candidate of the grid against sc, starting from base,
// and returns the trials best first. Failed candidates sort last.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, sc *scenario.Scenario, obj Objective) ([]Trial, error) {
	probe, err := scenario.Build(base, sc, scenario.Options{})
	if err != nil {
		return nil, err
	}
	candidates := g.Candidates()
	harnesses := make([]*scenario.Harness, len(candidates))
	jobs := make([]sim.Job, len(candidates))
	for i, params := range candidates {
		cfg := *base
		for name, v := range params {
			Params[name](&cfg, v)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("optim: candidate %v: %w", params, err)
		}
		jobs[i] = sim.Job{
			Name: fmt.Sprint(params),
			Build: func() (*sim.Simulator, sim.State, error) {
				h, err := scenario.Build(&cfg, sc, scenario.Options{})
				if err != nil {
					return nil, nil, err
				}
				harnesses[i] = h
				return h.Simulator, h.X0, nil
			},
			Config: probe.SimConfig,
		}
	}
	results := sim.RunBatch(ctx, jobs, g.workers)
	trials := make([]Trial, len(results))
	for i, r := range results {
		t := Trial{Params: candidates[i], Err: r.Err, Score: math.Inf(1)}
		if harnesses[i] != nil {
			t.Metrics = harnesses[i].Metrics()
		}
		if t.Err == nil {
			t.Score = obj.score(t.Metrics)
		}
		trials[i] = t
	}
	sort.SliceStable(trials, func(i, j int) bool { return trials[i].Score < trials[j].Score })
	if err := ctx.Err(); err != nil {
		return trials, err
	}
	return trials, nil
}
