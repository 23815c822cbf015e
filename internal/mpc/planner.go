// Package mpc plans the centroidal motion over the contact sequence. Each
// segment carries a cubic CoM trajectory and affine contact basis
// magnitudes; the planner picks them in one QP so the CoM obeys the
// centroidal dynamics and its VRP follows the eCMP reference.
package mpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/golang/geo/r3"
	"github.com/san-kum/stride/internal/command"
	"github.com/san-kum/stride/internal/index"
	"github.com/san-kum/stride/internal/plan"
	"github.com/san-kum/stride/internal/qp"
	"go.uber.org/zap"
)

var (
	ErrEqualityViolation = errors.New("mpc: solution violates an equality constraint")
	ErrInitialTime       = errors.New("mpc: initial time outside the first segment")
)

// Output is one solved plan. It is immutable once published. Rho holds the
// affine basis coefficients of every segment, a then b per basis vector.
type Output struct {
	Segments   []plan.Segment
	Rho        [][]float64
	Omega      float64
	Mass       float64
	Gravity    float64
	Height     float64
	Commands   []command.Command
	Iterations int
	Cost       float64
	Report     qp.Report
	PlannedAt  float64
}

// Sample is the planned centroidal state at one instant.
type Sample struct {
	Segment         int
	CoM             r3.Vector
	CoMVelocity     r3.Vector
	CoMAcceleration r3.Vector
	ICP             r3.Vector
	VRP             r3.Vector
	ECMP            r3.Vector
	NetForce        r3.Vector
}

func (o *Output) locate(t float64) (int, float64) {
	for i := range o.Segments {
		s := &o.Segments[i]
		if t < s.End || i == len(o.Segments)-1 {
			local := t - s.Start
			if local < 0 {
				local = 0
			}
			if d := s.Duration(); local > d {
				local = d
			}
			return i, local
		}
	}
	return 0, 0
}

// Sample evaluates the plan at absolute time t, clamped to the horizon.
func (o *Output) Sample(t float64) Sample {
	i, local := o.locate(t)
	s := &o.Segments[i]
	x := s.CoM.Position(local)
	v := s.CoM.Velocity(local)
	a := s.CoM.Acceleration(local)
	w2 := o.Omega * o.Omega
	return Sample{
		Segment:         i,
		CoM:             x,
		CoMVelocity:     v,
		CoMAcceleration: a,
		ICP:             x.Add(v.Mul(1 / o.Omega)),
		VRP:             x.Sub(a.Mul(1 / w2)),
		ECMP:            s.ECMP(local),
		NetForce:        a.Add(r3.Vector{Z: o.Gravity}).Mul(o.Mass),
	}
}

// RhoAt returns the basis magnitudes of the segment active at t.
func (o *Output) RhoAt(t float64) []float64 {
	i, local := o.locate(t)
	c := o.Rho[i]
	out := make([]float64, len(c)/2)
	for j := range out {
		out[j] = c[2*j] + c[2*j+1]*local
	}
	return out
}

// Planner owns the QP workspace. Plan is called from the control thread
// only; Latest may be called from anywhere.
type Planner struct {
	cfg     Config
	solver  qp.Solver
	ws      *qp.Workspace
	builder *index.Builder
	list    *command.List
	asm     *assembler
	latest  atomic.Pointer[Output]
	logger  *zap.Logger
}

func NewPlanner(cfg Config, solver qp.Solver, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if solver == nil {
		solver = qp.NewActiveSet(cfg.Solver)
	}
	return &Planner{
		cfg:     cfg,
		solver:  solver,
		ws:      qp.NewWorkspace(cfg.maxVariables(), cfg.maxEqualities(), cfg.maxInequalities()),
		builder: index.NewBuilder(2 * cfg.MaxSegments),
		list:    command.NewList(16 * cfg.MaxSegments),
		asm:     newAssembler(cfg),
		logger:  logger.Named("mpc"),
	}
}

func (p *Planner) Config() Config { return p.cfg }

// Latest returns the most recently published plan, or nil before the first
// successful Plan.
func (p *Planner) Latest() *Output { return p.latest.Load() }

// ShouldReplan reports whether tick falls on the replanning period.
func (p *Planner) ShouldReplan(tick uint64) bool {
	if p.cfg.ReplanEvery <= 1 {
		return true
	}
	return tick%uint64(p.cfg.ReplanEvery) == 0
}

func vec(v r3.Vector) []float64 { return []float64{v.X, v.Y, v.Z} }

// commands fills the planner's command list for segs starting at local
// time t0 of the first segment.
func (p *Planner) commands(segs []plan.Segment, com, comVel r3.Vector, t0 float64) {
	cfg := p.cfg
	l := p.list
	l.Reset()
	lift := r3.Vector{Z: cfg.NominalHeight}

	l.Add(command.NewValue(command.CoMPosition, 0, t0, vec(com), cfg.InitialCoMWeight))
	l.Add(command.NewValue(command.CoMVelocity, 0, t0, vec(comVel), cfg.InitialCoMWeight))

	for s := range segs {
		seg := &segs[s]
		T := seg.Duration()
		if seg.LoadBearing() && cfg.VRPTrackingWeight > 0 {
			l.Add(command.NewVRPTracking(s, vec(seg.StartECMP.Add(lift)), vec(seg.EndECMP.Add(lift)), cfg.VRPTrackingWeight))
		}
		for _, t := range []float64{0, T} {
			l.Add(command.NewRhoBound(s, t, cfg.MinRho, command.GreaterOrEqual))
			if cfg.MaxNormalForce > 0 {
				for ci := range seg.Contacts {
					c := command.NewRhoBound(s, t, cfg.MaxNormalForce/cfg.Mass, command.LessOrEqual)
					c.Target = seg.Contacts[ci].Body
					l.Add(c)
				}
			}
			if cfg.RhoWeight > 0 {
				l.Add(command.NewRhoValue(s, t, cfg.RhoWeight))
			}
			if cfg.OrientationWeight > 0 && seg.LoadBearing() {
				l.Add(command.NewOrientationValue(s, t, []float64{0, 0, 0}, cfg.OrientationWeight))
			}
		}
		if s+1 == len(segs) {
			continue
		}
		for _, q := range []struct {
			quantity command.Quantity
			weight   float64
		}{
			{command.CoMPosition, cfg.PositionContinuity},
			{command.CoMVelocity, cfg.VelocityContinuity},
			{command.CoMAcceleration, cfg.AccelerationContinuity},
		} {
			if q.weight > 0 {
				l.Add(command.NewContinuity(q.quantity, s, q.weight))
			}
		}
		if cfg.VRPContinuity > 0 && seg.LoadBearing() && segs[s+1].LoadBearing() {
			l.Add(command.NewContinuity(command.VRP, s, cfg.VRPContinuity))
		}
	}

	last := len(segs) - 1
	T := segs[last].Duration()
	final := segs[last].EndECMP.Add(lift)
	if cfg.FinalCoMWeight > 0 {
		l.Add(command.NewValue(command.CoMPosition, last, T, vec(final), cfg.FinalCoMWeight))
		l.Add(command.NewValue(command.CoMVelocity, last, T, []float64{0, 0, 0}, cfg.FinalCoMWeight))
	}
	if cfg.TerminalICPWeight > 0 {
		l.Add(command.NewValue(command.ICP, last, T, vec(final), cfg.TerminalICPWeight))
	}
}

// Plan solves for the CoM trajectory over segments from the measured CoM
// state at local time t0 of the first segment, and publishes the result.
// Segments are copied; the caller keeps ownership of its slice.
func (p *Planner) Plan(ctx context.Context, segments []plan.Segment, com, comVel r3.Vector, t0 float64) (*Output, error) {
	if err := plan.Validate(segments); err != nil {
		return nil, err
	}
	if d := segments[0].Duration(); t0 < 0 || t0 > d {
		return nil, fmt.Errorf("%w: t0=%.4f, duration %.4f", ErrInitialTime, t0, d)
	}
	if len(segments) > p.cfg.MaxSegments {
		return nil, fmt.Errorf("%d segments, limit %d: %w", len(segments), p.cfg.MaxSegments, qp.ErrCapacity)
	}
	segs := append([]plan.Segment(nil), segments...)

	a := p.asm
	if err := a.layout(p.builder, segs); err != nil {
		return nil, err
	}
	prob, err := p.ws.Reset(a.idx.Total())
	if err != nil {
		return nil, err
	}
	p.commands(segs, com, comVel, t0)

	a.p, a.x = prob, nil
	if err := a.table.Apply(p.list); err != nil {
		return nil, err
	}
	for s := range segs {
		if err := a.dynamics(s); err != nil {
			return nil, err
		}
	}
	if p.cfg.CoefficientWeight > 0 {
		for i := 0; i < prob.N; i++ {
			prob.AddDiagonal(i, p.cfg.CoefficientWeight)
		}
	}

	sol, err := p.solver.Solve(ctx, prob)
	if err != nil {
		return nil, fmt.Errorf("mpc solve: %w", err)
	}
	report, err := qp.Inspect(prob, sol.X, p.cfg.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEqualityViolation, err)
	}
	if len(report.Inequalities) > 0 {
		p.logger.Warn("inequality constraints violated",
			zap.Int("rows", len(report.Inequalities)),
			zap.Float64("max_residual", report.MaxInequalityResidual),
			zap.String("first", report.Inequalities[0].Tag))
	}

	rho := make([][]float64, len(segs))
	for s := range segs {
		start := a.comStart(s)
		segs[s].CoM.SetFromVector(sol.X[start : start+12])
		r, _ := a.idx.Range(index.SegmentRho, segmentName(s))
		rho[s] = append([]float64(nil), sol.X[r.Start:r.End()]...)
	}
	if err := plan.CheckContinuity(segs, p.cfg.Tolerance); err != nil {
		return nil, err
	}

	out := &Output{
		Segments:   segs,
		Rho:        rho,
		Omega:      a.omega,
		Mass:       p.cfg.Mass,
		Gravity:    p.cfg.Gravity,
		Height:     p.cfg.NominalHeight,
		Iterations: sol.Iterations,
		Cost:       sol.Cost,
		Report:     report,
		PlannedAt:  segs[0].Start + t0,
	}
	out.Commands, err = p.costToGo(sol.X)
	if err != nil {
		return nil, err
	}
	p.latest.Store(out)
	p.logger.Debug("plan published",
		zap.Int("segments", len(segs)),
		zap.Int("variables", prob.N),
		zap.Int("iterations", sol.Iterations),
		zap.Float64("cost", sol.Cost))
	return out, nil
}

// costToGo evaluates each soft command at x and returns a copy of the list
// with CostToGo filled in.
func (p *Planner) costToGo(x []float64) ([]command.Command, error) {
	a := p.asm
	a.p, a.x = nil, x
	defer func() { a.x = nil }()
	out := append([]command.Command(nil), p.list.Commands()...)
	for i := range out {
		c := &out[i]
		a.cost = 0
		if err := a.table[c.Kind](c); err != nil {
			return nil, err
		}
		c.CostToGo = a.cost
	}
	return out, nil
}
