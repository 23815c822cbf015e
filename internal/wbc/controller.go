// Package wbc turns the tick's command list into joint torques with one
// quadratic program over joint accelerations and contact basis magnitudes.
package wbc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/san-kum/stride/internal/command"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/dynamics"
	"github.com/san-kum/stride/internal/index"
	"github.com/san-kum/stride/internal/qp"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrControllerFailure       = errors.New("wbc: controller failure")
	ErrHardConstraintViolation = errors.New("wbc: hard constraint violated")
	ErrBadCommand              = errors.New("wbc: malformed command")
)

const floatingBase = "floating_base"

// SolveError is a non-fatal solve failure on one tick.
type SolveError struct {
	Tick    uint64
	Wrapped error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("wbc: tick %d: %v", e.Tick, e.Wrapped)
}

func (e *SolveError) Unwrap() error { return e.Wrapped }

// Output is the result of one tick. Torques cover the actuated joints only.
// Err holds the solve failure behind an unsolved output.
type Output struct {
	Solved            bool
	Torques           []float64
	Accelerations     []float64
	Rho               []float64
	ContactForces     map[string]r3.Vector
	CentersOfPressure map[string]r2.Point
	Iterations        int
	Err               error
}

func (o Output) clone() Output {
	c := o
	c.Torques = append([]float64(nil), o.Torques...)
	c.Accelerations = append([]float64(nil), o.Accelerations...)
	c.Rho = append([]float64(nil), o.Rho...)
	c.ContactForces = make(map[string]r3.Vector, len(o.ContactForces))
	for k, v := range o.ContactForces {
		c.ContactForces[k] = v
	}
	c.CentersOfPressure = make(map[string]r2.Point, len(o.CentersOfPressure))
	for k, v := range o.CentersOfPressure {
		c.CentersOfPressure[k] = v
	}
	return c
}

// rhoColumn is one basis vector at one contact point. gen is Jᵀβ, the
// generalized force of a unit magnitude.
type rhoColumn struct {
	body  string
	point r3.Vector
	basis r3.Vector
	gen   []float64
}

// Controller is owned by the control thread.
type Controller struct {
	cfg    Config
	model  dynamics.Model
	limits dynamics.Limits
	solver qp.Solver
	ws     *qp.Workspace
	logger *zap.Logger

	nv      int
	builder *index.Builder
	idx     *index.Handler
	mass    *mat.Dense
	bias    []float64
	jac     *mat.Dense
	point   *mat.Dense
	com     *mat.Dense
	rhos    []rhoColumn
	gen     []float64
	moments map[string]r2.Point
	row     []float64
	prob    *qp.Problem
	table   command.Table

	tick     uint64
	last     *Output
	failures int
	raised   bool
}

func NewController(cfg Config, model dynamics.Model, limits dynamics.Limits, solver qp.Solver, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if solver == nil {
		solver = qp.NewActiveSet(cfg.Solver)
	}
	nv := model.NumDoF()
	nj := len(model.Joints())
	c := &Controller{
		cfg:     cfg,
		model:   model,
		limits:  limits,
		solver:  solver,
		ws:      qp.NewWorkspace(nv+cfg.MaxRho, dynamics.FloatingBaseDoF+cfg.MaxHardRows, 4*nj+cfg.MaxRho+cfg.MaxHardRows),
		logger:  logger.Named("wbc"),
		nv:      nv,
		builder: index.NewBuilder(nj + 3),
		mass:    mat.NewDense(nv, nv, nil),
		bias:    make([]float64, nv),
		jac:     mat.NewDense(6, nv, nil),
		point:   mat.NewDense(3, nv, nil),
		com:     mat.NewDense(3, nv, nil),
		rhos:    make([]rhoColumn, 0, cfg.MaxRho),
		gen:     make([]float64, cfg.MaxRho*nv),
		moments: make(map[string]r2.Point, 2),
	}
	c.table.Register(command.JointAcceleration, c.jointAcceleration)
	c.table.Register(command.SpatialAcceleration, c.spatialAcceleration)
	c.table.Register(command.CenterOfMass, c.centerOfMass)
	c.table.Register(command.ContactForce, c.contactForce)
	return c
}

func (c *Controller) Config() Config { return c.cfg }

// Failures is the number of consecutive failed ticks.
func (c *Controller) Failures() int { return c.failures }

// Compute solves one tick. The model must already hold the measured state.
// A failed solve returns the last good output with Solved false and a nil
// error; the returned error is fatal and reported once per failure streak.
func (c *Controller) Compute(ctx context.Context, commands *command.List, contacts []contact.Plane) (Output, error) {
	c.tick++
	if err := c.assemble(commands, contacts); err != nil {
		return c.fail(err)
	}
	sol, err := c.solver.Solve(ctx, c.prob)
	if err != nil {
		return c.fail(err)
	}

	rep, err := qp.Inspect(c.prob, sol.X, c.cfg.Tolerance)
	if len(rep.Inequalities) > 0 {
		c.logger.Warn("inequality constraints violated",
			zap.Uint64("tick", c.tick),
			zap.Int("rows", len(rep.Inequalities)),
			zap.Float64("max_residual", rep.MaxInequalityResidual),
			zap.String("first", rep.Inequalities[0].Tag))
	}
	if err != nil {
		out := c.hold()
		out.Err = &SolveError{Tick: c.tick, Wrapped: err}
		c.logger.Error("solution violates equality constraints",
			zap.Uint64("tick", c.tick),
			zap.Float64("max_equality_residual", rep.MaxEqualityResidual),
			zap.Float64("max_inequality_residual", rep.MaxInequalityResidual),
			zap.Error(err))
		return out, fmt.Errorf("%w: %w: %w", ErrControllerFailure, ErrHardConstraintViolation, err)
	}

	out := c.extract(sol)
	c.last = &out
	if c.failures > 0 {
		c.logger.Info("solve recovered", zap.Uint64("tick", c.tick), zap.Int("after", c.failures))
	}
	c.failures = 0
	c.raised = false
	return out.clone(), nil
}

func (c *Controller) hold() Output {
	if c.last != nil {
		out := c.last.clone()
		out.Solved = false
		return out
	}
	return Output{
		Torques:           make([]float64, c.nv-dynamics.FloatingBaseDoF),
		Accelerations:     make([]float64, c.nv),
		ContactForces:     map[string]r3.Vector{},
		CentersOfPressure: map[string]r2.Point{},
	}
}

func (c *Controller) fail(err error) (Output, error) {
	c.failures++
	out := c.hold()
	out.Err = &SolveError{Tick: c.tick, Wrapped: err}
	c.logger.Warn("solve failed, holding last output",
		zap.Uint64("tick", c.tick),
		zap.Int("consecutive", c.failures),
		zap.Error(err))
	if c.failures >= c.cfg.MaxConsecutiveFailures && !c.raised {
		c.raised = true
		c.logger.Error("consecutive solve failures", zap.Int("failures", c.failures))
		return out, fmt.Errorf("%w after %d consecutive failures: %w", ErrControllerFailure, c.failures, out.Err)
	}
	return out, nil
}

func (c *Controller) layout(contacts []contact.Plane) error {
	b := c.builder
	b.Reset()
	b.Add(index.Joint, floatingBase, dynamics.FloatingBaseDoF)
	for _, j := range c.model.Joints() {
		b.Add(index.Joint, j, 1)
	}
	c.rhos = c.rhos[:0]
	total := 0
	for i := range contacts {
		total += contacts[i].RhoCount()
	}
	if total > c.cfg.MaxRho {
		return fmt.Errorf("%d basis vectors, limit %d: %w", total, c.cfg.MaxRho, qp.ErrCapacity)
	}
	for i := range contacts {
		p := &contacts[i]
		n := p.RhoCount()
		if n == 0 {
			continue
		}
		b.Add(index.Rho, p.Body, n)
		basis := p.BasisVectors()
		for _, pt := range p.ActiveWorld() {
			if err := c.model.PointJacobian(p.Body, pt, c.point); err != nil {
				return err
			}
			for _, beta := range basis {
				k := len(c.rhos)
				gen := c.gen[k*c.nv : (k+1)*c.nv]
				for j := range gen {
					gen[j] = c.point.At(0, j)*beta.X + c.point.At(1, j)*beta.Y + c.point.At(2, j)*beta.Z
				}
				c.rhos = append(c.rhos, rhoColumn{body: p.Body, point: pt, basis: beta, gen: gen})
			}
		}
	}
	idx, err := b.Build()
	if err != nil {
		return err
	}
	c.idx = idx
	return nil
}

func (c *Controller) assemble(commands *command.List, contacts []contact.Plane) error {
	if err := c.layout(contacts); err != nil {
		return err
	}
	n := c.idx.Total()
	prob, err := c.ws.Reset(n)
	if err != nil {
		return err
	}
	c.prob = prob
	if cap(c.row) < n {
		c.row = make([]float64, n)
	}
	c.row = c.row[:n]

	c.model.MassMatrix(c.mass)
	c.model.Bias(c.bias)

	// Unactuated rows of M q̈ + h = Jᵀf.
	prob.SetTag("floating_base")
	for i := 0; i < dynamics.FloatingBaseDoF; i++ {
		clear(c.row)
		for j := 0; j < c.nv; j++ {
			c.row[j] = c.mass.At(i, j)
		}
		for k := range c.rhos {
			c.row[c.nv+k] = -c.rhos[k].gen[i]
		}
		if err := prob.AddEquality(c.row, -c.bias[i]); err != nil {
			return err
		}
	}

	if commands != nil {
		if err := c.table.Apply(commands); err != nil {
			return err
		}
	}
	if err := c.addLimits(); err != nil {
		return err
	}

	prob.SetTag("rho")
	for k := range c.rhos {
		if err := prob.AddLowerBound(c.nv+k, c.cfg.MinRho); err != nil {
			return err
		}
		prob.AddDiagonal(c.nv+k, c.cfg.RhoWeight)
	}
	for j := 0; j < c.nv; j++ {
		prob.AddDiagonal(j, c.cfg.JointAccelerationWeight)
	}
	return nil
}

// addLimits bounds actuated torques and joint velocities one step ahead. A
// joint already over its velocity limit only has to slow down at
// LimitDeceleration.
// Position limits are soft: a joint heading past a limit within
// LimitHorizon is pulled toward a bounded braking acceleration, so a joint
// at or past its limit is never asked for an acceleration it cannot reach.
func (c *Controller) addLimits() error {
	if c.limits == nil {
		return nil
	}
	q := c.model.JointPositions()
	v := c.model.JointVelocities()
	dt := c.cfg.Dt
	for j, name := range c.model.Joints() {
		lim := c.limits.Limit(j)
		i := dynamics.FloatingBaseDoF + j

		if lim.Torque > 0 {
			c.prob.SetTag("torque/" + name)
			clear(c.row)
			for k := 0; k < c.nv; k++ {
				c.row[k] = c.mass.At(i, k)
			}
			for k := range c.rhos {
				c.row[c.nv+k] = -c.rhos[k].gen[i]
			}
			if err := c.prob.AddInequality(c.row, lim.Torque-c.bias[i]); err != nil {
				return err
			}
			if err := c.prob.AddGreaterOrEqual(c.row, -lim.Torque-c.bias[i]); err != nil {
				return err
			}
		}

		if lim.Velocity > 0 && dt > 0 {
			hi := (lim.Velocity - v[j]) / dt
			lo := (-lim.Velocity - v[j]) / dt
			if d := c.cfg.LimitDeceleration; d > 0 {
				hi, lo = math.Max(hi, -d), math.Min(lo, d)
			}
			c.prob.SetTag("velocity/" + name)
			clear(c.row)
			c.row[i] = 1
			if err := c.prob.AddInequality(c.row, hi); err != nil {
				return err
			}
			if err := c.prob.AddLowerBound(i, lo); err != nil {
				return err
			}
		}

		if a, ok := c.braking(lim, q[j], v[j]); ok {
			c.prob.SetTag("position/" + name)
			clear(c.row)
			c.row[i] = 1
			if err := c.prob.AddResidual(c.row, a, c.cfg.LimitWeight); err != nil {
				return err
			}
		}
	}
	return nil
}

// braking returns the acceleration that stops the joint at the limit it is
// heading past within the limit horizon, clamped to the braking capacity.
func (c *Controller) braking(lim dynamics.JointLimit, q, v float64) (float64, bool) {
	h := c.cfg.LimitHorizon
	if !(lim.Upper > lim.Lower) || !(h > 0) || !(c.cfg.LimitWeight > 0) {
		return 0, false
	}
	ahead := q + v*h
	var a float64
	switch {
	case ahead > lim.Upper:
		a = 2 * (lim.Upper - ahead) / (h * h)
	case ahead < lim.Lower:
		a = 2 * (lim.Lower - ahead) / (h * h)
	default:
		return 0, false
	}
	if d := c.cfg.LimitDeceleration; d > 0 {
		a = math.Max(-d, math.Min(d, a))
	}
	return a, true
}

func (c *Controller) extract(sol *qp.Solution) Output {
	nj := c.nv - dynamics.FloatingBaseDoF
	out := Output{
		Solved:            true,
		Torques:           make([]float64, nj),
		Accelerations:     append([]float64(nil), sol.X[:c.nv]...),
		Rho:               append([]float64(nil), sol.X[c.nv:]...),
		ContactForces:     make(map[string]r3.Vector),
		CentersOfPressure: make(map[string]r2.Point),
		Iterations:        sol.Iterations,
	}
	for j := 0; j < nj; j++ {
		i := dynamics.FloatingBaseDoF + j
		tau := c.bias[i]
		for k := 0; k < c.nv; k++ {
			tau += c.mass.At(i, k) * out.Accelerations[k]
		}
		for k := range c.rhos {
			tau -= c.rhos[k].gen[i] * out.Rho[k]
		}
		out.Torques[j] = tau
	}
	moments := c.moments
	clear(moments)
	for k, r := range c.rhos {
		f := r.basis.Mul(out.Rho[k])
		out.ContactForces[r.body] = out.ContactForces[r.body].Add(f)
		moments[r.body] = moments[r.body].Add(r2.Point{X: r.point.X, Y: r.point.Y}.Mul(f.Z))
	}
	for body, m := range moments {
		if fz := out.ContactForces[body].Z; fz > 1e-9 {
			out.CentersOfPressure[body] = m.Mul(1 / fz)
		}
	}
	return out
}

func (c *Controller) emit(cmd *command.Command, target, weight float64) error {
	switch cmd.Constraint {
	case command.Objective:
		return c.prob.AddResidual(c.row, target, weight)
	case command.Equality:
		return c.prob.AddEquality(c.row, target)
	case command.LessOrEqual:
		return c.prob.AddInequality(c.row, target)
	case command.GreaterOrEqual:
		return c.prob.AddGreaterOrEqual(c.row, target)
	}
	return fmt.Errorf("constraint %s: %w", cmd.Constraint, command.ErrUnhandledKind)
}

func (c *Controller) jointAcceleration(cmd *command.Command) error {
	if len(cmd.Desired) != 1 {
		return ErrBadCommand
	}
	col, err := c.idx.Column(index.Joint, cmd.Target, 0)
	if err != nil {
		return err
	}
	c.prob.SetTag("joint/" + cmd.Target)
	clear(c.row)
	c.row[col] = 1
	return c.emit(cmd, cmd.Desired[0], cmd.Weight)
}

// spatialAcceleration projects the body Jacobian onto the axes of a frame
// yawed by cmd.Yaw. The Jacobian rate term is neglected.
func (c *Controller) spatialAcceleration(cmd *command.Command) error {
	if len(cmd.Desired) != 6 {
		return ErrBadCommand
	}
	if err := c.model.BodyJacobian(cmd.Target, c.jac); err != nil {
		return err
	}
	c.prob.SetTag("spatial/" + cmd.Target)
	cy, sy := math.Cos(cmd.Yaw), math.Sin(cmd.Yaw)
	// Columns of Rz(yaw): the frame axes in world coordinates.
	axes := [3][3]float64{{cy, sy, 0}, {-sy, cy, 0}, {0, 0, 1}}
	for a := 0; a < 6; a++ {
		if !cmd.Selected(a) {
			continue
		}
		block, k := 3*(a/3), a%3
		clear(c.row)
		for j := 0; j < c.nv; j++ {
			s := 0.0
			for i := 0; i < 3; i++ {
				s += axes[k][i] * c.jac.At(block+i, j)
			}
			c.row[j] = s
		}
		if err := c.emit(cmd, cmd.Desired[a], cmd.Weight); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) centerOfMass(cmd *command.Command) error {
	if len(cmd.Desired) != 3 {
		return ErrBadCommand
	}
	c.model.CoMJacobian(c.com)
	c.prob.SetTag("com")
	for a := 0; a < 3; a++ {
		if !cmd.Selected(a) {
			continue
		}
		clear(c.row)
		for j := 0; j < c.nv; j++ {
			c.row[j] = c.com.At(a, j)
		}
		if err := c.emit(cmd, cmd.Desired[a], cmd.Weight); err != nil {
			return err
		}
	}
	return nil
}

// contactForce tracks the net force of one plane, or regularizes its basis
// magnitudes toward zero when Desired is nil. Planes out of contact are
// ignored.
func (c *Controller) contactForce(cmd *command.Command) error {
	r, err := c.idx.Range(index.Rho, cmd.Target)
	if err != nil {
		return nil
	}
	c.prob.SetTag("force/" + cmd.Target)
	if cmd.Desired == nil {
		for k := r.Start; k < r.End(); k++ {
			clear(c.row)
			c.row[k] = 1
			if err := c.emit(cmd, 0, cmd.Weight); err != nil {
				return err
			}
		}
		return nil
	}
	if len(cmd.Desired) != 3 {
		return ErrBadCommand
	}
	for a := 0; a < 3; a++ {
		if !cmd.Selected(a) {
			continue
		}
		clear(c.row)
		for k := r.Start; k < r.End(); k++ {
			b := c.rhos[k-c.nv].basis
			c.row[k] = [3]float64{b.X, b.Y, b.Z}[a]
		}
		if err := c.emit(cmd, cmd.Desired[a], cmd.Weight); err != nil {
			return err
		}
	}
	return nil
}
