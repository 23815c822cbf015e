package mpc

import (
	"fmt"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/san-kum/stride/internal/command"
	"github.com/san-kum/stride/internal/index"
	"github.com/san-kum/stride/internal/plan"
	"github.com/san-kum/stride/internal/qp"
	"gonum.org/v1/gonum/integrate/quad"
)

// rhoEntry is one basis vector at one contact point.
type rhoEntry struct {
	plane int
	point r3.Vector
	basis r3.Vector
}

func segmentName(s int) string { return strconv.Itoa(s) }

// assembler turns planner commands into QP rows. With x set it evaluates
// the cost of soft commands at x instead of writing rows.
type assembler struct {
	cfg   Config
	omega float64
	p     *qp.Problem
	idx   *index.Handler
	segs  []plan.Segment
	rhos  [][]rhoEntry
	nodes []float64
	wts   []float64
	row   []float64
	x     []float64
	cost  float64
	table command.Table
}

func newAssembler(cfg Config) *assembler {
	a := &assembler{
		cfg:   cfg,
		omega: cfg.Omega(),
		nodes: make([]float64, cfg.QuadratureNodes),
		wts:   make([]float64, cfg.QuadratureNodes),
	}
	a.table.Register(command.MPCValue, a.value)
	a.table.Register(command.MPCContinuity, a.continuity)
	a.table.Register(command.MPCVRPTracking, a.vrpTracking)
	a.table.Register(command.MPCRhoBound, a.rhoBound)
	a.table.Register(command.MPCRhoValue, a.rhoValue)
	a.table.Register(command.MPCOrientationValue, a.orientationValue)
	return a
}

// layout rebuilds the index handler for segs.
func (a *assembler) layout(b *index.Builder, segs []plan.Segment) error {
	a.segs = segs
	a.rhos = a.rhos[:0]
	b.Reset()
	for s := range segs {
		var entries []rhoEntry
		for ci := range segs[s].Contacts {
			c := &segs[s].Contacts[ci]
			basis := c.BasisVectors()
			for _, pt := range c.ActiveWorld() {
				for _, beta := range basis {
					entries = append(entries, rhoEntry{plane: ci, point: pt, basis: beta})
				}
			}
		}
		if len(entries) > a.cfg.MaxRhoPerSeg {
			return fmt.Errorf("segment %d has %d basis vectors, limit %d: %w", s, len(entries), a.cfg.MaxRhoPerSeg, qp.ErrCapacity)
		}
		a.rhos = append(a.rhos, entries)
		b.Add(index.SegmentCoM, segmentName(s), 12)
		b.Add(index.SegmentRho, segmentName(s), 2*len(entries))
	}
	idx, err := b.Build()
	if err != nil {
		return err
	}
	a.idx = idx
	if cap(a.row) < idx.Total() {
		a.row = make([]float64, idx.Total())
	}
	a.row = a.row[:idx.Total()]
	return nil
}

func (a *assembler) comStart(s int) int {
	r, _ := a.idx.Range(index.SegmentCoM, segmentName(s))
	return r.Start
}

func (a *assembler) rhoStart(s int) int {
	r, _ := a.idx.Range(index.SegmentRho, segmentName(s))
	return r.Start
}

func (a *assembler) clearRow() { clear(a.row) }

func (a *assembler) checkSegment(s int) error {
	if s < 0 || s >= len(a.segs) {
		return fmt.Errorf("segment %d of %d: %w", s, len(a.segs), index.ErrUnknownEntity)
	}
	return nil
}

// coeffs returns the polynomial row of quantity q for one axis at local
// time t.
func (a *assembler) coeffs(q command.Quantity, t float64) [4]float64 {
	p := plan.PositionBasis(t)
	v := plan.VelocityBasis(t)
	acc := plan.AccelerationBasis(t)
	var out [4]float64
	for k := 0; k < 4; k++ {
		switch q {
		case command.CoMPosition:
			out[k] = p[k]
		case command.CoMVelocity:
			out[k] = v[k]
		case command.CoMAcceleration:
			out[k] = acc[k]
		case command.ICP:
			out[k] = p[k] + v[k]/a.omega
		case command.VRP:
			out[k] = p[k] - acc[k]/(a.omega*a.omega)
		}
	}
	return out
}

// addQuantity adds sign times the row of quantity q on one axis of segment s.
func (a *assembler) addQuantity(s, axis int, q command.Quantity, t, sign float64) {
	base := a.comStart(s) + 4*axis
	for k, c := range a.coeffs(q, t) {
		a.row[base+k] += sign * c
	}
}

func (a *assembler) emit(c *command.Command, target float64, weight float64) error {
	if a.x != nil {
		if !c.IsHard() {
			r := dotRow(a.row, a.x) - target
			a.cost += weight * r * r
		}
		return nil
	}
	switch c.Constraint {
	case command.Objective:
		return a.p.AddResidual(a.row, target, weight)
	case command.Equality:
		return a.p.AddEquality(a.row, target)
	case command.LessOrEqual:
		return a.p.AddInequality(a.row, target)
	case command.GreaterOrEqual:
		return a.p.AddGreaterOrEqual(a.row, target)
	}
	return fmt.Errorf("constraint %s: %w", c.Constraint, command.ErrUnhandledKind)
}

func dotRow(r, x []float64) float64 {
	s := 0.0
	for i, v := range r {
		if v != 0 {
			s += v * x[i]
		}
	}
	return s
}

func (a *assembler) tag(c *command.Command) {
	if a.p != nil {
		a.p.SetTag(c.Kind.String() + "/" + c.Target + "/" + segmentName(c.Segment))
	}
}

func desired3(c *command.Command) ([3]float64, error) {
	var d [3]float64
	if len(c.Desired) != 3 {
		return d, fmt.Errorf("want 3 desired values, got %d: %w", len(c.Desired), qp.ErrDimension)
	}
	copy(d[:], c.Desired)
	return d, nil
}

func (a *assembler) value(c *command.Command) error {
	if err := a.checkSegment(c.Segment); err != nil {
		return err
	}
	d, err := desired3(c)
	if err != nil {
		return err
	}
	a.tag(c)
	for axis := 0; axis < 3; axis++ {
		if !c.Selected(axis) {
			continue
		}
		a.clearRow()
		a.addQuantity(c.Segment, axis, c.Quantity, c.Time, 1)
		if err := a.emit(c, d[axis], c.Weight); err != nil {
			return err
		}
	}
	return nil
}

func (a *assembler) continuity(c *command.Command) error {
	s := c.Segment
	if err := a.checkSegment(s); err != nil {
		return err
	}
	if err := a.checkSegment(s + 1); err != nil {
		return err
	}
	a.tag(c)
	T := a.segs[s].Duration()
	for axis := 0; axis < 3; axis++ {
		a.clearRow()
		a.addQuantity(s, axis, c.Quantity, T, 1)
		a.addQuantity(s+1, axis, c.Quantity, 0, -1)
		if err := a.emit(c, 0, c.Weight); err != nil {
			return err
		}
	}
	return nil
}

// vrpTracking integrates w‖VRP(t) − ref(t)‖² over the segment with
// Gauss-Legendre quadrature. The reference runs linearly from Start to End.
func (a *assembler) vrpTracking(c *command.Command) error {
	s := c.Segment
	if err := a.checkSegment(s); err != nil {
		return err
	}
	if len(c.Start) != 3 || len(c.End) != 3 {
		return fmt.Errorf("vrp reference: %w", qp.ErrDimension)
	}
	a.tag(c)
	T := a.segs[s].Duration()
	quad.Legendre{}.FixedLocations(a.nodes, a.wts, 0, T)
	for q, t := range a.nodes {
		frac := t / T
		for axis := 0; axis < 3; axis++ {
			ref := c.Start[axis] + (c.End[axis]-c.Start[axis])*frac
			a.clearRow()
			a.addQuantity(s, axis, command.VRP, t, 1)
			if err := a.emit(c, ref, c.Weight*a.wts[q]); err != nil {
				return err
			}
		}
	}
	return nil
}

// rhoBound bounds each basis magnitude when Target is "rho", or the summed
// normal component of one contact plane otherwise.
func (a *assembler) rhoBound(c *command.Command) error {
	s := c.Segment
	if err := a.checkSegment(s); err != nil {
		return err
	}
	if len(c.Desired) != 1 {
		return fmt.Errorf("rho bound: %w", qp.ErrDimension)
	}
	a.tag(c)
	base := a.rhoStart(s)
	if c.Target == "rho" {
		for j := range a.rhos[s] {
			a.clearRow()
			a.row[base+2*j] = 1
			a.row[base+2*j+1] = c.Time
			if err := a.emit(c, c.Desired[0], c.Weight); err != nil {
				return err
			}
		}
		return nil
	}
	plane := -1
	for ci := range a.segs[s].Contacts {
		if a.segs[s].Contacts[ci].Body == c.Target {
			plane = ci
		}
	}
	if plane < 0 {
		return nil
	}
	a.clearRow()
	for j, e := range a.rhos[s] {
		if e.plane == plane {
			a.row[base+2*j] = e.basis.Z
			a.row[base+2*j+1] = e.basis.Z * c.Time
		}
	}
	return a.emit(c, c.Desired[0], c.Weight)
}

func (a *assembler) rhoValue(c *command.Command) error {
	s := c.Segment
	if err := a.checkSegment(s); err != nil {
		return err
	}
	a.tag(c)
	base := a.rhoStart(s)
	for j := range a.rhos[s] {
		a.clearRow()
		a.row[base+2*j] = 1
		a.row[base+2*j+1] = c.Time
		if err := a.emit(c, 0, c.Weight); err != nil {
			return err
		}
	}
	return nil
}

// orientationValue drives the net contact moment per unit mass about the
// reference CoM toward Desired.
func (a *assembler) orientationValue(c *command.Command) error {
	s := c.Segment
	if err := a.checkSegment(s); err != nil {
		return err
	}
	d, err := desired3(c)
	if err != nil {
		return err
	}
	a.tag(c)
	ref := a.segs[s].ECMP(c.Time).Add(r3.Vector{Z: a.cfg.NominalHeight})
	base := a.rhoStart(s)
	for axis := 0; axis < 3; axis++ {
		a.clearRow()
		for j, e := range a.rhos[s] {
			m := e.point.Sub(ref).Cross(e.basis)
			k := [3]float64{m.X, m.Y, m.Z}[axis]
			a.row[base+2*j] = k
			a.row[base+2*j+1] = k * c.Time
		}
		if err := a.emit(c, d[axis], c.Weight); err != nil {
			return err
		}
	}
	return nil
}

// dynamics adds CoMacc(t) = Σ βρ(t) − g ẑ by matching the constant and
// linear coefficients.
func (a *assembler) dynamics(s int) error {
	if a.p == nil {
		return nil
	}
	a.p.SetTag("dynamics/" + segmentName(s))
	com, rho := a.comStart(s), a.rhoStart(s)
	for order := 0; order < 2; order++ {
		for axis := 0; axis < 3; axis++ {
			a.clearRow()
			// 2 c2 for the constant term, 6 c3 for the linear one.
			a.row[com+4*axis+2+order] = float64(2 + 4*order)
			for j, e := range a.rhos[s] {
				a.row[rho+2*j+order] = -[3]float64{e.basis.X, e.basis.Y, e.basis.Z}[axis]
			}
			b := 0.0
			if axis == 2 && order == 0 {
				b = -a.cfg.Gravity
			}
			if err := a.p.AddEquality(a.row, b); err != nil {
				return err
			}
		}
	}
	return nil
}
