package qp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrCapacity      = errors.New("qp: workspace capacity exceeded")
	ErrDimension     = errors.New("qp: row length does not match problem size")
	ErrInfeasible    = errors.New("qp: constraints are infeasible")
	ErrMaxIterations = errors.New("qp: iteration limit reached")
	ErrDegenerate    = errors.New("qp: degenerate problem")
	ErrViolation     = errors.New("qp: equality constraint violated")
)

// Problem is a dense quadratic program
//
//	minimize ½xᵀHx + fᵀx  subject to  Aeq x = beq,  Ain x ≤ bin.
//
// Rows live in storage owned by a Workspace and are only valid until the
// next Reset.
type Problem struct {
	N int

	h []float64
	f []float64

	aeq    []float64
	beq    []float64
	eqTags []string
	neq    int

	ain    []float64
	bin    []float64
	inTags []string
	nin    int

	tag string
}

// Workspace owns the storage of one Problem, sized once at construction.
type Workspace struct {
	maxN, maxEq, maxIn int
	problem            Problem
}

func NewWorkspace(maxN, maxEq, maxIn int) *Workspace {
	w := &Workspace{maxN: maxN, maxEq: maxEq, maxIn: maxIn}
	w.problem = Problem{
		h:      make([]float64, maxN*maxN),
		f:      make([]float64, maxN),
		aeq:    make([]float64, maxEq*maxN),
		beq:    make([]float64, maxEq),
		eqTags: make([]string, maxEq),
		ain:    make([]float64, maxIn*maxN),
		bin:    make([]float64, maxIn),
		inTags: make([]string, maxIn),
	}
	return w
}

// Reset clears the problem and resizes it to n variables without
// allocating.
func (w *Workspace) Reset(n int) (*Problem, error) {
	if n <= 0 || n > w.maxN {
		return nil, fmt.Errorf("%d variables, capacity %d: %w", n, w.maxN, ErrCapacity)
	}
	p := &w.problem
	p.N = n
	p.h = p.h[:cap(p.h)]
	p.f = p.f[:cap(p.f)]
	clear(p.h[:n*n])
	clear(p.f[:n])
	p.neq, p.nin = 0, 0
	p.tag = ""
	return p, nil
}

// SetTag labels every row added afterwards; inspection reports use it.
func (p *Problem) SetTag(tag string) { p.tag = tag }

func (p *Problem) NumEqualities() int   { return p.neq }
func (p *Problem) NumInequalities() int { return p.nin }

func (p *Problem) H() *mat.Dense         { return mat.NewDense(p.N, p.N, p.h[:p.N*p.N]) }
func (p *Problem) F() []float64          { return p.f[:p.N] }
func (p *Problem) EqRow(i int) []float64 { return p.aeq[i*p.N : (i+1)*p.N] }
func (p *Problem) InRow(i int) []float64 { return p.ain[i*p.N : (i+1)*p.N] }
func (p *Problem) Beq(i int) float64     { return p.beq[i] }
func (p *Problem) Bin(i int) float64     { return p.bin[i] }
func (p *Problem) EqTag(i int) string    { return p.eqTags[i] }
func (p *Problem) InTag(i int) string    { return p.inTags[i] }

func (p *Problem) checkRow(row []float64) error {
	if len(row) != p.N {
		return fmt.Errorf("row of %d for %d variables: %w", len(row), p.N, ErrDimension)
	}
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite coefficient: %w", ErrDegenerate)
		}
	}
	return nil
}

// AddEquality appends row·x = b.
func (p *Problem) AddEquality(row []float64, b float64) error {
	if err := p.checkRow(row); err != nil {
		return err
	}
	if p.neq >= len(p.beq) {
		return fmt.Errorf("%d equalities: %w", p.neq+1, ErrCapacity)
	}
	copy(p.aeq[p.neq*p.N:(p.neq+1)*p.N], row)
	p.beq[p.neq] = b
	p.eqTags[p.neq] = p.tag
	p.neq++
	return nil
}

// AddInequality appends row·x ≤ b.
func (p *Problem) AddInequality(row []float64, b float64) error {
	if err := p.checkRow(row); err != nil {
		return err
	}
	if p.nin >= len(p.bin) {
		return fmt.Errorf("%d inequalities: %w", p.nin+1, ErrCapacity)
	}
	copy(p.ain[p.nin*p.N:(p.nin+1)*p.N], row)
	p.bin[p.nin] = b
	p.inTags[p.nin] = p.tag
	p.nin++
	return nil
}

// AddGreaterOrEqual appends row·x ≥ b.
func (p *Problem) AddGreaterOrEqual(row []float64, b float64) error {
	if err := p.AddInequality(row, -b); err != nil {
		return err
	}
	neg := p.ain[(p.nin-1)*p.N : p.nin*p.N]
	for i := range neg {
		neg[i] = -neg[i]
	}
	return nil
}

// AddLowerBound appends x[i] ≥ lo.
func (p *Problem) AddLowerBound(i int, lo float64) error {
	if p.nin >= len(p.bin) {
		return fmt.Errorf("%d inequalities: %w", p.nin+1, ErrCapacity)
	}
	row := p.ain[p.nin*p.N : (p.nin+1)*p.N]
	clear(row)
	row[i] = -1
	p.bin[p.nin] = -lo
	p.inTags[p.nin] = p.tag
	p.nin++
	return nil
}

// AddResidual adds w·(row·x − target)² to the cost.
func (p *Problem) AddResidual(row []float64, target, w float64) error {
	if err := p.checkRow(row); err != nil {
		return err
	}
	if !(w > 0) || math.IsInf(w, 0) {
		return fmt.Errorf("residual weight %g: %w", w, ErrDegenerate)
	}
	n := p.N
	for i, ri := range row {
		if ri == 0 {
			continue
		}
		p.f[i] -= 2 * w * target * ri
		hi := p.h[i*n : (i+1)*n]
		for j, rj := range row {
			if rj != 0 {
				hi[j] += 2 * w * ri * rj
			}
		}
	}
	return nil
}

// AddDiagonal adds w·x[i]² to the cost.
func (p *Problem) AddDiagonal(i int, w float64) {
	p.h[i*p.N+i] += 2 * w
}

// Cost evaluates the objective at x.
func (p *Problem) Cost(x []float64) float64 {
	n := p.N
	c := 0.0
	for i := 0; i < n; i++ {
		hx := 0.0
		for j := 0; j < n; j++ {
			hx += p.h[i*n+j] * x[j]
		}
		c += 0.5*x[i]*hx + p.f[i]*x[i]
	}
	return c
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
