package qp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Solver is the dense QP primitive consumed by the planners.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}

type Solution struct {
	X          []float64
	Active     []int
	Iterations int
	Cost       float64
}

type Config struct {
	MaxIterations  int     `yaml:"max_iterations"`
	Tolerance      float64 `yaml:"tolerance"`
	Regularization float64 `yaml:"regularization"`
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:  500,
		Tolerance:      1e-9,
		Regularization: 1e-9,
	}
}

// ActiveSet is a dual active-set solver in the manner of Goldfarb and
// Idnani. It starts from the equality-constrained minimizer and adds the
// most violated inequality until all hold, dropping constraints whose
// multipliers would turn negative. Steps are computed in range space with a
// single Cholesky factorization of H per solve.
//
// Buffers are kept between solves and only grow.
type ActiveSet struct {
	cfg Config

	n      int
	neq    int
	stride int
	chol   mat.Cholesky

	hsym []float64
	u    []float64
	s    []float64
	sbuf []float64

	work   []int
	lam    []float64
	active []bool

	x, z, ua, rhs, r []float64
}

func NewActiveSet(cfg Config) *ActiveSet {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultConfig().Tolerance
	}
	return &ActiveSet{cfg: cfg}
}

func (a *ActiveSet) ensureScratch(n, rows int) {
	if len(a.x) < n {
		a.x = make([]float64, n)
		a.z = make([]float64, n)
		a.ua = make([]float64, n)
		a.hsym = make([]float64, n*n)
	}
	if a.stride < rows {
		a.stride = rows
		a.s = make([]float64, rows*rows)
		a.sbuf = make([]float64, rows*rows)
		a.rhs = make([]float64, rows)
		a.r = make([]float64, rows)
	}
	if len(a.u) < a.stride*n {
		a.u = make([]float64, a.stride*n)
	}
	if cap(a.work) < rows {
		a.work = make([]int, 0, rows)
		a.lam = make([]float64, 0, rows)
	}
	a.n = n
	a.x = a.x[:n]
	a.z = a.z[:n]
	a.ua = a.ua[:n]
	a.work = a.work[:0]
	a.lam = a.lam[:0]
}

func (a *ActiveSet) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	n := p.N
	neq, nin := p.NumEqualities(), p.NumInequalities()
	if neq > n {
		return nil, fmt.Errorf("%d equalities for %d variables: %w", neq, n, ErrDegenerate)
	}
	a.ensureScratch(n, neq+min(nin, n)+1)
	a.neq = neq
	if cap(a.active) < nin {
		a.active = make([]bool, nin)
	}
	a.active = a.active[:nin]
	clear(a.active)

	if err := a.factorize(p); err != nil {
		return nil, err
	}

	a.hsolve(a.x, p.F())
	for i := range a.x {
		a.x[i] = -a.x[i]
	}

	for i := 0; i < neq; i++ {
		a.addWorking(p, i, 0)
		if a.dependent() {
			a.dropWorking(len(a.work) - 1)
		}
	}
	meq := len(a.work)
	if meq > 0 {
		for j := 0; j < meq; j++ {
			a.rhs[j] = dot(p.EqRow(a.work[j]), a.x) - p.Beq(a.work[j])
		}
		if err := a.solveS(meq, a.rhs[:meq], a.r[:meq]); err != nil {
			return nil, err
		}
		for j := 0; j < meq; j++ {
			axpy(-a.r[j], a.uCol(j), a.x)
		}
	}

	iter := 0
	for {
		if err := ctx.Err(); err != nil {
			return a.solution(p, iter), fmt.Errorf("qp: %w", err)
		}

		viol, pIdx := a.mostViolated(p)
		if pIdx < 0 || viol <= a.cfg.Tolerance {
			return a.solution(p, iter), nil
		}

		row := p.InRow(pIdx)
		lamP := 0.0
		for {
			iter++
			if iter > a.cfg.MaxIterations {
				return a.solution(p, iter), fmt.Errorf("%d iterations: %w", iter-1, ErrMaxIterations)
			}

			m := len(a.work)
			if err := a.step(p, row, m); err != nil {
				return a.solution(p, iter), err
			}

			t1, k := math.Inf(1), -1
			for j := meq; j < m; j++ {
				if a.r[j] < -1e-12 {
					if t := -a.lam[j] / a.r[j]; t < t1 {
						t1, k = t, j
					}
				}
			}

			curv := -dot(row, a.z)
			violation := dot(row, a.x) - p.Bin(pIdx)
			if curv <= 1e-12*(1+dot(row, row)) {
				if k < 0 {
					return a.solution(p, iter), fmt.Errorf("row %q: %w", p.InTag(pIdx), ErrInfeasible)
				}
				for j := 0; j < m; j++ {
					a.lam[j] += t1 * a.r[j]
				}
				lamP += t1
				a.dropWorking(k)
				continue
			}

			t2 := violation / curv
			t := math.Min(t1, t2)
			axpy(t, a.z, a.x)
			for j := 0; j < m; j++ {
				a.lam[j] += t * a.r[j]
			}
			lamP += t

			if t2 <= t1 {
				a.addWorking(p, neq+pIdx, lamP)
				break
			}
			a.dropWorking(k)
		}
	}
}

func (a *ActiveSet) factorize(p *Problem) error {
	n := p.N
	copy(a.hsym[:n*n], p.h[:n*n])
	for i := 0; i < n; i++ {
		a.hsym[i*n+i] += a.cfg.Regularization
	}
	sym := mat.NewSymDense(n, a.hsym[:n*n])
	if ok := a.chol.Factorize(sym); !ok {
		return fmt.Errorf("hessian is not positive definite: %w", ErrDegenerate)
	}
	return nil
}

func (a *ActiveSet) hsolve(dst, b []float64) {
	_ = a.chol.SolveVecTo(mat.NewVecDense(len(dst), dst), mat.NewVecDense(len(b), b))
}

func (a *ActiveSet) uCol(j int) []float64 { return a.u[j*a.n : (j+1)*a.n] }

func (a *ActiveSet) row(p *Problem, id int) []float64 {
	if id < p.NumEqualities() {
		return p.EqRow(id)
	}
	return p.InRow(id - p.NumEqualities())
}

// step computes the primal direction z and working-set multiplier direction
// r for raising the multiplier of constraint row.
func (a *ActiveSet) step(p *Problem, row []float64, m int) error {
	a.hsolve(a.ua, row)
	if m > 0 {
		for i := 0; i < m; i++ {
			a.rhs[i] = -dot(a.row(p, a.work[i]), a.ua)
		}
		if err := a.solveS(m, a.rhs[:m], a.r[:m]); err != nil {
			return err
		}
	}
	copy(a.z, a.ua)
	for j := 0; j < m; j++ {
		axpy(a.r[j], a.uCol(j), a.z)
	}
	for i := range a.z {
		a.z[i] = -a.z[i]
	}
	return nil
}

func (a *ActiveSet) solveS(m int, rhs, out []float64) error {
	buf := a.sbuf[:m*m]
	for i := 0; i < m; i++ {
		copy(buf[i*m:(i+1)*m], a.s[i*a.stride:i*a.stride+m])
		buf[i*m+i] += 1e-12
	}
	var lu mat.LU
	lu.Factorize(mat.NewDense(m, m, buf))
	err := lu.SolveVecTo(mat.NewVecDense(m, out), false, mat.NewVecDense(m, rhs))
	if err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return fmt.Errorf("working set: %v: %w", err, ErrDegenerate)
		}
	}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("working set multipliers: %w", ErrDegenerate)
		}
	}
	return nil
}

func (a *ActiveSet) addWorking(p *Problem, id int, lam float64) {
	m := len(a.work)
	if m >= a.stride {
		a.grow(m + 1)
	}
	r := a.row(p, id)
	u := a.uCol(m)
	a.hsolve(u, r)
	for j := 0; j < m; j++ {
		v := dot(r, a.uCol(j))
		a.s[m*a.stride+j] = v
		a.s[j*a.stride+m] = v
	}
	a.s[m*a.stride+m] = dot(r, u)
	a.work = append(a.work, id)
	a.lam = append(a.lam, lam)
	if id >= p.NumEqualities() {
		a.active[id-p.NumEqualities()] = true
	}
}

// dependent reports whether the newest working row is a combination of the
// others. Such equality rows are dropped; if they were inconsistent,
// Inspect reports the residual.
func (a *ActiveSet) dependent() bool {
	m := len(a.work)
	last := a.s[(m-1)*a.stride+m-1]
	if last <= 1e-14 {
		return true
	}
	if m == 1 {
		return false
	}
	copy(a.rhs[:m-1], a.s[(m-1)*a.stride:(m-1)*a.stride+m-1])
	if err := a.solveS(m-1, a.rhs[:m-1], a.r[:m-1]); err != nil {
		return true
	}
	pivot := last - dot(a.rhs[:m-1], a.r[:m-1])
	return pivot <= 1e-9*last
}

func (a *ActiveSet) dropWorking(k int) {
	m := len(a.work)
	if id := a.work[k]; id >= a.neq {
		a.active[id-a.neq] = false
	}
	copy(a.u[k*a.n:], a.u[(k+1)*a.n:m*a.n])
	for i := k; i < m-1; i++ {
		copy(a.s[i*a.stride:i*a.stride+m], a.s[(i+1)*a.stride:(i+1)*a.stride+m])
	}
	for i := 0; i < m-1; i++ {
		rowS := a.s[i*a.stride : i*a.stride+m]
		copy(rowS[k:], rowS[k+1:])
	}
	a.work = append(a.work[:k], a.work[k+1:]...)
	a.lam = append(a.lam[:k], a.lam[k+1:]...)
}

// grow enlarges the working-set storage, preserving its contents.
func (a *ActiveSet) grow(rows int) {
	old := a.stride
	s := make([]float64, rows*rows)
	for i := 0; i < old; i++ {
		copy(s[i*rows:i*rows+old], a.s[i*old:(i+1)*old])
	}
	a.s = s
	a.stride = rows
	a.sbuf = make([]float64, rows*rows)
	a.rhs = make([]float64, rows)
	a.r = make([]float64, rows)
	u := make([]float64, rows*a.n)
	copy(u, a.u)
	a.u = u
}

func (a *ActiveSet) mostViolated(p *Problem) (float64, int) {
	best, idx := 0.0, -1
	for i := 0; i < p.NumInequalities(); i++ {
		if a.active[i] {
			continue
		}
		if v := dot(p.InRow(i), a.x) - p.Bin(i); v > best {
			best, idx = v, i
		}
	}
	return best, idx
}

func (a *ActiveSet) solution(p *Problem, iter int) *Solution {
	sol := &Solution{
		X:          append([]float64(nil), a.x...),
		Iterations: iter,
	}
	neq := p.NumEqualities()
	for _, id := range a.work {
		if id >= neq {
			sol.Active = append(sol.Active, id-neq)
		}
	}
	sol.Cost = p.Cost(sol.X)
	return sol
}

func axpy(alpha float64, x, y []float64) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}
