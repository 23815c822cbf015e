package qp

import (
	"fmt"

	"go.uber.org/multierr"
)

// Violation is one constraint row that does not hold at a solution.
type Violation struct {
	Row      int
	Tag      string
	Residual float64
}

type Report struct {
	MaxEqualityResidual   float64
	MaxInequalityResidual float64
	Equalities            []Violation
	Inequalities          []Violation
}

// Inspect evaluates every constraint row at x. Equality rows off by more than
// tol are returned as errors; inequality rows are only reported.
func Inspect(p *Problem, x []float64, tol float64) (Report, error) {
	var (
		rep  Report
		errs error
	)
	for i := 0; i < p.NumEqualities(); i++ {
		res := dot(p.EqRow(i), x) - p.Beq(i)
		if a := abs(res); a > rep.MaxEqualityResidual {
			rep.MaxEqualityResidual = a
		}
		if abs(res) > tol {
			v := Violation{Row: i, Tag: p.EqTag(i), Residual: res}
			rep.Equalities = append(rep.Equalities, v)
			errs = multierr.Append(errs, fmt.Errorf("equality %d %q off by %.3g: %w", i, v.Tag, res, ErrViolation))
		}
	}
	for i := 0; i < p.NumInequalities(); i++ {
		res := dot(p.InRow(i), x) - p.Bin(i)
		if res > rep.MaxInequalityResidual {
			rep.MaxInequalityResidual = res
		}
		if res > tol {
			rep.Inequalities = append(rep.Inequalities, Violation{Row: i, Tag: p.InTag(i), Residual: res})
		}
	}
	return rep, errs
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
