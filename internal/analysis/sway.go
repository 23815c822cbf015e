package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Sway summarizes the excursion of the CoM ground projection.
type Sway struct {
	PathLength   float64
	MeanVelocity float64
	RMSX         float64
	RMSY         float64
	RangeX       float64
	RangeY       float64
	// Area95 is the area of the 95% confidence ellipse of the samples.
	Area95 float64
}

// chiSquare95 is the 95% quantile of the chi-square distribution with two
// degrees of freedom.
const chiSquare95 = 5.991

// ComputeSway evaluates the sway of the samples (xs[i], ys[i]) taken dt
// apart. RMS values are taken about the mean position.
func ComputeSway(xs, ys []float64, dt float64) Sway {
	n := min(len(xs), len(ys))
	if n == 0 {
		return Sway{}
	}
	xs, ys = xs[:n], ys[:n]

	var s Sway
	for i := 1; i < n; i++ {
		s.PathLength += math.Hypot(xs[i]-xs[i-1], ys[i]-ys[i-1])
	}
	if n > 1 && dt > 0 {
		s.MeanVelocity = s.PathLength / (float64(n-1) * dt)
	}
	s.RMSX = stat.PopStdDev(xs, nil)
	s.RMSY = stat.PopStdDev(ys, nil)
	s.RangeX = floats.Max(xs) - floats.Min(xs)
	s.RangeY = floats.Max(ys) - floats.Min(ys)

	if n > 1 {
		cov := stat.Covariance(xs, ys, nil)
		det := stat.Variance(xs, nil)*stat.Variance(ys, nil) - cov*cov
		if det > 0 {
			s.Area95 = math.Pi * chiSquare95 * math.Sqrt(det)
		}
	}
	return s
}
