package plan

import "github.com/golang/geo/r3"

// Polynomial3 is a cubic per axis, c0 + c1 t + c2 t² + c3 t³.
type Polynomial3 struct {
	Coeffs [3][4]float64
}

func PositionBasis(t float64) [4]float64     { return [4]float64{1, t, t * t, t * t * t} }
func VelocityBasis(t float64) [4]float64     { return [4]float64{0, 1, 2 * t, 3 * t * t} }
func AccelerationBasis(t float64) [4]float64 { return [4]float64{0, 0, 2, 6 * t} }

func (p Polynomial3) eval(b [4]float64) r3.Vector {
	var v [3]float64
	for a := 0; a < 3; a++ {
		for k := 0; k < 4; k++ {
			v[a] += p.Coeffs[a][k] * b[k]
		}
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func (p Polynomial3) Position(t float64) r3.Vector     { return p.eval(PositionBasis(t)) }
func (p Polynomial3) Velocity(t float64) r3.Vector     { return p.eval(VelocityBasis(t)) }
func (p Polynomial3) Acceleration(t float64) r3.Vector { return p.eval(AccelerationBasis(t)) }

// SetFromVector reads coefficients laid out axis-major, four per axis.
func (p *Polynomial3) SetFromVector(x []float64) {
	for a := 0; a < 3; a++ {
		copy(p.Coeffs[a][:], x[4*a:4*a+4])
	}
}

// Hermite returns the cubic with the given boundary values and rates over
// [0, T].
func Hermite(p0, v0, p1, v1 r3.Vector, T float64) Polynomial3 {
	var out Polynomial3
	if T <= 0 {
		out.Coeffs[0][0], out.Coeffs[1][0], out.Coeffs[2][0] = p1.X, p1.Y, p1.Z
		return out
	}
	a0 := [3]float64{p0.X, p0.Y, p0.Z}
	a1 := [3]float64{v0.X, v0.Y, v0.Z}
	b0 := [3]float64{p1.X, p1.Y, p1.Z}
	b1 := [3]float64{v1.X, v1.Y, v1.Z}
	for a := 0; a < 3; a++ {
		d := b0[a] - a0[a]
		out.Coeffs[a] = [4]float64{
			a0[a],
			a1[a],
			(3*d - (2*a1[a]+b1[a])*T) / (T * T),
			(-2*d + (a1[a]+b1[a])*T) / (T * T * T),
		}
	}
	return out
}
