package feedback

import "github.com/golang/geo/r3"

// ICP stabilizes the capture point around its plan. The desired VRP is
// shifted by (1 + Gain/ω)·(ξ − ξ*) and the CoM acceleration follows from
// the linear inverted pendulum, ẍ = ω²(x − r).
type ICP struct {
	Gain float64 `yaml:"gain"`

	// MaxShift bounds the horizontal VRP correction. Zero disables it.
	MaxShift float64 `yaml:"max_shift"`
}

// VRP returns the corrected virtual repellent point.
func (f ICP) VRP(plannedVRP, plannedICP, icp r3.Vector, omega float64) r3.Vector {
	e := icp.Sub(plannedICP)
	e.Z = 0
	shift := e.Mul(1 + f.Gain/omega)
	if n := shift.Norm(); f.MaxShift > 0 && n > f.MaxShift {
		shift = shift.Mul(f.MaxShift / n)
	}
	return plannedVRP.Add(shift)
}

// CoMAcceleration returns ω²(x − r) for the corrected VRP r.
func (f ICP) CoMAcceleration(com, plannedVRP, plannedICP, icp r3.Vector, omega float64) r3.Vector {
	r := f.VRP(plannedVRP, plannedICP, icp, omega)
	return com.Sub(r).Mul(omega * omega)
}
