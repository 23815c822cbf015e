package foothold

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/geometry"
)

// Thresholds of the toe-off check. A NaN threshold disables its margin.
type Thresholds struct {
	DistanceForwardFromHeel              float64 `yaml:"distance_forward_from_heel"`
	MinLateralDistanceInside             float64 `yaml:"min_lateral_distance_inside"`
	MinDistanceFromToe                   float64 `yaml:"min_distance_from_toe"`
	MinFractionOfStrideFromToe           float64 `yaml:"min_fraction_of_stride_from_toe"`
	MinNormalizedDistanceFromOutsideEdge float64 `yaml:"min_normalized_distance_from_outside_edge"`
	MinNormalizedDistanceFromInsideEdge  float64 `yaml:"min_normalized_distance_from_inside_edge"`
	MaxNormalizedICPError                float64 `yaml:"max_normalized_icp_error"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DistanceForwardFromHeel:              -0.05,
		MinLateralDistanceInside:             0.0,
		MinDistanceFromToe:                   0.03,
		MinFractionOfStrideFromToe:           0.1,
		MinNormalizedDistanceFromOutsideEdge: math.NaN(),
		MinNormalizedDistanceFromInsideEdge:  0.2,
		MaxNormalizedICPError:                math.NaN(),
	}
}

type ToeOffInput struct {
	TrailingSide    contact.Side
	Leading         geometry.Pose
	Trailing        geometry.Pose
	LeadingPolygon  geometry.Polygon
	TrailingPolygon geometry.Polygon
	DesiredICP      r2.Point
	CurrentICP      r2.Point
	Toe             r2.Point
}

// Margins are value minus threshold; a disabled margin is NaN.
type Margins struct {
	ForwardFromHeel           float64
	LateralInside             float64
	DistanceFromToe           float64
	FractionOfStrideFromToe   float64
	NormalizedFromOutsideEdge float64
	NormalizedFromInsideEdge  float64
	NormalizedICPError        float64
}

func (m Margins) values() [7]float64 {
	return [7]float64{
		m.ForwardFromHeel,
		m.LateralInside,
		m.DistanceFromToe,
		m.FractionOfStrideFromToe,
		m.NormalizedFromOutsideEdge,
		m.NormalizedFromInsideEdge,
		m.NormalizedICPError,
	}
}

// Safe reports whether every enabled margin is non-negative.
func (m Margins) Safe() bool {
	for _, v := range m.values() {
		if !math.IsNaN(v) && v < 0 {
			return false
		}
	}
	return true
}

// Min returns the smallest enabled margin, or +Inf when none is enabled.
func (m Margins) Min() float64 {
	lo := math.Inf(1)
	for _, v := range m.values() {
		if !math.IsNaN(v) {
			lo = math.Min(lo, v)
		}
	}
	return lo
}

type ToeOffReport struct {
	Safe    bool
	Margins Margins
	Stride  float64
}

// ToeOffInspector decides whether the trailing foot may roll onto its toes.
// It holds only thresholds; Check has no side effects.
type ToeOffInspector struct {
	th Thresholds
}

func NewToeOffInspector(th Thresholds) *ToeOffInspector {
	return &ToeOffInspector{th: th}
}

func (t *ToeOffInspector) Thresholds() Thresholds { return t.th }

func (t *ToeOffInspector) Check(in ToeOffInput) ToeOffReport {
	forward := in.Leading.Heading()
	inside := in.Trailing.Lateral().Mul(-in.TrailingSide.Sign())
	icp := in.CurrentICP

	stride := in.Leading.Position2().Sub(in.Trailing.Position2()).Norm()
	toeDist := icp.Sub(in.Toe).Norm()

	var m Margins

	heel, _ := in.LeadingPolygon.Extent(forward)
	m.ForwardFromHeel = margin(icp.Dot(forward)-heel, t.th.DistanceForwardFromHeel)

	outside, _ := in.TrailingPolygon.Extent(inside)
	m.LateralInside = margin(icp.Dot(inside)-outside, t.th.MinLateralDistanceInside)

	m.DistanceFromToe = margin(toeDist, t.th.MinDistanceFromToe)
	if stride > 0 {
		m.FractionOfStrideFromToe = margin(toeDist/stride, t.th.MinFractionOfStrideFromToe)
	} else {
		m.FractionOfStrideFromToe = disabledOr(t.th.MinFractionOfStrideFromToe, -1)
	}

	// The inside edge of the on-toes polygon is the one on the trailing toe's
	// side; the outside edge is the far side of the leading foot.
	onToes := geometry.Hull(append(in.LeadingPolygon.Vertices(), in.Toe))
	lo, hi := onToes.Extent(inside)
	if width := hi - lo; width > 0 {
		p := icp.Dot(inside)
		m.NormalizedFromInsideEdge = margin((p-lo)/width, t.th.MinNormalizedDistanceFromInsideEdge)
		m.NormalizedFromOutsideEdge = margin((hi-p)/width, t.th.MinNormalizedDistanceFromOutsideEdge)
	} else {
		m.NormalizedFromOutsideEdge = disabledOr(t.th.MinNormalizedDistanceFromOutsideEdge, -1)
		m.NormalizedFromInsideEdge = disabledOr(t.th.MinNormalizedDistanceFromInsideEdge, -1)
	}

	if stride > 0 && !math.IsNaN(t.th.MaxNormalizedICPError) {
		m.NormalizedICPError = t.th.MaxNormalizedICPError - in.DesiredICP.Sub(icp).Norm()/stride
	} else {
		m.NormalizedICPError = math.NaN()
	}

	return ToeOffReport{Safe: m.Safe(), Margins: m, Stride: stride}
}

func margin(value, threshold float64) float64 {
	if math.IsNaN(threshold) {
		return math.NaN()
	}
	return value - threshold
}

func disabledOr(threshold, v float64) float64 {
	if math.IsNaN(threshold) {
		return math.NaN()
	}
	return v
}
