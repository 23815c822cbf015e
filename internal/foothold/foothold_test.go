package foothold

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/geometry"
)

const (
	footLength = 0.2
	footWidth  = 0.1
	stepLength = 0.3
	stepWidth  = 0.2
)

func stance() (contact.Plane, contact.Plane) {
	lead := contact.NewPlane("left_foot", contact.Left, geometry.Rectangle(footLength, footWidth), 0.7, 4)
	lead.Pose = geometry.NewPose(stepLength, stepWidth/2, 0, 0)
	trail := contact.NewPlane("right_foot", contact.Right, geometry.Rectangle(footLength, footWidth), 0.7, 4)
	trail.Pose = geometry.NewPose(0, -stepWidth/2, 0, 0)
	return lead, trail
}

func toeOffInput(icp r2.Point) ToeOffInput {
	lead, trail := stance()
	return ToeOffInput{
		TrailingSide:    contact.Right,
		Leading:         lead.Pose,
		Trailing:        trail.Pose,
		LeadingPolygon:  lead.SupportPolygon(),
		TrailingPolygon: trail.SupportPolygon(),
		DesiredICP:      icp,
		CurrentICP:      icp,
		Toe:             trail.ToePoint(),
	}
}

func between(frac float64) r2.Point {
	lead, trail := stance()
	a, b := trail.Pose.Position2(), lead.Pose.Position2()
	return a.Add(b.Sub(a).Mul(frac))
}

func TestToeOffSafeLateInTransfer(t *testing.T) {
	g := NewWithT(t)
	insp := NewToeOffInspector(DefaultThresholds())

	rep := insp.Check(toeOffInput(between(0.75)))
	g.Expect(rep.Safe).To(BeTrue())
	g.Expect(rep.Stride).To(BeNumerically("~", math.Hypot(stepLength, stepWidth), 1e-12))
	g.Expect(math.IsNaN(rep.Margins.NormalizedFromOutsideEdge)).To(BeTrue())
	g.Expect(rep.Margins.Min()).To(BeNumerically(">=", 0))

	rep = insp.Check(toeOffInput(between(0)))
	g.Expect(rep.Safe).To(BeFalse())
	g.Expect(rep.Margins.ForwardFromHeel).To(BeNumerically("<", 0))
}

func TestToeOffMonotonic(t *testing.T) {
	g := NewWithT(t)
	insp := NewToeOffInspector(DefaultThresholds())

	// Moving the ICP from the trailing towards the leading foot only grows
	// the enabled margins, so once safe it stays safe.
	safe := false
	for i := 0; i <= 40; i++ {
		rep := insp.Check(toeOffInput(between(float64(i) / 40)))
		if safe {
			g.Expect(rep.Safe).To(BeTrue(), "step %d", i)
		}
		safe = rep.Safe
	}
	g.Expect(safe).To(BeTrue())

	base := insp.Check(toeOffInput(between(0.75))).Margins
	fields := []*float64{
		&base.ForwardFromHeel,
		&base.LateralInside,
		&base.DistanceFromToe,
		&base.FractionOfStrideFromToe,
		&base.NormalizedFromInsideEdge,
	}
	for i, f := range fields {
		for _, delta := range []float64{0.01, 0.1, 1} {
			saved := *f
			*f += delta
			g.Expect(base.Safe()).To(BeTrue(), "margin %d +%v", i, delta)
			*f = saved
		}
	}
}

func TestToeOffStricterThresholdNeverSafer(t *testing.T) {
	g := NewWithT(t)
	for _, frac := range []float64{0.2, 0.5, 0.75, 0.9} {
		loose := NewToeOffInspector(DefaultThresholds()).Check(toeOffInput(between(frac)))

		th := DefaultThresholds()
		th.MinNormalizedDistanceFromInsideEdge = 0.9
		th.DistanceForwardFromHeel = 0.2
		strict := NewToeOffInspector(th).Check(toeOffInput(between(frac)))

		if strict.Safe {
			g.Expect(loose.Safe).To(BeTrue())
		}
	}
}

func TestToeOffDisabledChecks(t *testing.T) {
	g := NewWithT(t)
	th := Thresholds{
		DistanceForwardFromHeel:              math.NaN(),
		MinLateralDistanceInside:             math.NaN(),
		MinDistanceFromToe:                   math.NaN(),
		MinFractionOfStrideFromToe:           math.NaN(),
		MinNormalizedDistanceFromOutsideEdge: math.NaN(),
		MinNormalizedDistanceFromInsideEdge:  math.NaN(),
		MaxNormalizedICPError:                math.NaN(),
	}
	rep := NewToeOffInspector(th).Check(toeOffInput(between(0)))
	g.Expect(rep.Safe).To(BeTrue())
	g.Expect(math.IsInf(rep.Margins.Min(), 1)).To(BeTrue())
}

func TestToeOffICPError(t *testing.T) {
	g := NewWithT(t)
	th := DefaultThresholds()
	th.MaxNormalizedICPError = 0.1

	in := toeOffInput(between(0.75))
	g.Expect(NewToeOffInspector(th).Check(in).Safe).To(BeTrue())

	in.DesiredICP = in.CurrentICP.Add(r2.Point{X: 0.1})
	rep := NewToeOffInspector(th).Check(in)
	g.Expect(rep.Safe).To(BeFalse())
	g.Expect(rep.Margins.NormalizedICPError).To(BeNumerically("<", 0))
}

func footAtOrigin() contact.Plane {
	p := contact.NewPlane("left_foot", contact.Left, geometry.Rectangle(footLength, footWidth), 0.7, 4)
	p.Pose = geometry.NewPose(0, 0, 0, 0)
	return p
}

func TestPartialFootholdLineContact(t *testing.T) {
	g := NewWithT(t)
	cfg := DefaultConfig()
	pf := NewPartialFoothold(cfg)
	plane := footAtOrigin()

	measured := r2.Point{X: 0.1, Y: 0}
	desired := r2.Point{X: 0.15, Y: 0}

	var res Result
	for i := 1; i < cfg.TicksToDetect; i++ {
		res = pf.Compute(&plane, measured, desired)
		g.Expect(res.Rotating).To(BeFalse())
		g.Expect(pf.Count()).To(Equal(i))
	}
	res = pf.Compute(&plane, measured, desired)
	g.Expect(res.Rotating).To(BeTrue())
	g.Expect(res.Active).To(Equal(plane.ToeVertices()))

	g.Expect(pf.Apply(&plane, res)).To(BeTrue())
	g.Expect(plane.NumActive()).To(Equal(2))
}

func TestPartialFootholdRequiresDesiredOutside(t *testing.T) {
	g := NewWithT(t)
	pf := NewPartialFoothold(DefaultConfig())
	plane := footAtOrigin()

	for i := 0; i < 20; i++ {
		res := pf.Compute(&plane, r2.Point{X: 0.1}, r2.Point{X: 0.05})
		g.Expect(res.Rotating).To(BeFalse())
	}
	g.Expect(pf.Count()).To(Equal(0))

	// CoP far from every edge.
	res := pf.Compute(&plane, r2.Point{}, r2.Point{X: 0.5})
	g.Expect(res.Edge).To(Equal(-1))
}

func TestPartialFootholdPointContact(t *testing.T) {
	g := NewWithT(t)
	cfg := DefaultConfig()
	cfg.MinActiveVertices = 1
	cfg.TicksToDetect = 2
	pf := NewPartialFoothold(cfg)
	plane := footAtOrigin()

	corner := r2.Point{X: 0.1, Y: 0.05}
	pf.Compute(&plane, corner, r2.Point{X: 0.2, Y: 0.1})
	res := pf.Compute(&plane, corner, r2.Point{X: 0.2, Y: 0.1})
	g.Expect(res.Rotating).To(BeTrue())
	g.Expect(res.Active).To(HaveLen(1))
	g.Expect(plane.Nominal.Vertex(res.Active[0])).To(Equal(corner))
}

func TestPartialFootholdReset(t *testing.T) {
	g := NewWithT(t)
	cfg := DefaultConfig()
	cfg.Enabled = false
	pf := NewPartialFoothold(cfg)
	plane := footAtOrigin()

	res := pf.Compute(&plane, r2.Point{X: 0.1}, r2.Point{X: 0.2})
	g.Expect(res.Rotating).To(BeFalse())
	g.Expect(pf.Apply(&plane, res)).To(BeFalse())
	g.Expect(plane.NumActive()).To(Equal(4))
}
