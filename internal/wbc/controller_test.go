package wbc

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"
	"github.com/san-kum/stride/internal/command"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/dynamics"
	"github.com/san-kum/stride/internal/models"
	"github.com/san-kum/stride/internal/qp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

func stance(b *models.CartesianBiped, comAcc []float64) (*command.List, []contact.Plane) {
	l := command.NewList(8)
	zero := make([]float64, 6)
	var planes []contact.Plane
	for _, s := range contact.Sides {
		l.Add(command.NewSpatialAcceleration(models.FootBody(s), zero, nil, 0, command.Hard))
		planes = append(planes, b.ContactPlane(s, 0.7, 4))
	}
	l.Add(command.NewCenterOfMass(comAcc, 10))
	l.Add(command.NewSpatialAcceleration(models.PelvisBody, zero, []bool{false, false, false, true, true, true}, 0, 1))
	return l, planes
}

func TestTwoFootStance(t *testing.T) {
	g := NewWithT(t)
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	c := NewController(DefaultConfig(), b, b.Limits(), nil, nil)
	l, planes := stance(b, []float64{0, 0, 0})

	out, err := c.Compute(context.Background(), l, planes)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(out.Solved).To(BeTrue())
	for _, a := range out.Accelerations {
		g.Expect(a).To(BeNumerically("~", 0, 1e-3))
	}
	total := r3.Vector{}
	for _, f := range out.ContactForces {
		total = total.Add(f)
	}
	weight := b.Mass() * dynamics.Gravity
	g.Expect(total.Z).To(BeNumerically("~", weight, 0.5))
	g.Expect(total.X).To(BeNumerically("~", 0, 0.5))
	g.Expect(total.Y).To(BeNumerically("~", 0, 0.5))
	g.Expect(out.ContactForces).To(HaveLen(2))
	for i, s := range contact.Sides {
		g.Expect(out.ContactForces[models.FootBody(s)].Z).To(BeNumerically("~", weight/2, 1))
		cop, ok := out.CentersOfPressure[models.FootBody(s)]
		g.Expect(ok).To(BeTrue())
		g.Expect(planes[i].SupportPolygon().Contains(cop, 1e-6)).To(BeTrue())
	}
	g.Expect(out.Torques).To(HaveLen(len(b.Joints())))
}

func TestHardConstraintsSatisfied(t *testing.T) {
	g := NewWithT(t)
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	cfg := DefaultConfig()
	limits := b.Limits()
	c := NewController(cfg, b, limits, nil, nil)
	l, planes := stance(b, []float64{0.5, -0.2, 0.3})

	out, err := c.Compute(context.Background(), l, planes)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(out.Solved).To(BeTrue())

	J := mat.NewDense(6, b.NumDoF(), nil)
	qdd := mat.NewVecDense(b.NumDoF(), out.Accelerations)
	for _, s := range contact.Sides {
		g.Expect(b.BodyJacobian(models.FootBody(s), J)).To(Succeed())
		var acc mat.VecDense
		acc.MulVec(J, qdd)
		for i := 0; i < 6; i++ {
			g.Expect(acc.AtVec(i)).To(BeNumerically("~", 0, 1e-6))
		}
	}
	for _, r := range out.Rho {
		g.Expect(r).To(BeNumerically(">=", -cfg.Tolerance))
	}
	for j, tau := range out.Torques {
		g.Expect(tau).To(BeNumerically("<=", limits[j].Torque+cfg.Tolerance))
		g.Expect(tau).To(BeNumerically(">=", -limits[j].Torque-cfg.Tolerance))
	}

	Jc := mat.NewDense(3, b.NumDoF(), nil)
	b.CoMJacobian(Jc)
	var comAcc mat.VecDense
	comAcc.MulVec(Jc, qdd)
	g.Expect(comAcc.AtVec(0)).To(BeNumerically(">", 0.3))
}

type flakySolver struct {
	inner qp.Solver
	fail  bool
}

func (s *flakySolver) Solve(ctx context.Context, p *qp.Problem) (*qp.Solution, error) {
	if s.fail {
		return nil, qp.ErrInfeasible
	}
	return s.inner.Solve(ctx, p)
}

func TestFailureBudget(t *testing.T) {
	g := NewWithT(t)
	core, logs := observer.New(zap.WarnLevel)
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	solver := &flakySolver{inner: qp.NewActiveSet(qp.DefaultConfig())}
	c := NewController(DefaultConfig(), b, b.Limits(), solver, zap.New(core))
	l, planes := stance(b, []float64{0, 0, 0})
	ctx := context.Background()

	good, err := c.Compute(ctx, l, planes)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(good.Solved).To(BeTrue())

	solver.fail = true
	for i := 1; i <= 2; i++ {
		out, err := c.Compute(ctx, l, planes)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(out.Solved).To(BeFalse())
		g.Expect(out.Torques).To(Equal(good.Torques))
		var se *SolveError
		g.Expect(errors.As(out.Err, &se)).To(BeTrue())
		g.Expect(errors.Is(out.Err, qp.ErrInfeasible)).To(BeTrue())
		g.Expect(c.Failures()).To(Equal(i))
	}

	_, err = c.Compute(ctx, l, planes)
	g.Expect(errors.Is(err, ErrControllerFailure)).To(BeTrue())
	g.Expect(errors.Is(err, qp.ErrInfeasible)).To(BeTrue())

	_, err = c.Compute(ctx, l, planes)
	g.Expect(err).NotTo(HaveOccurred(), "raised once per streak")
	g.Expect(logs.FilterMessage("solve failed, holding last output").Len()).To(Equal(4))

	solver.fail = false
	_, err = c.Compute(ctx, l, planes)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.Failures()).To(Equal(0))

	solver.fail = true
	var fatal int
	for i := 0; i < 3; i++ {
		if _, err := c.Compute(ctx, l, planes); errors.Is(err, ErrControllerFailure) {
			fatal++
		}
	}
	g.Expect(fatal).To(Equal(1))
}

func TestFirstFailureHoldsZeroTorque(t *testing.T) {
	g := NewWithT(t)
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	c := NewController(DefaultConfig(), b, b.Limits(), &flakySolver{fail: true}, nil)
	l, planes := stance(b, []float64{0, 0, 0})

	out, err := c.Compute(context.Background(), l, planes)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(out.Solved).To(BeFalse())
	g.Expect(out.Torques).To(Equal(make([]float64, len(b.Joints()))))
}

type zeroSolver struct{}

func (zeroSolver) Solve(_ context.Context, p *qp.Problem) (*qp.Solution, error) {
	return &qp.Solution{X: make([]float64, p.N)}, nil
}

func TestViolatedSolutionIsFatal(t *testing.T) {
	g := NewWithT(t)
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	c := NewController(DefaultConfig(), b, b.Limits(), zeroSolver{}, nil)
	l, planes := stance(b, []float64{0, 0, 0})

	out, err := c.Compute(context.Background(), l, planes)
	g.Expect(errors.Is(err, ErrControllerFailure)).To(BeTrue())
	g.Expect(errors.Is(err, ErrHardConstraintViolation)).To(BeTrue())
	g.Expect(errors.Is(err, qp.ErrViolation)).To(BeTrue())
	g.Expect(out.Solved).To(BeFalse())
}

func TestUnknownJointCommandFails(t *testing.T) {
	g := NewWithT(t)
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	c := NewController(DefaultConfig(), b, b.Limits(), nil, nil)
	l, planes := stance(b, []float64{0, 0, 0})
	l.Add(command.NewJointAcceleration("tail", 0, 1))

	out, err := c.Compute(context.Background(), l, planes)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(out.Solved).To(BeFalse())
	g.Expect(c.Failures()).To(Equal(1))
}

func TestBrakingAcceleration(t *testing.T) {
	g := NewWithT(t)
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	cfg := DefaultConfig()
	c := NewController(cfg, b, b.Limits(), nil, nil)
	lim := dynamics.JointLimit{Lower: -1, Upper: -0.4, Velocity: 3, Torque: 1500}

	_, ok := c.braking(lim, -0.9, 0)
	g.Expect(ok).To(BeFalse(), "well inside the range")

	a, ok := c.braking(lim, -0.998, -0.55)
	g.Expect(ok).To(BeTrue())
	g.Expect(a).To(BeNumerically("~", 20.4, 1e-9))

	a, ok = c.braking(lim, -1.02, 0)
	g.Expect(ok).To(BeTrue())
	g.Expect(a).To(BeNumerically(">", 0), "past the limit only has to come back")

	a, ok = c.braking(lim, -0.41, 3)
	g.Expect(ok).To(BeTrue())
	g.Expect(a).To(Equal(-cfg.LimitDeceleration))

	c.cfg.LimitWeight = 0
	_, ok = c.braking(lim, -0.998, -0.55)
	g.Expect(ok).To(BeFalse())
}

func TestSwingLegAtPositionLimit(t *testing.T) {
	g := NewWithT(t)
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	j := -1
	for i, name := range b.Joints() {
		if name == "left_hip_z" {
			j = i
		}
	}
	g.Expect(j).NotTo(Equal(-1))

	x := b.Standing()
	n := b.NumDoF()
	x[dynamics.FloatingBaseDoF+j] = -0.998
	x[n+dynamics.FloatingBaseDoF+j] = -0.55
	b.SetState(x)

	l := command.NewList(8)
	zero := make([]float64, 6)
	l.Add(command.NewSpatialAcceleration(models.FootBody(contact.Right), zero, nil, 0, command.Hard))
	l.Add(command.NewCenterOfMass([]float64{0, 0, 0}, 10))
	l.Add(command.NewSpatialAcceleration(models.PelvisBody, zero, []bool{false, false, false, true, true, true}, 0, 1))
	planes := []contact.Plane{b.ContactPlane(contact.Right, 0.7, 4)}

	c := NewController(DefaultConfig(), b, b.Limits(), nil, nil)
	out, err := c.Compute(context.Background(), l, planes)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(out.Solved).To(BeTrue())
	g.Expect(out.Accelerations[dynamics.FloatingBaseDoF+j]).To(BeNumerically(">", 0))
}

// slackSolver solves the problem and then appends two rows the answer
// misses: an inequality by 0.01 and an equality by less than the tolerance.
type slackSolver struct{ inner qp.Solver }

func (s slackSolver) Solve(ctx context.Context, p *qp.Problem) (*qp.Solution, error) {
	sol, err := s.inner.Solve(ctx, p)
	if err != nil {
		return nil, err
	}
	row := make([]float64, p.N)
	row[0] = 1
	p.SetTag("slack")
	if err := p.AddInequality(row, sol.X[0]-0.01); err != nil {
		return nil, err
	}
	if err := p.AddEquality(row, sol.X[0]+5e-4); err != nil {
		return nil, err
	}
	return sol, nil
}

func TestInequalitySlackIsAWarning(t *testing.T) {
	g := NewWithT(t)
	core, logs := observer.New(zap.WarnLevel)
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	c := NewController(DefaultConfig(), b, b.Limits(), slackSolver{qp.NewActiveSet(qp.DefaultConfig())}, zap.New(core))
	l, planes := stance(b, []float64{0, 0, 0})

	out, err := c.Compute(context.Background(), l, planes)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(out.Solved).To(BeTrue())
	g.Expect(c.Failures()).To(BeZero())

	warned := logs.FilterMessage("inequality constraints violated").All()
	g.Expect(warned).To(HaveLen(1))
	g.Expect(warned[0].ContextMap()).To(HaveKeyWithValue("first", "slack"))
	g.Expect(logs.FilterMessage("solution violates equality constraints").Len()).To(BeZero())
}
