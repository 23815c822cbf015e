package footstate_test

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/stride/internal/command"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/feedback"
	"github.com/san-kum/stride/internal/foothold"
	"github.com/san-kum/stride/internal/footstate"
	"github.com/san-kum/stride/internal/geometry"
	"github.com/san-kum/stride/internal/plan"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newPlane() contact.Plane {
	p := contact.NewPlane("right_foot", contact.Right, geometry.Rectangle(0.2, 0.1), 0.7, 4)
	p.Pose = geometry.NewPose(0, -0.1, 0, 0)
	return p
}

func standingInput(t float64) footstate.Input {
	return footstate.Input{
		Time:        t,
		FootSwitch:  true,
		Foot:        feedback.Measured{Position: r3.Vector{Y: -0.1}},
		FootPose:    geometry.NewPose(0, -0.1, 0, 0),
		MeasuredCoP: r2.Point{Y: -0.1},
		DesiredCoP:  r2.Point{Y: -0.1},
	}
}

// activeVertices counts the loaded sole vertices of the machine's plane.
func activeVertices(m *footstate.Machine) int {
	p := m.Plane()
	return p.NumActive()
}

var step = plan.Footstep{
	Side:             contact.Right,
	Pose:             geometry.NewPose(0.3, -0.1, 0, 0),
	SwingDuration:    0.5,
	TransferDuration: 0.2,
}

var _ = Describe("Machine", func() {
	var (
		m    *footstate.Machine
		out  *command.List
		logs *observer.ObservedLogs
	)

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zap.InfoLevel)
		m = footstate.NewMachine(footstate.DefaultConfig(), newPlane(), zap.New(core))
		out = command.NewList(4)
	})

	It("starts in full support holding the foot", func() {
		st := m.Update(standingInput(0), out)
		Expect(st.Mode).To(Equal(footstate.FullSupport))
		Expect(st.Changed).To(BeFalse())
		Expect(out.Len()).To(Equal(1))
		c := out.At(0)
		Expect(c.Kind).To(Equal(command.SpatialAcceleration))
		Expect(c.IsHard()).To(BeTrue())
		Expect(c.Target).To(Equal("right_foot"))
		Expect(activeVertices(m)).To(Equal(4))
	})

	Describe("toe-off", func() {
		It("is accepted only in full support", func() {
			Expect(m.RequestToeOff()).To(BeTrue())
			st := m.Update(standingInput(0), out)
			Expect(st.Mode).To(Equal(footstate.ToeOff))
			Expect(st.Changed).To(BeTrue())
			Expect(m.RequestToeOff()).To(BeFalse())
		})

		It("loads only the toe and frees the sole pitch", func() {
			m.RequestToeOff()
			m.Update(standingInput(0), out)
			p := m.Plane()
			Expect(p.NumActive()).To(Equal(2))
			for _, v := range p.ActiveLocal() {
				Expect(v.X).To(BeNumerically("~", 0.1, 1e-9))
			}
			c := out.At(0)
			Expect(c.IsHard()).To(BeTrue())
			Expect(c.Selected(4)).To(BeFalse())
			for _, a := range []int{0, 1, 2, 3, 5} {
				Expect(c.Selected(a)).To(BeTrue())
			}
		})

		It("is not entered without a request", func() {
			for i := 0; i < 10; i++ {
				Expect(m.Update(standingInput(float64(i)*0.004), out).Mode).To(Equal(footstate.FullSupport))
			}
		})
	})

	Describe("swing", func() {
		BeforeEach(func() {
			Expect(m.RequestSwing(step, 0.1)).To(BeTrue())
		})

		It("waits for the scheduled start", func() {
			Expect(m.Update(standingInput(0.05), out).Mode).To(Equal(footstate.FullSupport))
			st := m.Update(standingInput(0.1), out)
			Expect(st.Mode).To(Equal(footstate.Swing))
			Expect(m.Plane().InContact).To(BeFalse())
			Expect(activeVertices(m)).To(BeZero())
		})

		It("emits a soft swing command", func() {
			out.Reset()
			m.Update(standingInput(0.1), out)
			Expect(out.Len()).To(Equal(1))
			c := out.At(0)
			Expect(c.IsHard()).To(BeFalse())
			Expect(c.Weight).To(Equal(footstate.DefaultConfig().SwingWeight))
			Expect(c.Desired).To(HaveLen(6))
		})

		It("ignores an early foot switch", func() {
			m.Update(standingInput(0.1), out)
			Expect(m.Update(standingInput(0.2), out).Mode).To(Equal(footstate.Swing))
		})

		It("loads on touchdown and reaches full support", func() {
			m.Update(standingInput(0.1), out)
			in := standingInput(0.1 + 0.45)
			in.FootPose = step.Pose
			st := m.Update(in, out)
			Expect(st.Mode).To(Equal(footstate.Loading))
			Expect(st.LateTouchdown).To(BeFalse())
			Expect(m.Plane().InContact).To(BeTrue())
			Expect(m.Plane().Pose.Position.X).To(BeNumerically("~", 0.3, 1e-9))

			in.Time += footstate.DefaultConfig().LoadingDuration
			Expect(m.Update(in, out).Mode).To(Equal(footstate.FullSupport))
			Expect(m.LateTouchdowns()).To(BeZero())
		})

		It("forces loading after the touchdown timeout and warns", func() {
			m.Update(standingInput(0.1), out)
			in := standingInput(0.3)
			in.FootSwitch = false
			Expect(m.Update(in, out).Mode).To(Equal(footstate.Swing))

			in.Time = 0.1 + step.SwingDuration + footstate.DefaultConfig().TouchdownTimeout + 0.01
			st := m.Update(in, out)
			Expect(st.Mode).To(Equal(footstate.Loading))
			Expect(st.LateTouchdown).To(BeTrue())
			Expect(m.LateTouchdowns()).To(Equal(1))

			late := logs.FilterMessage("late touchdown")
			Expect(late.Len()).To(Equal(1))
			Expect(late.All()[0].Level).To(Equal(zapcore.WarnLevel))
			Expect(late.All()[0].ContextMap()).To(HaveKeyWithValue("side", "right"))
		})
	})

	Describe("partial foothold", func() {
		It("shrinks the support to the edge the foot rolls on", func() {
			cfg := footstate.DefaultConfig()
			in := standingInput(0)
			in.MeasuredCoP = r2.Point{X: 0.1, Y: -0.1}
			in.DesiredCoP = r2.Point{X: 0.2, Y: -0.1}
			var rotating bool
			for i := 0; i <= cfg.Foothold.TicksToDetect; i++ {
				in.Time = float64(i) * 0.004
				if m.Update(in, out).Rotating {
					rotating = true
				}
			}
			Expect(rotating).To(BeTrue())
			Expect(activeVertices(m)).To(Equal(2))
		})

		It("stays whole when disabled", func() {
			cfg := footstate.DefaultConfig()
			cfg.Foothold = foothold.Config{}
			m = footstate.NewMachine(cfg, newPlane(), nil)
			in := standingInput(0)
			in.MeasuredCoP = r2.Point{X: 0.1, Y: -0.1}
			in.DesiredCoP = r2.Point{X: 0.2, Y: -0.1}
			for i := 0; i < 20; i++ {
				m.Update(in, out)
			}
			Expect(activeVertices(m)).To(Equal(4))
		})
	})
})

var _ = Describe("SwingReference", func() {
	p0 := r3.Vector{X: 0, Y: -0.1}
	p1 := r3.Vector{X: 0.3, Y: -0.1}

	It("starts and ends at rest on the footholds", func() {
		start := footstate.SwingReference(p0, p1, 0.08, 0.5, 0)
		Expect(start.Position.Sub(p0).Norm()).To(BeNumerically("<", 1e-12))
		Expect(start.Velocity.X).To(BeNumerically("~", 0, 1e-12))

		end := footstate.SwingReference(p0, p1, 0.08, 0.5, 0.5)
		Expect(end.Position).To(Equal(p1))
		Expect(end.Velocity).To(Equal(r3.Vector{}))
	})

	It("clears the apex height at mid swing", func() {
		mid := footstate.SwingReference(p0, p1, 0.08, 0.5, 0.25)
		Expect(mid.Position.Z).To(BeNumerically("~", 0.08, 1e-12))
		Expect(mid.Position.X).To(BeNumerically("~", 0.15, 1e-12))
		Expect(mid.Velocity.Z).To(BeNumerically("~", 0, 1e-12))
	})
})
