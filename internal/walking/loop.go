package walking

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/plan"
	"github.com/san-kum/stride/internal/sensors"
	"github.com/san-kum/stride/internal/sim"
)

// Loop closes the controller around a simulated plant with ideal
// actuation. Each step publishes the plant state as the measured sample,
// closes a foot switch when the sole is within ContactHeight of the ground
// and returns the whole-body accelerations as the plant input.
type Loop struct {
	ctrl          *Controller
	robot         Robot
	contactHeight float64
	cop           [2]r2.Point
	hasCoP        [2]bool
	onTick        []func(TickResult)
}

func NewLoop(ctrl *Controller, robot Robot, contactHeight float64) *Loop {
	return &Loop{ctrl: ctrl, robot: robot, contactHeight: contactHeight}
}

func (l *Loop) Controller() *Controller { return l.ctrl }

// OnTick registers fn to receive every tick result.
func (l *Loop) OnTick(fn func(TickResult)) { l.onTick = append(l.onTick, fn) }

// Walk publishes a new footstep plan.
func (l *Loop) Walk(steps []plan.Footstep) {
	l.ctrl.Sources().Steps.Publish(sensors.Steps(steps))
}

func (l *Loop) Compute(ctx context.Context, x sim.State, t float64) (sim.Control, error) {
	n := len(x) / 2
	src := l.ctrl.Sources()
	src.Joints.Publish(sensors.JointState{
		Q: append([]float64(nil), x[:n]...),
		V: append([]float64(nil), x[n:]...),
	})

	l.robot.SetState(x)
	var feet sensors.Feet
	for _, s := range contact.Sides {
		pose, err := l.robot.BodyPose(l.ctrl.Foot(s).Plane().Body)
		if err != nil {
			continue
		}
		feet[s].Switch = pose.Position.Z <= l.contactHeight
		feet[s].CoP = pose.Position2()
		if l.hasCoP[s] {
			feet[s].CoP = l.cop[s]
		}
	}
	src.Feet.Publish(feet)

	res, err := l.ctrl.Tick(ctx, t)
	for _, s := range contact.Sides {
		cop, ok := res.WBC.CentersOfPressure[l.ctrl.Foot(s).Plane().Body]
		l.cop[s], l.hasCoP[s] = cop, ok
	}
	for _, fn := range l.onTick {
		fn(res)
	}
	if err != nil {
		return nil, err
	}
	return sim.Control(append([]float64(nil), res.WBC.Accelerations...)), nil
}
