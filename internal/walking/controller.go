// Package walking runs one control tick of the biped: it reads the latest
// sensor samples, steps both foot state machines, refreshes the centroidal
// plan when due and solves the whole-body QP for the actuator torques.
//
// The tick is a strict sequential pass owned by one goroutine. Producers
// publish samples through [Controller.Sources] from anywhere.
package walking

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/stride/internal/command"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/dynamics"
	"github.com/san-kum/stride/internal/foothold"
	"github.com/san-kum/stride/internal/footstate"
	"github.com/san-kum/stride/internal/metrics"
	"github.com/san-kum/stride/internal/mpc"
	"github.com/san-kum/stride/internal/plan"
	"github.com/san-kum/stride/internal/qp"
	"github.com/san-kum/stride/internal/sensors"
	"github.com/san-kum/stride/internal/sim"
	"github.com/san-kum/stride/internal/wbc"
	"go.uber.org/zap"
)

var ErrNoState = errors.New("walking: no joint state received")

// Robot is the model the controller keeps in sync with the measured state.
type Robot interface {
	dynamics.Model
	SetState(x sim.State)
}

// Sink receives the torques of every tick. Send must not block.
type Sink interface {
	Send(tick uint64, torques []float64)
}

// Supervisor owns the robot's mode outside this controller. It is told at
// most once that the controller failed.
type Supervisor interface {
	ControllerFailed(err error)
}

// Deps are the optional collaborators of a Controller.
type Deps struct {
	Sink       Sink
	Supervisor Supervisor
	Logger     *zap.Logger
	Registry   prometheus.Registerer
	WBCSolver  qp.Solver
	MPCSolver  qp.Solver
}

// Sources are the mailboxes the controller reads each tick.
type Sources struct {
	Joints *sensors.Latest[sensors.JointState]
	Feet   *sensors.Latest[sensors.Feet]
	Steps  *sensors.Latest[sensors.Steps]
}

type TickResult struct {
	Tick       uint64
	Time       float64
	Phase      plan.Phase
	Modes      [2]footstate.Mode
	Replanned  bool
	ToeOff     *foothold.ToeOffReport
	CoM        r3.Vector
	ICP        r3.Vector
	DesiredICP r3.Vector
	ICPError   float64
	Stale      int
	Late       bool
	WBC        wbc.Output
}

// Controller is the tick pipeline. It is not safe for concurrent use.
type Controller struct {
	cfg        Config
	robot      Robot
	feet       [2]*footstate.Machine
	inspector  *foothold.ToeOffInspector
	generator  *plan.Generator
	planner    *mpc.Planner
	wbc        *wbc.Controller
	contacts   contact.Set
	queue      *plan.Queue
	sources    Sources
	sink       Sink
	supervisor Supervisor
	metrics    *metrics.Collectors
	logger     *zap.Logger

	list  *command.List
	state sim.State
	tick  uint64

	phase      plan.Phase
	phaseStart float64
	initial    bool
	active     *plan.Footstep
	replan     bool

	foot      sensors.Feet
	lastWBC   wbc.Output
	signalled bool
}

// NewController starts standing on feet. The MPC mass and nominal height
// are taken from the robot.
func NewController(cfg Config, robot Robot, limits dynamics.Limits, feet [2]contact.Plane, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ground := 0.5 * (feet[contact.Left].Pose.Position.Z + feet[contact.Right].Pose.Position.Z)
	cfg.MPC.Mass = robot.Mass()
	cfg.MPC.NominalHeight = robot.CoM().Z - ground
	cfg.WBC.Dt = cfg.Dt

	c := &Controller{
		cfg:        cfg,
		robot:      robot,
		inspector:  foothold.NewToeOffInspector(cfg.ToeOff),
		generator:  plan.NewGenerator(cfg.Generator),
		planner:    mpc.NewPlanner(cfg.MPC, deps.MPCSolver, logger),
		wbc:        wbc.NewController(cfg.WBC, robot, limits, deps.WBCSolver, logger),
		queue:      plan.NewQueue(),
		sink:       deps.Sink,
		supervisor: deps.Supervisor,
		metrics:    metrics.NewCollectors(deps.Registry),
		logger:     logger.Named("walking"),
		list:       command.NewList(16),
		phase:      plan.Standing,
		replan:     true,
		sources: Sources{
			Joints: sensors.NewLatest[sensors.JointState]("joints"),
			Feet:   sensors.NewLatest[sensors.Feet]("feet"),
			Steps:  sensors.NewLatest[sensors.Steps]("steps"),
		},
	}
	for _, s := range contact.Sides {
		c.feet[s] = footstate.NewMachine(cfg.Foot, feet[s], logger)
		c.foot[s] = sensors.FootContact{Switch: true, CoP: feet[s].Pose.Position2()}
	}
	c.contacts.Commit(c.planes())
	return c
}

func (c *Controller) Config() Config            { return c.cfg }
func (c *Controller) Sources() Sources          { return c.sources }
func (c *Controller) Phase() plan.Phase         { return c.phase }
func (c *Controller) Plan() *mpc.Output         { return c.planner.Latest() }
func (c *Controller) Contacts() []contact.Plane { return c.contacts.Snapshot() }

// Foot returns the state machine of one foot for inspection.
func (c *Controller) Foot(s contact.Side) *footstate.Machine { return c.feet[s] }

// Remaining returns the footsteps not yet started.
func (c *Controller) Remaining() []plan.Footstep { return c.queue.Remaining() }

func (c *Controller) planes() []contact.Plane {
	out := make([]contact.Plane, 0, 2)
	for _, m := range c.feet {
		out = append(out, m.Plane())
	}
	return out
}

// Tick runs one control cycle at time now. It returns ErrNoState until the
// first joint sample arrives. Any other error is the fatal controller
// failure, which is also reported to the supervisor the first time it
// happens.
func (c *Controller) Tick(ctx context.Context, now float64) (TickResult, error) {
	c.tick++
	res := TickResult{Tick: c.tick, Time: now}

	if err := c.readSamples(&res); err != nil {
		return res, err
	}
	c.advancePhase(now, &res)

	com := c.robot.CoM()
	comVel := c.robot.CoMVelocity()
	omega := c.cfg.MPC.Omega()
	res.CoM = com
	res.ICP = com.Add(comVel.Mul(1 / omega))

	c.list.Reset()
	for _, s := range contact.Sides {
		st := c.feet[s].Update(c.footInput(s, now), c.list)
		res.Modes[s] = st.Mode
		if st.LateTouchdown {
			res.Late = true
			c.metrics.LateTouchdown(s.String())
		}
	}
	planes := c.planes()
	c.contacts.Commit(planes)

	stageCtx, cancel := c.stage(ctx)
	res.Replanned = c.maybeReplan(stageCtx, now, com, comVel)
	cancel()
	c.centroidalCommands(now, com, &res)
	c.list.Resolve()

	stageCtx, cancel = c.stage(ctx)
	out, err := c.wbc.Compute(stageCtx, c.list, loaded(planes))
	cancel()
	res.WBC = out
	if out.Solved {
		c.lastWBC = out
		c.metrics.Solved("wbc", out.Iterations)
	} else {
		c.metrics.SolveFailure("wbc")
	}
	if c.sink != nil {
		c.sink.Send(c.tick, out.Torques)
	}
	c.metrics.Tick(res.ICPError)
	if err != nil {
		c.signal(err)
		return res, err
	}
	return res, nil
}

// stage derives the deadline of one solver stage. A stage that runs out of
// time fails like any other solve and the held output goes out.
func (c *Controller) stage(ctx context.Context) (context.Context, context.CancelFunc) {
	budget := c.cfg.StageBudget
	if budget <= 0 {
		budget = c.cfg.Dt
	}
	return context.WithTimeout(ctx, time.Duration(budget*float64(time.Second)))
}

func (c *Controller) signal(err error) {
	if c.signalled {
		return
	}
	c.signalled = true
	c.metrics.Fatal()
	c.logger.Error("controller failure", zap.Uint64("tick", c.tick), zap.Error(err))
	if c.supervisor != nil {
		c.supervisor.ControllerFailed(err)
	}
}

func loaded(planes []contact.Plane) []contact.Plane {
	out := make([]contact.Plane, 0, len(planes))
	for _, p := range planes {
		if p.InContact {
			out = append(out, p)
		}
	}
	return out
}

func (c *Controller) readSamples(res *TickResult) error {
	js, fresh, ok := c.sources.Joints.Read()
	if !ok {
		return ErrNoState
	}
	c.stale(c.sources.Joints.Name(), fresh, c.sources.Joints.Streak(), res)
	c.state = append(append(c.state[:0], js.Q...), js.V...)
	c.robot.SetState(c.state)

	feet, fresh, ok := c.sources.Feet.Read()
	if ok {
		c.foot = feet
		c.stale(c.sources.Feet.Name(), fresh, c.sources.Feet.Streak(), res)
	}

	// A new plan replaces the steps that have not started.
	if steps, fresh, _ := c.sources.Steps.Read(); fresh {
		c.queue.Clear()
		for _, s := range steps {
			c.queue.Push(s)
		}
		c.replan = true
		c.logger.Debug("footstep plan received", zap.Int("steps", len(steps)))
	}
	return nil
}

func (c *Controller) stale(source string, fresh bool, streak int, res *TickResult) {
	if fresh {
		return
	}
	res.Stale++
	c.metrics.Stale(source)
	if streak == c.cfg.StaleWarnTicks {
		c.logger.Warn("sensor stale", zap.String("source", source), zap.Int("ticks", streak))
	}
}

func (c *Controller) setPhase(p plan.Phase, now float64) {
	c.logger.Debug("phase change",
		zap.Stringer("from", c.phase),
		zap.Stringer("to", p),
		zap.Float64("t", now))
	c.phase = p
	c.phaseStart = now
	c.replan = true
}

// advancePhase moves the walking timeline. Touchdown is read from the foot
// modes of the previous tick.
func (c *Controller) advancePhase(now float64, res *TickResult) {
	switch c.phase {
	case plan.Standing:
		if c.queue.Len() > 0 {
			c.initial = true
			c.setPhase(plan.Transfer, now)
		}
	case plan.Transfer:
		next, ok := c.queue.Peek()
		if !ok {
			if now-c.phaseStart >= c.cfg.Generator.FinalTransferDuration {
				c.setPhase(plan.Standing, now)
			}
			break
		}
		elapsed := now - c.phaseStart
		if elapsed < next.TransferDuration {
			if elapsed >= next.TransferDuration-c.cfg.ToeOffLeadTime {
				c.checkToeOff(next, res)
			}
		} else if c.feet[next.Side].RequestSwing(next, now) {
			// The step leaves the queue only once its foot accepts it.
			c.queue.Pop()
			c.active = &next
			c.initial = false
			c.setPhase(plan.SingleSupport, now)
		} else {
			c.logger.Debug("swing deferred",
				zap.Stringer("side", next.Side),
				zap.Stringer("mode", c.feet[next.Side].Mode()),
				zap.Float64("t", now))
		}
	case plan.SingleSupport:
		if m := c.feet[c.active.Side]; m.Mode() != footstate.Swing && now > c.phaseStart {
			c.active = nil
			c.setPhase(plan.Transfer, now)
		}
	}
	res.Phase = c.phase
}

// checkToeOff asks the trailing foot to roll onto its toes when the capture
// point allows it.
func (c *Controller) checkToeOff(next plan.Footstep, res *TickResult) {
	trailing := c.feet[next.Side]
	if trailing.Mode() != footstate.FullSupport {
		return
	}
	lead := c.feet[next.Side.Opposite()].Plane()
	trail := trailing.Plane()
	in := foothold.ToeOffInput{
		TrailingSide:    next.Side,
		Leading:         lead.Pose,
		Trailing:        trail.Pose,
		LeadingPolygon:  lead.SupportPolygon(),
		TrailingPolygon: trail.SupportPolygon(),
		Toe:             trail.ToePoint(),
	}
	omega := c.cfg.MPC.Omega()
	icp := c.robot.CoM().Add(c.robot.CoMVelocity().Mul(1 / omega))
	in.CurrentICP = r2.Point{X: icp.X, Y: icp.Y}
	in.DesiredICP = in.CurrentICP
	if out := c.planner.Latest(); out != nil {
		d := out.Sample(res.Time).ICP
		in.DesiredICP = r2.Point{X: d.X, Y: d.Y}
	}
	rep := c.inspector.Check(in)
	res.ToeOff = &rep
	c.metrics.ToeOff(rep.Safe)
	if rep.Safe && trailing.RequestToeOff() {
		c.logger.Debug("toe-off requested",
			zap.Stringer("side", next.Side),
			zap.Float64("min_margin", rep.Margins.Min()))
	}
}

func (c *Controller) footInput(s contact.Side, now float64) footstate.Input {
	m := c.feet[s]
	body := m.Plane().Body
	in := footstate.Input{
		Time:        now,
		FootSwitch:  c.foot[s].Switch,
		MeasuredCoP: c.foot[s].CoP,
		DesiredCoP:  c.foot[s].CoP,
	}
	if cop, ok := c.lastWBC.CentersOfPressure[body]; ok {
		in.DesiredCoP = cop
	}
	if pose, err := c.robot.BodyPose(body); err == nil {
		in.FootPose = pose
		in.Foot.Position = pose.Position
	}
	if lin, _, err := c.robot.BodyVelocity(body); err == nil {
		in.Foot.Velocity = lin
	}
	return in
}

func (c *Controller) maybeReplan(ctx context.Context, now float64, com, comVel r3.Vector) bool {
	if !c.replan && !c.planner.ShouldReplan(c.tick-1) && c.planner.Latest() != nil {
		return false
	}
	c.replan = false
	st := plan.State{
		Time:       now,
		Phase:      c.phase,
		PhaseStart: c.phaseStart,
		Initial:    c.initial,
		Active:     c.active,
	}
	for _, s := range contact.Sides {
		st.Feet[s] = c.feet[s].Plane()
	}
	segs, err := c.generator.Generate(st, c.queue.Remaining())
	if err == nil {
		_, err = c.planner.Plan(ctx, segs, com, comVel, now-segs[0].Start)
	}
	if err != nil {
		c.metrics.SolveFailure("mpc")
		c.logger.Warn("replan failed, keeping previous plan", zap.Uint64("tick", c.tick), zap.Error(err))
		return false
	}
	c.metrics.Replanned()
	c.metrics.Solved("mpc", c.planner.Latest().Iterations)
	return true
}

// centroidalCommands adds the CoM and pelvis objectives. The CoM follows the
// plan through capture point feedback.
func (c *Controller) centroidalCommands(now float64, com r3.Vector, res *TickResult) {
	acc := r3.Vector{}
	res.DesiredICP = res.ICP
	if out := c.planner.Latest(); out != nil {
		s := out.Sample(now)
		res.DesiredICP = s.ICP
		acc = c.cfg.ICP.CoMAcceleration(com, s.VRP, s.ICP, res.ICP, out.Omega)
	}
	d := res.ICP.Sub(res.DesiredICP)
	res.ICPError = math.Hypot(d.X, d.Y)
	c.list.Add(command.NewCenterOfMass([]float64{acc.X, acc.Y, acc.Z}, c.cfg.CoMWeight))

	pose, err := c.robot.BodyPose(c.cfg.PelvisBody)
	if err != nil {
		return
	}
	_, rate, _ := c.robot.BodyVelocity(c.cfg.PelvisBody)
	heading := r2.Point{}
	for _, m := range c.feet {
		heading = heading.Add(m.Plane().Pose.Heading())
	}
	yawErr := wrap(math.Atan2(heading.Y, heading.X) - pose.Yaw)
	ang := c.cfg.Pelvis.Angular(r3.Vector{Z: yawErr}, rate)
	sel := []bool{false, false, false, true, true, true}
	c.list.Add(command.NewSpatialAcceleration(c.cfg.PelvisBody, []float64{0, 0, 0, ang.X, ang.Y, ang.Z}, sel, 0, c.cfg.PelvisWeight))
}

func wrap(a float64) float64 {
	return math.Remainder(a, 2*math.Pi)
}
