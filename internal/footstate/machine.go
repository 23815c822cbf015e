// Package footstate runs the contact-mode state machine of one foot. Each
// tick the machine advances its mode, keeps its own copy of the foot's
// contact plane up to date and emits the foot's motion command.
package footstate

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/san-kum/stride/internal/command"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/feedback"
	"github.com/san-kum/stride/internal/foothold"
	"github.com/san-kum/stride/internal/geometry"
	"github.com/san-kum/stride/internal/plan"
	"go.uber.org/zap"
)

type Mode uint8

const (
	Swing Mode = iota
	Loading
	FullSupport
	ToeOff
	numModes
)

func (m Mode) String() string {
	switch m {
	case Swing:
		return "swing"
	case Loading:
		return "loading"
	case FullSupport:
		return "full_support"
	case ToeOff:
		return "toe_off"
	}
	return "unknown"
}

// InContact reports whether the foot bears load in mode m.
func (m Mode) InContact() bool { return m != Swing }

type Config struct {
	SwingHeight      float64         `yaml:"swing_height"`
	LoadingDuration  float64         `yaml:"loading_duration"`
	TouchdownTimeout float64         `yaml:"touchdown_timeout"`
	MinSwingFraction float64         `yaml:"min_swing_fraction"`
	Swing            feedback.PD     `yaml:"swing_gains"`
	SwingWeight      float64         `yaml:"swing_weight"`
	Foothold         foothold.Config `yaml:"foothold"`
}

func DefaultConfig() Config {
	return Config{
		SwingHeight:      0.08,
		LoadingDuration:  0.05,
		TouchdownTimeout: 0.1,
		MinSwingFraction: 0.7,
		Swing:            feedback.PD{Kp: 200, Kd: 25},
		SwingWeight:      50,
		Foothold:         foothold.DefaultConfig(),
	}
}

// Input is what the machine reads on one tick. CoPs are in world
// coordinates.
type Input struct {
	Time        float64
	FootSwitch  bool
	Foot        feedback.Measured
	FootPose    geometry.Pose
	MeasuredCoP r2.Point
	DesiredCoP  r2.Point
}

type Status struct {
	Mode          Mode
	Changed       bool
	LateTouchdown bool
	Rotating      bool
}

type modeHandler struct {
	onEntry func(in *Input)
	action  func(in *Input, out *command.List, st *Status)
	next    func(in *Input, st *Status) (Mode, bool)
}

// Machine owns the contact plane of one foot. It is driven by the control
// thread only.
type Machine struct {
	cfg      Config
	plane    contact.Plane
	mode     Mode
	since    float64
	handlers [numModes]modeHandler
	foothold *foothold.PartialFoothold
	logger   *zap.Logger

	toeOffRequested bool
	swingRequested  bool
	step            plan.Footstep
	swingStart      float64
	liftoff         r3.Vector

	copSum r2.Point
	copN   int
	late   int
}

// NewMachine starts the foot in full support on plane.
func NewMachine(cfg Config, plane contact.Plane, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		cfg:      cfg,
		plane:    plane.Clone(),
		mode:     FullSupport,
		foothold: foothold.NewPartialFoothold(cfg.Foothold),
		logger:   logger.Named("footstate").With(zap.String("side", plane.Side.String())),
	}
	m.plane.InContact = true
	m.handlers[Swing] = modeHandler{onEntry: m.enterSwing, action: m.swingAction, next: m.swingNext}
	m.handlers[Loading] = modeHandler{onEntry: m.enterSupport, action: m.holdAction, next: m.loadingNext}
	m.handlers[FullSupport] = modeHandler{onEntry: m.enterSupport, action: m.supportAction, next: m.supportNext}
	m.handlers[ToeOff] = modeHandler{onEntry: m.enterToeOff, action: m.toeOffAction, next: m.toeOffNext}
	return m
}

func (m *Machine) Mode() Mode                  { return m.mode }
func (m *Machine) Side() contact.Side          { return m.plane.Side }
func (m *Machine) LateTouchdowns() int         { return m.late }
func (m *Machine) Plane() contact.Plane        { return m.plane.Clone() }
func (m *Machine) Step() (plan.Footstep, bool) { return m.step, m.mode == Swing }

// SwingProgress is the elapsed fraction of the current swing.
func (m *Machine) SwingProgress(t float64) float64 {
	if m.mode != Swing || m.step.SwingDuration <= 0 {
		return 0
	}
	return math.Min(1, (t-m.swingStart)/m.step.SwingDuration)
}

// AverageCoP is the mean measured CoP since the foot last entered a
// support mode.
func (m *Machine) AverageCoP() (r2.Point, bool) {
	if m.copN == 0 {
		return r2.Point{}, false
	}
	return m.copSum.Mul(1 / float64(m.copN)), true
}

// RequestToeOff asks for toe-off on the next update. The caller has
// already checked the toe-off margins. Only a foot in full support accepts.
func (m *Machine) RequestToeOff() bool {
	if m.mode != FullSupport {
		return false
	}
	m.toeOffRequested = true
	return true
}

// RequestSwing schedules the foot to lift off at start and land on step.
func (m *Machine) RequestSwing(step plan.Footstep, start float64) bool {
	if m.mode != FullSupport && m.mode != ToeOff {
		return false
	}
	m.step = step
	m.swingStart = start
	m.swingRequested = true
	return true
}

// Update advances the machine one tick and appends the foot's command to
// out.
func (m *Machine) Update(in Input, out *command.List) Status {
	var st Status
	if next, ok := m.handlers[m.mode].next(&in, &st); ok && next != m.mode {
		m.logger.Debug("mode change",
			zap.Stringer("from", m.mode),
			zap.Stringer("to", next),
			zap.Float64("t", in.Time))
		m.mode = next
		m.since = in.Time
		m.handlers[next].onEntry(&in)
		st.Changed = true
	}
	m.handlers[m.mode].action(&in, out, &st)
	st.Mode = m.mode
	return st
}

func (m *Machine) resetAccumulators() {
	m.foothold.Reset()
	m.copSum = r2.Point{}
	m.copN = 0
}

func (m *Machine) enterSwing(in *Input) {
	m.plane.InContact = false
	m.liftoff = in.Foot.Position
	m.swingRequested = false
	m.toeOffRequested = false
	m.resetAccumulators()
}

func (m *Machine) enterSupport(in *Input) {
	if !m.plane.InContact {
		m.plane.Pose = in.FootPose
	}
	m.plane.InContact = true
	m.plane.ResetFoothold()
	m.resetAccumulators()
}

func (m *Machine) enterToeOff(*Input) {
	m.toeOffRequested = false
	m.plane.SetActive(m.plane.ToeVertices())
	m.resetAccumulators()
}

func (m *Machine) swingNext(in *Input, st *Status) (Mode, bool) {
	elapsed := in.Time - m.swingStart
	d := m.step.SwingDuration
	if in.FootSwitch && elapsed >= m.cfg.MinSwingFraction*d {
		return Loading, true
	}
	if elapsed > d+m.cfg.TouchdownTimeout {
		m.late++
		st.LateTouchdown = true
		m.logger.Warn("late touchdown",
			zap.Float64("t", in.Time),
			zap.Float64("overrun", elapsed-d),
			zap.Int("count", m.late))
		return Loading, true
	}
	return Swing, false
}

func (m *Machine) loadingNext(in *Input, _ *Status) (Mode, bool) {
	if in.Time-m.since >= m.cfg.LoadingDuration {
		return FullSupport, true
	}
	return Loading, false
}

func (m *Machine) supportNext(in *Input, _ *Status) (Mode, bool) {
	if m.swingRequested && in.Time >= m.swingStart {
		return Swing, true
	}
	if m.toeOffRequested {
		return ToeOff, true
	}
	return FullSupport, false
}

func (m *Machine) toeOffNext(in *Input, _ *Status) (Mode, bool) {
	if m.swingRequested && in.Time >= m.swingStart {
		return Swing, true
	}
	return ToeOff, false
}

func (m *Machine) body() string { return m.plane.Body }

func (m *Machine) swingAction(in *Input, out *command.List, _ *Status) {
	ref := SwingReference(m.liftoff, m.step.Pose.Position, m.cfg.SwingHeight, m.step.SwingDuration, in.Time-m.swingStart)
	acc := m.cfg.Swing.Acceleration(ref, in.Foot)
	desired := []float64{acc.X, acc.Y, acc.Z, 0, 0, 0}
	out.Add(command.NewSpatialAcceleration(m.body(), desired, nil, 0, m.cfg.SwingWeight))
}

func (m *Machine) holdAction(_ *Input, out *command.List, _ *Status) {
	out.Add(command.NewSpatialAcceleration(m.body(), make([]float64, 6), nil, 0, command.Hard))
}

func (m *Machine) supportAction(in *Input, out *command.List, st *Status) {
	m.copSum = m.copSum.Add(in.MeasuredCoP)
	m.copN++
	res := m.foothold.Compute(&m.plane, in.MeasuredCoP, in.DesiredCoP)
	if res.Rotating && m.foothold.Apply(&m.plane, res) {
		st.Rotating = true
		m.logger.Info("partial foothold",
			zap.Ints("active", res.Active),
			zap.Float64("t", in.Time))
	}
	m.holdAction(in, out, st)
}

// toeOffAction leaves the sole pitch free and holds every other axis in
// the sole frame.
func (m *Machine) toeOffAction(_ *Input, out *command.List, _ *Status) {
	sel := []bool{true, true, true, true, false, true}
	out.Add(command.NewSpatialAcceleration(m.body(), make([]float64, 6), sel, m.plane.Pose.Yaw, command.Hard))
}

// SwingReference is the swing foot target at time t of a swing of
// duration T from p0 to p1: a cubic with zero end rates plus a parabolic
// apex of height above the chord.
func SwingReference(p0, p1 r3.Vector, height, T, t float64) feedback.Reference {
	if T <= 0 || t >= T {
		return feedback.Reference{Position: p1}
	}
	t = math.Max(0, t)
	poly := plan.Hermite(p0, r3.Vector{}, p1, r3.Vector{}, T)
	s := t / T
	ref := feedback.Reference{
		Position:     poly.Position(t),
		Velocity:     poly.Velocity(t),
		Acceleration: poly.Acceleration(t),
	}
	ref.Position.Z += 4 * height * s * (1 - s)
	ref.Velocity.Z += 4 * height * (1 - 2*s) / T
	ref.Acceleration.Z -= 8 * height / (T * T)
	return ref
}
