package command

import (
	"errors"
	"fmt"
	"math"
)

// Hard is the weight of a command that must hold exactly.
var Hard = math.Inf(1)

var (
	ErrUnhandledKind = errors.New("command: no handler for kind")
	ErrInvalidWeight = errors.New("command: weight must be positive")
)

type Kind uint8

const (
	JointAcceleration Kind = iota
	SpatialAcceleration
	CenterOfMass
	ContactForce
	MPCValue
	MPCContinuity
	MPCVRPTracking
	MPCRhoBound
	MPCRhoValue
	MPCOrientationValue
	numKinds
)

var kindNames = [numKinds]string{
	"joint_acceleration",
	"spatial_acceleration",
	"center_of_mass",
	"contact_force",
	"mpc_value",
	"mpc_continuity",
	"mpc_vrp_tracking",
	"mpc_rho_bound",
	"mpc_rho_value",
	"mpc_orientation_value",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsMPC reports whether the kind is consumed by the centroidal planner rather
// than the whole-body controller.
func (k Kind) IsMPC() bool { return k >= MPCValue && k < numKinds }

type Constraint uint8

const (
	Objective Constraint = iota
	Equality
	LessOrEqual
	GreaterOrEqual
)

func (c Constraint) String() string {
	switch c {
	case Objective:
		return "objective"
	case Equality:
		return "equality"
	case LessOrEqual:
		return "leq"
	case GreaterOrEqual:
		return "geq"
	}
	return "unknown"
}

// Quantity selects what an MPC value or continuity command acts on.
type Quantity uint8

const (
	CoMPosition Quantity = iota
	CoMVelocity
	CoMAcceleration
	ICP
	VRP
)

func (q Quantity) String() string {
	switch q {
	case CoMPosition:
		return "com_position"
	case CoMVelocity:
		return "com_velocity"
	case CoMAcceleration:
		return "com_acceleration"
	case ICP:
		return "icp"
	case VRP:
		return "vrp"
	}
	return "unknown"
}

// Command is one objective or constraint contributed to an optimization for
// a single tick. Kind selects which payload fields are meaningful.
type Command struct {
	Kind       Kind
	Target     string
	Desired    []float64
	Selection  []bool
	Weight     float64
	Constraint Constraint

	// Yaw rotates the selection frame of spatial commands about world z.
	Yaw float64

	// Planner payload.
	Segment  int
	Time     float64
	Quantity Quantity
	Start    []float64
	End      []float64

	// CostToGo is filled by solution inspection.
	CostToGo float64
}

func (c *Command) TargetName() string      { return c.Target }
func (c *Command) WeightValue() float64    { return c.Weight }
func (c *Command) DesiredValue() []float64 { return c.Desired }

// IsHard reports whether the command enters the problem as a constraint.
func (c *Command) IsHard() bool {
	return math.IsInf(c.Weight, 1) || c.Constraint != Objective
}

// Selected reports whether axis i is active. A nil selection selects all.
func (c *Command) Selected(i int) bool {
	if c.Selection == nil {
		return true
	}
	return i < len(c.Selection) && c.Selection[i]
}

// NumSelected counts active axes out of n.
func (c *Command) NumSelected(n int) int {
	k := 0
	for i := 0; i < n; i++ {
		if c.Selected(i) {
			k++
		}
	}
	return k
}

// Validate rejects weights that cannot be used as objective scales.
func (c *Command) Validate() error {
	if c.Constraint == Objective && !(c.Weight > 0) {
		return fmt.Errorf("%s %q: %w", c.Kind, c.Target, ErrInvalidWeight)
	}
	return nil
}

func withWeight(c Command, weight float64) Command {
	c.Weight = weight
	if math.IsInf(weight, 1) {
		c.Constraint = Equality
	}
	return c
}

func NewJointAcceleration(joint string, desired float64, weight float64) Command {
	return withWeight(Command{Kind: JointAcceleration, Target: joint, Desired: []float64{desired}}, weight)
}

// NewSpatialAcceleration commands the 6D acceleration [linear; angular] of a
// body. Selection and desired values are expressed in a frame yawed by yaw.
func NewSpatialAcceleration(body string, desired []float64, selection []bool, yaw, weight float64) Command {
	return withWeight(Command{
		Kind:      SpatialAcceleration,
		Target:    body,
		Desired:   desired,
		Selection: selection,
		Yaw:       yaw,
	}, weight)
}

func NewCenterOfMass(desiredAcc []float64, weight float64) Command {
	return withWeight(Command{Kind: CenterOfMass, Target: "com", Desired: desiredAcc}, weight)
}

// NewContactForce penalizes the net force of a contact plane away from
// desired. A nil desired regularizes the basis magnitudes instead.
func NewContactForce(plane string, desired []float64, weight float64) Command {
	return withWeight(Command{Kind: ContactForce, Target: plane, Desired: desired}, weight)
}

func NewValue(q Quantity, segment int, t float64, desired []float64, weight float64) Command {
	return withWeight(Command{
		Kind:     MPCValue,
		Target:   q.String(),
		Quantity: q,
		Segment:  segment,
		Time:     t,
		Desired:  desired,
	}, weight)
}

// NewContinuity ties quantity q at the end of segment to its value at the
// start of segment+1.
func NewContinuity(q Quantity, segment int, weight float64) Command {
	return withWeight(Command{
		Kind:     MPCContinuity,
		Target:   q.String(),
		Quantity: q,
		Segment:  segment,
	}, weight)
}

func NewVRPTracking(segment int, start, end []float64, weight float64) Command {
	return withWeight(Command{
		Kind:     MPCVRPTracking,
		Target:   "vrp",
		Quantity: VRP,
		Segment:  segment,
		Start:    start,
		End:      end,
	}, weight)
}

// NewRhoBound bounds every basis magnitude of segment at time t.
func NewRhoBound(segment int, t float64, bound float64, c Constraint) Command {
	return Command{
		Kind:       MPCRhoBound,
		Target:     "rho",
		Segment:    segment,
		Time:       t,
		Desired:    []float64{bound},
		Weight:     Hard,
		Constraint: c,
	}
}

func NewRhoValue(segment int, t float64, weight float64) Command {
	return withWeight(Command{Kind: MPCRhoValue, Target: "rho", Segment: segment, Time: t}, weight)
}

// NewOrientationValue drives the net contact moment about the reference CoM
// at time t of segment toward desired.
func NewOrientationValue(segment int, t float64, desired []float64, weight float64) Command {
	return withWeight(Command{
		Kind:    MPCOrientationValue,
		Target:  "orientation",
		Segment: segment,
		Time:    t,
		Desired: desired,
	}, weight)
}
