// Package dynamics defines what the controllers need from a rigid-body
// model of a floating-base robot.
//
// Generalized velocities are laid out as
//
//	[base linear (3), base angular (3), joint 0, joint 1, ...]
//
// with base rates expressed in the world frame. Joint i of [Model.Joints]
// is column FloatingBaseDoF+i of every matrix.
//
// # Example
//
//	m := models.NewCartesianBiped(models.DefaultBipedParams())
//	M := mat.NewDense(m.NumDoF(), m.NumDoF(), nil)
//	m.MassMatrix(M)
//
// Models are NOT thread-safe. The control thread owns the model between
// state updates.
package dynamics

import (
	"errors"

	"github.com/golang/geo/r3"
	"github.com/san-kum/stride/internal/geometry"
	"gonum.org/v1/gonum/mat"
)

const FloatingBaseDoF = 6

// Gravity is the magnitude of gravitational acceleration along -z.
const Gravity = 9.81

var (
	ErrUnknownBody       = errors.New("dynamics: unknown body")
	ErrDimensionMismatch = errors.New("dynamics: dimension mismatch")
)

type Model interface {
	NumDoF() int
	Joints() []string
	Mass() float64

	// MassMatrix writes M(q) into an nv×nv matrix.
	MassMatrix(dst *mat.Dense)
	// Bias writes h(q, v) so that M v̇ + h = τ + Jᵀf.
	Bias(dst []float64)

	CoM() r3.Vector
	CoMVelocity() r3.Vector
	CoMJacobian(dst *mat.Dense)

	// BodyJacobian writes the 6×nv Jacobian of the body origin, linear rows
	// first.
	BodyJacobian(body string, dst *mat.Dense) error
	// PointJacobian writes the 3×nv Jacobian of a world point rigidly
	// attached to body.
	PointJacobian(body string, point r3.Vector, dst *mat.Dense) error
	BodyPose(body string) (geometry.Pose, error)
	BodyVelocity(body string) (linear, angular r3.Vector, err error)

	JointPositions() []float64
	JointVelocities() []float64
}

type JointLimit struct {
	Lower    float64 `yaml:"lower"`
	Upper    float64 `yaml:"upper"`
	Velocity float64 `yaml:"velocity"`
	Torque   float64 `yaml:"torque"`
}

type Limits interface {
	Limit(joint int) JointLimit
}

// LimitTable serves limits from a slice indexed by joint.
type LimitTable []JointLimit

func (t LimitTable) Limit(joint int) JointLimit { return t[joint] }
