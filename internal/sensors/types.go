package sensors

import (
	"github.com/golang/geo/r2"
	"github.com/san-kum/stride/internal/plan"
)

// JointState is the measured configuration and velocity in the model's
// generalized layout.
type JointState struct {
	Q []float64
	V []float64
}

// FootContact is one foot's switch reading and measured CoP in world
// coordinates.
type FootContact struct {
	Switch bool
	CoP    r2.Point
}

// Feet holds both foot readings, indexed by contact.Side.
type Feet [2]FootContact

// Steps is a replacement footstep plan.
type Steps []plan.Footstep
