// Package plan holds the footstep plan and the contact sequence the
// centroidal planner optimizes over.
package plan

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/geometry"
)

const timeTolerance = 1e-9

var (
	ErrEmpty               = errors.New("plan: no segments")
	ErrGap                 = errors.New("plan: gap between segments")
	ErrOverlap             = errors.New("plan: overlapping segments")
	ErrNonPositiveDuration = errors.New("plan: segment duration must be positive")
)

// Segment is a time interval with a constant set of loaded contacts.
type Segment struct {
	Index    int
	Start    float64
	End      float64
	Contacts []contact.Plane
	Support  geometry.Polygon

	StartECMP         r3.Vector
	EndECMP           r3.Vector
	StartECMPVelocity r3.Vector
	EndECMPVelocity   r3.Vector

	CoM Polynomial3
}

func (s *Segment) Duration() float64 { return s.End - s.Start }

// LoadBearing reports whether any contact of the segment can push.
func (s *Segment) LoadBearing() bool {
	return s.RhoCount() > 0
}

func (s *Segment) RhoCount() int {
	n := 0
	for i := range s.Contacts {
		n += s.Contacts[i].RhoCount()
	}
	return n
}

// ECMP is the reference eCMP at local time t, the Hermite cubic through the
// boundary waypoints and rates. Equal rates matching the chord give a
// straight line.
func (s *Segment) ECMP(t float64) r3.Vector {
	return Hermite(s.StartECMP, s.StartECMPVelocity, s.EndECMP, s.EndECMPVelocity, s.Duration()).Position(t)
}

// Validate checks that segments are chronological and contiguous.
func Validate(segments []Segment) error {
	if len(segments) == 0 {
		return ErrEmpty
	}
	for i := range segments {
		if segments[i].Duration() <= 0 {
			return fmt.Errorf("segment %d [%g, %g]: %w", i, segments[i].Start, segments[i].End, ErrNonPositiveDuration)
		}
		if i == 0 {
			continue
		}
		d := segments[i].Start - segments[i-1].End
		switch {
		case d > timeTolerance:
			return fmt.Errorf("segments %d and %d: %w of %g s", i-1, i, ErrGap, d)
		case d < -timeTolerance:
			return fmt.Errorf("segments %d and %d: %w of %g s", i-1, i, ErrOverlap, -d)
		}
	}
	return nil
}

// DiscontinuityError reports a CoM jump at the boundary after segment
// Boundary.
type DiscontinuityError struct {
	Boundary int
	Quantity string
	Gap      float64
}

func (e *DiscontinuityError) Error() string {
	return fmt.Sprintf("plan: com %s discontinuous after segment %d by %.3g", e.Quantity, e.Boundary, e.Gap)
}

// CheckContinuity verifies CoM position and velocity agree at every
// boundary of solved segments.
func CheckContinuity(segments []Segment, tol float64) error {
	for i := 0; i+1 < len(segments); i++ {
		a, b := &segments[i], &segments[i+1]
		T := a.Duration()
		if gap := a.CoM.Position(T).Sub(b.CoM.Position(0)).Norm(); gap > tol {
			return &DiscontinuityError{Boundary: i, Quantity: "position", Gap: gap}
		}
		if gap := a.CoM.Velocity(T).Sub(b.CoM.Velocity(0)).Norm(); gap > tol {
			return &DiscontinuityError{Boundary: i, Quantity: "velocity", Gap: gap}
		}
	}
	return nil
}
