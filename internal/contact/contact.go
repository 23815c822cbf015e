package contact

import (
	"math"
	"sync/atomic"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/san-kum/stride/internal/geometry"
)

type Side uint8

const (
	Left Side = iota
	Right
)

// Sides lists both feet in a fixed order.
var Sides = [2]Side{Left, Right}

func (s Side) Opposite() Side { return 1 - s }

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Sign is +1 for the left foot and -1 for the right.
func (s Side) Sign() float64 {
	if s == Left {
		return 1
	}
	return -1
}

// Plane is the contact state of one end-effector: its nominal sole polygon,
// which vertices currently bear load and the friction model applied to them.
type Plane struct {
	Body          string
	Side          Side
	Nominal       geometry.Polygon
	Active        []bool
	Friction      float64
	BasisPerPoint int
	Pose          geometry.Pose
	InContact     bool
}

func NewPlane(body string, side Side, nominal geometry.Polygon, friction float64, basisPerPoint int) Plane {
	active := make([]bool, nominal.Len())
	for i := range active {
		active[i] = true
	}
	return Plane{
		Body:          body,
		Side:          side,
		Nominal:       nominal,
		Active:        active,
		Friction:      friction,
		BasisPerPoint: basisPerPoint,
		InContact:     true,
	}
}

func (p *Plane) Clone() Plane {
	c := *p
	c.Active = append([]bool(nil), p.Active...)
	return c
}

func (p *Plane) NumActive() int {
	if !p.InContact {
		return 0
	}
	n := 0
	for _, a := range p.Active {
		if a {
			n++
		}
	}
	return n
}

// ActiveLocal returns the load-bearing vertices in the sole frame.
func (p *Plane) ActiveLocal() []r2.Point {
	if !p.InContact {
		return nil
	}
	out := make([]r2.Point, 0, len(p.Active))
	for i, a := range p.Active {
		if a {
			out = append(out, p.Nominal.Vertex(i))
		}
	}
	return out
}

// ActiveWorld returns the load-bearing vertices in world coordinates.
func (p *Plane) ActiveWorld() []r3.Vector {
	local := p.ActiveLocal()
	out := make([]r3.Vector, len(local))
	for i, v := range local {
		out[i] = p.Pose.Transform3(r3.Vector{X: v.X, Y: v.Y})
	}
	return out
}

// SupportPolygon is the world ground-plane hull of the active vertices.
func (p *Plane) SupportPolygon() geometry.Polygon {
	local := p.ActiveLocal()
	pts := make([]r2.Point, len(local))
	for i, v := range local {
		pts[i] = p.Pose.Transform(v)
	}
	return geometry.Hull(pts)
}

// RhoCount is the number of basis magnitudes the plane contributes.
func (p *Plane) RhoCount() int { return p.NumActive() * p.BasisPerPoint }

// BasisVectors returns the unit friction-cone edges for one contact point,
// normalize(μ·cosθ, μ·sinθ, 1) rotated by the sole heading.
func (p *Plane) BasisVectors() []r3.Vector {
	out := make([]r3.Vector, p.BasisPerPoint)
	for k := range out {
		theta := 2*math.Pi*float64(k)/float64(p.BasisPerPoint) + math.Pi/4
		b := r3.Vector{X: p.Friction * math.Cos(theta), Y: p.Friction * math.Sin(theta), Z: 1}
		out[k] = p.Pose.Rotate(b).Normalize()
	}
	return out
}

// SetActive loads exactly the listed vertices.
func (p *Plane) SetActive(vertices []int) {
	clear(p.Active)
	for _, v := range vertices {
		if v >= 0 && v < len(p.Active) {
			p.Active[v] = true
		}
	}
}

// ResetFoothold restores the full nominal polygon.
func (p *Plane) ResetFoothold() {
	for i := range p.Active {
		p.Active[i] = true
	}
}

// ToeVertices are the vertices furthest forward in the sole frame.
func (p *Plane) ToeVertices() []int {
	maxX := math.Inf(-1)
	for i := 0; i < p.Nominal.Len(); i++ {
		maxX = math.Max(maxX, p.Nominal.Vertex(i).X)
	}
	var out []int
	for i := 0; i < p.Nominal.Len(); i++ {
		if p.Nominal.Vertex(i).X > maxX-1e-6 {
			out = append(out, i)
		}
	}
	return out
}

// ToePoint is the midpoint of the toe vertices in world coordinates.
func (p *Plane) ToePoint() r2.Point {
	var sum r2.Point
	toes := p.ToeVertices()
	for _, i := range toes {
		sum = sum.Add(p.Nominal.Vertex(i))
	}
	return p.Pose.Transform(sum.Mul(1 / float64(len(toes))))
}

// Set is the committed contact state of all feet. The control thread is the
// single writer; readers always see a complete snapshot.
type Set struct {
	current atomic.Pointer[[]Plane]
}

func (s *Set) Commit(planes []Plane) {
	snap := make([]Plane, len(planes))
	for i := range planes {
		snap[i] = planes[i].Clone()
	}
	s.current.Store(&snap)
}

// Snapshot returns a private copy of the last committed state.
func (s *Set) Snapshot() []Plane {
	ptr := s.current.Load()
	if ptr == nil {
		return nil
	}
	out := make([]Plane, len(*ptr))
	for i := range *ptr {
		out[i] = (*ptr)[i].Clone()
	}
	return out
}
