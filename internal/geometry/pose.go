package geometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Pose is a sole frame on flat ground: a world position and a heading.
type Pose struct {
	Position r3.Vector
	Yaw      float64
}

func NewPose(x, y, z, yaw float64) Pose {
	return Pose{Position: r3.Vector{X: x, Y: y, Z: z}, Yaw: yaw}
}

// Heading is the unit forward direction in the ground plane.
func (p Pose) Heading() r2.Point {
	return r2.Point{X: math.Cos(p.Yaw), Y: math.Sin(p.Yaw)}
}

// Lateral is the unit leftward direction in the ground plane.
func (p Pose) Lateral() r2.Point {
	return p.Heading().Ortho()
}

func (p Pose) Position2() r2.Point {
	return r2.Point{X: p.Position.X, Y: p.Position.Y}
}

// Transform maps a point in the sole frame to the world ground plane.
func (p Pose) Transform(local r2.Point) r2.Point {
	c, s := math.Cos(p.Yaw), math.Sin(p.Yaw)
	return r2.Point{
		X: p.Position.X + c*local.X - s*local.Y,
		Y: p.Position.Y + s*local.X + c*local.Y,
	}
}

// Transform3 maps a point in the sole frame to world coordinates.
func (p Pose) Transform3(local r3.Vector) r3.Vector {
	q := p.Transform(r2.Point{X: local.X, Y: local.Y})
	return r3.Vector{X: q.X, Y: q.Y, Z: p.Position.Z + local.Z}
}

// Rotate applies only the heading to a direction.
func (p Pose) Rotate(local r3.Vector) r3.Vector {
	c, s := math.Cos(p.Yaw), math.Sin(p.Yaw)
	return r3.Vector{X: c*local.X - s*local.Y, Y: s*local.X + c*local.Y, Z: local.Z}
}

// Inverse maps a world ground point into the sole frame.
func (p Pose) Inverse(world r2.Point) r2.Point {
	c, s := math.Cos(p.Yaw), math.Sin(p.Yaw)
	d := world.Sub(p.Position2())
	return r2.Point{X: c*d.X + s*d.Y, Y: -s*d.X + c*d.Y}
}

// TransformPolygon maps a sole-frame polygon to the world ground plane.
func (p Pose) TransformPolygon(local Polygon) Polygon {
	pts := make([]r2.Point, local.Len())
	for i := range pts {
		pts[i] = p.Transform(local.Vertex(i))
	}
	return Hull(pts)
}

// Rectangle returns the sole polygon of a foot of the given length and width
// centred on the sole frame origin.
func Rectangle(length, width float64) Polygon {
	hl, hw := length/2, width/2
	return Hull([]r2.Point{
		{X: -hl, Y: -hw},
		{X: hl, Y: -hw},
		{X: hl, Y: hw},
		{X: -hl, Y: hw},
	})
}
