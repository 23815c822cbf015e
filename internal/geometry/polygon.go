package geometry

import (
	"errors"
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

var (
	// ErrEmptyPolygon indicates a polygon built from no vertices.
	ErrEmptyPolygon = errors.New("geometry: polygon has no vertices")
)

// Polygon is a convex polygon with vertices in counter-clockwise order.
// Polygons with one or two vertices are valid and describe point and line
// contacts.
type Polygon struct {
	vertices []r2.Point
}

// NewPolygon returns the convex hull of points.
func NewPolygon(points []r2.Point) (Polygon, error) {
	if len(points) == 0 {
		return Polygon{}, ErrEmptyPolygon
	}
	return Hull(points), nil
}

// Hull computes the convex hull with Andrew's monotone chain. Collinear
// points on the boundary are dropped.
func Hull(points []r2.Point) Polygon {
	pts := make([]r2.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
	pts = dedupe(pts)
	if len(pts) < 3 {
		return Polygon{vertices: pts}
	}

	hull := make([]r2.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return Polygon{vertices: hull[:len(hull)-1]}
}

func dedupe(sorted []r2.Point) []r2.Point {
	out := sorted[:0]
	for i, p := range sorted {
		if i > 0 && p.Sub(out[len(out)-1]).Norm() < 1e-12 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func cross(o, a, b r2.Point) float64 {
	return a.Sub(o).Cross(b.Sub(o))
}

func (p Polygon) Len() int { return len(p.vertices) }

func (p Polygon) Vertex(i int) r2.Point { return p.vertices[i] }

// Vertices returns a copy of the vertex list.
func (p Polygon) Vertices() []r2.Point {
	out := make([]r2.Point, len(p.vertices))
	copy(out, p.vertices)
	return out
}

// Edge returns the segment from vertex i to vertex i+1.
func (p Polygon) Edge(i int) (r2.Point, r2.Point) {
	n := len(p.vertices)
	return p.vertices[i%n], p.vertices[(i+1)%n]
}

// NumEdges is zero for a point, one for a segment and Len otherwise.
func (p Polygon) NumEdges() int {
	switch len(p.vertices) {
	case 0, 1:
		return 0
	case 2:
		return 1
	default:
		return len(p.vertices)
	}
}

func (p Polygon) Area() float64 {
	if len(p.vertices) < 3 {
		return 0
	}
	a := 0.0
	for i := range p.vertices {
		v0, v1 := p.Edge(i)
		a += v0.Cross(v1)
	}
	return a / 2
}

// Centroid is area weighted, falling back to the vertex mean for degenerate
// polygons.
func (p Polygon) Centroid() r2.Point {
	if len(p.vertices) == 0 {
		return r2.Point{}
	}
	area := p.Area()
	if area < 1e-12 {
		var sum r2.Point
		for _, v := range p.vertices {
			sum = sum.Add(v)
		}
		return sum.Mul(1 / float64(len(p.vertices)))
	}
	var c r2.Point
	for i := range p.vertices {
		v0, v1 := p.Edge(i)
		w := v0.Cross(v1)
		c = c.Add(v0.Add(v1).Mul(w))
	}
	return c.Mul(1 / (6 * area))
}

// OutwardNormal is the unit normal of edge i pointing away from the interior.
func (p Polygon) OutwardNormal(i int) r2.Point {
	a, b := p.Edge(i)
	d := b.Sub(a)
	if d.Norm() == 0 {
		return r2.Point{}
	}
	// Rotating a counter-clockwise edge by -90 degrees points outward.
	return r2.Point{X: d.Y, Y: -d.X}.Normalize()
}

// Contains reports whether q lies inside the polygon or within tol of it.
func (p Polygon) Contains(q r2.Point, tol float64) bool {
	return p.SignedDistance(q) <= tol
}

// SignedDistance is the distance from q to the polygon boundary, negative
// when q lies strictly inside.
func (p Polygon) SignedDistance(q r2.Point) float64 {
	switch len(p.vertices) {
	case 0:
		return math.Inf(1)
	case 1:
		return q.Sub(p.vertices[0]).Norm()
	case 2:
		return segmentDistance(q, p.vertices[0], p.vertices[1])
	}

	inside := true
	best := math.Inf(1)
	for i := range p.vertices {
		a, b := p.Edge(i)
		if cross(a, b, q) < 0 {
			inside = false
		}
		best = math.Min(best, segmentDistance(q, a, b))
	}
	if inside {
		return -best
	}
	return best
}

// ClosestEdge returns the edge nearest to q and the distance to it. It
// returns -1 for polygons with fewer than two vertices.
func (p Polygon) ClosestEdge(q r2.Point) (int, float64) {
	n := p.NumEdges()
	if n == 0 {
		return -1, math.Inf(1)
	}
	idx, best := -1, math.Inf(1)
	for i := 0; i < n; i++ {
		a, b := p.Edge(i)
		if d := segmentDistance(q, a, b); d < best {
			idx, best = i, d
		}
	}
	return idx, best
}

// Extent returns the minimum and maximum projection of the vertices onto dir.
func (p Polygon) Extent(dir r2.Point) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range p.vertices {
		d := v.Dot(dir)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}

// Union returns the hull of both vertex sets.
func (p Polygon) Union(o Polygon) Polygon {
	pts := make([]r2.Point, 0, len(p.vertices)+len(o.vertices))
	pts = append(pts, p.vertices...)
	pts = append(pts, o.vertices...)
	return Hull(pts)
}

func segmentDistance(q, a, b r2.Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return q.Sub(a).Norm()
	}
	t := math.Max(0, math.Min(1, q.Sub(a).Dot(ab)/l2))
	return q.Sub(a.Add(ab.Mul(t))).Norm()
}
