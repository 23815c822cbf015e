// Package foothold detects feet rotating about an edge of their sole and
// decides when the trailing foot may roll onto its toes.
package foothold

import (
	"slices"

	"github.com/golang/geo/r2"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/geometry"
)

type Config struct {
	Enabled           bool    `yaml:"enabled"`
	EdgeTolerance     float64 `yaml:"edge_tolerance"`
	TicksToDetect     int     `yaml:"ticks_to_detect"`
	MinActiveVertices int     `yaml:"min_active_vertices"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		EdgeTolerance:     0.01,
		TicksToDetect:     5,
		MinActiveVertices: 2,
	}
}

type Result struct {
	Rotating bool
	Edge     int
	Active   []int
}

// PartialFoothold watches the centre of pressure of one foot. When the
// measured CoP sits on an edge of the loaded polygon while the controller
// keeps asking for a CoP beyond that edge, the foot is rotating and the
// loaded area shrinks to the edge (or to one vertex).
type PartialFoothold struct {
	cfg       Config
	candidate []int
	edge      int
	count     int
}

func NewPartialFoothold(cfg Config) *PartialFoothold {
	return &PartialFoothold{cfg: cfg, edge: -1}
}

func (p *PartialFoothold) Reset() {
	p.candidate = p.candidate[:0]
	p.edge = -1
	p.count = 0
}

// Count is the number of consecutive ticks the current candidate persisted.
func (p *PartialFoothold) Count() int { return p.count }

// Compute takes the world CoPs and the plane's current loaded vertices.
func (p *PartialFoothold) Compute(plane *contact.Plane, measuredCoP, desiredCoP r2.Point) Result {
	if !p.cfg.Enabled || !plane.InContact {
		p.Reset()
		return Result{Edge: -1}
	}

	indices := activeIndices(plane)
	poly := geometry.Hull(plane.ActiveLocal())
	measured := plane.Pose.Inverse(measuredCoP)
	desired := plane.Pose.Inverse(desiredCoP)

	edge, cand := p.candidateFor(plane, poly, indices, measured, desired)
	if cand == nil {
		p.Reset()
		return Result{Edge: -1}
	}

	if slices.Equal(cand, p.candidate) {
		p.count++
	} else {
		p.candidate = append(p.candidate[:0], cand...)
		p.edge = edge
		p.count = 1
	}

	if p.count < p.cfg.TicksToDetect {
		return Result{Edge: edge}
	}
	return Result{Rotating: true, Edge: edge, Active: slices.Clone(p.candidate)}
}

func (p *PartialFoothold) candidateFor(plane *contact.Plane, poly geometry.Polygon, indices []int, measured, desired r2.Point) (int, []int) {
	tol := p.cfg.EdgeTolerance
	switch poly.Len() {
	case 0, 1:
		return -1, nil
	case 2:
		if p.cfg.MinActiveVertices > 1 {
			return -1, nil
		}
		for i := 0; i < 2; i++ {
			v, other := poly.Vertex(i), poly.Vertex(1-i)
			out := v.Sub(other).Normalize()
			if measured.Sub(v).Norm() <= tol && desired.Sub(v).Dot(out) > 0 {
				return 0, []int{nominalIndex(plane, indices, v)}
			}
		}
		return -1, nil
	}

	edge, dist := poly.ClosestEdge(measured)
	if edge < 0 || dist > tol {
		return -1, nil
	}
	a, b := poly.Edge(edge)
	if desired.Sub(a).Dot(poly.OutwardNormal(edge)) <= 0 {
		return -1, nil
	}

	if p.cfg.MinActiveVertices <= 1 {
		if measured.Sub(a).Norm() <= tol {
			return edge, []int{nominalIndex(plane, indices, a)}
		}
		if measured.Sub(b).Norm() <= tol {
			return edge, []int{nominalIndex(plane, indices, b)}
		}
	}
	ia, ib := nominalIndex(plane, indices, a), nominalIndex(plane, indices, b)
	if ia > ib {
		ia, ib = ib, ia
	}
	return edge, []int{ia, ib}
}

// Apply shrinks the plane's loaded vertices when the foot is rotating.
func (p *PartialFoothold) Apply(plane *contact.Plane, res Result) bool {
	if !res.Rotating {
		return false
	}
	plane.SetActive(res.Active)
	return true
}

func activeIndices(plane *contact.Plane) []int {
	out := make([]int, 0, len(plane.Active))
	for i, a := range plane.Active {
		if a {
			out = append(out, i)
		}
	}
	return out
}

func nominalIndex(plane *contact.Plane, indices []int, v r2.Point) int {
	best, bestDist := -1, 0.0
	for _, i := range indices {
		d := plane.Nominal.Vertex(i).Sub(v).Norm()
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
