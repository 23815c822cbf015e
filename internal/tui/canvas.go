package tui

import (
	"math"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/walking"
)

// canvas is a top-down character view of the ground plane. World x runs to
// the right and world y up; a row is twice as tall as a column is wide.
type canvas struct {
	w, h   int
	center r2.Point
	scale  float64
	cells  [][]rune
}

func newCanvas(w, h int, center r2.Point, scale float64) *canvas {
	cells := make([][]rune, h)
	for i := range cells {
		cells[i] = []rune(strings.Repeat(" ", w))
	}
	return &canvas{w: w, h: h, center: center, scale: scale, cells: cells}
}

func (c *canvas) project(p r2.Point) (int, int) {
	col := c.w/2 + int(math.Round((p.X-c.center.X)*c.scale))
	row := c.h/2 - int(math.Round((p.Y-c.center.Y)*c.scale/2))
	return col, row
}

func (c *canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *canvas) mark(p r2.Point, r rune) {
	x, y := c.project(p)
	c.set(x, y, r)
}

func (c *canvas) line(x1, y1, x2, y2 int, r rune) {
	dx := intAbs(x2 - x1)
	dy := intAbs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, r)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (c *canvas) outline(vertices []r2.Point, r rune) {
	for i := range vertices {
		x1, y1 := c.project(vertices[i])
		x2, y2 := c.project(vertices[(i+1)%len(vertices)])
		c.line(x1, y1, x2, y2, r)
	}
}

func (c *canvas) rows() []string {
	out := make([]string, len(c.cells))
	for i, row := range c.cells {
		out[i] = string(row)
	}
	return out
}

func (c *canvas) String() string { return strings.Join(c.rows(), "\n") }

// drawStance outlines each sole with '.' and its loaded support polygon
// with '#', then marks the desired ICP '+', the ICP 'x' and the CoM 'o'.
func drawStance(c *canvas, planes []contact.Plane, res walking.TickResult) {
	for _, p := range planes {
		c.outline(p.Pose.TransformPolygon(p.Nominal).Vertices(), '.')
		if support := p.SupportPolygon(); support.Len() > 1 {
			c.outline(support.Vertices(), '#')
		}
	}
	c.mark(r2.Point{X: res.DesiredICP.X, Y: res.DesiredICP.Y}, '+')
	c.mark(r2.Point{X: res.ICP.X, Y: res.ICP.Y}, 'x')
	c.mark(r2.Point{X: res.CoM.X, Y: res.CoM.Y}, 'o')
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := max(len(data)/width, 1)
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		idx := int((data[i*step] - minVal) / rang * 7)
		sb.WriteRune(chars[min(max(idx, 0), 7)])
	}
	return sb.String()
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
