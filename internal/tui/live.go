package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/geo/r2"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/walking"
)

const (
	width       = 70
	height      = 20
	pixelsPerM  = 60
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer redraws the stance view from tick results at no more than
// frameRate frames per second of wall time.
type LiveRenderer struct {
	out       io.Writer
	title     string
	frameRate int
	lastFrame time.Time
	contacts  func() []contact.Plane
	history   []float64
}

func NewLiveRenderer(out io.Writer, title string, frameRate int, contacts func() []contact.Plane) *LiveRenderer {
	return &LiveRenderer{
		out:       out,
		title:     title,
		frameRate: max(frameRate, 1),
		contacts:  contacts,
		history:   make([]float64, 0, 60),
	}
}

func (r *LiveRenderer) OnTick(res walking.TickResult) {
	r.history = append(r.history, res.ICPError)
	if len(r.history) > 60 {
		r.history = r.history[1:]
	}
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	fmt.Fprint(r.out, r.Frame(res))
}

// Frame renders one screen for res.
func (r *LiveRenderer) Frame(res walking.TickResult) string {
	c := newCanvas(width, height, r2.Point{X: res.CoM.X, Y: res.CoM.Y}, pixelsPerM)
	drawStance(c, r.contacts(), res)

	var b strings.Builder
	b.WriteString(clearScreen)
	fmt.Fprintf(&b, "  %s  t=%.2fs  %s\n", r.title, res.Time, res.Phase)
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	for _, row := range c.rows() {
		b.WriteString("  " + row + "\n")
	}
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	fmt.Fprintf(&b, "  left=%s right=%s  icp_err=%.3f  solved=%t\n",
		res.Modes[contact.Left], res.Modes[contact.Right], res.ICPError, res.WBC.Solved)
	fmt.Fprintf(&b, "  %s\n", sparkline(r.history, 40))
	return b.String()
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
