package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"
	"github.com/san-kum/stride/internal/config"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/models"
	"github.com/san-kum/stride/internal/plan"
	"github.com/san-kum/stride/internal/walking"
)

func TestCanvasProjection(t *testing.T) {
	g := NewWithT(t)
	c := newCanvas(20, 10, r2.Point{X: 1, Y: 0}, 10)
	x, y := c.project(r2.Point{X: 1, Y: 0})
	g.Expect([]int{x, y}).To(Equal([]int{10, 5}))
	x, y = c.project(r2.Point{X: 1.5, Y: 0.4})
	g.Expect([]int{x, y}).To(Equal([]int{15, 3}))

	c.mark(r2.Point{X: 1, Y: 0}, 'o')
	c.mark(r2.Point{X: 100, Y: 0}, 'x')
	g.Expect(c.rows()[5][10]).To(Equal(byte('o')))
	g.Expect(c.String()).NotTo(ContainSubstring("x"))
}

func TestCanvasLine(t *testing.T) {
	g := NewWithT(t)
	c := newCanvas(5, 5, r2.Point{}, 1)
	c.line(0, 0, 4, 4, '\\')
	for i := 0; i < 5; i++ {
		g.Expect(c.rows()[i][i]).To(Equal(byte('\\')))
	}
}

func TestSparkline(t *testing.T) {
	g := NewWithT(t)
	g.Expect(sparkline(nil, 10)).To(BeEmpty())
	g.Expect(sparkline([]float64{0, 1}, 10)).To(Equal("▁█"))
	g.Expect([]rune(sparkline(make([]float64, 100), 10))).To(HaveLen(10))
}

func standingFrame() ([]contact.Plane, walking.TickResult) {
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	planes := []contact.Plane{b.ContactPlane(contact.Left, 0.7, 4), b.ContactPlane(contact.Right, 0.7, 4)}
	planes[1].InContact = false
	com := b.CoM()
	return planes, walking.TickResult{Time: 0.5, Phase: plan.SingleSupport, CoM: com, ICP: com.Add(r3.Vector{X: 0.05})}
}

func TestDrawStance(t *testing.T) {
	g := NewWithT(t)
	planes, res := standingFrame()
	c := newCanvas(width, height, r2.Point{X: res.CoM.X, Y: res.CoM.Y}, pixelsPerM)
	drawStance(c, planes, res)
	out := c.String()
	g.Expect(out).To(ContainSubstring("#"))
	g.Expect(out).To(ContainSubstring("."))
	g.Expect(out).To(ContainSubstring("o"))
	g.Expect(out).To(ContainSubstring("x"))
}

func TestLiveRendererFrame(t *testing.T) {
	g := NewWithT(t)
	planes, res := standingFrame()
	var buf bytes.Buffer
	r := NewLiveRenderer(&buf, "walk", 1000, func() []contact.Plane { return planes })
	r.Start()
	r.OnTick(res)
	r.Stop()
	out := buf.String()
	g.Expect(out).To(HavePrefix(hideCursor))
	g.Expect(out).To(HaveSuffix(showCursor))
	g.Expect(out).To(ContainSubstring("walk  t=0.50s  " + plan.SingleSupport.String()))
	g.Expect(r.history).To(HaveLen(1))
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestInteractiveRunsScenario(t *testing.T) {
	g := NewWithT(t)
	var m tea.Model = NewInteractiveApp(config.DefaultConfig())
	g.Expect(m.View()).To(ContainSubstring("stand"))

	app := m.(*model)
	for i, name := range app.scenarios {
		if name == "stand" {
			app.cursor = i
		}
	}
	m, cmd := app.Update(key("enter"))
	g.Expect(cmd).NotTo(BeNil())
	mm := m.(model)
	g.Expect(mm.state).To(Equal(stateSim))
	g.Expect(mm.err).NotTo(HaveOccurred())

	m, _ = mm.Update(tickMsg(time.Now()))
	mm = m.(model)
	g.Expect(mm.err).NotTo(HaveOccurred())
	g.Expect(mm.t).To(BeNumerically(">", 0))
	g.Expect(mm.feed.has).To(BeTrue())
	g.Expect(mm.history).To(HaveLen(1))
	view := mm.View()
	g.Expect(view).To(ContainSubstring("standing"))
	g.Expect(strings.Count(view, "\n")).To(BeNumerically(">", 12))

	m, _ = mm.Update(key(" "))
	g.Expect(m.(model).paused).To(BeTrue())
	m, _ = m.(model).Update(key("q"))
	g.Expect(m.(model).state).To(Equal(stateMenu))
}
