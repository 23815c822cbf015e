package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/golang/geo/r2"
	"github.com/san-kum/stride/internal/config"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/footstate"
	"github.com/san-kum/stride/internal/scenario"
	"github.com/san-kum/stride/internal/sim"
	"github.com/san-kum/stride/internal/walking"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

type state int

// feed holds the latest tick result. The model is copied on every update,
// so the tick hook writes through a pointer.
type feed struct {
	last walking.TickResult
	has  bool
}

const (
	stateMenu state = iota
	stateSim
)

type model struct {
	state     state
	cursor    int
	scenarios []string
	cfg       *config.Config

	harness   *scenario.Harness
	x         sim.State
	t         float64
	feed      *feed
	err       error
	paused    bool
	speed     float64
	history   []float64
	lastFrame time.Time
	fps       float64

	width  int
	height int
}

func NewInteractiveApp(cfg *config.Config) *model {
	return &model{
		state:     stateMenu,
		scenarios: scenario.List(),
		cfg:       cfg,
		speed:     1,
		feed:      &feed{},
		history:   make([]float64, 0, 60),
		width:     80,
		height:    24,
	}
}

func (m model) Init() tea.Cmd { return nil }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(16*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateMenu {
			return m.menuKey(msg)
		}
		return m.simKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.state != stateSim {
			return m, nil
		}
		if !m.paused && m.err == nil {
			now := time.Now()
			if !m.lastFrame.IsZero() {
				if dt := now.Sub(m.lastFrame).Seconds(); dt > 0 {
					m.fps = 1 / dt
				}
			}
			m.lastFrame = now
			m.advance()
		}
		return m, tick()
	}
	return m, nil
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.scenarios)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.start()
		return m, tea.Batch(tea.ClearScreen, tick())
	}
	return m, nil
}

func (m model) simKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "esc":
		m.state = stateMenu
		m.harness = nil
		return m, tea.ClearScreen
	case " ", "p":
		m.paused = !m.paused
	case "r":
		m.start()
		return m, tea.ClearScreen
	case "+", "=":
		m.speed = math.Min(m.speed*2, 16)
	case "-", "_":
		m.speed = math.Max(m.speed/2, 0.25)
	case "0":
		m.speed = 1
	}
	return m, nil
}

func (m *model) start() {
	m.state = stateSim
	m.paused = false
	m.speed = 1
	m.t = 0
	m.err = nil
	m.feed = &feed{}
	m.history = m.history[:0]
	m.lastFrame = time.Time{}

	sc, err := scenario.Get(m.scenarios[m.cursor])
	if err == nil {
		m.harness, err = scenario.Build(m.cfg, sc, scenario.Options{})
	}
	if err != nil {
		m.err = err
		return
	}
	m.x = m.harness.X0.Clone()
	f := m.feed
	m.harness.Loop.OnTick(func(res walking.TickResult) {
		f.last, f.has = res, true
	})
}

// advance runs the control ticks that fit in one frame at the current
// speed. A frame covers one sixtieth of simulated time at speed 1.
func (m *model) advance() {
	if m.harness == nil {
		return
	}
	dt := m.harness.SimConfig.Dt
	steps := max(int(m.speed/60/dt), 1)
	for i := 0; i < steps; i++ {
		if m.t >= m.harness.SimConfig.Duration {
			m.paused = true
			return
		}
		x, err := m.harness.Step(context.Background(), m.x, m.t)
		if err != nil {
			m.err = err
			return
		}
		m.x = x
		m.t += dt
	}
	if m.feed.has {
		m.history = append(m.history, m.feed.last.ICPError)
		if len(m.history) > 60 {
			m.history = m.history[1:]
		}
	}
}

func (m model) View() string {
	if m.state == stateMenu {
		return m.viewMenu()
	}
	return m.viewSim()
}

func (m model) viewMenu() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("             " + cyan.Render("s t r i d e") + "\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("\n")

	for i, name := range m.scenarios {
		desc := ""
		if sc, err := scenario.Get(name); err == nil {
			desc = sc.Description
		}
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-16s", name)) + dim.Render(desc) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-16s", name)) + dimmer.Render(desc) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dim.Render("      ↑↓ select   enter start   q quit") + "\n")
	return b.String()
}

func modeStyle(mode footstate.Mode) lipgloss.Style {
	switch mode {
	case footstate.Swing:
		return yellow
	case footstate.FullSupport:
		return green
	}
	return magenta
}

func (m model) viewSim() string {
	var b strings.Builder
	name := m.scenarios[m.cursor]

	statusIcon, statusText := green.Render("●"), green.Render("running")
	switch {
	case m.err != nil:
		statusIcon, statusText = red.Render("✗"), red.Render("failed")
	case m.paused:
		statusIcon, statusText = yellow.Render("○"), yellow.Render("paused")
	}
	fmt.Fprintf(&b, "\n   %s %s  %s\n", statusIcon, cyan.Render(name), statusText)
	if m.err != nil {
		fmt.Fprintf(&b, "   %s\n", red.Render(m.err.Error()))
	}
	if m.harness == nil {
		b.WriteString("\n" + dim.Render("   q back") + "\n")
		return b.String()
	}

	duration := m.harness.SimConfig.Duration
	progress := math.Min(m.t/duration, 1)
	barWidth := 36
	filled := int(progress * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	timeStr := fmt.Sprintf("%.1fs/%.1fs", m.t, duration)
	fmt.Fprintf(&b, "   %s %s  %s  %s\n\n", bar, dim.Render(timeStr),
		dim.Render(fmt.Sprintf("x%.2g", m.speed)), dim.Render(fmt.Sprintf("%.0ffps", m.fps)))

	cw, ch := max(m.width-6, 50), max(m.height-12, 12)
	center := r2.Point{}
	if m.feed.has {
		center = r2.Point{X: m.feed.last.CoM.X, Y: m.feed.last.CoM.Y}
	}
	c := newCanvas(cw, ch, center, pixelsPerM)
	if m.feed.has {
		drawStance(c, m.harness.Controller.Contacts(), m.feed.last)
	}
	for _, row := range c.rows() {
		b.WriteString("   " + row + "\n")
	}

	if m.feed.has {
		res := m.feed.last
		fmt.Fprintf(&b, "\n   %s %s  %s %s  %s %s  %s %s\n",
			dim.Render("phase"), white.Render(res.Phase.String()),
			dim.Render("left"), modeStyle(res.Modes[contact.Left]).Render(res.Modes[contact.Left].String()),
			dim.Render("right"), modeStyle(res.Modes[contact.Right]).Render(res.Modes[contact.Right].String()),
			dim.Render("steps left"), white.Render(fmt.Sprint(len(m.harness.Controller.Remaining()))))
		fmt.Fprintf(&b, "   %s %s  %s\n", dim.Render("icp err"),
			white.Render(fmt.Sprintf("%.3f", res.ICPError)), cyan.Render(sparkline(m.history, 24)))
	}

	b.WriteString("\n" + dim.Render("   space pause  ±speed  r restart  q back") + "\n")
	return b.String()
}

func RunInteractive(cfg *config.Config) error {
	p := tea.NewProgram(NewInteractiveApp(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
