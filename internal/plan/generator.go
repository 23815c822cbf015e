package plan

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/geometry"
)

var ErrNoActiveStep = errors.New("plan: single support without an active step")

// Phase is the walking phase of the whole robot.
type Phase uint8

const (
	Standing Phase = iota
	Transfer
	SingleSupport
)

func (p Phase) String() string {
	switch p {
	case Standing:
		return "standing"
	case Transfer:
		return "transfer"
	case SingleSupport:
		return "single_support"
	}
	return "unknown"
}

type GeneratorConfig struct {
	FinalTransferDuration float64 `yaml:"final_transfer_duration"`
	MaxSegments           int     `yaml:"max_segments"`
	Horizon               float64 `yaml:"horizon"`
	MinSegmentDuration    float64 `yaml:"min_segment_duration"`
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		FinalTransferDuration: 1.0,
		MaxSegments:           6,
		Horizon:               3.0,
		MinSegmentDuration:    0.02,
	}
}

// State is what the generator needs to know about the current phase.
type State struct {
	Time       float64
	Phase      Phase
	PhaseStart float64
	// Initial marks a transfer that starts from standing.
	Initial bool
	// Active is the step being swung during single support.
	Active *Footstep
	Feet   [2]contact.Plane
}

// Generator turns the current phase and the remaining footsteps into
// contiguous segments starting now.
type Generator struct {
	cfg GeneratorConfig
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{cfg: cfg}
}

type builder struct {
	cfg      GeneratorConfig
	segments []Segment
	feet     [2]contact.Plane
	t        float64
	limit    float64
}

func (b *builder) full() bool {
	return len(b.segments) >= b.cfg.MaxSegments || b.t >= b.limit
}

func (b *builder) add(duration float64, loaded []contact.Side, from, to r3.Vector) {
	if b.full() {
		return
	}
	seg := Segment{
		Index:     len(b.segments),
		Start:     b.t,
		End:       b.t + math.Max(duration, b.cfg.MinSegmentDuration),
		StartECMP: from,
		EndECMP:   to,
	}
	rate := to.Sub(from).Mul(1 / seg.Duration())
	seg.StartECMPVelocity, seg.EndECMPVelocity = rate, rate
	var support geometry.Polygon
	for _, side := range loaded {
		p := b.feet[side].Clone()
		p.InContact = true
		seg.Contacts = append(seg.Contacts, p)
		support = support.Union(p.SupportPolygon())
	}
	seg.Support = support
	b.segments = append(b.segments, seg)
	b.t = seg.End
}

func (b *builder) land(step Footstep) {
	p := b.feet[step.Side].Clone()
	p.Pose = step.Pose
	p.InContact = true
	p.ResetFoothold()
	b.feet[step.Side] = p
}

func (b *builder) centroid(side contact.Side) r3.Vector {
	p := &b.feet[side]
	c := p.SupportPolygon().Centroid()
	if p.NumActive() == 0 {
		c = p.Pose.Position2()
	}
	return r3.Vector{X: c.X, Y: c.Y, Z: p.Pose.Position.Z}
}

func (b *builder) midpoint() r3.Vector {
	return b.centroid(contact.Left).Add(b.centroid(contact.Right)).Mul(0.5)
}

func lerp(a, c r3.Vector, s float64) r3.Vector {
	return a.Add(c.Sub(a).Mul(s))
}

func both() []contact.Side { return []contact.Side{contact.Left, contact.Right} }

// Generate builds the segment list. Segments cover the current phase first,
// then alternate transfer and single support for each remaining step, and
// end with a transfer to standing between both feet.
func (g *Generator) Generate(st State, steps []Footstep) ([]Segment, error) {
	b := &builder{cfg: g.cfg, feet: st.Feet, t: st.Time, limit: st.Time + g.cfg.Horizon}
	for _, side := range contact.Sides {
		if !b.feet[side].InContact {
			b.feet[side] = b.feet[side].Clone()
			b.feet[side].InContact = true
		}
	}
	last := contact.Left

	switch st.Phase {
	case Standing:
		mid := b.midpoint()
		if len(steps) == 0 {
			b.add(g.cfg.FinalTransferDuration, both(), mid, mid)
			return b.segments, nil
		}
		st.PhaseStart = st.Time
		st.Initial = true
		fallthrough
	case Transfer:
		if len(steps) == 0 {
			mid := b.midpoint()
			b.add(st.PhaseStart+g.cfg.FinalTransferDuration-st.Time, both(), mid, mid)
			return b.segments, nil
		}
		next := steps[0]
		from := b.centroid(next.Side)
		if st.Initial {
			from = b.midpoint()
		}
		to := b.centroid(next.Side.Opposite())
		end := st.PhaseStart + next.TransferDuration
		s := 0.0
		if next.TransferDuration > 0 {
			s = math.Min(1, math.Max(0, (st.Time-st.PhaseStart)/next.TransferDuration))
		}
		b.add(end-st.Time, both(), lerp(from, to, s), to)
		b.add(next.SwingDuration, []contact.Side{next.Side.Opposite()}, to, to)
		b.land(next)
		last = next.Side
		steps = steps[1:]
	case SingleSupport:
		if st.Active == nil {
			return nil, ErrNoActiveStep
		}
		stance := st.Active.Side.Opposite()
		c := b.centroid(stance)
		b.add(st.PhaseStart+st.Active.SwingDuration-st.Time, []contact.Side{stance}, c, c)
		b.land(*st.Active)
		last = st.Active.Side
	}

	for _, step := range steps {
		if b.full() {
			break
		}
		from, to := b.centroid(step.Side), b.centroid(step.Side.Opposite())
		b.add(step.TransferDuration, both(), from, to)
		b.add(step.SwingDuration, []contact.Side{step.Side.Opposite()}, to, to)
		b.land(step)
		last = step.Side
	}
	b.add(g.cfg.FinalTransferDuration, both(), b.centroid(last.Opposite()), b.midpoint())
	return b.segments, nil
}
