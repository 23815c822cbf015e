package metrics

// Stability is the fraction of ticks that solved and kept the capture point
// within threshold of its plan.
type Stability struct {
	threshold float64
	stable    int
	ticks     int
}

func NewStability(threshold float64) *Stability {
	return &Stability{threshold: threshold}
}

func (*Stability) Name() string { return "stability" }

func (s *Stability) Observe(r Record) {
	s.ticks++
	if r.Solved && r.ICPError <= s.threshold {
		s.stable++
	}
}

// Value is 1 before any tick.
func (s *Stability) Value() float64 {
	if s.ticks == 0 {
		return 1
	}
	return float64(s.stable) / float64(s.ticks)
}

func (s *Stability) Reset() { s.stable, s.ticks = 0, 0 }
