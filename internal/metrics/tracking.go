package metrics

import "math"

// ICPTracking is the RMS capture point tracking error.
type ICPTracking struct {
	sumSq   float64
	samples int
}

func NewICPTracking() *ICPTracking { return &ICPTracking{} }

func (m *ICPTracking) Name() string { return "icp_rms" }

func (m *ICPTracking) Observe(r Record) {
	m.sumSq += r.ICPError * r.ICPError
	m.samples++
}

func (m *ICPTracking) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return math.Sqrt(m.sumSq / float64(m.samples))
}

func (m *ICPTracking) Reset() {
	m.sumSq = 0
	m.samples = 0
}

// SolveRate is the fraction of ticks whose whole-body QP solved.
type SolveRate struct {
	solved  int
	samples int
}

func NewSolveRate() *SolveRate { return &SolveRate{} }

func (m *SolveRate) Name() string { return "solve_rate" }

func (m *SolveRate) Observe(r Record) {
	if r.Solved {
		m.solved++
	}
	m.samples++
}

func (m *SolveRate) Value() float64 {
	if m.samples == 0 {
		return 1
	}
	return float64(m.solved) / float64(m.samples)
}

func (m *SolveRate) Reset() { m.solved, m.samples = 0, 0 }

type LateTouchdowns struct {
	count int
}

func NewLateTouchdowns() *LateTouchdowns { return &LateTouchdowns{} }

func (m *LateTouchdowns) Name() string { return "late_touchdowns" }

func (m *LateTouchdowns) Observe(r Record) {
	if r.LateTouchdown {
		m.count++
	}
}

func (m *LateTouchdowns) Value() float64 { return float64(m.count) }
func (m *LateTouchdowns) Reset()         { m.count = 0 }
