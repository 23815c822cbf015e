package metrics

// Record is what one control tick reports to the run metrics.
type Record struct {
	Time          float64
	ICPError      float64
	Torques       []float64
	Solved        bool
	LateTouchdown bool
	Iterations    int
}

type Metric interface {
	Name() string
	Observe(r Record)
	Value() float64
	Reset()
}

// Standard returns the metrics reported after every run.
func Standard(icpThreshold float64) []Metric {
	return []Metric{
		NewControlEffort(),
		NewICPTracking(),
		NewStability(icpThreshold),
		NewSolveRate(),
		NewLateTouchdowns(),
	}
}
