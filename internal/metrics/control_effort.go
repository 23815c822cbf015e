package metrics

import "gonum.org/v1/gonum/floats"

// ControlEffort is the mean over ticks of the L1 norm of the joint torques.
type ControlEffort struct {
	total float64
	ticks int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (*ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(r Record) {
	if len(r.Torques) > 0 {
		c.total += floats.Norm(r.Torques, 1)
	}
	c.ticks++
}

func (c *ControlEffort) Value() float64 {
	if c.ticks == 0 {
		return 0
	}
	return c.total / float64(c.ticks)
}

func (c *ControlEffort) Reset() { *c = ControlEffort{} }
