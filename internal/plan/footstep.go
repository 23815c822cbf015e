package plan

import (
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/geometry"
)

// Footstep is one planned touchdown. The swing of Side starts after
// TransferDuration of double support and lasts SwingDuration.
type Footstep struct {
	Side             contact.Side
	Pose             geometry.Pose
	SwingDuration    float64
	TransferDuration float64
}

// Queue is the remaining footstep plan in execution order.
type Queue struct {
	steps []Footstep
}

func NewQueue(steps ...Footstep) *Queue {
	q := &Queue{}
	q.steps = append(q.steps, steps...)
	return q
}

func (q *Queue) Push(s Footstep) { q.steps = append(q.steps, s) }
func (q *Queue) Len() int        { return len(q.steps) }
func (q *Queue) Clear()          { q.steps = q.steps[:0] }

func (q *Queue) Peek() (Footstep, bool) {
	if len(q.steps) == 0 {
		return Footstep{}, false
	}
	return q.steps[0], true
}

func (q *Queue) Pop() (Footstep, bool) {
	s, ok := q.Peek()
	if ok {
		q.steps = q.steps[1:]
	}
	return s, ok
}

// Remaining returns a copy of the queued steps.
func (q *Queue) Remaining() []Footstep {
	out := make([]Footstep, len(q.steps))
	copy(out, q.steps)
	return out
}
