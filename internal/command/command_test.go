package command

import (
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"
)

func TestRoundTrip(t *testing.T) {
	g := NewWithT(t)

	tests := []struct {
		name   string
		cmd    Command
		target string
		weight float64
	}{
		{"joint", NewJointAcceleration("left_z", 0.5, 10), "left_z", 10},
		{"spatial hard", NewSpatialAcceleration("left_foot", make([]float64, 6), nil, 0, Hard), "left_foot", Hard},
		{"com", NewCenterOfMass([]float64{0, 0, 0}, 2.5), "com", 2.5},
		{"value", NewValue(ICP, 2, 0.4, []float64{1, 2, 3}, 500), "icp", 500},
	}
	for _, tt := range tests {
		g.Expect(tt.cmd.TargetName()).To(Equal(tt.target), tt.name)
		g.Expect(tt.cmd.WeightValue()).To(Equal(tt.weight), tt.name)
	}

	c := NewValue(CoMPosition, 0, 0, []float64{0.1, 0.2, 0.9}, 5e2)
	g.Expect(c.DesiredValue()).To(Equal([]float64{0.1, 0.2, 0.9}))
}

func TestHardWeightBecomesEquality(t *testing.T) {
	g := NewWithT(t)

	c := NewJointAcceleration("j", 0, Hard)
	g.Expect(c.IsHard()).To(BeTrue())
	g.Expect(c.Constraint).To(Equal(Equality))
	g.Expect(math.IsInf(c.Weight, 1)).To(BeTrue())

	soft := NewJointAcceleration("j", 0, 1)
	g.Expect(soft.IsHard()).To(BeFalse())
	g.Expect(soft.Constraint).To(Equal(Objective))
}

func TestResolveHardWins(t *testing.T) {
	g := NewWithT(t)
	l := NewList(4)

	pitchFree := []bool{true, true, true, true, false, true}
	l.Add(NewSpatialAcceleration("left_foot", make([]float64, 6), pitchFree, 0, Hard))
	l.Add(NewSpatialAcceleration("left_foot", make([]float64, 6), nil, 0, 10))
	l.Add(NewSpatialAcceleration("right_foot", make([]float64, 6), nil, 0, 10))
	l.Add(NewJointAcceleration("j", 0, Hard))
	l.Add(NewJointAcceleration("j", 1, 3))

	removed := l.Resolve()
	g.Expect(removed).To(Equal(6))
	g.Expect(l.Len()).To(Equal(4))

	soft := l.At(1)
	g.Expect(soft.Target).To(Equal("left_foot"))
	g.Expect(soft.NumSelected(6)).To(Equal(1))
	g.Expect(soft.Selected(4)).To(BeTrue())

	g.Expect(l.At(2).Target).To(Equal("right_foot"))
	g.Expect(l.At(2).Selection).To(BeNil())
}

func TestResolveKeepsDifferentFrames(t *testing.T) {
	g := NewWithT(t)
	l := NewList(2)
	l.Add(NewSpatialAcceleration("foot", make([]float64, 6), nil, 0.5, Hard))
	l.Add(NewSpatialAcceleration("foot", make([]float64, 6), nil, 0, 1))

	g.Expect(l.Resolve()).To(Equal(0))
	g.Expect(l.Len()).To(Equal(2))
	g.Expect(l.At(1).Selection).To(BeNil(), "a soft command in another frame keeps every axis")

	// Re-issued in the hard command's frame, the soft command is overridden.
	l.Reset()
	l.Add(NewSpatialAcceleration("foot", make([]float64, 6), nil, 0.5, Hard))
	l.Add(NewSpatialAcceleration("foot", make([]float64, 6), nil, 0.5, 1))
	g.Expect(l.Resolve()).To(Equal(6))
	g.Expect(l.Len()).To(Equal(1))
}

func TestResolveReusesScratch(t *testing.T) {
	g := NewWithT(t)
	l := NewList(8)
	pitchFree := []bool{true, true, true, true, false, true}
	cmds := []Command{
		NewSpatialAcceleration("left_foot", make([]float64, 6), pitchFree, 0, Hard),
		NewSpatialAcceleration("left_foot", make([]float64, 6), nil, 0, 10),
		NewCenterOfMass(make([]float64, 3), Hard),
		NewCenterOfMass(make([]float64, 3), 1),
		NewJointAcceleration("j", 0, Hard),
		NewJointAcceleration("j", 1, 3),
	}
	allocs := testing.AllocsPerRun(100, func() {
		l.Reset()
		for _, c := range cmds {
			l.Add(c)
		}
		l.Resolve()
	})
	g.Expect(allocs).To(BeZero())
	g.Expect(l.Len()).To(Equal(4))
	g.Expect(l.At(1).Selected(4)).To(BeTrue())
	g.Expect(l.At(1).NumSelected(6)).To(Equal(1))
}

func TestTableApply(t *testing.T) {
	g := NewWithT(t)
	l := NewList(2)
	l.Add(NewJointAcceleration("a", 0, 1))
	l.Add(NewCenterOfMass([]float64{0, 0, 0}, 1))

	var table Table
	seen := 0
	table.Register(JointAcceleration, func(*Command) error { seen++; return nil })
	err := table.Apply(l)
	g.Expect(errors.Is(err, ErrUnhandledKind)).To(BeTrue())
	g.Expect(seen).To(Equal(1))

	table.Register(CenterOfMass, func(*Command) error { seen++; return nil })
	seen = 0
	g.Expect(table.Apply(l)).To(Succeed())
	g.Expect(seen).To(Equal(2))
}

func TestValidateRejectsZeroWeight(t *testing.T) {
	g := NewWithT(t)
	c := NewJointAcceleration("a", 0, 0)
	g.Expect(c.Validate()).To(MatchError(ErrInvalidWeight))
}
