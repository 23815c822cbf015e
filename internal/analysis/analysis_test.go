package analysis

import (
	"math"
	"testing"

	. "github.com/onsi/gomega"
)

func TestSpectrumFindsTone(t *testing.T) {
	g := NewWithT(t)
	const (
		rate = 100.0
		n    = 500
		tone = 2.0
	)
	data := make([]float64, n)
	for i := range data {
		data[i] = 3 + 0.5*math.Sin(2*math.Pi*tone*float64(i)/rate)
	}

	freqs, amp := Spectrum(data, rate)
	g.Expect(freqs).To(HaveLen(n/2 + 1))
	g.Expect(freqs[1]).To(BeNumerically("~", rate/n, 1e-12))
	g.Expect(amp[0]).To(BeNumerically("~", 0, 1e-9), "mean removed")

	f, a := Dominant(freqs, amp)
	g.Expect(f).To(BeNumerically("~", tone, 1e-9))
	g.Expect(a).To(BeNumerically("~", 0.5, 1e-6))
}

func TestSpectrumDegenerate(t *testing.T) {
	g := NewWithT(t)
	freqs, amp := Spectrum([]float64{1}, 10)
	g.Expect(freqs).To(BeNil())
	g.Expect(amp).To(BeNil())

	f, a := Dominant(nil, nil)
	g.Expect(f).To(BeZero())
	g.Expect(a).To(BeZero())
}

func TestComputeSway(t *testing.T) {
	g := NewWithT(t)
	xs := []float64{0, 0.01, 0.01, 0}
	ys := []float64{0, 0, 0.01, 0.01}
	s := ComputeSway(xs, ys, 0.1)

	g.Expect(s.PathLength).To(BeNumerically("~", 0.03, 1e-12))
	g.Expect(s.MeanVelocity).To(BeNumerically("~", 0.1, 1e-12))
	g.Expect(s.RMSX).To(BeNumerically("~", 0.005, 1e-12))
	g.Expect(s.RMSY).To(BeNumerically("~", 0.005, 1e-12))
	g.Expect(s.RangeX).To(BeNumerically("~", 0.01, 1e-12))
	g.Expect(s.Area95).To(BeNumerically(">", 0))
}

func TestComputeSwayStill(t *testing.T) {
	g := NewWithT(t)
	g.Expect(ComputeSway(nil, nil, 0.1)).To(Equal(Sway{}))

	s := ComputeSway([]float64{0.2, 0.2, 0.2}, []float64{0, 0, 0}, 0.1)
	g.Expect(s.PathLength).To(BeZero())
	g.Expect(s.Area95).To(BeZero())
}
