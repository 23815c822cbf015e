package optim

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/san-kum/stride/internal/config"
	"github.com/san-kum/stride/internal/scenario"
)

func TestCandidates(t *testing.T) {
	g := NewWithT(t)
	gs, err := NewGridSearch([]string{"icp_gain", "com_weight"}, [][]float64{{1, 2, 3}, {5, 10}}, 1)
	g.Expect(err).NotTo(HaveOccurred())

	cands := gs.Candidates()
	g.Expect(cands).To(HaveLen(6))
	g.Expect(cands[0]).To(Equal(map[string]float64{"icp_gain": 1, "com_weight": 5}))
	g.Expect(cands[5]).To(Equal(map[string]float64{"icp_gain": 3, "com_weight": 10}))
}

func TestNewGridSearchRejectsBadInput(t *testing.T) {
	g := NewWithT(t)
	_, err := NewGridSearch([]string{"warp_factor"}, [][]float64{{1}}, 1)
	g.Expect(errors.Is(err, ErrUnknownParam)).To(BeTrue())

	_, err = NewGridSearch([]string{"icp_gain"}, nil, 1)
	g.Expect(err).To(HaveOccurred())

	_, err = NewGridSearch([]string{"icp_gain"}, [][]float64{{}}, 1)
	g.Expect(err).To(MatchError(ContainSubstring("empty range")))
}

func TestParamsApply(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	for _, name := range ParamNames() {
		Params[name](cfg, 42)
	}
	g.Expect(cfg.Controller.ICP.Gain).To(Equal(42.0))
	g.Expect(cfg.Controller.Pelvis.Kd).To(Equal(42.0))
	g.Expect(cfg.Controller.MPC.RhoWeight).To(Equal(42.0))
}

func TestSearch(t *testing.T) {
	g := NewWithT(t)
	gs, err := NewGridSearch([]string{"icp_gain"}, [][]float64{{1, 2}}, 2)
	g.Expect(err).NotTo(HaveOccurred())

	sc := &scenario.Scenario{Name: "short", Duration: 0.2}
	obj := Objective{Metric: "icp_rms"}
	trials, err := gs.Search(context.Background(), config.DefaultConfig(), sc, obj)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(trials).To(HaveLen(2))
	for _, tr := range trials {
		g.Expect(tr.Err).NotTo(HaveOccurred())
		g.Expect(tr.Metrics).To(HaveKey("icp_rms"))
		g.Expect(tr.Score).To(Equal(tr.Value(obj)))
	}
	g.Expect(trials[0].Score).To(BeNumerically("<=", trials[1].Score))

	_, err = gs.Search(context.Background(), config.DefaultConfig(), sc, Objective{Metric: "solve_rate", Maximize: true})
	g.Expect(err).NotTo(HaveOccurred())
}

func TestSearchRejectsInvalidCandidate(t *testing.T) {
	g := NewWithT(t)
	gs, err := NewGridSearch([]string{"com_weight"}, [][]float64{{-1}}, 1)
	g.Expect(err).NotTo(HaveOccurred())
	_, err = gs.Search(context.Background(), config.DefaultConfig(), &scenario.Scenario{Duration: 0.1}, Objective{Metric: "icp_rms"})
	g.Expect(errors.Is(err, config.ErrInvalid)).To(BeTrue())
}
