package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/san-kum/stride/internal/config"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/models"
	"github.com/san-kum/stride/internal/plan"
	"github.com/san-kum/stride/internal/walking"
)

func feet() [2]contact.Plane {
	b := models.NewCartesianBiped(models.DefaultBipedParams())
	var out [2]contact.Plane
	for _, s := range contact.Sides {
		out[s] = b.ContactPlane(s, 0.7, 4)
	}
	return out
}

func TestBuiltinScenarios(t *testing.T) {
	g := NewWithT(t)
	names := List()
	g.Expect(names).To(ConsistOf("stand", "walk", "step_in_place", "side_step", "turn"))
	g.Expect(names).To(BeEquivalentTo([]string{"side_step", "stand", "step_in_place", "turn", "walk"}))

	for _, name := range names {
		sc, err := Get(name)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(sc.Name).To(Equal(name))
		_, err = sc.Footsteps(feet())
		g.Expect(err).NotTo(HaveOccurred())
	}

	_, err := Get("moonwalk")
	g.Expect(errors.Is(err, ErrUnknown)).To(BeTrue())
}

func TestWalkFootsteps(t *testing.T) {
	g := NewWithT(t)
	f := feet()
	steps, err := Walk(3, 0.1).Footsteps(f)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(steps).To(HaveLen(4))

	sides := []contact.Side{contact.Right, contact.Left, contact.Right, contact.Left}
	xs := []float64{0.1, 0.2, 0.3, 0.3}
	for i, st := range steps {
		g.Expect(st.Side).To(Equal(sides[i]))
		start := f[st.Side].Pose.Position
		g.Expect(st.Pose.Position.X - start.X).To(BeNumerically("~", xs[i], 1e-12))
		g.Expect(st.Pose.Position.Y).To(Equal(start.Y))
		g.Expect(st.SwingDuration).To(Equal(DefaultSwing))
		g.Expect(st.TransferDuration).To(Equal(DefaultTransfer))
	}
}

func TestNominalDuration(t *testing.T) {
	g := NewWithT(t)
	sc := &Scenario{Steps: []StepSpec{{Side: "left"}, {Side: "right", Swing: 0.5, Transfer: 0.2}}}
	g.Expect(sc.NominalDuration(1)).To(BeNumerically("~", 2+DefaultSwing+DefaultTransfer+0.7, 1e-12))

	sc.Duration = 4
	g.Expect(sc.NominalDuration(1)).To(Equal(4.0))
}

func TestLoadAndResolve(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "hop.yaml")
	sc := &Scenario{
		Description: "one step",
		Steps:       []StepSpec{{Side: "R", X: 0.05, Swing: 0.5}},
	}
	g.Expect(Save(path, sc)).To(Succeed())

	loaded, err := Resolve(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(loaded.Name).To(Equal("hop"))
	g.Expect(loaded.Steps).To(Equal(sc.Steps))

	steps, err := loaded.Footsteps(feet())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(steps[0].Side).To(Equal(contact.Right))

	bad := filepath.Join(dir, "bad.yaml")
	g.Expect(os.WriteFile(bad, []byte("steps:\n  - side: middle\n"), 0644)).To(Succeed())
	_, err = Load(bad)
	g.Expect(err).To(MatchError(ContainSubstring("bad side")))

	walk, err := Resolve("walk")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(walk.Steps).NotTo(BeEmpty())
}

func TestBuildPublishesSteps(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	sc, _ := Get("walk")
	h, err := Build(cfg, sc, Options{})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(h.SimConfig.Dt).To(Equal(cfg.Controller.Dt))
	g.Expect(h.SimConfig.Duration).To(Equal(sc.NominalDuration(cfg.Controller.Generator.FinalTransferDuration)))

	steps, fresh, ok := h.Controller.Sources().Steps.Read()
	g.Expect(ok).To(BeTrue())
	g.Expect(fresh).To(BeTrue())
	g.Expect(steps).To(HaveLen(len(sc.Steps)))

	cfg.Integrator = "leapfrog"
	_, err = Build(cfg, sc, Options{})
	g.Expect(err).To(MatchError(ContainSubstring("unknown integrator")))
}

func TestRunStanding(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.RecordEvery = 10
	sc := &Scenario{Name: "short", Duration: 0.4}

	var ticks int
	out, err := Run(context.Background(), cfg, sc, Options{OnTick: func(walking.TickResult) { ticks++ }})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(out.Scenario).To(Equal("short"))
	g.Expect(ticks).To(Equal(out.Result.StepsTaken))
	g.Expect(out.Ticks).To(HaveLen((ticks + 9) / 10))
	for _, tr := range out.Ticks {
		g.Expect(tr.Phase).To(Equal(plan.Standing))
	}
	g.Expect(out.Metrics).To(HaveKeyWithValue("solve_rate", 1.0))
	g.Expect(out.Metrics).To(HaveKeyWithValue("late_touchdowns", 0.0))
	g.Expect(out.Metrics["icp_rms"]).To(BeNumerically("<", ICPErrorThreshold))
}

func TestRunWalk(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.RecordEvery = 50
	sc, err := Get("walk")
	g.Expect(err).NotTo(HaveOccurred())

	var fatal error
	out, err := Run(context.Background(), cfg, sc, Options{Supervisor: supervisorFunc(func(err error) { fatal = err })})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(fatal).NotTo(HaveOccurred())
	g.Expect(out.Ticks).NotTo(BeEmpty())
	g.Expect(out.Ticks[len(out.Ticks)-1].Phase).To(Equal(plan.Standing))
}

type supervisorFunc func(error)

func (f supervisorFunc) ControllerFailed(err error) { f(err) }
