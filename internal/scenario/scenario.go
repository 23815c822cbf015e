// Package scenario names the footstep programs a run can execute and wires
// a simulated biped, the walking controller and the run metrics around one.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/geometry"
	"github.com/san-kum/stride/internal/plan"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSwing    = 0.6
	DefaultTransfer = 0.3
)

var ErrUnknown = errors.New("scenario: unknown")

// Scenario is a footstep program. Step offsets are relative to the initial
// pose of the stepping foot, in the world frame.
type Scenario struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Duration    float64    `yaml:"duration,omitempty"`
	Steps       []StepSpec `yaml:"steps"`
}

type StepSpec struct {
	Side     string  `yaml:"side"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Yaw      float64 `yaml:"yaw"`
	Swing    float64 `yaml:"swing,omitempty"`
	Transfer float64 `yaml:"transfer,omitempty"`
}

func parseSide(s string) (contact.Side, error) {
	switch strings.ToLower(s) {
	case "left", "l":
		return contact.Left, nil
	case "right", "r":
		return contact.Right, nil
	}
	return 0, fmt.Errorf("scenario: bad side %q", s)
}

// Footsteps resolves the program against the initial foot planes.
func (s *Scenario) Footsteps(feet [2]contact.Plane) ([]plan.Footstep, error) {
	out := make([]plan.Footstep, 0, len(s.Steps))
	for i, st := range s.Steps {
		side, err := parseSide(st.Side)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		swing, transfer := st.Swing, st.Transfer
		if swing <= 0 {
			swing = DefaultSwing
		}
		if transfer <= 0 {
			transfer = DefaultTransfer
		}
		p := feet[side].Pose.Position
		out = append(out, plan.Footstep{
			Side:             side,
			Pose:             geometry.NewPose(p.X+st.X, p.Y+st.Y, p.Z, st.Yaw),
			SwingDuration:    swing,
			TransferDuration: transfer,
		})
	}
	return out, nil
}

// NominalDuration is the time the program needs plus a second of settling.
func (s *Scenario) NominalDuration(finalTransfer float64) float64 {
	if s.Duration > 0 {
		return s.Duration
	}
	d := 1.0 + finalTransfer
	for _, st := range s.Steps {
		swing, transfer := st.Swing, st.Transfer
		if swing <= 0 {
			swing = DefaultSwing
		}
		if transfer <= 0 {
			transfer = DefaultTransfer
		}
		d += swing + transfer
	}
	return d
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for i, st := range sc.Steps {
		if _, err := parseSide(st.Side); err != nil {
			return nil, fmt.Errorf("scenario: %s: step %d: %w", path, i+1, err)
		}
	}
	return &sc, nil
}

func Save(path string, sc *Scenario) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var builtin = map[string]func() *Scenario{
	"stand": func() *Scenario {
		return &Scenario{Name: "stand", Description: "Balance in double support", Duration: 3}
	},
	"walk":          func() *Scenario { return Walk(6, 0.1) },
	"step_in_place": func() *Scenario { return Walk(4, 0) },
	"side_step": func() *Scenario {
		sc := &Scenario{Name: "side_step", Description: "Three steps to the left"}
		for i := 1; i <= 3; i++ {
			y := 0.08 * float64(i)
			sc.Steps = append(sc.Steps,
				StepSpec{Side: "left", Y: y},
				StepSpec{Side: "right", Y: y},
			)
		}
		return sc
	},
	"turn": func() *Scenario {
		sc := &Scenario{Name: "turn", Description: "Turn in place to the left"}
		for i := 1; i <= 3; i++ {
			yaw := 0.15 * float64(i)
			sc.Steps = append(sc.Steps,
				StepSpec{Side: "left", Yaw: yaw},
				StepSpec{Side: "right", Yaw: yaw},
			)
		}
		return sc
	},
}

// Walk steps forward n times, right foot first, and closes with the
// trailing foot landing beside the leading one.
func Walk(n int, stride float64) *Scenario {
	sc := &Scenario{
		Name:        "walk",
		Description: fmt.Sprintf("%d steps of %.2f m", n, stride),
	}
	if stride == 0 {
		sc.Name, sc.Description = "step_in_place", fmt.Sprintf("%d steps in place", n)
	}
	sides := [2]string{"right", "left"}
	for i := 0; i < n; i++ {
		sc.Steps = append(sc.Steps, StepSpec{Side: sides[i%2], X: stride * float64(i+1)})
	}
	if n > 0 {
		sc.Steps = append(sc.Steps, StepSpec{Side: sides[n%2], X: stride * float64(n)})
	}
	return sc
}

func Get(name string) (*Scenario, error) {
	fn, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return fn(), nil
}

func List() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve loads a YAML file when ref names one and looks up a built-in
// scenario otherwise.
func Resolve(ref string) (*Scenario, error) {
	switch filepath.Ext(ref) {
	case ".yaml", ".yml":
		return Load(ref)
	}
	return Get(ref)
}
