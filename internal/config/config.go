package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/san-kum/stride/internal/models"
	"github.com/san-kum/stride/internal/walking"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDuration      = 6.0
	DefaultFriction      = 0.7
	DefaultBasisPerPoint = 4
	DefaultContactHeight = 0.002
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Scenario      string             `yaml:"scenario"`
	Integrator    string             `yaml:"integrator"`
	Duration      float64            `yaml:"duration"`
	RecordEvery   int                `yaml:"record_every"`
	Friction      float64            `yaml:"friction"`
	BasisPerPoint int                `yaml:"basis_per_point"`
	ContactHeight float64            `yaml:"contact_height"`
	Log           LogConfig          `yaml:"log"`
	Robot         models.BipedParams `yaml:"robot"`
	Controller    walking.Config     `yaml:"controller"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		Scenario:      "stand",
		Integrator:    "semi_implicit_euler",
		Duration:      DefaultDuration,
		RecordEvery:   5,
		Friction:      DefaultFriction,
		BasisPerPoint: DefaultBasisPerPoint,
		ContactHeight: DefaultContactHeight,
		Log:           LogConfig{Level: "info"},
		Robot:         models.DefaultBipedParams(),
		Controller:    walking.DefaultConfig(),
	}
}

// Load overlays the file at path on the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}
	ctrl := &c.Controller
	check(ctrl.Dt > 0, "controller.dt must be positive, got %g", ctrl.Dt)
	check(c.Duration > 0, "duration must be positive, got %g", c.Duration)
	check(c.Friction > 0, "friction must be positive, got %g", c.Friction)
	check(c.BasisPerPoint >= 3, "basis_per_point must be at least 3, got %d", c.BasisPerPoint)
	check(c.ContactHeight >= 0, "contact_height must not be negative")
	check(c.Robot.BaseMass > 0 && c.Robot.FootMass > 0, "robot masses must be positive")
	check(c.Robot.LegLength > 0, "robot.leg_length must be positive")
	check(ctrl.StageBudget >= 0, "controller.stage_budget must not be negative")
	check(ctrl.ToeOffLeadTime >= 0, "controller.toe_off_lead_time must not be negative")
	check(ctrl.CoMWeight > 0, "controller.com_weight must be positive")
	check(ctrl.MPC.ReplanEvery >= 1, "controller.mpc.replan_every must be at least 1")
	check(ctrl.MPC.QuadratureNodes >= 1, "controller.mpc.quadrature_nodes must be at least 1")
	check(ctrl.MPC.MaxSegments >= 1, "controller.mpc.max_segments must be at least 1")
	check(ctrl.Generator.MaxSegments <= ctrl.MPC.MaxSegments,
		"controller.generator.max_segments %d exceeds controller.mpc.max_segments %d",
		ctrl.Generator.MaxSegments, ctrl.MPC.MaxSegments)
	check(ctrl.MPC.VRPTrackingWeight >= 0 && ctrl.MPC.RhoWeight >= 0, "controller.mpc weights must not be negative")
	check(ctrl.WBC.MaxConsecutiveFailures >= 1, "controller.wbc.max_consecutive_failures must be at least 1")
	check(ctrl.WBC.Tolerance > 0, "controller.wbc.tolerance must be positive")
	check(ctrl.WBC.LimitHorizon >= 0 && ctrl.WBC.LimitWeight >= 0 && ctrl.WBC.LimitDeceleration >= 0,
		"controller.wbc limit settings must not be negative")
	check(ctrl.Foot.MinSwingFraction > 0 && ctrl.Foot.MinSwingFraction <= 1,
		"controller.foot.min_swing_fraction must be in (0, 1], got %g", ctrl.Foot.MinSwingFraction)
	check(ctrl.Foot.Foothold.MinActiveVertices == 1 || ctrl.Foot.Foothold.MinActiveVertices == 2,
		"controller.foot.foothold.min_active_vertices must be 1 or 2")
	return errs
}
