package wbc

import "github.com/san-kum/stride/internal/qp"

type Config struct {
	Dt                     float64 `yaml:"dt"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
	Tolerance              float64 `yaml:"tolerance"`

	JointAccelerationWeight float64 `yaml:"joint_acceleration_weight"`
	RhoWeight               float64 `yaml:"rho_weight"`
	MinRho                  float64 `yaml:"min_rho"`

	// A joint whose position, extrapolated over LimitHorizon, crosses a
	// limit is pulled toward the braking acceleration with LimitWeight. The
	// braking acceleration never exceeds LimitDeceleration.
	LimitHorizon      float64 `yaml:"limit_horizon"`
	LimitWeight       float64 `yaml:"limit_weight"`
	LimitDeceleration float64 `yaml:"limit_deceleration"`

	MaxRho      int       `yaml:"max_rho"`
	MaxHardRows int       `yaml:"max_hard_rows"`
	Solver      qp.Config `yaml:"solver"`
}

func DefaultConfig() Config {
	return Config{
		Dt:                     0.004,
		MaxConsecutiveFailures: 3,
		Tolerance:              1e-3,

		JointAccelerationWeight: 1e-4,
		RhoWeight:               1e-8,
		MinRho:                  0,

		LimitHorizon:      0.05,
		LimitWeight:       10,
		LimitDeceleration: 50,

		MaxRho:      64,
		MaxHardRows: 64,
		Solver:      qp.DefaultConfig(),
	}
}
