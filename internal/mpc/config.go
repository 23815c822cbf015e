package mpc

import (
	"math"

	"github.com/san-kum/stride/internal/command"
	"github.com/san-kum/stride/internal/qp"
)

type Config struct {
	Mass          float64 `yaml:"mass"`
	NominalHeight float64 `yaml:"nominal_height"`
	Gravity       float64 `yaml:"gravity"`

	InitialCoMWeight       float64 `yaml:"initial_com_weight"`
	FinalCoMWeight         float64 `yaml:"final_com_weight"`
	TerminalICPWeight      float64 `yaml:"terminal_icp_weight"`
	VRPTrackingWeight      float64 `yaml:"vrp_tracking_weight"`
	PositionContinuity     float64 `yaml:"position_continuity_weight"`
	VelocityContinuity     float64 `yaml:"velocity_continuity_weight"`
	AccelerationContinuity float64 `yaml:"acceleration_continuity_weight"`
	VRPContinuity          float64 `yaml:"vrp_continuity_weight"`
	RhoWeight              float64 `yaml:"rho_weight"`
	OrientationWeight      float64 `yaml:"orientation_weight"`

	// CoefficientWeight keeps the Hessian definite for segments whose
	// coefficients no objective touches.
	CoefficientWeight float64 `yaml:"coefficient_weight"`

	MinRho         float64 `yaml:"min_rho"`
	MaxNormalForce float64 `yaml:"max_normal_force"`

	QuadratureNodes int     `yaml:"quadrature_nodes"`
	Tolerance       float64 `yaml:"tolerance"`
	ReplanEvery     int     `yaml:"replan_every"`

	MaxSegments  int       `yaml:"max_segments"`
	MaxRhoPerSeg int       `yaml:"max_rho_per_segment"`
	Solver       qp.Config `yaml:"solver"`
}

// DefaultConfig matches a 33 kg robot with a CoM about 0.87 m above the
// soles.
func DefaultConfig() Config {
	return Config{
		Mass:          33.0,
		NominalHeight: 0.87,
		Gravity:       9.81,

		InitialCoMWeight:       command.Hard,
		FinalCoMWeight:         5e2,
		TerminalICPWeight:      0,
		VRPTrackingWeight:      1e2,
		PositionContinuity:     command.Hard,
		VelocityContinuity:     command.Hard,
		AccelerationContinuity: 1e1,
		VRPContinuity:          0,
		RhoWeight:              1e-4,
		OrientationWeight:      1e-3,
		CoefficientWeight:      1e-8,

		MinRho:         0,
		MaxNormalForce: 0,

		QuadratureNodes: 5,
		Tolerance:       1e-3,
		ReplanEvery:     5,

		MaxSegments:  6,
		MaxRhoPerSeg: 32,
		Solver:       qp.DefaultConfig(),
	}
}

func (c Config) Omega() float64 { return math.Sqrt(c.Gravity / c.NominalHeight) }

func (c Config) maxVariables() int { return c.MaxSegments * (12 + 2*c.MaxRhoPerSeg) }

// maxEqualities allows every initial, terminal and continuity command to be
// hard.
func (c Config) maxEqualities() int { return 12 + c.MaxSegments*6 + (c.MaxSegments-1)*12 }

func (c Config) maxInequalities() int { return c.MaxSegments * (2*c.MaxRhoPerSeg + 4) }
