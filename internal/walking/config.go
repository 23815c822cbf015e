package walking

import (
	"github.com/san-kum/stride/internal/feedback"
	"github.com/san-kum/stride/internal/foothold"
	"github.com/san-kum/stride/internal/footstate"
	"github.com/san-kum/stride/internal/mpc"
	"github.com/san-kum/stride/internal/plan"
	"github.com/san-kum/stride/internal/wbc"
)

type Config struct {
	Dt             float64 `yaml:"dt"`
	PelvisBody     string  `yaml:"pelvis_body"`
	ToeOffLeadTime float64 `yaml:"toe_off_lead_time"`
	StaleWarnTicks int     `yaml:"stale_warn_ticks"`
	// StageBudget bounds the wall time, in seconds, of the MPC and of the
	// WBC solve on each tick. Zero means Dt.
	StageBudget    float64 `yaml:"stage_budget"`

	ICP          feedback.ICP `yaml:"icp_feedback"`
	CoMWeight    float64      `yaml:"com_weight"`
	Pelvis       feedback.PD  `yaml:"pelvis_gains"`
	PelvisWeight float64      `yaml:"pelvis_weight"`

	Generator plan.GeneratorConfig `yaml:"generator"`
	Foot      footstate.Config     `yaml:"foot"`
	ToeOff    foothold.Thresholds  `yaml:"toe_off"`
	MPC       mpc.Config           `yaml:"mpc"`
	WBC       wbc.Config           `yaml:"wbc"`
}

func DefaultConfig() Config {
	return Config{
		Dt:             0.004,
		PelvisBody:     "pelvis",
		ToeOffLeadTime: 0.1,
		StaleWarnTicks: 25,
		StageBudget:    0.05,

		ICP:          feedback.ICP{Gain: 1.5, MaxShift: 0.05},
		CoMWeight:    10,
		Pelvis:       feedback.PD{Kp: 100, Kd: 20},
		PelvisWeight: 1,

		Generator: plan.DefaultGeneratorConfig(),
		Foot:      footstate.DefaultConfig(),
		ToeOff:    foothold.DefaultThresholds(),
		MPC:       mpc.DefaultConfig(),
		WBC:       wbc.DefaultConfig(),
	}
}
