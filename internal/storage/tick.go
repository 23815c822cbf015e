package storage

import (
	"math"
	"strconv"

	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/walking"
)

// Tick is the flat per-tick row kept for a run.
type Tick struct {
	Time       float64 `json:"time"`
	Phase      string  `json:"phase"`
	Left       string  `json:"left"`
	Right      string  `json:"right"`
	CoMX       float64 `json:"com_x"`
	CoMY       float64 `json:"com_y"`
	CoMZ       float64 `json:"com_z"`
	ICPX       float64 `json:"icp_x"`
	ICPY       float64 `json:"icp_y"`
	DesiredX   float64 `json:"desired_icp_x"`
	DesiredY   float64 `json:"desired_icp_y"`
	ICPError   float64 `json:"icp_error"`
	Solved     bool    `json:"solved"`
	Iterations int     `json:"iterations"`
	TorqueNorm float64 `json:"torque_norm"`
	Late       bool    `json:"late"`
	ToeOff     string  `json:"toe_off,omitempty"`
}

func FromTick(r walking.TickResult) Tick {
	var sq float64
	for _, tau := range r.WBC.Torques {
		sq += tau * tau
	}
	t := Tick{
		Time:       r.Time,
		Phase:      r.Phase.String(),
		Left:       r.Modes[contact.Left].String(),
		Right:      r.Modes[contact.Right].String(),
		CoMX:       r.CoM.X,
		CoMY:       r.CoM.Y,
		CoMZ:       r.CoM.Z,
		ICPX:       r.ICP.X,
		ICPY:       r.ICP.Y,
		DesiredX:   r.DesiredICP.X,
		DesiredY:   r.DesiredICP.Y,
		ICPError:   r.ICPError,
		Solved:     r.WBC.Solved,
		Iterations: r.WBC.Iterations,
		TorqueNorm: math.Sqrt(sq),
		Late:       r.Late,
	}
	if r.ToeOff != nil {
		t.ToeOff = "unsafe"
		if r.ToeOff.Safe {
			t.ToeOff = "safe"
		}
	}
	return t
}

func FromTicks(rs []walking.TickResult) []Tick {
	out := make([]Tick, len(rs))
	for i, r := range rs {
		out[i] = FromTick(r)
	}
	return out
}

var header = []string{
	"time", "phase", "left", "right",
	"com_x", "com_y", "com_z",
	"icp_x", "icp_y", "desired_icp_x", "desired_icp_y", "icp_error",
	"solved", "iterations", "torque_norm", "late", "toe_off",
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func (t Tick) record() []string {
	return []string{
		formatFloat(t.Time), t.Phase, t.Left, t.Right,
		formatFloat(t.CoMX), formatFloat(t.CoMY), formatFloat(t.CoMZ),
		formatFloat(t.ICPX), formatFloat(t.ICPY),
		formatFloat(t.DesiredX), formatFloat(t.DesiredY), formatFloat(t.ICPError),
		strconv.FormatBool(t.Solved), strconv.Itoa(t.Iterations),
		formatFloat(t.TorqueNorm), strconv.FormatBool(t.Late), t.ToeOff,
	}
}

func parseTick(rec []string) (Tick, error) {
	var (
		t   Tick
		err error
	)
	if len(rec) != len(header) {
		return t, strconv.ErrSyntax
	}
	floats := []struct {
		dst *float64
		col int
	}{
		{&t.Time, 0}, {&t.CoMX, 4}, {&t.CoMY, 5}, {&t.CoMZ, 6},
		{&t.ICPX, 7}, {&t.ICPY, 8}, {&t.DesiredX, 9}, {&t.DesiredY, 10},
		{&t.ICPError, 11}, {&t.TorqueNorm, 14},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(rec[f.col], 64); err != nil {
			return t, err
		}
	}
	t.Phase, t.Left, t.Right, t.ToeOff = rec[1], rec[2], rec[3], rec[16]
	if t.Solved, err = strconv.ParseBool(rec[12]); err != nil {
		return t, err
	}
	if t.Iterations, err = strconv.Atoi(rec[13]); err != nil {
		return t, err
	}
	if t.Late, err = strconv.ParseBool(rec[15]); err != nil {
		return t, err
	}
	return t, nil
}
