package feedback

type PID struct {
	Kp       float64 `yaml:"kp"`
	Ki       float64 `yaml:"ki"`
	Kd       float64 `yaml:"kd"`
	Limit    float64 `yaml:"limit"`
	integral float64
	prevErr  float64
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd float64) *PID {
	return &PID{
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		first: true,
	}
}

func (p *PID) Reset() {
	p.integral = 0
	p.first = true
}

// Compute returns the control for the error target − measured at time t.
// The integral is clamped to ±Limit when Limit is positive.
func (p *PID) Compute(target, measured, t float64) float64 {
	err := target - measured

	if p.first {
		p.prevErr = err
		p.prevT = t
		p.first = false
		return p.Kp * err
	}

	dt := t - p.prevT
	if dt <= 0 {
		return p.Kp*err + p.Ki*p.integral
	}
	p.integral += err * dt
	if p.Limit > 0 {
		p.integral = max(-p.Limit, min(p.Limit, p.integral))
	}
	derivative := (err - p.prevErr) / dt

	p.prevErr = err
	p.prevT = t
	return p.Kp*err + p.Ki*p.integral + p.Kd*derivative
}
