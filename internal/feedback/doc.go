// Package feedback provides the feedback laws wrapped around the planned
// references:
//
//   - [PID]: scalar proportional-integral-derivative law
//   - [PD]: Cartesian PD with acceleration feedforward (swing foot, posture)
//   - [ICP]: capture-point feedback producing a CoM acceleration
//
// # Usage
//
//	pd := feedback.PD{Kp: 200, Kd: 25}
//	acc := pd.Acceleration(ref, measured)
//
// Laws hold no reference to shared state; callers pass everything in.
package feedback
