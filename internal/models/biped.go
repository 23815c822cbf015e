package models

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/san-kum/stride/internal/contact"
	"github.com/san-kum/stride/internal/dynamics"
	"github.com/san-kum/stride/internal/geometry"
	"github.com/san-kum/stride/internal/sim"
	"gonum.org/v1/gonum/mat"
	spatial "gonum.org/v1/gonum/spatial/r3"
)

const (
	PelvisBody   = "pelvis"
	jointsPerLeg = 4
)

// FootBody names the sole frame of a foot.
func FootBody(s contact.Side) string { return s.String() + "_foot" }

type BipedParams struct {
	BaseMass    float64    `yaml:"base_mass"`
	BaseInertia [3]float64 `yaml:"base_inertia"`
	FootMass    float64    `yaml:"foot_mass"`
	FootInertia float64    `yaml:"foot_inertia"`
	Armature    float64    `yaml:"armature"`
	HipWidth    float64    `yaml:"hip_width"`
	LegLength   float64    `yaml:"leg_length"`
	AnkleHeight float64    `yaml:"ankle_height"`
	FootLength  float64    `yaml:"foot_length"`
	FootWidth   float64    `yaml:"foot_width"`
}

func DefaultBipedParams() BipedParams {
	return BipedParams{
		BaseMass:    30.0,
		BaseInertia: [3]float64{1.0, 0.8, 0.5},
		FootMass:    1.5,
		FootInertia: 0.01,
		Armature:    0.01,
		HipWidth:    0.1,
		LegLength:   0.9,
		AnkleHeight: 0.05,
		FootLength:  0.22,
		FootWidth:   0.1,
	}
}

// CartesianBiped is a floating pelvis with two legs. Each leg places its
// ankle with three prismatic joints along the pelvis axes and pitches its
// foot with one revolute ankle joint. Velocity-product terms are neglected
// in the bias vector.
//
// Configuration q = [pelvis position, pelvis rotation vector, joints], so q
// and v have the same length and the plant state is [q, v].
type CartesianBiped struct {
	p      BipedParams
	joints []string
	q, v   []float64
	rot    [3]r3.Vector // pelvis rotation columns
}

func NewCartesianBiped(p BipedParams) *CartesianBiped {
	b := &CartesianBiped{p: p}
	for _, s := range contact.Sides {
		for _, j := range []string{"hip_x", "hip_y", "hip_z", "ankle_pitch"} {
			b.joints = append(b.joints, s.String()+"_"+j)
		}
	}
	n := b.NumDoF()
	b.q = make([]float64, n)
	b.v = make([]float64, n)
	b.SetState(b.Standing())
	return b
}

func (b *CartesianBiped) Params() BipedParams { return b.p }
func (b *CartesianBiped) NumDoF() int         { return dynamics.FloatingBaseDoF + len(b.joints) }
func (b *CartesianBiped) StateDim() int       { return 2 * b.NumDoF() }
func (b *CartesianBiped) ControlDim() int     { return b.NumDoF() }
func (b *CartesianBiped) Joints() []string    { return b.joints }

func (b *CartesianBiped) Mass() float64 { return b.p.BaseMass + 2*b.p.FootMass }

// Standing returns the plant state with both soles flat on z = 0 under the
// hips.
func (b *CartesianBiped) Standing() sim.State {
	x := make(sim.State, b.StateDim())
	x[2] = b.p.LegLength + b.p.AnkleHeight
	for _, s := range contact.Sides {
		x[legOffset(s)+2] = -b.p.LegLength
	}
	return x
}

// Derivative integrates commanded accelerations directly: the plant is
// ideally actuated and its contacts never slip.
func (b *CartesianBiped) Derivative(x sim.State, u sim.Control, t float64) sim.State {
	n := b.NumDoF()
	dx := make(sim.State, 2*n)
	copy(dx[:n], x[n:])
	copy(dx[n:], u)
	return dx
}

func (b *CartesianBiped) SetState(x sim.State) {
	n := b.NumDoF()
	copy(b.q, x[:n])
	copy(b.v, x[n:2*n])
	b.rot = rotationColumns(r3.Vector{X: b.q[3], Y: b.q[4], Z: b.q[5]})
}

// State returns a copy of [q, v].
func (b *CartesianBiped) State() sim.State {
	x := make(sim.State, 0, b.StateDim())
	x = append(x, b.q...)
	return append(x, b.v...)
}

func (b *CartesianBiped) JointPositions() []float64  { return append([]float64(nil), b.q[dynamics.FloatingBaseDoF:]...) }
func (b *CartesianBiped) JointVelocities() []float64 { return append([]float64(nil), b.v[dynamics.FloatingBaseDoF:]...) }

func rotationColumns(phi r3.Vector) [3]r3.Vector {
	cols := [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	angle := phi.Norm()
	if angle < 1e-12 {
		return cols
	}
	axis := phi.Mul(1 / angle)
	rot := spatial.NewRotation(angle, spatial.Vec{X: axis.X, Y: axis.Y, Z: axis.Z})
	for i, c := range cols {
		r := rot.Rotate(spatial.Vec{X: c.X, Y: c.Y, Z: c.Z})
		cols[i] = r3.Vector{X: r.X, Y: r.Y, Z: r.Z}
	}
	return cols
}

func (b *CartesianBiped) rotate(v r3.Vector) r3.Vector {
	return b.rot[0].Mul(v.X).Add(b.rot[1].Mul(v.Y)).Add(b.rot[2].Mul(v.Z))
}

func legOffset(s contact.Side) int { return dynamics.FloatingBaseDoF + int(s)*jointsPerLeg }

func (b *CartesianBiped) base() r3.Vector { return r3.Vector{X: b.q[0], Y: b.q[1], Z: b.q[2]} }

func (b *CartesianBiped) ankle(s contact.Side) r3.Vector {
	o := legOffset(s)
	local := r3.Vector{X: b.q[o], Y: s.Sign()*b.p.HipWidth + b.q[o+1], Z: b.q[o+2]}
	return b.base().Add(b.rotate(local))
}

// pitchAxis is the ankle axis in world coordinates.
func (b *CartesianBiped) pitchAxis() r3.Vector { return b.rot[1] }

func (b *CartesianBiped) footRotate(s contact.Side, v r3.Vector) r3.Vector {
	theta := b.q[legOffset(s)+3]
	r := spatial.NewRotation(theta, spatial.Vec{Y: 1}).Rotate(spatial.Vec{X: v.X, Y: v.Y, Z: v.Z})
	return b.rotate(r3.Vector{X: r.X, Y: r.Y, Z: r.Z})
}

func (b *CartesianBiped) sole(s contact.Side) r3.Vector {
	return b.ankle(s).Add(b.footRotate(s, r3.Vector{Z: -b.p.AnkleHeight}))
}

func footSide(body string) (contact.Side, bool) {
	for _, s := range contact.Sides {
		if body == FootBody(s) {
			return s, true
		}
	}
	return 0, false
}

// linear writes the Jacobian of world point x on body into the first three
// rows starting at row.
func (b *CartesianBiped) linear(body string, x r3.Vector, dst *mat.Dense, row int) error {
	rel := x.Sub(b.base())
	for k, e := range [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}} {
		dst.Set(row+k, k, 1)
		c := e.Cross(rel)
		dst.Set(row, 3+k, c.X)
		dst.Set(row+1, 3+k, c.Y)
		dst.Set(row+2, 3+k, c.Z)
	}
	if body == PelvisBody {
		return nil
	}
	s, ok := footSide(body)
	if !ok {
		return fmt.Errorf("%q: %w", body, dynamics.ErrUnknownBody)
	}
	o := legOffset(s)
	for k := 0; k < 3; k++ {
		dst.Set(row, o+k, b.rot[k].X)
		dst.Set(row+1, o+k, b.rot[k].Y)
		dst.Set(row+2, o+k, b.rot[k].Z)
	}
	c := b.pitchAxis().Cross(x.Sub(b.ankle(s)))
	dst.Set(row, o+3, c.X)
	dst.Set(row+1, o+3, c.Y)
	dst.Set(row+2, o+3, c.Z)
	return nil
}

func (b *CartesianBiped) checkDims(dst *mat.Dense, rows int) error {
	r, c := dst.Dims()
	if r != rows || c != b.NumDoF() {
		return fmt.Errorf("jacobian %dx%d, want %dx%d: %w", r, c, rows, b.NumDoF(), dynamics.ErrDimensionMismatch)
	}
	return nil
}

func (b *CartesianBiped) PointJacobian(body string, point r3.Vector, dst *mat.Dense) error {
	if err := b.checkDims(dst, 3); err != nil {
		return err
	}
	dst.Zero()
	return b.linear(body, point, dst, 0)
}

func (b *CartesianBiped) BodyJacobian(body string, dst *mat.Dense) error {
	if err := b.checkDims(dst, 6); err != nil {
		return err
	}
	dst.Zero()
	pose, err := b.origin(body)
	if err != nil {
		return err
	}
	if err := b.linear(body, pose, dst, 0); err != nil {
		return err
	}
	for k := 0; k < 3; k++ {
		dst.Set(3+k, 3+k, 1)
	}
	if s, ok := footSide(body); ok {
		a := b.pitchAxis()
		o := legOffset(s) + 3
		dst.Set(3, o, a.X)
		dst.Set(4, o, a.Y)
		dst.Set(5, o, a.Z)
	}
	return nil
}

func (b *CartesianBiped) origin(body string) (r3.Vector, error) {
	if body == PelvisBody {
		return b.base(), nil
	}
	if s, ok := footSide(body); ok {
		return b.sole(s), nil
	}
	return r3.Vector{}, fmt.Errorf("%q: %w", body, dynamics.ErrUnknownBody)
}

func (b *CartesianBiped) BodyPose(body string) (geometry.Pose, error) {
	pos, err := b.origin(body)
	if err != nil {
		return geometry.Pose{}, err
	}
	forward := b.rot[0]
	if s, ok := footSide(body); ok {
		forward = b.footRotate(s, r3.Vector{X: 1})
	}
	return geometry.Pose{Position: pos, Yaw: math.Atan2(forward.Y, forward.X)}, nil
}

func (b *CartesianBiped) BodyVelocity(body string) (r3.Vector, r3.Vector, error) {
	J := mat.NewDense(6, b.NumDoF(), nil)
	if err := b.BodyJacobian(body, J); err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	var tw mat.VecDense
	tw.MulVec(J, mat.NewVecDense(len(b.v), b.v))
	return r3.Vector{X: tw.AtVec(0), Y: tw.AtVec(1), Z: tw.AtVec(2)},
		r3.Vector{X: tw.AtVec(3), Y: tw.AtVec(4), Z: tw.AtVec(5)}, nil
}

// Pitch returns the ankle pitch of a foot.
func (b *CartesianBiped) Pitch(s contact.Side) float64 { return b.q[legOffset(s)+3] }

func (b *CartesianBiped) CoM() r3.Vector {
	m := b.Mass()
	c := b.base().Mul(b.p.BaseMass)
	for _, s := range contact.Sides {
		c = c.Add(b.ankle(s).Mul(b.p.FootMass))
	}
	return c.Mul(1 / m)
}

func (b *CartesianBiped) CoMJacobian(dst *mat.Dense) {
	n := b.NumDoF()
	dst.Zero()
	tmp := mat.NewDense(3, n, nil)
	_ = b.linear(PelvisBody, b.base(), tmp, 0)
	dst.Scale(b.p.BaseMass/b.Mass(), tmp)
	for _, s := range contact.Sides {
		tmp.Zero()
		_ = b.linear(FootBody(s), b.ankle(s), tmp, 0)
		tmp.Scale(b.p.FootMass/b.Mass(), tmp)
		dst.Add(dst, tmp)
	}
}

func (b *CartesianBiped) CoMVelocity() r3.Vector {
	J := mat.NewDense(3, b.NumDoF(), nil)
	b.CoMJacobian(J)
	var cv mat.VecDense
	cv.MulVec(J, mat.NewVecDense(len(b.v), b.v))
	return r3.Vector{X: cv.AtVec(0), Y: cv.AtVec(1), Z: cv.AtVec(2)}
}

func (b *CartesianBiped) MassMatrix(dst *mat.Dense) {
	n := b.NumDoF()
	dst.Zero()
	var jtj mat.Dense

	addLinear := func(J *mat.Dense, m float64) {
		jtj.Mul(J.T(), J)
		jtj.Scale(m, &jtj)
		dst.Add(dst, &jtj)
	}

	J := mat.NewDense(3, n, nil)
	_ = b.linear(PelvisBody, b.base(), J, 0)
	addLinear(J, b.p.BaseMass)

	// Pelvis rotational inertia, R diag(I) Rᵀ in world.
	var iw [3][3]float64
	for k := 0; k < 3; k++ {
		col := b.rot[k]
		c := [3]float64{col.X, col.Y, col.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				iw[i][j] += b.p.BaseInertia[k] * c[i] * c[j]
			}
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			dst.Set(3+i, 3+j, dst.At(3+i, 3+j)+iw[i][j])
		}
	}

	for _, s := range contact.Sides {
		J.Zero()
		_ = b.linear(FootBody(s), b.ankle(s), J, 0)
		addLinear(J, b.p.FootMass)

		// Isotropic foot inertia about the world angular velocity of the
		// foot, ω + axis·θ̇.
		J.Zero()
		for k := 0; k < 3; k++ {
			J.Set(k, 3+k, 1)
		}
		a := b.pitchAxis()
		o := legOffset(s) + 3
		J.Set(0, o, a.X)
		J.Set(1, o, a.Y)
		J.Set(2, o, a.Z)
		addLinear(J, b.p.FootInertia)
	}

	for i := dynamics.FloatingBaseDoF; i < n; i++ {
		dst.Set(i, i, dst.At(i, i)+b.p.Armature)
	}
}

// Bias holds the gravity terms only.
func (b *CartesianBiped) Bias(dst []float64) {
	clear(dst)
	n := b.NumDoF()
	J := mat.NewDense(3, n, nil)
	add := func(m float64) {
		for j := 0; j < n; j++ {
			dst[j] += m * dynamics.Gravity * J.At(2, j)
		}
	}
	_ = b.linear(PelvisBody, b.base(), J, 0)
	add(b.p.BaseMass)
	for _, s := range contact.Sides {
		J.Zero()
		_ = b.linear(FootBody(s), b.ankle(s), J, 0)
		add(b.p.FootMass)
	}
}

// ContactPlane returns the sole contact plane of a foot at its current pose.
func (b *CartesianBiped) ContactPlane(s contact.Side, friction float64, basisPerPoint int) contact.Plane {
	p := contact.NewPlane(FootBody(s), s, geometry.Rectangle(b.p.FootLength, b.p.FootWidth), friction, basisPerPoint)
	p.Pose, _ = b.BodyPose(FootBody(s))
	return p
}

// Limits returns symmetric default limits for every joint.
func (b *CartesianBiped) Limits() dynamics.LimitTable {
	t := make(dynamics.LimitTable, 0, len(b.joints))
	for range contact.Sides {
		t = append(t,
			dynamics.JointLimit{Lower: -0.5, Upper: 0.5, Velocity: 3, Torque: 800},
			dynamics.JointLimit{Lower: -0.3, Upper: 0.3, Velocity: 3, Torque: 800},
			dynamics.JointLimit{Lower: -b.p.LegLength - 0.1, Upper: -0.4, Velocity: 3, Torque: 1500},
			dynamics.JointLimit{Lower: -1.0, Upper: 1.0, Velocity: 8, Torque: 200},
		)
	}
	return t
}
