package model

import "math"

// PoseKind tags which payload a Pose carries. Grounded in the teacher's
// VariogramModel enum (pkg/interpolation/kriging.go): a plain int switched
// over in methods, not an interface hierarchy, per the tagged-variant
// design note.
type PoseKind int

const (
	PoseRigid PoseKind = iota
	PoseFFD
)

// RigidParams is the 6-DOF rigid pose: three translations in mm, three
// rotations in radians, applied in the order Rz*Ry*Rx*translate.
type RigidParams struct {
	TX, TY, TZ float64
	RX, RY, RZ float64
}

// ControlPoint is one node of an FFD displacement grid.
type ControlPoint struct {
	X, Y, Z          float64 // position in mm
	DX, DY, DZ       float64 // displacement in mm
}

// FFDParams is a coarse free-form-deformation control grid; the
// displacement at an arbitrary point is the grid's B-spline (here:
// trilinear, a deliberate simplification) interpolation.
type FFDParams struct {
	NX, NY, NZ int
	Spacing    float64
	Origin     [3]float64
	Points     []ControlPoint // len == NX*NY*NZ
}

// Pose is the tagged variant of {rigid, free-form} poses sharing the
// capability set: transform a world point, compose with another pose of
// the same kind, and expose a composed 4x4 matrix.
type Pose struct {
	Kind  PoseKind
	Rigid RigidParams
	FFD   *FFDParams
}

// NewRigidPose returns the identity rigid pose.
func NewRigidPose() Pose {
	return Pose{Kind: PoseRigid}
}

// Matrix returns the composed affine matrix for a rigid pose. Callers must
// check Kind == PoseRigid; FFD poses have no single matrix.
func (p Pose) Matrix() Affine {
	rx, ry, rz := p.Rigid.RX, p.Rigid.RY, p.Rigid.RZ
	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)
	cz, sz := math.Cos(rz), math.Sin(rz)

	// R = Rz * Ry * Rx
	r00 := cz*cy
	r01 := cz*sy*sx - sz*cx
	r02 := cz*sy*cx + sz*sx
	r10 := sz*cy
	r11 := sz*sy*sx + cz*cx
	r12 := sz*sy*cx - cz*sx
	r20 := -sy
	r21 := cy * sx
	r22 := cy * cx

	return Affine{
		r00, r01, r02, p.Rigid.TX,
		r10, r11, r12, p.Rigid.TY,
		r20, r21, r22, p.Rigid.TZ,
	}
}

// TransformPoint maps a world point through the pose.
func (p Pose) TransformPoint(x, y, z float64) (float64, float64, float64) {
	switch p.Kind {
	case PoseFFD:
		return p.FFD.transformPoint(x, y, z)
	default:
		return p.Matrix().Apply(x, y, z)
	}
}

func (f *FFDParams) transformPoint(x, y, z float64) (float64, float64, float64) {
	if f == nil || len(f.Points) == 0 {
		return x, y, z
	}
	// Locate the enclosing cell and trilinearly blend displacements of
	// its 8 corners; points outside the grid fall back to the nearest
	// clamped cell.
	fx := (x - f.Origin[0]) / f.Spacing
	fy := (y - f.Origin[1]) / f.Spacing
	fz := (z - f.Origin[2]) / f.Spacing

	ix := clampInt(int(math.Floor(fx)), 0, f.NX-2)
	iy := clampInt(int(math.Floor(fy)), 0, f.NY-2)
	iz := clampInt(int(math.Floor(fz)), 0, f.NZ-2)

	tx := clamp01(fx - float64(ix))
	ty := clamp01(fy - float64(iy))
	tz := clamp01(fz - float64(iz))

	var dx, dy, dz float64
	for dzI := 0; dzI <= 1; dzI++ {
		for dyI := 0; dyI <= 1; dyI++ {
			for dxI := 0; dxI <= 1; dxI++ {
				idx := (iz+dzI)*f.NY*f.NX + (iy+dyI)*f.NX + (ix + dxI)
				if idx < 0 || idx >= len(f.Points) {
					continue
				}
				wx := lerpWeight(dxI, tx)
				wy := lerpWeight(dyI, ty)
				wz := lerpWeight(dzI, tz)
				w := wx * wy * wz
				cp := f.Points[idx]
				dx += w * cp.DX
				dy += w * cp.DY
				dz += w * cp.DZ
			}
		}
	}
	return x + dx, y + dy, z + dz
}

func lerpWeight(i int, t float64) float64 {
	if i == 0 {
		return 1 - t
	}
	return t
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Compose applies delta on top of p for rigid poses by adding each of the
// six parameters.
func (p Pose) Compose(delta RigidParams) Pose {
	out := p
	out.Rigid.TX += delta.TX
	out.Rigid.TY += delta.TY
	out.Rigid.TZ += delta.TZ
	out.Rigid.RX += delta.RX
	out.Rigid.RY += delta.RY
	out.Rigid.RZ += delta.RZ
	return out
}

// Invert returns the inverse rigid pose; for FFD poses it inverts the
// control-point displacements only approximately (negating each
// displacement), which is exact only for small deformations.
func (p Pose) Invert() Pose {
	switch p.Kind {
	case PoseFFD:
		inv := &FFDParams{NX: p.FFD.NX, NY: p.FFD.NY, NZ: p.FFD.NZ, Spacing: p.FFD.Spacing, Origin: p.FFD.Origin}
		inv.Points = make([]ControlPoint, len(p.FFD.Points))
		for i, cp := range p.FFD.Points {
			inv.Points[i] = ControlPoint{X: cp.X, Y: cp.Y, Z: cp.Z, DX: -cp.DX, DY: -cp.DY, DZ: -cp.DZ}
		}
		return Pose{Kind: PoseFFD, FFD: inv}
	default:
		m := p.Matrix()
		// Rigid inverse: R^T, t' = -R^T t.
		r00, r01, r02 := m[0], m[1], m[2]
		r10, r11, r12 := m[4], m[5], m[6]
		r20, r21, r22 := m[8], m[9], m[10]
		tx, ty, tz := m[3], m[7], m[11]

		itx := -(r00*tx + r10*ty + r20*tz)
		ity := -(r01*tx + r11*ty + r21*tz)
		itz := -(r02*tx + r12*ty + r22*tz)

		// Recover Euler angles from R^T, not R: transpose swaps the
		// off-diagonal entries (t00,t01,t02 / t10,t11,t12 / t20,t21,t22) =
		// (r00,r10,r20 / r01,r11,r21 / r02,r12,r22), then apply the same
		// extraction Matrix() itself inverts (ry=asin(-t20) etc).
		t00, _, _ := r00, r10, r20
		t10, t11, t12 := r01, r11, r21
		t20, t21, t22 := r02, r12, r22

		ry := math.Asin(-t20)
		var rx, rz float64
		if math.Abs(math.Cos(ry)) > 1e-8 {
			rx = math.Atan2(t21, t22)
			rz = math.Atan2(t10, t00)
		} else {
			rx = math.Atan2(-t12, t11)
			rz = 0
		}
		return Pose{Kind: PoseRigid, Rigid: RigidParams{TX: itx, TY: ity, TZ: itz, RX: rx, RY: ry, RZ: rz}}
	}
}
