// Package model holds the shared data types threaded through every stage
// of the reconstruction: the volume grid, the mask, slices and their
// per-slice bookkeeping, poses, and the global EM parameters. None of these
// types are singletons; callers carry them explicitly in a context struct
// (see internal/reconstruct.Context).
package model

import "fmt"

// Affine is a 4x4 world transform stored row-major, last row implicit
// (0,0,0,1), matching the composed-matrix contract external transform
// formats are required to expose.
type Affine [12]float64

// IdentityAffine returns the identity world transform.
func IdentityAffine() Affine {
	return Affine{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

// Apply maps a point through the affine transform.
func (a Affine) Apply(x, y, z float64) (float64, float64, float64) {
	ox := a[0]*x + a[1]*y + a[2]*z + a[3]
	oy := a[4]*x + a[5]*y + a[6]*z + a[7]
	oz := a[8]*x + a[9]*y + a[10]*z + a[11]
	return ox, oy, oz
}

// PaddingValue marks "outside mask / undefined" in a Volume and
// "outside mask / ignored" in a Slice.
const PaddingValue = -1.0

// Volume is a 3D scalar field on a regular grid. The reconstruction grid
// (NewVolume, CreateTemplate) is isotropic; volumes loaded from input
// stacks keep their own, possibly anisotropic, voxel spacing.
type Volume struct {
	NX, NY, NZ int
	DX, DY, DZ float64
	Affine     Affine
	Data       []float64
}

// NewVolume allocates a volume filled with the padding value.
func NewVolume(nx, ny, nz int, d float64, affine Affine) *Volume {
	v := &Volume{NX: nx, NY: ny, NZ: nz, DX: d, DY: d, DZ: d, Affine: affine}
	v.Data = make([]float64, nx*ny*nz)
	for i := range v.Data {
		v.Data[i] = PaddingValue
	}
	return v
}

func (v *Volume) index(x, y, z int) int {
	return (z*v.NY+y)*v.NX + x
}

// InBounds reports whether (x,y,z) is a valid voxel index.
func (v *Volume) InBounds(x, y, z int) bool {
	return x >= 0 && x < v.NX && y >= 0 && y < v.NY && z >= 0 && z < v.NZ
}

// At returns the voxel value at (x,y,z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.index(x, y, z)]
}

// Set writes the voxel value at (x,y,z).
func (v *Volume) Set(x, y, z int, val float64) {
	v.Data[v.index(x, y, z)] = val
}

// WorldToVoxel maps a world-space point to continuous voxel coordinates,
// assuming Affine carries the voxel-to-world mapping (callers invert it
// once and reuse; this module does not cache the inverse since templates
// are rebuilt rarely).
func (v *Volume) WorldToVoxel(inv Affine, wx, wy, wz float64) (float64, float64, float64) {
	return inv.Apply(wx, wy, wz)
}

// Clamp restricts every voxel to [lo, hi]. Padding voxels (value
// PaddingValue) are raised to lo whenever lo > PaddingValue; callers that
// want padding preserved should clamp before re-applying MaskVolume.
func (v *Volume) Clamp(lo, hi float64) {
	for i, val := range v.Data {
		if val < lo {
			v.Data[i] = lo
		} else if val > hi {
			v.Data[i] = hi
		}
		_ = i
	}
}

// Mask is a same-grid binary field: 1 inside the region of interest, 0
// outside.
type Mask struct {
	NX, NY, NZ int
	Data       []byte
}

// NewMask allocates a zero (all-outside) mask matching the volume's grid.
func NewMask(v *Volume) *Mask {
	return &Mask{NX: v.NX, NY: v.NY, NZ: v.NZ, Data: make([]byte, v.NX*v.NY*v.NZ)}
}

func (m *Mask) index(x, y, z int) int {
	return (z*m.NY+y)*m.NX + x
}

// InBounds reports whether (x,y,z) is a valid mask index.
func (m *Mask) InBounds(x, y, z int) bool {
	return x >= 0 && x < m.NX && y >= 0 && y < m.NY && z >= 0 && z < m.NZ
}

// At returns 1 if the voxel is inside the mask, 0 otherwise.
func (m *Mask) At(x, y, z int) byte {
	return m.Data[m.index(x, y, z)]
}

// Set writes a mask value (expected 0 or 1; CreateMask/ThresholdNormalisedMask
// are the only producers of non-binarised input).
func (m *Mask) Set(x, y, z int, val byte) {
	m.Data[m.index(x, y, z)] = val
}

// CreateMask binarises a raw probability/intensity volume into a new Mask
// (raw is left unchanged): ptr > 0.5 becomes 1, else 0. Idempotent: CreateMask on an already
// binarised {0,1} volume is a no-op.
func CreateMask(raw *Volume) *Mask {
	m := &Mask{NX: raw.NX, NY: raw.NY, NZ: raw.NZ, Data: make([]byte, len(raw.Data))}
	for i, v := range raw.Data {
		if v > 0.5 {
			m.Data[i] = 1
		}
	}
	return m
}

// ThresholdNormalisedMask normalises raw by its maximum value then
// binarises at threshold theta. Applied to an image already in {0,1}, a
// theta < 1 leaves it unchanged.
func ThresholdNormalisedMask(raw *Volume, theta float64) *Mask {
	maxVal := 0.0
	for _, v := range raw.Data {
		if v > maxVal {
			maxVal = v
		}
	}
	m := &Mask{NX: raw.NX, NY: raw.NY, NZ: raw.NZ, Data: make([]byte, len(raw.Data))}
	if maxVal <= 0 {
		return m
	}
	for i, v := range raw.Data {
		if v/maxVal > theta {
			m.Data[i] = 1
		}
	}
	return m
}

// MaskVolume forces every voxel outside the mask to the padding value, so
// that afterwards V(x,y,z) == PaddingValue iff M(x,y,z) == 0.
func MaskVolume(v *Volume, m *Mask) {
	for i, mv := range m.Data {
		if mv == 0 {
			v.Data[i] = PaddingValue
		}
	}
}

// PreconditionError marks a fatal setup mistake (e.g. SetMask before
// CreateTemplate, an all-zero mask with no overlap). The engine does not
// call os.Exit; the error is returned up to the caller, which for the CLI
// driver is the only place that terminates the process.
type PreconditionError struct {
	Op      string
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violation in %s: %s", e.Op, e.Message)
}

// CreateTemplate builds the reconstruction grid from a reference stack's
// full extent (NX*DX by NY*DY by NZ*DZ), enlarging it by two voxels in z (to give the SR update room
// to grow beyond the original slice extent) and resampling to isotropic
// resolution d. If d <= 0, the smallest of the reference voxel spacings is
// used.
func CreateTemplate(refDX, refDY, refDZ float64, refNX, refNY, refNZ int, affine Affine, d float64) *Volume {
	if d <= 0 {
		d = refDX
		if refDY < d {
			d = refDY
		}
		if refDZ < d {
			d = refDZ
		}
	}
	nx := int(float64(refNX) * refDX / d)
	ny := int(float64(refNY) * refDY / d)
	nz := int(float64(refNZ)*refDZ/d) + 2
	return NewVolume(nx, ny, nz, d, affine)
}
