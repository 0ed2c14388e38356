package model

// Slice is a single 2D acquisition with its own world transform. Pixel
// value PaddingValue marks "outside mask / ignored"; non-negative values
// are intensities on the common scale set by stack-intensity matching
// (an external preprocessing concern, see internal/ioadapter).
type Slice struct {
	Width, Height int
	DX, DY        float64
	Thickness     float64 // through-plane spacing t_i
	Affine        Affine
	Data          []float64
}

// NewSlice allocates a slice filled with the padding value.
func NewSlice(width, height int, dx, dy, thickness float64, affine Affine) *Slice {
	s := &Slice{Width: width, Height: height, DX: dx, DY: dy, Thickness: thickness, Affine: affine}
	s.Data = make([]float64, width*height)
	for i := range s.Data {
		s.Data[i] = PaddingValue
	}
	return s
}

func (s *Slice) index(u, v int) int { return v*s.Width + u }

// At returns the pixel value at (u,v).
func (s *Slice) At(u, v int) float64 { return s.Data[s.index(u, v)] }

// Set writes the pixel value at (u,v).
func (s *Slice) Set(u, v int, val float64) { s.Data[s.index(u, v)] = val }

// Coefficient is one (voxel, weight) contribution of a slice pixel to the
// reconstruction, the atom of the PSF forward operator.
type Coefficient struct {
	X, Y, Z int
	W       float64
}

// Record is the co-indexed per-slice state the outer iterator threads
// through every stage: pose, PSF coefficients, EM posteriors, scale, bias,
// and the simulated/residual working buffers.
type Record struct {
	Slice *Slice

	StackIndex  int
	SliceIndex  int // position within the stack's acquisition order, z
	StackFactor float64

	// ProbabilityMap is the owning stack's tissue prior (Stack.ProbabilityMap),
	// copied onto each of its records at construction time since the voxel
	// E-step operates record-by-record and has no other path back to the
	// stack. Nil means a uniform prior.
	ProbabilityMap *Volume

	Pose Pose

	// Coefficients[v*Width+u] holds the (possibly empty) coefficient
	// list for slice pixel (u,v). Stored as a flat per-pixel slice of
	// small slices rather than a single flat arena with offsets for
	// implementation simplicity; callers that care about allocator
	// pressure should preallocate via Reserve.
	Coefficients [][]Coefficient

	VoxelWeight []float64 // w_i(u,v), same layout as Slice.Data
	Bias        []float64 // b_i(u,v), log-multiplicative
	Scale       float64   // sigma_i

	SliceWeight     float64 // pi_i
	RegSliceWeight  float64 // structural-outlier gate, +1 or -1
	Inside          bool
	ForceExcluded   bool
	Small           bool
	Potential       float64 // slice potential p_i, -1 when overridden

	Simulated    []float64
	SimWeights   []float64
	SimInside    []bool
	SliceDiff    []float64

	originalData []float64 // snapshot for RestoreSliceIntensities
}

// NewRecord allocates per-pixel working buffers sized to the slice.
func NewRecord(s *Slice, stackIndex int) *Record {
	n := s.Width * s.Height
	r := &Record{
		Slice:        s,
		StackIndex:   stackIndex,
		StackFactor:  1,
		Scale:        1,
		SliceWeight:  1,
		RegSliceWeight: 1,
		Coefficients: make([][]Coefficient, n),
		VoxelWeight:  make([]float64, n),
		Bias:         make([]float64, n),
		Simulated:    make([]float64, n),
		SimWeights:   make([]float64, n),
		SimInside:    make([]bool, n),
		SliceDiff:    make([]float64, n),
	}
	for i := range r.VoxelWeight {
		r.VoxelWeight[i] = 1
	}
	r.originalData = append([]float64(nil), s.Data...)
	return r
}

// RestoreSliceIntensities resets the slice's pixel data to the values
// recorded at NewRecord time, undoing any scale/bias normalisation applied
// for external reporting.
func (r *Record) RestoreSliceIntensities() {
	copy(r.Slice.Data, r.originalData)
}

// Reserve preallocates capacity for a pixel's coefficient list, amortising
// the per-voxel append cost during CoeffInit.
func (r *Record) Reserve(pixelIndex, n int) {
	if cap(r.Coefficients[pixelIndex]) < n {
		r.Coefficients[pixelIndex] = make([]Coefficient, 0, n)
	}
}
