package model

// StackMeta carries the per-stack acquisition bookkeeping the original
// implementation uses to interleave slice-order scheduling during
// slice-to-volume registration: package count, slice-order code, and
// multi-band factor. A package count of 1 disables package-interleaved
// scheduling. Consumed by internal/reconstruct.Context.runPackageSeeding
// (via Context.StackMetas, indexed by Record.StackIndex) to register one
// representative slice per package and seed the rest of the package's
// slices with its pose before per-slice rigid registration runs.
type StackMeta struct {
	Packages        int
	SliceOrder      []int
	MultibandFactor int
}

// Stack is an ordered sequence of slices sharing one acquisition, plus the
// optional tissue-prior probability map used to weight the voxel-level
// E-step. Record.ProbabilityMap is copied from here when a Preprocessor
// or caller constructs a stack's records, since the voxel E-step operates
// record-by-record with no other path back to the owning stack.
type Stack struct {
	Slices          []*Slice
	InitialTransform Affine
	Meta            StackMeta
	ProbabilityMap  *Volume // nil means uniform prior
	IntensityFactor float64 // stack-scale, applied only on request
}
