// Package ioadapter defines the external collaborator interfaces named in
// SPEC_FULL.md §6 (image I/O, preprocessing, remote registration, CSV
// reporting) and ships default implementations so the engine is runnable
// end-to-end. Image/transform formats are delegated entirely to this
// package; the core (internal/model, internal/reconstruct, ...) only
// requires the affine-transform and 6-parameter-rigid contract.
package ioadapter

import "svrecon/internal/model"

// VolumeLoader reads a 3D volume (stack, mask, or probability map) plus its
// world affine transform and voxel spacing.
type VolumeLoader interface {
	LoadVolume(path string) (*model.Volume, error)
}

// VolumeSaver writes a 3D volume to disk, used for the final reconstruction
// and for remote-mode exchange files.
type VolumeSaver interface {
	SaveVolume(path string, v *model.Volume) error
}

// Preprocessor performs stack-level preprocessing (denoising, background
// filtering, intensity matching) before reconstruction; deliberately
// out of scope for the core per SPEC_FULL.md §6, so no default
// implementation is shipped: no denoiser (N4/NLM are explicitly excluded)
// and no other preprocessing helper.
type Preprocessor interface {
	Preprocess(stack *model.Stack) error
}
