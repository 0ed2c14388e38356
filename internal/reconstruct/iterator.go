package reconstruct

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"svrecon/internal/em"
	"svrecon/internal/model"
	"svrecon/internal/psf"
	"svrecon/internal/quality"
	"svrecon/internal/registration"
	"svrecon/internal/superres"
	"svrecon/internal/voxelindex"
)

var log = logrus.WithField("component", "iterator")

// Params carries every outer/inner-iteration tunable named in SPEC_FULL.md
// §6.
type Params struct {
	Resolution         float64
	Delta              float64
	Lambda             float64
	SigmaBias          float64
	NCCThreshold       float64
	OuterIterations    int
	InnerIterations    int
	FFDEnabled         bool
	BiasEnabled        bool
	GlobalBiasCorrect  bool
	StructuralExclusion bool
	Adaptive           bool
	Workers            int
	ForceExcluded      map[int]bool
}

// DefaultParams mirrors the original's defaults.
func DefaultParams() Params {
	return Params{
		Resolution:          0,
		Delta:               150,
		Lambda:              0.02,
		SigmaBias:           em.SigmaBiasDefault,
		NCCThreshold:        registration.DefaultNCCThreshold,
		OuterIterations:     3,
		InnerIterations:     8,
		BiasEnabled:         true,
		StructuralExclusion: true,
		Adaptive:            true,
		Workers:             4,
	}
}

// Context is the explicit, non-singleton state threaded through every
// stage function, per the design note against a single object aggregating
// large arrays.
type Context struct {
	Params Params

	Volume        *model.Volume
	Mask          *model.Mask
	VolumeWeights *model.Volume
	Records       []*model.Record
	Globals       model.GlobalParams

	// StackMetas carries each stack's package/slice-order/multiband
	// bookkeeping (model.Stack.Meta), indexed by Record.StackIndex; nil (or
	// a Packages<=1 entry) disables package-to-volume seeding for that
	// stack. Set directly by callers after NewContext, since NewContext's
	// records argument is already flattened out of their owning Stacks.
	StackMetas []model.StackMeta

	Sampler registration.Sampler
}

// NewContext builds a ready-to-run context; callers supply a mask-trained
// template volume and per-stack records already constructed by the I/O
// collaborator.
func NewContext(params Params, vol *model.Volume, mask *model.Mask, records []*model.Record) (*Context, error) {
	if vol == nil {
		return nil, &model.PreconditionError{Op: "NewContext", Message: "CreateTemplate must run before SetMask"}
	}
	if mask == nil {
		return nil, &model.PreconditionError{Op: "SetMask", Message: "no mask supplied"}
	}
	if !anyOverlap(mask) {
		return nil, &model.PreconditionError{Op: "SetMask", Message: "mask has no ROI overlap"}
	}

	for _, idx := range keysOf(params.ForceExcluded) {
		if idx >= 0 && idx < len(records) {
			records[idx].ForceExcluded = true
			records[idx].SliceWeight = 0
		}
	}

	ctx := &Context{Params: params, Volume: vol, Mask: mask, Records: records}
	ctx.Sampler = defaultSampler(mask)
	return ctx, nil
}

func anyOverlap(m *model.Mask) bool {
	for _, v := range m.Data {
		if v == 1 {
			return true
		}
	}
	return false
}

func keysOf(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	return out
}

func defaultSampler(mask *model.Mask) registration.Sampler {
	var idx *voxelindex.Index

	return func(pose model.Pose, s *model.Slice, vol *model.Volume) ([]float64, []float64) {
		sim := make([]float64, len(s.Data))
		w := make([]float64, len(s.Data))
		for v := 0; v < s.Height; v++ {
			for u := 0; u < s.Width; u++ {
				pix := v*s.Width + u
				if s.Data[pix] < 0 {
					continue
				}
				wx, wy, wz := s.Affine.Apply(float64(u)*s.DX, float64(v)*s.DY, 0)
				wx, wy, wz = pose.TransformPoint(wx, wy, wz)
				vx := int(wx/vol.DX + 0.5)
				vy := int(wy/vol.DY + 0.5)
				vz := int(wz/vol.DZ + 0.5)

				if vol.InBounds(vx, vy, vz) && vol.At(vx, vy, vz) >= 0 {
					sim[pix] = vol.At(vx, vy, vz)
					w[pix] = 1
					continue
				}

				// direct lookup missed (out of bounds or padding): fall
				// back to the nearest in-mask voxel via the kdtree index,
				// built lazily on first miss and reused across calls.
				if idx == nil {
					idx = voxelindex.Build(vol, mask)
				}
				if nearest, ok := idx.Nearest(wx, wy, wz); ok {
					sim[pix] = vol.At(nearest.X, nearest.Y, nearest.Z)
					w[pix] = 1
				}
			}
		}
		return sim, w
	}
}

// Run executes the full outer/inner iteration loop described in
// SPEC_FULL.md §4.6 and returns the final quality report.
func (c *Context) Run() (quality.Report, error) {
	p := c.Params

	for o := 1; o <= p.OuterIterations; o++ {
		log.WithField("outer", o).Info("outer iteration")

		if o == 1 {
			c.runPackageSeeding()
		}

		if o > 1 || !initialPoseGood(c.Records) {
			registration.RunRigid(c.Records, c.Volume, c.Sampler, p.Workers)
			if p.StructuralExclusion {
				c.runStructuralGate()
			}
		}

		c.VolumeWeights = psf.Run(c.Records, c.Volume, c.Mask, p.Workers)

		if o == 1 {
			GaussianReconstruction(c.Records, c.Volume, c.VolumeWeights)
			em.InitializeEM(c.Records, &c.Globals)
			em.InitializeRobustStatistics(c.Records, &c.Globals)
		}

		for k := 1; k <= p.InnerIterations; k++ {
			psf.SimulateSlices(c.Records, c.Volume, c.Mask)

			if k == 1 {
				em.VoxelEStep(c.Records, &c.Globals, p.Workers)
				if err := c.mStep(); err != nil {
					return quality.Report{}, err
				}
			}

			em.Scale(c.Records)
			if p.BiasEnabled {
				em.Bias(c.Records, p.SigmaBias)
			}

			psf.SimulateSlices(c.Records, c.Volume, c.Mask)
			psf.SliceDifference(c.Records)

			original := cloneVolume(c.Volume)
			superres.Update(c.Records, c.Volume, superres.Params{Delta: p.Delta, Lambda: p.Lambda, Adaptive: p.Adaptive}, c.Globals.MinIntensity, c.Globals.MaxIntensity, p.Workers)
			if p.GlobalBiasCorrect {
				superres.BiasCorrectVolume(c.Volume, original, p.SigmaBias, 0.01)
			}

			if p.BiasEnabled {
				c.normaliseBias()
			}
		}

		if p.FFDEnabled {
			c.runFFDRefinement()
		}

		em.SliceEStep(c.Records)
		em.SliceMStep(c.Records, &c.Globals, o)
	}

	model.MaskVolume(c.Volume, c.Mask)
	c.restoreIntensities()

	report := quality.Report{}
	if c.VolumeWeights != nil {
		report = quality.Compute(c.Records, c.Globals.AvgVolumeWeight)
	}
	return report, nil
}

func (c *Context) mStep() error {
	if c.Globals.Mix <= 0 {
		return &model.PreconditionError{Op: "MStep", Message: fmt.Sprintf("mixing proportion collapsed to %.6f", c.Globals.Mix)}
	}
	em.VoxelMStep(c.Records, &c.Globals)
	return nil
}

func (c *Context) runStructuralGate() {
	for _, r := range c.Records {
		blurred := registration.BlurSlice(r.Slice, 0.6*r.Slice.DX)
		registration.StructuralGate(r, blurred, c.Params.NCCThreshold)
	}
}

func (c *Context) normaliseBias() {
	for _, r := range c.Records {
		if r.ForceExcluded || !r.Inside {
			continue
		}
		var sum, n float64
		for i, w := range r.VoxelWeight {
			if w <= 0 {
				continue
			}
			sum += r.Bias[i]
			n++
		}
		if n == 0 {
			continue
		}
		mean := sum / n
		for i := range r.Bias {
			r.Bias[i] -= mean
		}
	}
}

func (c *Context) restoreIntensities() {
	for _, r := range c.Records {
		r.RestoreSliceIntensities()
	}
}

func initialPoseGood(records []*model.Record) bool {
	return false
}

func cloneVolume(v *model.Volume) *model.Volume {
	clone := &model.Volume{NX: v.NX, NY: v.NY, NZ: v.NZ, DX: v.DX, DY: v.DY, DZ: v.DZ, Affine: v.Affine}
	clone.Data = append([]float64(nil), v.Data...)
	return clone
}

// InvertStackTransformations returns the inverse pose of every record,
// leaving the originals untouched; composed with itself this operation is
// the identity.
func InvertStackTransformations(records []*model.Record) []model.Pose {
	out := make([]model.Pose, len(records))
	for i, r := range records {
		out[i] = r.Pose.Invert()
	}
	return out
}
