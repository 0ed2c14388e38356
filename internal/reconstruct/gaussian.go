// Package reconstruct hosts the Gaussian back-projector that builds the
// initial volume estimate and the outer iterator that schedules every
// other subsystem. Grounded in the teacher's top-level Process() pipeline
// shape (pkg/reconstruction/reconstructor.go), and in
// original_source/src/Reconstruction.cc's GaussianReconstruction for the
// exact deposition/normalisation/small-slices rule.
package reconstruct

import (
	"math"
	"sort"

	"svrecon/internal/model"
)

// GaussianReconstruction produces V = (sum_i sum_{u,v} w*s*exp(-b)*sigma) /
// volume_weights, skipping force-excluded slices and masked-out pixels, and
// flags small_slices whose overlap pixel count is below 0.1*median, pinning
// their SliceWeight to 0 since they never re-enter SliceMStep's weight
// update once flagged.
func GaussianReconstruction(records []*model.Record, vol *model.Volume, volumeWeights *model.Volume) {
	for i := range vol.Data {
		vol.Data[i] = 0
	}

	for _, r := range records {
		if r.ForceExcluded {
			continue
		}
		for i, v := range r.Slice.Data {
			if v < 0 {
				continue
			}
			val := v * expNeg(r.Bias[i]) * r.Scale
			for _, c := range r.Coefficients[i] {
				if !vol.InBounds(c.X, c.Y, c.Z) {
					continue
				}
				vol.Set(c.X, c.Y, c.Z, vol.At(c.X, c.Y, c.Z)+c.W*val)
			}
		}
	}

	for i, w := range volumeWeights.Data {
		if w > 0 {
			vol.Data[i] /= w
		} else {
			vol.Data[i] = 0
		}
	}

	flagSmallSlices(records)
}

func flagSmallSlices(records []*model.Record) {
	counts := make([]int, len(records))
	for idx, r := range records {
		n := 0
		for _, c := range r.Coefficients {
			if len(c) > 0 {
				n++
			}
		}
		counts[idx] = n
	}
	if len(counts) == 0 {
		return
	}
	sorted := append([]int(nil), counts...)
	sort.Ints(sorted)
	median := float64(sorted[len(sorted)/2])
	threshold := 0.1 * median
	for idx, r := range records {
		r.Small = float64(counts[idx]) < threshold
		if r.Small {
			r.SliceWeight = 0
		}
	}
}

func expNeg(b float64) float64 {
	return math.Exp(-b)
}
