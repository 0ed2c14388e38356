package psf

import (
	"math"

	"svrecon/internal/model"
)

// SimulateSlices forward-projects the current volume into every record's
// slice grid via its PSF coefficients:
// sim(u,v) = (sum w*V(x,y,z)) / (sum w) when the weight sum exceeds 0.98,
// else 0, matching the CoeffInit contract in SPEC_FULL.md §4.1.
func SimulateSlices(records []*model.Record, vol *model.Volume, mask *model.Mask) {
	for _, r := range records {
		simulateOne(r, vol, mask)
	}
}

func simulateOne(r *model.Record, vol *model.Volume, mask *model.Mask) {
	for i, coeffs := range r.Coefficients {
		if len(coeffs) == 0 {
			r.Simulated[i] = 0
			r.SimWeights[i] = 0
			r.SimInside[i] = false
			continue
		}
		var num, wsum float64
		inside := false
		for _, c := range coeffs {
			if !vol.InBounds(c.X, c.Y, c.Z) {
				continue
			}
			v := vol.At(c.X, c.Y, c.Z)
			if v < 0 {
				continue
			}
			num += c.W * v
			wsum += c.W
			if mask != nil && mask.InBounds(c.X, c.Y, c.Z) && mask.At(c.X, c.Y, c.Z) == 1 {
				inside = true
			}
		}
		r.SimWeights[i] = wsum
		r.SimInside[i] = inside
		if wsum > 0.98 {
			r.Simulated[i] = num / wsum
		} else {
			r.Simulated[i] = 0
		}
	}
}

// SliceDifference computes slice_dif_i = s_i*exp(-b_i)*sigma_i - sim_i for
// every pixel, the residual fed into the super-resolution update.
func SliceDifference(records []*model.Record) {
	for _, r := range records {
		for i, v := range r.Slice.Data {
			if v < 0 {
				r.SliceDiff[i] = 0
				continue
			}
			r.SliceDiff[i] = v*math.Exp(-r.Bias[i])*r.Scale - r.Simulated[i]
		}
	}
}
