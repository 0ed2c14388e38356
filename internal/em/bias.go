package em

import (
	"math"

	"svrecon/internal/model"
	"svrecon/internal/superres"
)

// SigmaBiasDefault is the default Gaussian standard deviation (mm) for the
// bias-smoothing kernel, a caller-tunable per SPEC_FULL.md §6.
const SigmaBiasDefault = 12.0

// Bias estimates each record's per-pixel log-bias field by weighted
// Gaussian smoothing of log(s_i/sim_i) within the mask, normalised by
// smoothed weights, then re-centred to zero mean (subtracting the
// mask-weighted mean), matching the original's Bias/NormaliseBias pair.
func Bias(records []*model.Record, sigmaBiasMM float64) {
	for _, r := range records {
		biasOne(r, sigmaBiasMM)
	}
}

func biasOne(r *model.Record, sigmaBiasMM float64) {
	if r.ForceExcluded || !r.Inside {
		return
	}
	s := r.Slice
	raw := make([]float64, len(s.Data))
	weight := make([]float64, len(s.Data))
	for i, v := range s.Data {
		if v < 0 || len(r.Coefficients[i]) == 0 || r.Simulated[i] <= 0 {
			continue
		}
		raw[i] = math.Log(v / r.Simulated[i])
		weight[i] = r.VoxelWeight[i]
	}

	weightedRaw := make([]float64, len(raw))
	for i, v := range raw {
		weightedRaw[i] = v * weight[i]
	}

	smoothedRaw := superres.GaussianBlur2D(weightedRaw, s.Width, s.Height, s.DX, s.DY, sigmaBiasMM)
	smoothedWeight := superres.GaussianBlur2D(weight, s.Width, s.Height, s.DX, s.DY, sigmaBiasMM)

	for i := range r.Bias {
		if smoothedWeight[i] > 1e-6 {
			r.Bias[i] = smoothedRaw[i] / smoothedWeight[i]
		} else {
			r.Bias[i] = 0
		}
	}

	var sum, n float64
	for i, v := range r.Bias {
		if weight[i] <= 0 {
			continue
		}
		sum += v
		n++
	}
	if n > 0 {
		mean := sum / n
		for i := range r.Bias {
			r.Bias[i] -= mean
		}
	}
}
