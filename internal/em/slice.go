package em

import (
	"math"

	"svrecon/internal/model"
)

// SliceEStep computes each slice's potential p_i = sqrt(mean over in-mask
// pixels of (1-w)^2), overriding p_i=-1 for force-excluded, small, or
// unrealistic-scale (sigma_i outside [0.2,5]) slices.
func SliceEStep(records []*model.Record) {
	for _, r := range records {
		if r.ForceExcluded || r.Small || r.Scale < 0.2 || r.Scale > 5 {
			r.Potential = -1
			continue
		}
		var sum, n float64
		for i, v := range r.Slice.Data {
			if v < 0 || len(r.Coefficients[i]) == 0 {
				continue
			}
			d := 1 - r.VoxelWeight[i]
			sum += d * d
			n++
		}
		if n == 0 {
			r.Potential = -1
			continue
		}
		r.Potential = math.Sqrt(sum / n)
	}
}

// SliceMStep computes the weighted two-component Gaussian mixture
// (mean_s/sigma_s^2 for inliers weighted by pi_i, mean_s2/sigma_s2^2 for
// outliers weighted by 1-pi_i) and updates each slice's pi_i with the
// documented deterministic fallbacks: all-equal potentials keep pi=1;
// p_i <= mean_s keeps pi=1; p_i >= mean_s2 sets pi=0.
func SliceMStep(records []*model.Record, g *model.GlobalParams, iter int) {
	var sumPiP, sumPi, sumNPiP, sumNPi float64
	var validPotentials []float64
	for _, r := range records {
		if r.Potential < 0 {
			continue
		}
		validPotentials = append(validPotentials, r.Potential)
		sumPiP += r.SliceWeight * r.Potential
		sumPi += r.SliceWeight
		sumNPiP += (1 - r.SliceWeight) * r.Potential
		sumNPi += 1 - r.SliceWeight
	}

	allSame := true
	for i := 1; i < len(validPotentials); i++ {
		if validPotentials[i] != validPotentials[0] {
			allSame = false
			break
		}
	}

	if sumPi > 0 {
		g.MeanS = sumPiP / sumPi
	}
	if sumNPi > 0 {
		g.MeanS2 = sumNPiP / sumNPi
	}

	var varInlier, varOutlier float64
	for _, r := range records {
		if r.Potential < 0 {
			continue
		}
		dIn := r.Potential - g.MeanS
		dOut := r.Potential - g.MeanS2
		varInlier += r.SliceWeight * dIn * dIn
		varOutlier += (1 - r.SliceWeight) * dOut * dOut
	}
	if sumPi > 0 {
		g.SigmaS2 = varInlier / sumPi
	}
	if sumNPi > 0 {
		g.SigmaS22 = varOutlier / sumNPi
	}
	if g.SigmaS2 < model.VarianceFloor {
		g.SigmaS2 = model.VarianceFloor
	}
	if g.SigmaS22 < model.VarianceFloor {
		g.SigmaS22 = model.VarianceFloor
	}
	if g.MeanS2 <= g.MeanS {
		g.MeanS2 = g.MeanS + math.Sqrt(g.SigmaS2) + 1e-6
	}

	for _, r := range records {
		if r.Potential < 0 {
			continue
		}
		switch {
		case allSame:
			r.SliceWeight = 1
		case r.Potential <= g.MeanS:
			r.SliceWeight = 1
		case r.Potential >= g.MeanS2:
			r.SliceWeight = 0
		default:
			gIn := gaussianDensity(r.Potential-g.MeanS, math.Sqrt(g.SigmaS2))
			gOut := gaussianDensity(r.Potential-g.MeanS2, math.Sqrt(g.SigmaS22))
			likelihood := g.MixS*gIn + (1-g.MixS)*gOut
			if likelihood <= 0 {
				r.SliceWeight = 1
				continue
			}
			r.SliceWeight = g.MixS * gIn / likelihood
		}
	}

	if iter > 1 && len(validPotentials) > 0 {
		var sumWeight float64
		for _, r := range records {
			if r.Potential < 0 {
				continue
			}
			sumWeight += r.SliceWeight
		}
		g.MixS = sumWeight / float64(len(validPotentials))
	}
}

// Scale recomputes sigma_i for each record, over pixels where
// sim_weights > 0.99, per sigma_i = sum(w*pi*s*sim) / sum(w*pi*sim^2).
func Scale(records []*model.Record) {
	for _, r := range records {
		if r.ForceExcluded || !r.Inside {
			continue
		}
		var num, den float64
		for i, v := range r.Slice.Data {
			if v < 0 || r.SimWeights[i] <= 0.99 {
				continue
			}
			w := r.VoxelWeight[i]
			sim := r.Simulated[i]
			num += w * r.SliceWeight * v * sim
			den += w * r.SliceWeight * sim * sim
		}
		if den > 0 {
			r.Scale = num / den
		}
	}
}
