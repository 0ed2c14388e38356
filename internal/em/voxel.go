// Package em implements the expectation-maximisation robust statistics
// engine: voxel- and slice-level outlier rejection, intensity scaling, and
// bias-field estimation. Grounded throughout in
// original_source/src/Reconstruction.cc's InitializeEM,
// InitializeRobustStatistics, EStep, MStep, Scale and Bias, carrying over
// that file's exact constants and degenerate-case fallback ladder.
package em

import (
	"math"
	"sync"

	"svrecon/internal/model"
)

// InitializeEM sets per-record weights/bias to neutral values (weights=1,
// bias=0, scale=1, slice weight=1) and computes the global intensity
// range, matching InitializeEM's omp-reduction over all slices. Per
// SPEC_FULL.md §3's invariant, force-excluded and small slices get
// slice weight 0 instead, since they never re-enter the slice-level
// E/M-step's potential pool (Potential stays -1 for them) to correct it
// later.
func InitializeEM(records []*model.Record, g *model.GlobalParams) {
	g.MinIntensity = math.Inf(1)
	g.MaxIntensity = math.Inf(-1)
	for _, r := range records {
		for i := range r.VoxelWeight {
			r.VoxelWeight[i] = 1
			r.Bias[i] = 0
		}
		r.Scale = 1
		if r.ForceExcluded || r.Small {
			r.SliceWeight = 0
		} else {
			r.SliceWeight = 1
		}
		for _, v := range r.Slice.Data {
			if v < 0 {
				continue
			}
			if v < g.MinIntensity {
				g.MinIntensity = v
			}
			if v > g.MaxIntensity {
				g.MaxIntensity = v
			}
		}
	}
	if math.IsInf(g.MinIntensity, 1) {
		g.MinIntensity = 0
	}
	if math.IsInf(g.MaxIntensity, -1) {
		g.MaxIntensity = 1
	}
}

// InitializeRobustStatistics seeds sigma^2 from the variance of residuals
// where the simulated pixel is fully inside and reliably simulated
// (SimInside && SimWeights>0.99), and sets sigma_s=0.025, mix=mix_s=0.9,
// m=1/(2.1*max-1.9*min), matching the original's constants verbatim.
func InitializeRobustStatistics(records []*model.Record, g *model.GlobalParams) {
	var sum, n float64
	for _, r := range records {
		for i, v := range r.Slice.Data {
			if v < 0 || !r.SimInside[i] || r.SimWeights[i] <= 0.99 {
				continue
			}
			e := v - r.Simulated[i]
			sum += e * e
			n++
		}
	}
	if n > 0 {
		g.Sigma2 = sum / n
	} else {
		g.Sigma2 = 0.01
	}
	if g.Sigma2 < model.VarianceFloor {
		g.Sigma2 = model.VarianceFloor
	}

	g.SigmaS2 = 0.025 * 0.025
	g.Mix = 0.9
	g.MixS = 0.9
	denom := 2.1*g.MaxIntensity - 1.9*g.MinIntensity
	if denom <= 0 {
		denom = 1
	}
	g.M = 1 / denom

	for _, r := range records {
		r.Potential = 0
	}
}

// VoxelEStep computes the inlier/outlier posterior w_i(u,v) for every
// in-mask slice pixel with coefficients, per record, in parallel (each
// record owns its own VoxelWeight slice for the stage).
func VoxelEStep(records []*model.Record, g *model.GlobalParams, workers int) {
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int, len(records))
	for i := range records {
		jobs <- i
	}
	close(jobs)

	sigma := math.Sqrt(g.Sigma2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				voxelEStepOne(records[idx], g, sigma)
			}
		}()
	}
	wg.Wait()
}

func voxelEStepOne(r *model.Record, g *model.GlobalParams, sigma float64) {
	if r.ForceExcluded || !r.Inside {
		return
	}
	for i, v := range r.Slice.Data {
		if v < 0 || len(r.Coefficients[i]) == 0 {
			r.VoxelWeight[i] = 0
			continue
		}
		e := v - r.Simulated[i]
		g1 := gaussianDensity(e, sigma) * tissuePrior(r.ProbabilityMap, r.Coefficients[i])
		denom := g.Mix*g1 + (1-g.Mix)*g.M
		if denom <= 0 {
			r.VoxelWeight[i] = 0
			continue
		}
		r.VoxelWeight[i] = g.Mix * g1 / denom
	}
}

// tissuePrior samples the record's tissue-prior volume at the voxels the
// pixel's PSF coefficients contribute to, weighted the same way those
// coefficients weight the forward/adjoint PSF operator, and returns 1 (a
// uniform, non-informative prior) when no map is set or none of the
// coefficient voxels fall inside it.
func tissuePrior(pm *model.Volume, coeffs []model.Coefficient) float64 {
	if pm == nil {
		return 1
	}
	var sum, wsum float64
	for _, c := range coeffs {
		if !pm.InBounds(c.X, c.Y, c.Z) {
			continue
		}
		v := pm.At(c.X, c.Y, c.Z)
		if v < 0 {
			continue
		}
		sum += c.W * v
		wsum += c.W
	}
	if wsum <= 0 {
		return 1
	}
	return sum / wsum
}

func gaussianDensity(e, sigma float64) float64 {
	if sigma <= 0 {
		sigma = 1e-6
	}
	return math.Exp(-(e*e)/(2*sigma*sigma)) / (sigma * math.Sqrt(2*math.Pi))
}

// VoxelMStep updates sigma^2 as the weighted mean of e^2 and mix as the
// mean of w, flooring sigma^2 at Step^2/6.28.
func VoxelMStep(records []*model.Record, g *model.GlobalParams) {
	var sumWE2, sumW, sumWAll, n float64
	for _, r := range records {
		if r.ForceExcluded || !r.Inside {
			continue
		}
		for i, v := range r.Slice.Data {
			if v < 0 || len(r.Coefficients[i]) == 0 {
				continue
			}
			e := v - r.Simulated[i]
			w := r.VoxelWeight[i]
			sumWE2 += w * e * e
			sumW += w
			sumWAll += w
			n++
		}
	}
	if sumW > 0 {
		g.Sigma2 = sumWE2 / sumW
	}
	if g.Sigma2 < model.VarianceFloor {
		g.Sigma2 = model.VarianceFloor
	}
	if n > 0 {
		g.Mix = sumWAll / n
	}
}
