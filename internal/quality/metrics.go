// Package quality reports the reconstruction's NCC/NRMSE/inclusion-ratio
// metrics, plus supplementary mutual-information and entropy diagnostics
// carried over from the teacher's own quality-metric suite in
// pkg/reconstruction/reconstructor.go (calculateMutualInformation,
// calculateRMSE, calculateSSIM, calculateEntropyDifference), reported
// additively and never fed back into the solver.
package quality

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"svrecon/internal/model"
)

// Report is the final quality summary.
type Report struct {
	NCC              float64
	NRMSE            float64
	RatioExcluded    float64
	AvgVolumeWeight  float64
	MutualInformation float64
	EntropyDiff      float64
}

// Compute averages NCC and NRMSE between s_i*exp(-b_i)*sigma_i and sim_i
// over non-zero pixels, across slices, and the ratio of slices with
// pi_i < 0.5.
func Compute(records []*model.Record, avgVolumeWeight float64) Report {
	var sumNCC, sumNRMSE, sumMI, sumEntropy float64
	var nSlices, nExcluded float64

	for _, r := range records {
		if r.ForceExcluded {
			continue
		}
		a, b := correctedAndSimulated(r)
		if len(a) == 0 {
			continue
		}
		sumNCC += correlation(a, b)
		sumNRMSE += nrmse(a, b)
		sumMI += mutualInformation(a, b)
		sumEntropy += math.Abs(entropy(a) - entropy(b))
		nSlices++
		if r.SliceWeight < 0.5 {
			nExcluded++
		}
	}

	rep := Report{AvgVolumeWeight: avgVolumeWeight}
	if nSlices > 0 {
		rep.NCC = sumNCC / nSlices
		rep.NRMSE = sumNRMSE / nSlices
		rep.MutualInformation = sumMI / nSlices
		rep.EntropyDiff = sumEntropy / nSlices
		rep.RatioExcluded = nExcluded / nSlices
	}
	return rep
}

func correctedAndSimulated(r *model.Record) (a, b []float64) {
	for i, v := range r.Slice.Data {
		if v < 0 || r.Simulated[i] == 0 {
			continue
		}
		a = append(a, v*math.Exp(-r.Bias[i])*r.Scale)
		b = append(b, r.Simulated[i])
	}
	return
}

func correlation(a, b []float64) float64 {
	if len(a) < 2 {
		return 0
	}
	return stat.Correlation(a, b, nil)
}

func nrmse(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var sumSq, maxA, minA float64
	maxA, minA = math.Inf(-1), math.Inf(1)
	for i := range a {
		d := a[i] - b[i]
		sumSq += d * d
		if a[i] > maxA {
			maxA = a[i]
		}
		if a[i] < minA {
			minA = a[i]
		}
	}
	rmse := math.Sqrt(sumSq / float64(len(a)))
	rng := maxA - minA
	if rng <= 0 {
		return rmse
	}
	return rmse / rng
}

func mutualInformation(a, b []float64) float64 {
	const bins = 32
	if len(a) == 0 {
		return 0
	}
	minA, maxA := minMax(a)
	minB, maxB := minMax(b)
	if maxA <= minA || maxB <= minB {
		return 0
	}
	joint := make(map[[2]int]int)
	histA := make([]int, bins)
	histB := make([]int, bins)
	for i := range a {
		ba := binOf(a[i], minA, maxA, bins)
		bb := binOf(b[i], minB, maxB, bins)
		joint[[2]int{ba, bb}]++
		histA[ba]++
		histB[bb]++
	}
	n := float64(len(a))
	var mi float64
	for key, c := range joint {
		pxy := float64(c) / n
		px := float64(histA[key[0]]) / n
		py := float64(histB[key[1]]) / n
		if px > 0 && py > 0 && pxy > 0 {
			mi += pxy * math.Log(pxy/(px*py))
		}
	}
	return mi
}

func entropy(a []float64) float64 {
	const bins = 32
	if len(a) == 0 {
		return 0
	}
	minA, maxA := minMax(a)
	if maxA <= minA {
		return 0
	}
	hist := make([]int, bins)
	for _, v := range a {
		hist[binOf(v, minA, maxA, bins)]++
	}
	n := float64(len(a))
	var h float64
	for _, c := range hist {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log(p)
	}
	return h
}

func binOf(v, lo, hi float64, bins int) int {
	t := (v - lo) / (hi - lo)
	b := int(t * float64(bins))
	if b < 0 {
		b = 0
	}
	if b >= bins {
		b = bins - 1
	}
	return b
}

func minMax(a []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range a {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
