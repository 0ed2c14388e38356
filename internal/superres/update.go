// Package superres implements the gradient-style residual back-projection
// with adaptive anisotropic regularisation that updates the reconstruction
// volume each inner iteration. Grounded in
// original_source/src/Reconstruction.cc's Superresolution/
// AdaptiveRegularization/BiasCorrectVolume, and in the teacher's
// pkg/shearlet/transform.go ApplyEdgePreservedSmoothing for the
// bounds-checked neighbourhood-traversal style generalised here from 2D
// 8-neighbourhoods to 3D 13-direction neighbourhoods.
package superres

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"svrecon/internal/model"
)

var log = logrus.WithField("component", "superres")

// Params are the tunables of the update rule and regulariser.
type Params struct {
	Delta    float64 // edge-preservation parameter
	Lambda   float64 // regularisation strength
	Adaptive bool    // adaptive mode keeps confidence as computed; non-adaptive rescales to 1
}

// Alpha returns the SR step size alpha = (0.05/lambda)*delta^2.
func (p Params) Alpha() float64 {
	if p.Lambda == 0 {
		return 0
	}
	return (0.05 / p.Lambda) * p.Delta * p.Delta
}

// Update performs one super-resolution step: accumulate addon/confidence
// from every record's residual, rescale, apply the SR step, clamp, then
// run the adaptive regulariser. workers bounds how many partial
// addon/confidence accumulator buffers exist concurrently; each is
// volume-sized, so an unbounded fan-out over hundreds of slices would be
// memory-heavy.
func Update(records []*model.Record, vol *model.Volume, params Params, minI, maxI float64, workers int) {
	addon := make([]float64, len(vol.Data))
	confidence := make([]float64, len(vol.Data))

	accumulate(records, vol, addon, confidence, workers)

	alpha := params.Alpha()
	if !params.Adaptive {
		for i := range addon {
			if confidence[i] > 0 {
				addon[i] /= confidence[i]
			}
			confidence[i] = 1
		}
	}

	original := append([]float64(nil), vol.Data...)

	for i := range vol.Data {
		if confidence[i] > 0 {
			vol.Data[i] += alpha * (addon[i] / confidence[i])
		}
	}
	vol.Clamp(0.9*minI, 1.1*maxI)

	AdaptiveRegularization(vol, original, params)

	ratio := alpha * params.Lambda / (params.Delta * params.Delta)
	if ratio > 0.068 {
		log.WithField("ratio", ratio).Warn("smoothing unlikely: alpha*lambda/delta^2 exceeds 0.068")
	}
}

func accumulate(records []*model.Record, vol *model.Volume, addon, confidence []float64, workers int) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(records) {
		workers = len(records)
	}
	if workers == 0 {
		return
	}

	type partial struct {
		addon, confidence []float64
	}
	jobs := make(chan *model.Record, len(records))
	for _, r := range records {
		jobs <- r
	}
	close(jobs)

	results := make(chan partial, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			localAddon := make([]float64, len(vol.Data))
			localConf := make([]float64, len(vol.Data))
			for r := range jobs {
				if r.ForceExcluded {
					continue
				}
				for i, coeffs := range r.Coefficients {
					if r.RegSliceWeight < 0 {
						continue
					}
					w := r.VoxelWeight[i] * r.SliceWeight
					if w <= 0 {
						continue
					}
					diff := r.SliceDiff[i]
					for _, c := range coeffs {
						if !vol.InBounds(c.X, c.Y, c.Z) {
							continue
						}
						idx := (c.Z*vol.NY+c.Y)*vol.NX + c.X
						localAddon[idx] += c.W * w * diff
						localConf[idx] += c.W * w
					}
				}
			}
			results <- partial{localAddon, localConf}
		}()
	}
	wg.Wait()
	close(results)
	for p := range results {
		for i := range addon {
			addon[i] += p.addon[i]
			confidence[i] += p.confidence[i]
		}
	}
}

// canonical13 are the 13 canonical neighbour directions (half of the 26
// full 3x3x3 neighbourhood, since each direction and its opposite share a
// diffusion weight).
var canonical13 = [13][3]int{
	{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
	{1, 1, 0}, {1, -1, 0}, {1, 0, 1}, {1, 0, -1}, {0, 1, 1}, {0, 1, -1},
	{1, 1, 1}, {1, 1, -1}, {1, -1, 1}, {1, -1, -1},
}

func directionFactors() [13]float64 {
	var f [13]float64
	for i, d := range canonical13 {
		sum := math.Abs(float64(d[0])) + math.Abs(float64(d[1])) + math.Abs(float64(d[2]))
		f[i] = 1 / sum
	}
	return f
}

// AdaptiveRegularization diffuses the volume toward edge-preserving
// smoothness: for each of the 13 canonical directions, a per-voxel
// diffusion weight b_k = f_k/(1+(|V(x+d)-V(x)|/delta)^2) gates how much of
// the neighbour's original value is blended in.
func AdaptiveRegularization(vol *model.Volume, original []float64, params Params) {
	if params.Lambda == 0 {
		return
	}
	factors := directionFactors()
	delta := params.Delta
	if delta <= 0 {
		delta = 1e-3
	}

	delta2 := make([]float64, len(vol.Data))

	for x := 0; x < vol.NX; x++ {
		for y := 0; y < vol.NY; y++ {
			for z := 0; z < vol.NZ; z++ {
				idx := (z*vol.NY+y)*vol.NX + x
				if vol.Data[idx] < 0 {
					continue
				}
				var acc float64
				for k, d := range canonical13 {
					for sign := -1; sign <= 1; sign += 2 {
						nx, ny, nz := x+sign*d[0], y+sign*d[1], z+sign*d[2]
						if !vol.InBounds(nx, ny, nz) {
							continue
						}
						nidx := (nz*vol.NY+ny)*vol.NX + nx
						if vol.Data[nidx] < 0 {
							continue
						}
						diff := vol.Data[nidx] - vol.Data[idx]
						bk := factors[k] / (1 + (diff/delta)*(diff/delta))
						acc += bk * (original[nidx] - original[idx])
					}
				}
				delta2[idx] = params.Lambda * acc
			}
		}
	}

	for i, d := range delta2 {
		if vol.Data[i] >= 0 {
			vol.Data[i] += d
		}
	}
}
