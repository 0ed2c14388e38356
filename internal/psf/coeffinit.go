// Package psf builds the sparse forward operator mapping the
// reconstruction volume to each slice: per slice-pixel lists of
// (voxel, weight) contributions from a 3D Gaussian point-spread function.
// Grounded in original_source/src/Reconstruction.cc's CoeffInit, with the
// same explicit-serial-deposition discipline for volume_weights that file
// documents twice ("Do not parallelise: It would cause data
// inconsistencies").
package psf

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"svrecon/internal/model"
)

var log = logrus.WithField("component", "psf")

const fwhmToSigma = 1.0 / 2.3548 // sigmaToFWHM^-1, grounded in
// other_examples/karolbe-StarMetricsGo__gaussianpsf.go's
// sigmaToFWHM = 2*sqrt(2*ln2)

// Oversample controls how many sub-samples per axis each slice pixel is
// split into before mapping through the pose and depositing Gaussian mass;
// exposed so callers can trade accuracy for speed.
type Oversample struct {
	InPlane    int
	ThroughPlane int
}

// DefaultOversample matches the original's behaviour of covering each
// slice pixel's footprint with enough samples that no in-mask voxel under
// it is skipped.
var DefaultOversample = Oversample{InPlane: 2, ThroughPlane: 2}

// sigmaFor returns the in-plane and through-plane Gaussian standard
// deviations for a slice, per the PSF model in the component design:
// in-plane sigma ~= 1.2*dx/2.3548, through-plane sigma ~= t_i/2.3548.
func sigmaFor(s *model.Slice) (sigmaXY, sigmaZ float64) {
	sigmaXY = 1.2 * s.DX * fwhmToSigma
	sigmaZ = s.Thickness * fwhmToSigma
	return
}

// Run computes per-pixel coefficient lists for every non-force-excluded
// record, deposits PSF mass into volumeWeights, and sets Inside on each
// record. Following the bulk-synchronous model (§5), per-slice coefficient
// building runs in parallel workers that each write only to their own
// record; the deposition into the shared volumeWeights array is serialised
// afterwards on a single goroutine.
func Run(records []*model.Record, vol *model.Volume, mask *model.Mask, workers int) *model.Volume {
	volumeWeights := model.NewVolume(vol.NX, vol.NY, vol.NZ, vol.DX, vol.Affine)
	for i := range volumeWeights.Data {
		volumeWeights.Data[i] = 0
	}

	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, len(records))
	for i := range records {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				buildOne(records[idx], vol, mask)
			}
		}()
	}
	wg.Wait()

	// Serial deposition: never parallelise this loop, it would cause
	// lost-update races across slices writing the same voxel.
	for _, r := range records {
		if r.ForceExcluded {
			continue
		}
		for pix, coeffs := range r.Coefficients {
			_ = pix
			for _, c := range coeffs {
				if volumeWeights.InBounds(c.X, c.Y, c.Z) {
					volumeWeights.Set(c.X, c.Y, c.Z, volumeWeights.At(c.X, c.Y, c.Z)+c.W)
				}
			}
		}
	}

	log.WithField("slices", len(records)).Debug("coeffinit done")
	return volumeWeights
}

// buildOne fills one record's coefficient lists and determines Inside.
func buildOne(r *model.Record, vol *model.Volume, mask *model.Mask) {
	s := r.Slice
	sigmaXY, sigmaZ := sigmaFor(s)
	if sigmaXY <= 0 {
		sigmaXY = 1e-3
	}
	if sigmaZ <= 0 {
		sigmaZ = 1e-3
	}

	ov := DefaultOversample
	radiusXY := 3.0 * sigmaXY // 3-sigma support
	radiusZ := 3.0 * sigmaZ

	inside := false

	for v := 0; v < s.Height; v++ {
		for u := 0; u < s.Width; u++ {
			pix := v*s.Width + u
			if s.Data[pix] < 0.01 { // padding, boundary behaviour §8
				continue
			}

			acc := make(map[[3]int]float64)
			var total float64

			for oz := 0; oz < ov.ThroughPlane; oz++ {
				for oy := 0; oy < ov.InPlane; oy++ {
					for ox := 0; ox < ov.InPlane; ox++ {
						// sub-sample position within the pixel, in slice
						// index space (pixel centre +/- fractional offset)
						du := (float64(ox)+0.5)/float64(ov.InPlane) - 0.5
						dv := (float64(oy)+0.5)/float64(ov.InPlane) - 0.5
						dz := (float64(oz)+0.5)/float64(ov.ThroughPlane) - 0.5

						wx, wy, wz := s.Affine.Apply(
							(float64(u)+du)*s.DX,
							(float64(v)+dv)*s.DY,
							dz*s.Thickness,
						)
						wx, wy, wz = r.Pose.TransformPoint(wx, wy, wz)

						vx := wx / vol.DX
						vy := wy / vol.DY
						vz := wz / vol.DZ

						x0 := int(math.Floor(vx - radiusXY/vol.DX))
						x1 := int(math.Ceil(vx + radiusXY/vol.DX))
						y0 := int(math.Floor(vy - radiusXY/vol.DY))
						y1 := int(math.Ceil(vy + radiusXY/vol.DY))
						z0 := int(math.Floor(vz - radiusZ/vol.DZ))
						z1 := int(math.Ceil(vz + radiusZ/vol.DZ))

						for zz := z0; zz <= z1; zz++ {
							for yy := y0; yy <= y1; yy++ {
								for xx := x0; xx <= x1; xx++ {
									if !vol.InBounds(xx, yy, zz) {
										continue
									}
									dxw := (float64(xx) - vx) * vol.DX
									dyw := (float64(yy) - vy) * vol.DY
									dzw := (float64(zz) - vz) * vol.DZ
									g := gaussian3D(dxw, dyw, dzw, sigmaXY, sigmaXY, sigmaZ)
									if g <= 1e-6 {
										continue
									}
									key := [3]int{xx, yy, zz}
									acc[key] += g
									total += g
								}
							}
						}
					}
				}
			}

			if total <= 0 {
				continue
			}
			coeffs := make([]model.Coefficient, 0, len(acc))
			for key, w := range acc {
				norm := w / total
				if norm <= 0 {
					continue
				}
				coeffs = append(coeffs, model.Coefficient{X: key[0], Y: key[1], Z: key[2], W: norm})
				if mask != nil && mask.InBounds(key[0], key[1], key[2]) && mask.At(key[0], key[1], key[2]) == 1 {
					inside = true
				}
			}
			r.Coefficients[pix] = coeffs
		}
	}

	r.Inside = inside
	if !inside {
		r.SliceWeight = 0
	}
}

func gaussian3D(dx, dy, dz, sx, sy, sz float64) float64 {
	ex := dx * dx / (2 * sx * sx)
	ey := dy * dy / (2 * sy * sy)
	ez := dz * dz / (2 * sz * sz)
	return math.Exp(-(ex + ey + ez))
}
