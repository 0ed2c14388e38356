package superres

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"svrecon/internal/model"
)

// BiasCorrectVolume computes r = log(V/V_prev), Gaussian-smooths r (and its
// weights, 1 where V and V_prev are both positive and V >= maskCutoff, else
// 0; no mask volume is consulted) separably along each axis using
// gonum/v1/gonum/dsp/fourier — a 3D generalisation of the teacher's
// pkg/shearlet/fft.go row/column separable FFT blur — then sets
// V <- V * exp(-r_smoothed).
func BiasCorrectVolume(vol, original *model.Volume, sigmaMM float64, maskCutoff float64) {
	n := len(vol.Data)
	residual := make([]float64, n)
	weight := make([]float64, n)
	for i := range vol.Data {
		if vol.Data[i] <= 0 || original.Data[i] <= 0 || vol.Data[i] < maskCutoff {
			continue
		}
		residual[i] = math.Log(vol.Data[i] / original.Data[i])
		weight[i] = 1
	}

	weightedResidual := make([]float64, n)
	for i, r := range residual {
		weightedResidual[i] = r * weight[i]
	}

	smoothedResidual := gaussianBlur3D(weightedResidual, vol.NX, vol.NY, vol.NZ, vol.DX, vol.DY, vol.DZ, sigmaMM)
	smoothedWeight := gaussianBlur3D(weight, vol.NX, vol.NY, vol.NZ, vol.DX, vol.DY, vol.DZ, sigmaMM)

	for i := range vol.Data {
		if vol.Data[i] < 0 {
			continue
		}
		var r float64
		if smoothedWeight[i] > 1e-6 {
			r = smoothedResidual[i] / smoothedWeight[i]
		}
		vol.Data[i] *= math.Exp(-r)
	}
}

// GaussianBlur2D applies the same FFT-domain separable Gaussian blur as
// BiasCorrectVolume to a single 2D field (treated as a depth-1 volume),
// shared with internal/em's per-slice bias estimation so both consumers of
// SPEC_FULL.md's bias-smoothing step go through one FFT-backed
// implementation instead of two.
func GaussianBlur2D(data []float64, width, height int, dx, dy, sigmaMM float64) []float64 {
	return gaussianBlur3D(data, width, height, 1, dx, dy, 1, sigmaMM)
}

// gaussianBlur3D applies a separable Gaussian blur along x, then y, then z,
// each axis pass implemented as an FFT-domain multiply by the FFT of a
// matched 1D Gaussian kernel.
func gaussianBlur3D(data []float64, nx, ny, nz int, dx, dy, dz, sigmaMM float64) []float64 {
	out := append([]float64(nil), data...)
	out = blurAxis(out, nx, ny, nz, 0, sigmaMM/dx)
	out = blurAxis(out, nx, ny, nz, 1, sigmaMM/dy)
	out = blurAxis(out, nx, ny, nz, 2, sigmaMM/dz)
	return out
}

// blurAxis convolves data along the given axis (0=x,1=y,2=z) with a
// Gaussian kernel of standard deviation sigmaVox (in voxels), implemented
// as a real FFT, pointwise multiply by the kernel's FFT, inverse FFT.
func blurAxis(data []float64, nx, ny, nz, axis int, sigmaVox float64) []float64 {
	var n int
	switch axis {
	case 0:
		n = nx
	case 1:
		n = ny
	default:
		n = nz
	}
	if n < 2 || sigmaVox <= 0 {
		return data
	}

	kernel := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(i)
		if d > float64(n)/2 {
			d -= float64(n)
		}
		v := math.Exp(-(d * d) / (2 * sigmaVox * sigmaVox))
		kernel[i] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	fft := fourier.NewFFT(n)
	kernelFreq := make([]complex128, n/2+1)
	fft.Coefficients(kernelFreq, kernel)

	return applyBlurredLines(data, nx, ny, nz, axis, fft, kernelFreq)
}

func applyBlurredLines(data []float64, nx, ny, nz, axis int, fft *fourier.FFT, kernelFreq []complex128) []float64 {
	out := append([]float64(nil), data...)
	idx := func(x, y, z int) int { return (z*ny+y)*nx + x }

	switch axis {
	case 0:
		n := nx
		line := make([]float64, n)
		lineFreq := make([]complex128, n/2+1)
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for x := 0; x < n; x++ {
					line[x] = data[idx(x, y, z)]
				}
				fft.Coefficients(lineFreq, line)
				for i := range lineFreq {
					lineFreq[i] *= kernelFreq[i]
				}
				fft.Sequence(line, lineFreq)
				for x := 0; x < n; x++ {
					out[idx(x, y, z)] = line[x] / float64(n)
				}
			}
		}
	case 1:
		n := ny
		line := make([]float64, n)
		lineFreq := make([]complex128, n/2+1)
		for z := 0; z < nz; z++ {
			for x := 0; x < nx; x++ {
				for y := 0; y < n; y++ {
					line[y] = data[idx(x, y, z)]
				}
				fft.Coefficients(lineFreq, line)
				for i := range lineFreq {
					lineFreq[i] *= kernelFreq[i]
				}
				fft.Sequence(line, lineFreq)
				for y := 0; y < n; y++ {
					out[idx(x, y, z)] = line[y] / float64(n)
				}
			}
		}
	default:
		n := nz
		line := make([]float64, n)
		lineFreq := make([]complex128, n/2+1)
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				for z := 0; z < n; z++ {
					line[z] = data[idx(x, y, z)]
				}
				fft.Coefficients(lineFreq, line)
				for i := range lineFreq {
					lineFreq[i] *= kernelFreq[i]
				}
				fft.Sequence(line, lineFreq)
				for z := 0; z < n; z++ {
					out[idx(x, y, z)] = line[z] / float64(n)
				}
			}
		}
	}
	return out
}
