package registration

import (
	"math"

	"svrecon/internal/model"
)

// DefaultNCCThreshold matches the original's global_NCC_threshold default.
const DefaultNCCThreshold = 0.65

// StructuralGate computes NCC between a (lightly Gaussian-blurred,
// in-mask-only) slice and its forward-projected simulation, and sets
// RegSliceWeight to -1 when it falls below threshold, else +1.
// blurredSlice must already be blurred at 0.6*dx within the mask; this
// keeps the blur itself (a 2D convolution) out of this package, which owns
// only the gating decision.
func StructuralGate(r *model.Record, blurredSlice []float64, threshold float64) {
	if r.ForceExcluded || !r.Inside {
		r.RegSliceWeight = -1
		return
	}
	score := ncc(blurredSlice, r.Simulated, r.SimWeights)
	if score < threshold {
		r.RegSliceWeight = -1
	} else {
		r.RegSliceWeight = 1
	}
}

// BlurSlice applies an isotropic Gaussian blur of standard deviation sigma
// (in mm, converted via the slice's pixel spacing) to slice data, leaving
// padding pixels untouched. A direct-space separable convolution is used
// since slice grids are small relative to volume grids; see
// internal/superres for the FFT-based 3D blur used on volume-sized data.
func BlurSlice(s *model.Slice, sigmaMM float64) []float64 {
	out := make([]float64, len(s.Data))
	copy(out, s.Data)
	if sigmaMM <= 0 {
		return out
	}
	radiusX := int(3*sigmaMM/s.DX) + 1
	radiusY := int(3*sigmaMM/s.DY) + 1

	kernelX := gaussianKernel1D(radiusX, sigmaMM/s.DX)
	kernelY := gaussianKernel1D(radiusY, sigmaMM/s.DY)

	tmp := make([]float64, len(s.Data))
	convolveAxis(s.Data, tmp, s.Width, s.Height, kernelX, true)
	convolveAxis(tmp, out, s.Width, s.Height, kernelY, false)

	for i, v := range s.Data {
		if v < 0 {
			out[i] = v
		}
	}
	return out
}

func gaussianKernel1D(radius int, sigma float64) []float64 {
	k := make([]float64, 2*radius+1)
	if sigma <= 0 {
		k[radius] = 1
		return k
	}
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := gauss1D(float64(i), sigma)
		k[i+radius] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func gauss1D(x, sigma float64) float64 {
	return math.Exp(-(x * x) / (2 * sigma * sigma))
}

func convolveAxis(src, dst []float64, width, height int, kernel []float64, horizontal bool) {
	radius := len(kernel) / 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var acc, wsum float64
			for k := -radius; k <= radius; k++ {
				var sx, sy int
				if horizontal {
					sx, sy = x+k, y
				} else {
					sx, sy = x, y+k
				}
				if sx < 0 || sx >= width || sy < 0 || sy >= height {
					continue
				}
				v := src[sy*width+sx]
				if v < 0 {
					continue
				}
				w := kernel[k+radius]
				acc += w * v
				wsum += w
			}
			if wsum > 0 {
				dst[y*width+x] = acc / wsum
			} else {
				dst[y*width+x] = src[y*width+x]
			}
		}
	}
}
