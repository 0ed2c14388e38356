package reconstruct

import (
	"svrecon/internal/fitting"
	"svrecon/internal/model"
)

// runFFDRefinement replaces each eligible record's rigid pose with a
// free-form-deformation pose fit from per-pixel optical-flow-style
// correspondences: at every interior slice pixel, the in-plane intensity
// gradient together with the current volume-vs-slice residual (SliceDiff)
// estimates the small in-plane displacement that would reduce that
// residual (the single-step optical-flow estimate
// displacement = residual*gradient/|gradient|^2), which fitting.SolveFFD
// then bins onto a coarse control grid and fitting.SmoothGrid regularises.
// Once a record carries an FFD pose, registration.registerOne leaves it
// alone on subsequent outer iterations (FFD poses are not rigid-optimised).
func (c *Context) runFFDRefinement() {
	spacing := c.Params.Resolution
	if spacing <= 0 {
		spacing = c.Volume.DX
	}
	spacing *= 4

	for _, r := range c.Records {
		if r.ForceExcluded || !r.Inside {
			continue
		}
		obs := ffdCorrespondences(r)
		if len(obs) < 2 {
			continue
		}
		grid := fitting.SolveFFD(obs, spacing, sliceOriginWorld(r.Slice), 4, 4, 2)
		fitting.SmoothGrid(grid, 0.1)
		r.Pose = model.Pose{Kind: model.PoseFFD, FFD: grid}
	}
}

func sliceOriginWorld(s *model.Slice) [3]float64 {
	wx, wy, wz := s.Affine.Apply(0, 0, 0)
	return [3]float64{wx, wy, wz}
}

func ffdCorrespondences(r *model.Record) []fitting.Correspondence {
	s := r.Slice
	const eps = 1e-6
	var obs []fitting.Correspondence
	for v := 1; v < s.Height-1; v++ {
		for u := 1; u < s.Width-1; u++ {
			i := v*s.Width + u
			if s.Data[i] < 0 || len(r.Coefficients[i]) == 0 {
				continue
			}
			gx := (s.Data[i+1] - s.Data[i-1]) / (2 * s.DX)
			gy := (s.Data[i+s.Width] - s.Data[i-s.Width]) / (2 * s.DY)
			denom := gx*gx + gy*gy + eps
			residual := r.SliceDiff[i]
			ddx := residual * gx / denom
			ddy := residual * gy / denom

			wx, wy, wz := s.Affine.Apply(float64(u)*s.DX, float64(v)*s.DY, 0)
			dwx, dwy, dwz := directionTransform(s.Affine, ddx, ddy)
			obs = append(obs, fitting.Correspondence{X: wx, Y: wy, Z: wz, DX: dwx, DY: dwy, DZ: dwz})
		}
	}
	return obs
}

// directionTransform maps an in-plane displacement through the slice's
// affine's linear part only (no translation), since a displacement is a
// vector, not a point.
func directionTransform(a model.Affine, dx, dy float64) (float64, float64, float64) {
	return a[0]*dx + a[1]*dy, a[4]*dx + a[5]*dy, a[8]*dx + a[9]*dy
}
