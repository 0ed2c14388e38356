// Package registration estimates per-slice poses against the evolving
// reconstruction. Rigid registration runs in parallel across slices,
// grounded in the teacher's worker-pool pattern from
// pkg/reconstruction/reconstructor.go's processSubVolumesInParallel; the
// per-slice objective minimisation is grounded in the teacher's own
// gonum dependency, using gonum.org/v1/gonum/optimize's Nelder-Mead the way
// pkg/interpolation/kriging.go's optimizeParameters runs a parallel search
// over a small parameter space.
package registration

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/optimize"

	"svrecon/internal/model"
)

var log = logrus.WithField("component", "registration")

// Sampler forward-projects the volume into a slice's grid under a
// candidate pose, used as the registration similarity objective.
// Record.Simulated is filled separately, by psf.SimulateSlices.
type Sampler func(pose model.Pose, s *model.Slice, vol *model.Volume) (simulated []float64, weights []float64)

// IsZeroSlice reports whether a slice is flagged "zero" per the skip
// rule: max-min <= 1 or max <= 1.
func IsZeroSlice(s *model.Slice) bool {
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, v := range s.Data {
		if v < 0 {
			continue
		}
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if math.IsInf(minV, 1) {
		return true
	}
	return maxV-minV <= 1 || maxV <= 1
}

// RunRigid registers every non-zero, non-force-excluded record against vol
// in parallel, each worker owning its own record for the duration of the
// stage.
func RunRigid(records []*model.Record, vol *model.Volume, sample Sampler, workers int) {
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
				registerOne(records[idx], vol, sample)
			}
		}()
	}
	wg.Wait()
}

func registerOne(r *model.Record, vol *model.Volume, sample Sampler) {
	if r.ForceExcluded || IsZeroSlice(r.Slice) {
		return
	}
	if r.Pose.Kind != model.PoseRigid {
		return // FFD poses are not optimised by this objective
	}

	// Origin-translation trick: translate the slice's centre to world
	// origin, fold that offset into the initial guess, undo it after.
	cx, cy, cz := sliceCentreWorld(r.Slice)
	offset := model.RigidParams{TX: cx, TY: cy, TZ: cz}
	initial := r.Pose.Rigid
	initial.TX -= offset.TX
	initial.TY -= offset.TY
	initial.TZ -= offset.TZ

	objective := func(x []float64) float64 {
		params := model.RigidParams{TX: x[0] + offset.TX, TY: x[1] + offset.TY, TZ: x[2] + offset.TZ, RX: x[3], RY: x[4], RZ: x[5]}
		pose := model.Pose{Kind: model.PoseRigid, Rigid: params}
		sim, w := sample(pose, r.Slice, vol)
		return -ncc(r.Slice.Data, sim, w)
	}

	problem := optimize.Problem{Func: objective}
	x0 := []float64{initial.TX, initial.TY, initial.TZ, initial.RX, initial.RY, initial.RZ}

	result, err := optimize.Minimize(problem, x0, &optimize.Settings{MajorIterations: 200}, &optimize.NelderMead{})
	if err != nil || result == nil {
		log.WithError(err).WithField("stack", r.StackIndex).Warn("rigid registration failed, keeping previous pose")
		return
	}

	best := result.X
	r.Pose = model.Pose{Kind: model.PoseRigid, Rigid: model.RigidParams{
		TX: best[0] + offset.TX,
		TY: best[1] + offset.TY,
		TZ: best[2] + offset.TZ,
		RX: best[3], RY: best[4], RZ: best[5],
	}}
}

func sliceCentreWorld(s *model.Slice) (float64, float64, float64) {
	cx := float64(s.Width) * s.DX / 2
	cy := float64(s.Height) * s.DY / 2
	return s.Affine.Apply(cx, cy, 0)
}

// ncc computes normalised cross-correlation between a and b over pixels
// where weight w > 0.99 (matching the sim_weights > 0.99 gate used
// elsewhere for "reliably simulated" pixels) and both a, b are
// non-padding.
func ncc(a, b, w []float64) float64 {
	var n int
	var sumA, sumB float64
	for i := range a {
		if a[i] < 0 || w == nil || i >= len(w) || w[i] <= 0.99 {
			continue
		}
		if i >= len(b) || b[i] < 0 {
			continue
		}
		sumA += a[i]
		sumB += b[i]
		n++
	}
	if n == 0 {
		return 0
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var num, denA, denB float64
	for i := range a {
		if a[i] < 0 || w == nil || i >= len(w) || w[i] <= 0.99 {
			continue
		}
		if i >= len(b) || b[i] < 0 {
			continue
		}
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		denA += da * da
		denB += db * db
	}
	if denA <= 0 || denB <= 0 {
		return 0
	}
	return num / math.Sqrt(denA*denB)
}
