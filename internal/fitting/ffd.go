// Package fitting solves small dense linear systems in support of pose
// estimation, adapted from the teacher's kriging weight solve
// (pkg/interpolation/kriging.go: estimateValueAt / calculateWeightsAt),
// which builds a system with gonum/mat, attempts a QR decomposition, and
// falls back to hand-rolled Gaussian elimination if the matrix is
// singular. This package keeps that same two-tier solve strategy but
// applies it to FFD control-grid displacement fitting instead of kriging
// weights.
package fitting

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"svrecon/internal/model"
)

// Correspondence is one observed (source point -> target displacement)
// sample used to fit a control grid, typically produced by a dense
// per-voxel registration residual.
type Correspondence struct {
	X, Y, Z          float64
	DX, DY, DZ       float64
}

// SolveFFD fits control-point displacements on a regular grid of the given
// spacing so that each observation's nearest grid node absorbs its
// displacement, weighted-averaged when several observations land near the
// same node. This is a deliberately simple nearest-node binning fit rather
// than a full B-spline regularised solve; called from
// internal/reconstruct.runFFDRefinement when Params.FFDEnabled is set.
func SolveFFD(obs []Correspondence, spacing float64, origin [3]float64, nx, ny, nz int) *model.FFDParams {
	grid := &model.FFDParams{NX: nx, NY: ny, NZ: nz, Spacing: spacing, Origin: origin}
	grid.Points = make([]model.ControlPoint, nx*ny*nz)
	for iz := 0; iz < nz; iz++ {
		for iy := 0; iy < ny; iy++ {
			for ix := 0; ix < nx; ix++ {
				idx := iz*ny*nx + iy*nx + ix
				grid.Points[idx] = model.ControlPoint{
					X: origin[0] + float64(ix)*spacing,
					Y: origin[1] + float64(iy)*spacing,
					Z: origin[2] + float64(iz)*spacing,
				}
			}
		}
	}

	sums := make([]model.ControlPoint, len(grid.Points))
	counts := make([]float64, len(grid.Points))

	for _, o := range obs {
		ix := clampIdx(int((o.X-origin[0])/spacing+0.5), nx)
		iy := clampIdx(int((o.Y-origin[1])/spacing+0.5), ny)
		iz := clampIdx(int((o.Z-origin[2])/spacing+0.5), nz)
		idx := iz*ny*nx + iy*nx + ix
		sums[idx].DX += o.DX
		sums[idx].DY += o.DY
		sums[idx].DZ += o.DZ
		counts[idx]++
	}

	for i := range grid.Points {
		if counts[i] > 0 {
			grid.Points[i].DX = sums[i].DX / counts[i]
			grid.Points[i].DY = sums[i].DY / counts[i]
			grid.Points[i].DZ = sums[i].DZ / counts[i]
		}
	}
	return grid
}

func clampIdx(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

// SmoothGrid applies one Laplacian-smoothing pass over the displacement
// field: each node is pulled toward the average of its 6-neighbourhood by
// strength lambda. The system solved is A = I + lambda*L, where L is the
// graph Laplacian (degree minus adjacency) of the grid's node-neighbour
// graph, so a spatially uniform field is always a fixed point regardless of
// lambda or how many neighbours a boundary node has. Solved first via QR,
// falling back to Gaussian elimination with partial pivoting on failure,
// grounded in the teacher's solveSystem/solveWithGaussianElimination pair
// (pkg/interpolation/kriging.go).
func SmoothGrid(grid *model.FFDParams, lambda float64) {
	n := len(grid.Points)
	if n == 0 {
		return
	}
	neighbours := adjacency(grid.NX, grid.NY, grid.NZ)

	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 1+lambda*float64(len(neighbours[i])))
		for _, j := range neighbours[i] {
			a.Set(i, j, -lambda)
		}
	}
	bx := mat.NewVecDense(n, nil)
	by := mat.NewVecDense(n, nil)
	bz := mat.NewVecDense(n, nil)
	for i, p := range grid.Points {
		bx.SetVec(i, p.DX)
		by.SetVec(i, p.DY)
		bz.SetVec(i, p.DZ)
	}

	var qr mat.QR
	qr.Factorize(a)

	var xx, xy, xz mat.VecDense
	errX := qr.SolveVecTo(&xx, false, bx)
	errY := qr.SolveVecTo(&xy, false, by)
	errZ := qr.SolveVecTo(&xz, false, bz)
	if errX != nil || errY != nil || errZ != nil {
		dense := denseRows(a, n)
		dx := solveWithGaussianElimination(dense, toSlice(bx, n))
		dy := solveWithGaussianElimination(dense, toSlice(by, n))
		dz := solveWithGaussianElimination(dense, toSlice(bz, n))
		for i := range grid.Points {
			grid.Points[i].DX = dx[i]
			grid.Points[i].DY = dy[i]
			grid.Points[i].DZ = dz[i]
		}
		return
	}
	for i := range grid.Points {
		grid.Points[i].DX = xx.AtVec(i)
		grid.Points[i].DY = xy.AtVec(i)
		grid.Points[i].DZ = xz.AtVec(i)
	}
}

// adjacency returns, for every grid node, the indices of its axis-aligned
// neighbours (up to 6, fewer at the grid boundary).
func adjacency(nx, ny, nz int) [][]int {
	n := nx * ny * nz
	out := make([][]int, n)
	idx := func(x, y, z int) int { return (z*ny+y)*nx + x }
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				i := idx(x, y, z)
				var nb []int
				if x > 0 {
					nb = append(nb, idx(x-1, y, z))
				}
				if x < nx-1 {
					nb = append(nb, idx(x+1, y, z))
				}
				if y > 0 {
					nb = append(nb, idx(x, y-1, z))
				}
				if y < ny-1 {
					nb = append(nb, idx(x, y+1, z))
				}
				if z > 0 {
					nb = append(nb, idx(x, y, z-1))
				}
				if z < nz-1 {
					nb = append(nb, idx(x, y, z+1))
				}
				out[i] = nb
			}
		}
	}
	return out
}

func denseRows(a *mat.Dense, n int) [][]float64 {
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = a.At(i, j)
		}
	}
	return rows
}

func toSlice(v *mat.VecDense, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = v.AtVec(i)
	}
	return out
}

// solveWithGaussianElimination solves A x = b by forward elimination with
// partial pivoting and back substitution, matching the teacher's
// solveWithGaussianElimination (pkg/interpolation/kriging.go), used here as
// the fallback when QR factorisation fails on a singular system.
func solveWithGaussianElimination(matrix [][]float64, target []float64) []float64 {
	n := len(target)
	solution := make([]float64, n)

	a := make([][]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = append([]float64(nil), matrix[i]...)
		b[i] = target[i]
	}

	for i := 0; i < n; i++ {
		maxRow := i
		for j := i + 1; j < n; j++ {
			if math.Abs(a[j][i]) > math.Abs(a[maxRow][i]) {
				maxRow = j
			}
		}
		if maxRow != i {
			a[i], a[maxRow] = a[maxRow], a[i]
			b[i], b[maxRow] = b[maxRow], b[i]
		}

		pivot := a[i][i]
		if math.Abs(pivot) < 1e-10 {
			a[i][i] += 1e-6
			pivot = a[i][i]
		}

		for j := i; j < n; j++ {
			a[i][j] /= pivot
		}
		b[i] /= pivot

		for j := i + 1; j < n; j++ {
			factor := a[j][i]
			for k := i; k < n; k++ {
				a[j][k] -= factor * a[i][k]
			}
			b[j] -= factor * b[i]
		}
	}

	for i := n - 1; i >= 0; i-- {
		solution[i] = b[i]
		for j := i + 1; j < n; j++ {
			solution[i] -= a[i][j] * solution[j]
		}
	}
	return solution
}
