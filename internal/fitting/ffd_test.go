package fitting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSolveFFDAssignsNearestNodeDisplacement(t *testing.T) {
	obs := []Correspondence{
		{X: 0, Y: 0, Z: 0, DX: 1, DY: 2, DZ: 3},
		{X: 0.1, Y: 0, Z: 0, DX: 3, DY: 2, DZ: 3},
	}
	grid := SolveFFD(obs, 10, [3]float64{0, 0, 0}, 2, 1, 1)

	assert.InDelta(t, 2.0, grid.Points[0].DX, 1e-9)
	assert.InDelta(t, 2.0, grid.Points[0].DY, 1e-9)
}

func TestSolveFFDLeavesUnobservedNodesAtZero(t *testing.T) {
	obs := []Correspondence{{X: 0, Y: 0, Z: 0, DX: 5, DY: 0, DZ: 0}}
	grid := SolveFFD(obs, 10, [3]float64{0, 0, 0}, 3, 1, 1)

	assert.InDelta(t, 5.0, grid.Points[0].DX, 1e-9)
	assert.InDelta(t, 0.0, grid.Points[2].DX, 1e-9)
}

func TestSmoothGridIsNoOpOnUniformField(t *testing.T) {
	obs := []Correspondence{
		{X: 0, Y: 0, Z: 0, DX: 2, DY: 2, DZ: 2},
		{X: 10, Y: 0, Z: 0, DX: 2, DY: 2, DZ: 2},
		{X: 20, Y: 0, Z: 0, DX: 2, DY: 2, DZ: 2},
	}
	grid := SolveFFD(obs, 10, [3]float64{0, 0, 0}, 3, 1, 1)

	SmoothGrid(grid, 0.5)

	for _, p := range grid.Points {
		assert.InDelta(t, 2.0, p.DX, 1e-6)
	}
}

func TestSmoothGridEmptyGridDoesNotPanic(t *testing.T) {
	grid := SolveFFD(nil, 10, [3]float64{0, 0, 0}, 0, 0, 0)
	assert.NotPanics(t, func() { SmoothGrid(grid, 0.5) })
}
