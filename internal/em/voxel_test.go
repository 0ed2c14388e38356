package em

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svrecon/internal/model"
)

func newTestRecord(width, height int) *model.Record {
	s := model.NewSlice(width, height, 1.0, 1.0, 1.0, model.IdentityAffine())
	for i := range s.Data {
		s.Data[i] = 1.0
	}
	r := model.NewRecord(s, 0)
	r.Inside = true
	for i := range r.Coefficients {
		r.Coefficients[i] = []model.Coefficient{{X: 0, Y: 0, Z: 0, W: 1}}
		r.Simulated[i] = 0.9
	}
	return r
}

func TestVoxelEStepWeightsWithinUnitInterval(t *testing.T) {
	r := newTestRecord(4, 4)
	g := &model.GlobalParams{Sigma2: 0.01, Mix: 0.9, M: 0.5}

	VoxelEStep([]*model.Record{r}, g, 2)

	for i, w := range r.VoxelWeight {
		require.GreaterOrEqual(t, w, 0.0, "pixel %d", i)
		require.LessOrEqual(t, w, 1.0, "pixel %d", i)
	}
}

func TestVoxelMStepFloorsVariance(t *testing.T) {
	r := newTestRecord(2, 2)
	for i := range r.VoxelWeight {
		r.VoxelWeight[i] = 1
		r.Simulated[i] = 1.0 // zero residual -> zero variance without the floor
	}
	g := &model.GlobalParams{Sigma2: 1, Mix: 1}

	VoxelMStep([]*model.Record{r}, g)

	assert.GreaterOrEqual(t, g.Sigma2, model.VarianceFloor)
}

func TestInitializeEMPinsSliceWeightZeroForExcludedAndSmallSlices(t *testing.T) {
	excluded := newTestRecord(2, 2)
	excluded.ForceExcluded = true
	small := newTestRecord(2, 2)
	small.Small = true
	normal := newTestRecord(2, 2)

	g := &model.GlobalParams{}
	InitializeEM([]*model.Record{excluded, small, normal}, g)

	assert.Equal(t, 0.0, excluded.SliceWeight)
	assert.Equal(t, 0.0, small.SliceWeight)
	assert.Equal(t, 1.0, normal.SliceWeight)
}

func TestVoxelEStepAppliesTissuePrior(t *testing.T) {
	flat := newTestRecord(2, 2)
	flat.ProbabilityMap = model.NewVolume(1, 1, 1, 1.0, model.IdentityAffine())
	flat.ProbabilityMap.Set(0, 0, 0, 1.0)

	suppressed := newTestRecord(2, 2)
	suppressed.ProbabilityMap = model.NewVolume(1, 1, 1, 1.0, model.IdentityAffine())
	suppressed.ProbabilityMap.Set(0, 0, 0, 0.1)

	g := &model.GlobalParams{Sigma2: 0.01, Mix: 0.9, M: 0.5}
	VoxelEStep([]*model.Record{flat}, g, 1)
	VoxelEStep([]*model.Record{suppressed}, g, 1)

	for i := range flat.VoxelWeight {
		require.Less(t, suppressed.VoxelWeight[i], flat.VoxelWeight[i], "pixel %d", i)
	}
}

func TestInitializeRobustStatisticsConstants(t *testing.T) {
	r := newTestRecord(2, 2)
	for i := range r.SimInside {
		r.SimInside[i] = true
		r.SimWeights[i] = 1.0
	}
	g := &model.GlobalParams{MinIntensity: 0, MaxIntensity: 1}

	InitializeRobustStatistics([]*model.Record{r}, g)

	assert.Equal(t, 0.9, g.Mix)
	assert.Equal(t, 0.9, g.MixS)
	assert.InDelta(t, 0.025*0.025, g.SigmaS2, 1e-9)
}
