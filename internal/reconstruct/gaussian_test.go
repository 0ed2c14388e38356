package reconstruct

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"svrecon/internal/model"
)

func TestGaussianReconstructionPinsSliceWeightZeroForSmallSlices(t *testing.T) {
	vol := model.NewVolume(2, 2, 2, 1, model.IdentityAffine())
	weights := model.NewVolume(2, 2, 2, 1, model.IdentityAffine())
	for i := range weights.Data {
		weights.Data[i] = 1
	}

	big := model.NewRecord(model.NewSlice(4, 4, 1, 1, 1, model.IdentityAffine()), 0)
	big.SliceWeight = 1
	for i := range big.Coefficients {
		big.Coefficients[i] = []model.Coefficient{{X: 0, Y: 0, Z: 0, W: 1}}
	}

	tiny := model.NewRecord(model.NewSlice(4, 4, 1, 1, 1, model.IdentityAffine()), 0)
	tiny.SliceWeight = 1
	tiny.Coefficients[0] = []model.Coefficient{{X: 0, Y: 0, Z: 0, W: 1}}

	records := []*model.Record{big, tiny}
	GaussianReconstruction(records, vol, weights)

	assert.False(t, big.Small)
	assert.Equal(t, 1.0, big.SliceWeight)
	assert.True(t, tiny.Small)
	assert.Equal(t, 0.0, tiny.SliceWeight)
}
