package em

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"svrecon/internal/model"
)

func TestSliceMStepAllSamePotentialsKeepsWeightOne(t *testing.T) {
	records := make([]*model.Record, 3)
	for i := range records {
		records[i] = newTestRecord(2, 2)
		records[i].Potential = 0.5
		records[i].SliceWeight = 0.3 // should be overridden to 1
	}
	g := &model.GlobalParams{}

	SliceMStep(records, g, 1)

	for i, r := range records {
		assert.Equal(t, 1.0, r.SliceWeight, "record %d", i)
	}
}

func TestSliceEStepOverridesForExcludedSlices(t *testing.T) {
	r := newTestRecord(2, 2)
	r.ForceExcluded = true

	SliceEStep([]*model.Record{r})

	assert.Equal(t, -1.0, r.Potential)
}

func TestSliceEStepOverridesForUnrealisticScale(t *testing.T) {
	r := newTestRecord(2, 2)
	r.Scale = 10 // outside [0.2, 5]

	SliceEStep([]*model.Record{r})

	assert.Equal(t, -1.0, r.Potential)
}

func TestScaleUsesOnlyReliablySimulatedPixels(t *testing.T) {
	r := newTestRecord(2, 2)
	for i := range r.SimWeights {
		r.SimWeights[i] = 1.0
		r.Simulated[i] = 1.0
		r.VoxelWeight[i] = 1.0
	}
	r.SliceWeight = 1
	r.Scale = 1

	Scale([]*model.Record{r})

	assert.InDelta(t, 1.0, r.Scale, 1e-9)
}
