package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"svrecon/internal/model"
)

func TestIsZeroSliceDetectsLowDynamicRange(t *testing.T) {
	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	for i := range s.Data {
		s.Data[i] = 0.5
	}
	assert.True(t, IsZeroSlice(s))
}

func TestIsZeroSliceFalseForNormalSlice(t *testing.T) {
	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	s.Data = []float64{0, 5, 10, 20}
	assert.False(t, IsZeroSlice(s))
}

func TestStructuralGateForceExcludedAlwaysNegative(t *testing.T) {
	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	r := model.NewRecord(s, 0)
	r.ForceExcluded = true

	StructuralGate(r, s.Data, 0.0)

	assert.Equal(t, -1.0, r.RegSliceWeight)
}

func TestStructuralGateThresholdZeroPassesInsideSlices(t *testing.T) {
	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	s.Data = []float64{1, 2, 3, 4}
	r := model.NewRecord(s, 0)
	r.Inside = true
	copy(r.Simulated, s.Data)

	StructuralGate(r, s.Data, 0.0)

	assert.Equal(t, 1.0, r.RegSliceWeight)
}
