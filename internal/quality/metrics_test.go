package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"svrecon/internal/model"
)

func TestComputePerfectAgreementYieldsHighNCCLowNRMSE(t *testing.T) {
	s := model.NewSlice(4, 4, 1, 1, 1, model.IdentityAffine())
	r := model.NewRecord(s, 0)
	for i := range s.Data {
		s.Data[i] = float64(i%3) + 1
		r.Simulated[i] = s.Data[i]
		r.Bias[i] = 0
	}
	r.Scale = 1

	rep := Compute([]*model.Record{r}, 1.0)

	assert.Greater(t, rep.NCC, 0.95)
	assert.Less(t, rep.NRMSE, 0.05)
}

func TestComputeRatioExcluded(t *testing.T) {
	good := model.NewRecord(model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine()), 0)
	bad := model.NewRecord(model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine()), 0)
	for i := range good.Slice.Data {
		good.Slice.Data[i] = 1
		good.Simulated[i] = 1
		bad.Slice.Data[i] = 1
		bad.Simulated[i] = 1
	}
	good.SliceWeight = 1
	bad.SliceWeight = 0.1

	rep := Compute([]*model.Record{good, bad}, 1.0)

	assert.InDelta(t, 0.5, rep.RatioExcluded, 1e-9)
}
