package psf

import (
	"testing"

	"svrecon/internal/model"
)

func TestBuildOnePaddingPixelHasNoCoefficients(t *testing.T) {
	vol := model.NewVolume(8, 8, 8, 1.0, model.IdentityAffine())
	mask := model.NewMask(vol)
	for i := range mask.Data {
		mask.Data[i] = 1
	}

	s := model.NewSlice(2, 2, 1.0, 1.0, 1.0, model.IdentityAffine())
	// entirely padding
	r := model.NewRecord(s, 0)

	buildOne(r, vol, mask)

	for pix, coeffs := range r.Coefficients {
		if len(coeffs) != 0 {
			t.Fatalf("pixel %d: expected no coefficients for padding pixel, got %d", pix, len(coeffs))
		}
	}
	if r.Inside {
		t.Fatalf("expected Inside=false for an all-padding slice")
	}
	if r.SliceWeight != 0 {
		t.Fatalf("expected SliceWeight pinned to 0 for a non-inside slice, got %v", r.SliceWeight)
	}
}

func TestBuildOneProducesNormalisedWeights(t *testing.T) {
	vol := model.NewVolume(8, 8, 8, 1.0, model.IdentityAffine())
	mask := model.NewMask(vol)
	for i := range mask.Data {
		mask.Data[i] = 1
	}

	s := model.NewSlice(2, 2, 1.0, 1.0, 1.0, model.IdentityAffine())
	for i := range s.Data {
		s.Data[i] = 1.0 // all real intensity, not padding
	}
	r := model.NewRecord(s, 0)
	r.Pose = model.NewRigidPose()

	buildOne(r, vol, mask)

	for pix, coeffs := range r.Coefficients {
		if len(coeffs) == 0 {
			continue
		}
		var sum float64
		for _, c := range coeffs {
			sum += c.W
		}
		if sum < 0.99 || sum > 1.01 {
			t.Fatalf("pixel %d: coefficient weights should sum to ~1, got %v", pix, sum)
		}
	}
}

func TestRunDepositsIntoVolumeWeights(t *testing.T) {
	vol := model.NewVolume(8, 8, 8, 1.0, model.IdentityAffine())
	mask := model.NewMask(vol)
	for i := range mask.Data {
		mask.Data[i] = 1
	}

	s := model.NewSlice(2, 2, 1.0, 1.0, 1.0, model.IdentityAffine())
	for i := range s.Data {
		s.Data[i] = 1.0
	}
	r := model.NewRecord(s, 0)
	r.Pose = model.NewRigidPose()

	weights := Run([]*model.Record{r}, vol, mask, 2)

	var total float64
	for _, w := range weights.Data {
		total += w
	}
	if total <= 0 {
		t.Fatalf("expected positive total deposited weight, got %v", total)
	}
}
