package model

import "testing"

func TestCreateMaskIdempotent(t *testing.T) {
	raw := NewVolume(2, 2, 1, 1.0, IdentityAffine())
	raw.Data = []float64{0, 1, 0.6, 0.4}

	m1 := CreateMask(raw)
	binarised := NewVolume(2, 2, 1, 1.0, IdentityAffine())
	for i, v := range m1.Data {
		binarised.Data[i] = float64(v)
	}
	m2 := CreateMask(binarised)

	for i := range m1.Data {
		if m1.Data[i] != m2.Data[i] {
			t.Fatalf("CreateMask not idempotent at %d: %v != %v", i, m1.Data[i], m2.Data[i])
		}
	}
}

func TestThresholdNormalisedMaskBelowOneIsNoOpOnBinary(t *testing.T) {
	raw := NewVolume(2, 2, 1, 1.0, IdentityAffine())
	raw.Data = []float64{0, 1, 1, 0}

	m := ThresholdNormalisedMask(raw, 0.5)
	for i, v := range raw.Data {
		want := byte(0)
		if v > 0.5 {
			want = 1
		}
		if m.Data[i] != want {
			t.Fatalf("index %d: got %d want %d", i, m.Data[i], want)
		}
	}
}

func TestMaskVolumeInvariant(t *testing.T) {
	v := NewVolume(2, 2, 1, 1.0, IdentityAffine())
	for i := range v.Data {
		v.Data[i] = 5
	}
	m := NewMask(v)
	m.Data = []byte{1, 0, 0, 1}

	MaskVolume(v, m)

	for i := range v.Data {
		isPadding := v.Data[i] == PaddingValue
		isOutsideMask := m.Data[i] == 0
		if isPadding != isOutsideMask {
			t.Fatalf("index %d: V=%v M=%v, invariant violated", i, v.Data[i], m.Data[i])
		}
	}
}

func TestCreateTemplateEnlargesZByTwo(t *testing.T) {
	tmpl := CreateTemplate(1, 1, 1, 10, 10, 10, IdentityAffine(), 1)
	if tmpl.NZ != 12 {
		t.Fatalf("expected NZ=12 (10 + 2 enlargement), got %d", tmpl.NZ)
	}
}
