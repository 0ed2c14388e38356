package superres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlphaFormula(t *testing.T) {
	p := Params{Delta: 150, Lambda: 0.02}
	want := (0.05 / 0.02) * 150 * 150
	assert.InDelta(t, want, p.Alpha(), 1e-6)
}

func TestAlphaZeroLambdaIsZero(t *testing.T) {
	p := Params{Delta: 150, Lambda: 0}
	assert.Equal(t, 0.0, p.Alpha())
}

func TestDirectionFactorsSumPositive(t *testing.T) {
	f := directionFactors()
	for i, v := range f {
		if v <= 0 {
			t.Fatalf("direction %d: factor should be positive, got %v", i, v)
		}
	}
}
