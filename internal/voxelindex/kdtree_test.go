package voxelindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svrecon/internal/model"
)

func TestBuildSkipsOutOfMaskVoxels(t *testing.T) {
	vol := model.NewVolume(2, 2, 2, 1, model.IdentityAffine())
	mask := model.NewMask(vol)
	mask.Set(0, 0, 0, 1)

	idx := Build(vol, mask)

	require.Len(t, idx.points, 1)
	assert.Equal(t, 0, idx.points[0].X)
}

func TestNearestFindsClosestInMaskVoxel(t *testing.T) {
	vol := model.NewVolume(4, 1, 1, 1, model.IdentityAffine())
	mask := model.NewMask(vol)
	mask.Set(0, 0, 0, 1)
	mask.Set(3, 0, 0, 1)

	idx := Build(vol, mask)

	got, ok := idx.Nearest(2.6, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 3, got.X)
}

func TestNearestOnEmptyIndexReturnsFalse(t *testing.T) {
	vol := model.NewVolume(2, 2, 2, 1, model.IdentityAffine())
	mask := model.NewMask(vol)

	idx := Build(vol, mask)

	_, ok := idx.Nearest(0, 0, 0)
	assert.False(t, ok)
}
