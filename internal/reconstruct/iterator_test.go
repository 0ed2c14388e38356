package reconstruct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svrecon/internal/model"
)

func TestNewContextFailsOnAllZeroMask(t *testing.T) {
	vol := model.NewVolume(4, 4, 4, 1, model.IdentityAffine())
	mask := model.NewMask(vol) // all zero, no overlap

	_, err := NewContext(DefaultParams(), vol, mask, nil)

	require.Error(t, err)
	var precond *model.PreconditionError
	assert.ErrorAs(t, err, &precond)
}

func TestNewContextFailsOnNilVolume(t *testing.T) {
	mask := &model.Mask{}
	_, err := NewContext(DefaultParams(), nil, mask, nil)
	require.Error(t, err)
}

func TestNewContextPinsForceExcludedSlices(t *testing.T) {
	vol := model.NewVolume(2, 2, 2, 1, model.IdentityAffine())
	mask := model.NewMask(vol)
	for i := range mask.Data {
		mask.Data[i] = 1
	}

	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	r0 := model.NewRecord(s, 0)
	r1 := model.NewRecord(s, 0)
	records := []*model.Record{r0, r1}

	params := DefaultParams()
	params.ForceExcluded = map[int]bool{1: true}

	ctx, err := NewContext(params, vol, mask, records)
	require.NoError(t, err)

	assert.False(t, ctx.Records[0].ForceExcluded)
	assert.True(t, ctx.Records[1].ForceExcluded)
}

func TestPackageGroupsAssignsRoundRobinByTemporalPosition(t *testing.T) {
	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	ctx := &Context{StackMetas: []model.StackMeta{{Packages: 2}}}
	for z := 0; z < 4; z++ {
		r := model.NewRecord(s, 0)
		r.SliceIndex = z
		ctx.Records = append(ctx.Records, r)
	}

	groups := ctx.packageGroups()
	require.Len(t, groups, 2)

	byFirstIndex := map[int][]int{}
	for _, g := range groups {
		byFirstIndex[g[0]] = g
	}
	assert.Equal(t, []int{0, 2}, byFirstIndex[0])
	assert.Equal(t, []int{1, 3}, byFirstIndex[1])
}

func TestPackageGroupsSkipsStacksWithoutPackages(t *testing.T) {
	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	ctx := &Context{StackMetas: []model.StackMeta{{Packages: 1}}}
	ctx.Records = []*model.Record{model.NewRecord(s, 0), model.NewRecord(s, 0)}

	assert.Empty(t, ctx.packageGroups())
}

func TestInvertStackTransformationsIsInvolution(t *testing.T) {
	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	r := model.NewRecord(s, 0)
	r.Pose = model.Pose{Kind: model.PoseRigid, Rigid: model.RigidParams{TX: 1, TY: 2, TZ: 3, RX: 0.1, RY: 0.2, RZ: 0.3}}

	inverted := InvertStackTransformations([]*model.Record{r})
	r2 := model.NewRecord(s, 0)
	r2.Pose = inverted[0]
	roundTrip := InvertStackTransformations([]*model.Record{r2})[0]

	assert.InDelta(t, r.Pose.Rigid.TX, roundTrip.Rigid.TX, 1e-6)
	assert.InDelta(t, r.Pose.Rigid.TY, roundTrip.Rigid.TY, 1e-6)
	assert.InDelta(t, r.Pose.Rigid.TZ, roundTrip.Rigid.TZ, 1e-6)
}
