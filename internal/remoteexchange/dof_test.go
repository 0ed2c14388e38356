package remoteexchange

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svrecon/internal/model"
)

func TestWriteReadDOFRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.dof")

	pose := model.Pose{Kind: model.PoseRigid, Rigid: model.RigidParams{TX: 1.5, TY: -2.25, TZ: 3, RX: 0.1, RY: 0.2, RZ: 0.3}}

	require.NoError(t, writeDOF(path, pose))

	got, err := readDOF(path)
	require.NoError(t, err)

	assert.InDelta(t, pose.Rigid.TX, got.Rigid.TX, 1e-6)
	assert.InDelta(t, pose.Rigid.TY, got.Rigid.TY, 1e-6)
	assert.InDelta(t, pose.Rigid.TZ, got.Rigid.TZ, 1e-6)
	assert.InDelta(t, pose.Rigid.RX, got.Rigid.RX, 1e-6)
	assert.InDelta(t, pose.Rigid.RZ, got.Rigid.RZ, 1e-6)
	assert.Equal(t, model.PoseRigid, got.Kind)
}

func TestPublishStrideClampsToRecordCount(t *testing.T) {
	ex := &Exchange{Dir: t.TempDir()}
	s := model.NewSlice(2, 2, 1, 1, 1, model.IdentityAffine())
	records := make([]*model.Record, 5)
	for i := range records {
		records[i] = model.NewRecord(s, 0)
	}

	next, err := ex.PublishStride(records, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, next)
}
