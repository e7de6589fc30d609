package remote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openmined/mirrorbox/internal/metrics"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
	"github.com/openmined/mirrorbox/internal/remote/remotetest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument_CountsOperations(t *testing.T) {
	ctx := context.Background()
	rec := remotetest.NewRecorder()
	dir := remote.Instrument(rec)

	mkdirOK := testutil.ToFloat64(metrics.RemoteOpsTotal.WithLabelValues("mkdir", "success"))
	findErr := testutil.ToFloat64(metrics.RemoteOpsTotal.WithLabelValues("find", "error"))

	uid := pathid.Encode(pathid.RemotePath{"Backup"})
	id, err := dir.CreateDirectory(ctx, "Backup", nil, uid)
	require.NoError(t, err)

	match, err := dir.FindByIdentity(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, id, match.ID)

	rec.FailWith = func(c remotetest.Call) error {
		return errors.New("offline")
	}
	_, err = dir.FindByIdentity(ctx, uid)
	require.Error(t, err)

	assert.Equal(t, mkdirOK+1, testutil.ToFloat64(metrics.RemoteOpsTotal.WithLabelValues("mkdir", "success")))
	assert.Equal(t, findErr+1, testutil.ToFloat64(metrics.RemoteOpsTotal.WithLabelValues("find", "error")))
}

func TestRef(t *testing.T) {
	assert.Nil(t, remote.Ref(""))
	ref := remote.Ref("abc")
	require.NotNil(t, ref)
	assert.Equal(t, remote.ID("abc"), *ref)
}

func TestMatch(t *testing.T) {
	assert.False(t, remote.Match{}.Found())
	assert.True(t, remote.Match{ID: "a", Count: 1}.Found())
	assert.False(t, remote.Match{ID: "a", Count: 1}.Ambiguous())
	assert.True(t, remote.Match{ID: "a", Count: 2}.Ambiguous())
}
