package transfer

import (
	"bytes"
	"context"
	"testing"

	"github.com/vbrik/cta-data-relay/core/catalog"
	"github.com/vbrik/cta-data-relay/core/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_Scenario(t *testing.T) {
	e := newEnv(t)
	a := []byte("0123456789")
	e.writeLocal(t, "a", a)
	e.writeLocal(t, "b", nil)

	local := e.list(t, catalog.LocalCatalog{Path: e.localDir})
	plan := reconcile.PlanUpload(local, e.objects(t))
	require.Len(t, plan.Pending(), 2)

	sum := e.uploader(false).Run(context.Background(), plan)
	require.True(t, sum.OK(), "failures: %v", sum.Failures)
	assert.Equal(t, 2, sum.Done)
	assert.Equal(t, []string{"a", "b"}, e.store.Keys())

	metaA := e.store.Metadata("a")
	assert.Equal(t, "10", metaA["size"])
	assert.Equal(t, md5hex(a), metaA["md5"])
	assert.NotEmpty(t, metaA["mtime"])

	metaB := e.store.Metadata("b")
	assert.Equal(t, "0", metaB["size"])
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", metaB["md5"])

	for _, key := range []string{"a", "b"} {
		payload, _ := e.store.Payload(key)
		assert.NotEmpty(t, payload, "uploaded %s must be staged, not transited", key)
	}
	e.assertTempClean(t)

	// Second run writes nothing.
	puts := e.store.Calls().Puts
	again := reconcile.PlanUpload(e.list(t, catalog.LocalCatalog{Path: e.localDir}), e.objects(t))
	assert.Empty(t, again.Pending())
	sum = e.uploader(false).Run(context.Background(), again)
	assert.Equal(t, 0, sum.Planned)
	assert.Equal(t, puts, e.store.Calls().Puts)
}

func TestUpload_DryRunPurity(t *testing.T) {
	e := newEnv(t)
	e.writeLocal(t, "a", []byte("0123456789"))
	e.writeLocal(t, "b", nil)

	render := func(dryRun bool) (string, *Summary) {
		plan := reconcile.PlanUpload(e.list(t, catalog.LocalCatalog{Path: e.localDir}), e.objects(t))
		var buf bytes.Buffer
		require.NoError(t, reconcile.WritePlan(&buf, plan))
		return buf.String(), e.uploader(dryRun).Run(context.Background(), plan)
	}

	dryReport, dry := render(true)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 2, dry.Planned)
	assert.Equal(t, 0, e.store.Calls().Mutations())
	assert.Empty(t, e.store.Keys())
	e.assertTempClean(t)

	liveReport, live := render(false)
	assert.Equal(t, dryReport, liveReport)
	assert.Equal(t, 2, live.Done)
}

func TestUpload_PerItemFailureDoesNotAbortBatch(t *testing.T) {
	e := newEnv(t)
	e.writeLocal(t, "good", []byte("fine"))
	e.writeLocal(t, "bad", []byte("doomed"))
	e.store.FailPut = func(key string, size int64) error {
		if key == "bad" {
			return assert.AnError
		}
		return nil
	}

	plan := reconcile.PlanUpload(e.list(t, catalog.LocalCatalog{Path: e.localDir}), nil)
	sum := e.uploader(false).Run(context.Background(), plan)

	assert.Equal(t, 1, sum.Done)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Failures, 1)
	f := sum.Failures[0]
	assert.Equal(t, "bad", f.Key)
	assert.Equal(t, StageUploading, f.Stage)
	assert.ErrorIs(t, f, ErrTransfer)
	assert.ErrorIs(t, f, assert.AnError)
	assert.Equal(t, []string{"good"}, e.store.Keys())
	e.assertTempClean(t)
}

func TestUpload_MissingLocalFile(t *testing.T) {
	e := newEnv(t)
	plan := reconcile.PlanUpload([]catalog.InventoryRecord{{Name: "ghost", Path: e.localDir + "/ghost"}}, nil)

	sum := e.uploader(false).Run(context.Background(), plan)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, StageCompressing, sum.Failures[0].Stage)
	assert.ErrorIs(t, sum.Failures[0], ErrCompression)
	assert.Equal(t, 0, e.store.Calls().Puts)
}

func TestUpload_CancelledBeforeStart(t *testing.T) {
	e := newEnv(t)
	e.writeLocal(t, "a", []byte("x"))
	plan := reconcile.PlanUpload(e.list(t, catalog.LocalCatalog{Path: e.localDir}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := e.uploader(false).Run(ctx, plan)

	assert.Equal(t, 1, sum.Cancelled)
	assert.False(t, sum.OK())
	assert.ErrorIs(t, sum.Failures[0], ErrCancelled)
	assert.Equal(t, 0, e.store.Calls().Puts)
}
