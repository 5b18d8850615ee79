package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vbrik/cta-data-relay/core/archive"
	"github.com/vbrik/cta-data-relay/core/catalog"
	"github.com/vbrik/cta-data-relay/core/reconcile"
	"github.com/vbrik/cta-data-relay/core/storage/memstore"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyArchive struct {
	archive.Store
	fail   map[string]error
	copies atomic.Int32
}

func (f *flakyArchive) Copy(ctx context.Context, src, name string, opts archive.CopyOptions) error {
	f.copies.Add(1)
	if err := f.fail[name]; err != nil {
		return err
	}
	return f.Store.Copy(ctx, src, name, opts)
}

func TestRelay_Scenario(t *testing.T) {
	e := newEnv(t)
	content := []byte("0123456789")
	e.seedStaged(t, "a", content, map[string]string{"size": "10"})

	plan := reconcile.PlanRelay(e.objects(t), "")
	require.Len(t, plan.Pending(), 1)

	sum := e.relayer(e.archive, false).Run(context.Background(), plan)
	require.True(t, sum.OK(), "failures: %v", sum.Failures)
	assert.Equal(t, 1, sum.Done)
	assert.Equal(t, 0, sum.AlreadyPresent)

	got, err := os.ReadFile(filepath.Join(e.arcRoot, "a"))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	payload, ok := e.store.Payload("a")
	require.True(t, ok)
	assert.Empty(t, payload)
	assert.Equal(t, map[string]string{"size": "10"}, e.store.Metadata("a"))
	e.assertTempClean(t)

	// The relayed object drops out of the next work set.
	assert.Empty(t, reconcile.PlanRelay(e.objects(t), "").Pending())
}

func TestRelay_ArchiveAlreadyHoldsObject(t *testing.T) {
	e := newEnv(t)
	e.seedStaged(t, "a", []byte("0123456789"), map[string]string{"size": "10", "md5": "x"})
	require.NoError(t, os.WriteFile(filepath.Join(e.arcRoot, "a"), []byte("0123456789"), 0o644))

	sum := e.relayer(e.archive, false).Run(context.Background(), reconcile.PlanRelay(e.objects(t), ""))
	require.True(t, sum.OK(), "failures: %v", sum.Failures)
	assert.Equal(t, 1, sum.Done)
	assert.Equal(t, 1, sum.AlreadyPresent)

	payload, _ := e.store.Payload("a")
	assert.Empty(t, payload)
	assert.Equal(t, map[string]string{"size": "10", "md5": "x"}, e.store.Metadata("a"))
}

func TestRelay_ArchiveErrorIsPerItem(t *testing.T) {
	e := newEnv(t)
	e.seedStaged(t, "good", []byte("fine"), map[string]string{"size": "4"})
	e.seedStaged(t, "bad", []byte("doomed"), map[string]string{"size": "6"})
	denied := errors.New("permission denied")
	arc := &flakyArchive{Store: e.archive, fail: map[string]error{"bad": denied}}

	sum := e.relayer(arc, false).Run(context.Background(), reconcile.PlanRelay(e.objects(t), ""))

	assert.Equal(t, 1, sum.Done)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "bad", sum.Failures[0].Key)
	assert.Equal(t, StageCopyingToArchive, sum.Failures[0].Stage)
	assert.ErrorIs(t, sum.Failures[0], ErrTransfer)
	assert.ErrorIs(t, sum.Failures[0], denied)

	bad, _ := e.store.Payload("bad")
	assert.NotEmpty(t, bad, "a failed copy must leave the object staged")
	good, _ := e.store.Payload("good")
	assert.Empty(t, good)
	e.assertTempClean(t)
}

func TestRelay_CommitIsRetried(t *testing.T) {
	e := newEnv(t)
	e.seedStaged(t, "a", []byte("0123456789"), map[string]string{"size": "10"})
	var attempts atomic.Int32
	e.store.FailPut = func(key string, size int64) error {
		if size == 0 && attempts.Add(1) == 1 {
			return errors.New("503 slow down")
		}
		return nil
	}

	sum := e.relayer(e.archive, false).Run(context.Background(), reconcile.PlanRelay(e.objects(t), ""))
	require.True(t, sum.OK(), "failures: %v", sum.Failures)
	assert.Equal(t, int32(2), attempts.Load())
	payload, _ := e.store.Payload("a")
	assert.Empty(t, payload)
}

func TestRelay_IdempotentAfterCommitFailure(t *testing.T) {
	e := newEnv(t)
	e.seedStaged(t, "a", []byte("0123456789"), map[string]string{"size": "10"})
	e.store.FailPut = func(key string, size int64) error { return errors.New("read-only bucket") }
	arc := &flakyArchive{Store: e.archive}

	first := e.relayer(arc, false).Run(context.Background(), reconcile.PlanRelay(e.objects(t), ""))
	require.Len(t, first.Failures, 1)
	assert.Equal(t, StagePayloadEmptied, first.Failures[0].Stage)
	assert.ErrorIs(t, first.Failures[0], ErrPayloadCommit)
	payload, _ := e.store.Payload("a")
	assert.NotEmpty(t, payload, "still staged")

	e.store.FailPut = nil
	for range 2 {
		sum := e.relayer(arc, false).Run(context.Background(), reconcile.PlanRelay(e.objects(t), ""))
		require.True(t, sum.OK())
	}

	assert.Equal(t, int32(2), arc.copies.Load(), "the third run has nothing to relay")
	entries, err := os.ReadDir(e.arcRoot)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "at most one archive object per key")
	payload, _ = e.store.Payload("a")
	assert.Empty(t, payload)
}

func TestRelay_DryRunPurity(t *testing.T) {
	e := newEnv(t)
	e.seedStaged(t, "a", []byte("0123456789"), map[string]string{"size": "10"})
	plan := reconcile.PlanRelay(e.objects(t), "")
	before := e.store.Calls()

	sum := e.relayer(e.archive, true).Run(context.Background(), plan)

	assert.True(t, sum.DryRun)
	assert.Equal(t, 1, sum.Planned)
	assert.Equal(t, before, e.store.Calls())
	entries, _ := os.ReadDir(e.arcRoot)
	assert.Empty(t, entries)
	e.assertTempClean(t)
}

func TestRelay_StateInvariant(t *testing.T) {
	e := newEnv(t)
	for _, key := range []string{"r1", "r2", "r3", "r4", "r5"} {
		e.seedStaged(t, key, []byte("payload of "+key), map[string]string{"size": "13"})
	}
	e.store.Seed("old", nil, map[string]string{"size": "42"})

	sum := e.relayer(e.archive, false).Run(context.Background(), reconcile.PlanRelay(e.objects(t), ""))
	require.True(t, sum.OK())
	assert.Equal(t, 5, sum.Done)

	archived, err := e.archive.List(context.Background(), archive.TypeRegular)
	require.NoError(t, err)
	inArchive := map[string]bool{}
	for _, a := range archived {
		inArchive[a.Name] = true
	}
	for _, rec := range e.objects(t) {
		assert.Equal(t, catalog.Transited, catalog.ObjectState(rec), rec.Name)
		if rec.Name != "old" {
			assert.True(t, inArchive[rec.Name], rec.Name)
		}
	}
}

func TestRelay_ObjectEmptiedSinceListing(t *testing.T) {
	e := newEnv(t)
	e.seedStaged(t, "a", []byte("0123456789"), map[string]string{"size": "10"})
	plan := reconcile.PlanRelay(e.objects(t), "")
	e.store.Seed("a", nil, map[string]string{"size": "10"})

	sum := e.relayer(e.archive, false).Run(context.Background(), plan)
	require.True(t, sum.OK())
	assert.Equal(t, 1, sum.AlreadyPresent)
	entries, _ := os.ReadDir(e.arcRoot)
	assert.Empty(t, entries)
}

func TestEmptyPayload_VanishedObject(t *testing.T) {
	e := newEnv(t)
	err := EmptyPayload(context.Background(), e.store, bucket, "missing", fastRetry)
	require.Error(t, err)
	assert.Equal(t, 1, e.store.Calls().Stats, "a missing object is not retried")
}

func TestRelay_NestedKeys(t *testing.T) {
	e := newEnv(t)
	e.seedStaged(t, "flat", []byte("flat content"), map[string]string{"size": "12"})
	e.seedStaged(t, "run42/obs.fits", []byte("nested content"), map[string]string{"size": "14"})

	sum := e.relayer(e.archive, false).Run(context.Background(), reconcile.PlanRelay(e.objects(t), ""))
	require.True(t, sum.OK(), "failures: %v", sum.Failures)
	assert.Equal(t, 2, sum.Done)

	got, err := os.ReadFile(filepath.Join(e.arcRoot, "run42", "obs.fits"))
	require.NoError(t, err)
	assert.Equal(t, "nested content", string(got))
	payload, _ := e.store.Payload("run42/obs.fits")
	assert.Empty(t, payload)
	e.assertTempClean(t)

	// The archive listing names nested files the way the bucket does, so
	// relayed markers are never taken for orphans.
	archived := e.list(t, catalog.ArchiveCatalog{Store: e.archive})
	assert.Empty(t, reconcile.PlanPrune(e.objects(t), archived).Pending())
	assert.Empty(t, reconcile.PlanArchiveMeta(archived, e.objects(t)).Pending())
}

func TestEmptyPayload_KeepsContentHeaders(t *testing.T) {
	e := newEnv(t)
	body := []byte("compressed")
	_, err := e.store.PutObject(context.Background(), bucket, "a", bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		UserMetadata:    map[string]string{"size": "10", "md5": "abc"},
		ContentType:     "application/zstd",
		ContentEncoding: "zstd",
		CacheControl:    "no-cache",
	})
	require.NoError(t, err)

	require.NoError(t, EmptyPayload(context.Background(), e.store, bucket, "a", fastRetry))

	payload, _ := e.store.Payload("a")
	assert.Empty(t, payload)
	assert.Equal(t, map[string]string{"size": "10", "md5": "abc"}, e.store.Metadata("a"))
	h := e.store.Header("a")
	assert.Equal(t, "application/zstd", h.Get("Content-Type"))
	assert.Equal(t, "zstd", h.Get("Content-Encoding"))
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
}

// gauge records the highest number of callers inside a section at once.
type gauge struct{ active, peak atomic.Int32 }

func (g *gauge) enter() {
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
}

func (g *gauge) leave() { g.active.Add(-1) }

type gaugedReader struct {
	io.ReadCloser
	g *gauge
}

func (r gaugedReader) Close() error {
	r.g.leave()
	return r.ReadCloser.Close()
}

type gaugedStore struct {
	*memstore.Store
	g *gauge
}

func (s gaugedStore) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	s.g.enter()
	rc, err := s.Store.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		s.g.leave()
		return nil, err
	}
	return gaugedReader{ReadCloser: rc, g: s.g}, nil
}

type gaugedArchive struct {
	archive.Store
	g *gauge
}

func (a gaugedArchive) Copy(ctx context.Context, src, name string, opts archive.CopyOptions) error {
	a.g.enter()
	defer a.g.leave()
	return a.Store.Copy(ctx, src, name, opts)
}

func TestRelay_TierLimits(t *testing.T) {
	e := newEnv(t)
	for i := range 8 {
		e.seedStaged(t, fmt.Sprintf("k%02d", i), []byte(fmt.Sprintf("payload %d", i)), nil)
	}
	plan := reconcile.PlanRelay(e.objects(t), "")
	require.Len(t, plan.Pending(), 8)

	var downloads, copies gauge
	r := e.relayer(gaugedArchive{Store: e.archive, g: &copies}, false)
	r.Client = gaugedStore{Store: e.store, g: &downloads}
	r.Workers = 4
	r.Downloads = 1
	r.ArchiveCopies = 2

	sum := r.Run(context.Background(), plan)
	require.True(t, sum.OK(), "failures: %v", sum.Failures)
	assert.Equal(t, 8, sum.Done)
	assert.Equal(t, int32(1), downloads.peak.Load())
	assert.LessOrEqual(t, copies.peak.Load(), int32(2))
	assert.Empty(t, reconcile.PlanRelay(e.objects(t), "").Pending())
}

func TestRelay_TierLimitsDefaultToWorkers(t *testing.T) {
	r := &Relayer{Workers: 3, Downloads: 0, ArchiveCopies: 5}
	lim := r.limits()
	assert.True(t, lim.download.TryAcquire(3))
	assert.False(t, lim.download.TryAcquire(1))
	assert.True(t, lim.copy.TryAcquire(5))
	assert.False(t, lim.copy.TryAcquire(1))
}
