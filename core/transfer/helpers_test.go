package transfer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vbrik/cta-data-relay/core/archive"
	"github.com/vbrik/cta-data-relay/core/catalog"
	"github.com/vbrik/cta-data-relay/core/codec"
	"github.com/vbrik/cta-data-relay/core/retry"
	"github.com/vbrik/cta-data-relay/core/storage/memstore"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const bucket = "cta-test"

var fastRetry = retry.Policy{Attempts: 3, Base: time.Millisecond}

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

type env struct {
	store    *memstore.Store
	archive  *archive.FS
	arcRoot  string
	localDir string
	executor *codec.Executor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	arcRoot := t.TempDir()
	fs, err := archive.NewFS(arcRoot)
	require.NoError(t, err)
	return &env{
		store:    memstore.New(bucket),
		archive:  fs,
		arcRoot:  arcRoot,
		localDir: t.TempDir(),
		executor: &codec.Executor{Codec: &codec.Zstd{Threads: 1}, TempDir: t.TempDir()},
	}
}

func (e *env) writeLocal(t *testing.T, name string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.localDir, name), content, 0o644))
}

// seedStaged puts a compressed object as an upload would have.
func (e *env) seedStaged(t *testing.T, key string, content []byte, meta map[string]string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, content, 0o644))
	require.NoError(t, (&codec.Zstd{}).Compress(context.Background(), src, src+".zst"))
	payload, err := os.ReadFile(src + ".zst")
	require.NoError(t, err)
	e.store.Seed(key, payload, meta)
}

func (e *env) list(t *testing.T, l catalog.Lister) []catalog.InventoryRecord {
	t.Helper()
	recs, err := catalog.List(context.Background(), l, fastRetry)
	require.NoError(t, err)
	return recs
}

func (e *env) objects(t *testing.T) []catalog.InventoryRecord {
	return e.list(t, catalog.ObjectStoreCatalog{Client: e.store, Bucket: bucket})
}

func (e *env) uploader(dryRun bool) *Uploader {
	return &Uploader{Client: e.store, Bucket: bucket, Executor: e.executor, Workers: 4, DryRun: dryRun, Logger: zap.NewNop()}
}

func (e *env) relayer(store archive.Store, dryRun bool) *Relayer {
	return &Relayer{Client: e.store, Bucket: bucket, Archive: store, Executor: e.executor, Workers: 4,
		DryRun: dryRun, Logger: zap.NewNop(), Commit: fastRetry}
}

func (e *env) assertTempClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.executor.TempDir)
	require.NoError(t, err)
	require.Empty(t, entries, "temp scopes must be removed")
}
