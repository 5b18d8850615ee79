package codec

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func newExecutor(t *testing.T, c Codec) (*Executor, string) {
	t.Helper()
	tmp := t.TempDir()
	return &Executor{Codec: c, TempDir: tmp}, tmp
}

func TestIngestEgress_RoundTrip(t *testing.T) {
	content := []byte(strings.Repeat("cherenkov telescope array ", 4096))
	src := filepath.Join(t.TempDir(), "run001.fits")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	e, tmp := newExecutor(t, &Zstd{Threads: 2})
	art, err := e.Ingest(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, md5hex(content), art.Checksum)
	assert.Equal(t, int64(len(content)), art.OriginalSize)
	assert.Greater(t, art.Size, int64(0))
	assert.Less(t, art.Size, art.OriginalSize)
	assert.True(t, strings.HasSuffix(art.Path, "run001.fits.zst"))

	restored, err := e.Egress(context.Background(), art.Path)
	require.NoError(t, err)
	_, err = os.Stat(art.Path)
	assert.True(t, os.IsNotExist(err), "artifact is removed after egress")

	sum, err := MD5File(restored)
	require.NoError(t, err)
	assert.Equal(t, md5hex(content), sum)

	require.NoError(t, art.Cleanup())
	entries, _ := os.ReadDir(tmp)
	assert.Empty(t, entries)
}

func TestIngest_EmptyFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "b")
	require.NoError(t, os.WriteFile(src, nil, 0o644))

	e, _ := newExecutor(t, &Zstd{})
	art, err := e.Ingest(context.Background(), src)
	require.NoError(t, err)
	defer art.Cleanup()

	assert.Equal(t, md5hex(nil), art.Checksum)
	assert.Equal(t, int64(0), art.OriginalSize)
	assert.Greater(t, art.Size, int64(0), "an empty input still yields a non-empty frame")
}

type failingCodec struct {
	Zstd
	compress error
	truncate bool
}

func (f *failingCodec) Compress(ctx context.Context, src, dst string) error {
	if f.truncate {
		return os.WriteFile(dst, nil, 0o644)
	}
	if err := os.WriteFile(dst, []byte("partial"), 0o644); err != nil {
		return err
	}
	return f.compress
}

func TestIngest_CleansUpOnFailure(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a")
	require.NoError(t, os.WriteFile(src, []byte("0123456789"), 0o644))

	tests := []struct {
		name  string
		codec Codec
	}{
		{"CompressError", &failingCodec{compress: errors.New("disk full")}},
		{"EmptyArtifact", &failingCodec{truncate: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, tmp := newExecutor(t, tt.codec)
			_, err := e.Ingest(context.Background(), src)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCompression)

			entries, _ := os.ReadDir(tmp)
			assert.Empty(t, entries)
		})
	}
}

func TestIngest_MissingSource(t *testing.T) {
	e, tmp := newExecutor(t, &Zstd{})
	_, err := e.Ingest(context.Background(), filepath.Join(tmp, "nope"))
	assert.ErrorIs(t, err, ErrCompression)
	entries, _ := os.ReadDir(tmp)
	assert.Empty(t, entries)
}

func TestEgress_CorruptArtifact(t *testing.T) {
	e, tmp := newExecutor(t, &Zstd{})
	bad := filepath.Join(tmp, "a.zst")
	require.NoError(t, os.WriteFile(bad, []byte("not zstd"), 0o644))

	_, err := e.Egress(context.Background(), bad)
	assert.ErrorIs(t, err, ErrCompression)
	_, statErr := os.Stat(filepath.Join(tmp, "a"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestScopes_AreDistinctPerKey(t *testing.T) {
	e, _ := newExecutor(t, &Zstd{})
	a, err := e.NewScope("run/01 a")
	require.NoError(t, err)
	b, err := e.NewScope("run/01 a")
	require.NoError(t, err)
	defer a.Cleanup()
	defer b.Cleanup()

	assert.NotEqual(t, a.Dir, b.Dir)
	assert.True(t, strings.HasPrefix(filepath.Base(a.Dir), "relay-run_01_a-"))
}

func TestSweep(t *testing.T) {
	tmp := t.TempDir()
	old := filepath.Join(tmp, "relay-old-1")
	fresh := filepath.Join(tmp, "relay-new-1")
	other := filepath.Join(tmp, "unrelated")
	for _, d := range []string{old, fresh, other} {
		require.NoError(t, os.Mkdir(d, 0o755))
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	n, err := Sweep(tmp, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}

func TestExec_RoundTrip(t *testing.T) {
	if _, err := exec.LookPath("zstd"); err != nil {
		t.Skip("zstd binary not installed")
	}
	content := []byte("0123456789")
	src := filepath.Join(t.TempDir(), "a")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	e, _ := newExecutor(t, &Exec{Binary: "zstd", Threads: 1})
	art, err := e.Ingest(context.Background(), src)
	require.NoError(t, err)
	defer art.Cleanup()

	restored, err := e.Egress(context.Background(), art.Path)
	require.NoError(t, err)
	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestNew(t *testing.T) {
	c, err := New("zstd", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, &Zstd{Threads: 4}, c)

	c, err = New("exec", 2, 19)
	require.NoError(t, err)
	assert.Equal(t, &Exec{Binary: "zstd", Nice: 19, Threads: 2}, c)

	_, err = New("lz4", 1, 0)
	assert.Error(t, err)
}

func TestCodecs_EmptyInputRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		codec  Codec
		binary string
	}{
		{"Zstd", &Zstd{}, ""},
		{"ZstdThreads", &Zstd{Threads: 2}, ""},
		{"Exec", &Exec{Binary: "zstd", Threads: 1}, "zstd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.binary != "" {
				if _, err := exec.LookPath(tt.binary); err != nil {
					t.Skip("zstd binary not installed")
				}
			}
			dir := t.TempDir()
			src := filepath.Join(dir, "empty")
			require.NoError(t, os.WriteFile(src, nil, 0o644))

			dst := filepath.Join(dir, "empty.zst")
			require.NoError(t, tt.codec.Compress(context.Background(), src, dst))
			fi, err := os.Stat(dst)
			require.NoError(t, err)
			assert.Greater(t, fi.Size(), int64(0), "compressed form of empty input must not be empty")

			out := filepath.Join(dir, "restored")
			require.NoError(t, tt.codec.Decompress(context.Background(), dst, out))
			got, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}
