package codec

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

const scopePrefix = "relay-"

// Executor owns the temp-file lifecycle around compress and decompress.
type Executor struct {
	Codec   Codec
	TempDir string
}

// Scope is a per-object temporary directory.
type Scope struct {
	Dir string
}

// File returns the path of name inside the scope.
func (s *Scope) File(name string) string {
	return filepath.Join(s.Dir, name)
}

// Cleanup removes the scope and everything in it.
func (s *Scope) Cleanup() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// NewScope creates a temp directory namespaced by key, so concurrent workers never collide.
func (e *Executor) NewScope(key string) (*Scope, error) {
	dir, err := os.MkdirTemp(e.TempDir, scopePrefix+sanitize(key)+"-*")
	if err != nil {
		return nil, fmt.Errorf("temp scope for %s: %w", key, err)
	}
	return &Scope{Dir: dir}, nil
}

// Artifact is the compressed form of a local file.
type Artifact struct {
	*Scope
	Path string
	// Checksum is the md5 hex digest of the original, uncompressed bytes.
	Checksum     string
	OriginalSize int64
	Size         int64
}

// Ingest compresses src into a fresh scope and checksums the original content
// concurrently. On error nothing is left on disk; on success the caller owns
// the artifact and must call Cleanup.
func (e *Executor) Ingest(ctx context.Context, src string) (*Artifact, error) {
	fi, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	name := filepath.Base(src)
	scope, err := e.NewScope(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	art := &Artifact{Scope: scope, Path: scope.File(name + e.Codec.Ext()), OriginalSize: fi.Size()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.Codec.Compress(gctx, src, art.Path); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCompression, name, err)
		}
		return nil
	})
	g.Go(func() error {
		sum, err := MD5File(src)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrChecksum, name, err)
		}
		art.Checksum = sum
		return nil
	})
	if err := g.Wait(); err != nil {
		scope.Cleanup()
		return nil, err
	}

	afi, err := os.Stat(art.Path)
	if err != nil {
		scope.Cleanup()
		return nil, fmt.Errorf("%w: %s: %w", ErrCompression, name, err)
	}
	// A zero-length payload is reserved for relayed objects.
	if afi.Size() == 0 {
		scope.Cleanup()
		return nil, fmt.Errorf("%w: %s: empty artifact", ErrCompression, name)
	}
	art.Size = afi.Size()
	return art, nil
}

// Egress decompresses an artifact next to itself, removes the artifact and
// returns the path of the restored file.
func (e *Executor) Egress(ctx context.Context, artifactPath string) (string, error) {
	dst := strings.TrimSuffix(artifactPath, e.Codec.Ext())
	if dst == artifactPath {
		dst = artifactPath + ".out"
	}
	if err := e.Codec.Decompress(ctx, artifactPath, dst); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("%w: %s: %w", ErrCompression, filepath.Base(artifactPath), err)
	}
	if err := os.Remove(artifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if _, err := os.Stat(dst); err != nil {
		return "", fmt.Errorf("%w: decompressed file missing: %w", ErrCompression, err)
	}
	return dst, nil
}

// Sweep removes scopes under tempDir older than olderThan, left behind by
// killed processes. Errors on individual entries are skipped.
func Sweep(tempDir string, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, de := range entries {
		if !de.IsDir() || !strings.HasPrefix(de.Name(), scopePrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.RemoveAll(filepath.Join(tempDir, de.Name())) == nil {
			removed++
		}
	}
	return removed, nil
}

// MD5File returns the md5 hex digest of the file at path.
func MD5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SetPriority renices the current process so codec work does not starve co-located jobs.
func SetPriority(nice int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, nice)
}

func sanitize(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	return b.String()
}
