package archive

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyExists is returned by Copy when the destination exists and overwrite is off.
var ErrAlreadyExists = errors.New("archive: destination already exists")

// ErrUnsupportedChecksum is returned for checksum algorithms a backend cannot compute.
var ErrUnsupportedChecksum = errors.New("archive: unsupported checksum algorithm")

// EntryType filters listings of backends that expose a mixed namespace.
type EntryType int

const (
	TypeAny EntryType = iota
	TypeRegular
	TypeDir
)

// Entry is one name in the archive root.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	Type    EntryType
}

// CopyOptions controls Copy.
type CopyOptions struct {
	Overwrite bool
}

// Store is the archive tier. Implementations are safe for concurrent use.
type Store interface {
	// List returns every entry below the archive root, recursively, named by
	// its slash-separated path relative to the root.
	List(ctx context.Context, filter EntryType) ([]Entry, error)
	// Copy writes the local file at src to name. With Overwrite off an existing
	// destination yields ErrAlreadyExists and is left untouched.
	Copy(ctx context.Context, src, name string, opts CopyOptions) error
	// Checksum returns the hex digest of name. Only "md5" is supported.
	Checksum(ctx context.Context, name, algorithm string) (string, error)
	// URL renders name for logs and reports.
	URL(name string) string
}

// New builds the backend selected by cfg.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFS, "":
		return NewFS(cfg.Root)
	case BackendGCS:
		return NewGCS(ctx, cfg.Root, cfg.Prefix, cfg.CredentialsFile)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

func matches(filter, t EntryType) bool {
	return filter == TypeAny || filter == t
}
