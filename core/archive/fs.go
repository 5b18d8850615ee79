package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vbrik/cta-data-relay/core/codec"
)

const partialPrefix = ".relay-partial-"

// FS is an archive mounted as a local filesystem.
type FS struct {
	root string
}

var _ Store = (*FS)(nil)

// NewFS returns an archive rooted at an existing directory.
func NewFS(root string) (*FS, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("archive root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("archive root %s is not a directory", root)
	}
	return &FS{root: root}, nil
}

// List walks the archive recursively. Names are slash-separated paths
// relative to the root.
func (a *FS) List(ctx context.Context, filter EntryType) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(a.root, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			// Removed while walking.
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == a.root || strings.HasPrefix(de.Name(), partialPrefix) {
			return nil
		}
		var t EntryType
		switch {
		case de.Type().IsRegular():
			t = TypeRegular
		case de.IsDir():
			t = TypeDir
		default:
			t = TypeAny
		}
		if !matches(filter, t) {
			return nil
		}
		info, err := de.Info()
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		out = append(out, Entry{Name: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime(), Type: t})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", a.root, err)
	}
	return out, nil
}

// Copy stages the content in a partial file next to the destination and links
// it into place, so readers never observe a truncated destination.
func (a *FS) Copy(ctx context.Context, src, name string, opts CopyOptions) error {
	dst, err := a.path(name)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), partialPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if opts.Overwrite {
		return os.Rename(tmpPath, dst)
	}
	if err := os.Link(tmpPath, dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", a.URL(name), ErrAlreadyExists)
		}
		return err
	}
	return nil
}

func (a *FS) Checksum(ctx context.Context, name, algorithm string) (string, error) {
	if !strings.EqualFold(algorithm, "md5") {
		return "", fmt.Errorf("%s: %w", algorithm, ErrUnsupportedChecksum)
	}
	p, err := a.path(name)
	if err != nil {
		return "", err
	}
	return codec.MD5File(p)
}

func (a *FS) URL(name string) string {
	return "file://" + filepath.Join(a.root, name)
}

// path resolves a slash-separated name below the root. Names that are empty,
// absolute or escape the root are rejected.
func (a *FS) path(name string) (string, error) {
	local := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(local) || filepath.Clean(local) == "." {
		return "", fmt.Errorf("invalid archive name %q", name)
	}
	return filepath.Join(a.root, local), nil
}
