package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vbrik/cta-data-relay/core/archive"
	"github.com/vbrik/cta-data-relay/core/retry"
	"github.com/vbrik/cta-data-relay/core/storage"

	"github.com/minio/minio-go/v7"
)

// Lister enumerates the inventory of one tier. Walk stops at the first error
// returned by fn or by the tier.
type Lister interface {
	Walk(ctx context.Context, fn func(InventoryRecord) error) error
}

// List takes a complete snapshot of l, retrying the whole walk on failure.
func List(ctx context.Context, l Lister, p retry.Policy) ([]InventoryRecord, error) {
	var out []InventoryRecord
	err := retry.Do(ctx, p, func(ctx context.Context) error {
		out = out[:0]
		return l.Walk(ctx, func(r InventoryRecord) error {
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LocalCatalog lists a local directory (regular files, not recursive) or a single file.
type LocalCatalog struct {
	Path string
}

func (c LocalCatalog) Walk(ctx context.Context, fn func(InventoryRecord) error) error {
	fi, err := os.Stat(c.Path)
	if err != nil {
		return retry.Permanent(err)
	}
	if !fi.IsDir() {
		return fn(localRecord(c.Path, fi))
	}

	entries, err := os.ReadDir(c.Path)
	if err != nil {
		return err
	}
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return retry.Permanent(err)
		}
		// Stat follows symlinks, so linked files count as files.
		info, err := os.Stat(filepath.Join(c.Path, de.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := fn(localRecord(filepath.Join(c.Path, de.Name()), info)); err != nil {
			return err
		}
	}
	return nil
}

func localRecord(path string, fi os.FileInfo) InventoryRecord {
	return InventoryRecord{
		Name:    filepath.Base(path),
		Path:    path,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Attributes: Attributes{
			Size:  strconv.FormatInt(fi.Size(), 10),
			MTime: FormatMTime(fi.ModTime()),
		},
	}
}

// ObjectStoreCatalog lists a bucket. Size is the payload length; Attributes are
// only fetched (one StatObject per key) when WithAttributes is set.
type ObjectStoreCatalog struct {
	Client         storage.Client
	Bucket         string
	Prefix         string
	WithAttributes bool
}

func (c ObjectStoreCatalog) Walk(ctx context.Context, fn func(InventoryRecord) error) error {
	ctx, cancel := context.WithCancel(ctx)
	// Cancelling stops minio's listing goroutine when we return early.
	defer cancel()

	for obj := range c.Client.ListObjects(ctx, c.Bucket, minio.ListObjectsOptions{Prefix: c.Prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("list %s: %w", c.Bucket, obj.Err)
		}
		rec := InventoryRecord{Name: obj.Key, Size: obj.Size, ModTime: obj.LastModified}
		if c.WithAttributes {
			info, err := c.Client.StatObject(ctx, c.Bucket, obj.Key, minio.StatObjectOptions{})
			if storage.IsNotFound(err) {
				// Deleted while listing.
				continue
			}
			if err != nil {
				return fmt.Errorf("stat %s: %w", obj.Key, err)
			}
			rec.Attributes = FromMetadata(info.UserMetadata)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveCatalog lists the regular files of the archive root.
type ArchiveCatalog struct {
	Store archive.Store
}

func (c ArchiveCatalog) Walk(ctx context.Context, fn func(InventoryRecord) error) error {
	entries, err := c.Store.List(ctx, archive.TypeRegular)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rec := InventoryRecord{
			Name:    e.Name,
			Size:    e.Size,
			ModTime: e.ModTime,
			Attributes: Attributes{
				Size:  strconv.FormatInt(e.Size, 10),
				MTime: FormatMTime(e.ModTime),
			},
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
