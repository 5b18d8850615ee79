package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/vbrik/cta-data-relay/core/archive"
	"github.com/vbrik/cta-data-relay/core/catalog"
	"github.com/vbrik/cta-data-relay/core/reconcile"
	"github.com/vbrik/cta-data-relay/core/retry"
	"github.com/vbrik/cta-data-relay/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ErrNotFound is returned for an object key the store does not hold.
var ErrNotFound = errors.New("object not found")

// Service answers read-only questions about the three tiers.
type Service struct {
	client  storage.Client
	bucket  string
	archive archive.Store
	cache   *reconcile.Cache
	policy  retry.Policy
	logger  *zap.Logger
}

// NewService creates a new audit service.
func NewService(client storage.Client, bucket string, arc archive.Store, cache *reconcile.Cache, policy retry.Policy, logger *zap.Logger) *Service {
	return &Service{
		client:  client,
		bucket:  bucket,
		archive: arc,
		cache:   cache,
		policy:  policy,
		logger:  logger,
	}
}

// Objects returns the object-store inventory with attributes.
func (s *Service) Objects(ctx context.Context) ([]catalog.InventoryRecord, error) {
	return s.cache.Snapshot(ctx, "objects", func(ctx context.Context) ([]catalog.InventoryRecord, error) {
		return s.list(ctx, "object store", catalog.ObjectStoreCatalog{Client: s.client, Bucket: s.bucket, WithAttributes: true})
	})
}

// Archived returns the archive inventory.
func (s *Service) Archived(ctx context.Context) ([]catalog.InventoryRecord, error) {
	if s.archive == nil {
		return nil, errors.New("no archive configured")
	}
	return s.cache.Snapshot(ctx, "archive", func(ctx context.Context) ([]catalog.InventoryRecord, error) {
		return s.list(ctx, "archive", catalog.ArchiveCatalog{Store: s.archive})
	})
}

// Local returns the inventory of a local directory or file.
func (s *Service) Local(ctx context.Context, path string) ([]catalog.InventoryRecord, error) {
	return s.cache.Snapshot(ctx, "local:"+path, func(ctx context.Context) ([]catalog.InventoryRecord, error) {
		return s.list(ctx, "local", catalog.LocalCatalog{Path: path})
	})
}

// Object returns one object's record, read directly from the store.
func (s *Service) Object(ctx context.Context, key string) (catalog.InventoryRecord, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if storage.IsNotFound(err) {
		return catalog.InventoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return catalog.InventoryRecord{}, err
	}
	return catalog.InventoryRecord{
		Name:       key,
		Size:       info.Size,
		ModTime:    info.LastModified,
		Attributes: catalog.FromMetadata(info.UserMetadata),
	}, nil
}

// DiffArchive compares object attributes with archive files.
func (s *Service) DiffArchive(ctx context.Context) (reconcile.DiffResult, error) {
	objects, err := s.Objects(ctx)
	if err != nil {
		return reconcile.DiffResult{}, err
	}
	archived, err := s.Archived(ctx)
	if err != nil {
		return reconcile.DiffResult{}, err
	}
	return reconcile.Diff(objects, archived), nil
}

// DiffLocal compares local files with object attributes.
func (s *Service) DiffLocal(ctx context.Context, path string) (reconcile.DiffResult, error) {
	local, err := s.Local(ctx, path)
	if err != nil {
		return reconcile.DiffResult{}, err
	}
	objects, err := s.Objects(ctx)
	if err != nil {
		return reconcile.DiffResult{}, err
	}
	return reconcile.Diff(local, objects), nil
}

// PlanUpload is the work set an upload of path would process now.
func (s *Service) PlanUpload(ctx context.Context, path string) (*reconcile.Plan, error) {
	local, err := s.Local(ctx, path)
	if err != nil {
		return nil, err
	}
	objects, err := s.Objects(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.PlanUpload(local, objects), nil
}

// PlanRelay is the work set a relay would process now.
func (s *Service) PlanRelay(ctx context.Context) (*reconcile.Plan, error) {
	objects, err := s.Objects(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.PlanRelay(objects, ""), nil
}

// Refresh drops every cached inventory.
func (s *Service) Refresh(paths ...string) {
	s.cache.Invalidate("objects")
	s.cache.Invalidate("archive")
	for _, p := range paths {
		s.cache.Invalidate("local:" + p)
	}
}

func (s *Service) list(ctx context.Context, tier string, l catalog.Lister) ([]catalog.InventoryRecord, error) {
	recs, err := catalog.List(ctx, l, s.policy)
	if err != nil {
		s.logger.Error("listing failed", zap.String("tier", tier), zap.Error(err))
		return nil, fmt.Errorf("list %s: %w", tier, err)
	}
	s.logger.Debug("listed tier", zap.String("tier", tier), zap.Int("records", len(recs)))
	return recs, nil
}
