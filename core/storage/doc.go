// Package storage provides an abstraction layer for the object-store tier.
//
// It wraps the MinIO Go client so the relay engine can list, stat, read, write and
// delete objects on any S3-compatible service (Ceph RGW, MinIO, AWS S3).
//
// # Client Interface
//
// The Client interface abstracts the underlying provider, making it easy to mock
// storage interactions in unit tests (core/storage/mocks) or to run whole pipelines
// against an in-memory bucket (core/storage/memstore).
//
// # Object Layout
//
// Every relayed file is one object keyed by its base name. User metadata carries the
// attributes size, md5 and optionally mtime of the ORIGINAL file. The payload is the
// compressed artifact until the object is relayed to the archive tier, after which
// the payload is replaced by zero bytes while the metadata is kept as is.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	err = storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.CreateBucket)
package storage
