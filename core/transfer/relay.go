package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path"
	"time"

	"github.com/vbrik/cta-data-relay/core/archive"
	"github.com/vbrik/cta-data-relay/core/codec"
	"github.com/vbrik/cta-data-relay/core/logger"
	"github.com/vbrik/cta-data-relay/core/progress"
	"github.com/vbrik/cta-data-relay/core/reconcile"
	"github.com/vbrik/cta-data-relay/core/retry"
	"github.com/vbrik/cta-data-relay/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Relayer moves staged objects into the archive and then empties their
// payload, keeping their attributes.
//
// Per item: pending, downloading, decompressing, copying_to_archive,
// payload_emptied, done. Emptying the payload is the commit point and only
// happens once the archive holds the file.
type Relayer struct {
	Client   storage.Client
	Bucket   string
	Archive  archive.Store
	Executor *codec.Executor
	Workers  int
	// Downloads bounds concurrent object-store downloads. Zero means Workers.
	Downloads int
	// ArchiveCopies bounds concurrent archive copies. Zero means Workers.
	ArchiveCopies int
	DryRun        bool
	Logger        *zap.Logger
	Commit        retry.Policy
	Progress      io.Writer
}

// tierLimits caps the steps of a relay that load one tier.
type tierLimits struct {
	download *semaphore.Weighted
	copy     *semaphore.Weighted
}

func (r *Relayer) limits() tierLimits {
	bound := func(n int) *semaphore.Weighted {
		if n <= 0 {
			n = max(r.Workers, 1)
		}
		return semaphore.NewWeighted(int64(n))
	}
	return tierLimits{download: bound(r.Downloads), copy: bound(r.ArchiveCopies)}
}

// Run executes the pending items of plan in random order.
func (r *Relayer) Run(ctx context.Context, plan *reconcile.Plan) *Summary {
	if r.DryRun {
		return dryRunSummary(reconcile.DirectionRelay, plan)
	}
	start := time.Now()
	lim := r.limits()
	results := NewPool(r.Workers).Execute(ctx, shuffled(plan.Pending()), func(ctx context.Context, item reconcile.WorkItem) Result {
		return r.relay(ctx, item, lim)
	})
	return summarize(reconcile.DirectionRelay, results, time.Since(start))
}

func (r *Relayer) relay(ctx context.Context, item reconcile.WorkItem, lim tierLimits) Result {
	key := item.Key
	l := r.Logger.With(zap.String("key", key), zap.String("direction", string(reconcile.DirectionRelay)))
	step := logger.WithContext(context.WithoutCancel(ctx), l)

	scope, err := r.Executor.NewScope(key)
	if err != nil {
		return Result{Err: fail(key, StageDownloading, ErrTransfer, err)}
	}
	defer scope.Cleanup()

	artifact := scope.File(path.Base(key) + r.Executor.Codec.Ext())
	if err := lim.download.Acquire(ctx, 1); err != nil {
		return Result{Err: fail(key, StageDownloading, ErrCancelled, err)}
	}
	n, err := r.download(step, key, item.Source.Size, artifact)
	lim.download.Release(1)
	if errors.Is(err, errPayloadGone) {
		l.Info("payload emptied since listing")
		return Result{AlreadyPresent: true}
	}
	if err != nil {
		return Result{Err: fail(key, StageDownloading, ErrTransfer, err)}
	}

	if err := checkpoint(ctx, key, StageDecompressing); err != nil {
		return Result{Err: err}
	}
	restored, err := r.Executor.Egress(step, artifact)
	if err != nil {
		return Result{Err: fail(key, StageDecompressing, ErrCompression, err)}
	}

	if err := checkpoint(ctx, key, StageCopyingToArchive); err != nil {
		return Result{Err: err}
	}
	res := Result{Bytes: n}
	if err := lim.copy.Acquire(ctx, 1); err != nil {
		return Result{Err: fail(key, StageCopyingToArchive, ErrCancelled, err)}
	}
	err = r.Archive.Copy(step, restored, key, archive.CopyOptions{Overwrite: false})
	lim.copy.Release(1)
	switch {
	case errors.Is(err, archive.ErrAlreadyExists):
		// An earlier run copied it but did not get to empty the payload.
		l.Info("archive already holds object", zap.String("url", r.Archive.URL(key)))
		res.AlreadyPresent = true
	case err != nil:
		return Result{Err: fail(key, StageCopyingToArchive, ErrTransfer, err)}
	}

	// The archive copy is confirmed: finish the item even past the deadline.
	if err := EmptyPayload(step, r.Client, r.Bucket, key, r.Commit); err != nil {
		return Result{Err: fail(key, StagePayloadEmptied, ErrPayloadCommit, err)}
	}
	l.Info("relayed", zap.Int64("bytes", n), zap.String("url", r.Archive.URL(key)))
	return res
}

func (r *Relayer) download(ctx context.Context, key string, size int64, dst string) (int64, error) {
	obj, err := r.Client.GetObject(ctx, r.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	meter := progress.New(path.Base(dst), size, r.Progress)
	n, err := io.Copy(f, progress.NewReader(obj, meter))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n == 0 {
		return n, errPayloadGone
	}
	return n, nil
}

var errPayloadGone = errors.New("payload is empty")

// EmptyPayload re-puts key with a zero-length body, keeping the attributes and
// content headers it has right now. It is a no-op when the payload is already
// empty. Transient failures are retried under p.
func EmptyPayload(ctx context.Context, client storage.Client, bucket, key string, p retry.Policy) error {
	return retry.Do(ctx, p, func(ctx context.Context) error {
		info, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
		if storage.IsNotFound(err) {
			return retry.Permanent(fmt.Errorf("object %s vanished: %w", key, err))
		}
		if err != nil {
			return err
		}
		if info.Size == 0 {
			return nil
		}
		_, err = client.PutObject(ctx, bucket, key, bytes.NewReader(nil), 0, rewriteOptions(info))
		return err
	})
}

// rewriteOptions keeps the user metadata and the standard content headers of
// info for a rewrite of the same key.
func rewriteOptions(info minio.ObjectInfo) minio.PutObjectOptions {
	meta := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		meta[k] = v
	}
	h := info.Metadata
	return minio.PutObjectOptions{
		UserMetadata:       meta,
		ContentType:        info.ContentType,
		ContentEncoding:    h.Get("Content-Encoding"),
		ContentDisposition: h.Get("Content-Disposition"),
		ContentLanguage:    h.Get("Content-Language"),
		CacheControl:       h.Get("Cache-Control"),
		Expires:            info.Expires,
	}
}

// shuffled spreads consecutive items across archive storage servers.
func shuffled(items []reconcile.WorkItem) []reconcile.WorkItem {
	out := append([]reconcile.WorkItem(nil), items...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
