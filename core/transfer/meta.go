package transfer

import (
	"bytes"
	"context"
	"time"

	"github.com/vbrik/cta-data-relay/core/archive"
	"github.com/vbrik/cta-data-relay/core/logger"
	"github.com/vbrik/cta-data-relay/core/reconcile"
	"github.com/vbrik/cta-data-relay/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// MetaSetter records files that exist only in the archive as transited
// objects: a zero-length payload with {size, mtime, md5} from the archive.
//
// Per item: pending, checksumming, marking, done.
type MetaSetter struct {
	Client  storage.Client
	Bucket  string
	Archive archive.Store
	Workers int
	DryRun  bool
	Logger  *zap.Logger
}

// Run executes the pending items of plan in random order.
func (m *MetaSetter) Run(ctx context.Context, plan *reconcile.Plan) *Summary {
	if m.DryRun {
		return dryRunSummary(reconcile.DirectionArchiveMeta, plan)
	}
	start := time.Now()
	results := NewPool(m.Workers).Execute(ctx, shuffled(plan.Pending()), m.mark)
	return summarize(reconcile.DirectionArchiveMeta, results, time.Since(start))
}

func (m *MetaSetter) mark(ctx context.Context, item reconcile.WorkItem) Result {
	key := item.Key
	l := m.Logger.With(zap.String("key", key), zap.String("direction", string(reconcile.DirectionArchiveMeta)))
	step := logger.WithContext(context.WithoutCancel(ctx), l)

	sum, err := m.Archive.Checksum(step, key, "md5")
	if err != nil {
		return Result{Err: fail(key, StageChecksumming, ErrChecksum, err)}
	}

	if err := checkpoint(ctx, key, StageMarking); err != nil {
		return Result{Err: err}
	}

	// Never turn an object uploaded since the listing into an empty marker.
	_, err = m.Client.StatObject(step, m.Bucket, key, minio.StatObjectOptions{})
	switch {
	case err == nil:
		l.Info("object appeared since listing, leaving it alone")
		return Result{AlreadyPresent: true}
	case !storage.IsNotFound(err):
		return Result{Err: fail(key, StageMarking, ErrTransfer, err)}
	}

	attrs := item.Source.Attributes
	attrs.MD5 = sum
	if _, err := m.Client.PutObject(step, m.Bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{
		UserMetadata: attrs.Metadata(),
	}); err != nil {
		return Result{Err: fail(key, StageMarking, ErrTransfer, err)}
	}
	l.Info("marked transited", zap.Any("attributes", attrs))
	return Result{}
}

// Pruner deletes transited markers whose archive copy is gone.
type Pruner struct {
	Client storage.Client
	Bucket string
	DryRun bool
	Logger *zap.Logger
}

// Run removes the pending items of plan in one batched request stream.
func (p *Pruner) Run(ctx context.Context, plan *reconcile.Plan) *Summary {
	if p.DryRun {
		return dryRunSummary(reconcile.DirectionPrune, plan)
	}
	start := time.Now()
	items := plan.Pending()

	// sent is read only after RemoveObjects has drained objects.
	sent := 0
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for _, it := range items {
			select {
			case objects <- minio.ObjectInfo{Key: it.Key}:
				sent++
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := make(map[string]*StageError)
	for rerr := range p.Client.RemoveObjects(context.WithoutCancel(ctx), p.Bucket, objects, minio.RemoveObjectsOptions{}) {
		failed[rerr.ObjectName] = fail(rerr.ObjectName, StagePruning, ErrTransfer, rerr.Err)
	}

	results := make([]Result, len(items))
	for i, it := range items {
		results[i].Key = it.Key
		switch {
		case failed[it.Key] != nil:
			results[i].Err = failed[it.Key]
		case i >= sent:
			results[i].Err = fail(it.Key, StagePending, ErrCancelled, context.Cause(ctx))
		default:
			p.Logger.Info("pruned", zap.String("key", it.Key))
		}
	}
	return summarize(reconcile.DirectionPrune, results, time.Since(start))
}
