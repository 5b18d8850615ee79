package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vbrik/cta-data-relay/core/catalog"
	"github.com/vbrik/cta-data-relay/core/codec"
	"github.com/vbrik/cta-data-relay/core/logger"
	"github.com/vbrik/cta-data-relay/core/progress"
	"github.com/vbrik/cta-data-relay/core/reconcile"
	"github.com/vbrik/cta-data-relay/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Uploader compresses local files and puts them into the object store with
// {size, mtime, md5} attributes of the original file.
//
// Per item: pending, compressing, uploading, verified, done.
type Uploader struct {
	Client   storage.Client
	Bucket   string
	Executor *codec.Executor
	Workers  int
	PartSize uint64
	DryRun   bool
	Logger   *zap.Logger
	// Progress receives per-transfer progress lines. Nil disables them.
	Progress io.Writer
}

// Run executes the pending items of plan.
func (u *Uploader) Run(ctx context.Context, plan *reconcile.Plan) *Summary {
	if u.DryRun {
		return dryRunSummary(reconcile.DirectionUpload, plan)
	}
	start := time.Now()
	results := NewPool(u.Workers).Execute(ctx, plan.Pending(), u.upload)
	return summarize(reconcile.DirectionUpload, results, time.Since(start))
}

func (u *Uploader) upload(ctx context.Context, item reconcile.WorkItem) Result {
	key := item.Key
	l := u.Logger.With(zap.String("key", key), zap.String("direction", string(reconcile.DirectionUpload)))
	// Steps are never interrupted mid-call; the deadline is honored between them.
	step := logger.WithContext(context.WithoutCancel(ctx), l)

	src := item.Source.Path
	if src == "" {
		return Result{Err: fail(key, StagePending, ErrTransfer, fmt.Errorf("no local path for %s", key))}
	}

	l.Debug("compressing", zap.String("path", src))
	art, err := u.Executor.Ingest(step, src)
	if err != nil {
		return Result{Err: fail(key, StageCompressing, kindOf(err, ErrCompression), err)}
	}
	defer art.Cleanup()

	if err := checkpoint(ctx, key, StageUploading); err != nil {
		return Result{Err: err}
	}

	attrs := catalog.Attributes{
		Size:  strconv.FormatInt(art.OriginalSize, 10),
		MTime: item.Source.Attributes.MTime,
		MD5:   art.Checksum,
	}
	info, err := u.put(step, key, art, attrs)
	if err != nil {
		return Result{Err: fail(key, StageUploading, ErrTransfer, err)}
	}

	if info.Size != art.Size {
		return Result{Err: fail(key, StageVerified, ErrTransfer,
			fmt.Errorf("object store reports %d bytes, sent %d", info.Size, art.Size))}
	}

	l.Info("uploaded",
		zap.Int64("size", art.OriginalSize),
		zap.Int64("compressed", art.Size),
		zap.String("md5", art.Checksum),
	)
	return Result{Bytes: art.Size}
}

func (u *Uploader) put(ctx context.Context, key string, art *codec.Artifact, attrs catalog.Attributes) (minio.UploadInfo, error) {
	f, err := os.Open(art.Path)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	defer f.Close()

	return u.Client.PutObject(ctx, u.Bucket, key, f, art.Size, minio.PutObjectOptions{
		UserMetadata: attrs.Metadata(),
		ContentType:  "application/zstd",
		PartSize:     u.PartSize,
		Progress:     progress.New(filepath.Base(art.Path), art.Size, u.Progress),
	})
}
