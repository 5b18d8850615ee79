package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vbrik/cta-data-relay/core/archive"
	"github.com/vbrik/cta-data-relay/core/catalog"
	"github.com/vbrik/cta-data-relay/core/codec"
	"github.com/vbrik/cta-data-relay/core/config"
	"github.com/vbrik/cta-data-relay/core/logger"
	"github.com/vbrik/cta-data-relay/core/storage"
	"github.com/vbrik/cta-data-relay/core/transfer"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// staleScopeAge is how old a temp scope must be before startup removes it.
const staleScopeAge = 24 * time.Hour

// errIncomplete makes the process exit 1 after a run with failed or cancelled items.
var errIncomplete = errors.New("run incomplete: some items failed")

// env is everything a subcommand needs to talk to the tiers.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	client   storage.Client
	archive  archive.Store
	executor *codec.Executor
}

// applyFlags copies explicitly set persistent flags over cfg.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	set := flags.Changed
	if set("tempdir") {
		cfg.Relay.TempDir = globals.tempDir
	}
	if set("bucket") {
		cfg.Storage.Bucket = globals.bucket
	}
	if set("s3-url") {
		cfg.Storage.Endpoint = globals.s3URL
	}
	if set("s3-threads") {
		cfg.Relay.S3Threads = globals.s3Threads
	}
	if set("archive-threads") {
		cfg.Relay.ArchiveThreads = globals.archiveThreads
	}
	if set("compr-threads") {
		cfg.Relay.CompressionThreads = globals.comprThreads
	}
	if set("archive-path") {
		cfg.Archive.Root = globals.archivePath
	}
	if set("log-level") {
		cfg.Log.Level = globals.logLevel
	}
}

// newEnv loads configuration, connects to the object store and, when
// withArchive is set, opens the archive tier.
func newEnv(ctx context.Context, flags *pflag.FlagSet, withArchive bool) (*env, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(flags, cfg)
	if err := cfg.Relay.Validate(); err != nil {
		return nil, err
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.CreateBucket && !globals.dryRun); err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, log: l, client: client}
	if withArchive {
		if e.archive, err = archive.New(ctx, cfg.Archive); err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
	}

	threads := cfg.Relay.Threads()
	cdc, err := codec.New(cfg.Relay.Codec, threads, cfg.Relay.Nice)
	if err != nil {
		return nil, err
	}
	if _, inProcess := cdc.(*codec.Zstd); inProcess && cfg.Relay.Nice > 0 {
		if err := codec.SetPriority(cfg.Relay.Nice); err != nil {
			l.Warn("could not lower process priority", zap.Int("nice", cfg.Relay.Nice), zap.Error(err))
		}
	}
	e.executor = &codec.Executor{Codec: cdc, TempDir: cfg.Relay.TempDir}

	if n, err := codec.Sweep(cfg.Relay.TempDir, staleScopeAge); err != nil {
		l.Warn("temp sweep failed", zap.Error(err))
	} else if n > 0 {
		l.Info("removed stale temp scopes", zap.Int("count", n))
	}

	l.Debug("environment ready",
		zap.String("bucket", cfg.Storage.Bucket),
		zap.String("endpoint", cfg.Storage.Endpoint),
		zap.String("archive", cfg.Archive.Root),
		zap.String("codec", cfg.Relay.Codec),
		zap.Int("compression_threads", threads),
	)
	return e, nil
}

// runContext is cancelled on SIGINT/SIGTERM and after --timeout.
func runContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if globals.timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, globals.timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// listObjects snapshots the bucket.
func (e *env) listObjects(ctx context.Context, withAttributes bool) ([]catalog.InventoryRecord, error) {
	recs, err := catalog.List(ctx, catalog.ObjectStoreCatalog{
		Client:         e.client,
		Bucket:         e.cfg.Storage.Bucket,
		WithAttributes: withAttributes,
	}, e.cfg.Relay.ListPolicy())
	if err != nil {
		return nil, transfer.ListingError("object store", err)
	}
	return recs, nil
}

// listArchive snapshots the archive root.
func (e *env) listArchive(ctx context.Context) ([]catalog.InventoryRecord, error) {
	recs, err := catalog.List(ctx, catalog.ArchiveCatalog{Store: e.archive}, e.cfg.Relay.ListPolicy())
	if err != nil {
		return nil, transfer.ListingError("archive", err)
	}
	return recs, nil
}

// listLocal snapshots a local directory or file.
func (e *env) listLocal(ctx context.Context, path string) ([]catalog.InventoryRecord, error) {
	recs, err := catalog.List(ctx, catalog.LocalCatalog{Path: path}, e.cfg.Relay.ListPolicy())
	if err != nil {
		return nil, transfer.ListingError("local", err)
	}
	return recs, nil
}

// finish logs the summary and turns an incomplete run into an error.
func (e *env) finish(sum *transfer.Summary) error {
	sum.Log(e.log)
	_ = e.log.Sync()
	if !sum.OK() {
		return fmt.Errorf("%w: %v", errIncomplete, sum.FailedKeys())
	}
	return nil
}
