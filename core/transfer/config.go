package transfer

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/vbrik/cta-data-relay/core/retry"
)

// Config holds pipeline tuning.
type Config struct {
	// TempDir holds per-object scopes during (de)compression.
	TempDir string `mapstructure:"temp_dir" default:"/tmp"`
	// CompressionThreads is the codec concurrency. Zero means half the cores.
	CompressionThreads int `mapstructure:"compression_threads" default:"0"`
	// S3Threads bounds concurrent object-store transfers.
	S3Threads int `mapstructure:"s3_threads" default:"80"`
	// ArchiveThreads bounds concurrent archive transfers.
	ArchiveThreads int `mapstructure:"archive_threads" default:"45"`
	// Codec is zstd (in process) or exec (the zstd binary).
	Codec string `mapstructure:"codec" default:"zstd"`
	// Nice is the scheduling priority applied to compression work.
	Nice int `mapstructure:"nice" default:"19"`
	// ListRetries is the number of attempts for one tier listing.
	ListRetries int `mapstructure:"list_retries" default:"3"`
	// CommitRetries is the number of attempts to empty a payload after an archive copy.
	CommitRetries int `mapstructure:"commit_retries" default:"5"`
}

// Validate rejects settings no run can succeed with.
func (c Config) Validate() error {
	fi, err := os.Stat(c.TempDir)
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("invalid temp dir: %s is not a directory", c.TempDir)
	}
	if c.S3Threads < 0 || c.ArchiveThreads < 0 || c.CompressionThreads < 0 {
		return errors.New("thread counts must not be negative")
	}
	return nil
}

// Threads returns the codec concurrency.
func (c Config) Threads() int {
	if c.CompressionThreads > 0 {
		return c.CompressionThreads
	}
	return max(1, runtime.NumCPU()/2)
}

// ListPolicy is the retry policy for listings.
func (c Config) ListPolicy() retry.Policy {
	return retry.Policy{Attempts: c.ListRetries, Base: time.Second, Max: 10 * time.Second}
}

// CommitPolicy is the retry policy for emptying a payload.
func (c Config) CommitPolicy() retry.Policy {
	return retry.Policy{Attempts: c.CommitRetries, Base: time.Second, Max: 30 * time.Second}
}
