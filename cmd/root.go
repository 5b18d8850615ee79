package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/vbrik/cta-data-relay/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globals are the persistent flags shared by every subcommand. A flag only
// overrides configuration when it was set on the command line.
var globals struct {
	dryRun         bool
	timeout        time.Duration
	tempDir        string
	bucket         string
	s3URL          string
	s3Threads      int
	archiveThreads int
	comprThreads   int
	archivePath    string
	logLevel       string
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "cta-data-relay",
	Short: "Move data between local disk, an object store and the archive",
	Long: `cta-data-relay moves files from a local directory into an S3 bucket as
zstd-compressed objects, relays staged objects into the archive tier and then
empties their payload, keeping {size, mtime, md5} as object metadata.

Every run lists the tiers, computes its work set and may be re-run safely.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console format with the development config gives readable CLI errors.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}

func init() {
	f := RootCmd.PersistentFlags()
	f.BoolVar(&globals.dryRun, "dry-run", false, "List and plan only, change nothing")
	f.DurationVar(&globals.timeout, "timeout", 0, "Stop starting new items after this long (0 = no limit)")
	f.StringVar(&globals.tempDir, "tempdir", "", "Directory for compression scopes")
	f.StringVar(&globals.bucket, "bucket", "", "Object-store bucket")
	f.StringVar(&globals.s3URL, "s3-url", "", "Object-store endpoint URL")
	f.IntVar(&globals.s3Threads, "s3-threads", 0, "Concurrent object-store transfers")
	f.IntVar(&globals.archiveThreads, "archive-threads", 0, "Concurrent archive transfers")
	f.IntVar(&globals.comprThreads, "compr-threads", 0, "Compression threads")
	f.StringVar(&globals.archivePath, "archive-path", "", "Archive root directory or bucket")
	f.StringVar(&globals.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}
