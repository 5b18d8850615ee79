package cmd

import (
	"fmt"
	"os"

	"github.com/vbrik/cta-data-relay/core/reconcile"
	"github.com/vbrik/cta-data-relay/core/transfer"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var uploadLocalPath string

// uploadCmd compresses local files into the bucket.
var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload local files to the object store",
	Long: `Compress every file of --local-path that the bucket does not hold yet and
upload it with {size, mtime, md5} of the original file as metadata.

Examples:
  # Show what would be uploaded
  cta-data-relay upload --local-path /data/run42 --dry-run

  # Upload with 16 concurrent transfers
  cta-data-relay upload --local-path /data/run42 --s3-threads 16`,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadLocalPath, "local-path", "", "Local directory or file to upload")
	_ = uploadCmd.MarkFlagRequired("local-path")
	RootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	e, err := newEnv(ctx, cmd.Flags(), false)
	if err != nil {
		return err
	}

	local, err := e.listLocal(ctx, uploadLocalPath)
	if err != nil {
		return err
	}
	objects, err := e.listObjects(ctx, false)
	if err != nil {
		return err
	}

	plan := reconcile.PlanUpload(local, objects)
	fmt.Println("Uploaded:", plan.Summary.DestCount)
	fmt.Println("Un-uploaded:", plan.Summary.Planned, humanize.Bytes(uint64(plan.Summary.PlannedBytes)))
	if err := reconcile.WritePlan(os.Stdout, plan); err != nil {
		return err
	}

	up := &transfer.Uploader{
		Client:   e.client,
		Bucket:   e.cfg.Storage.Bucket,
		Executor: e.executor,
		Workers:  e.cfg.Relay.S3Threads,
		PartSize: e.cfg.Storage.PartSize,
		DryRun:   globals.dryRun,
		Logger:   e.log,
		Progress: os.Stdout,
	}
	return e.finish(up.Run(ctx, plan))
}
