package cmd

import (
	"fmt"
	"os"

	"github.com/vbrik/cta-data-relay/core/reconcile"
	"github.com/vbrik/cta-data-relay/core/transfer"

	"github.com/spf13/cobra"
)

var relayObject string

// relayCmd moves staged objects into the archive.
var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay staged objects to the archive tier",
	Long: `Download every staged object (non-empty payload), decompress it, copy it into
the archive without overwriting and then empty the object's payload. The
object keeps its metadata and becomes a transited marker.

Re-running is safe: a file the archive already holds counts as copied.

Examples:
  cta-data-relay relay --dry-run
  cta-data-relay relay --object run42.dat --archive-path /data/wipac/CTA/run42`,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().StringVar(&relayObject, "object", "", "Relay only this key")
	RootCmd.AddCommand(relayCmd)
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	e, err := newEnv(ctx, cmd.Flags(), true)
	if err != nil {
		return err
	}

	objects, err := e.listObjects(ctx, false)
	if err != nil {
		return err
	}

	plan := reconcile.PlanRelay(objects, relayObject)
	pending := plan.Pending()
	keys := make([]string, len(pending))
	for i, it := range pending {
		keys[i] = it.Key
	}
	fmt.Println("Un-relayed keys:", keys)
	if err := reconcile.WritePlan(os.Stdout, plan); err != nil {
		return err
	}

	r := &transfer.Relayer{
		Client:        e.client,
		Bucket:        e.cfg.Storage.Bucket,
		Archive:       e.archive,
		Executor:      e.executor,
		Workers:       max(e.cfg.Relay.S3Threads, e.cfg.Relay.ArchiveThreads),
		Downloads:     e.cfg.Relay.S3Threads,
		ArchiveCopies: e.cfg.Relay.ArchiveThreads,
		DryRun:        globals.dryRun,
		Logger:        e.log,
		Commit:        e.cfg.Relay.CommitPolicy(),
		Progress:      os.Stdout,
	}
	return e.finish(r.Run(ctx, plan))
}
