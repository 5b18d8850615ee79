package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/vbrik/cta-data-relay/core/catalog"
	"github.com/vbrik/cta-data-relay/core/reconcile"
	"github.com/vbrik/cta-data-relay/core/transfer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	metaObject    string
	metaLocalPath string
	metaMTime     bool
	yesConfirm    bool
)

// metaCmd is the parent command for metadata audits and repairs.
var metaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Inspect and repair object metadata",
	Long: `Compare object metadata with the archive or a local directory, create
transited markers for archive-only files and prune markers whose archive copy
is gone.`,
}

var metaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print object metadata",
	RunE:  runMetaShow,
}

var metaVsArchiveCmd = &cobra.Command{
	Use:   "vs-archive",
	Short: "Compare object metadata with archive files",
	RunE:  runMetaVsArchive,
}

var metaVsLocalCmd = &cobra.Command{
	Use:   "vs-local",
	Short: "Compare local files with object metadata",
	RunE:  runMetaVsLocal,
}

var metaSetArchiveCmd = &cobra.Command{
	Use:   "set-archive",
	Short: "Create transited markers for files only the archive holds",
	Long: `For every archive file without an object, checksum it in the archive and put
a zero-length object carrying {size, mtime, md5}. Objects uploaded since the
listing are left alone.`,
	RunE: runMetaSetArchive,
}

var metaPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete transited markers whose archive copy is gone",
	Long: `Delete zero-length objects that the archive no longer holds. Staged objects
are never touched.

Examples:
  # Show what would be deleted
  cta-data-relay meta prune --dry-run

  # Delete without the interactive prompt
  cta-data-relay meta prune --yes`,
	RunE: runMetaPrune,
}

func init() {
	metaShowCmd.Flags().StringVar(&metaObject, "object", "", "Show only this key")
	metaVsLocalCmd.Flags().StringVar(&metaLocalPath, "local-path", "", "Local directory or file")
	_ = metaVsLocalCmd.MarkFlagRequired("local-path")
	metaVsLocalCmd.Flags().BoolVar(&metaMTime, "mtime", false, "Also compare modification times")
	metaVsArchiveCmd.Flags().BoolVar(&metaMTime, "mtime", false, "Also compare modification times")
	metaPruneCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm deletion (non-interactive)")

	metaCmd.AddCommand(metaShowCmd, metaVsArchiveCmd, metaVsLocalCmd, metaSetArchiveCmd, metaPruneCmd)
	RootCmd.AddCommand(metaCmd)
}

func runMetaShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	e, err := newEnv(ctx, cmd.Flags(), false)
	if err != nil {
		return err
	}

	objects, err := e.listObjects(ctx, true)
	if err != nil {
		return err
	}
	if metaObject != "" {
		rec, ok := catalog.Index(objects)[metaObject]
		if !ok {
			return fmt.Errorf("object %s not found", metaObject)
		}
		objects = []catalog.InventoryRecord{rec}
	}
	return writeObjects(os.Stdout, objects)
}

func writeObjects(w io.Writer, objects []catalog.InventoryRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTATE\tPAYLOAD\tSIZE\tMTIME\tMD5")
	for _, rec := range objects {
		a := rec.Attributes
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", rec.Name, catalog.ObjectState(rec), rec.Size, a.Size, a.MTime, a.MD5)
	}
	return tw.Flush()
}

func diffFields() []reconcile.Field {
	if metaMTime {
		return append(append([]reconcile.Field(nil), reconcile.DefaultFields...), reconcile.FieldMTime)
	}
	return reconcile.DefaultFields
}

func runMetaVsArchive(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	e, err := newEnv(ctx, cmd.Flags(), true)
	if err != nil {
		return err
	}
	objects, err := e.listObjects(ctx, true)
	if err != nil {
		return err
	}
	archived, err := e.listArchive(ctx)
	if err != nil {
		return err
	}

	res := reconcile.Diff(objects, archived, diffFields()...)
	return writeDiff(os.Stdout, "object store", "archive", res)
}

func runMetaVsLocal(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	e, err := newEnv(ctx, cmd.Flags(), false)
	if err != nil {
		return err
	}
	local, err := e.listLocal(ctx, metaLocalPath)
	if err != nil {
		return err
	}
	objects, err := e.listObjects(ctx, true)
	if err != nil {
		return err
	}

	res := reconcile.Diff(local, objects, diffFields()...)
	return writeDiff(os.Stdout, "local", "object store", res)
}

func writeDiff(w io.Writer, a, b string, res reconcile.DiffResult) error {
	fmt.Fprintf(w, "Only in %s: %d\n", a, len(res.OnlyA))
	for _, r := range res.OnlyA {
		fmt.Fprintf(w, "  %s %s\n", r.Name, r.Attributes.Size)
	}
	fmt.Fprintf(w, "Only in %s: %d\n", b, len(res.OnlyB))
	for _, r := range res.OnlyB {
		fmt.Fprintf(w, "  %s %s\n", r.Name, r.Attributes.Size)
	}
	_, err := fmt.Fprintf(w, "Mismatched: %d\n", len(res.Mismatched))
	for _, m := range res.Mismatched {
		for _, f := range m.Fields {
			fmt.Fprintf(w, "  %s %s: %s != %s\n", m.Name, f, m.A.Get(string(f)), m.B.Get(string(f)))
		}
	}
	return err
}

func runMetaSetArchive(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	e, err := newEnv(ctx, cmd.Flags(), true)
	if err != nil {
		return err
	}
	plan, err := e.archivePlan(ctx, reconcile.PlanArchiveMeta)
	if err != nil {
		return err
	}

	m := &transfer.MetaSetter{
		Client:  e.client,
		Bucket:  e.cfg.Storage.Bucket,
		Archive: e.archive,
		Workers: e.cfg.Relay.ArchiveThreads,
		DryRun:  globals.dryRun,
		Logger:  e.log,
	}
	return e.finish(m.Run(ctx, plan))
}

func runMetaPrune(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	e, err := newEnv(ctx, cmd.Flags(), true)
	if err != nil {
		return err
	}
	plan, err := e.archivePlan(ctx, func(archived, objects []catalog.InventoryRecord) *reconcile.Plan {
		return reconcile.PlanPrune(objects, archived)
	})
	if err != nil {
		return err
	}

	p := &transfer.Pruner{
		Client: e.client,
		Bucket: e.cfg.Storage.Bucket,
		DryRun: globals.dryRun,
		Logger: e.log,
	}
	if !globals.dryRun && plan.Summary.Planned > 0 && !confirmDestructiveAction() {
		e.log.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}
	return e.finish(p.Run(ctx, plan))
}

// archivePlan lists the archive and the bucket, then prints and returns the plan.
func (e *env) archivePlan(ctx context.Context, build func(archived, objects []catalog.InventoryRecord) *reconcile.Plan) (*reconcile.Plan, error) {
	archived, err := e.listArchive(ctx)
	if err != nil {
		return nil, err
	}
	objects, err := e.listObjects(ctx, false)
	if err != nil {
		return nil, err
	}
	plan := build(archived, objects)
	e.log.Info("planned", zap.String("direction", string(plan.Direction)), zap.Int("items", plan.Summary.Planned))
	return plan, reconcile.WritePlan(os.Stdout, plan)
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\nAuto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\nType 'yes' to confirm deletion: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(response) == "yes"
}
