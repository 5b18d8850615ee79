// Package transfer executes reconciliation plans against the tiers.
//
// Each direction has its own pipeline: Uploader (local to object store),
// Relayer (object store to archive), MetaSetter (archive-only files to
// transited markers) and Pruner (stale markers). All but Pruner run items on
// a fixed-size Pool; relay and marker items are shuffled first so that
// consecutive requests land on different archive servers.
//
// # Failures
//
// A single item's failure never stops the run. Every failure is a StageError
// carrying the stage it happened in and one of the kinds ErrCompression,
// ErrChecksum, ErrTransfer, ErrPayloadCommit or ErrCancelled. ErrListing is
// returned by callers before a plan exists, so nothing is mutated.
//
// An archive copy that reports archive.ErrAlreadyExists counts as done: an
// earlier, interrupted run copied it. Emptying the payload afterwards is
// retried with backoff.
//
// # Deadlines
//
// Steps run under a context that is never cancelled, so a deadline cannot cut
// an upload in half. The run context is checked between steps; once it is
// done no new item or step is started and the pool drains. An item whose
// archive copy has succeeded still empties its payload.
//
// # Dry runs
//
// With DryRun set, Run makes no call to any tier and returns the planned
// count only.
package transfer
