// Package reconcile compares tier inventories and turns the differences into
// work plans.
//
// # Engine
//
// Diff is a pure function of two inventories. It reports names present on only
// one side and names whose attributes disagree. It backs the audit commands and
// the audit API.
//
// # Planners
//
// Each planner is Diff inverted into a work set for one direction:
//
//   - PlanUpload: local files absent from the object store.
//   - PlanRelay: objects whose payload is not yet empty. Payload length is the
//     completion test; there is no separate "done" flag anywhere.
//   - PlanArchiveMeta: archive files the object store has never seen.
//   - PlanPrune: empty-payload markers whose archive copy is gone.
//
// Plans are recomputed on every run and never stored. WritePlan renders the
// pending items; dry runs print exactly what a live run would execute.
//
// # Cache
//
// Cache keeps inventory snapshots for a TTL with singleflight stampede
// protection, for read-only HTTP audits.
package reconcile
