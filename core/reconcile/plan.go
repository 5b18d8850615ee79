package reconcile

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/vbrik/cta-data-relay/core/catalog"

	"github.com/dustin/go-humanize"
)

// PlanUpload selects local files whose name is absent from the object store.
// Presence is the only test: a changed local file is not uploaded again.
func PlanUpload(local, objects []catalog.InventoryRecord) *Plan {
	idx := catalog.Index(objects)
	plan := &Plan{Direction: DirectionUpload}
	plan.Summary.SourceCount = len(local)
	plan.Summary.DestCount = len(objects)

	for _, rec := range local {
		if dst, ok := idx[rec.Name]; ok {
			plan.skip(rec, &dst, "already in object store ("+catalog.ObjectState(dst).String()+")")
			continue
		}
		plan.add(ActionUpload, rec, "absent from object store")
	}
	plan.sort()
	return plan
}

// PlanRelay selects objects whose payload is not empty. When only is set the
// plan is restricted to that key.
func PlanRelay(objects []catalog.InventoryRecord, only string) *Plan {
	plan := &Plan{Direction: DirectionRelay}
	plan.Summary.SourceCount = len(objects)

	found := false
	for _, rec := range objects {
		if only != "" && rec.Name != only {
			continue
		}
		found = true
		if catalog.ObjectState(rec) == catalog.Transited {
			plan.skip(rec, nil, "transited (payload empty)")
			continue
		}
		plan.add(ActionRelay, rec, fmt.Sprintf("staged (payload %s)", humanize.IBytes(uint64(rec.Size))))
	}
	if only != "" && !found {
		plan.skip(catalog.InventoryRecord{Name: only}, nil, "not in object store")
	}
	plan.sort()
	return plan
}

// PlanArchiveMeta selects archive files with no object-store entry at all.
// Each gets a transited marker carrying the archive's attributes.
func PlanArchiveMeta(archived, objects []catalog.InventoryRecord) *Plan {
	idx := catalog.Index(objects)
	plan := &Plan{Direction: DirectionArchiveMeta}
	plan.Summary.SourceCount = len(archived)
	plan.Summary.DestCount = len(objects)

	for _, rec := range archived {
		if _, ok := idx[rec.Name]; ok {
			plan.Summary.Skipped++
			continue
		}
		plan.add(ActionSetMeta, rec, "only in archive")
	}
	plan.sort()
	return plan
}

// PlanPrune selects transited markers whose name is missing from the archive.
// Staged objects are never pruned.
func PlanPrune(objects, archived []catalog.InventoryRecord) *Plan {
	idx := catalog.Index(archived)
	plan := &Plan{Direction: DirectionPrune}
	plan.Summary.SourceCount = len(objects)
	plan.Summary.DestCount = len(archived)

	for _, rec := range objects {
		if catalog.ObjectState(rec) != catalog.Transited {
			continue
		}
		if _, ok := idx[rec.Name]; ok {
			plan.Summary.Skipped++
			continue
		}
		plan.add(ActionPrune, rec, "transited, missing from archive")
	}
	plan.sort()
	return plan
}

func (p *Plan) add(action ActionType, src catalog.InventoryRecord, reason string) {
	p.Items = append(p.Items, WorkItem{Key: src.Name, Action: action, Source: src, Reason: reason})
	p.Summary.Planned++
	p.Summary.PlannedBytes += src.Size
}

func (p *Plan) skip(src catalog.InventoryRecord, dst *catalog.InventoryRecord, reason string) {
	p.Items = append(p.Items, WorkItem{Key: src.Name, Action: ActionSkip, Source: src, Dest: dst, Reason: reason})
	p.Summary.Skipped++
}

func (p *Plan) sort() {
	sort.SliceStable(p.Items, func(i, j int) bool { return p.Items[i].Key < p.Items[j].Key })
}

// WritePlan renders the pending work set of plan. Dry runs and live runs
// print the same text for the same inventories.
func WritePlan(w io.Writer, plan *Plan) error {
	s := plan.Summary
	if _, err := fmt.Fprintf(w, "direction: %s\nsource: %d  destination: %d\nplanned: %d (%s)  skipped: %d\n",
		plan.Direction, s.SourceCount, s.DestCount, s.Planned, humanize.IBytes(uint64(s.PlannedBytes)), s.Skipped); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, it := range plan.Pending() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Action, it.Key, humanize.IBytes(uint64(it.Source.Size)), it.Reason)
	}
	return tw.Flush()
}
