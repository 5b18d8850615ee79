package reconcile

import (
	"github.com/vbrik/cta-data-relay/core/catalog"
)

// Field names an attribute compared by Diff.
type Field string

const (
	FieldSize  Field = catalog.KeySize
	FieldMTime Field = catalog.KeyMTime
	FieldMD5   Field = catalog.KeyMD5
)

// DefaultFields is the comparison set used when Diff is given none.
var DefaultFields = []Field{FieldSize, FieldMD5}

// Mismatch is a name present on both sides whose attributes disagree.
type Mismatch struct {
	Name   string             `json:"name"`
	A      catalog.Attributes `json:"a"`
	B      catalog.Attributes `json:"b"`
	Fields []Field            `json:"fields"`
}

// DiffResult is the outcome of comparing two inventories.
type DiffResult struct {
	OnlyA      []catalog.InventoryRecord `json:"only_a"`
	OnlyB      []catalog.InventoryRecord `json:"only_b"`
	Mismatched []Mismatch                `json:"mismatched"`
}

// Direction identifies which tier pair a plan moves data between.
type Direction string

const (
	// DirectionUpload moves local files into the object store.
	DirectionUpload Direction = "upload"
	// DirectionRelay moves staged objects into the archive and empties their payload.
	DirectionRelay Direction = "relay"
	// DirectionArchiveMeta creates transited markers for files only the archive holds.
	DirectionArchiveMeta Direction = "archive-meta"
	// DirectionPrune deletes transited markers whose archive copy is gone.
	DirectionPrune Direction = "prune"
)

// ActionType represents the type of per-object action.
type ActionType string

const (
	ActionUpload  ActionType = "upload"
	ActionRelay   ActionType = "relay"
	ActionSetMeta ActionType = "set_meta"
	ActionPrune   ActionType = "prune"
	ActionSkip    ActionType = "skip"
)

// WorkItem is one reconciliation decision for one key.
type WorkItem struct {
	// Key is the object name, identical in every tier.
	Key    string     `json:"key"`
	Action ActionType `json:"action"`
	// Source is the record the action reads from.
	Source catalog.InventoryRecord `json:"source"`
	// Dest is the record already present at the destination, if any.
	Dest   *catalog.InventoryRecord `json:"dest,omitempty"`
	Reason string                   `json:"reason"`
}

// PlanSummary provides aggregate counts for a plan.
type PlanSummary struct {
	// SourceCount is the size of the source inventory.
	SourceCount int `json:"source_count"`
	// DestCount is the size of the destination inventory.
	DestCount int `json:"dest_count"`
	// Planned counts items that need work.
	Planned int `json:"planned"`
	// Skipped counts items that are already done.
	Skipped int `json:"skipped"`
	// PlannedBytes sums the source sizes of planned items.
	PlannedBytes int64 `json:"planned_bytes"`
}

// Plan is the work set of one run. It is never persisted: every run
// recomputes it from fresh inventories.
type Plan struct {
	Direction Direction   `json:"direction"`
	Items     []WorkItem  `json:"items"`
	Summary   PlanSummary `json:"summary"`
}

// Pending returns the items that need work.
func (p *Plan) Pending() []WorkItem {
	out := make([]WorkItem, 0, p.Summary.Planned)
	for _, it := range p.Items {
		if it.Action != ActionSkip {
			out = append(out, it)
		}
	}
	return out
}
