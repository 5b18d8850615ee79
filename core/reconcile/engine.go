package reconcile

import (
	"sort"

	"github.com/vbrik/cta-data-relay/core/catalog"
)

// Diff compares two inventories by name. A name on both sides is mismatched
// when one of fields (DefaultFields if none) is set on both sides with
// different values; an attribute missing on one side is not a defect.
// Results are sorted by name, and Diff(a, b) mirrors Diff(b, a).
func Diff(a, b []catalog.InventoryRecord, fields ...Field) DiffResult {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	idxA := catalog.Index(a)
	idxB := catalog.Index(b)

	res := DiffResult{
		OnlyA:      []catalog.InventoryRecord{},
		OnlyB:      []catalog.InventoryRecord{},
		Mismatched: []Mismatch{},
	}
	for name, ra := range idxA {
		rb, ok := idxB[name]
		if !ok {
			res.OnlyA = append(res.OnlyA, ra)
			continue
		}
		if diff := compareFields(ra.Attributes, rb.Attributes, fields); len(diff) > 0 {
			res.Mismatched = append(res.Mismatched, Mismatch{Name: name, A: ra.Attributes, B: rb.Attributes, Fields: diff})
		}
	}
	for name, rb := range idxB {
		if _, ok := idxA[name]; !ok {
			res.OnlyB = append(res.OnlyB, rb)
		}
	}

	sortRecords(res.OnlyA)
	sortRecords(res.OnlyB)
	sort.Slice(res.Mismatched, func(i, j int) bool {
		return res.Mismatched[i].Name < res.Mismatched[j].Name
	})
	return res
}

// Swap returns the same result seen from the other side.
func (r DiffResult) Swap() DiffResult {
	out := DiffResult{OnlyA: r.OnlyB, OnlyB: r.OnlyA, Mismatched: make([]Mismatch, len(r.Mismatched))}
	for i, m := range r.Mismatched {
		out.Mismatched[i] = Mismatch{Name: m.Name, A: m.B, B: m.A, Fields: m.Fields}
	}
	return out
}

// Clean reports whether both sides agree completely.
func (r DiffResult) Clean() bool {
	return len(r.OnlyA) == 0 && len(r.OnlyB) == 0 && len(r.Mismatched) == 0
}

func compareFields(a, b catalog.Attributes, fields []Field) []Field {
	var diff []Field
	for _, f := range fields {
		va, vb := a.Get(string(f)), b.Get(string(f))
		if va != "" && vb != "" && va != vb {
			diff = append(diff, f)
		}
	}
	return diff
}

func sortRecords(recs []catalog.InventoryRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
}
