// Package diff compares pricing snapshots between runs.
package diff

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/everstacklabs/pricewatch/internal/extract"
	"github.com/everstacklabs/pricewatch/internal/num"
	"github.com/everstacklabs/pricewatch/internal/snapshot"
)

// LargeDeltaThreshold is the relative price move flagged as large.
const LargeDeltaThreshold = 0.35

// Compute compares the current snapshot against the previous one. A nil
// previous snapshot reports every current model as new.
func Compute(previous, current *snapshot.ProviderSnapshot) *ChangeSet {
	cs := &ChangeSet{Provider: current.ProviderName}

	var old map[string]snapshot.Model
	if previous != nil {
		old = previous.Models
	}

	for _, id := range sortedIDs(current.Models) {
		cur := current.Models[id]
		prev, exists := old[id]
		if !exists {
			cs.New = append(cs.New, ModelChange{ModelID: id, Selected: cur.Selected})
			continue
		}

		changes := computeFieldChanges(prev.Selected, cur.Selected)
		if len(changes) > 0 {
			cs.Updated = append(cs.Updated, ModelUpdate{ModelID: id, Changes: changes})
		} else {
			cs.Unchanged++
		}
	}

	for _, id := range sortedIDs(old) {
		if _, ok := current.Models[id]; !ok {
			cs.Removed = append(cs.Removed, ModelChange{ModelID: id, Selected: old[id].Selected})
		}
	}

	return cs
}

func computeFieldChanges(prev, cur *extract.Row) []FieldChange {
	switch {
	case prev == nil && cur == nil:
		return nil
	case prev == nil:
		return []FieldChange{{Field: "selected", OldValue: nil, NewValue: label(cur)}}
	case cur == nil:
		return []FieldChange{{Field: "selected", OldValue: label(prev), NewValue: nil}}
	}

	var changes []FieldChange
	if label(prev) != label(cur) {
		changes = append(changes, FieldChange{Field: "selected", OldValue: label(prev), NewValue: label(cur)})
	}
	if c, ok := priceChange("promptCostPer1M", prev.PromptCostPer1M, cur.PromptCostPer1M); ok {
		changes = append(changes, c)
	}
	if c, ok := priceChange("completionCostPer1M", prev.CompletionCostPer1M, cur.CompletionCostPer1M); ok {
		changes = append(changes, c)
	}
	if prev.Status != cur.Status {
		changes = append(changes, FieldChange{Field: "status", OldValue: prev.Status.String(), NewValue: cur.Status.String()})
	}
	return changes
}

func priceChange(field string, prev, cur num.Float) (FieldChange, bool) {
	if prev == cur {
		return FieldChange{}, false
	}
	return FieldChange{
		Field:    field,
		OldValue: prev.String(),
		NewValue: cur.String(),
		Large:    isLarge(prev, cur),
	}, true
}

// isLarge reports a relative move beyond LargeDeltaThreshold. A price that
// appears, disappears or leaves zero always counts as large.
func isLarge(prev, cur num.Float) bool {
	if !prev.Valid || !cur.Valid {
		return true
	}
	if prev.Value == 0 {
		return cur.Value != 0
	}
	return math.Abs(cur.Value-prev.Value)/math.Abs(prev.Value) > LargeDeltaThreshold
}

// label names a variant by tag, falling back to endpoint name and then to
// the provider.
func label(r *extract.Row) string {
	switch {
	case r.Tag != "":
		return r.Tag
	case r.EndpointName != "":
		return r.EndpointName
	default:
		return r.ProviderName
	}
}

func sortedIDs(models map[string]snapshot.Model) []string {
	ids := make([]string, 0, len(models))
	for id := range models {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RenderSummary formats a changeset for the terminal.
func RenderSummary(cs *ChangeSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d new, %d updated, %d removed, %d unchanged\n",
		cs.Provider, len(cs.New), len(cs.Updated), len(cs.Removed), cs.Unchanged)

	for _, m := range cs.New {
		fmt.Fprintf(&b, "  + %s%s\n", m.ModelID, priceSuffix(m.Selected))
	}
	for _, u := range cs.Updated {
		fmt.Fprintf(&b, "  ~ %s\n", u.ModelID)
		for _, c := range u.Changes {
			flag := ""
			if c.Large {
				flag = " [large]"
			}
			fmt.Fprintf(&b, "      %s: %v -> %v%s\n", c.Field, display(c.OldValue), display(c.NewValue), flag)
		}
	}
	for _, m := range cs.Removed {
		fmt.Fprintf(&b, "  - %s\n", m.ModelID)
	}
	return b.String()
}

func priceSuffix(r *extract.Row) string {
	if r == nil {
		return " (unpriced)"
	}
	return fmt.Sprintf(" (%s / %s per 1M)", r.PromptCostPer1M, r.CompletionCostPer1M)
}

func display(v any) any {
	if v == nil {
		return "none"
	}
	return v
}
