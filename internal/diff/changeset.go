package diff

import "github.com/everstacklabs/pricewatch/internal/extract"

// ChangeSet represents the complete diff between the previous and the
// current snapshot of one provider.
type ChangeSet struct {
	Provider  string
	New       []ModelChange
	Updated   []ModelUpdate
	Removed   []ModelChange
	Unchanged int
}

// ModelChange represents a model that appeared or disappeared.
type ModelChange struct {
	ModelID  string
	Selected *extract.Row
}

// ModelUpdate represents a model present in both snapshots whose selected
// variant changed.
type ModelUpdate struct {
	ModelID string
	Changes []FieldChange
}

// FieldChange records a single field change for diff reporting.
type FieldChange struct {
	Field    string
	OldValue any
	NewValue any
	// Large is set on price moves beyond LargeDeltaThreshold.
	Large bool
}

// HasChanges reports whether the changeset has any modifications.
func (cs *ChangeSet) HasChanges() bool {
	return len(cs.New) > 0 || len(cs.Updated) > 0 || len(cs.Removed) > 0
}

// TotalChanged returns the count of new + updated + removed models.
func (cs *ChangeSet) TotalChanged() int {
	return len(cs.New) + len(cs.Updated) + len(cs.Removed)
}

// HasLargeChanges reports whether any price moved beyond the threshold.
func (cs *ChangeSet) HasLargeChanges() bool {
	for _, u := range cs.Updated {
		for _, c := range u.Changes {
			if c.Large {
				return true
			}
		}
	}
	return false
}
