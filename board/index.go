package board

import (
	"sort"

	"contentflow-api/domain"
)

// StageIndex maps each workflow stage to the ordered IDs of the items
// currently in it. It is a pure derivation of an item collection: every item
// ID appears in exactly one bucket, and bucket membership always agrees with
// the item's own Stage field.
type StageIndex map[domain.Stage][]string

// BuildIndex groups items into per-stage ID lists. Within a stage items are
// ordered newest-first by creation time, ties broken by ID, which matches
// how the record store returns them. Items carrying an unknown stage tag are
// bucketed under the first stage rather than dropped.
func BuildIndex(items []domain.ContentItem) StageIndex {
	sorted := make([]domain.ContentItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	idx := make(StageIndex, len(domain.Stages()))
	for _, st := range domain.Stages() {
		idx[st] = []string{}
	}
	for _, it := range sorted {
		st := it.Stage
		if !st.Valid() {
			st = domain.FirstStage()
		}
		idx[st] = append(idx[st], it.ID)
	}
	return idx
}

// Occupies reports whether the given item sits at position i of stage st.
func (idx StageIndex) Occupies(id string, st domain.Stage, i int) bool {
	bucket := idx[st]
	return i >= 0 && i < len(bucket) && bucket[i] == id
}

// Count returns the total number of IDs across all buckets.
func (idx StageIndex) Count() int {
	n := 0
	for _, bucket := range idx {
		n += len(bucket)
	}
	return n
}
