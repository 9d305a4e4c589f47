package board

import (
	"strings"

	"contentflow-api/domain"
)

// Filter narrows the board view. The zero value matches everything.
type Filter struct {
	Query      string
	Stages     []domain.Stage
	Priorities []domain.Priority
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return f.Query == "" && len(f.Stages) == 0 && len(f.Priorities) == 0
}

// Matches reports whether the item passes the filter. The query is a
// case-insensitive substring match over title and description.
func (f Filter) Matches(item domain.ContentItem) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		title := strings.ToLower(item.Title)
		desc := strings.ToLower(item.Description)
		if !strings.Contains(title, q) && !strings.Contains(desc, q) {
			return false
		}
	}
	if len(f.Stages) > 0 && !containsStage(f.Stages, item.Stage) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, item.Priority) {
		return false
	}
	return true
}

// ApplyFilter returns the items passing the filter, order preserved.
// It never mutates its input.
func ApplyFilter(items []domain.ContentItem, f Filter) []domain.ContentItem {
	if f.Empty() {
		out := make([]domain.ContentItem, len(items))
		copy(out, items)
		return out
	}
	out := make([]domain.ContentItem, 0, len(items))
	for _, it := range items {
		if f.Matches(it) {
			out = append(out, it)
		}
	}
	return out
}

func containsStage(stages []domain.Stage, st domain.Stage) bool {
	for _, s := range stages {
		if s == st {
			return true
		}
	}
	return false
}

func containsPriority(priorities []domain.Priority, p domain.Priority) bool {
	for _, pr := range priorities {
		if pr == p {
			return true
		}
	}
	return false
}

// View is a read-only projection of the board: the stage index of the
// filtered collection plus the matching items keyed by ID.
type View struct {
	Index StageIndex
	Items map[string]domain.ContentItem
}

// ProjectView filters items and derives a stage index over the survivors.
// With an empty filter the index equals BuildIndex over the full collection.
func ProjectView(items []domain.ContentItem, f Filter) View {
	filtered := ApplyFilter(items, f)
	byID := make(map[string]domain.ContentItem, len(filtered))
	for _, it := range filtered {
		byID[it.ID] = it
	}
	return View{Index: BuildIndex(filtered), Items: byID}
}
