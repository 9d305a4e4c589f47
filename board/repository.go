package board

import "contentflow-api/domain"

// Repository owns the authoritative in-memory set of content items for one
// user session. It is a plain container: locking and the stage-bucket
// invariants live with the owning Session and the derived StageIndex, which
// is always rebuilt from this collection rather than patched in place.
type Repository struct {
	items map[string]domain.ContentItem
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{items: make(map[string]domain.ContentItem)}
}

// Load replaces the whole collection with server truth. Any optimistic
// local state is discarded.
func (r *Repository) Load(items []domain.ContentItem) {
	r.items = make(map[string]domain.ContentItem, len(items))
	for _, it := range items {
		r.items[it.ID] = it
	}
}

// UpsertLocal inserts or replaces an item by ID.
func (r *Repository) UpsertLocal(item domain.ContentItem) {
	r.items[item.ID] = item
}

// RemoveLocal deletes an item by ID. Removing an absent ID is a no-op.
func (r *Repository) RemoveLocal(id string) {
	delete(r.items, id)
}

// Get returns the item with the given ID.
func (r *Repository) Get(id string) (domain.ContentItem, bool) {
	it, ok := r.items[id]
	return it, ok
}

// Items returns a snapshot slice of the collection in unspecified order.
func (r *Repository) Items() []domain.ContentItem {
	out := make([]domain.ContentItem, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it)
	}
	return out
}

// Len reports the number of items held.
func (r *Repository) Len() int {
	return len(r.items)
}
