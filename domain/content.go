package domain

import "time"

// ContentItem is a single unit of work flowing through the pipeline board.
type ContentItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Stage       Stage      `json:"stage"`
	Priority    Priority   `json:"priority"`
	Platform    string     `json:"platform"`
	ContentType string     `json:"contentType,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ItemDraft is the client-supplied portion of a new item. The store assigns
// ID and timestamps; new items always start in the first stage.
type ItemDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Platform    string     `json:"platform"`
	ContentType string     `json:"contentType,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// ItemPatch is a partial update. Nil fields are left untouched.
type ItemPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Stage       *Stage     `json:"stage,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Platform    *string    `json:"platform,omitempty"`
	ContentType *string    `json:"contentType,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Apply copies the non-nil patch fields onto item and returns the result.
// Stage changes keep PublishedAt in step: entering the terminal stage stamps
// it, leaving the terminal stage clears it.
func (p ItemPatch) Apply(item ContentItem, now time.Time) ContentItem {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Stage != nil && *p.Stage != item.Stage {
		item.Stage = *p.Stage
		if item.Stage.Terminal() {
			ts := now
			item.PublishedAt = &ts
		} else {
			item.PublishedAt = nil
		}
	}
	if p.Priority != nil {
		item.Priority = *p.Priority
	}
	if p.Platform != nil {
		item.Platform = *p.Platform
	}
	if p.ContentType != nil {
		item.ContentType = *p.ContentType
	}
	if p.DueDate != nil {
		ts := *p.DueDate
		item.DueDate = &ts
	}
	item.UpdatedAt = now
	return item
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Stage == nil &&
		p.Priority == nil && p.Platform == nil && p.ContentType == nil &&
		p.DueDate == nil
}
