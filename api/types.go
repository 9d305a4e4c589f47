package api

import (
	"context"

	"contentflow-api/board"
	"contentflow-api/domain"
)

// BoardService is the board engine as the handlers see it.
type BoardService interface {
	View(ctx context.Context, userID string, f board.Filter) (board.View, error)
	Items(ctx context.Context, userID string) ([]domain.ContentItem, error)
	Refresh(ctx context.Context, userID string) error
	Move(ctx context.Context, userID string, req board.MoveRequest) error
	Create(ctx context.Context, userID string, draft domain.ItemDraft) (domain.ContentItem, error)
	Update(ctx context.Context, userID, id string, patch domain.ItemPatch) (domain.ContentItem, error)
	Delete(ctx context.Context, userID, id string) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of replayed mutation requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the mutation is
	// rejected so the client may retry with the same key.
	Remove(ctx context.Context, userID, key string) error
}
