package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"contentflow-api/domain"
)

// Sessions is the registry of per-user board sessions. A session is created
// and loaded from the record store the first time a user touches the board,
// then reused for the life of the process.
type Sessions struct {
	store    RecordStore
	notifier Notifier
	logger   *log.Logger

	mu     sync.Mutex
	byUser map[string]*Session
}

// NewSessions creates an empty registry.
func NewSessions(store RecordStore, notifier Notifier, logger *log.Logger) *Sessions {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Sessions{
		store:    store,
		notifier: notifier,
		logger:   logger,
		byUser:   make(map[string]*Session),
	}
}

func (r *Sessions) session(ctx context.Context, userID string) (*Session, error) {
	r.mu.Lock()
	sess, ok := r.byUser[userID]
	r.mu.Unlock()
	if ok {
		return sess, nil
	}

	sess = NewSession(userID, r.store, r.notifier, r.logger)
	if err := sess.Load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byUser[userID]; ok {
		// Lost the race to another request; use the session it built.
		sess.Close()
		return existing, nil
	}
	r.byUser[userID] = sess
	return sess, nil
}

// View returns the user's filtered board projection.
func (r *Sessions) View(ctx context.Context, userID string, f Filter) (View, error) {
	sess, err := r.session(ctx, userID)
	if err != nil {
		return View{}, err
	}
	return sess.View(f), nil
}

// Items returns the user's items newest-first.
func (r *Sessions) Items(ctx context.Context, userID string) ([]domain.ContentItem, error) {
	sess, err := r.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Items(), nil
}

// Refresh reloads the user's board from server truth.
func (r *Sessions) Refresh(ctx context.Context, userID string) error {
	sess, err := r.session(ctx, userID)
	if err != nil {
		return err
	}
	return sess.Load(ctx)
}

// Move applies a drag gesture to the user's board.
func (r *Sessions) Move(ctx context.Context, userID string, req MoveRequest) error {
	sess, err := r.session(ctx, userID)
	if err != nil {
		return err
	}
	return sess.Move(ctx, req)
}

// Create adds a new item to the user's board.
func (r *Sessions) Create(ctx context.Context, userID string, draft domain.ItemDraft) (domain.ContentItem, error) {
	sess, err := r.session(ctx, userID)
	if err != nil {
		return domain.ContentItem{}, err
	}
	return sess.Create(ctx, draft)
}

// Update edits an item on the user's board.
func (r *Sessions) Update(ctx context.Context, userID, id string, patch domain.ItemPatch) (domain.ContentItem, error) {
	sess, err := r.session(ctx, userID)
	if err != nil {
		return domain.ContentItem{}, err
	}
	return sess.Update(ctx, id, patch)
}

// Delete removes an item from the user's board.
func (r *Sessions) Delete(ctx context.Context, userID, id string) error {
	sess, err := r.session(ctx, userID)
	if err != nil {
		return err
	}
	return sess.Delete(ctx, id)
}

// Close tears down every session and waits for in-flight commits.
func (r *Sessions) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.byUser))
	for _, s := range r.byUser {
		sessions = append(sessions, s)
	}
	r.byUser = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Wait()
		s.Close()
	}
}
