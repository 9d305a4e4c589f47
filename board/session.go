package board

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"contentflow-api/domain"
)

// RecordStore is the durable backend the gateway commits to. All operations
// are scoped to the authenticated user.
type RecordStore interface {
	List(ctx context.Context, userID string) ([]domain.ContentItem, error)
	Insert(ctx context.Context, userID string, draft domain.ItemDraft) (domain.ContentItem, error)
	Update(ctx context.Context, userID, id string, patch domain.ItemPatch) (domain.ContentItem, error)
	Delete(ctx context.Context, userID, id string) error
}

// NotFoundError is implemented by record store errors meaning the target row
// no longer exists remotely.
type NotFoundError interface {
	error
	NotFound()
}

// Session is the persistence gateway for one user's board. Mutations apply
// to the in-memory repository immediately and commit to the record store in
// the background; a failed commit restores the pre-mutation snapshot and
// surfaces a notification. At most one commit per item is in flight at a
// time, enforced through per-item commit tokens, so moves against a single
// item can never land out of order.
type Session struct {
	userID     string
	store      RecordStore
	notifier   Notifier
	dispatcher *Dispatcher
	logger     *log.Logger

	mu       sync.Mutex
	repo     *Repository
	inflight map[string]uint64
	lastTok  uint64
	closed   bool
	commits  sync.WaitGroup
}

// NewSession creates an unloaded session for the given user.
func NewSession(userID string, store RecordStore, notifier Notifier, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Session{
		userID:     userID,
		store:      store,
		notifier:   notifier,
		dispatcher: NewDispatcher(notifier, logger),
		logger:     logger,
		repo:       NewRepository(),
		inflight:   make(map[string]uint64),
	}
}

// Load replaces the repository with server truth. Optimistic state and any
// pending commit resolutions are discarded: their tokens are dropped, so a
// late resolution finds its token gone and does nothing.
func (s *Session) Load(ctx context.Context) error {
	items, err := s.store.List(ctx, s.userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.repo.Load(items)
	s.inflight = make(map[string]uint64)
	return nil
}

// View returns the filtered board projection.
func (s *Session) View(f Filter) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ProjectView(s.repo.Items(), f)
}

// Items returns the collection newest-first, the order the board lists it.
func (s *Session) Items() []domain.ContentItem {
	s.mu.Lock()
	items := s.repo.Items()
	s.mu.Unlock()
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// Move validates a drag gesture, applies it optimistically and commits the
// stage change in the background. A no-op gesture returns nil without
// touching the item or issuing a remote write.
func (s *Session) Move(ctx context.Context, req MoveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	plan, err := PlanMove(BuildIndex(s.repo.Items()), req, time.Now().UTC())
	if err != nil {
		return err
	}
	if plan.NoOp {
		return nil
	}
	if _, busy := s.inflight[plan.ItemID]; busy {
		return ErrMoveInProgress
	}

	before, ok := s.repo.Get(plan.ItemID)
	if !ok {
		return ErrInvalidMove
	}
	stage := plan.NewStage
	patch := domain.ItemPatch{Stage: &stage}
	after := patch.Apply(before, plan.Time)
	s.repo.UpsertLocal(after)

	// The celebration is decided on the optimistic apply so the UI feels
	// immediate; a failed commit rolls the stage back but the edge already
	// happened from the user's point of view.
	s.dispatcher.Observe(ctx, s.userID, after, before.Stage, after.Stage)

	s.beginCommit(plan.ItemID, before, func(cctx context.Context) error {
		_, err := s.store.Update(cctx, s.userID, plan.ItemID, patch)
		return err
	})
	return nil
}

// Create applies a provisional item locally and inserts it in the
// background. The provisional ID is replaced by the server-assigned one when
// the insert resolves; on failure the provisional item is removed.
func (s *Session) Create(ctx context.Context, draft domain.ItemDraft) (domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ContentItem{}, ErrSessionClosed
	}

	now := time.Now().UTC()
	provisional := domain.ContentItem{
		ID:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Stage:       domain.FirstStage(),
		Priority:    draft.Priority,
		Platform:    draft.Platform,
		ContentType: draft.ContentType,
		DueDate:     draft.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.repo.UpsertLocal(provisional)

	tok := s.nextToken()
	s.inflight[provisional.ID] = tok
	s.commits.Add(1)
	go s.resolveCreate(provisional.ID, tok, draft)
	return provisional, nil
}

// Update applies a partial edit optimistically and commits it in the
// background. An empty patch changes nothing and issues no remote write.
func (s *Session) Update(ctx context.Context, id string, patch domain.ItemPatch) (domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ContentItem{}, ErrSessionClosed
	}

	before, ok := s.repo.Get(id)
	if !ok {
		return domain.ContentItem{}, ErrItemNotFound
	}
	if patch.Empty() {
		return before, nil
	}
	if _, busy := s.inflight[id]; busy {
		return domain.ContentItem{}, ErrMoveInProgress
	}

	after := patch.Apply(before, time.Now().UTC())
	s.repo.UpsertLocal(after)
	if patch.Stage != nil {
		s.dispatcher.Observe(ctx, s.userID, after, before.Stage, after.Stage)
	}

	s.beginCommit(id, before, func(cctx context.Context) error {
		_, err := s.store.Update(cctx, s.userID, id, patch)
		return err
	})
	return after, nil
}

// Delete removes the item optimistically and commits the delete in the
// background. A remote NotFound is treated as already done.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	before, ok := s.repo.Get(id)
	if !ok {
		return ErrItemNotFound
	}
	if _, busy := s.inflight[id]; busy {
		return ErrMoveInProgress
	}
	s.repo.RemoveLocal(id)

	s.beginCommit(id, before, func(cctx context.Context) error {
		return s.store.Delete(cctx, s.userID, id)
	})
	return nil
}

// Close tears the session down. Pending commit resolutions are discarded,
// but remote writes already issued run to completion.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.inflight = make(map[string]uint64)
	s.mu.Unlock()
}

// Wait blocks until every in-flight commit has resolved. Used on shutdown
// and in tests.
func (s *Session) Wait() {
	s.commits.Wait()
}

// beginCommit registers an in-flight commit for the item and runs it in the
// background. Caller must hold s.mu.
func (s *Session) beginCommit(id string, before domain.ContentItem, commit func(context.Context) error) {
	tok := s.nextToken()
	s.inflight[id] = tok
	s.commits.Add(1)
	go s.resolveCommit(id, tok, before, commit)
}

func (s *Session) nextToken() uint64 {
	s.lastTok++
	return s.lastTok
}

// resolveCommit runs the remote write and reconciles the outcome. The write
// itself is deliberately detached from any request context: the UI may have
// moved on, but the commit is allowed to finish (spec: fire-and-forget with
// respect to the UI lifecycle).
func (s *Session) resolveCommit(id string, tok uint64, before domain.ContentItem, commit func(context.Context) error) {
	defer s.commits.Done()
	err := commit(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.inflight[id] != tok {
		// Session torn down or reloaded since; this resolution is stale.
		return
	}
	delete(s.inflight, id)
	if err == nil {
		return
	}

	var nf NotFoundError
	if errors.As(err, &nf) {
		// The row is gone remotely; drop the stale local entry instead of
		// restoring it.
		s.repo.RemoveLocal(id)
		s.logger.WithFields(log.Fields{"user": s.userID, "item": id}).Info("item vanished remotely, dropping local copy")
		s.notify(domain.Notification{
			Kind:    domain.NotifyInfo,
			Message: "This item no longer exists and was removed from your board.",
			ItemID:  id,
		})
		return
	}

	s.repo.UpsertLocal(before)
	s.logger.WithError(err).WithFields(log.Fields{"user": s.userID, "item": id}).Error("commit failed, rolled back")
	s.notify(domain.Notification{
		Kind:    domain.NotifyError,
		Message: "Saving your change failed. The board was restored; please retry.",
		ItemID:  id,
	})
}

// resolveCreate reconciles an optimistic insert: the provisional row is
// swapped for the server-assigned one, or removed if the insert failed.
func (s *Session) resolveCreate(provisionalID string, tok uint64, draft domain.ItemDraft) {
	defer s.commits.Done()
	created, err := s.store.Insert(context.Background(), s.userID, draft)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.inflight[provisionalID] != tok {
		return
	}
	delete(s.inflight, provisionalID)
	if err != nil {
		s.repo.RemoveLocal(provisionalID)
		s.logger.WithError(err).WithField("user", s.userID).Error("create failed, removed provisional item")
		s.notify(domain.Notification{
			Kind:    domain.NotifyError,
			Message: "Creating the item failed; please retry.",
			ItemID:  provisionalID,
		})
		return
	}
	s.repo.RemoveLocal(provisionalID)
	s.repo.UpsertLocal(created)
}

func (s *Session) notify(n domain.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.Background(), s.userID, n)
}
