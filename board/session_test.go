package board

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"contentflow-api/domain"
)

type recordedUpdate struct {
	id    string
	patch domain.ItemPatch
}

type fakeStore struct {
	mu          sync.Mutex
	serverItems []domain.ContentItem
	insertItem  domain.ContentItem
	listErr     error
	insertErr   error
	updateErr   error
	deleteErr   error
	blockUpdate chan struct{}

	updates []recordedUpdate
	inserts []domain.ItemDraft
	deletes []string
}

func (f *fakeStore) List(context.Context, string) ([]domain.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.ContentItem, len(f.serverItems))
	copy(out, f.serverItems)
	return out, nil
}

func (f *fakeStore) Insert(_ context.Context, _ string, draft domain.ItemDraft) (domain.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, draft)
	if f.insertErr != nil {
		return domain.ContentItem{}, f.insertErr
	}
	return f.insertItem, nil
}

func (f *fakeStore) Update(_ context.Context, _ string, id string, patch domain.ItemPatch) (domain.ContentItem, error) {
	if f.blockUpdate != nil {
		<-f.blockUpdate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, recordedUpdate{id: id, patch: patch})
	if f.updateErr != nil {
		return domain.ContentItem{}, f.updateErr
	}
	return domain.ContentItem{ID: id}, nil
}

func (f *fakeStore) Delete(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

func (f *fakeStore) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type fakeNotFound struct{ id string }

func (e fakeNotFound) Error() string { return "not found: " + e.id }
func (e fakeNotFound) NotFound()     {}

func loadedSession(t *testing.T, store *fakeStore, notifier Notifier) *Session {
	t.Helper()
	s := NewSession("user", store, notifier, log.New())
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func boardFixture() []domain.ContentItem {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return []domain.ContentItem{
		itemAt("A", domain.StageDraft, base.Add(time.Minute)),
		itemAt("B", domain.StageReview, base),
	}
}

func moveReq(id string, from domain.Stage, fromIdx int, to domain.Stage, toIdx int) MoveRequest {
	return MoveRequest{ItemID: id, SourceStage: from, SourceIndex: fromIdx, DestStage: to, DestIndex: toIdx}
}

func TestMoveAppliesOptimisticallyAndCommitsOnce(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture()}
	notifier := &recordingNotifier{}
	s := loadedSession(t, store, notifier)

	if err := s.Move(context.Background(), moveReq("A", domain.StageDraft, 0, domain.StagePublished, 0)); err != nil {
		t.Fatalf("move: %v", err)
	}

	// Optimistic state is visible before the commit resolves.
	view := s.View(Filter{})
	if got := view.Index[domain.StageDraft]; len(got) != 0 {
		t.Fatalf("expected empty draft bucket, got %v", got)
	}
	if got := view.Index[domain.StageReview]; len(got) != 1 || got[0] != "B" {
		t.Fatalf("unexpected review bucket: %v", got)
	}
	if got := view.Index[domain.StagePublished]; len(got) != 1 || got[0] != "A" {
		t.Fatalf("unexpected published bucket: %v", got)
	}

	s.Wait()
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.updates) != 1 {
		t.Fatalf("expected exactly one update call, got %d", len(store.updates))
	}
	up := store.updates[0]
	if up.id != "A" || up.patch.Stage == nil || *up.patch.Stage != domain.StagePublished {
		t.Fatalf("unexpected update: %#v", up)
	}
	if got := len(notifier.byKind(domain.NotifyCelebration)); got != 1 {
		t.Fatalf("expected one celebration for A, got %d", got)
	}
}

func TestMoveStaleGestureLeavesStateUntouched(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture()}
	s := loadedSession(t, store, &recordingNotifier{})

	before := s.Items()
	err := s.Move(context.Background(), moveReq("A", domain.StageReview, 0, domain.StagePublished, 0))
	if !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
	s.Wait()

	if store.updateCount() != 0 {
		t.Fatal("stale gesture must not issue remote calls")
	}
	if !reflect.DeepEqual(before, s.Items()) {
		t.Fatal("repository changed on a rejected move")
	}
}

func TestMoveNoOpIssuesNoWriteAndKeepsUpdatedAt(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture()}
	s := loadedSession(t, store, &recordingNotifier{})

	itemBefore, _ := findItem(s.Items(), "A")
	if err := s.Move(context.Background(), moveReq("A", domain.StageDraft, 0, domain.StageDraft, 0)); err != nil {
		t.Fatalf("no-op move errored: %v", err)
	}
	s.Wait()

	if store.updateCount() != 0 {
		t.Fatal("no-op move must not issue a remote write")
	}
	itemAfter, _ := findItem(s.Items(), "A")
	if !itemAfter.UpdatedAt.Equal(itemBefore.UpdatedAt) {
		t.Fatal("no-op move must not refresh updatedAt")
	}
}

func TestMoveRollsBackOnPersistenceFailure(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture(), updateErr: errors.New("remote unavailable")}
	notifier := &recordingNotifier{}
	s := loadedSession(t, store, notifier)

	itemBefore, _ := findItem(s.Items(), "A")
	if err := s.Move(context.Background(), moveReq("A", domain.StageDraft, 0, domain.StageReview, 0)); err != nil {
		t.Fatalf("move: %v", err)
	}
	s.Wait()

	itemAfter, ok := findItem(s.Items(), "A")
	if !ok {
		t.Fatal("item A vanished after rollback")
	}
	if !reflect.DeepEqual(itemBefore, itemAfter) {
		t.Fatalf("rollback not bit-for-bit: before=%#v after=%#v", itemBefore, itemAfter)
	}
	if got := len(notifier.byKind(domain.NotifyError)); got != 1 {
		t.Fatalf("expected exactly one failure notification, got %d", got)
	}
}

func TestSecondMoveForSameItemRejectedWhilePending(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture(), blockUpdate: make(chan struct{})}
	s := loadedSession(t, store, &recordingNotifier{})

	if err := s.Move(context.Background(), moveReq("A", domain.StageDraft, 0, domain.StageReview, 0)); err != nil {
		t.Fatalf("first move: %v", err)
	}

	// A now sits in review (optimistically) with a commit pending.
	err := s.Move(context.Background(), moveReq("A", domain.StageReview, 0, domain.StagePublished, 0))
	if !errors.Is(err, ErrMoveInProgress) {
		t.Fatalf("expected ErrMoveInProgress, got %v", err)
	}

	close(store.blockUpdate)
	s.Wait()

	// Once the commit resolved the item can move again.
	if err := s.Move(context.Background(), moveReq("A", domain.StageReview, 0, domain.StagePublished, 0)); err != nil {
		t.Fatalf("move after settle: %v", err)
	}
	s.Wait()
}

func TestMovesOnDifferentItemsRunConcurrently(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture(), blockUpdate: make(chan struct{})}
	s := loadedSession(t, store, &recordingNotifier{})

	if err := s.Move(context.Background(), moveReq("A", domain.StageDraft, 0, domain.StageReview, 0)); err != nil {
		t.Fatalf("move A: %v", err)
	}
	// B's commit is independent of A's pending one.
	if err := s.Move(context.Background(), moveReq("B", domain.StageReview, 0, domain.StageScheduled, 0)); err != nil {
		t.Fatalf("move B: %v", err)
	}

	close(store.blockUpdate)
	s.Wait()
	if store.updateCount() != 2 {
		t.Fatalf("expected two commits, got %d", store.updateCount())
	}
}

func TestCelebrationFiresPerTerminalEntry(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture()}
	notifier := &recordingNotifier{}
	s := loadedSession(t, store, notifier)
	ctx := context.Background()

	steps := []MoveRequest{
		moveReq("A", domain.StageDraft, 0, domain.StagePublished, 0),
		moveReq("A", domain.StagePublished, 0, domain.StageDraft, 0),
		moveReq("A", domain.StageDraft, 0, domain.StagePublished, 0),
	}
	for i, req := range steps {
		if err := s.Move(ctx, req); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		s.Wait()
	}

	if got := len(notifier.byKind(domain.NotifyCelebration)); got != 2 {
		t.Fatalf("expected exactly two celebrations, got %d", got)
	}
}

func TestIndexStaysAPartitionThroughMutations(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture()}
	s := loadedSession(t, store, &recordingNotifier{})
	ctx := context.Background()

	_ = s.Move(ctx, moveReq("A", domain.StageDraft, 0, domain.StageScheduled, 0))
	s.Wait()
	_, _ = s.Update(ctx, "B", domain.ItemPatch{Priority: priorityPtr(domain.PriorityUrgent)})
	s.Wait()
	_ = s.Move(ctx, moveReq("B", domain.StageReview, 0, domain.StageScheduled, 0))
	s.Wait()

	items := s.Items()
	idx := BuildIndex(items)
	if idx.Count() != len(items) {
		t.Fatalf("index holds %d ids for %d items", idx.Count(), len(items))
	}
	seen := map[string]bool{}
	for _, st := range domain.Stages() {
		for _, id := range idx[st] {
			if seen[id] {
				t.Fatalf("id %s appears in two buckets", id)
			}
			seen[id] = true
			it, ok := findItem(items, id)
			if !ok {
				t.Fatalf("indexed id %s missing from repository", id)
			}
			if it.Stage != st {
				t.Fatalf("item %s in bucket %s but has stage %s", id, st, it.Stage)
			}
		}
	}
	for _, it := range items {
		if !seen[it.ID] {
			t.Fatalf("item %s missing from index", it.ID)
		}
	}
}

func TestUpdateNotFoundDropsLocalCopy(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture(), updateErr: fakeNotFound{id: "A"}}
	notifier := &recordingNotifier{}
	s := loadedSession(t, store, notifier)

	if _, err := s.Update(context.Background(), "A", domain.ItemPatch{Title: strPtr("renamed")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	s.Wait()

	if _, ok := findItem(s.Items(), "A"); ok {
		t.Fatal("expected stale item removed after remote NotFound")
	}
	if got := len(notifier.byKind(domain.NotifyInfo)); got != 1 {
		t.Fatalf("expected one info notice, got %d", got)
	}
}

func TestCreateSwapsProvisionalForServerItem(t *testing.T) {
	server := itemAt("srv-1", domain.StageDraft, time.Now().UTC())
	store := &fakeStore{insertItem: server}
	s := loadedSession(t, store, &recordingNotifier{})

	draft := domain.ItemDraft{Title: "new reel", Priority: domain.PriorityMedium, Platform: "tiktok"}
	provisional, err := s.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if provisional.ID == "" || provisional.ID == "srv-1" {
		t.Fatalf("expected a provisional id, got %q", provisional.ID)
	}
	if provisional.Stage != domain.StageDraft {
		t.Fatalf("new items must start in draft, got %s", provisional.Stage)
	}

	s.Wait()
	if _, ok := findItem(s.Items(), provisional.ID); ok {
		t.Fatal("provisional item should be gone after reconcile")
	}
	if _, ok := findItem(s.Items(), "srv-1"); !ok {
		t.Fatal("server item missing after reconcile")
	}
}

func TestCreateFailureRemovesProvisionalItem(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("remote unavailable")}
	notifier := &recordingNotifier{}
	s := loadedSession(t, store, notifier)

	provisional, err := s.Create(context.Background(), domain.ItemDraft{Title: "doomed", Priority: domain.PriorityLow, Platform: "twitter"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Wait()

	if _, ok := findItem(s.Items(), provisional.ID); ok {
		t.Fatal("provisional item should be rolled back on insert failure")
	}
	if got := len(notifier.byKind(domain.NotifyError)); got != 1 {
		t.Fatalf("expected one failure notification, got %d", got)
	}
}

func TestDeleteRollsBackOnFailure(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture(), deleteErr: errors.New("remote unavailable")}
	notifier := &recordingNotifier{}
	s := loadedSession(t, store, notifier)

	itemBefore, _ := findItem(s.Items(), "B")
	if err := s.Delete(context.Background(), "B"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := findItem(s.Items(), "B"); ok {
		t.Fatal("delete should apply optimistically")
	}

	s.Wait()
	itemAfter, ok := findItem(s.Items(), "B")
	if !ok {
		t.Fatal("item should be restored after failed delete")
	}
	if !reflect.DeepEqual(itemBefore, itemAfter) {
		t.Fatal("restored item differs from pre-delete snapshot")
	}
	if got := len(notifier.byKind(domain.NotifyError)); got != 1 {
		t.Fatalf("expected one failure notification, got %d", got)
	}
}

func TestLoadDiscardsPendingResolutions(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture(), blockUpdate: make(chan struct{}), updateErr: errors.New("remote unavailable")}
	notifier := &recordingNotifier{}
	s := loadedSession(t, store, notifier)

	if err := s.Move(context.Background(), moveReq("A", domain.StageDraft, 0, domain.StageReview, 0)); err != nil {
		t.Fatalf("move: %v", err)
	}

	// Manual refresh while the commit hangs: server truth wins and the
	// late failure must not roll anything back afterwards.
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	close(store.blockUpdate)
	s.Wait()

	item, ok := findItem(s.Items(), "A")
	if !ok {
		t.Fatal("item A missing after reload")
	}
	if item.Stage != domain.StageDraft {
		t.Fatalf("expected server truth (draft) after reload, got %s", item.Stage)
	}
	if got := len(notifier.byKind(domain.NotifyError)); got != 0 {
		t.Fatalf("discarded resolution must not notify, got %d errors", got)
	}
}

func TestClosedSessionRejectsMutations(t *testing.T) {
	store := &fakeStore{serverItems: boardFixture()}
	s := loadedSession(t, store, &recordingNotifier{})
	s.Close()

	if err := s.Move(context.Background(), moveReq("A", domain.StageDraft, 0, domain.StageReview, 0)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := s.Create(context.Background(), domain.ItemDraft{Title: "x", Platform: "p"}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func findItem(items []domain.ContentItem, id string) (domain.ContentItem, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return domain.ContentItem{}, false
}

func strPtr(s string) *string { return &s }

func priorityPtr(p domain.Priority) *domain.Priority { return &p }
