package board

import (
	"context"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"

	"contentflow-api/domain"
)

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []domain.Notification
	users []string
}

func (r *recordingNotifier) Notify(_ context.Context, userID string, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	r.users = append(r.users, userID)
}

func (r *recordingNotifier) byKind(kind domain.NotificationKind) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Notification{}
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func TestDispatcherFiresOnTerminalEntry(t *testing.T) {
	notifier := &recordingNotifier{}
	d := NewDispatcher(notifier, log.New())
	item := domain.ContentItem{ID: "a", Title: "teaser"}

	d.Observe(context.Background(), "user", item, domain.StageDraft, domain.StagePublished)

	celebrations := notifier.byKind(domain.NotifyCelebration)
	if len(celebrations) != 1 {
		t.Fatalf("expected exactly one celebration, got %d", len(celebrations))
	}
	if celebrations[0].ItemID != "a" {
		t.Fatalf("celebration references wrong item: %q", celebrations[0].ItemID)
	}
}

func TestDispatcherIsEdgeTriggered(t *testing.T) {
	notifier := &recordingNotifier{}
	d := NewDispatcher(notifier, log.New())
	item := domain.ContentItem{ID: "a", Title: "teaser"}
	ctx := context.Background()

	// draft -> published, published -> draft, draft -> published: two
	// distinct entries into the terminal stage, two celebrations.
	d.Observe(ctx, "user", item, domain.StageDraft, domain.StagePublished)
	d.Observe(ctx, "user", item, domain.StagePublished, domain.StageDraft)
	d.Observe(ctx, "user", item, domain.StageDraft, domain.StagePublished)

	if got := len(notifier.byKind(domain.NotifyCelebration)); got != 2 {
		t.Fatalf("expected two celebrations, got %d", got)
	}
}

func TestDispatcherIgnoresNonTerminalTransitions(t *testing.T) {
	notifier := &recordingNotifier{}
	d := NewDispatcher(notifier, log.New())
	item := domain.ContentItem{ID: "a"}
	ctx := context.Background()

	d.Observe(ctx, "user", item, domain.StageDraft, domain.StageReview)
	d.Observe(ctx, "user", item, domain.StageReview, domain.StageScheduled)
	// Already terminal: staying there is a level, not an edge.
	d.Observe(ctx, "user", item, domain.StagePublished, domain.StagePublished)

	if got := len(notifier.byKind(domain.NotifyCelebration)); got != 0 {
		t.Fatalf("expected no celebrations, got %d", got)
	}
}

func TestDispatcherNilNotifier(t *testing.T) {
	d := NewDispatcher(nil, nil)
	// Must not panic without a notifier wired.
	d.Observe(context.Background(), "user", domain.ContentItem{ID: "a"}, domain.StageDraft, domain.StagePublished)
}
