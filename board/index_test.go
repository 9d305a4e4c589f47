package board

import (
	"fmt"
	"testing"
	"time"

	"contentflow-api/domain"
)

func itemAt(id string, stage domain.Stage, created time.Time) domain.ContentItem {
	return domain.ContentItem{
		ID:        id,
		Title:     "item " + id,
		Stage:     stage,
		Priority:  domain.PriorityMedium,
		Platform:  "instagram",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestBuildIndexPartitionsItems(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	items := []domain.ContentItem{
		itemAt("a", domain.StageDraft, base),
		itemAt("b", domain.StageDraft, base.Add(time.Minute)),
		itemAt("c", domain.StageReview, base.Add(2*time.Minute)),
		itemAt("d", domain.StagePublished, base.Add(3*time.Minute)),
	}

	idx := BuildIndex(items)
	if idx.Count() != len(items) {
		t.Fatalf("expected %d ids across buckets, got %d", len(items), idx.Count())
	}

	seen := map[string]int{}
	for _, st := range domain.Stages() {
		for _, id := range idx[st] {
			seen[id]++
		}
	}
	for _, it := range items {
		if seen[it.ID] != 1 {
			t.Fatalf("item %s appears %d times in the index", it.ID, seen[it.ID])
		}
	}

	// Newest first within a stage.
	if got := idx[domain.StageDraft]; len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("unexpected draft bucket: %v", got)
	}
	if got := idx[domain.StageReview]; len(got) != 1 || got[0] != "c" {
		t.Fatalf("unexpected review bucket: %v", got)
	}
	if got := idx[domain.StageScheduled]; len(got) != 0 {
		t.Fatalf("expected empty scheduled bucket, got %v", got)
	}
}

func TestBuildIndexTieBreaksOnID(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	items := []domain.ContentItem{
		itemAt("z", domain.StageDraft, ts),
		itemAt("a", domain.StageDraft, ts),
	}
	idx := BuildIndex(items)
	if got := idx[domain.StageDraft]; got[0] != "a" || got[1] != "z" {
		t.Fatalf("expected deterministic tie-break by id, got %v", got)
	}
}

func TestBuildIndexUnknownStageFallsBackToFirst(t *testing.T) {
	it := itemAt("x", domain.Stage("archived"), time.Now().UTC())
	idx := BuildIndex([]domain.ContentItem{it})
	if got := idx[domain.StageDraft]; len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected unknown stage bucketed under draft, got %v", idx)
	}
}

func TestOccupies(t *testing.T) {
	base := time.Now().UTC()
	idx := BuildIndex([]domain.ContentItem{
		itemAt("a", domain.StageDraft, base.Add(time.Second)),
		itemAt("b", domain.StageDraft, base),
	})
	if !idx.Occupies("a", domain.StageDraft, 0) {
		t.Fatal("a should occupy draft[0]")
	}
	if idx.Occupies("a", domain.StageDraft, 1) {
		t.Fatal("a should not occupy draft[1]")
	}
	if idx.Occupies("a", domain.StageReview, 0) {
		t.Fatal("a should not occupy review[0]")
	}
	if idx.Occupies("b", domain.StageDraft, -1) {
		t.Fatal("negative index never occupied")
	}
}

func TestBuildIndexIsPureDerivation(t *testing.T) {
	base := time.Now().UTC()
	items := make([]domain.ContentItem, 0, 10)
	for i := 0; i < 10; i++ {
		st := domain.Stages()[i%len(domain.Stages())]
		items = append(items, itemAt(fmt.Sprintf("it-%d", i), st, base.Add(time.Duration(i)*time.Second)))
	}
	first := BuildIndex(items)
	second := BuildIndex(items)
	for _, st := range domain.Stages() {
		if len(first[st]) != len(second[st]) {
			t.Fatalf("non-deterministic bucket size for %s", st)
		}
		for i := range first[st] {
			if first[st][i] != second[st][i] {
				t.Fatalf("non-deterministic order for %s", st)
			}
		}
	}
}
