package board

import (
	"time"

	"contentflow-api/domain"
)

// MoveRequest is a drag-drop gesture as reported by the UI: where the user
// picked the item up and where they dropped it.
type MoveRequest struct {
	ItemID      string       `json:"itemId"`
	SourceStage domain.Stage `json:"sourceStage"`
	SourceIndex int          `json:"sourceIndex"`
	DestStage   domain.Stage `json:"destStage"`
	DestIndex   int          `json:"destIndex"`
}

// MovePlan is the validated effect of a gesture. Within-stage position is
// derived from timestamps rather than persisted, so the plan carries only
// the stage change and the time it was decided.
type MovePlan struct {
	ItemID   string
	NewStage domain.Stage
	Time     time.Time
	NoOp     bool
}

// PlanMove validates a gesture against the current stage index and computes
// the mutation it implies. It never mutates anything itself.
//
// A gesture whose source location does not hold the item is stale, e.g.
// another device moved it first; that fails with ErrInvalidMove. Dropping an
// item exactly where it was picked up is a no-op plan, not an error.
func PlanMove(idx StageIndex, req MoveRequest, now time.Time) (MovePlan, error) {
	if !req.SourceStage.Valid() || !req.DestStage.Valid() {
		return MovePlan{}, ErrInvalidMove
	}
	if !idx.Occupies(req.ItemID, req.SourceStage, req.SourceIndex) {
		return MovePlan{}, ErrInvalidMove
	}
	// Within-stage order is derived, not persisted, so any drop back into
	// the source stage has no persistable effect.
	if req.SourceStage == req.DestStage {
		return MovePlan{ItemID: req.ItemID, NewStage: req.DestStage, NoOp: true}, nil
	}
	return MovePlan{
		ItemID:   req.ItemID,
		NewStage: req.DestStage,
		Time:     now,
	}, nil
}
