package domain

// Stage is one step of the fixed content workflow. Values are stable string
// tags on the wire so the enumeration can grow without breaking stored rows.
type Stage string

const (
	StageDraft      Stage = "draft"
	StageInProgress Stage = "in-progress"
	StageReview     Stage = "review"
	StageScheduled  Stage = "scheduled"
	StagePublished  Stage = "published"
)

// stageOrder defines the display ordering of the workflow. Moves may go in
// either direction; the order is not a transition constraint.
var stageOrder = []Stage{
	StageDraft,
	StageInProgress,
	StageReview,
	StageScheduled,
	StagePublished,
}

// Stages returns the workflow stages in display order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Valid reports whether s is a known workflow stage.
func (s Stage) Valid() bool {
	switch s {
	case StageDraft, StageInProgress, StageReview, StageScheduled, StagePublished:
		return true
	}
	return false
}

// Terminal reports whether s is the final workflow stage.
func (s Stage) Terminal() bool {
	return s == StagePublished
}

// Ordinal returns the position of s in the workflow ordering, or -1 for an
// unknown stage.
func (s Stage) Ordinal() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// FirstStage is where newly created items start.
func FirstStage() Stage {
	return stageOrder[0]
}

// TerminalStage is the last stage of the workflow.
func TerminalStage() Stage {
	return stageOrder[len(stageOrder)-1]
}
