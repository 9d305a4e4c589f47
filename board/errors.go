package board

import "errors"

var (
	// ErrInvalidMove means the gesture described a source location the item
	// no longer occupies. The caller should re-derive its view and discard
	// the gesture; the repository is left untouched.
	ErrInvalidMove = errors.New("invalid move: item not at source location")

	// ErrMoveInProgress means the item already has a commit in flight. The
	// request is rejected rather than queued so moves for one item never
	// apply out of order.
	ErrMoveInProgress = errors.New("move in progress for item")

	// ErrItemNotFound means the referenced item is not in the repository.
	ErrItemNotFound = errors.New("item not found")

	// ErrSessionClosed means the session was torn down; no further
	// mutations are accepted.
	ErrSessionClosed = errors.New("board session closed")
)
