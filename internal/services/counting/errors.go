package counting

import "errors"

var (
	ErrSessionAlreadyActive = errors.New("a counting session is already active for this restaurant")
	ErrNoActiveSession      = errors.New("no active counting session for this restaurant")
	ErrSessionClosed        = errors.New("session is already completed or cancelled")
	ErrItemNotFound         = errors.New("item does not belong to this session")
	ErrInvalidCount         = errors.New("count must be a number")
	ErrNoItemsCounted       = errors.New("cannot complete a session with no counted items")
)
