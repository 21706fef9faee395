package chat

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrContextConflict = errors.New("conversation context changed concurrently")
	ErrEmptyTurn       = errors.New("turn has no text and no usable attachment")
)

// ValidationError rejects a turn before anything is persisted or sent
// upstream.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }
