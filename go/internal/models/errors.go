package models

import "errors"

// ErrNotFound is wrapped by storage implementations when a requested row
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrRoundNotPending is returned when a round is claimed for starting after
// it has left the pending state.
var ErrRoundNotPending = errors.New("round is not pending")
