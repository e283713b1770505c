package timer

import "errors"

var (
	ErrAlreadyStarted     = errors.New("timer already started")
	ErrInvalidPhase       = errors.New("operation not valid in current phase")
	ErrRoundAlreadyActive = errors.New("a round is already active for this event")
	ErrInvalidDuration    = errors.New("duration must be positive")
	ErrInvalidExtension   = errors.New("extension must be positive")
	ErrNotRunning         = errors.New("no live timer")
)

var ErrEmptyMessage = errors.New("message must not be empty")
