package matching

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientRoster = errors.New("insufficient roster")
	ErrCapacity           = errors.New("table capacity exceeded")
)

// InsufficientRosterError is returned when the roster holds fewer than two
// attendees that could be seated with anyone.
type InsufficientRosterError struct {
	Roster   int
	Eligible int
}

func (e *InsufficientRosterError) Error() string {
	return fmt.Sprintf("insufficient roster: %d attendees, %d with a compatible partner", e.Roster, e.Eligible)
}

func (e *InsufficientRosterError) Is(target error) bool { return target == ErrInsufficientRoster }

// CapacityError is returned when a round needs more tables than the venue has.
type CapacityError struct {
	Required int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("round needs %d tables but capacity is %d", e.Required, e.Capacity)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }
