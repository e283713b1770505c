package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a speed-dating session. TableCapacity bounds the number of
// matches per round; zero means the venue did not set a limit.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	OrganizerID   uuid.UUID  `json:"organizer_id"`
	TableCapacity int        `json:"table_capacity"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
}
