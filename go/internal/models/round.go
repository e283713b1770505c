package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatus defines the lifecycle state of a round.
type RoundStatus string

const (
	RoundStatusPending   RoundStatus = "pending"
	RoundStatusActive    RoundStatus = "active"
	RoundStatusBreak     RoundStatus = "break"
	RoundStatusCompleted RoundStatus = "completed"
	RoundStatusCancelled RoundStatus = "cancelled"
)

// IsLive reports whether the round is running its timer or its break.
func (s RoundStatus) IsLive() bool {
	return s == RoundStatusActive || s == RoundStatusBreak
}

// IsTerminal reports whether no further transitions are possible.
func (s RoundStatus) IsTerminal() bool {
	return s == RoundStatusCompleted || s == RoundStatusCancelled
}

// RoundStatusChange records a lifecycle transition to persist.
type RoundStatusChange struct {
	RoundID uuid.UUID
	Status  RoundStatus
	At      time.Time
}

// Round represents one timed seating period of an event.
type Round struct {
	ID                uuid.UUID   `json:"id"`
	EventID           uuid.UUID   `json:"event_id"`
	RoundNumber       int         `json:"round_number"`
	Name              string      `json:"name,omitempty"`
	DurationSeconds   int         `json:"duration_seconds"`
	BreakAfterSeconds int         `json:"break_after_seconds"`
	Status            RoundStatus `json:"status"`
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	EndedAt           *time.Time  `json:"ended_at,omitempty"`
}
