package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchResponse is an attendee's answer about their table partner.
type MatchResponse string

const (
	MatchResponseYes        MatchResponse = "yes"
	MatchResponseNo         MatchResponse = "no"
	MatchResponseMaybe      MatchResponse = "maybe"
	MatchResponseNoResponse MatchResponse = "no_response"
)

// IsAnswered reports whether the attendee gave an actual answer.
func (r MatchResponse) IsAnswered() bool {
	return r == MatchResponseYes || r == MatchResponseNo || r == MatchResponseMaybe
}

// MatchSide identifies which seat of a match an attendee occupies.
type MatchSide int

const (
	SideA MatchSide = iota + 1
	SideB
)

// Match is one table's pairing for a round. The pairing is fixed once
// created; only the response fields change afterwards.
type Match struct {
	ID           uuid.UUID     `json:"id"`
	EventID      uuid.UUID     `json:"event_id"`
	RoundID      uuid.UUID     `json:"round_id"`
	TableNumber  int           `json:"table_number"`
	AttendeeAID  uuid.UUID     `json:"attendee_a_id"`
	AttendeeBID  uuid.UUID     `json:"attendee_b_id"`
	ResponseA    MatchResponse `json:"response_a"`
	ResponseB    MatchResponse `json:"response_b"`
	RespondedAtA *time.Time    `json:"responded_at_a,omitempty"`
	RespondedAtB *time.Time    `json:"responded_at_b,omitempty"`
	NoteA        *string       `json:"note_a,omitempty"`
	NoteB        *string       `json:"note_b,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Side returns the seat attendeeID occupies in the match.
func (m *Match) Side(attendeeID uuid.UUID) (MatchSide, bool) {
	switch attendeeID {
	case m.AttendeeAID:
		return SideA, true
	case m.AttendeeBID:
		return SideB, true
	}
	return 0, false
}

// BothResponded reports whether both attendees have answered.
func (m *Match) BothResponded() bool {
	return m.ResponseA.IsAnswered() && m.ResponseB.IsAnswered()
}

// IsMutual reports whether both attendees answered yes.
func (m *Match) IsMutual() bool {
	return m.ResponseA == MatchResponseYes && m.ResponseB == MatchResponseYes
}

// MatchDetail is a match joined with the round and categories it needs for
// reporting.
type MatchDetail struct {
	Match
	RoundNumber int      `json:"round_number"`
	CategoryA   Category `json:"category_a"`
	CategoryB   Category `json:"category_b"`
}
