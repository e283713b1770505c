package results

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// Tally holds the counts and rates shared by every statistics breakdown.
type Tally struct {
	Matches           int     `json:"matches"`
	ResponsesReceived int     `json:"responses_received"`
	CompletedMatches  int     `json:"completed_matches"`
	MutualMatches     int     `json:"mutual_matches"`
	ResponseRate      float64 `json:"response_rate"`
	MutualMatchRate   float64 `json:"mutual_match_rate"`
	SuccessRate       float64 `json:"success_rate"`
}

func (t *Tally) add(m *models.Match) {
	t.Matches++
	if m.ResponseA.IsAnswered() {
		t.ResponsesReceived++
	}
	if m.ResponseB.IsAnswered() {
		t.ResponsesReceived++
	}
	if m.BothResponded() {
		t.CompletedMatches++
	}
	if m.IsMutual() {
		t.MutualMatches++
	}
}

func (t *Tally) finish() {
	t.ResponseRate = ratio(t.ResponsesReceived, 2*t.Matches)
	t.MutualMatchRate = ratio(t.MutualMatches, t.Matches)
	t.SuccessRate = ratio(t.MutualMatches, t.CompletedMatches)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// RoundStatistics is the tally for one round.
type RoundStatistics struct {
	RoundID     uuid.UUID `json:"round_id"`
	RoundNumber int       `json:"round_number"`
	Tally
}

// AttendeeStatistics is how one attendee answered across their matches.
type AttendeeStatistics struct {
	AttendeeID     uuid.UUID       `json:"attendee_id"`
	Category       models.Category `json:"category"`
	TotalMatches   int             `json:"total_matches"`
	ResponsesGiven int             `json:"responses_given"`
	YesResponses   int             `json:"yes_responses"`
	ResponseRate   float64         `json:"response_rate"`
	YesRate        float64         `json:"yes_rate"`
}

func (s *AttendeeStatistics) add(r models.MatchResponse) {
	s.TotalMatches++
	if r.IsAnswered() {
		s.ResponsesGiven++
	}
	if r == models.MatchResponseYes {
		s.YesResponses++
	}
}

// Statistics summarises responses across an event.
type Statistics struct {
	EventID uuid.UUID `json:"event_id"`
	Tally
	TotalAttendees       int                  `json:"total_attendees"`
	ByCategoryPair       map[string]Tally     `json:"by_category_pair"`
	ByRound              []RoundStatistics    `json:"by_round"`
	ByAttendee           []AttendeeStatistics `json:"by_attendee"`
	AverageResponseDelay time.Duration        `json:"average_response_delay"`
	GeneratedAt          time.Time            `json:"generated_at"`
}

// ComputeEventStatistics aggregates every match of the event. It only reads,
// so it may run while responses are being written.
func (a *Aggregator) ComputeEventStatistics(ctx context.Context, eventID uuid.UUID) (*Statistics, error) {
	matches, err := a.repo.ListEventMatches(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event matches: %w", err)
	}
	return summarize(eventID, matches, a.clock.Now()), nil
}

func summarize(eventID uuid.UUID, matches []models.MatchDetail, now time.Time) *Statistics {
	stats := &Statistics{
		EventID:        eventID,
		ByCategoryPair: make(map[string]Tally),
		GeneratedAt:    now,
	}
	byRound := make(map[uuid.UUID]*RoundStatistics)
	byAttendee := make(map[uuid.UUID]*AttendeeStatistics)
	attendee := func(id uuid.UUID, c models.Category) *AttendeeStatistics {
		s, ok := byAttendee[id]
		if !ok {
			s = &AttendeeStatistics{AttendeeID: id, Category: c}
			byAttendee[id] = s
		}
		return s
	}
	var delayTotal time.Duration
	var delayCount int

	for i := range matches {
		m := &matches[i]
		stats.Tally.add(&m.Match)

		key := models.CategoryPairKey(m.CategoryA, m.CategoryB)
		pair := stats.ByCategoryPair[key]
		pair.add(&m.Match)
		stats.ByCategoryPair[key] = pair

		rs, ok := byRound[m.RoundID]
		if !ok {
			rs = &RoundStatistics{RoundID: m.RoundID, RoundNumber: m.RoundNumber}
			byRound[m.RoundID] = rs
		}
		rs.add(&m.Match)

		attendee(m.AttendeeAID, m.CategoryA).add(m.ResponseA)
		attendee(m.AttendeeBID, m.CategoryB).add(m.ResponseB)

		for _, at := range []*time.Time{m.RespondedAtA, m.RespondedAtB} {
			if at != nil && !m.CreatedAt.IsZero() && at.After(m.CreatedAt) {
				delayTotal += at.Sub(m.CreatedAt)
				delayCount++
			}
		}
	}

	stats.Tally.finish()
	for key, pair := range stats.ByCategoryPair {
		pair.finish()
		stats.ByCategoryPair[key] = pair
	}
	for _, rs := range byRound {
		rs.finish()
		stats.ByRound = append(stats.ByRound, *rs)
	}
	sort.Slice(stats.ByRound, func(i, j int) bool {
		return stats.ByRound[i].RoundNumber < stats.ByRound[j].RoundNumber
	})

	stats.TotalAttendees = len(byAttendee)
	stats.ByAttendee = make([]AttendeeStatistics, 0, len(byAttendee))
	for _, s := range byAttendee {
		s.ResponseRate = ratio(s.ResponsesGiven, s.TotalMatches)
		s.YesRate = ratio(s.YesResponses, s.ResponsesGiven)
		stats.ByAttendee = append(stats.ByAttendee, *s)
	}
	// Most responsive first; ids keep the order stable.
	sort.Slice(stats.ByAttendee, func(i, j int) bool {
		a, b := stats.ByAttendee[i], stats.ByAttendee[j]
		if a.ResponseRate != b.ResponseRate {
			return a.ResponseRate > b.ResponseRate
		}
		return a.AttendeeID.String() < b.AttendeeID.String()
	})
	if delayCount > 0 {
		stats.AverageResponseDelay = delayTotal / time.Duration(delayCount)
	}
	return stats
}
