package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

var (
	ErrUnknownMatch    = errors.New("unknown match")
	ErrNotParticipant  = errors.New("attendee is not part of this match")
	ErrInvalidResponse = errors.New("invalid response")
)

// ResponseUpdate is the single-row write for one side of a match.
type ResponseUpdate struct {
	MatchID     uuid.UUID
	Side        models.MatchSide
	Response    models.MatchResponse
	Note        *string
	RespondedAt time.Time
}

// Repository is the storage the aggregator reads and writes through.
// UpdateMatchResponse must apply the update atomically against the stored
// row, completing the match with RespondedAt when both sides are answered
// afterwards and no completion time exists yet (see ApplyResponse).
type Repository interface {
	GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error)
	UpdateMatchResponse(ctx context.Context, update ResponseUpdate) (*models.Match, error)
	ListEventMatches(ctx context.Context, eventID uuid.UUID) ([]models.MatchDetail, error)
}

// Aggregator records attendee responses and derives event statistics.
type Aggregator struct {
	repo  Repository
	clock clockwork.Clock
}

func NewAggregator(repo Repository, clock clockwork.Clock) *Aggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Aggregator{repo: repo, clock: clock}
}

// RecordResponse stores attendeeID's answer for the match. Submitting again
// overwrites the previous answer and refreshes its timestamp.
func (a *Aggregator) RecordResponse(
	ctx context.Context,
	matchID, attendeeID uuid.UUID,
	response models.MatchResponse,
	note *string,
) (*models.Match, error) {
	if !response.IsAnswered() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResponse, response)
	}

	match, err := a.repo.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
		}
		return nil, fmt.Errorf("failed to load match: %w", err)
	}

	side, ok := match.Side(attendeeID)
	if !ok {
		return nil, fmt.Errorf("%w: attendee %s, match %s", ErrNotParticipant, attendeeID, matchID)
	}

	update := ResponseUpdate{
		MatchID:     matchID,
		Side:        side,
		Response:    response,
		Note:        note,
		RespondedAt: a.clock.Now(),
	}
	updated, err := a.repo.UpdateMatchResponse(ctx, update)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
		}
		return nil, fmt.Errorf("failed to update match response: %w", err)
	}

	log.Debug().
		Str("match_id", matchID.String()).
		Str("attendee_id", attendeeID.String()).
		Str("response", string(response)).
		Bool("completed", updated.CompletedAt != nil).
		Msg("recorded match response")

	return updated, nil
}

// ApplyResponse returns m with the update applied to the right side. A
// match whose sides are both answered afterwards keeps its first
// completion time, or takes RespondedAt if it had none.
func ApplyResponse(m models.Match, u ResponseUpdate) models.Match {
	at := u.RespondedAt
	switch u.Side {
	case models.SideA:
		m.ResponseA = u.Response
		m.RespondedAtA = &at
		if u.Note != nil {
			m.NoteA = u.Note
		}
	case models.SideB:
		m.ResponseB = u.Response
		m.RespondedAtB = &at
		if u.Note != nil {
			m.NoteB = u.Note
		}
	}
	if m.CompletedAt == nil && m.BothResponded() {
		m.CompletedAt = &at
	}
	return m
}

// MutualMatches returns the event's matches where both attendees said yes.
func (a *Aggregator) MutualMatches(ctx context.Context, eventID uuid.UUID) ([]models.MatchDetail, error) {
	matches, err := a.repo.ListEventMatches(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event matches: %w", err)
	}
	var out []models.MatchDetail
	for _, m := range matches {
		if m.IsMutual() {
			out = append(out, m)
		}
	}
	return out, nil
}
