package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/matching"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db: db}
}

func withTx(tx pgx.Tx) *queries {
	return newQueries(tx)
}

// notFound maps pgx.ErrNoRows onto models.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return err
}

const getEvent = `
SELECT id, name, organizer_id, table_capacity, starts_at
FROM events
WHERE id = $1`

func (q *queries) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var e models.Event
	err := q.db.QueryRow(ctx, getEvent, id).Scan(&e.ID, &e.Name, &e.OrganizerID, &e.TableCapacity, &e.StartsAt)
	if err != nil {
		return nil, notFound(err, "event "+id.String())
	}
	return &e, nil
}

const getRound = `
SELECT id, event_id, round_number, name, duration_seconds, break_after_seconds,
       status, started_at, ended_at
FROM rounds
WHERE id = $1`

func (q *queries) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	var r models.Round
	err := q.db.QueryRow(ctx, getRound, id).Scan(
		&r.ID, &r.EventID, &r.RoundNumber, &r.Name, &r.DurationSeconds, &r.BreakAfterSeconds,
		&r.Status, &r.StartedAt, &r.EndedAt,
	)
	if err != nil {
		return nil, notFound(err, "round "+id.String())
	}
	return &r, nil
}

const listAttendees = `
SELECT id, event_id, display_name, category
FROM attendees
WHERE event_id = $1 AND checked_in
ORDER BY id`

func (q *queries) ListAttendees(ctx context.Context, eventID uuid.UUID) ([]models.Attendee, error) {
	rows, err := q.db.Query(ctx, listAttendees, eventID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Attendee, error) {
		var a models.Attendee
		err := row.Scan(&a.ID, &a.EventID, &a.DisplayName, &a.Category)
		return a, err
	})
}

const listPastPairings = `
SELECT m.attendee_a_id, m.attendee_b_id, r.round_number
FROM matches m
JOIN rounds r ON r.id = m.round_id
WHERE m.event_id = $1 AND r.status <> 'cancelled'`

func (q *queries) ListPastPairings(ctx context.Context, eventID uuid.UUID) ([]models.PastPairing, error) {
	rows, err := q.db.Query(ctx, listPastPairings, eventID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PastPairing, error) {
		var p models.PastPairing
		err := row.Scan(&p.AttendeeAID, &p.AttendeeBID, &p.RoundNumber)
		return p, err
	})
}

const countRoundMatches = `SELECT count(*) FROM matches WHERE round_id = $1`

func (q *queries) CountRoundMatches(ctx context.Context, roundID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, countRoundMatches, roundID).Scan(&n)
	return n, err
}

const insertMatch = `
INSERT INTO matches (
  id, event_id, round_id, table_number, attendee_a_id, attendee_b_id,
  response_a, response_b, created_at
) VALUES ($1, $2, $3, $4, $5, $6, 'no_response', 'no_response', $7)`

func (q *queries) InsertMatch(ctx context.Context, round *models.Round, m matching.PlannedMatch, createdAt time.Time) error {
	_, err := q.db.Exec(ctx, insertMatch,
		uuid.New(), round.EventID, round.ID, m.TableNumber, m.AttendeeAID, m.AttendeeBID, createdAt,
	)
	return err
}

// Started and ended timestamps are written once, by the first transition
// that sets them.
const updateRoundStatus = `
UPDATE rounds
SET status     = $2,
    started_at = CASE WHEN $2 IN ('active', 'break') THEN COALESCE(started_at, $3) ELSE started_at END,
    ended_at   = CASE WHEN $2 IN ('completed', 'cancelled') THEN COALESCE(ended_at, $3) ELSE ended_at END
WHERE id = $1`

const claimRound = `
UPDATE rounds
SET status = 'active', started_at = COALESCE(started_at, $2)
WHERE id = $1 AND status = 'pending'`

func (q *queries) ClaimRound(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, claimRound, id, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *queries) UpdateRoundStatus(ctx context.Context, change models.RoundStatusChange) (int64, error) {
	tag, err := q.db.Exec(ctx, updateRoundStatus, change.RoundID, string(change.Status), change.At)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const matchColumns = `
m.id, m.event_id, m.round_id, m.table_number, m.attendee_a_id, m.attendee_b_id,
m.response_a, m.response_b, m.responded_at_a, m.responded_at_b, m.note_a, m.note_b,
m.completed_at, m.created_at`

func matchDest(m *models.Match) []any {
	return []any{
		&m.ID, &m.EventID, &m.RoundID, &m.TableNumber, &m.AttendeeAID, &m.AttendeeBID,
		&m.ResponseA, &m.ResponseB, &m.RespondedAtA, &m.RespondedAtB, &m.NoteA, &m.NoteB,
		&m.CompletedAt, &m.CreatedAt,
	}
}

const getMatch = `SELECT` + matchColumns + `
FROM matches m
WHERE m.id = $1`

func (q *queries) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	var m models.Match
	if err := q.db.QueryRow(ctx, getMatch, id).Scan(matchDest(&m)...); err != nil {
		return nil, notFound(err, "match "+id.String())
	}
	return &m, nil
}

// A note is only replaced when one is supplied. Completion is decided
// against the locked row so two concurrent answers still complete the match.
const updateResponseA = `
UPDATE matches m
SET response_a = $2, responded_at_a = $3, note_a = COALESCE($4, note_a),
    completed_at = CASE
        WHEN $2::text <> 'no_response' AND m.response_b <> 'no_response'
        THEN COALESCE(m.completed_at, $3)
        ELSE m.completed_at
    END
WHERE m.id = $1
RETURNING` + matchColumns

const updateResponseB = `
UPDATE matches m
SET response_b = $2, responded_at_b = $3, note_b = COALESCE($4, note_b),
    completed_at = CASE
        WHEN $2::text <> 'no_response' AND m.response_a <> 'no_response'
        THEN COALESCE(m.completed_at, $3)
        ELSE m.completed_at
    END
WHERE m.id = $1
RETURNING` + matchColumns

func (q *queries) UpdateResponse(
	ctx context.Context,
	id uuid.UUID,
	side models.MatchSide,
	response models.MatchResponse,
	respondedAt time.Time,
	note *string,
) (*models.Match, error) {
	query := updateResponseA
	if side == models.SideB {
		query = updateResponseB
	}
	var m models.Match
	err := q.db.QueryRow(ctx, query, id, string(response), respondedAt, note).Scan(matchDest(&m)...)
	if err != nil {
		return nil, notFound(err, "match "+id.String())
	}
	return &m, nil
}

const listEventMatches = `SELECT` + matchColumns + `,
  r.round_number, a.category, b.category
FROM matches m
JOIN rounds r ON r.id = m.round_id
JOIN attendees a ON a.id = m.attendee_a_id
JOIN attendees b ON b.id = m.attendee_b_id
WHERE m.event_id = $1
ORDER BY r.round_number, m.table_number`

func (q *queries) ListEventMatches(ctx context.Context, eventID uuid.UUID) ([]models.MatchDetail, error) {
	rows, err := q.db.Query(ctx, listEventMatches, eventID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.MatchDetail, error) {
		var d models.MatchDetail
		dest := append(matchDest(&d.Match), &d.RoundNumber, &d.CategoryA, &d.CategoryB)
		err := row.Scan(dest...)
		return d, err
	})
}
