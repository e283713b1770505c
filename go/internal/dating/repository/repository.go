// Package repository stores events, rounds and matches in Postgres.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/gateway"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/matching"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/results"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
	"github.com/GiantBeanstalk/Speeddating/go/internal/sqlutil"
)

// Repository implements gateway.Store and results.Repository over a pgx
// pool.
type Repository struct {
	db      sqlutil.TxBeginner
	queries *queries
}

var (
	_ gateway.Store      = (*Repository)(nil)
	_ results.Repository = (*Repository)(nil)
)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, queries: newQueries(pool)}
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	cfg := pool.Config().ConnConfig
	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int32("max_conns", pool.Config().MaxConns).
		Msg("connected to database")
	return pool, nil
}

func (r *Repository) LoadEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	return r.queries.GetEvent(ctx, eventID)
}

func (r *Repository) LoadRound(ctx context.Context, roundID uuid.UUID) (*models.Round, error) {
	return r.queries.GetRound(ctx, roundID)
}

// LoadRoster returns the checked-in attendees of the event.
func (r *Repository) LoadRoster(ctx context.Context, eventID uuid.UUID) ([]models.Attendee, error) {
	roster, err := r.queries.ListAttendees(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}
	return roster, nil
}

// LoadPastPairings returns every pairing of the event's rounds that were not
// cancelled.
func (r *Repository) LoadPastPairings(ctx context.Context, eventID uuid.UUID) ([]models.PastPairing, error) {
	past, err := r.queries.ListPastPairings(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list past pairings: %w", err)
	}
	return past, nil
}

func (r *Repository) CountRoundMatches(ctx context.Context, roundID uuid.UUID) (int, error) {
	n, err := r.queries.CountRoundMatches(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return n, nil
}

// ActivateRound moves a pending round to active and inserts its matches in
// one transaction. Only one caller can win the pending row.
func (r *Repository) ActivateRound(ctx context.Context, round *models.Round, matches []matching.PlannedMatch, at time.Time) error {
	at = at.UTC()
	return sqlutil.Run(ctx, r.db, withTx, func(q *queries) error {
		n, err := q.ClaimRound(ctx, round.ID, at)
		if err != nil {
			return fmt.Errorf("failed to claim round %d: %w", round.RoundNumber, err)
		}
		if n == 0 {
			return fmt.Errorf("round %d: %w", round.RoundNumber, models.ErrRoundNotPending)
		}
		for _, m := range matches {
			if err := q.InsertMatch(ctx, round, m, at); err != nil {
				return fmt.Errorf("failed to insert match at table %d: %w", m.TableNumber, err)
			}
		}
		return nil
	})
}

func (r *Repository) UpdateRoundStatus(ctx context.Context, change models.RoundStatusChange) error {
	n, err := r.queries.UpdateRoundStatus(ctx, change)
	if err != nil {
		return fmt.Errorf("failed to update round status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("round %s: %w", change.RoundID, models.ErrNotFound)
	}
	return nil
}

func (r *Repository) GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	return r.queries.GetMatch(ctx, matchID)
}

// UpdateMatchResponse writes one side of the match as a single-row update
// and returns the stored row. The row is completed in the same statement
// when both sides end up answered.
func (r *Repository) UpdateMatchResponse(ctx context.Context, u results.ResponseUpdate) (*models.Match, error) {
	return r.queries.UpdateResponse(ctx, u.MatchID, u.Side, u.Response, u.RespondedAt, u.Note)
}

func (r *Repository) ListEventMatches(ctx context.Context, eventID uuid.UUID) ([]models.MatchDetail, error) {
	matches, err := r.queries.ListEventMatches(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event matches: %w", err)
	}
	return matches, nil
}
