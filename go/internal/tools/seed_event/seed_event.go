package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dbconfig"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
	"github.com/GiantBeanstalk/Speeddating/go/internal/sqlutil"
)

// Fixture mirrors the JSON snapshot of one event.
type Fixture struct {
	Event struct {
		ID            uuid.UUID `json:"id"`
		Name          string    `json:"name"`
		OrganizerID   uuid.UUID `json:"organizer_id"`
		TableCapacity int       `json:"table_capacity"`
	} `json:"event"`
	Attendees []struct {
		ID          uuid.UUID       `json:"id"`
		UserID      string          `json:"user_id"`
		DisplayName string          `json:"display_name"`
		Category    models.Category `json:"category"`
		CheckedIn   bool            `json:"checked_in"`
	} `json:"attendees"`
	Rounds []struct {
		ID                uuid.UUID `json:"id"`
		RoundNumber       int       `json:"round_number"`
		Name              string    `json:"name"`
		DurationSeconds   int       `json:"duration_seconds"`
		BreakAfterSeconds int       `json:"break_after_seconds"`
	} `json:"rounds"`
}

func (f *Fixture) validate() error {
	if f.Event.ID == uuid.Nil || f.Event.Name == "" {
		return errors.New("event id and name are required")
	}
	if f.Event.TableCapacity < 0 {
		return fmt.Errorf("table capacity %d is negative", f.Event.TableCapacity)
	}
	for _, a := range f.Attendees {
		if a.ID == uuid.Nil || a.UserID == "" {
			return errors.New("attendee id and user_id are required")
		}
		if !a.Category.Valid() {
			return fmt.Errorf("attendee %s has unknown category %q", a.ID, a.Category)
		}
	}
	seen := make(map[int]bool)
	for _, r := range f.Rounds {
		if r.ID == uuid.Nil || r.RoundNumber < 1 || r.DurationSeconds < 1 || r.BreakAfterSeconds < 0 {
			return fmt.Errorf("round %d is invalid", r.RoundNumber)
		}
		if seen[r.RoundNumber] {
			return fmt.Errorf("round %d listed twice", r.RoundNumber)
		}
		seen[r.RoundNumber] = true
	}
	return nil
}

func main() {
	path := "go/internal/assets/event.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}
	if err := fx.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid fixture: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert everything or nothing
	err = sqlutil.Run(ctx, pool, func(tx pgx.Tx) pgx.Tx { return tx }, func(tx pgx.Tx) error {
		return seed(ctx, tx, &fx)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Event seed complete: %q with %d attendees and %d rounds\n",
		fx.Event.Name, len(fx.Attendees), len(fx.Rounds),
	)
}

func seed(ctx context.Context, tx pgx.Tx, fx *Fixture) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO events (id, name, organizer_id, table_capacity)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE
        SET name = EXCLUDED.name, table_capacity = EXCLUDED.table_capacity
    `, fx.Event.ID, fx.Event.Name, fx.Event.OrganizerID, fx.Event.TableCapacity)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	for _, a := range fx.Attendees {
		_, err := tx.Exec(ctx, `
            INSERT INTO attendees (id, event_id, user_id, display_name, category, checked_in)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (id) DO UPDATE
            SET display_name = EXCLUDED.display_name,
                category     = EXCLUDED.category,
                checked_in   = EXCLUDED.checked_in
        `, a.ID, fx.Event.ID, a.UserID, a.DisplayName, string(a.Category), a.CheckedIn)
		if err != nil {
			return fmt.Errorf("insert attendee %s: %w", a.ID, err)
		}
	}

	for _, r := range fx.Rounds {
		_, err := tx.Exec(ctx, `
            INSERT INTO rounds (id, event_id, round_number, name, duration_seconds, break_after_seconds)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (id) DO NOTHING
        `, r.ID, fx.Event.ID, r.RoundNumber, r.Name, r.DurationSeconds, r.BreakAfterSeconds)
		if err != nil {
			return fmt.Errorf("insert round %d: %w", r.RoundNumber, err)
		}
	}
	return nil
}
