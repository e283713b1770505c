package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/auth"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/matching"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/results"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/timer"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// Store is the persistence the gateway needs to run rounds.
type Store interface {
	RoundStatusStore
	LoadRound(ctx context.Context, roundID uuid.UUID) (*models.Round, error)
	LoadEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	LoadRoster(ctx context.Context, eventID uuid.UUID) ([]models.Attendee, error)
	LoadPastPairings(ctx context.Context, eventID uuid.UUID) ([]models.PastPairing, error)
	CountRoundMatches(ctx context.Context, roundID uuid.UUID) (int, error)
	// ActivateRound atomically moves a pending round to active and writes
	// its matches. It wraps models.ErrRoundNotPending when the round already
	// left the pending state.
	ActivateRound(ctx context.Context, round *models.Round, matches []matching.PlannedMatch, at time.Time) error
}

// Authorizer resolves a bearer token into an identity within an event.
type Authorizer interface {
	Authorize(ctx context.Context, token string, eventID uuid.UUID) (auth.Identity, error)
}

// Gateway binds organizer commands, attendee responses and the engines to
// the connected clients.
type Gateway struct {
	hub        *Hub
	registry   *timer.Registry
	store      Store
	scheduler  *matching.Scheduler
	aggregator *results.Aggregator
	auth       Authorizer
	clock      clockwork.Clock
	config     ConnectionConfig
	upgrader   websocket.Upgrader
}

// Deps collects the gateway's collaborators.
type Deps struct {
	Hub        *Hub
	Registry   *timer.Registry
	Store      Store
	Scheduler  *matching.Scheduler
	Aggregator *results.Aggregator
	Authorizer Authorizer
	Clock      clockwork.Clock
}

// New creates a gateway.
func New(deps Deps, config ConnectionConfig) *Gateway {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = matching.NewScheduler(nil)
	}
	config = config.withDefaults()
	return &Gateway{
		hub:        deps.Hub,
		registry:   deps.Registry,
		store:      deps.Store,
		scheduler:  deps.Scheduler,
		aggregator: deps.Aggregator,
		auth:       deps.Authorizer,
		clock:      deps.Clock,
		config:     config,
		upgrader:   config.upgrader(),
	}
}

// Hub returns the connection hub.
func (g *Gateway) Hub() *Hub { return g.hub }

// Execute runs an organizer command against the engines.
func (g *Gateway) Execute(ctx context.Context, cmd Command) error {
	if err := validate(cmd); err != nil {
		return err
	}

	var err error
	switch c := cmd.(type) {
	case StartRound:
		err = g.startRound(ctx, c.RoundID)
	case EndRound:
		err = g.registry.EndRound(c.RoundID)
	case ExtendRound:
		err = g.registry.ExtendRound(c.RoundID, c.Minutes*60)
	case CancelRound:
		err = g.cancelRound(ctx, c.RoundID, c.Reason)
	case Announce:
		err = g.registry.Announce(c.RoundID, c.Message)
	case StartCountdown:
		_, err = g.registry.StartCountdown(c.EventID, c.Minutes*60, c.Message)
	case StopCountdown:
		err = g.registry.StopCountdown(c.EventID)
	case ExtendCountdown:
		err = g.registry.ExtendCountdown(c.EventID, c.Minutes*60)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	if err != nil {
		log.Warn().Err(err).Str("command", string(cmd.Type())).Msg("command rejected")
		return err
	}
	log.Info().Str("command", string(cmd.Type())).Msg("command executed")
	return nil
}

// CommandEvent reports which event a command acts on.
func (g *Gateway) CommandEvent(ctx context.Context, cmd Command) (uuid.UUID, error) {
	var roundID uuid.UUID
	switch c := cmd.(type) {
	case StartCountdown:
		return c.EventID, nil
	case StopCountdown:
		return c.EventID, nil
	case ExtendCountdown:
		return c.EventID, nil
	case StartRound:
		roundID = c.RoundID
	case EndRound:
		roundID = c.RoundID
	case ExtendRound:
		roundID = c.RoundID
	case CancelRound:
		roundID = c.RoundID
	case Announce:
		roundID = c.RoundID
	default:
		return uuid.Nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	if t, ok := g.registry.Round(roundID); ok {
		return t.Config().EventID, nil
	}
	round, err := g.loadRound(ctx, roundID)
	if err != nil {
		return uuid.Nil, err
	}
	return round.EventID, nil
}

func (g *Gateway) loadRound(ctx context.Context, roundID uuid.UUID) (*models.Round, error) {
	round, err := g.store.LoadRound(ctx, roundID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRound, roundID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load round %s: %w", roundID, err)
	}
	return round, nil
}

func (g *Gateway) startRound(ctx context.Context, roundID uuid.UUID) error {
	round, err := g.loadRound(ctx, roundID)
	if err != nil {
		return err
	}
	if round.Status != models.RoundStatusPending {
		return fmt.Errorf("%w: round %d is %s", timer.ErrAlreadyStarted, round.RoundNumber, round.Status)
	}

	_, err = g.registry.StartRound(ctx, timer.ConfigFromRound(round), func(ctx context.Context) error {
		return g.activateRound(ctx, round)
	})
	return err
}

// activateRound claims the pending round in storage together with a fresh
// seating plan. Rounds that already have matches keep them.
func (g *Gateway) activateRound(ctx context.Context, round *models.Round) error {
	existing, err := g.store.CountRoundMatches(ctx, round.ID)
	if err != nil {
		return fmt.Errorf("failed to count matches of round %d: %w", round.RoundNumber, err)
	}

	var plan *matching.Plan
	if existing > 0 {
		log.Info().
			Str("round_id", round.ID.String()).
			Int("matches", existing).
			Msg("round already has matches, reusing them")
	} else if plan, err = g.planRound(ctx, round); err != nil {
		return err
	}

	var planned []matching.PlannedMatch
	if plan != nil {
		planned = plan.Matches
	}
	err = g.store.ActivateRound(ctx, round, planned, g.clock.Now())
	if errors.Is(err, models.ErrRoundNotPending) {
		return fmt.Errorf("%w: round %d is no longer pending", timer.ErrAlreadyStarted, round.RoundNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to activate round %d: %w", round.RoundNumber, err)
	}
	if plan == nil {
		return nil
	}

	stats := plan.Stats()
	log.Info().
		Str("event_id", round.EventID.String()).
		Str("round_id", round.ID.String()).
		Int("round_number", round.RoundNumber).
		Int("matches", stats.Matches).
		Int("sitting_out", stats.SittingOut).
		Int("repeat_pairings", stats.RepeatPairings).
		Msg("round scheduled")

	g.hub.Broadcast(AdminRoom(round.EventID), RoundPlannedMessage{
		Header:      header(MessageRoundPlanned, g.clock.Now()),
		RoundID:     round.ID,
		RoundNumber: round.RoundNumber,
		Stats:       stats,
	})
	return nil
}

// planRound seats the checked-in roster against the event's history.
func (g *Gateway) planRound(ctx context.Context, round *models.Round) (*matching.Plan, error) {
	event, err := g.store.LoadEvent(ctx, round.EventID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, round.EventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", round.EventID, err)
	}
	roster, err := g.store.LoadRoster(ctx, round.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	past, err := g.store.LoadPastPairings(ctx, round.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load past pairings: %w", err)
	}

	plan, err := g.scheduler.BuildRound(roster, matching.NewHistory(past), event.TableCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule round %d: %w", round.RoundNumber, err)
	}
	return plan, nil
}

// cancelRound stops a live round, or cancels a round that never started.
func (g *Gateway) cancelRound(ctx context.Context, roundID uuid.UUID, reason string) error {
	err := g.registry.CancelRound(roundID, reason)
	if !errors.Is(err, timer.ErrNotRunning) {
		return err
	}

	round, loadErr := g.loadRound(ctx, roundID)
	if loadErr != nil {
		return loadErr
	}
	if round.Status != models.RoundStatusPending {
		return fmt.Errorf("%w: round %d is %s", timer.ErrInvalidPhase, round.RoundNumber, round.Status)
	}

	now := g.clock.Now()
	if err := g.store.UpdateRoundStatus(ctx, models.RoundStatusChange{
		RoundID: round.ID,
		Status:  models.RoundStatusCancelled,
		At:      now,
	}); err != nil {
		return fmt.Errorf("failed to cancel round %d: %w", round.RoundNumber, err)
	}
	g.hub.Fanout(RoundCancelledMessage{
		Header:      header(MessageRoundCancelled, now),
		RoundID:     round.ID,
		RoundNumber: round.RoundNumber,
		Reason:      reason,
	}, EventRoom(round.EventID), RoundRoom(round.ID), AdminRoom(round.EventID))
	return nil
}

// PushStatistics sends fresh event statistics to the event's organizers.
// Nothing is computed when no organizer is listening.
func (g *Gateway) PushStatistics(ctx context.Context, eventID uuid.UUID) error {
	room := AdminRoom(eventID)
	if g.hub.RoomSize(room) == 0 {
		return nil
	}
	stats, err := g.aggregator.ComputeEventStatistics(ctx, eventID)
	if err != nil {
		return err
	}
	g.hub.Broadcast(room, StatisticsUpdateMessage{
		Header:     header(MessageStatisticsUpdate, g.clock.Now()),
		Statistics: stats,
	})
	return nil
}

// Snapshot reports the live engines of one event.
func (g *Gateway) Snapshot(eventID uuid.UUID) timer.RegistrySnapshot {
	all := g.registry.Snapshot()
	snap := timer.RegistrySnapshot{
		Rounds:     make([]timer.TimerState, 0, len(all.Rounds)),
		Countdowns: make([]timer.CountdownState, 0, len(all.Countdowns)),
	}
	for _, r := range all.Rounds {
		if r.EventID == eventID {
			snap.Rounds = append(snap.Rounds, r)
		}
	}
	for _, c := range all.Countdowns {
		if c.EventID == eventID {
			snap.Countdowns = append(snap.Countdowns, c)
		}
	}
	return snap
}
