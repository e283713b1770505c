package timer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TickInterval is the cadence at which live engines are advanced.
const TickInterval = time.Second

type engine interface {
	Tick()
	Terminal() bool
}

type roundEntry struct {
	roundID uuid.UUID
	eventID uuid.UUID
	timer   *RoundTimer // nil while the round is being prepared
	cancel  context.CancelFunc
	done    chan struct{}
}

type countdownEntry struct {
	countdown *Countdown
	cancel    context.CancelFunc
	done      chan struct{}
}

// Registry owns every live engine of the process. It is created once at
// startup and handed to whoever needs it; at most one round per event can
// be live or starting at any time.
type Registry struct {
	ctx    context.Context
	cancel context.CancelFunc
	clock  clockwork.Clock
	sink   Sink
	policy WarningPolicy

	mu          sync.Mutex
	rounds      map[uuid.UUID]*roundEntry
	liveByEvent map[uuid.UUID]uuid.UUID
	countdowns  map[uuid.UUID]*countdownEntry

	wg sync.WaitGroup
}

// RegistrySnapshot lists the engines alive at one instant.
type RegistrySnapshot struct {
	Rounds     []TimerState     `json:"rounds"`
	Countdowns []CountdownState `json:"countdowns"`
}

func NewRegistry(ctx context.Context, clock clockwork.Clock, sink Sink, policy WarningPolicy) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		ctx:         ctx,
		cancel:      cancel,
		clock:       clock,
		sink:        sink,
		policy:      policy,
		rounds:      make(map[uuid.UUID]*roundEntry),
		liveByEvent: make(map[uuid.UUID]uuid.UUID),
		countdowns:  make(map[uuid.UUID]*countdownEntry),
	}
}

// StartRound claims the event's live-round slot, runs prepare outside the
// registry lock, and starts the round timer once prepare succeeds. A second
// start for the same round or for another round of the same event fails with
// ErrRoundAlreadyActive until the first round reaches a terminal state.
func (r *Registry) StartRound(ctx context.Context, cfg RoundConfig, prepare func(context.Context) error) (*RoundTimer, error) {
	entry, err := r.reserve(cfg)
	if err != nil {
		return nil, err
	}

	if prepare != nil {
		if err := prepare(ctx); err != nil {
			r.removeRound(entry)
			return nil, err
		}
	}

	t := NewRoundTimer(cfg, r.clock, r.sink, r.policy)
	if err := t.Start(); err != nil {
		r.removeRound(entry)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	entry.timer = t
	entry.cancel = cancel
	entry.done = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(entry.done)
		defer r.removeRound(entry)
		r.run(runCtx, t)
	}()

	log.Info().
		Str("event_id", cfg.EventID.String()).
		Str("round_id", cfg.RoundID.String()).
		Int("round_number", cfg.RoundNumber).
		Int("duration_seconds", cfg.DurationSeconds).
		Msg("round timer started")

	return t, nil
}

func (r *Registry) reserve(cfg RoundConfig) (*roundEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rounds[cfg.RoundID]; ok {
		return nil, fmt.Errorf("%w: round %s is already running", ErrRoundAlreadyActive, cfg.RoundID)
	}
	if live, ok := r.liveByEvent[cfg.EventID]; ok {
		return nil, fmt.Errorf("%w: round %s is live for event %s", ErrRoundAlreadyActive, live, cfg.EventID)
	}
	entry := &roundEntry{roundID: cfg.RoundID, eventID: cfg.EventID}
	r.rounds[cfg.RoundID] = entry
	r.liveByEvent[cfg.EventID] = cfg.RoundID
	return entry, nil
}

func (r *Registry) removeRound(entry *roundEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rounds[entry.roundID] == entry {
		delete(r.rounds, entry.roundID)
	}
	if r.liveByEvent[entry.eventID] == entry.roundID {
		delete(r.liveByEvent, entry.eventID)
	}
}

// run ticks e until it is terminal or ctx is cancelled. Cancellation is
// checked before every tick so a stopped engine never ticks again.
func (r *Registry) run(ctx context.Context, e engine) {
	ticker := r.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			e.Tick()
			if e.Terminal() {
				return
			}
		}
	}
}

func (r *Registry) liveRound(roundID uuid.UUID) (*roundEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rounds[roundID]
	if !ok {
		return nil, fmt.Errorf("%w: round %s", ErrNotRunning, roundID)
	}
	if entry.timer == nil {
		return nil, fmt.Errorf("%w: round %s is still starting", ErrInvalidPhase, roundID)
	}
	return entry, nil
}

// Round returns the live timer for roundID.
func (r *Registry) Round(roundID uuid.UUID) (*RoundTimer, bool) {
	entry, err := r.liveRound(roundID)
	if err != nil {
		return nil, false
	}
	return entry.timer, true
}

// ActiveRound returns the live timer of the event, if any.
func (r *Registry) ActiveRound(eventID uuid.UUID) (*RoundTimer, bool) {
	r.mu.Lock()
	roundID, ok := r.liveByEvent[eventID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.Round(roundID)
}

// ExtendRound adds time to the round's current phase.
func (r *Registry) ExtendRound(roundID uuid.UUID, additionalSeconds int) error {
	entry, err := r.liveRound(roundID)
	if err != nil {
		return err
	}
	return entry.timer.Extend(additionalSeconds)
}

// Announce sends a message through the round's timer.
func (r *Registry) Announce(roundID uuid.UUID, message string) error {
	entry, err := r.liveRound(roundID)
	if err != nil {
		return err
	}
	return entry.timer.Announce(message)
}

// EndRound completes the round and waits for its tick loop to exit.
func (r *Registry) EndRound(roundID uuid.UUID) error {
	entry, err := r.liveRound(roundID)
	if err != nil {
		return err
	}
	if err := entry.timer.End(); err != nil {
		return err
	}
	r.stop(entry.cancel, entry.done)
	return nil
}

// CancelRound cancels the round. When it returns the tick loop has exited
// and the round is no longer registered.
func (r *Registry) CancelRound(roundID uuid.UUID, reason string) error {
	entry, err := r.liveRound(roundID)
	if err != nil {
		return err
	}
	if err := entry.timer.Cancel(reason); err != nil {
		return err
	}
	r.stop(entry.cancel, entry.done)

	log.Info().
		Str("round_id", roundID.String()).
		Str("reason", reason).
		Msg("round timer cancelled")
	return nil
}

func (r *Registry) stop(cancel context.CancelFunc, done <-chan struct{}) {
	cancel()
	<-done
}

// StartCountdown starts the event's pre-event countdown. A finished
// countdown may be replaced by a new one.
func (r *Registry) StartCountdown(eventID uuid.UUID, durationSeconds int, message string) (*Countdown, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.countdowns[eventID]; ok && !existing.countdown.Terminal() {
		return nil, fmt.Errorf("%w: countdown already running for event %s", ErrAlreadyStarted, eventID)
	}

	c := NewCountdown(eventID, r.clock, r.sink)
	if err := c.Start(durationSeconds, message); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(r.ctx)
	entry := &countdownEntry{countdown: c, cancel: cancel, done: make(chan struct{})}
	r.countdowns[eventID] = entry

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(entry.done)
		defer r.removeCountdown(eventID, entry)
		r.run(runCtx, c)
	}()

	log.Info().
		Str("event_id", eventID.String()).
		Int("duration_seconds", durationSeconds).
		Msg("event countdown started")

	return c, nil
}

func (r *Registry) removeCountdown(eventID uuid.UUID, entry *countdownEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countdowns[eventID] == entry {
		delete(r.countdowns, eventID)
	}
}

func (r *Registry) liveCountdown(eventID uuid.UUID) (*countdownEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.countdowns[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: no countdown for event %s", ErrNotRunning, eventID)
	}
	return entry, nil
}

// Countdown returns the event's live countdown.
func (r *Registry) Countdown(eventID uuid.UUID) (*Countdown, bool) {
	entry, err := r.liveCountdown(eventID)
	if err != nil {
		return nil, false
	}
	return entry.countdown, true
}

// ExtendCountdown pushes the event's countdown target back.
func (r *Registry) ExtendCountdown(eventID uuid.UUID, additionalSeconds int) error {
	entry, err := r.liveCountdown(eventID)
	if err != nil {
		return err
	}
	return entry.countdown.Extend(additionalSeconds)
}

// StopCountdown cancels the event's countdown and waits for its tick loop.
func (r *Registry) StopCountdown(eventID uuid.UUID) error {
	entry, err := r.liveCountdown(eventID)
	if err != nil {
		return err
	}
	if err := entry.countdown.Cancel(); err != nil {
		return err
	}
	r.stop(entry.cancel, entry.done)
	return nil
}

// Snapshot reports every live engine, ordered by id.
func (r *Registry) Snapshot() RegistrySnapshot {
	r.mu.Lock()
	var timers []*RoundTimer
	for _, entry := range r.rounds {
		if entry.timer != nil {
			timers = append(timers, entry.timer)
		}
	}
	var countdowns []*Countdown
	for _, entry := range r.countdowns {
		countdowns = append(countdowns, entry.countdown)
	}
	r.mu.Unlock()

	snap := RegistrySnapshot{
		Rounds:     make([]TimerState, 0, len(timers)),
		Countdowns: make([]CountdownState, 0, len(countdowns)),
	}
	for _, t := range timers {
		snap.Rounds = append(snap.Rounds, t.State())
	}
	for _, c := range countdowns {
		snap.Countdowns = append(snap.Countdowns, c.State())
	}
	sort.Slice(snap.Rounds, func(i, j int) bool {
		return snap.Rounds[i].RoundID.String() < snap.Rounds[j].RoundID.String()
	})
	sort.Slice(snap.Countdowns, func(i, j int) bool {
		return snap.Countdowns[i].EventID.String() < snap.Countdowns[j].EventID.String()
	})
	return snap
}

// Shutdown stops every tick loop and waits for them to exit. Engines are
// left in whatever state they were in.
func (r *Registry) Shutdown() {
	r.cancel()
	r.wg.Wait()
	log.Info().Msg("timer registry stopped")
}
