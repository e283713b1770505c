package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// RoundConfig describes the round a timer drives.
type RoundConfig struct {
	RoundID           uuid.UUID
	EventID           uuid.UUID
	RoundNumber       int
	DurationSeconds   int
	BreakAfterSeconds int
}

// ConfigFromRound copies the timing settings of a persisted round.
func ConfigFromRound(r *models.Round) RoundConfig {
	return RoundConfig{
		RoundID:           r.ID,
		EventID:           r.EventID,
		RoundNumber:       r.RoundNumber,
		DurationSeconds:   r.DurationSeconds,
		BreakAfterSeconds: r.BreakAfterSeconds,
	}
}

// TimerState is a point-in-time copy of a round timer.
type TimerState struct {
	RoundID          uuid.UUID          `json:"round_id"`
	EventID          uuid.UUID          `json:"event_id"`
	RoundNumber      int                `json:"round_number"`
	Status           models.RoundStatus `json:"status"`
	Phase            Phase              `json:"phase"`
	RemainingSeconds int                `json:"remaining_seconds"`
	TotalSeconds     int                `json:"total_seconds"`
	FiredWarnings    []int              `json:"fired_warnings"`
	StartedAt        *time.Time         `json:"started_at,omitempty"`
	EndedAt          *time.Time         `json:"ended_at,omitempty"`
}

// PercentComplete reports how much of the current phase has elapsed.
func (s TimerState) PercentComplete() float64 {
	return percentComplete(s.RemainingSeconds, s.TotalSeconds)
}

// RoundTimer is the state machine for a single round:
// pending -> active -> break -> completed, with cancelled reachable from
// any non-terminal state. All methods are safe for concurrent use and
// events are published in the order transitions happen.
type RoundTimer struct {
	mu     sync.Mutex
	cfg    RoundConfig
	clock  clockwork.Clock
	sink   Sink
	policy WarningPolicy

	status    models.RoundStatus
	phase     Phase
	remaining int
	total     int
	deadline  time.Time
	warnings  *warningSet
	startedAt *time.Time
	endedAt   *time.Time
}

func NewRoundTimer(cfg RoundConfig, clock clockwork.Clock, sink Sink, policy WarningPolicy) *RoundTimer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoundTimer{
		cfg:      cfg,
		clock:    clock,
		sink:     sink,
		policy:   policy,
		status:   models.RoundStatusPending,
		phase:    PhaseRound,
		warnings: newWarningSet(nil, 0),
	}
}

// Start moves a pending round into its active phase.
func (t *RoundTimer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != models.RoundStatusPending {
		return fmt.Errorf("%w: round %s is %s", ErrAlreadyStarted, t.cfg.RoundID, t.status)
	}
	if t.cfg.DurationSeconds <= 0 {
		return fmt.Errorf("%w: %d seconds", ErrInvalidDuration, t.cfg.DurationSeconds)
	}

	now := t.clock.Now()
	t.status = models.RoundStatusActive
	t.enterPhase(PhaseRound, t.cfg.DurationSeconds, now)
	t.startedAt = &now

	t.emit(RoundStarted{
		Source:            t.source(now),
		DurationSeconds:   t.cfg.DurationSeconds,
		BreakAfterSeconds: max(t.cfg.BreakAfterSeconds, 0),
	})
	return nil
}

func (t *RoundTimer) enterPhase(phase Phase, seconds int, now time.Time) {
	t.phase = phase
	t.remaining = seconds
	t.total = seconds
	t.deadline = now.Add(time.Duration(seconds) * time.Second)
	thresholds := t.policy.Round
	if phase == PhaseBreak {
		thresholds = t.policy.Break
	}
	t.warnings = newWarningSet(thresholds, seconds)
}

// Tick advances the timer. Remaining time comes from the phase deadline and
// drops by at least one second per tick, so a stalled process catches up on
// its next tick and remaining time never stalls while ticks arrive.
func (t *RoundTimer) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.status.IsLive() {
		return
	}

	now := t.clock.Now()
	remaining := min(secondsUntil(t.deadline, now), t.remaining-1)
	if remaining < 0 {
		remaining = 0
	}
	t.remaining = remaining

	t.emit(TimerTicked{
		Source:           t.source(now),
		Phase:            t.phase,
		RemainingSeconds: remaining,
		TotalSeconds:     t.total,
	})
	for _, threshold := range t.warnings.cross(remaining) {
		warningType, message := roundWarning(t.phase, threshold)
		t.emit(Warning{
			Source:           t.source(now),
			Phase:            t.phase,
			Threshold:        threshold,
			WarningType:      warningType,
			Message:          message,
			RemainingSeconds: remaining,
		})
	}

	if remaining > 0 {
		return
	}

	switch t.phase {
	case PhaseRound:
		if t.cfg.BreakAfterSeconds > 0 {
			t.status = models.RoundStatusBreak
			t.enterPhase(PhaseBreak, t.cfg.BreakAfterSeconds, now)
			t.emit(BreakStarted{Source: t.source(now), BreakSeconds: t.cfg.BreakAfterSeconds})
			return
		}
		t.finish(now)
		t.emit(RoundEnded{Source: t.source(now)})
		t.emit(RoundReady{Source: t.source(now)})
	case PhaseBreak:
		t.finish(now)
		t.emit(BreakEnded{Source: t.source(now)})
		t.emit(RoundReady{Source: t.source(now)})
	}
}

func (t *RoundTimer) finish(now time.Time) {
	t.status = models.RoundStatusCompleted
	t.endedAt = &now
}

// Extend adds time to the current phase.
func (t *RoundTimer) Extend(additionalSeconds int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.status.IsLive() {
		return fmt.Errorf("%w: cannot extend round %s while %s", ErrInvalidPhase, t.cfg.RoundID, t.status)
	}
	if additionalSeconds <= 0 {
		return fmt.Errorf("%w: %d seconds", ErrInvalidExtension, additionalSeconds)
	}

	extra := time.Duration(additionalSeconds) * time.Second
	t.remaining += additionalSeconds
	t.total += additionalSeconds
	t.deadline = t.deadline.Add(extra)
	t.warnings.reopen(t.remaining)

	t.emit(Extended{
		Source:            t.source(t.clock.Now()),
		Phase:             t.phase,
		AdditionalSeconds: additionalSeconds,
		RemainingSeconds:  t.remaining,
		TotalSeconds:      t.total,
	})
	return nil
}

// End completes a live round immediately, skipping any remaining break.
func (t *RoundTimer) End() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.status.IsLive() {
		return fmt.Errorf("%w: cannot end round %s while %s", ErrInvalidPhase, t.cfg.RoundID, t.status)
	}
	now := t.clock.Now()
	t.finish(now)
	t.emit(RoundEnded{Source: t.source(now)})
	t.emit(RoundReady{Source: t.source(now)})
	return nil
}

// Cancel stops the round for good.
func (t *RoundTimer) Cancel(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.IsTerminal() {
		return fmt.Errorf("%w: round %s is already %s", ErrInvalidPhase, t.cfg.RoundID, t.status)
	}
	now := t.clock.Now()
	t.status = models.RoundStatusCancelled
	t.endedAt = &now
	t.emit(Cancelled{Source: t.source(now), Reason: reason})
	return nil
}

// Announce relays an organizer message to the round without touching its
// timing.
func (t *RoundTimer) Announce(message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.status.IsLive() {
		return fmt.Errorf("%w: cannot announce in round %s while %s", ErrInvalidPhase, t.cfg.RoundID, t.status)
	}
	if message == "" {
		return ErrEmptyMessage
	}
	t.emit(Announced{Source: t.source(t.clock.Now()), Message: message})
	return nil
}

// State returns a snapshot of the timer.
func (t *RoundTimer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TimerState{
		RoundID:          t.cfg.RoundID,
		EventID:          t.cfg.EventID,
		RoundNumber:      t.cfg.RoundNumber,
		Status:           t.status,
		Phase:            t.phase,
		RemainingSeconds: t.remaining,
		TotalSeconds:     t.total,
		FiredWarnings:    t.warnings.list(),
		StartedAt:        copyTime(t.startedAt),
		EndedAt:          copyTime(t.endedAt),
	}
}

// Terminal reports whether the timer is completed or cancelled.
func (t *RoundTimer) Terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.IsTerminal()
}

func (t *RoundTimer) Config() RoundConfig { return t.cfg }

func (t *RoundTimer) source(now time.Time) Source {
	return Source{EventID: t.cfg.EventID, RoundID: t.cfg.RoundID, RoundNumber: t.cfg.RoundNumber, At: now}
}

func (t *RoundTimer) emit(e Event) {
	if t.sink != nil {
		t.sink.Publish(e)
	}
}

// secondsUntil rounds the time left up to whole seconds.
func secondsUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
