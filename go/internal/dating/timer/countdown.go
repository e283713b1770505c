package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// CountdownStatus is the lifecycle state of a pre-event countdown.
type CountdownStatus string

const (
	CountdownIdle            CountdownStatus = "idle"
	CountdownRunning         CountdownStatus = "running"
	CountdownStatusCompleted CountdownStatus = "completed"
	CountdownStatusCancelled CountdownStatus = "cancelled"
)

func (s CountdownStatus) terminal() bool {
	return s == CountdownStatusCompleted || s == CountdownStatusCancelled
}

// CountdownState is a point-in-time copy of a countdown.
type CountdownState struct {
	EventID          uuid.UUID       `json:"event_id"`
	Status           CountdownStatus `json:"status"`
	TargetTime       time.Time       `json:"target_time"`
	TotalSeconds     int             `json:"total_seconds"`
	RemainingSeconds int             `json:"remaining_seconds"`
	Message          string          `json:"message"`
	FiredWarnings    []int           `json:"fired_warnings"`
	Cancelled        bool            `json:"cancelled"`
}

// PercentComplete reports how much of the countdown has elapsed.
func (s CountdownState) PercentComplete() float64 {
	return percentComplete(s.RemainingSeconds, s.TotalSeconds)
}

// Countdown counts down to the start of an event. Unlike RoundTimer it
// derives remaining time purely from the target time.
type Countdown struct {
	mu      sync.Mutex
	eventID uuid.UUID
	clock   clockwork.Clock
	sink    Sink

	status    CountdownStatus
	target    time.Time
	total     int
	remaining int
	message   string
	warnings  *warningSet
}

func NewCountdown(eventID uuid.UUID, clock clockwork.Clock, sink Sink) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{
		eventID:  eventID,
		clock:    clock,
		sink:     sink,
		status:   CountdownIdle,
		warnings: newWarningSet(nil, 0),
	}
}

// Start begins counting down durationSeconds from now.
func (c *Countdown) Start(durationSeconds int, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != CountdownIdle {
		return fmt.Errorf("%w: countdown for event %s is %s", ErrAlreadyStarted, c.eventID, c.status)
	}
	if durationSeconds <= 0 {
		return fmt.Errorf("%w: %d seconds", ErrInvalidDuration, durationSeconds)
	}

	now := c.clock.Now()
	c.status = CountdownRunning
	c.target = now.Add(time.Duration(durationSeconds) * time.Second)
	c.total = durationSeconds
	c.remaining = durationSeconds
	c.message = message
	c.warnings = newWarningSet(CountdownThresholds, durationSeconds)

	c.emit(CountdownStarted{
		Source:          c.source(now),
		DurationSeconds: durationSeconds,
		Message:         message,
		TargetTime:      c.target,
	})
	return nil
}

// Tick recomputes the remaining time from the target.
func (c *Countdown) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != CountdownRunning {
		return
	}

	now := c.clock.Now()
	c.remaining = secondsUntil(c.target, now)
	if c.remaining <= 0 {
		c.status = CountdownStatusCompleted
		c.emit(CountdownCompleted{Source: c.source(now)})
		return
	}

	c.emit(CountdownTicked{
		Source:           c.source(now),
		RemainingSeconds: c.remaining,
		TotalSeconds:     c.total,
		Message:          c.message,
		TargetTime:       c.target,
	})
	for _, threshold := range c.warnings.cross(c.remaining) {
		warningType, message := countdownWarning(threshold)
		c.emit(CountdownWarning{
			Source:           c.source(now),
			Threshold:        threshold,
			WarningType:      warningType,
			Message:          message,
			RemainingSeconds: c.remaining,
		})
	}
}

// Extend pushes the target time back.
func (c *Countdown) Extend(additionalSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != CountdownRunning {
		return fmt.Errorf("%w: countdown for event %s is %s", ErrInvalidPhase, c.eventID, c.status)
	}
	if additionalSeconds <= 0 {
		return fmt.Errorf("%w: %d seconds", ErrInvalidExtension, additionalSeconds)
	}

	now := c.clock.Now()
	c.target = c.target.Add(time.Duration(additionalSeconds) * time.Second)
	c.total += additionalSeconds
	c.remaining = secondsUntil(c.target, now)
	c.warnings.reopen(c.remaining)

	c.emit(CountdownExtended{
		Source:            c.source(now),
		AdditionalSeconds: additionalSeconds,
		TargetTime:        c.target,
		TotalSeconds:      c.total,
	})
	return nil
}

// Cancel stops an idle or running countdown.
func (c *Countdown) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.terminal() {
		return fmt.Errorf("%w: countdown for event %s is %s", ErrInvalidPhase, c.eventID, c.status)
	}
	c.status = CountdownStatusCancelled
	c.emit(CountdownCancelled{Source: c.source(c.clock.Now())})
	return nil
}

// State returns a snapshot of the countdown.
func (c *Countdown) State() CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CountdownState{
		EventID:          c.eventID,
		Status:           c.status,
		TargetTime:       c.target,
		TotalSeconds:     c.total,
		RemainingSeconds: c.remaining,
		Message:          c.message,
		FiredWarnings:    c.warnings.list(),
		Cancelled:        c.status == CountdownStatusCancelled,
	}
}

// Terminal reports whether the countdown is completed or cancelled.
func (c *Countdown) Terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.terminal()
}

func (c *Countdown) source(now time.Time) Source {
	return Source{EventID: c.eventID, At: now}
}

func (c *Countdown) emit(e Event) {
	if c.sink != nil {
		c.sink.Publish(e)
	}
}
