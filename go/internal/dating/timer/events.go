package timer

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the part of a round the timer is counting down.
type Phase string

const (
	PhaseRound Phase = "round"
	PhaseBreak Phase = "break"
)

// Source identifies the engine that produced an event. RoundID is
// uuid.Nil for countdown events.
type Source struct {
	EventID     uuid.UUID
	RoundID     uuid.UUID
	RoundNumber int
	At          time.Time
}

func (s Source) source() Source { return s }

// Event is emitted by the engines. The set of variants is closed: only the
// types in this file implement it.
type Event interface {
	source() Source
}

// Origin returns the header of any engine event.
func Origin(e Event) Source { return e.source() }

type RoundStarted struct {
	Source
	DurationSeconds   int
	BreakAfterSeconds int
}

type TimerTicked struct {
	Source
	Phase            Phase
	RemainingSeconds int
	TotalSeconds     int
}

// PercentComplete reports how much of the phase has elapsed.
func (e TimerTicked) PercentComplete() float64 {
	return percentComplete(e.RemainingSeconds, e.TotalSeconds)
}

type Warning struct {
	Source
	Phase            Phase
	Threshold        int
	WarningType      string
	Message          string
	RemainingSeconds int
}

type BreakStarted struct {
	Source
	BreakSeconds int
}

type RoundEnded struct {
	Source
}

type BreakEnded struct {
	Source
}

// RoundReady signals that the event may move on to its next round.
type RoundReady struct {
	Source
}

type Extended struct {
	Source
	Phase             Phase
	AdditionalSeconds int
	RemainingSeconds  int
	TotalSeconds      int
}

type Cancelled struct {
	Source
	Reason string
}

type Announced struct {
	Source
	Message string
}

type CountdownStarted struct {
	Source
	DurationSeconds int
	Message         string
	TargetTime      time.Time
}

type CountdownTicked struct {
	Source
	RemainingSeconds int
	TotalSeconds     int
	Message          string
	TargetTime       time.Time
}

// PercentComplete reports how much of the countdown has elapsed.
func (e CountdownTicked) PercentComplete() float64 {
	return percentComplete(e.RemainingSeconds, e.TotalSeconds)
}

type CountdownWarning struct {
	Source
	Threshold        int
	WarningType      string
	Message          string
	RemainingSeconds int
}

type CountdownExtended struct {
	Source
	AdditionalSeconds int
	TargetTime        time.Time
	TotalSeconds      int
}

type CountdownCompleted struct {
	Source
}

type CountdownCancelled struct {
	Source
}

// Sink receives engine events. Engines call Publish while holding their own
// lock, so implementations must not block for long or call back into the
// engine.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

func percentComplete(remaining, total int) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(total-remaining) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
