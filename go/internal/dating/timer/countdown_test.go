package timer

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

func countdownWarnings(events []Event) []int {
	var out []int
	for _, e := range events {
		if w, ok := e.(CountdownWarning); ok {
			out = append(out, w.Threshold)
		}
	}
	return out
}

func TestCountdownRunsToCompletion(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	rec := newRecorder()
	c := NewCountdown(uuid.New(), clock, rec)

	if err := c.Start(900, "Doors open soon"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.State().TargetTime; !got.Equal(testStart.Add(15 * time.Minute)) {
		t.Fatalf("TargetTime = %v", got)
	}
	for i := 0; i < 900; i++ {
		clock.Advance(time.Second)
		c.Tick()
	}

	state := c.State()
	if state.Status != CountdownStatusCompleted || state.RemainingSeconds != 0 {
		t.Fatalf("unexpected state %+v", state)
	}
	events := rec.all()
	if _, ok := events[len(events)-1].(CountdownCompleted); !ok {
		t.Fatalf("last event = %T, want CountdownCompleted", events[len(events)-1])
	}
	if got := countdownWarnings(events); !equalInts(got, []int{600, 300, 120, 60, 30, 10}) {
		t.Fatalf("warnings = %v", got)
	}
	if !equalInts(state.FiredWarnings, []int{600, 300, 120, 60, 30, 10}) {
		t.Fatalf("FiredWarnings = %v", state.FiredWarnings)
	}
}

func TestCountdownSkipsThresholdsAboveDuration(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	rec := newRecorder()
	c := NewCountdown(uuid.New(), clock, rec)
	if err := c.Start(300, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 300; i++ {
		clock.Advance(time.Second)
		c.Tick()
	}
	if got := countdownWarnings(rec.all()); !equalInts(got, []int{120, 60, 30, 10}) {
		t.Fatalf("warnings = %v, want [120 60 30 10]", got)
	}
}

func TestCountdownToleratesMissedTicks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	rec := newRecorder()
	c := NewCountdown(uuid.New(), clock, rec)
	if err := c.Start(300, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.Advance(295 * time.Second)
	c.Tick()
	if got := c.State().RemainingSeconds; got != 5 {
		t.Fatalf("remaining = %d, want 5", got)
	}
	if got := countdownWarnings(rec.all()); !equalInts(got, []int{120, 60, 30, 10}) {
		t.Fatalf("warnings = %v", got)
	}

	clock.Advance(500 * time.Millisecond)
	c.Tick()
	if got := c.State().RemainingSeconds; got != 5 {
		t.Fatalf("remaining = %d, want 5 (rounded up)", got)
	}

	clock.Advance(10 * time.Second)
	c.Tick()
	if c.State().Status != CountdownStatusCompleted {
		t.Fatalf("status = %s, want completed", c.State().Status)
	}
	if got := countdownWarnings(rec.all()); len(got) != 4 {
		t.Fatalf("warnings fired again: %v", got)
	}
}

func TestCountdownExtend(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	rec := newRecorder()
	c := NewCountdown(uuid.New(), clock, rec)

	if err := c.Extend(60); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("Extend while idle = %v, want ErrInvalidPhase", err)
	}
	if err := c.Start(120, "Starting soon"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(100 * time.Second)
	c.Tick()

	if err := c.Extend(0); !errors.Is(err, ErrInvalidExtension) {
		t.Fatalf("Extend(0) = %v, want ErrInvalidExtension", err)
	}
	if err := c.Extend(300); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	state := c.State()
	if !state.TargetTime.Equal(testStart.Add(420 * time.Second)) {
		t.Fatalf("TargetTime = %v", state.TargetTime)
	}
	if state.RemainingSeconds != 320 || state.TotalSeconds != 420 {
		t.Fatalf("remaining=%d total=%d, want 320/420", state.RemainingSeconds, state.TotalSeconds)
	}
	events := rec.all()
	if _, ok := events[len(events)-1].(CountdownExtended); !ok {
		t.Fatalf("last event = %T, want CountdownExtended", events[len(events)-1])
	}

	// 300 was skipped at start but lies ahead again after the extension.
	clock.Advance(20 * time.Second)
	c.Tick()
	warnings := countdownWarnings(rec.all())
	if warnings[len(warnings)-1] != 300 {
		t.Fatalf("warnings = %v, want 300 last", warnings)
	}
}

func TestCountdownCancel(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	rec := newRecorder()

	idle := NewCountdown(uuid.New(), clock, rec)
	if err := idle.Cancel(); err != nil {
		t.Fatalf("Cancel while idle: %v", err)
	}
	if err := idle.Start(60, ""); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("Start after cancel = %v, want ErrAlreadyStarted", err)
	}

	running := NewCountdown(uuid.New(), clock, rec)
	if err := running.Start(60, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := running.Start(60, ""); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if err := running.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !running.State().Cancelled {
		t.Fatal("state should report cancelled")
	}
	if err := running.Cancel(); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("second Cancel = %v, want ErrInvalidPhase", err)
	}

	before := len(rec.all())
	clock.Advance(time.Second)
	running.Tick()
	if len(rec.all()) != before {
		t.Fatal("cancelled countdown emitted events")
	}
}

func TestCountdownRejectsBadDuration(t *testing.T) {
	c := NewCountdown(uuid.New(), clockwork.NewFakeClock(), nil)
	if err := c.Start(0, ""); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("Start(0) = %v, want ErrInvalidDuration", err)
	}
	if c.State().Status != CountdownIdle {
		t.Fatalf("status = %s, want idle", c.State().Status)
	}
}
