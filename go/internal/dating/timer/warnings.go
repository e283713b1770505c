package timer

import (
	"fmt"
	"sort"
)

// WarningPolicy lists the remaining-seconds thresholds that trigger a
// warning in each phase of a round.
type WarningPolicy struct {
	Round []int `yaml:"round"`
	Break []int `yaml:"break"`
}

// DefaultWarningPolicy warns at one minute, thirty seconds and every second
// of the final ten during a round, and at one minute and thirty seconds
// during a break.
func DefaultWarningPolicy() WarningPolicy {
	round := []int{60, 30}
	for s := 10; s >= 1; s-- {
		round = append(round, s)
	}
	return WarningPolicy{Round: round, Break: []int{60, 30}}
}

// CountdownThresholds are the pre-event warning points in seconds.
var CountdownThresholds = []int{600, 300, 120, 60, 30, 10}

// warningSet tracks which thresholds have fired during one phase.
type warningSet struct {
	thresholds []int // descending
	fired      map[int]bool
	skipped    map[int]bool
}

// newWarningSet treats thresholds at or above the phase total as already
// passed so a phase never opens with a warning.
func newWarningSet(thresholds []int, total int) *warningSet {
	w := &warningSet{fired: make(map[int]bool), skipped: make(map[int]bool)}
	seen := make(map[int]bool)
	for _, t := range thresholds {
		if t <= 0 || seen[t] {
			continue
		}
		seen[t] = true
		w.thresholds = append(w.thresholds, t)
		if t >= total {
			w.skipped[t] = true
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(w.thresholds)))
	return w
}

// cross marks and returns, highest first, every unfired threshold at or
// above remaining.
func (w *warningSet) cross(remaining int) []int {
	var out []int
	for _, t := range w.thresholds {
		if remaining <= t && !w.fired[t] && !w.skipped[t] {
			w.fired[t] = true
			out = append(out, t)
		}
	}
	return out
}

// reopen un-skips thresholds that lie below remaining again after an
// extension. Thresholds that already fired stay fired.
func (w *warningSet) reopen(remaining int) {
	for t := range w.skipped {
		if t < remaining {
			delete(w.skipped, t)
		}
	}
}

func (w *warningSet) list() []int {
	out := make([]int, 0, len(w.fired))
	for t := range w.fired {
		out = append(out, t)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func roundWarning(phase Phase, threshold int) (warningType, message string) {
	if phase == PhaseBreak {
		switch {
		case threshold == 60:
			return "break_ending_soon", "Break ends in 1 minute"
		case threshold == 30:
			return "break_ending_very_soon", "Break ends in 30 seconds"
		case threshold <= 10:
			return "break_countdown", fmt.Sprintf("Break ends in %d", threshold)
		}
		return "break_ending_soon", fmt.Sprintf("Break ends in %s", humanize(threshold))
	}
	switch {
	case threshold == 60:
		return "one_minute", "1 minute remaining"
	case threshold == 30:
		return "thirty_seconds", "30 seconds remaining"
	case threshold <= 10:
		return "countdown", fmt.Sprintf("%d", threshold)
	}
	return "time_remaining", fmt.Sprintf("%s remaining", humanize(threshold))
}

func countdownWarning(threshold int) (warningType, message string) {
	switch threshold {
	case 600:
		return "ten_minutes", "Event starts in 10 minutes"
	case 300:
		return "five_minutes", "Event starts in 5 minutes"
	case 120:
		return "two_minutes", "Event starts in 2 minutes"
	case 60:
		return "one_minute", "Event starts in 1 minute"
	case 30:
		return "thirty_seconds", "Event starts in 30 seconds"
	case 10:
		return "final_countdown", "Event starts in 10 seconds"
	}
	return "time_remaining", fmt.Sprintf("Event starts in %s", humanize(threshold))
}

func humanize(seconds int) string {
	switch {
	case seconds%60 == 0 && seconds >= 120:
		return fmt.Sprintf("%d minutes", seconds/60)
	case seconds == 60:
		return "1 minute"
	}
	return fmt.Sprintf("%d seconds", seconds)
}
