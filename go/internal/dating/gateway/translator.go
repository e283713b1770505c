package gateway

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/timer"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// Broadcaster is the part of the hub the translator needs.
type Broadcaster interface {
	Fanout(msg any, keys ...RoomKey)
}

// Broadcasters fans each message out to every member.
type Broadcasters []Broadcaster

func (bs Broadcasters) Fanout(msg any, keys ...RoomKey) {
	for _, b := range bs {
		b.Fanout(msg, keys...)
	}
}

// Translator turns engine events into wire messages and round status
// changes. It is the timer.Sink of the process.
type Translator struct {
	out      Broadcaster
	statuses StatusRecorder
}

var _ timer.Sink = (*Translator)(nil)

// NewTranslator creates a translator. statuses may be nil when round
// status is not persisted.
func NewTranslator(out Broadcaster, statuses StatusRecorder) *Translator {
	return &Translator{out: out, statuses: statuses}
}

// Publish implements timer.Sink.
func (t *Translator) Publish(e timer.Event) {
	src := timer.Origin(e)
	event := EventRoom(src.EventID)
	admin := AdminRoom(src.EventID)
	round := RoundRoom(src.RoundID)

	switch ev := e.(type) {
	case timer.RoundStarted:
		t.status(src, models.RoundStatusActive)
		t.out.Fanout(RoundStartedMessage{
			Header:            header(MessageRoundStarted, src.At),
			RoundID:           src.RoundID,
			RoundNumber:       src.RoundNumber,
			DurationSeconds:   ev.DurationSeconds,
			BreakAfterSeconds: ev.BreakAfterSeconds,
		}, event, round, admin)

	case timer.TimerTicked:
		t.out.Fanout(TimerUpdateMessage{
			Header:             header(MessageTimerUpdate, src.At),
			RoundID:            src.RoundID,
			Phase:              ev.Phase,
			TimeRemaining:      ev.RemainingSeconds,
			TotalDuration:      ev.TotalSeconds,
			PercentageComplete: ev.PercentComplete(),
		}, round, admin)

	case timer.Warning:
		t.out.Fanout(TimerWarningMessage{
			Header:        header(MessageTimerWarning, src.At),
			RoundID:       src.RoundID,
			Phase:         ev.Phase,
			Message:       ev.Message,
			WarningType:   ev.WarningType,
			TimeRemaining: ev.RemainingSeconds,
		}, round)

	case timer.BreakStarted:
		t.status(src, models.RoundStatusBreak)
		t.out.Fanout(BreakStartedMessage{
			Header:               header(MessageBreakStarted, src.At),
			RoundID:              src.RoundID,
			RoundNumber:          src.RoundNumber,
			BreakDurationMinutes: minutes(ev.BreakSeconds),
		}, event, round, admin)

	case timer.RoundEnded:
		t.status(src, models.RoundStatusCompleted)
		t.roundEnded(src, event, round, admin)

	case timer.BreakEnded:
		t.status(src, models.RoundStatusCompleted)
		t.roundEnded(src, event, round, admin)

	case timer.RoundReady:
		t.out.Fanout(RoundReadyMessage{
			Header:      header(MessageRoundReady, src.At),
			RoundID:     src.RoundID,
			RoundNumber: src.RoundNumber,
		}, admin)

	case timer.Extended:
		t.out.Fanout(RoundExtendedMessage{
			Header:            header(MessageRoundExtended, src.At),
			RoundID:           src.RoundID,
			Phase:             ev.Phase,
			AdditionalMinutes: minutes(ev.AdditionalSeconds),
			TimeRemaining:     ev.RemainingSeconds,
			TotalDuration:     ev.TotalSeconds,
		}, event, round, admin)

	case timer.Cancelled:
		t.status(src, models.RoundStatusCancelled)
		t.out.Fanout(RoundCancelledMessage{
			Header:      header(MessageRoundCancelled, src.At),
			RoundID:     src.RoundID,
			RoundNumber: src.RoundNumber,
			Reason:      ev.Reason,
		}, event, round, admin)

	case timer.Announced:
		t.out.Fanout(AnnouncementMessage{
			Header:  header(MessageAnnouncement, src.At),
			RoundID: src.RoundID,
			Message: ev.Message,
		}, event, round, admin)

	case timer.CountdownStarted:
		t.out.Fanout(CountdownStartedMessage{
			Header:          header(MessageCountdownStarted, src.At),
			EventID:         src.EventID,
			DurationMinutes: minutes(ev.DurationSeconds),
			Message:         ev.Message,
			TargetTime:      ev.TargetTime.UTC(),
		}, event, admin)

	case timer.CountdownTicked:
		t.out.Fanout(CountdownUpdateMessage{
			Header:             header(MessageCountdownUpdate, src.At),
			EventID:            src.EventID,
			TimeRemaining:      ev.RemainingSeconds,
			TotalDuration:      ev.TotalSeconds,
			PercentageComplete: ev.PercentComplete(),
			Message:            ev.Message,
			TargetTime:         ev.TargetTime.UTC(),
		}, event, admin)

	case timer.CountdownWarning:
		t.out.Fanout(CountdownWarningMessage{
			Header:        header(MessageCountdownWarning, src.At),
			EventID:       src.EventID,
			Message:       ev.Message,
			WarningType:   ev.WarningType,
			TimeRemaining: ev.RemainingSeconds,
		}, event, admin)

	case timer.CountdownExtended:
		t.out.Fanout(CountdownExtendedMessage{
			Header:            header(MessageCountdownExtended, src.At),
			EventID:           src.EventID,
			AdditionalMinutes: minutes(ev.AdditionalSeconds),
			TargetTime:        ev.TargetTime.UTC(),
			TotalDuration:     ev.TotalSeconds,
		}, event, admin)

	case timer.CountdownCompleted:
		t.out.Fanout(CountdownCompletedMessage{
			Header:  header(MessageCountdownCompleted, src.At),
			EventID: src.EventID,
		}, event, admin)

	case timer.CountdownCancelled:
		t.out.Fanout(CountdownCancelledMessage{
			Header:  header(MessageCountdownCancelled, src.At),
			EventID: src.EventID,
		}, event, admin)

	default:
		log.Error().
			Str("event_type", fmt.Sprintf("%T", e)).
			Str("event_id", src.EventID.String()).
			Msg("no wire translation for engine event")
	}
}

func (t *Translator) roundEnded(src timer.Source, rooms ...RoomKey) {
	t.out.Fanout(RoundEndedMessage{
		Header:      header(MessageRoundEnded, src.At),
		RoundID:     src.RoundID,
		RoundNumber: src.RoundNumber,
	}, rooms...)
}

func (t *Translator) status(src timer.Source, status models.RoundStatus) {
	if t.statuses == nil {
		return
	}
	t.statuses.Enqueue(models.RoundStatusChange{RoundID: src.RoundID, Status: status, At: src.At})
}
