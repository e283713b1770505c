package gateway

import (
	"time"

	"github.com/google/uuid"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/auth"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/matching"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/results"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/timer"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// MessageType is the discriminator every wire message carries.
type MessageType string

const (
	MessageConnected          MessageType = "connected"
	MessageRoundStarted       MessageType = "round_started"
	MessageRoundEnded         MessageType = "round_ended"
	MessageRoundReady         MessageType = "round_ready"
	MessageRoundPlanned       MessageType = "round_planned"
	MessageRoundCancelled     MessageType = "round_cancelled"
	MessageRoundExtended      MessageType = "round_extended"
	MessageBreakStarted       MessageType = "break_started"
	MessageTimerUpdate        MessageType = "timer_update"
	MessageTimerWarning       MessageType = "timer_warning"
	MessageAnnouncement       MessageType = "announcement"
	MessageCountdownStarted   MessageType = "countdown_started"
	MessageCountdownUpdate    MessageType = "countdown_update"
	MessageCountdownWarning   MessageType = "countdown_warning"
	MessageCountdownExtended  MessageType = "countdown_extended"
	MessageCountdownCompleted MessageType = "countdown_completed"
	MessageCountdownCancelled MessageType = "countdown_cancelled"
	MessageError              MessageType = "error"
	MessagePong               MessageType = "pong"
	MessageTimerStatus        MessageType = "timer_status"
	MessageCountdownStatus    MessageType = "countdown_status"
	MessageActiveTimers       MessageType = "active_timers"
	MessageStatisticsUpdate   MessageType = "statistics_update"
	MessageConnectionStats    MessageType = "connection_stats"
	MessageResponseRecorded   MessageType = "response_recorded"
	MessageCommandResult      MessageType = "command_result"
)

// Header is embedded in every outbound message.
type Header struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// MessageType is promoted to every message embedding Header.
func (h Header) MessageType() MessageType { return h.Type }

func header(t MessageType, at time.Time) Header {
	return Header{Type: t, Timestamp: at.UTC()}
}

func minutes(seconds int) float64 {
	return float64(seconds) / 60
}

type ConnectedMessage struct {
	Header
	ConnectionID string     `json:"connection_id"`
	EventID      uuid.UUID  `json:"event_id"`
	RoundID      *uuid.UUID `json:"round_id,omitempty"`
	Role         auth.Role  `json:"role"`
}

type RoundStartedMessage struct {
	Header
	RoundID           uuid.UUID `json:"round_id"`
	RoundNumber       int       `json:"round_number"`
	DurationSeconds   int       `json:"duration_seconds"`
	BreakAfterSeconds int       `json:"break_after_seconds"`
}

type RoundEndedMessage struct {
	Header
	RoundID     uuid.UUID `json:"round_id"`
	RoundNumber int       `json:"round_number"`
}

// RoundReadyMessage tells organizers the next round can be started.
type RoundReadyMessage struct {
	Header
	RoundID     uuid.UUID `json:"round_id"`
	RoundNumber int       `json:"round_number"`
}

type RoundPlannedMessage struct {
	Header
	RoundID     uuid.UUID               `json:"round_id"`
	RoundNumber int                     `json:"round_number"`
	Stats       matching.RoundPlanStats `json:"stats"`
}

type RoundCancelledMessage struct {
	Header
	RoundID     uuid.UUID `json:"round_id"`
	RoundNumber int       `json:"round_number"`
	Reason      string    `json:"reason,omitempty"`
}

type RoundExtendedMessage struct {
	Header
	RoundID           uuid.UUID   `json:"round_id"`
	Phase             timer.Phase `json:"phase"`
	AdditionalMinutes float64     `json:"additional_minutes"`
	TimeRemaining     int         `json:"time_remaining"`
	TotalDuration     int         `json:"total_duration"`
}

type BreakStartedMessage struct {
	Header
	RoundID              uuid.UUID `json:"round_id"`
	RoundNumber          int       `json:"round_number"`
	BreakDurationMinutes float64   `json:"break_duration_minutes"`
}

type TimerUpdateMessage struct {
	Header
	RoundID            uuid.UUID   `json:"round_id"`
	Phase              timer.Phase `json:"phase"`
	TimeRemaining      int         `json:"time_remaining"`
	TotalDuration      int         `json:"total_duration"`
	PercentageComplete float64     `json:"percentage_complete"`
}

type TimerWarningMessage struct {
	Header
	RoundID       uuid.UUID   `json:"round_id"`
	Phase         timer.Phase `json:"phase"`
	Message       string      `json:"message"`
	WarningType   string      `json:"warning_type"`
	TimeRemaining int         `json:"time_remaining"`
}

type AnnouncementMessage struct {
	Header
	RoundID uuid.UUID `json:"round_id"`
	Message string    `json:"message"`
}

type CountdownStartedMessage struct {
	Header
	EventID         uuid.UUID `json:"event_id"`
	DurationMinutes float64   `json:"duration_minutes"`
	Message         string    `json:"message"`
	TargetTime      time.Time `json:"target_time"`
}

type CountdownUpdateMessage struct {
	Header
	EventID            uuid.UUID `json:"event_id"`
	TimeRemaining      int       `json:"time_remaining"`
	TotalDuration      int       `json:"total_duration"`
	PercentageComplete float64   `json:"percentage_complete"`
	Message            string    `json:"message"`
	TargetTime         time.Time `json:"target_time"`
}

type CountdownWarningMessage struct {
	Header
	EventID       uuid.UUID `json:"event_id"`
	Message       string    `json:"message"`
	WarningType   string    `json:"warning_type"`
	TimeRemaining int       `json:"time_remaining"`
}

type CountdownExtendedMessage struct {
	Header
	EventID           uuid.UUID `json:"event_id"`
	AdditionalMinutes float64   `json:"additional_minutes"`
	TargetTime        time.Time `json:"target_time"`
	TotalDuration     int       `json:"total_duration"`
}

type CountdownCompletedMessage struct {
	Header
	EventID uuid.UUID `json:"event_id"`
}

type CountdownCancelledMessage struct {
	Header
	EventID uuid.UUID `json:"event_id"`
}

type ErrorMessage struct {
	Header
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type PongMessage struct {
	Header
}

type TimerStatusMessage struct {
	Header
	Active bool              `json:"active"`
	Timer  *timer.TimerState `json:"timer,omitempty"`
}

type CountdownStatusMessage struct {
	Header
	Active    bool                  `json:"active"`
	Countdown *timer.CountdownState `json:"countdown,omitempty"`
}

type ActiveTimersMessage struct {
	Header
	Rounds     []timer.TimerState     `json:"rounds"`
	Countdowns []timer.CountdownState `json:"countdowns"`
}

type StatisticsUpdateMessage struct {
	Header
	Statistics *results.Statistics `json:"statistics"`
}

type ConnectionStatsMessage struct {
	Header
	ConnectionStats
}

type ResponseRecordedMessage struct {
	Header
	MatchID       uuid.UUID            `json:"match_id"`
	Response      models.MatchResponse `json:"response"`
	BothResponded bool                 `json:"both_responded"`
}

type CommandResultMessage struct {
	Header
	Command CommandType `json:"command"`
	OK      bool        `json:"ok"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}
