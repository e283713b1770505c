package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/auth"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/timer"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// Inbound message types sent by clients.
const (
	InboundPing            = "ping"
	InboundHeartbeat       = "heartbeat"
	InboundTimerStatus     = "get_timer_status"
	InboundCountdownStatus = "get_countdown_status"
	InboundSubmitResponse  = "submit_response"
	InboundCommand         = "command"
	InboundConnectionStats = "get_connection_stats"
	InboundActiveTimers    = "get_active_timers"
)

// ClientMessage is the shape of every message a client may send. Fields
// unused by a type are ignored.
type ClientMessage struct {
	Type     string               `json:"type"`
	RoundID  uuid.UUID            `json:"round_id,omitempty"`
	MatchID  uuid.UUID            `json:"match_id,omitempty"`
	Response models.MatchResponse `json:"response,omitempty"`
	Note     *string              `json:"note,omitempty"`
	Command  CommandType          `json:"command,omitempty"`
	Payload  json.RawMessage      `json:"payload,omitempty"`
}

var errNotOrganizer = fmt.Errorf("%w: organizer role required", auth.ErrForbidden)

// HandleClientMessage answers one inbound message from c.
func (g *Gateway) HandleClientMessage(ctx context.Context, c *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.replyError(c, fmt.Errorf("%w: malformed message", ErrInvalidCommand))
		return
	}

	switch msg.Type {
	case InboundPing, InboundHeartbeat:
		g.reply(c, PongMessage{Header: header(MessagePong, g.clock.Now())})

	case InboundTimerStatus:
		g.replyTimerStatus(c, msg.RoundID)

	case InboundCountdownStatus:
		reply := CountdownStatusMessage{Header: header(MessageCountdownStatus, g.clock.Now())}
		if cd, ok := g.registry.Countdown(c.EventID); ok {
			state := cd.State()
			reply.Active = true
			reply.Countdown = &state
		}
		g.reply(c, reply)

	case InboundSubmitResponse:
		g.submitResponse(ctx, c, msg)

	case InboundConnectionStats:
		if !c.Identity.Role.CanManage() {
			g.replyError(c, errNotOrganizer)
			return
		}
		g.reply(c, ConnectionStatsMessage{
			Header:          header(MessageConnectionStats, g.clock.Now()),
			ConnectionStats: g.hub.Stats(),
		})

	case InboundActiveTimers:
		if !c.Identity.Role.CanManage() {
			g.replyError(c, errNotOrganizer)
			return
		}
		snap := g.Snapshot(c.EventID)
		g.reply(c, ActiveTimersMessage{
			Header:     header(MessageActiveTimers, g.clock.Now()),
			Rounds:     snap.Rounds,
			Countdowns: snap.Countdowns,
		})

	case InboundCommand:
		g.runClientCommand(ctx, c, msg)

	default:
		g.replyError(c, fmt.Errorf("%w: unknown message type %q", ErrInvalidCommand, msg.Type))
	}
}

func (g *Gateway) replyTimerStatus(c *Client, roundID uuid.UUID) {
	if roundID == uuid.Nil {
		roundID = c.RoundID
	}

	var (
		t  *timer.RoundTimer
		ok bool
	)
	if roundID == uuid.Nil {
		t, ok = g.registry.ActiveRound(c.EventID)
	} else {
		t, ok = g.registry.Round(roundID)
	}

	reply := TimerStatusMessage{Header: header(MessageTimerStatus, g.clock.Now())}
	if ok && t.Config().EventID == c.EventID {
		state := t.State()
		reply.Active = true
		reply.Timer = &state
	}
	g.reply(c, reply)
}

func (g *Gateway) submitResponse(ctx context.Context, c *Client, msg ClientMessage) {
	attendeeID := c.Identity.AttendeeID
	if attendeeID == uuid.Nil {
		g.replyError(c, fmt.Errorf("%w: only attendees submit responses", auth.ErrForbidden))
		return
	}

	m, err := g.aggregator.RecordResponse(ctx, msg.MatchID, attendeeID, msg.Response, msg.Note)
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Str("match_id", msg.MatchID.String()).
			Msg("response rejected")
		g.replyError(c, err)
		return
	}

	g.reply(c, ResponseRecordedMessage{
		Header:        header(MessageResponseRecorded, g.clock.Now()),
		MatchID:       m.ID,
		Response:      msg.Response,
		BothResponded: m.BothResponded(),
	})

	if err := g.PushStatistics(ctx, m.EventID); err != nil {
		log.Error().Err(err).Str("event_id", m.EventID.String()).Msg("failed to push statistics")
	}
}

func (g *Gateway) runClientCommand(ctx context.Context, c *Client, msg ClientMessage) {
	result := CommandResultMessage{Command: msg.Command}
	err := g.authorizedExecute(ctx, c, msg)
	result.Header = header(MessageCommandResult, g.clock.Now())
	result.OK = err == nil
	if err != nil {
		result.Error = err.Error()
		result.Code = ErrorCode(err)
	}
	g.reply(c, result)
}

func (g *Gateway) authorizedExecute(ctx context.Context, c *Client, msg ClientMessage) error {
	if !c.Identity.Role.CanManage() {
		return errNotOrganizer
	}
	cmd, err := DecodeCommand(msg.Command, msg.Payload)
	if err != nil {
		return err
	}
	eventID, err := g.CommandEvent(ctx, cmd)
	if err != nil {
		return err
	}
	if eventID != c.EventID {
		return fmt.Errorf("%w: command targets another event", auth.ErrForbidden)
	}
	return g.Execute(ctx, cmd)
}

func (g *Gateway) reply(c *Client, msg any) {
	if err := g.hub.SendTo(c.ID, msg); err != nil && !errors.Is(err, ErrUnknownConnection) {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to reply to client")
	}
}

func (g *Gateway) replyError(c *Client, err error) {
	g.reply(c, ErrorMessage{
		Header:  header(MessageError, g.clock.Now()),
		Message: err.Error(),
		Code:    ErrorCode(err),
	})
}
