package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/auth"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/matching"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/results"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/timer"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

const (
	MaxExtensionMinutes = 30
	MaxCountdownMinutes = 24 * 60
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidCommand = errors.New("invalid command")
	ErrUnknownRound   = errors.New("unknown round")
	ErrUnknownEvent   = errors.New("unknown event")
)

// CommandType names a command on the wire.
type CommandType string

const (
	CommandStartRound      CommandType = "start_round"
	CommandEndRound        CommandType = "end_round"
	CommandExtendRound     CommandType = "extend_round"
	CommandCancelRound     CommandType = "cancel_round"
	CommandAnnounce        CommandType = "announce"
	CommandStartCountdown  CommandType = "start_countdown"
	CommandStopCountdown   CommandType = "stop_countdown"
	CommandExtendCountdown CommandType = "extend_countdown"
)

// Command is an organizer instruction. Only the types below implement it.
type Command interface {
	Type() CommandType
	command()
}

type StartRound struct {
	RoundID uuid.UUID `json:"round_id"`
}

type EndRound struct {
	RoundID uuid.UUID `json:"round_id"`
}

type ExtendRound struct {
	RoundID uuid.UUID `json:"round_id"`
	Minutes int       `json:"minutes"`
}

type CancelRound struct {
	RoundID uuid.UUID `json:"round_id"`
	Reason  string    `json:"reason"`
}

type Announce struct {
	RoundID uuid.UUID `json:"round_id"`
	Message string    `json:"message"`
}

type StartCountdown struct {
	EventID uuid.UUID `json:"event_id"`
	Minutes int       `json:"minutes"`
	Message string    `json:"message"`
}

type StopCountdown struct {
	EventID uuid.UUID `json:"event_id"`
}

type ExtendCountdown struct {
	EventID uuid.UUID `json:"event_id"`
	Minutes int       `json:"minutes"`
}

func (StartRound) Type() CommandType      { return CommandStartRound }
func (EndRound) Type() CommandType        { return CommandEndRound }
func (ExtendRound) Type() CommandType     { return CommandExtendRound }
func (CancelRound) Type() CommandType     { return CommandCancelRound }
func (Announce) Type() CommandType        { return CommandAnnounce }
func (StartCountdown) Type() CommandType  { return CommandStartCountdown }
func (StopCountdown) Type() CommandType   { return CommandStopCountdown }
func (ExtendCountdown) Type() CommandType { return CommandExtendCountdown }

func (StartRound) command()      {}
func (EndRound) command()        {}
func (ExtendRound) command()     {}
func (CancelRound) command()     {}
func (Announce) command()        {}
func (StartCountdown) command()  {}
func (StopCountdown) command()   {}
func (ExtendCountdown) command() {}

// DecodeCommand parses and validates the JSON payload of a command.
func DecodeCommand(t CommandType, payload []byte) (Command, error) {
	var (
		cmd Command
		err error
	)
	switch t {
	case CommandStartRound:
		cmd, err = decode[StartRound](payload)
	case CommandEndRound:
		cmd, err = decode[EndRound](payload)
	case CommandExtendRound:
		cmd, err = decode[ExtendRound](payload)
	case CommandCancelRound:
		cmd, err = decode[CancelRound](payload)
	case CommandAnnounce:
		cmd, err = decode[Announce](payload)
	case CommandStartCountdown:
		cmd, err = decode[StartCountdown](payload)
	case CommandStopCountdown:
		cmd, err = decode[StopCountdown](payload)
	case CommandExtendCountdown:
		cmd, err = decode[ExtendCountdown](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, t)
	}
	if err != nil {
		return nil, err
	}
	if err := validate(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

func decode[T Command](payload []byte) (Command, error) {
	var cmd T
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidCommand)
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return cmd, nil
}

func validate(cmd Command) error {
	switch c := cmd.(type) {
	case StartRound:
		return requireID(c.RoundID, "round_id")
	case EndRound:
		return requireID(c.RoundID, "round_id")
	case ExtendRound:
		if err := requireID(c.RoundID, "round_id"); err != nil {
			return err
		}
		return extensionMinutes(c.Minutes)
	case CancelRound:
		return requireID(c.RoundID, "round_id")
	case Announce:
		if err := requireID(c.RoundID, "round_id"); err != nil {
			return err
		}
		if c.Message == "" {
			return timer.ErrEmptyMessage
		}
		return nil
	case StartCountdown:
		if err := requireID(c.EventID, "event_id"); err != nil {
			return err
		}
		if c.Minutes < 1 || c.Minutes > MaxCountdownMinutes {
			return fmt.Errorf("%w: countdown must last 1 to %d minutes, got %d",
				timer.ErrInvalidDuration, MaxCountdownMinutes, c.Minutes)
		}
		return nil
	case StopCountdown:
		return requireID(c.EventID, "event_id")
	case ExtendCountdown:
		if err := requireID(c.EventID, "event_id"); err != nil {
			return err
		}
		return extensionMinutes(c.Minutes)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func requireID(id uuid.UUID, field string) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: %s is required", ErrInvalidCommand, field)
	}
	return nil
}

func extensionMinutes(m int) error {
	if m < 1 || m > MaxExtensionMinutes {
		return fmt.Errorf("%w: extension must be 1 to %d minutes, got %d",
			timer.ErrInvalidExtension, MaxExtensionMinutes, m)
	}
	return nil
}

// ErrorCode classifies an error for clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, timer.ErrRoundAlreadyActive):
		return "round_already_active"
	case errors.Is(err, timer.ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, timer.ErrInvalidPhase):
		return "invalid_phase"
	case errors.Is(err, timer.ErrNotRunning):
		return "not_running"
	case errors.Is(err, matching.ErrInsufficientRoster):
		return "insufficient_roster"
	case errors.Is(err, matching.ErrCapacity):
		return "capacity_exceeded"
	case errors.Is(err, timer.ErrInvalidExtension),
		errors.Is(err, timer.ErrInvalidDuration),
		errors.Is(err, timer.ErrEmptyMessage),
		errors.Is(err, ErrInvalidCommand),
		errors.Is(err, results.ErrInvalidResponse):
		return "invalid_argument"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrUnknownRound),
		errors.Is(err, ErrUnknownEvent),
		errors.Is(err, results.ErrUnknownMatch),
		errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, results.ErrNotParticipant),
		errors.Is(err, auth.ErrForbidden):
		return "forbidden"
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
