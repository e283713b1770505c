package gateway

import (
	"strings"

	"github.com/google/uuid"
)

// RoomKey names a broadcast group.
type RoomKey string

const (
	eventRoomPrefix = "event:"
	roundRoomPrefix = "round:"
	adminRoomPrefix = "admin:"
)

// EventRoom reaches every participant connected to an event.
func EventRoom(eventID uuid.UUID) RoomKey { return RoomKey(eventRoomPrefix + eventID.String()) }

// RoundRoom reaches clients watching a single round's timer.
func RoundRoom(roundID uuid.UUID) RoomKey { return RoomKey(roundRoomPrefix + roundID.String()) }

// AdminRoom reaches organizer dashboards of an event.
func AdminRoom(eventID uuid.UUID) RoomKey { return RoomKey(adminRoomPrefix + eventID.String()) }

func (k RoomKey) isEvent() bool { return strings.HasPrefix(string(k), eventRoomPrefix) }
func (k RoomKey) isRound() bool { return strings.HasPrefix(string(k), roundRoomPrefix) }
func (k RoomKey) isAdmin() bool { return strings.HasPrefix(string(k), adminRoomPrefix) }
