package gateway

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrDuplicateConnection = errors.New("connection already registered")
)

type room struct {
	mu      sync.Mutex
	members map[*Client]struct{}
}

// Hub tracks live connections and the rooms they listen to.
//
// Broadcasts to a room are serialised by that room's lock, so every member
// sees a room's messages in the order they were broadcast. A client whose
// queue is full is dropped from every room once the fan-out finishes.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[RoomKey]*room
}

// ConnectionStats describes the hub's current population.
type ConnectionStats struct {
	TotalConnections     int `json:"total_connections"`
	UniqueUsers          int `json:"unique_users"`
	EventRooms           int `json:"event_rooms"`
	RoundRooms           int `json:"round_rooms"`
	AdminRooms           int `json:"admin_rooms"`
	OrganizerConnections int `json:"organizer_connections"`
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[RoomKey]*room),
	}
}

// Register makes a client addressable by its ID.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.clients[c.ID]; exists {
		return ErrDuplicateConnection
	}
	h.clients[c.ID] = c

	log.Debug().
		Str("connection_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Str("event_id", c.EventID.String()).
		Int("total_connections", len(h.clients)).
		Msg("connection registered")
	return nil
}

// Subscribe adds the connection to a room, creating the room on first use.
func (h *Hub) Subscribe(connID string, key RoomKey) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return ErrUnknownConnection
	}
	r, ok := h.rooms[key]
	if !ok {
		r = &room{members: make(map[*Client]struct{})}
		h.rooms[key] = r
	}
	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
	c.rooms[key] = struct{}{}
	return nil
}

// Unsubscribe removes the connection from a room. Empty rooms are discarded.
func (h *Hub) Unsubscribe(connID string, key RoomKey) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return ErrUnknownConnection
	}
	h.leave(c, key)
	return nil
}

// leave must be called with h.mu held.
func (h *Hub) leave(c *Client, key RoomKey) {
	delete(c.rooms, key)
	r, ok := h.rooms[key]
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.members, c)
	empty := len(r.members) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, key)
	}
}

// DropConnection removes the connection from every room and closes its
// queue. Dropping an unknown connection is a no-op.
func (h *Hub) DropConnection(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, connID)
	for key := range c.rooms {
		h.leave(c, key)
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	c.close()

	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Str("event_id", c.EventID.String()).
		Int("total_connections", remaining).
		Msg("connection dropped")
}

// Broadcast delivers msg to every member of one room.
func (h *Hub) Broadcast(key RoomKey, msg any) {
	h.Fanout(msg, key)
}

// Fanout delivers msg once to every connection in any of the rooms.
func (h *Hub) Fanout(msg any, keys ...RoomKey) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for broadcast")
		return
	}
	h.deliver(payload, keys)
}

func (h *Hub) deliver(payload []byte, keys []RoomKey) {
	keys = uniqueRooms(keys)

	h.mu.RLock()
	rooms := make([]*room, 0, len(keys))
	for _, k := range keys {
		if r, ok := h.rooms[k]; ok {
			rooms = append(rooms, r)
		}
	}
	h.mu.RUnlock()
	if len(rooms) == 0 {
		return
	}

	// Rooms are locked in key order so overlapping fan-outs cannot deadlock.
	for _, r := range rooms {
		r.mu.Lock()
	}
	seen := make(map[*Client]struct{})
	var dead []*Client
	for _, r := range rooms {
		for c := range r.members {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			if !c.enqueue(payload) {
				dead = append(dead, c)
			}
		}
	}
	for i := len(rooms) - 1; i >= 0; i-- {
		rooms[i].mu.Unlock()
	}

	for _, c := range dead {
		log.Warn().
			Str("connection_id", c.ID).
			Str("user_id", c.Identity.UserID).
			Msg("connection send buffer full, closing connection")
		h.DropConnection(c.ID)
	}
}

// SendTo delivers msg to a single connection.
func (h *Hub) SendTo(connID string, msg any) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if !c.enqueue(payload) {
		h.DropConnection(connID)
	}
	return nil
}

// RoomSize reports how many connections listen to a room.
func (h *Hub) RoomSize(key RoomKey) int {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Stats summarises the connected population.
func (h *Hub) Stats() ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := ConnectionStats{TotalConnections: len(h.clients)}
	users := make(map[string]struct{})
	for _, c := range h.clients {
		users[c.Identity.UserID] = struct{}{}
		if c.Identity.Role.CanManage() {
			stats.OrganizerConnections++
		}
	}
	stats.UniqueUsers = len(users)
	for key := range h.rooms {
		switch {
		case key.isEvent():
			stats.EventRooms++
		case key.isRound():
			stats.RoundRooms++
		case key.isAdmin():
			stats.AdminRooms++
		}
	}
	return stats
}

func uniqueRooms(keys []RoomKey) []RoomKey {
	out := make([]RoomKey, 0, len(keys))
	seen := make(map[RoomKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
