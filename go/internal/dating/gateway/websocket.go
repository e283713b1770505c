package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const clientMessageTimeout = 10 * time.Second

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	SendBuffer      int           `yaml:"send_buffer"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
	}
}

// withDefaults fills unset fields from DefaultConnectionConfig.
func (c ConnectionConfig) withDefaults() ConnectionConfig {
	d := DefaultConnectionConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	return c
}

// checkOrigin accepts every origin when none are configured.
func (c ConnectionConfig) checkOrigin(r *http.Request) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (c ConnectionConfig) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  c.ReadBufferSize,
		WriteBufferSize: c.WriteBufferSize,
		CheckOrigin:     c.checkOrigin,
	}
}

// serve upgrades the request, joins the client to its rooms and starts
// its pumps. onConnect runs after the connected greeting is queued.
func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, c *Client, rooms []RoomKey, onConnect func(*Client)) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		log.Error().Err(err).Str("event_id", c.EventID.String()).Msg("failed to upgrade WebSocket connection")
		return
	}

	if err := g.hub.Register(c); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to register connection")
		conn.Close()
		return
	}
	for _, key := range rooms {
		if err := g.hub.Subscribe(c.ID, key); err != nil {
			log.Error().Err(err).Str("connection_id", c.ID).Str("room", string(key)).Msg("failed to subscribe connection")
		}
	}

	greeting := ConnectedMessage{
		Header:       header(MessageConnected, g.clock.Now()),
		ConnectionID: c.ID,
		EventID:      c.EventID,
		Role:         c.Identity.Role,
	}
	if c.RoundID != uuid.Nil {
		roundID := c.RoundID
		greeting.RoundID = &roundID
	}
	g.reply(c, greeting)
	if onConnect != nil {
		onConnect(c)
	}

	go g.writePump(conn, c)
	go g.readPump(conn, c)

	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Str("role", string(c.Identity.Role)).
		Str("event_id", c.EventID.String()).
		Int("rooms", len(rooms)).
		Msg("WebSocket connection established")
}

// writePump drains the client's queue onto the socket and keeps it alive
// with pings. It exits when the hub drops the client or a write fails.
func (g *Gateway) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(g.config.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
		g.hub.DropConnection(c.ID)
	}()

	for {
		select {
		case message, ok := <-c.Send():
			conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles client messages until the socket fails or no pong
// arrives within PongTimeout.
func (g *Gateway) readPump(conn *websocket.Conn, c *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		g.hub.DropConnection(c.ID)
		conn.Close()
	}()

	conn.SetReadLimit(g.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(g.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(g.config.PongTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(g.config.PongTimeout))

		msgCtx, msgCancel := context.WithTimeout(ctx, clientMessageTimeout)
		g.HandleClientMessage(msgCtx, c, message)
		msgCancel()
	}
}
