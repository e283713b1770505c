package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL   string        `yaml:"-"`
	NotifyChannel string        `yaml:"notify_channel"`
	PingInterval  time.Duration `yaml:"ping_interval"`
	MinReconnect  time.Duration `yaml:"min_reconnect"`
	MaxReconnect  time.Duration `yaml:"max_reconnect"`
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "match_responses",
		PingInterval:  90 * time.Second,
		MinReconnect:  10 * time.Second,
		MaxReconnect:  time.Minute,
	}
}

// StatisticsPusher refreshes the statistics organizers see for an event.
type StatisticsPusher interface {
	PushStatistics(ctx context.Context, eventID uuid.UUID) error
}

// ResponseListener pushes statistics when a response is written by any
// process. The matches trigger notifies with the event id as payload.
type ResponseListener struct {
	listener *pq.Listener
	pusher   StatisticsPusher
	cfg      ListenerConfig
}

func NewResponseListener(pusher StatisticsPusher, cfg ListenerConfig) (*ResponseListener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &ResponseListener{listener: l, pusher: pusher, cfg: cfg}, nil
}

// Start handles notifications until ctx is done.
func (l *ResponseListener) Start(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				// Connection was re-established; notifications in between are lost.
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Str("payload", note.Extra).Msg("failed to handle notification")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *ResponseListener) handleNotification(ctx context.Context, payload string) error {
	eventID, err := uuid.Parse(strings.TrimSpace(payload))
	if err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}
	if err := l.pusher.PushStatistics(ctx, eventID); err != nil {
		return fmt.Errorf("push statistics for event %s: %w", eventID, err)
	}
	return nil
}
