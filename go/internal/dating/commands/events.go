package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/gateway"
)

type StreamConfig struct {
	StreamName    string        `yaml:"stream_name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxAge        time.Duration `yaml:"max_age"`
	MaxMsgs       int64         `yaml:"max_msgs"`
	Replicas      int           `yaml:"replicas"`
	MaxPending    int           `yaml:"max_pending"`
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		StreamName:    "SPEEDDATING_EVENTS",
		SubjectPrefix: "speeddating.events",
		MaxAge:        7 * 24 * time.Hour,
		MaxMsgs:       -1, // No limit
		Replicas:      1,
		MaxPending:    1024,
	}
}

// Per-second updates are socket-only.
var unmirrored = map[gateway.MessageType]bool{
	gateway.MessageTimerUpdate:     true,
	gateway.MessageCountdownUpdate: true,
}

type typedMessage interface {
	MessageType() gateway.MessageType
}

// EventPublisher mirrors engine messages onto a JetStream stream. It
// implements gateway.Broadcaster and never blocks the engine that emitted
// the message.
type EventPublisher struct {
	js     jetstream.JetStream
	config StreamConfig
}

var _ gateway.Broadcaster = (*EventPublisher)(nil)

func NewEventPublisher(ctx context.Context, nc *nats.Conn, config StreamConfig) (*EventPublisher, error) {
	js, err := jetstream.New(nc, jetstream.WithPublishAsyncMaxPending(config.MaxPending))
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	p := &EventPublisher{js: js, config: config}
	if err := p.ensureStream(ctx); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *EventPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Speed-dating round and countdown lifecycle",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
	}
	if _, err := p.js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("create stream %s: %w", sc.Name, err)
	}
	log.Info().Str("stream", sc.Name).Msg("JetStream stream ready")
	return nil
}

// Fanout publishes msg once regardless of how many rooms it targets.
func (p *EventPublisher) Fanout(msg any, keys ...gateway.RoomKey) {
	subject, ok := eventSubject(p.config.SubjectPrefix, msg)
	if !ok {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal event")
		return
	}

	rooms := make([]string, len(keys))
	for i, k := range keys {
		rooms[i] = string(k)
	}
	_, err = p.js.PublishMsgAsync(&nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{"Rooms": rooms},
	})
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish event")
	}
}

// Flush waits for outstanding publishes to be acknowledged.
func (p *EventPublisher) Flush(ctx context.Context) error {
	select {
	case <-p.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush events: %w", ctx.Err())
	}
}

// eventSubject names the subject for msg, or reports false when msg is not
// mirrored.
func eventSubject(prefix string, msg any) (string, bool) {
	m, ok := msg.(typedMessage)
	if !ok {
		return "", false
	}
	t := m.MessageType()
	if t == "" || unmirrored[t] {
		return "", false
	}
	return prefix + "." + strings.ReplaceAll(string(t), ".", "_"), true
}
