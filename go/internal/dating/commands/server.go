// Package commands carries organizer commands and engine lifecycle events
// over NATS so back-office services can drive and follow sessions without a
// socket.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/gateway"
)

// Executor runs a decoded command.
type Executor interface {
	Execute(ctx context.Context, cmd gateway.Command) error
}

// ServerConfig configures the command subscription. Round and countdown
// engines live in the gateway's memory, so a deployment runs a single
// gateway. The queue group only matters while an old and a new process
// overlap during a restart; it does not spread engines across instances.
type ServerConfig struct {
	SubjectPrefix  string        `yaml:"subject_prefix"`
	QueueGroup     string        `yaml:"queue_group"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		SubjectPrefix:  "speeddating.commands",
		QueueGroup:     "speeddating-gateway",
		CommandTimeout: 15 * time.Second,
	}
}

// Reply is the body of every command response.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Server answers command requests published on <prefix>.<command type>.
// Every gateway instance joins the same queue group so each request is
// handled once.
type Server struct {
	nc     *nats.Conn
	exec   Executor
	config ServerConfig
	sub    *nats.Subscription
}

func NewServer(nc *nats.Conn, exec Executor, config ServerConfig) *Server {
	d := DefaultServerConfig()
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = d.SubjectPrefix
	}
	if config.QueueGroup == "" {
		config.QueueGroup = d.QueueGroup
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = d.CommandTimeout
	}
	return &Server{nc: nc, exec: exec, config: config}
}

// Start subscribes to command subjects. Handling stops when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	subject := s.config.SubjectPrefix + ".*"
	sub, err := s.nc.QueueSubscribe(subject, s.config.QueueGroup, func(msg *nats.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	s.sub = sub

	log.Info().
		Str("subject", subject).
		Str("queue", s.config.QueueGroup).
		Msg("command server started")

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop command server")
		}
	}()
	return nil
}

// Stop drains the subscription so in-flight commands are answered.
func (s *Server) Stop() error {
	if s.sub == nil || !s.sub.IsValid() {
		return nil
	}
	return s.sub.Drain()
}

func (s *Server) handle(ctx context.Context, msg *nats.Msg) {
	cmdCtx, cancel := context.WithTimeout(ctx, s.config.CommandTimeout)
	defer cancel()

	reply := s.dispatch(cmdCtx, msg.Subject, msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to marshal command reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to respond to command")
	}
}

// dispatch decodes the command named by the subject's last token and runs
// it.
func (s *Server) dispatch(ctx context.Context, subject string, data []byte) Reply {
	kind, ok := strings.CutPrefix(subject, s.config.SubjectPrefix+".")
	if !ok || kind == "" || strings.Contains(kind, ".") {
		return failure(fmt.Errorf("%w: subject %q", gateway.ErrUnknownCommand, subject))
	}

	cmd, err := gateway.DecodeCommand(gateway.CommandType(kind), data)
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("invalid command request")
		return failure(err)
	}
	if err := s.exec.Execute(ctx, cmd); err != nil {
		return failure(err)
	}
	return Reply{OK: true}
}

func failure(err error) Reply {
	return Reply{Error: err.Error(), Code: gateway.ErrorCode(err)}
}
