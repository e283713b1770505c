package gateway

import (
	"context"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/matching"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/results"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/timer"
)

// Service is the realtime coordinator: engines, hub, status persistence
// and the socket endpoints, started and stopped together.
type Service struct {
	hub      *Hub
	statuses *StatusWriter
	registry *timer.Registry
	gateway  *Gateway

	stopOnce sync.Once
}

// Config holds configuration for the realtime service
type Config struct {
	Connection    ConnectionConfig    `yaml:"connection"`
	Warnings      timer.WarningPolicy `yaml:"warnings"`
	StatusWorkers int                 `yaml:"status_workers"`
	StatusBuffer  int                 `yaml:"status_buffer"`
}

// DefaultConfig returns default configuration for the realtime service
func DefaultConfig() Config {
	return Config{
		Connection:    DefaultConnectionConfig(),
		Warnings:      timer.DefaultWarningPolicy(),
		StatusWorkers: 4,
		StatusBuffer:  256,
	}
}

// ServiceDeps are the collaborators supplied by the entry point.
type ServiceDeps struct {
	Store      Store
	Aggregator *results.Aggregator
	Scheduler  *matching.Scheduler
	Authorizer Authorizer
	Clock      clockwork.Clock
	// Mirror, when set, receives every engine message next to the hub.
	Mirror Broadcaster
}

// NewService wires the hub, the engine registry and the gateway. ctx bounds
// the lifetime of every engine.
func NewService(ctx context.Context, config Config, deps ServiceDeps) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	hub := NewHub()
	statuses := NewStatusWriter(deps.Store, config.StatusWorkers, config.StatusBuffer)
	var out Broadcaster = hub
	if deps.Mirror != nil {
		out = Broadcasters{hub, deps.Mirror}
	}
	registry := timer.NewRegistry(ctx, deps.Clock, NewTranslator(out, statuses), config.Warnings)

	gw := New(Deps{
		Hub:        hub,
		Registry:   registry,
		Store:      deps.Store,
		Scheduler:  deps.Scheduler,
		Aggregator: deps.Aggregator,
		Authorizer: deps.Authorizer,
		Clock:      deps.Clock,
	}, config.Connection)

	return &Service{hub: hub, statuses: statuses, registry: registry, gateway: gw}
}

// Start runs the service until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting realtime service")
	s.statuses.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("realtime service shutting down")
	s.Stop()
	return nil
}

// Stop halts every engine, then flushes pending round status changes.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.registry.Shutdown()
		s.statuses.Stop()
		log.Info().Msg("realtime service stopped")
	})
}

// Gateway exposes the command and socket surface.
func (s *Service) Gateway() *Gateway { return s.gateway }

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(r chi.Router) {
	s.gateway.RegisterRoutes(r)
	log.Info().Msg("realtime gateway routes registered")
}
