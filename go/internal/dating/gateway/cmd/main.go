package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/auth"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/commands"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/gateway"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/matching"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/repository"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/results"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dbconfig"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Database
	dbCfg := dbconfig.NewConfigFromEnv()
	pool, err := repository.Connect(ctx, dbCfg.PoolDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if getEnv("DB_MIGRATE", "true") == "true" {
		if err := repository.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	clock := clockwork.NewRealClock()
	repo := repository.New(pool)

	compat, err := config.Matching.compatibility()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure matching")
	}

	authorizer, err := setupAuthorizer(config.Auth)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure authorization")
	}

	// NATS
	nc, err := commands.Connect(config.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	var mirror gateway.Broadcaster
	var events *commands.EventPublisher
	if config.Events.Enabled {
		events, err = commands.NewEventPublisher(ctx, nc, config.Events.StreamConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up event stream")
		}
		mirror = events
	}

	service := gateway.NewService(ctx, config.Gateway, gateway.ServiceDeps{
		Store:      repo,
		Aggregator: results.NewAggregator(repo, clock),
		Scheduler:  matching.NewScheduler(compat),
		Authorizer: authorizer,
		Clock:      clock,
		Mirror:     mirror,
	})

	commandServer := commands.NewServer(nc, service.Gateway(), config.Commands)
	if err := commandServer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start command server")
	}

	listenerCfg := config.Listener
	listenerCfg.DatabaseURL = dbCfg.DSN()
	listener, err := repository.NewResponseListener(service.Gateway(), listenerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start response listener")
	}
	go func() {
		if err := listener.Start(ctx); err != nil {
			log.Error().Err(err).Msg("response listener stopped")
		}
	}()

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("realtime service failed")
		}
	}()

	server := setupServer(config.Server, service)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().
		Str("database", dbCfg.Database).
		Str("nats_url", config.NATS.URL).
		Str("port", config.Server.Port).
		Bool("event_stream", config.Events.Enabled).
		Msg("speed-dating gateway started")

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := commandServer.Stop(); err != nil {
		log.Error().Err(err).Msg("command server shutdown failed")
	}
	<-serviceDone
	if events != nil {
		if err := events.Flush(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("event stream not fully flushed")
		}
	}

	log.Info().Msg("speed-dating gateway shutdown complete")
}

func setupAuthorizer(cfg AuthConfig) (gateway.Authorizer, error) {
	if cfg.PublicKeyPath != "" {
		key, err := auth.LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		return auth.NewRSAAuthorizer(key, cfg.Issuer, cfg.Audience), nil
	}
	return auth.NewHMACAuthorizer([]byte(cfg.Secret), cfg.Issuer, cfg.Audience), nil
}
