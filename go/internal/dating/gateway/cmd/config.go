package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/commands"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/gateway"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/matching"
	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/repository"
)

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type AuthConfig struct {
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	PublicKeyPath string `yaml:"public_key_path"`

	// Secret is only read from JWT_SECRET.
	Secret string `yaml:"-"`
}

type MatchingConfig struct {
	// Compatibility replaces the default table when non-empty.
	Compatibility []matching.Rule `yaml:"compatibility"`
}

type EventsConfig struct {
	Enabled               bool `yaml:"enabled"`
	commands.StreamConfig `yaml:",inline"`
}

type Config struct {
	Server   ServerConfig              `yaml:"server"`
	Gateway  gateway.Config            `yaml:"gateway"`
	Matching MatchingConfig            `yaml:"matching"`
	Auth     AuthConfig                `yaml:"auth"`
	NATS     commands.NATSConfig       `yaml:"nats"`
	Commands commands.ServerConfig     `yaml:"commands"`
	Events   EventsConfig              `yaml:"events"`
	Listener repository.ListenerConfig `yaml:"listener"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8081",
			ReadTimeout:     10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Gateway:  gateway.DefaultConfig(),
		Auth:     AuthConfig{Issuer: "speeddating", Audience: "speeddating-gateway"},
		NATS:     commands.DefaultNATSConfig(),
		Commands: commands.DefaultServerConfig(),
		Events:   EventsConfig{Enabled: true, StreamConfig: commands.DefaultStreamConfig()},
		Listener: repository.DefaultListenerConfig(),
	}
}

// loadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file leaves the defaults in place.
func loadConfig(path string) (Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return Config{}, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", config.Server.ShutdownTimeout)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		config.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	if len(config.Server.AllowedOrigins) > 0 {
		config.Gateway.Connection.AllowedOrigins = config.Server.AllowedOrigins
	}
	config.Gateway.StatusWorkers = getEnvAsInt("STATUS_WORKERS", config.Gateway.StatusWorkers)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.Auth.Secret = getEnv("JWT_SECRET", "")
	config.Auth.PublicKeyPath = getEnv("JWT_PUBLIC_KEY_PATH", config.Auth.PublicKeyPath)

	if config.Auth.Secret == "" && config.Auth.PublicKeyPath == "" {
		return Config{}, errors.New("either JWT_SECRET or JWT_PUBLIC_KEY_PATH is required")
	}
	return config, nil
}

// compatibility builds the pairing table from config.
func (c MatchingConfig) compatibility() (*matching.Compatibility, error) {
	if len(c.Compatibility) == 0 {
		return matching.DefaultCompatibility(), nil
	}
	compat, err := matching.NewCompatibility(c.Compatibility...)
	if err != nil {
		return nil, fmt.Errorf("invalid compatibility rules: %w", err)
	}
	return compat, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
