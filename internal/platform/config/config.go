// Package config holds the runtime configuration of the game server.
// Values come from defaults, an optional YAML file, an optional .env file
// and NBACK_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GameConfig mirrors the session controller parameters.
type GameConfig struct {
	GameType      string        `yaml:"game_type"`
	NBack         int           `yaml:"n_back"`
	EventCount    int           `yaml:"event_count"`
	Interval      time.Duration `yaml:"interval"`
	AlphabetSize  int           `yaml:"alphabet_size"`
	MinMatches    int           `yaml:"min_matches"`
	FeedbackDelay time.Duration `yaml:"feedback_delay"`
}

// ServerConfig holds HTTP and WebSocket settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// Channel buffer sizes
	BroadcastBuffer  int `yaml:"broadcast_buffer"`
	ClientSendBuffer int `yaml:"client_send_buffer"`

	// Minimum gap between two MATCH presses from the same client.
	MatchRateLimit time.Duration `yaml:"match_rate_limit"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the high score backend.
type StorageConfig struct {
	Driver       string `yaml:"driver"` // sqlite (modernc), sqlite3 (cgo) or memory
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// SpeechConfig controls server-side speech.
type SpeechConfig struct {
	// Command is a local TTS binary invoked with the letter as its last
	// argument (e.g. "espeak"). Empty disables local speech.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the full server configuration.
type Config struct {
	Game    GameConfig    `yaml:"game"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Speech  SpeechConfig  `yaml:"speech"`
	Log     LogConfig     `yaml:"log"`
}

// DefaultConfig returns the reference configuration: 2-back, ten events,
// two seconds apart, over a nine letter alphabet.
func DefaultConfig() *Config {
	return &Config{
		Game: GameConfig{
			GameType:      "Visual",
			NBack:         2,
			EventCount:    10,
			Interval:      2000 * time.Millisecond,
			AlphabetSize:  9,
			MinMatches:    3,
			FeedbackDelay: 500 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:             ":8080",
			BroadcastBuffer:  256,
			ClientSendBuffer: 64,
			MatchRateLimit:   100 * time.Millisecond,
			ShutdownTimeout:  5 * time.Second,
		},
		Storage: StorageConfig{
			Driver:       "sqlite",
			Path:         "nback.db",
			MaxOpenConns: 1, // SQLite serializes writers anyway
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DevConfig returns settings for local development: fast ticks, in-memory
// storage and console logs.
func DevConfig() *Config {
	cfg := DefaultConfig()
	cfg.Game.Interval = 750 * time.Millisecond
	cfg.Storage.Driver = "memory"
	cfg.Log.Level = "debug"
	cfg.Log.Development = true
	return cfg
}

// Profile returns the named configuration profile.
func Profile(name string) (*Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "dev":
		return DevConfig(), nil
	default:
		return nil, fmt.Errorf("unknown config profile %q", name)
	}
}

// Load builds a configuration starting from base, overlaying the YAML file at
// path (if non-empty), the .env file in the working directory (if present)
// and the process environment.
func Load(base *Config, path string) (*Config, error) {
	cfg := *base

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("NBACK_ADDR", &c.Server.Addr)
	str("NBACK_DB_DRIVER", &c.Storage.Driver)
	str("NBACK_DB_PATH", &c.Storage.Path)
	str("NBACK_LOG_LEVEL", &c.Log.Level)
	str("NBACK_GAME_TYPE", &c.Game.GameType)
	str("NBACK_SPEECH_COMMAND", &c.Speech.Command)

	if v, ok := lookup("NBACK_LOG_DEV"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid NBACK_LOG_DEV: %w", err)
		}
		c.Log.Development = b
	}

	for key, dst := range map[string]*int{
		"NBACK_N":           &c.Game.NBack,
		"NBACK_EVENTS":      &c.Game.EventCount,
		"NBACK_ALPHABET":    &c.Game.AlphabetSize,
		"NBACK_MIN_MATCHES": &c.Game.MinMatches,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if err := dur("NBACK_INTERVAL", &c.Game.Interval); err != nil {
		return err
	}
	return dur("NBACK_FEEDBACK_DELAY", &c.Game.FeedbackDelay)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for sqlite drivers")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.BroadcastBuffer < 0 || c.Server.ClientSendBuffer < 1 {
		return errors.New("server buffers must be positive")
	}
	if c.Game.NBack < 1 {
		return fmt.Errorf("game.n_back must be at least 1, got %d", c.Game.NBack)
	}
	if c.Game.Interval <= 0 {
		return fmt.Errorf("game.interval must be positive, got %s", c.Game.Interval)
	}
	return nil
}
