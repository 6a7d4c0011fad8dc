// Package config defines all configuration for the Figgie exchange server.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// overrides via FIGGIE_* environment variables; a .env file is honored if
// present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	BindAddr string `mapstructure:"bind_addr"`
}

// GameConfig sets the table size and trading clock.
//
//   - Players: seats per session, 4 or 5 — the deck composition only works
//     for these sizes.
//   - TradingDurationSec: wall-clock trading window. Clients only ever see
//     the normalized 0..240 scale, so this can vary freely between servers.
type GameConfig struct {
	Players            int `mapstructure:"players"`
	TradingDurationSec int `mapstructure:"trading_duration"`
}

// StoreConfig sets where game events are persisted (SQLite file, or
// ":memory:" for a throwaway database).
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TradingDuration returns the trading window as a time.Duration.
func (c *Config) TradingDuration() time.Duration {
	return time.Duration(c.Game.TradingDurationSec) * time.Second
}

// Load reads config from a YAML file with env var overrides
// (FIGGIE_PLAYERS, FIGGIE_TRADING_DURATION, FIGGIE_BIND_ADDR, FIGGIE_DB_PATH).
func Load(path string) (*Config, error) {
	// Load .env if present; silently skipped otherwise.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FIGGIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.bind_addr", ":5050")
	v.SetDefault("game.players", 4)
	v.SetDefault("game.trading_duration", 240)
	v.SetDefault("store.path", "data/figgie.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine — defaults plus env cover everything.
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if s := os.Getenv("FIGGIE_PLAYERS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.Game.Players = n
		}
	}
	if s := os.Getenv("FIGGIE_TRADING_DURATION"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.Game.TradingDurationSec = n
		}
	}
	if s := os.Getenv("FIGGIE_BIND_ADDR"); s != "" {
		cfg.Server.BindAddr = s
	}
	if s := os.Getenv("FIGGIE_DB_PATH"); s != "" {
		cfg.Store.Path = s
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Game.Players != 4 && c.Game.Players != 5 {
		return fmt.Errorf("game.players must be 4 or 5, got %d", c.Game.Players)
	}
	if c.Game.TradingDurationSec <= 0 {
		return fmt.Errorf("game.trading_duration must be > 0, got %d", c.Game.TradingDurationSec)
	}
	if c.Server.BindAddr == "" {
		return fmt.Errorf("server.bind_addr is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	return nil
}
