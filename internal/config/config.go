// Package config provides Viper-based configuration loading for the
// tic-tac-toe server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// ServerConfig holds HTTP and WebSocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener; 0 picks a free port.
	Port int `mapstructure:"port"`
	// WSPath is the path upgraded to WebSocket connections.
	WSPath string `mapstructure:"ws_path"`
	// ReadTimeout bounds the wait for the next client frame or pong.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	// OutboxSize is the per-channel outbound buffer length.
	OutboxSize int `mapstructure:"outbox_size"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PingInterval is how often the server pings idle clients. It stays below
// ReadTimeout so a healthy client always answers in time.
func (s ServerConfig) PingInterval() time.Duration {
	return s.ReadTimeout * 9 / 10
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// HealthTimeout bounds readiness and periodic health pings.
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds leaderboard cache settings.
type RedisConfig struct {
	// Enabled turns the leaderboard cache on.
	Enabled bool `mapstructure:"enabled"`
	// URL is a redis:// URL or a bare host:port.
	URL string `mapstructure:"url"`
	// LeaderboardTTL is how long a cached leaderboard is served.
	LeaderboardTTL time.Duration `mapstructure:"leaderboard_ttl"`
}

// AuthConfig holds identity token settings.
type AuthConfig struct {
	// JWTSecret signs identity tokens.
	JWTSecret string `mapstructure:"jwt_secret"`
	// TokenTTL is the lifetime of an issued token.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// RequireToken makes WebSocket authenticate messages carry a valid token.
	RequireToken bool `mapstructure:"require_token"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `mapstructure:"driver"`
}

// GameConfig holds session coordinator settings.
type GameConfig struct {
	LeaderboardSize    int  `mapstructure:"leaderboard_size"`
	HistoryLimit       int  `mapstructure:"history_limit"`
	ResignOnDisconnect bool `mapstructure:"resign_on_disconnect"`
	// CompletedRetention is how long finished games stay in memory.
	CompletedRetention time.Duration `mapstructure:"completed_retention"`
	// PruneInterval is how often finished games are swept.
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Game     GameConfig     `mapstructure:"game"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants. Database settings are only
// checked for the postgres driver and redis settings only when enabled.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Driver == DriverPostgres {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Redis.Enabled {
		if err := validateRedis(c.Redis); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateAuth(c.Auth); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", s.Port))
	}
	if !strings.HasPrefix(s.WSPath, "/") {
		errs = append(errs, fmt.Sprintf("server.ws_path must start with /, got %q", s.WSPath))
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if s.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("server.max_message_size must be >= 1, got %d", s.MaxMessageSize))
	}
	if s.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("server.outbox_size must be >= 1, got %d", s.OutboxSize))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	return joinErrs(errs)
}

func validateStorage(s StorageConfig) error {
	if s.Driver != DriverMemory && s.Driver != DriverPostgres {
		return fmt.Errorf("storage.driver must be one of [memory, postgres], got %q", s.Driver)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if d.HealthTimeout < 0 {
		errs = append(errs, fmt.Sprintf("database.health_timeout must be >= 0, got %s", d.HealthTimeout))
	}
	return joinErrs(errs)
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.URL == "" {
		errs = append(errs, "redis.url must not be empty when redis is enabled")
	}
	if r.LeaderboardTTL <= 0 {
		errs = append(errs, "redis.leaderboard_ttl must be positive")
	}
	return joinErrs(errs)
}

func validateAuth(a AuthConfig) error {
	var errs []string
	if a.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret must not be empty")
	}
	if a.TokenTTL <= 0 {
		errs = append(errs, "auth.token_ttl must be positive")
	}
	return joinErrs(errs)
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.LeaderboardSize < 1 {
		errs = append(errs, fmt.Sprintf("game.leaderboard_size must be >= 1, got %d", g.LeaderboardSize))
	}
	if g.HistoryLimit < 1 {
		errs = append(errs, fmt.Sprintf("game.history_limit must be >= 1, got %d", g.HistoryLimit))
	}
	if g.CompletedRetention < 0 {
		errs = append(errs, "game.completed_retention must not be negative")
	}
	if g.PruneInterval <= 0 {
		errs = append(errs, "game.prune_interval must be positive")
	}
	return joinErrs(errs)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// ErrNoConfigFile is returned by Load when path is empty.
var ErrNoConfigFile = errors.New("config file path is empty")

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, ErrNoConfigFile
	}
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadDatabase reads only the database section, so schema migrations run
// without the rest of the server configuration. An empty path uses defaults
// and environment overrides alone.
//
// Postcondition: Returns a valid DatabaseConfig or a non-nil error.
func LoadDatabase(path string) (DatabaseConfig, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return DatabaseConfig{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DatabaseConfig{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

// NewViper returns a Viper instance with defaults and TICTACTOE_ environment
// overrides applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TICTACTOE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.max_message_size", 4096)
	v.SetDefault("server.outbox_size", 64)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tictactoe")
	v.SetDefault("database.password", "tictactoe")
	v.SetDefault("database.name", "tictactoe")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.health_timeout", "2s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.leaderboard_ttl", "30s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.require_token", true)

	v.SetDefault("storage.driver", DriverMemory)

	v.SetDefault("game.leaderboard_size", 10)
	v.SetDefault("game.history_limit", 10)
	v.SetDefault("game.resign_on_disconnect", false)
	v.SetDefault("game.completed_retention", "10m")
	v.SetDefault("game.prune_interval", "1m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
