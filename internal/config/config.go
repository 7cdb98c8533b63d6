// Package config loads Pulsechat's runtime configuration. Required settings
// come from environment variables exactly as named in the process model;
// missing required vars abort startup with a clear message. An optional
// pulsechat.toml layers secondary ambient settings (log level/format,
// gateway heartbeat interval/timeout) on top of built-in defaults before
// the required env vars are applied, the same file-then-env order the
// teacher's loader used. The file has no reconnect backoff setting; the
// event subscriber's reconnect delay is the fixed
// events.DefaultReconnectDelay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the fully resolved configuration for a Pulsechat process.
type Config struct {
	APIPort     int
	GatewayPort int
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	WorkerID    int64

	JWT       JWTConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Gateway   GatewayConfig
	Logging   LoggingConfig
}

// JWTConfig defines access/refresh token signing and lifetime.
type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// RateLimitConfig defines the REST API's global per-IP token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// CORSConfig defines the REST API's allowed cross-origin callers.
type CORSConfig struct {
	AllowedOrigins []string
}

// GatewayConfig holds WebSocket heartbeat timing, layered from an optional
// pulsechat.toml since the process model does not require it as an env var.
// The gateway server does not read these values; it uses its own fixed
// gateway.HeartbeatInterval (45s) and gateway.SilenceTimeout (90s).
type GatewayConfig struct {
	HeartbeatInterval time.Duration `toml:"-"`
	HeartbeatTimeout  time.Duration `toml:"-"`
}

type gatewayFileConfig struct {
	HeartbeatInterval string `toml:"heartbeat_interval"`
	HeartbeatTimeout  string `toml:"heartbeat_timeout"`
}

// LoggingConfig defines structured logging settings, layered from an
// optional pulsechat.toml.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// fileConfig is the shape of the optional pulsechat.toml. It only carries
// ambient settings the process model does not require as environment
// variables; everything load-bearing for startup comes from env vars.
type fileConfig struct {
	Gateway gatewayFileConfig `toml:"gateway"`
	Logging LoggingConfig     `toml:"logging"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Gateway: gatewayFileConfig{
			HeartbeatInterval: "30s",
			HeartbeatTimeout:  "90s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the optional TOML file at path (if it exists) for ambient
// settings, then applies the required environment variables, then validates
// the result. A missing path is not an error; missing required environment
// variables are.
func Load(path string) (*Config, error) {
	fc := defaultFileConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	cfg, err := fromEnv(fc)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv(fc fileConfig) (*Config, error) {
	var missing []string
	req := func(name string) string {
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	apiPort := mustAtoi(req("API_PORT"), &missing, "API_PORT")
	gatewayPort := mustAtoi(req("GATEWAY_PORT"), &missing, "GATEWAY_PORT")
	databaseURL := req("DATABASE_URL")
	redisURL := req("REDIS_URL")
	jwtSecret := req("JWT_SECRET")
	accessExpiry := mustDuration(req("JWT_ACCESS_TOKEN_EXPIRY"), &missing, "JWT_ACCESS_TOKEN_EXPIRY")
	refreshExpiry := mustDuration(req("JWT_REFRESH_TOKEN_EXPIRY"), &missing, "JWT_REFRESH_TOKEN_EXPIRY")
	rps := mustFloat(req("RATE_LIMIT_REQUESTS_PER_SECOND"), &missing, "RATE_LIMIT_REQUESTS_PER_SECOND")
	burst := mustAtoi(req("RATE_LIMIT_BURST"), &missing, "RATE_LIMIT_BURST")
	corsOrigins := req("CORS_ALLOWED_ORIGINS")
	workerID := mustInt64(req("WORKER_ID"), &missing, "WORKER_ID")

	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	heartbeatInterval, err := time.ParseDuration(fc.Gateway.HeartbeatInterval)
	if err != nil {
		return nil, fmt.Errorf("config: parsing gateway.heartbeat_interval %q: %w", fc.Gateway.HeartbeatInterval, err)
	}
	heartbeatTimeout, err := time.ParseDuration(fc.Gateway.HeartbeatTimeout)
	if err != nil {
		return nil, fmt.Errorf("config: parsing gateway.heartbeat_timeout %q: %w", fc.Gateway.HeartbeatTimeout, err)
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	return &Config{
		APIPort:     apiPort,
		GatewayPort: gatewayPort,
		DatabaseURL: databaseURL,
		RedisURL:    redisURL,
		NATSURL:     natsURL,
		WorkerID:    workerID,
		JWT: JWTConfig{
			Secret:             jwtSecret,
			AccessTokenExpiry:  accessExpiry,
			RefreshTokenExpiry: refreshExpiry,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: rps,
			Burst:             burst,
		},
		CORS: CORSConfig{
			AllowedOrigins: splitAndTrim(corsOrigins),
		},
		Gateway: GatewayConfig{
			HeartbeatInterval: heartbeatInterval,
			HeartbeatTimeout:  heartbeatTimeout,
		},
		Logging: fc.Logging,
	}, nil
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustAtoi(v string, missing *[]string, name string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*missing = append(*missing, name+" (not an integer)")
		return 0
	}
	return n
}

func mustInt64(v string, missing *[]string, name string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*missing = append(*missing, name+" (not an integer)")
		return 0
	}
	return n
}

func mustFloat(v string, missing *[]string, name string) float64 {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*missing = append(*missing, name+" (not a number)")
		return 0
	}
	return f
}

func mustDuration(v string, missing *[]string, name string) time.Duration {
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*missing = append(*missing, name+" (not a duration, e.g. \"15m\")")
		return 0
	}
	return d
}

// validate checks cross-field constraints that a single env var can't catch
// on its own.
func validate(cfg *Config) error {
	if cfg.APIPort < 1 || cfg.APIPort > 65535 {
		return fmt.Errorf("config: API_PORT must be between 1 and 65535")
	}
	if cfg.GatewayPort < 1 || cfg.GatewayPort > 65535 {
		return fmt.Errorf("config: GATEWAY_PORT must be between 1 and 65535")
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_REQUESTS_PER_SECOND must be positive")
	}
	if cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("config: RATE_LIMIT_BURST must be at least 1")
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("config: CORS_ALLOWED_ORIGINS must not be empty")
	}
	if cfg.WorkerID < 0 || cfg.WorkerID > 1023 {
		return fmt.Errorf("config: WORKER_ID must be between 0 and 1023")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("config: logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("config: logging.format must be one of: json, text (got %q)", cfg.Logging.Format)
	}

	return nil
}
