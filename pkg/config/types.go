package config

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Log       LogConfig       `yaml:"log"`
	Fanout    FanoutConfig    `yaml:"fanout"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Presence  PresenceConfig  `yaml:"presence"`
}

// ServerConfig holds listen address and storage settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// SecurityConfig holds API keys, signing secrets, CORS and rate limits.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
	// SigningKeys verify the HMAC user signature (X-User-Signature and
	// the websocket auth frame). Backend API keys are implicitly valid
	// signing keys as well.
	SigningKeys []string `yaml:"signing_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LogConfig controls the message log write path.
type LogConfig struct {
	// RetryAttempts bounds retries of a failed durable write before the
	// caller sees Unavailable.
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
	// PageLimit caps (and defaults) page sizes.
	PageLimit        int `yaml:"page_limit"`
	DefaultPageLimit int `yaml:"default_page_limit"`
}

// FanoutConfig controls dispatcher workers and queue depth.
type FanoutConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
	// ConnBuffer is the per-connection delivery buffer; a connection that
	// falls this far behind is dropped and must page to catch up.
	ConnBuffer int `yaml:"conn_buffer"`
}

// WebSocketConfig holds gateway connection tuning.
type WebSocketConfig struct {
	MaxMessageSize Size     `yaml:"max_message_size"`
	WriteWait      Duration `yaml:"write_wait"`
	PongWait       Duration `yaml:"pong_wait"`
	PingInterval   Duration `yaml:"ping_interval"`
}

// PresenceConfig controls the presence sweeper.
type PresenceConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Cron         string   `yaml:"cron"`
	AwayAfter    Duration `yaml:"away_after"`
	OfflineAfter Duration `yaml:"offline_after"`
}

// Duration wraps time.Duration with yaml support for "500ms"/"2m" forms
// and bare integers (interpreted as milliseconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var ms int64
		if err2 := value.Decode(&ms); err2 != nil {
			return fmt.Errorf("invalid duration %q", value.Value)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	dd, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(dd)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Size wraps a byte count with yaml support for humanized forms like
// "64KiB" or "1MB" and bare integers.
type Size int64

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var n int64
		if err2 := value.Decode(&n); err2 != nil {
			return fmt.Errorf("invalid size %q", value.Value)
		}
		*s = Size(n)
		return nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", raw, err)
	}
	*s = Size(n)
	return nil
}
