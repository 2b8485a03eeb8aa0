package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied after load; zero values get filled in so the rest of
// the code never re-checks.
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = "./data"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Log.RetryAttempts == 0 {
		c.Log.RetryAttempts = 3
	}
	if c.Log.RetryBackoff == 0 {
		c.Log.RetryBackoff = Duration(50 * time.Millisecond)
	}
	if c.Log.PageLimit == 0 {
		c.Log.PageLimit = 200
	}
	if c.Log.DefaultPageLimit == 0 {
		c.Log.DefaultPageLimit = 50
	}
	if c.Fanout.Workers == 0 {
		c.Fanout.Workers = 4
	}
	if c.Fanout.QueueSize == 0 {
		c.Fanout.QueueSize = 4096
	}
	if c.Fanout.ConnBuffer == 0 {
		c.Fanout.ConnBuffer = 256
	}
	if c.WebSocket.MaxMessageSize == 0 {
		c.WebSocket.MaxMessageSize = 64 * 1024
	}
	if c.WebSocket.WriteWait == 0 {
		c.WebSocket.WriteWait = Duration(10 * time.Second)
	}
	if c.WebSocket.PongWait == 0 {
		c.WebSocket.PongWait = Duration(60 * time.Second)
	}
	if c.WebSocket.PingInterval == 0 {
		c.WebSocket.PingInterval = Duration(54 * time.Second)
	}
	if c.Presence.Cron == "" {
		c.Presence.Cron = "* * * * *"
	}
	if c.Presence.AwayAfter == 0 {
		c.Presence.AwayAfter = Duration(5 * time.Minute)
	}
	if c.Presence.OfflineAfter == 0 {
		c.Presence.OfflineAfter = Duration(30 * time.Minute)
	}
}

// Load reads the yaml config at path (optional) and applies env
// overrides and defaults. An empty path yields a default config.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv lets deployment env vars override file values. Keys are
// comma-separated lists.
func (c *Config) applyEnv() {
	if v := os.Getenv("CHATSYNC_DB_PATH"); v != "" {
		c.Server.DBPath = v
	}
	if v := os.Getenv("CHATSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHATSYNC_BACKEND_KEYS"); v != "" {
		c.Security.APIKeys.Backend = splitList(v)
	}
	if v := os.Getenv("CHATSYNC_FRONTEND_KEYS"); v != "" {
		c.Security.APIKeys.Frontend = splitList(v)
	}
	if v := os.Getenv("CHATSYNC_ADMIN_KEYS"); v != "" {
		c.Security.APIKeys.Admin = splitList(v)
	}
	if v := os.Getenv("CHATSYNC_SIGNING_KEYS"); v != "" {
		c.Security.SigningKeys = splitList(v)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Flags holds command-line overrides; flags win over file and env.
type Flags struct {
	Addr   string
	DBPath string
	Config string
	Set    map[string]bool
}

// ParseFlags parses the process flags once and records which were
// explicitly set.
func ParseFlags() Flags {
	addr := flag.String("addr", "", "listen address (host:port)")
	db := flag.String("db", "", "pebble database path")
	cfgPath := flag.String("config", "", "path to yaml config")
	flag.Parse()
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addr, DBPath: *db, Config: *cfgPath, Set: set}
}

// Apply folds explicit flag values into the config.
func (f Flags) Apply(c *Config) {
	if f.Set["addr"] && f.Addr != "" {
		host, port := f.Addr, 0
		if i := strings.LastIndex(f.Addr, ":"); i >= 0 {
			host = f.Addr[:i]
			fmt.Sscanf(f.Addr[i+1:], "%d", &port)
		}
		if host != "" {
			c.Server.Address = host
		}
		if port != 0 {
			c.Server.Port = port
		}
	}
	if f.Set["db"] && f.DBPath != "" {
		c.Server.DBPath = f.DBPath
	}
}
