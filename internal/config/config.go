// Package config loads the process configuration: a JSON file, an optional
// .env file and VINEWATCH_* environment overrides, in increasing priority.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the persistent application configuration
type Config struct {
	Session  string `json:"session"`  // cooperating processes share a session
	DataDir  string `json:"data_dir"` // settings db, logs and journal
	LogLevel string `json:"log_level"`
	// JournalLevel is the lowest level kept in the event journal:
	// trace, debug, info, warn or error.
	JournalLevel string         `json:"journal_level"`
	Identity     IdentityConfig `json:"identity"`
	Live         LiveConfig     `json:"live"`
	Catchup      CatchupConfig  `json:"catchup"`
	Redis        RedisConfig    `json:"redis"`
	Feed         FeedConfig     `json:"feed"`
	Notify       NotifyConfig   `json:"notify"`
	Metrics      MetricsConfig  `json:"metrics"`
}

// IdentityConfig is passed through to the live source.
type IdentityConfig struct {
	Country     string `json:"country"`
	AnonymousID string `json:"anonymous_id"` // generated on first run when empty
	DeviceID    string `json:"device_id"`
	AppVersion  string `json:"app_version"`
}

// LiveConfig configures the live channel.
type LiveConfig struct {
	URL               string   `json:"url"`
	ReconnectInterval Duration `json:"reconnect_interval"`
	DialTimeout       Duration `json:"dial_timeout"`
}

// CatchupConfig configures the catch-up fetcher.
type CatchupConfig struct {
	URL      string   `json:"url"`
	Limit    int      `json:"limit"`
	Interval Duration `json:"interval"`
	Timeout  Duration `json:"timeout"`
	MinGap   Duration `json:"min_gap"` // minimum time between two requests
}

// RedisConfig configures multi-process coordination. An empty Addr runs
// the process standalone as master.
type RedisConfig struct {
	Addr     string   `json:"addr"`
	Password string   `json:"password,omitempty"`
	DB       int      `json:"db"`
	LeaseTTL Duration `json:"lease_ttl"`
}

// FeedConfig holds feed defaults. Capacity is overridden by the
// feed.capacity setting when present.
type FeedConfig struct {
	Capacity  int `json:"capacity"`
	TileWidth int `json:"tile_width"` // terminal columns per tile
}

// NotifyConfig selects notifiers.
type NotifyConfig struct {
	Terminal bool        `json:"terminal"`
	Bell     bool        `json:"bell"`
	Queue    int         `json:"queue"`
	Email    EmailConfig `json:"email"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Pass string `json:"pass,omitempty"`
	From string `json:"from"`
	To   string `json:"to"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `json:"addr"`
}

// Duration is a time.Duration written as a string such as "12s".
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "12s" style strings and plain nanosecond numbers.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Session:      "default",
		DataDir:      DefaultDataDir(),
		LogLevel:     "info",
		JournalLevel: "debug",
		Identity: IdentityConfig{
			AppVersion: "1.0.0",
		},
		Live: LiveConfig{
			ReconnectInterval: Duration(12 * time.Second),
			DialTimeout:       Duration(10 * time.Second),
		},
		Catchup: CatchupConfig{
			Limit:    100,
			Interval: Duration(5 * time.Minute),
			Timeout:  Duration(30 * time.Second),
			MinGap:   Duration(10 * time.Second),
		},
		Redis: RedisConfig{
			LeaseTTL: Duration(9 * time.Second),
		},
		Feed: FeedConfig{
			Capacity:  2000,
			TileWidth: 28,
		},
		Notify: NotifyConfig{
			Terminal: true,
			Bell:     true,
			Queue:    64,
			Email:    EmailConfig{Port: 587},
		},
	}
}

// DefaultDataDir returns ~/.vinewatch.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vinewatch")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}

// DBPath returns the settings database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "vinewatch.db")
}

// LogDir returns the log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// JournalPath returns the event journal path.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "events.jsonl")
}

// Load reads config from path (ConfigPath() when empty). A missing file
// yields the defaults. A .env file in the working directory is loaded into
// the environment first, then VINEWATCH_* variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes config to path (ConfigPath() when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600) // may hold SMTP and Redis passwords
}

// envKeys maps config keys to their environment variables.
var envKeys = map[string]string{
	"session":                 "VINEWATCH_SESSION",
	"data_dir":                "VINEWATCH_DATA_DIR",
	"log_level":               "VINEWATCH_LOG_LEVEL",
	"journal_level":           "VINEWATCH_JOURNAL_LEVEL",
	"identity.country":        "VINEWATCH_COUNTRY",
	"identity.device_id":      "VINEWATCH_DEVICE_ID",
	"live.url":                "VINEWATCH_LIVE_URL",
	"live.reconnect_interval": "VINEWATCH_LIVE_RECONNECT_INTERVAL",
	"catchup.url":             "VINEWATCH_CATCHUP_URL",
	"catchup.limit":           "VINEWATCH_CATCHUP_LIMIT",
	"catchup.interval":        "VINEWATCH_CATCHUP_INTERVAL",
	"redis.addr":              "VINEWATCH_REDIS_ADDR",
	"redis.password":          "VINEWATCH_REDIS_PASSWORD",
	"redis.db":                "VINEWATCH_REDIS_DB",
	"feed.capacity":           "VINEWATCH_FEED_CAPACITY",
	"notify.email.host":       "VINEWATCH_SMTP_HOST",
	"notify.email.port":       "VINEWATCH_SMTP_PORT",
	"notify.email.user":       "VINEWATCH_SMTP_USER",
	"notify.email.pass":       "VINEWATCH_SMTP_PASS",
	"notify.email.from":       "VINEWATCH_SMTP_FROM",
	"notify.email.to":         "VINEWATCH_SMTP_TO",
	"metrics.addr":            "VINEWATCH_METRICS_ADDR",
}

func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	for key, env := range envKeys {
		_ = v.BindEnv(key, env)
	}

	str := func(key string, dst *string) {
		if s := strings.TrimSpace(v.GetString(key)); s != "" {
			*dst = s
		}
	}
	num := func(key string, dst *int) {
		if v.GetString(key) != "" {
			*dst = v.GetInt(key)
		}
	}
	dur := func(key string, dst *Duration) {
		if s := v.GetString(key); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				*dst = Duration(d)
			}
		}
	}

	str("session", &cfg.Session)
	str("data_dir", &cfg.DataDir)
	str("log_level", &cfg.LogLevel)
	str("journal_level", &cfg.JournalLevel)
	str("identity.country", &cfg.Identity.Country)
	str("identity.device_id", &cfg.Identity.DeviceID)
	str("live.url", &cfg.Live.URL)
	dur("live.reconnect_interval", &cfg.Live.ReconnectInterval)
	str("catchup.url", &cfg.Catchup.URL)
	num("catchup.limit", &cfg.Catchup.Limit)
	dur("catchup.interval", &cfg.Catchup.Interval)
	str("redis.addr", &cfg.Redis.Addr)
	str("redis.password", &cfg.Redis.Password)
	num("redis.db", &cfg.Redis.DB)
	num("feed.capacity", &cfg.Feed.Capacity)
	str("notify.email.host", &cfg.Notify.Email.Host)
	num("notify.email.port", &cfg.Notify.Email.Port)
	str("notify.email.user", &cfg.Notify.Email.User)
	str("notify.email.pass", &cfg.Notify.Email.Pass)
	str("notify.email.from", &cfg.Notify.Email.From)
	str("notify.email.to", &cfg.Notify.Email.To)
	str("metrics.addr", &cfg.Metrics.Addr)
}

// Validate reports configuration that leaves the process without a
// defined behavior.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("feed.capacity must be positive, got %d", c.Feed.Capacity))
	}
	if c.Feed.TileWidth <= 0 {
		errs = append(errs, fmt.Errorf("feed.tile_width must be positive, got %d", c.Feed.TileWidth))
	}
	if strings.TrimSpace(c.Session) == "" {
		errs = append(errs, errors.New("session must not be empty"))
	}
	if c.Live.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("live.reconnect_interval must be positive"))
	}
	switch strings.ToLower(c.JournalLevel) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("journal_level %q is not one of trace, debug, info, warn, error", c.JournalLevel))
	}
	if c.Catchup.Limit <= 0 {
		errs = append(errs, fmt.Errorf("catchup.limit must be positive, got %d", c.Catchup.Limit))
	}
	for name, raw := range map[string]string{"live.url": c.Live.URL, "catchup.url": c.Catchup.URL} {
		if raw == "" {
			continue
		}
		if _, err := url.Parse(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
