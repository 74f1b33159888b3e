// Package config loads iodevice-watch settings from defaults, an optional
// YAML file, a .env file and the process environment, in increasing order of
// precedence. The keys applied on live reload (device_ids and
// notification_interval_hours) are the exception: when the YAML file sets
// them, the file wins over the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values applied when a setting is absent everywhere.
const (
	DefaultAPIBaseURL        = "https://api.io.solutions/v1/io-explorer"
	DefaultIntervalHours     = 1
	DefaultPollInterval      = 60 * time.Second
	DefaultAlertRepeat       = time.Hour
	DefaultRequestTimeout    = 10 * time.Second
	DefaultStatusAddr        = "127.0.0.1:8080"
	DefaultNATSSubjectPrefix = "iodevice"
	DefaultHeartbeatSubject  = "iodevice-watch"
)

// Config is the resolved runtime configuration.
type Config struct {
	Token      string `yaml:"token"`
	WebhookURL string `yaml:"discord_webhook_url"`

	// DeviceIDs are checked in this order every cycle.
	DeviceIDs []string `yaml:"device_ids"`

	// NotificationIntervalHours is the digest cadence; 0 disables digests.
	NotificationIntervalHours int `yaml:"notification_interval_hours"`

	APIBaseURL     string        `yaml:"api_base_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	AlertRepeat    time.Duration `yaml:"alert_repeat"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StatusAddr is the listen address for the status API; empty disables it.
	StatusAddr string `yaml:"status_addr"`

	// NATSURL enables event fan-out and liveness heartbeats when set.
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`
	HeartbeatSubject  string `yaml:"heartbeat_subject"`

	Debug bool `yaml:"debug"`

	// Shadowed lists environment variables ignored because the YAML file
	// sets the same live-reloadable key.
	Shadowed []string `yaml:"-"`
}

// liveKeys are the settings Watch applies without a restart.
type liveKeys struct {
	DeviceIDs                 []string `yaml:"device_ids"`
	NotificationIntervalHours *int     `yaml:"notification_interval_hours"`
}

// DigestInterval returns the digest cadence as a duration.
func (c Config) DigestInterval() time.Duration {
	return time.Duration(c.NotificationIntervalHours) * time.Hour
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load resolves configuration. path may be empty, in which case only the
// environment is consulted.
func Load(path string, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := defaults()
	var live liveKeys
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
		if err := yaml.Unmarshal(data, &live); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyLive(live, lookup)
	cfg.DeviceIDs = normalizeIDs(cfg.DeviceIDs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyLive(live liveKeys, lookup LookupFunc) {
	if live.DeviceIDs != nil {
		if _, ok := lookup("DEVICE_IDS"); ok {
			c.Shadowed = append(c.Shadowed, "DEVICE_IDS")
		}
		c.DeviceIDs = live.DeviceIDs
	}
	if live.NotificationIntervalHours != nil {
		if _, ok := lookup("NOTIFICATION_INTERVAL_HOURS"); ok {
			c.Shadowed = append(c.Shadowed, "NOTIFICATION_INTERVAL_HOURS")
		}
		c.NotificationIntervalHours = *live.NotificationIntervalHours
	}
}

// LoadDotEnv copies variables from a .env file into the process environment
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ParseDeviceIDs splits a comma-separated list, trimming each entry and
// dropping empty ones.
func ParseDeviceIDs(s string) []string {
	return normalizeIDs(strings.Split(s, ","))
}

func normalizeIDs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	return out
}

func defaults() *Config {
	return &Config{
		NotificationIntervalHours: DefaultIntervalHours,
		APIBaseURL:                DefaultAPIBaseURL,
		PollInterval:              DefaultPollInterval,
		AlertRepeat:               DefaultAlertRepeat,
		RequestTimeout:            DefaultRequestTimeout,
		StatusAddr:                DefaultStatusAddr,
		NATSSubjectPrefix:         DefaultNATSSubjectPrefix,
		HeartbeatSubject:          DefaultHeartbeatSubject,
	}
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString("TOKEN", &cfg.Token)
	setString("DISCORD_WEBHOOK_URL", &cfg.WebhookURL)
	setString("STATUS_ADDR", &cfg.StatusAddr)
	setString("NATS_URL", &cfg.NATSURL)
	setString("NATS_SUBJECT_PREFIX", &cfg.NATSSubjectPrefix)
	setString("HEARTBEAT_SUBJECT", &cfg.HeartbeatSubject)
	if v, ok := lookup("API_BASE_URL"); ok && v != "" {
		cfg.APIBaseURL = v
	}
	if v, ok := lookup("DEVICE_IDS"); ok {
		cfg.DeviceIDs = ParseDeviceIDs(v)
	}
	if v, ok := lookup("NOTIFICATION_INTERVAL_HOURS"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("NOTIFICATION_INTERVAL_HOURS: %w", err)
		}
		cfg.NotificationIntervalHours = n
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		cfg.Debug = parseBool(v)
	}

	for key, dst := range map[string]*time.Duration{
		"POLL_INTERVAL":   &cfg.PollInterval,
		"ALERT_REPEAT":    &cfg.AlertRepeat,
		"REQUEST_TIMEOUT": &cfg.RequestTimeout,
	} {
		if err := setDuration(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("TOKEN is required")
	}
	if c.WebhookURL == "" {
		return errors.New("DISCORD_WEBHOOK_URL is required")
	}
	if len(c.DeviceIDs) == 0 {
		return errors.New("DEVICE_IDS must name at least one device")
	}
	if c.NotificationIntervalHours < 0 {
		return fmt.Errorf("NOTIFICATION_INTERVAL_HOURS must be >= 0, got %d", c.NotificationIntervalHours)
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.AlertRepeat <= 0 {
		return errors.New("ALERT_REPEAT must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	return nil
}
