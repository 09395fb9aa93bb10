package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config is the validated runtime configuration.
type Config struct {
	LogPath            string
	LogFormat          string // text or json
	ErrorRateThreshold float64
	WindowSize         int
	MinSamples         int
	AlertCooldown      time.Duration
	MaintenanceMode    bool
	WebhookURL         string // empty: alerts are rendered locally only
	NotifyTimeout      time.Duration
	PollInterval       time.Duration
	WaitInterval       time.Duration
	StartAtEnd         bool
	ListenAddr         string // empty: no status server
	AlertOutput        string // console renderer: text or json
	LogLevel           string
	LogOutputFormat    string // console or json
}

type option struct {
	key string
	env string
	def interface{}
}

// options lists every setting with its environment variable and default.
// Flags are bound in the cmd package.
var options = []option{
	{"log_path", "WATCH_LOG_PATH", "/var/log/nginx/access.log"},
	{"log_format", "LOG_FORMAT", "text"},
	{"error_rate_threshold", "ERROR_RATE_THRESHOLD", 2.0},
	{"window_size", "WINDOW_SIZE", 200},
	{"min_samples", "MIN_SAMPLES", 10},
	{"alert_cooldown_sec", "ALERT_COOLDOWN_SEC", 300},
	{"maintenance_mode", "MAINTENANCE_MODE", "false"},
	{"slack_webhook_url", "SLACK_WEBHOOK_URL", ""},
	{"notify_timeout_sec", "NOTIFY_TIMEOUT_SEC", 5},
	{"poll_interval_ms", "POLL_INTERVAL_MS", 250},
	{"wait_interval_ms", "WAIT_INTERVAL_MS", 1000},
	{"start_at_end", "START_AT_END", "false"},
	{"listen_addr", "LISTEN_ADDR", ""},
	{"alert_output", "ALERT_OUTPUT", "text"},
	{"log_level", "LOG_LEVEL", "info"},
	{"log_output_format", "LOG_OUTPUT_FORMAT", "console"},
}

// NewViper returns a viper instance with defaults and environment bindings.
func NewViper() *viper.Viper {
	v := viper.New()
	for _, o := range options {
		v.SetDefault(o.key, o.def)
		_ = v.BindEnv(o.key, o.env)
	}
	return v
}

// ReadFile loads a YAML config file. With an empty path, ./loomwatch.yaml is
// used when present and its absence is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("loomwatch")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	threshold, err := floatKey(v, "error_rate_threshold")
	if err != nil {
		return nil, err
	}
	ints := map[string]int{}
	for _, key := range []string{"window_size", "min_samples", "alert_cooldown_sec",
		"notify_timeout_sec", "poll_interval_ms", "wait_interval_ms"} {
		n, err := intKey(v, key)
		if err != nil {
			return nil, err
		}
		ints[key] = n
	}

	cfg := &Config{
		LogPath:            strings.TrimSpace(v.GetString("log_path")),
		LogFormat:          strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		ErrorRateThreshold: threshold,
		WindowSize:         ints["window_size"],
		MinSamples:         ints["min_samples"],
		AlertCooldown:      time.Duration(ints["alert_cooldown_sec"]) * time.Second,
		MaintenanceMode:    Truthy(v.GetString("maintenance_mode")),
		WebhookURL:         strings.TrimSpace(v.GetString("slack_webhook_url")),
		NotifyTimeout:      time.Duration(ints["notify_timeout_sec"]) * time.Second,
		PollInterval:       time.Duration(ints["poll_interval_ms"]) * time.Millisecond,
		WaitInterval:       time.Duration(ints["wait_interval_ms"]) * time.Millisecond,
		StartAtEnd:         Truthy(v.GetString("start_at_end")),
		ListenAddr:         strings.TrimSpace(v.GetString("listen_addr")),
		AlertOutput:        strings.ToLower(strings.TrimSpace(v.GetString("alert_output"))),
		LogLevel:           v.GetString("log_level"),
		LogOutputFormat:    strings.ToLower(strings.TrimSpace(v.GetString("log_output_format"))),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.LogPath == "":
		return errors.New("log_path must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("log_format: unknown schema %q (want text or json)", c.LogFormat)
	case c.ErrorRateThreshold <= 0 || c.ErrorRateThreshold > 100:
		return fmt.Errorf("error_rate_threshold: %v is outside (0, 100]", c.ErrorRateThreshold)
	case c.WindowSize < 1:
		return fmt.Errorf("window_size: must be at least 1, got %d", c.WindowSize)
	case c.MinSamples < 1 || c.MinSamples > c.WindowSize:
		return fmt.Errorf("min_samples: must be between 1 and window_size (%d), got %d", c.WindowSize, c.MinSamples)
	case c.AlertCooldown < 0:
		return fmt.Errorf("alert_cooldown_sec: must not be negative")
	case c.NotifyTimeout <= 0:
		return fmt.Errorf("notify_timeout_sec: must be positive")
	case c.PollInterval <= 0 || c.WaitInterval <= 0:
		return fmt.Errorf("poll_interval_ms and wait_interval_ms must be positive")
	}
	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("slack_webhook_url: not an http(s) URL")
		}
	}
	return nil
}

// Truthy accepts 1, true, yes and on, case-insensitively.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func floatKey(v *viper.Viper, key string) (float64, error) {
	s := strings.TrimSpace(v.GetString(key))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, s)
	}
	return f, nil
}

func intKey(v *viper.Viper, key string) (int, error) {
	s := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, s)
	}
	return n, nil
}

// Maintenance is the live maintenance-mode switch shared between the config
// watcher and the alert dispatcher.
type Maintenance struct {
	on atomic.Bool
}

func NewMaintenance(on bool) *Maintenance {
	m := &Maintenance{}
	m.on.Store(on)
	return m
}

func (m *Maintenance) Active() bool { return m.on.Load() }

func (m *Maintenance) Set(on bool) { m.on.Store(on) }

// WatchMaintenance re-reads maintenance_mode whenever the config file in use
// changes. It is a no-op when no config file was loaded.
func WatchMaintenance(v *viper.Viper, m *Maintenance, log zerolog.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		on := Truthy(v.GetString("maintenance_mode"))
		if on != m.Active() {
			log.Info().Bool("maintenance", on).Str("file", e.Name).Msg("maintenance_mode_changed")
		}
		m.Set(on)
	})
	v.WatchConfig()
}
