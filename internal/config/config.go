package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string ("15s") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config represents the global ~/.peerchat/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	ServerURL string `toml:"server_url"`
	// SocketURL defaults to ServerURL when empty.
	SocketURL string `toml:"socket_url,omitempty"`
	UserID    string `toml:"user_id"`
	Token     string `toml:"token"`

	RequestTimeout       Duration `toml:"request_timeout"`
	AckRatePerSecond     float64  `toml:"ack_rate_per_second"`
	AckBurst             int      `toml:"ack_burst"`
	AckQueueSize         int      `toml:"ack_queue_size"`
	DedupeWindow         int      `toml:"dedupe_window"`
	ReconnectMaxInterval Duration `toml:"reconnect_max_interval"`
}

// Default returns the config used when no file exists. Fields missing from
// a loaded file keep these values.
func Default() *Config {
	return &Config{
		ServerURL:            "http://localhost:5000",
		RequestTimeout:       Duration{15 * time.Second},
		AckRatePerSecond:     5,
		AckBurst:             5,
		AckQueueSize:         256,
		DedupeWindow:         1024,
		ReconnectMaxInterval: Duration{30 * time.Second},
	}
}

// Load reads config from the given path on top of Default. Returns nil and
// an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// PushURL is the websocket endpoint, falling back to the server URL.
func (c *Config) PushURL() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	return c.ServerURL
}

// Validate reports the first field that cannot be used.
func (c *Config) Validate() error {
	if err := checkURL("server_url", c.ServerURL, "http", "https"); err != nil {
		return err
	}
	if c.SocketURL != "" {
		if err := checkURL("socket_url", c.SocketURL, "http", "https", "ws", "wss"); err != nil {
			return err
		}
	}
	if c.UserID == "" {
		return errors.New("user_id is required")
	}
	if c.RequestTimeout.Duration <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.AckRatePerSecond < 0 {
		return errors.New("ack_rate_per_second must not be negative")
	}
	if c.AckBurst < 1 {
		return errors.New("ack_burst must be at least 1")
	}
	if c.AckQueueSize < 1 {
		return errors.New("ack_queue_size must be at least 1")
	}
	if c.DedupeWindow < 1 {
		return errors.New("dedupe_window must be at least 1")
	}
	if c.ReconnectMaxInterval.Duration <= 0 {
		return errors.New("reconnect_max_interval must be positive")
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q: want an absolute %v url", field, raw, schemes)
}
