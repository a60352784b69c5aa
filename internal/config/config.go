package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverNone   = "none"
)

// Config represents ~/.wpprelay/config.toml.
type Config struct {
	ListenAddr  string `toml:"listen_addr"`
	PayloadsDir string `toml:"payloads_dir"`
	LogPath     string `toml:"log_path"`

	Store  StoreConfig  `toml:"store"`
	Events EventsConfig `toml:"events"`
}

// StoreConfig selects and configures the message store.
type StoreConfig struct {
	Driver         string   `toml:"driver"`
	Path           string   `toml:"path"`
	URI            string   `toml:"uri"`
	Database       string   `toml:"database"`
	Collection     string   `toml:"collection"`
	ConnectTimeout Duration `toml:"connect_timeout"`
}

// EventsConfig tunes the SSE stream.
type EventsConfig struct {
	Keepalive Duration `toml:"keepalive"`
}

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr:  ":5000",
		PayloadsDir: "payloads",
		Store: StoreConfig{
			Driver:         DriverSQLite,
			Database:       "whatsapp",
			Collection:     "processed_messages",
			ConnectTimeout: Duration{5 * time.Second},
		},
		Events: EventsConfig{Keepalive: Duration{time.Second}},
	}
}

// Load reads config from the given path on top of Default. Returns error if
// the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverMongo, DriverNone:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.ConnectTimeout.Duration <= 0 {
		return fmt.Errorf("store.connect_timeout must be positive")
	}
	if c.Events.Keepalive.Duration <= 0 {
		return fmt.Errorf("events.keepalive must be positive")
	}
	return nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv. MONGO_URI switches the store to mongo.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("WPPRELAY_LISTEN_ADDR"); ok && v != "" {
		c.ListenAddr = v
	}
	if v, ok := lookup("WPPRELAY_PAYLOADS_DIR"); ok && v != "" {
		c.PayloadsDir = v
	}
	if v, ok := lookup("MONGO_URI"); ok && v != "" {
		c.Store.Driver = DriverMongo
		c.Store.URI = v
	}
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
