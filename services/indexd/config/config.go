package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures runtime configuration for indexd.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	Database      DatabaseConfig `yaml:"database"`
	Node          NodeConfig     `yaml:"node"`
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// NodeConfig locates the node event stream.
type NodeConfig struct {
	WSEndpoint string   `yaml:"ws_endpoint"`
	Backoff    Duration `yaml:"reconnect_backoff"`
	MaxBackoff Duration `yaml:"max_backoff"`
}

// Load reads configuration from the supplied path. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7170"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == DriverSQLite {
		cfg.Database.DSN = "/var/data/indexd.sqlite"
	}
	if cfg.Node.WSEndpoint == "" {
		cfg.Node.WSEndpoint = "ws://127.0.0.1:8545/ws/events"
	}
	if cfg.Node.Backoff.Duration == 0 {
		cfg.Node.Backoff.Duration = 5 * time.Second
	}
	if cfg.Node.MaxBackoff.Duration == 0 {
		cfg.Node.MaxBackoff.Duration = time.Minute
	}
}

func validate(cfg Config) error {
	switch cfg.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn required")
	}
	parsed, err := url.Parse(cfg.Node.WSEndpoint)
	if err != nil {
		return fmt.Errorf("parse ws endpoint: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("ws endpoint must be ws or wss")
	}
	if parsed.Host == "" {
		return fmt.Errorf("ws endpoint must include a host")
	}
	if cfg.Node.Backoff.Duration <= 0 || cfg.Node.MaxBackoff.Duration < cfg.Node.Backoff.Duration {
		return fmt.Errorf("reconnect backoff must be positive and below max_backoff")
	}
	return nil
}
