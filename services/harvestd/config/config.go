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

// Config captures runtime configuration for harvestd.
type Config struct {
	ListenAddress  string        `yaml:"listen"`
	CheckpointPath string        `yaml:"checkpoint"`
	Node           NodeConfig    `yaml:"node"`
	Harvest        HarvestConfig `yaml:"harvest"`
}

// NodeConfig locates the vault node RPC endpoint.
type NodeConfig struct {
	Endpoint string   `yaml:"endpoint"`
	TokenEnv string   `yaml:"token_env"`
	Timeout  Duration `yaml:"timeout"`
}

// HarvestConfig tunes the harvest loop.
type HarvestConfig struct {
	Interval  Duration `yaml:"interval"`
	EventPage int      `yaml:"event_page"`
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
		cfg.ListenAddress = ":7160"
	}
	if cfg.CheckpointPath == "" {
		cfg.CheckpointPath = "/var/data/harvestd.db"
	}
	if cfg.Node.Endpoint == "" {
		cfg.Node.Endpoint = "http://127.0.0.1:8545"
	}
	if cfg.Node.TokenEnv == "" {
		cfg.Node.TokenEnv = "BENEVAULT_RPC_TOKEN"
	}
	if cfg.Node.Timeout.Duration == 0 {
		cfg.Node.Timeout.Duration = 10 * time.Second
	}
	if cfg.Harvest.Interval.Duration == 0 {
		cfg.Harvest.Interval.Duration = 5 * time.Minute
	}
	if cfg.Harvest.EventPage <= 0 {
		cfg.Harvest.EventPage = 100
	}
}

func validate(cfg Config) error {
	parsed, err := url.Parse(cfg.Node.Endpoint)
	if err != nil {
		return fmt.Errorf("parse node endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("node endpoint must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("node endpoint must include a host")
	}
	if cfg.Harvest.Interval.Duration < time.Second {
		return fmt.Errorf("harvest interval must be at least 1s")
	}
	return nil
}

// NodeToken resolves the RPC bearer token from the configured environment
// variable.
func (c Config) NodeToken() string {
	name := strings.TrimSpace(c.Node.TokenEnv)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}
