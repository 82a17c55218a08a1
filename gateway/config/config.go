package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UpstreamConfig points the gateway at the vault node's JSON-RPC endpoint.
// The node bearer token is read from TokenEnv so secrets stay out of the file.
type UpstreamConfig struct {
	Endpoint string        `yaml:"endpoint"`
	TokenEnv string        `yaml:"tokenEnv"`
	Timeout  time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	Enabled    bool          `yaml:"enabled"`
	SecretEnv  string        `yaml:"secretEnv"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ScopeClaim string        `yaml:"scopeClaim"`
	ClockSkew  time.Duration `yaml:"clockSkew"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	Burst             int     `yaml:"burst"`
}

type ObservabilityConfig struct {
	ServiceName  string `yaml:"serviceName"`
	LogRequests  bool   `yaml:"logRequests"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedMethods []string `yaml:"allowedMethods"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
}

type Config struct {
	ListenAddress string              `yaml:"listen"`
	ReadTimeout   time.Duration       `yaml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimits    RateLimitConfig     `yaml:"rateLimits"`
	Observability ObservabilityConfig `yaml:"observability"`
	CORS          CORSConfig          `yaml:"cors"`
}

const (
	defaultUpstreamTokenEnv = "BENEVAULT_RPC_TOKEN"
	defaultAuthSecretEnv    = "BENEVAULT_GATEWAY_JWT_SECRET"
)

// Load reads the YAML config at path, or returns defaults when path is empty.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Upstream: UpstreamConfig{
			Endpoint: "http://127.0.0.1:8545",
			TokenEnv: defaultUpstreamTokenEnv,
			Timeout:  10 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:    true,
			SecretEnv:  defaultAuthSecretEnv,
			ScopeClaim: "scope",
			ClockSkew:  2 * time.Minute,
		},
		RateLimits: RateLimitConfig{
			RequestsPerMinute: 600,
			Burst:             30,
		},
		Observability: ObservabilityConfig{
			ServiceName: "bene-gateway",
			LogRequests: true,
		},
	}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.Upstream.TokenEnv) == "" {
		cfg.Upstream.TokenEnv = defaultUpstreamTokenEnv
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.Auth.SecretEnv) == "" {
		cfg.Auth.SecretEnv = defaultAuthSecretEnv
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.RateLimits.RequestsPerMinute <= 0 {
		cfg.RateLimits.RequestsPerMinute = 600
	}
	if cfg.RateLimits.Burst <= 0 {
		cfg.RateLimits.Burst = 30
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "bene-gateway"
	}
}

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if _, err := cfg.UpstreamURL(); err != nil {
		return err
	}
	return nil
}

// UpstreamURL parses the configured node endpoint.
func (cfg Config) UpstreamURL() (*url.URL, error) {
	trimmed := strings.TrimSpace(cfg.Upstream.Endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("upstream.endpoint must not be empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse upstream endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("upstream endpoint scheme %q not supported", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("upstream endpoint host required")
	}
	return parsed, nil
}

// UpstreamToken resolves the node bearer token from the environment.
func (cfg Config) UpstreamToken() string {
	return strings.TrimSpace(os.Getenv(cfg.Upstream.TokenEnv))
}

// AuthSecret resolves the JWT HMAC secret from the environment.
func (cfg Config) AuthSecret() string {
	return strings.TrimSpace(os.Getenv(cfg.Auth.SecretEnv))
}
