package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultRPCTokenEnv names the environment variable holding the bearer token
// for privileged RPC methods when the config does not override it.
const DefaultRPCTokenEnv = "BENEVAULT_RPC_TOKEN"

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	NetworkName string `toml:"NetworkName"`
	RPCTokenEnv string `toml:"RPCTokenEnv"`

	Pool      Pool      `toml:"Pool"`
	Reward    Reward    `toml:"Reward"`
	Pauses    Pauses    `toml:"Pauses"`
	Telemetry Telemetry `toml:"Telemetry"`
	Genesis   []Alloc   `toml:"Genesis"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists. Unknown keys are rejected so typos fail loudly.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./bene-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "bene-local"
	}
	if strings.TrimSpace(cfg.RPCTokenEnv) == "" {
		cfg.RPCTokenEnv = DefaultRPCTokenEnv
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []Alloc{}
	}
}

// RPCToken reads the bearer token from the configured environment variable.
// An empty token disables the privileged methods.
func (c *Config) RPCToken() string {
	return strings.TrimSpace(os.Getenv(c.RPCTokenEnv))
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  ":8080",
		DataDir:     "./bene-data",
		NetworkName: "bene-local",
		RPCTokenEnv: DefaultRPCTokenEnv,
		Pool: Pool{
			BaseCurrency:        "native",
			FeeTier:             3000,
			InitialSqrtPriceX96: "79228162514264337593543950336",
		},
		Genesis: []Alloc{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
