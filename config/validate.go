package config

import (
	"fmt"
	"strings"
)

// ValidateConfig checks everything the node needs before it starts serving.
// Parse methods run eagerly so malformed addresses and amounts surface at
// boot instead of on the first conversion.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if _, _, err := cfg.Pool.Key(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.Pool.InitialPrice(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.Reward.Parse(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, alloc := range cfg.Genesis {
		if _, _, _, err := alloc.Parse(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if cfg.Telemetry.Enabled && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("config: Telemetry.Endpoint required when telemetry is enabled")
	}
	return nil
}
