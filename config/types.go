package config

import (
	"fmt"
	"math/big"
	"strings"

	"benevault/crypto"
	"benevault/native/market"
	"benevault/native/vault"
)

// Pool names the venue pair the vault converts contributions into.
type Pool struct {
	BaseCurrency        string `toml:"BaseCurrency"`
	TargetCurrency      string `toml:"TargetCurrency"`
	FeeTier             uint32 `toml:"FeeTier"`
	InitialSqrtPriceX96 string `toml:"InitialSqrtPriceX96"`
}

// Reward configures the conversion caller incentive. Amounts are decimal
// strings in base units; all three empty disables the incentive.
type Reward struct {
	Base          string `toml:"Base"`
	PerBenefactor string `toml:"PerBenefactor"`
	Cap           string `toml:"Cap"`
}

// Alloc seeds one account balance at first boot.
type Alloc struct {
	Address string `toml:"Address"`
	Base    string `toml:"Base"`
	Target  string `toml:"Target"`
}

// Pauses holds the boot-time module pause switches.
type Pauses struct {
	Vault bool `toml:"Vault"`
}

// Modules returns the pause switches keyed by module name.
func (p Pauses) Modules() map[string]bool {
	return map[string]bool{"vault": p.Vault}
}

// Telemetry configures the OTLP trace/metric export.
type Telemetry struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint"`
	Environment string `toml:"Environment"`
}

func parseCurrency(value string) (market.Currency, error) {
	var currency market.Currency
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return currency, fmt.Errorf("currency must not be empty")
	}
	if strings.EqualFold(trimmed, "native") {
		return currency, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return currency, fmt.Errorf("currency %q: %w", value, err)
	}
	copy(currency[:], addr.Bytes())
	return currency, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

// Key resolves the configured pair into a canonically ordered pool key and
// the base-side currency.
func (p Pool) Key() (market.PoolKey, market.Currency, error) {
	var key market.PoolKey
	base, err := parseCurrency(p.BaseCurrency)
	if err != nil {
		return key, base, fmt.Errorf("pool.BaseCurrency: %w", err)
	}
	target, err := parseCurrency(p.TargetCurrency)
	if err != nil {
		return key, base, fmt.Errorf("pool.TargetCurrency: %w", err)
	}
	if base == target {
		return key, base, fmt.Errorf("pool: base and target currency must differ")
	}
	spacing, ok := market.TickSpacingForFee(p.FeeTier)
	if !ok {
		return key, base, fmt.Errorf("pool: unsupported fee tier %d", p.FeeTier)
	}
	key = market.PoolKey{Currency0: base, Currency1: target, Fee: p.FeeTier, TickSpacing: spacing}
	if key.Validate() != nil {
		key = market.PoolKey{Currency0: target, Currency1: base, Fee: p.FeeTier, TickSpacing: spacing}
	}
	if err := key.Validate(); err != nil {
		return key, base, fmt.Errorf("pool: %w", err)
	}
	return key, base, nil
}

// InitialPrice parses the boot price, nil when unset.
func (p Pool) InitialPrice() (*big.Int, error) {
	trimmed := strings.TrimSpace(p.InitialSqrtPriceX96)
	if trimmed == "" {
		return nil, nil
	}
	price, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("pool.InitialSqrtPriceX96: invalid value %q", p.InitialSqrtPriceX96)
	}
	return price, nil
}

// Parse resolves the incentive parameters, nil when the section is empty.
func (r Reward) Parse() (*vault.RewardConfig, error) {
	if strings.TrimSpace(r.Base) == "" && strings.TrimSpace(r.PerBenefactor) == "" && strings.TrimSpace(r.Cap) == "" {
		return nil, nil
	}
	base, err := parseAmount(r.Base)
	if err != nil {
		return nil, fmt.Errorf("reward.Base: %w", err)
	}
	perBenefactor, err := parseAmount(r.PerBenefactor)
	if err != nil {
		return nil, fmt.Errorf("reward.PerBenefactor: %w", err)
	}
	cap, err := parseAmount(r.Cap)
	if err != nil {
		return nil, fmt.Errorf("reward.Cap: %w", err)
	}
	config := &vault.RewardConfig{Base: base, PerBenefactor: perBenefactor, Cap: cap}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("reward: %w", err)
	}
	return config, nil
}

// Parse resolves one genesis allocation.
func (a Alloc) Parse() ([20]byte, *big.Int, *big.Int, error) {
	var addr [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(a.Address))
	if err != nil {
		return addr, nil, nil, fmt.Errorf("genesis alloc address %q: %w", a.Address, err)
	}
	copy(addr[:], decoded.Bytes())
	base, err := parseAmount(a.Base)
	if err != nil {
		return addr, nil, nil, fmt.Errorf("genesis alloc %s base: %w", a.Address, err)
	}
	target, err := parseAmount(a.Target)
	if err != nil {
		return addr, nil, nil, fmt.Errorf("genesis alloc %s target: %w", a.Address, err)
	}
	return addr, base, target, nil
}
