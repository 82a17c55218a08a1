package vault

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// moduleSeed derives the vault module account that custodies pending
// contributions and harvested fees.
const moduleSeed = "benevault/vault/module"

// ModuleAddress returns the deterministic account the vault operates from.
func ModuleAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte(moduleSeed))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// RecordShare is one benefactor's frozen stake in a conversion record. The
// ratio is amount / record.ConvertedTotal; storing the exact pair instead of
// a rounded fraction keeps the share sum identically equal to the total.
type RecordShare struct {
	Address [20]byte
	Amount  *big.Int
}

// ConversionRecord is the immutable snapshot minted by one conversion.
// Everything except AccumulatedFees is frozen at creation.
type ConversionRecord struct {
	Sequence        uint64
	Timestamp       int64
	Caller          [20]byte
	ConvertedTotal  *big.Int
	SwapIn          *big.Int
	SwapOut         *big.Int
	LiquidityDelta  *big.Int
	Shares          []RecordShare
	AccumulatedFees *big.Int
}

// ShareAmount returns the frozen contribution for the address, or zero when
// the address did not participate.
func (r *ConversionRecord) ShareAmount(addr [20]byte) *big.Int {
	if r == nil {
		return big.NewInt(0)
	}
	for _, share := range r.Shares {
		if share.Address == addr {
			return cloneBigInt(share.Amount)
		}
	}
	return big.NewInt(0)
}

// Entitlement returns the total fee amount the address has earned from this
// record so far: AccumulatedFees * share / ConvertedTotal, floor division.
func (r *ConversionRecord) Entitlement(addr [20]byte) *big.Int {
	if r == nil || r.ConvertedTotal == nil || r.ConvertedTotal.Sign() <= 0 {
		return big.NewInt(0)
	}
	share := r.ShareAmount(addr)
	if share.Sign() <= 0 || r.AccumulatedFees == nil || r.AccumulatedFees.Sign() <= 0 {
		return big.NewInt(0)
	}
	entitlement := new(big.Int).Mul(r.AccumulatedFees, share)
	return entitlement.Div(entitlement, r.ConvertedTotal)
}

// Clone deep-copies the record.
func (r *ConversionRecord) Clone() *ConversionRecord {
	if r == nil {
		return nil
	}
	clone := &ConversionRecord{
		Sequence:        r.Sequence,
		Timestamp:       r.Timestamp,
		Caller:          r.Caller,
		ConvertedTotal:  cloneBigInt(r.ConvertedTotal),
		SwapIn:          cloneBigInt(r.SwapIn),
		SwapOut:         cloneBigInt(r.SwapOut),
		LiquidityDelta:  cloneBigInt(r.LiquidityDelta),
		AccumulatedFees: cloneBigInt(r.AccumulatedFees),
	}
	if len(r.Shares) > 0 {
		clone.Shares = make([]RecordShare, len(r.Shares))
		for i, share := range r.Shares {
			clone.Shares[i] = RecordShare{Address: share.Address, Amount: cloneBigInt(share.Amount)}
		}
	}
	return clone
}

// LiquidityPosition describes the vault's stake at the venue: one bounded
// price range whose liquidity only the conversion engine changes.
type LiquidityPosition struct {
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
}

// Clone deep-copies the position.
func (p *LiquidityPosition) Clone() *LiquidityPosition {
	if p == nil {
		return nil
	}
	return &LiquidityPosition{
		TickLower: p.TickLower,
		TickUpper: p.TickUpper,
		Liquidity: cloneBigInt(p.Liquidity),
	}
}

// RewardConfig parametrizes the caller incentive:
// reward = min(Base + PerBenefactor * count * costRate, Cap).
type RewardConfig struct {
	Base          *big.Int
	PerBenefactor *big.Int
	Cap           *big.Int
}

// Validate rejects nil or negative terms and a cap below the base amount.
func (c *RewardConfig) Validate() error {
	if c == nil {
		return ErrInvalidConfiguration
	}
	if c.Base == nil || c.Base.Sign() < 0 {
		return ErrInvalidConfiguration
	}
	if c.PerBenefactor == nil || c.PerBenefactor.Sign() < 0 {
		return ErrInvalidConfiguration
	}
	if c.Cap == nil || c.Cap.Sign() < 0 || c.Cap.Cmp(c.Base) < 0 {
		return ErrInvalidConfiguration
	}
	return nil
}

// Clone deep-copies the config.
func (c *RewardConfig) Clone() *RewardConfig {
	if c == nil {
		return nil
	}
	return &RewardConfig{
		Base:          cloneBigInt(c.Base),
		PerBenefactor: cloneBigInt(c.PerBenefactor),
		Cap:           cloneBigInt(c.Cap),
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
