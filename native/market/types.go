package market

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/big"

	"lukechampine.com/blake3"
)

var (
	ErrPoolNotInitialized     = errors.New("market: pool not initialized")
	ErrPoolAlreadyInitialized = errors.New("market: pool already initialized")
	ErrCurrenciesNotSorted    = errors.New("market: currencies not sorted")
	ErrUnsupportedFeeTier     = errors.New("market: unsupported fee tier")
	ErrInvalidSqrtPrice       = errors.New("market: invalid sqrt price")
	ErrInvalidTickRange       = errors.New("market: invalid tick range")
	ErrTickNotAligned         = errors.New("market: tick not aligned to spacing")
	ErrTickOutOfRange         = errors.New("market: tick out of range")
	ErrVenueLocked            = errors.New("market: venue locked")
	ErrNoActiveSession        = errors.New("market: no active session")
	ErrNonZeroDelta           = errors.New("market: non-zero balance delta after settlement")
	ErrNoLiquidity            = errors.New("market: no liquidity in pool")
	ErrInsufficientLiquidity  = errors.New("market: insufficient position liquidity")
	ErrPriceLimitReached      = errors.New("market: price limit reached")
	ErrSlippageExceeded       = errors.New("market: slippage exceeded")
	ErrInvalidAmount          = errors.New("market: invalid amount")
	ErrInsufficientBalance    = errors.New("market: insufficient balance")
	ErrInsufficientReserve    = errors.New("market: insufficient pool reserve")
	ErrNilStore               = errors.New("market: store not configured")
	ErrNilBank                = errors.New("market: bank not configured")
)

// Fee tiers in hundredths of a basis point and their required tick spacings.
const (
	FeeTier001 uint32 = 100
	FeeTier005 uint32 = 500
	FeeTier030 uint32 = 3000
	FeeTier100 uint32 = 10000
)

var tickSpacingForFee = map[uint32]int32{
	FeeTier001: 1,
	FeeTier005: 10,
	FeeTier030: 60,
	FeeTier100: 200,
}

// TickSpacingForFee returns the canonical tick spacing for a supported fee
// tier. The boolean reports whether the tier is supported at all.
func TickSpacingForFee(fee uint32) (int32, bool) {
	spacing, ok := tickSpacingForFee[fee]
	return spacing, ok
}

const feeDenominator = 1_000_000

// Fixed-point constants and tick bounds shared by the price math.
var (
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

	MinSqrtRatio    = new(big.Int).SetUint64(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Currency identifies an asset by its 20-byte id. The zero value is the
// native settlement asset.
type Currency [20]byte

// IsNative reports whether the currency is the native settlement asset.
func (c Currency) IsNative() bool {
	return c == Currency{}
}

// Hex renders the currency id for events and logs.
func (c Currency) Hex() string {
	return "0x" + hex.EncodeToString(c[:])
}

// PoolID uniquely identifies an initialised pool.
type PoolID [32]byte

// Hex renders the pool id for events and logs.
func (id PoolID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// PoolKey describes a pool: the sorted currency pair, the fee tier and the
// tick spacing liq positions must align to.
type PoolKey struct {
	Currency0   Currency
	Currency1   Currency
	Fee         uint32
	TickSpacing int32
}

// ID derives the unique pool identifier from the key fields.
func (k PoolKey) ID() PoolID {
	h := blake3.New(32, nil)
	h.Write(k.Currency0[:])
	h.Write(k.Currency1[:])
	var fee [4]byte
	binary.BigEndian.PutUint32(fee[:], k.Fee)
	h.Write(fee[:])
	var spacing [4]byte
	binary.BigEndian.PutUint32(spacing[:], uint32(k.TickSpacing))
	h.Write(spacing[:])
	var id PoolID
	copy(id[:], h.Sum(nil))
	return id
}

// Validate checks the structural constraints on the key: sorted currencies
// and a supported fee tier with its canonical spacing.
func (k PoolKey) Validate() error {
	if bytes.Compare(k.Currency0[:], k.Currency1[:]) >= 0 {
		return ErrCurrenciesNotSorted
	}
	spacing, ok := TickSpacingForFee(k.Fee)
	if !ok {
		return ErrUnsupportedFeeTier
	}
	if k.TickSpacing != spacing {
		return ErrUnsupportedFeeTier
	}
	return nil
}

// Pool carries the live state of a liquidity pool.
type Pool struct {
	SqrtPriceX96         *big.Int
	Tick                 int32
	Liquidity            *big.Int
	FeeGrowthGlobal0X128 *big.Int
	FeeGrowthGlobal1X128 *big.Int
}

// NewPool returns an uninitialised pool with zeroed fields.
func NewPool() *Pool {
	return &Pool{
		SqrtPriceX96:         big.NewInt(0),
		Liquidity:            big.NewInt(0),
		FeeGrowthGlobal0X128: big.NewInt(0),
		FeeGrowthGlobal1X128: big.NewInt(0),
	}
}

// IsInitialized reports whether the pool has been given a starting price.
func (p *Pool) IsInitialized() bool {
	return p != nil && p.SqrtPriceX96 != nil && p.SqrtPriceX96.Sign() > 0
}

func (p *Pool) clone() *Pool {
	if p == nil {
		return nil
	}
	return &Pool{
		SqrtPriceX96:         cloneBigInt(p.SqrtPriceX96),
		Tick:                 p.Tick,
		Liquidity:            cloneBigInt(p.Liquidity),
		FeeGrowthGlobal0X128: cloneBigInt(p.FeeGrowthGlobal0X128),
		FeeGrowthGlobal1X128: cloneBigInt(p.FeeGrowthGlobal1X128),
	}
}

// Position is a bounded-range liquidity stake owned by a single locker.
// Accrued fees are credited to the owner's session deltas whenever the
// position is touched, so the stored state carries only the growth snapshot
// taken at the last touch.
type Position struct {
	Owner                    [20]byte
	TickLower                int32
	TickUpper                int32
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
}

func newPosition(owner [20]byte, lower, upper int32) *Position {
	return &Position{
		Owner:                    owner,
		TickLower:                lower,
		TickUpper:                upper,
		Liquidity:                big.NewInt(0),
		FeeGrowthInside0LastX128: big.NewInt(0),
		FeeGrowthInside1LastX128: big.NewInt(0),
	}
}

func (p *Position) clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{
		Owner:                    p.Owner,
		TickLower:                p.TickLower,
		TickUpper:                p.TickUpper,
		Liquidity:                cloneBigInt(p.Liquidity),
		FeeGrowthInside0LastX128: cloneBigInt(p.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: cloneBigInt(p.FeeGrowthInside1LastX128),
	}
}

// PositionID derives the storage key for a position within a pool.
func PositionID(pool PoolID, owner [20]byte, tickLower, tickUpper int32) [32]byte {
	h := blake3.New(32, nil)
	h.Write(pool[:])
	h.Write(owner[:])
	var ticks [8]byte
	binary.BigEndian.PutUint32(ticks[:4], uint32(tickLower))
	binary.BigEndian.PutUint32(ticks[4:], uint32(tickUpper))
	h.Write(ticks[:])
	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id
}

// BalanceDelta is the net movement of the pool pair for one operation.
// Positive amounts are owed to the pool, negative amounts to the locker.
type BalanceDelta struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// NewBalanceDelta clones the provided amounts into a delta.
func NewBalanceDelta(amount0, amount1 *big.Int) BalanceDelta {
	return BalanceDelta{Amount0: cloneBigInt(amount0), Amount1: cloneBigInt(amount1)}
}

// ZeroBalanceDelta returns an all-zero delta.
func ZeroBalanceDelta() BalanceDelta {
	return BalanceDelta{Amount0: big.NewInt(0), Amount1: big.NewInt(0)}
}

// Add combines two deltas.
func (d BalanceDelta) Add(other BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Add(d.Amount0, other.Amount0),
		Amount1: new(big.Int).Add(d.Amount1, other.Amount1),
	}
}

// IsZero reports whether both legs are zero.
func (d BalanceDelta) IsZero() bool {
	return d.Amount0.Sign() == 0 && d.Amount1.Sign() == 0
}

// SwapParams describes an exact-input swap.
type SwapParams struct {
	ZeroForOne        bool
	AmountIn          *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ModifyLiquidityParams describes a liquidity change over a tick range. A
// zero LiquidityDelta is a valid touch that only accrues owed fees.
type ModifyLiquidityParams struct {
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
