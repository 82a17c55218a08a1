package market

import (
	"fmt"
	"math/big"
)

// Storage key prefixes for venue state.
const (
	poolKeyPrefix     = "market/pools/"
	positionKeyPrefix = "market/positions/"
	reserveKeyPrefix  = "market/reserves/"
)

func poolStorageKey(id PoolID) []byte {
	return []byte(poolKeyPrefix + id.Hex())
}

func positionStorageKey(id [32]byte) []byte {
	return []byte(positionKeyPrefix + PoolID(id).Hex())
}

func reserveStorageKey(currency Currency) []byte {
	return []byte(reserveKeyPrefix + currency.Hex())
}

// Stored forms keep RLP-friendly fields: big integers as decimal strings and
// ticks offset by MinTick so they encode as unsigned values.

type storedPool struct {
	SqrtPriceX96         string
	TickOffset           uint32
	Liquidity            string
	FeeGrowthGlobal0X128 string
	FeeGrowthGlobal1X128 string
}

func newStoredPool(p *Pool) *storedPool {
	return &storedPool{
		SqrtPriceX96:         bigIntToString(p.SqrtPriceX96),
		TickOffset:           encodeTick(p.Tick),
		Liquidity:            bigIntToString(p.Liquidity),
		FeeGrowthGlobal0X128: bigIntToString(p.FeeGrowthGlobal0X128),
		FeeGrowthGlobal1X128: bigIntToString(p.FeeGrowthGlobal1X128),
	}
}

func (s *storedPool) toPool() (*Pool, error) {
	sqrtPrice, err := bigIntFromString(s.SqrtPriceX96)
	if err != nil {
		return nil, err
	}
	liquidity, err := bigIntFromString(s.Liquidity)
	if err != nil {
		return nil, err
	}
	growth0, err := bigIntFromString(s.FeeGrowthGlobal0X128)
	if err != nil {
		return nil, err
	}
	growth1, err := bigIntFromString(s.FeeGrowthGlobal1X128)
	if err != nil {
		return nil, err
	}
	tick, err := decodeTick(s.TickOffset)
	if err != nil {
		return nil, err
	}
	return &Pool{
		SqrtPriceX96:         sqrtPrice,
		Tick:                 tick,
		Liquidity:            liquidity,
		FeeGrowthGlobal0X128: growth0,
		FeeGrowthGlobal1X128: growth1,
	}, nil
}

type storedPosition struct {
	Owner                    []byte
	TickLowerOffset          uint32
	TickUpperOffset          uint32
	Liquidity                string
	FeeGrowthInside0LastX128 string
	FeeGrowthInside1LastX128 string
}

func newStoredPosition(p *Position) *storedPosition {
	owner := make([]byte, len(p.Owner))
	copy(owner, p.Owner[:])
	return &storedPosition{
		Owner:                    owner,
		TickLowerOffset:          encodeTick(p.TickLower),
		TickUpperOffset:          encodeTick(p.TickUpper),
		Liquidity:                bigIntToString(p.Liquidity),
		FeeGrowthInside0LastX128: bigIntToString(p.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: bigIntToString(p.FeeGrowthInside1LastX128),
	}
}

func (s *storedPosition) toPosition() (*Position, error) {
	if len(s.Owner) != 20 {
		return nil, fmt.Errorf("market: malformed position owner")
	}
	liquidity, err := bigIntFromString(s.Liquidity)
	if err != nil {
		return nil, err
	}
	inside0, err := bigIntFromString(s.FeeGrowthInside0LastX128)
	if err != nil {
		return nil, err
	}
	inside1, err := bigIntFromString(s.FeeGrowthInside1LastX128)
	if err != nil {
		return nil, err
	}
	lower, err := decodeTick(s.TickLowerOffset)
	if err != nil {
		return nil, err
	}
	upper, err := decodeTick(s.TickUpperOffset)
	if err != nil {
		return nil, err
	}
	position := &Position{
		TickLower:                lower,
		TickUpper:                upper,
		Liquidity:                liquidity,
		FeeGrowthInside0LastX128: inside0,
		FeeGrowthInside1LastX128: inside1,
	}
	copy(position.Owner[:], s.Owner)
	return position, nil
}

func encodeTick(tick int32) uint32 {
	return uint32(int64(tick) - int64(MinTick))
}

func decodeTick(offset uint32) (int32, error) {
	tick := int64(offset) + int64(MinTick)
	if tick < int64(MinTick) || tick > int64(MaxTick) {
		return 0, ErrTickOutOfRange
	}
	return int32(tick), nil
}

func bigIntToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigIntFromString(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("market: malformed big integer %q", s)
	}
	return value, nil
}
