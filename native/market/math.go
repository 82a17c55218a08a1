package market

import (
	"math/big"

	"github.com/holiman/uint256"
)

// sqrtMagics[i] = sqrt(1.0001^-2^i) in Q128. The ladder multiplies the
// factors selected by the bits of |tick|, each step staying below 2^256 so
// fixed-width words are exact.
var sqrtMagics = [20]*uint256.Int{
	uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
	uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
	uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
	uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
	uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
	uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
	uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
	uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
	uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
	uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
	uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
	uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
	uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
	uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
}

var oneQ128 = uint256.MustFromHex("0x100000000000000000000000000000000")

// SqrtRatioAtTick returns sqrt(1.0001^tick) in Q64.96.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfRange
	}
	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int).Set(oneQ128)
	if absTick&1 != 0 {
		ratio.Set(sqrtMagics[0])
	}
	for bit := 1; bit < len(sqrtMagics); bit++ {
		if absTick&(1<<uint(bit)) != 0 {
			ratio.Mul(ratio, sqrtMagics[bit])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		max := new(uint256.Int).SetAllOne()
		ratio.Div(max, ratio)
	}

	// Q128 -> Q96 with round-up, matching the canonical conversion.
	rounded := new(uint256.Int).Rsh(ratio, 32)
	var rem uint256.Int
	rem.And(ratio, uint256.NewInt(0xffffffff))
	if !rem.IsZero() {
		rounded.AddUint64(rounded, 1)
	}
	return rounded.ToBig(), nil
}

// TickAtSqrtRatio returns the largest tick whose sqrt ratio does not exceed
// the provided price. The price must lie within the usable ratio bounds.
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return 0, ErrInvalidSqrtPrice
	}
	low, high := MinTick, MaxTick
	for low < high {
		mid := low + (high-low+1)/2
		ratio, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low, nil
}

// MinUsableTick returns the lowest tick aligned to the spacing.
func MinUsableTick(spacing int32) int32 {
	return (MinTick / spacing) * spacing
}

// MaxUsableTick returns the highest tick aligned to the spacing.
func MaxUsableTick(spacing int32) int32 {
	return (MaxTick / spacing) * spacing
}

func mulDiv(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Div(product, denominator)
}

func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	quotient, remainder := new(big.Int).DivMod(product, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}

func divRoundingUp(a, denominator *big.Int) *big.Int {
	quotient, remainder := new(big.Int).DivMod(a, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}

// amount0Delta returns the currency0 amount between two sqrt prices for the
// given liquidity: L * (sqrtB - sqrtA) * Q96 / (sqrtA * sqrtB).
func amount0Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, sqrtB), sqrtA)
	}
	return new(big.Int).Div(mulDiv(numerator1, numerator2, sqrtB), sqrtA)
}

// amount1Delta returns the currency1 amount between two sqrt prices for the
// given liquidity: L * (sqrtB - sqrtA) / Q96.
func amount1Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}

// nextSqrtPriceFromInput computes the post-swap sqrt price after consuming
// the full net input within the current liquidity. Rounds in the pool's
// favour on both directions.
func nextSqrtPriceFromInput(sqrtPriceX96, liquidity, amountIn *big.Int, zeroForOne bool) *big.Int {
	if zeroForOne {
		numerator1 := new(big.Int).Lsh(liquidity, 96)
		product := new(big.Int).Mul(amountIn, sqrtPriceX96)
		denominator := new(big.Int).Add(numerator1, product)
		return mulDivRoundingUp(numerator1, sqrtPriceX96, denominator)
	}
	quotient := mulDiv(amountIn, Q96, liquidity)
	return new(big.Int).Add(sqrtPriceX96, quotient)
}

func liquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	intermediate := mulDiv(sqrtA, sqrtB, Q96)
	return mulDiv(amount0, intermediate, new(big.Int).Sub(sqrtB, sqrtA))
}

func liquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	return mulDiv(amount1, Q96, new(big.Int).Sub(sqrtB, sqrtA))
}

// LiquidityForAmounts converts available token amounts into the largest
// liquidity the range can absorb at the current price.
func LiquidityForAmounts(sqrtPriceX96, sqrtLowerX96, sqrtUpperX96, amount0, amount1 *big.Int) *big.Int {
	if sqrtLowerX96.Cmp(sqrtUpperX96) > 0 {
		sqrtLowerX96, sqrtUpperX96 = sqrtUpperX96, sqrtLowerX96
	}
	switch {
	case sqrtPriceX96.Cmp(sqrtLowerX96) <= 0:
		return liquidityForAmount0(sqrtLowerX96, sqrtUpperX96, amount0)
	case sqrtPriceX96.Cmp(sqrtUpperX96) < 0:
		liquidity0 := liquidityForAmount0(sqrtPriceX96, sqrtUpperX96, amount0)
		liquidity1 := liquidityForAmount1(sqrtLowerX96, sqrtPriceX96, amount1)
		if liquidity0.Cmp(liquidity1) < 0 {
			return liquidity0
		}
		return liquidity1
	default:
		return liquidityForAmount1(sqrtLowerX96, sqrtUpperX96, amount1)
	}
}

// AmountsForLiquidity returns the token amounts a liquidity delta moves over
// the range at the current price. Round-up is used when the pool receives.
func AmountsForLiquidity(sqrtPriceX96, sqrtLowerX96, sqrtUpperX96, liquidity *big.Int, roundUp bool) (*big.Int, *big.Int) {
	if sqrtLowerX96.Cmp(sqrtUpperX96) > 0 {
		sqrtLowerX96, sqrtUpperX96 = sqrtUpperX96, sqrtLowerX96
	}
	amount0 := big.NewInt(0)
	amount1 := big.NewInt(0)
	switch {
	case sqrtPriceX96.Cmp(sqrtLowerX96) <= 0:
		amount0 = amount0Delta(sqrtLowerX96, sqrtUpperX96, liquidity, roundUp)
	case sqrtPriceX96.Cmp(sqrtUpperX96) < 0:
		amount0 = amount0Delta(sqrtPriceX96, sqrtUpperX96, liquidity, roundUp)
		amount1 = amount1Delta(sqrtLowerX96, sqrtPriceX96, liquidity, roundUp)
	default:
		amount1 = amount1Delta(sqrtLowerX96, sqrtUpperX96, liquidity, roundUp)
	}
	return amount0, amount1
}
