package vault

import (
	"math/big"

	"benevault/native/market"
)

// referenceLiquidity is the unit used to probe the per-liquidity token
// amounts of a range; large enough that floor rounding is negligible.
var referenceLiquidity = new(big.Int).Lsh(big.NewInt(1), 96)

// evenSplit is the fallback swap portion: half the pooled value, floored.
func evenSplit(total *big.Int) *big.Int {
	if total == nil || total.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Rsh(total, 1)
}

// SwapAmount returns how much of the pooled base value to swap into the
// target asset before deploying, choosing the proportion that leaves the
// least idle capital for the range at the current price. When the price sits
// outside the range, or the range math degenerates, it falls back to the
// even split.
//
// For base = currency0 the balance condition is
//
//	(T - s) / a0 = s * P^2 / (Q192 * a1)
//
// with a0, a1 the per-liquidity amounts at the current sqrt price P, which
// solves to s = T * a1 * Q192 / (a1 * Q192 + a0 * P^2). The mirrored form
// applies when base = currency1.
func SwapAmount(total *big.Int, pool *market.Pool, sqrtLower, sqrtUpper *big.Int, baseIsCurrency0 bool) *big.Int {
	if total == nil || total.Sign() <= 0 {
		return big.NewInt(0)
	}
	if pool == nil || pool.SqrtPriceX96 == nil || sqrtLower == nil || sqrtUpper == nil {
		return evenSplit(total)
	}
	price := pool.SqrtPriceX96
	if price.Cmp(sqrtLower) <= 0 || price.Cmp(sqrtUpper) >= 0 {
		return evenSplit(total)
	}
	amount0, amount1 := market.AmountsForLiquidity(price, sqrtLower, sqrtUpper, referenceLiquidity, false)
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return evenSplit(total)
	}

	q192 := new(big.Int).Mul(market.Q96, market.Q96)
	priceSquared := new(big.Int).Mul(price, price)
	var numerator, denominator *big.Int
	if baseIsCurrency0 {
		numerator = new(big.Int).Mul(amount1, q192)
		denominator = new(big.Int).Add(new(big.Int).Set(numerator), new(big.Int).Mul(amount0, priceSquared))
	} else {
		numerator = new(big.Int).Mul(amount0, priceSquared)
		denominator = new(big.Int).Add(new(big.Int).Set(numerator), new(big.Int).Mul(amount1, q192))
	}
	if denominator.Sign() <= 0 {
		return evenSplit(total)
	}
	swapIn := new(big.Int).Mul(total, numerator)
	return swapIn.Div(swapIn, denominator)
}
