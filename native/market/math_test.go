package market

import (
	"errors"
	"math/big"
	"testing"
)

func TestSqrtRatioAtTickAnchors(t *testing.T) {
	ratio, err := SqrtRatioAtTick(0)
	if err != nil {
		t.Fatalf("tick 0: %v", err)
	}
	if ratio.Cmp(Q96) != 0 {
		t.Fatalf("tick 0 ratio: got %s want %s", ratio, Q96)
	}

	minRatio, err := SqrtRatioAtTick(MinTick)
	if err != nil {
		t.Fatalf("min tick: %v", err)
	}
	if minRatio.Cmp(MinSqrtRatio) != 0 {
		t.Fatalf("min tick ratio: got %s want %s", minRatio, MinSqrtRatio)
	}

	maxRatio, err := SqrtRatioAtTick(MaxTick)
	if err != nil {
		t.Fatalf("max tick: %v", err)
	}
	if maxRatio.Cmp(MaxSqrtRatio) != 0 {
		t.Fatalf("max tick ratio: got %s want %s", maxRatio, MaxSqrtRatio)
	}

	if _, err := SqrtRatioAtTick(MaxTick + 1); !errors.Is(err, ErrTickOutOfRange) {
		t.Fatalf("expected ErrTickOutOfRange, got %v", err)
	}
}

func TestSqrtRatioAtTickMonotonic(t *testing.T) {
	ticks := []int32{MinTick, -600000, -60, -1, 0, 1, 60, 600000, MaxTick - 1}
	for i := 0; i < len(ticks)-1; i++ {
		lower, err := SqrtRatioAtTick(ticks[i])
		if err != nil {
			t.Fatalf("tick %d: %v", ticks[i], err)
		}
		upper, err := SqrtRatioAtTick(ticks[i+1])
		if err != nil {
			t.Fatalf("tick %d: %v", ticks[i+1], err)
		}
		if lower.Cmp(upper) >= 0 {
			t.Fatalf("ratio not increasing between ticks %d and %d", ticks[i], ticks[i+1])
		}
	}
}

func TestTickAtSqrtRatioRoundTrip(t *testing.T) {
	for _, tick := range []int32{MinTick, -887220, -60000, -1, 0, 1, 60000, 887220} {
		ratio, err := SqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		back, err := TickAtSqrtRatio(ratio)
		if err != nil {
			t.Fatalf("tick %d back: %v", tick, err)
		}
		if back != tick {
			t.Fatalf("round trip tick %d: got %d", tick, back)
		}
	}

	if _, err := TickAtSqrtRatio(big.NewInt(1)); !errors.Is(err, ErrInvalidSqrtPrice) {
		t.Fatalf("expected ErrInvalidSqrtPrice, got %v", err)
	}
}

func TestUsableTickBounds(t *testing.T) {
	if got := MinUsableTick(60); got != -887220 {
		t.Fatalf("min usable tick: got %d", got)
	}
	if got := MaxUsableTick(60); got != 887220 {
		t.Fatalf("max usable tick: got %d", got)
	}
	if got := MinUsableTick(1); got != MinTick {
		t.Fatalf("min usable tick spacing 1: got %d", got)
	}
}

func TestAmountDeltas(t *testing.T) {
	sqrtA := new(big.Int).Set(Q96)
	sqrtB := new(big.Int).Lsh(Q96, 1)

	// Price doubling over liquidity 5 moves exactly 5 units of currency1.
	amount1 := amount1Delta(sqrtA, sqrtB, big.NewInt(5), false)
	if amount1.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("amount1: got %s want 5", amount1)
	}

	// The same move over liquidity 4 costs 2 units of currency0.
	amount0 := amount0Delta(sqrtA, sqrtB, big.NewInt(4), false)
	if amount0.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("amount0: got %s want 2", amount0)
	}
	roundedUp := amount0Delta(sqrtA, sqrtB, big.NewInt(4), true)
	if roundedUp.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("amount0 rounded: got %s want 2", roundedUp)
	}

	// Arguments arrive in either order.
	swapped := amount1Delta(sqrtB, sqrtA, big.NewInt(5), false)
	if swapped.Cmp(amount1) != 0 {
		t.Fatalf("amount1 order sensitivity: %s != %s", swapped, amount1)
	}
}

func TestNextSqrtPriceFromInput(t *testing.T) {
	liquidity := new(big.Int).Lsh(big.NewInt(1), 60)
	price := new(big.Int).Set(Q96)

	// Selling currency1 for currency0 at unit price with amountIn equal to
	// liquidity doubles the sqrt price.
	up := nextSqrtPriceFromInput(price, liquidity, new(big.Int).Set(liquidity), false)
	if up.Cmp(new(big.Int).Lsh(Q96, 1)) != 0 {
		t.Fatalf("one-for-zero next price: got %s", up)
	}

	// The opposite direction halves it.
	down := nextSqrtPriceFromInput(price, liquidity, new(big.Int).Set(liquidity), true)
	if down.Cmp(new(big.Int).Rsh(Q96, 1)) != 0 {
		t.Fatalf("zero-for-one next price: got %s", down)
	}
}

func TestLiquidityAmountsRoundTrip(t *testing.T) {
	sqrtLower, err := SqrtRatioAtTick(-600)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	sqrtUpper, err := SqrtRatioAtTick(600)
	if err != nil {
		t.Fatalf("upper: %v", err)
	}
	price := new(big.Int).Set(Q96)
	amount0 := new(big.Int).Lsh(big.NewInt(1), 50)
	amount1 := new(big.Int).Lsh(big.NewInt(1), 50)

	liquidity := LiquidityForAmounts(price, sqrtLower, sqrtUpper, amount0, amount1)
	if liquidity.Sign() <= 0 {
		t.Fatalf("expected positive liquidity")
	}
	need0, need1 := AmountsForLiquidity(price, sqrtLower, sqrtUpper, liquidity, false)
	if need0.Cmp(amount0) > 0 {
		t.Fatalf("amount0 needed %s exceeds offered %s", need0, amount0)
	}
	if need1.Cmp(amount1) > 0 {
		t.Fatalf("amount1 needed %s exceeds offered %s", need1, amount1)
	}

	// Below the range only currency0 is required, above it only currency1.
	below, _ := AmountsForLiquidity(new(big.Int).Sub(sqrtLower, big.NewInt(1)), sqrtLower, sqrtUpper, liquidity, false)
	if below.Sign() <= 0 {
		t.Fatalf("expected currency0 requirement below range")
	}
	_, above := AmountsForLiquidity(new(big.Int).Add(sqrtUpper, big.NewInt(1)), sqrtLower, sqrtUpper, liquidity, false)
	if above.Sign() <= 0 {
		t.Fatalf("expected currency1 requirement above range")
	}
}

func TestStoredPoolRoundTrip(t *testing.T) {
	pool := NewPool()
	pool.SqrtPriceX96 = new(big.Int).Set(Q96)
	pool.Tick = -31
	pool.Liquidity = big.NewInt(123456789)
	pool.FeeGrowthGlobal0X128 = new(big.Int).Lsh(big.NewInt(7), 100)

	restored, err := newStoredPool(pool).toPool()
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if restored.Tick != pool.Tick {
		t.Fatalf("tick: got %d want %d", restored.Tick, pool.Tick)
	}
	if restored.SqrtPriceX96.Cmp(pool.SqrtPriceX96) != 0 || restored.Liquidity.Cmp(pool.Liquidity) != 0 {
		t.Fatalf("pool fields did not survive the round trip")
	}
	if restored.FeeGrowthGlobal0X128.Cmp(pool.FeeGrowthGlobal0X128) != 0 {
		t.Fatalf("fee growth did not survive the round trip")
	}

	for _, tick := range []int32{MinTick, -1, 0, 1, MaxTick} {
		decoded, err := decodeTick(encodeTick(tick))
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if decoded != tick {
			t.Fatalf("tick %d decoded as %d", tick, decoded)
		}
	}
	if _, err := decodeTick(encodeTick(MaxTick) + 1); !errors.Is(err, ErrTickOutOfRange) {
		t.Fatalf("expected ErrTickOutOfRange, got %v", err)
	}
}
