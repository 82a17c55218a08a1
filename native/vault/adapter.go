package vault

import (
	"fmt"
	"math/big"

	"benevault/native/market"
)

// AccountBank maps venue currencies onto the base/target balances of vault
// accounts so the market manager can settle against them.
type AccountBank struct {
	state  State
	base   market.Currency
	target market.Currency
}

// NewAccountBank wires the bank over the vault state for one currency pair.
func NewAccountBank(state State, base, target market.Currency) *AccountBank {
	return &AccountBank{state: state, base: base, target: target}
}

// Debit removes funds from the account, failing when the balance is short.
func (b *AccountBank) Debit(addr [20]byte, currency market.Currency, amount *big.Int) error {
	account, err := b.state.GetAccount(addr)
	if err != nil {
		return err
	}
	switch currency {
	case b.base:
		if account.BalanceBase.Cmp(amount) < 0 {
			return fmt.Errorf("vault: base balance %s below %s", account.BalanceBase, amount)
		}
		account.BalanceBase = new(big.Int).Sub(account.BalanceBase, amount)
	case b.target:
		if account.BalanceTarget.Cmp(amount) < 0 {
			return fmt.Errorf("vault: target balance %s below %s", account.BalanceTarget, amount)
		}
		account.BalanceTarget = new(big.Int).Sub(account.BalanceTarget, amount)
	default:
		return fmt.Errorf("vault: unknown currency %s", currency.Hex())
	}
	return b.state.PutAccount(addr, account)
}

// Credit adds funds to the account.
func (b *AccountBank) Credit(addr [20]byte, currency market.Currency, amount *big.Int) error {
	account, err := b.state.GetAccount(addr)
	if err != nil {
		return err
	}
	switch currency {
	case b.base:
		account.BalanceBase = new(big.Int).Add(account.BalanceBase, amount)
	case b.target:
		account.BalanceTarget = new(big.Int).Add(account.BalanceTarget, amount)
	default:
		return fmt.Errorf("vault: unknown currency %s", currency.Hex())
	}
	return b.state.PutAccount(addr, account)
}

// PositionAdapter runs the vault's venue interactions inside unlock sessions
// and guarantees every currency delta is zeroed before a session commits.
type PositionAdapter struct {
	market          *market.Manager
	router          *market.Router
	key             market.PoolKey
	baseIsCurrency0 bool
}

// DeployResult reports what one conversion moved at the venue.
type DeployResult struct {
	SwapOut        *big.Int
	LiquidityDelta *big.Int
	TickLower      int32
	TickUpper      int32
	// HarvestedBase is fee income collected in passing while the position was
	// touched, already converted to base units. It belongs to the records that
	// existed before this conversion.
	HarvestedBase *big.Int
}

func newPositionAdapter(manager *market.Manager, router *market.Router, key market.PoolKey, baseIsCurrency0 bool) *PositionAdapter {
	return &PositionAdapter{market: manager, router: router, key: key, baseIsCurrency0: baseIsCurrency0}
}

// splitDelta reorders a venue delta into (base, target) amounts.
func (a *PositionAdapter) splitDelta(delta market.BalanceDelta) (*big.Int, *big.Int) {
	if a.baseIsCurrency0 {
		return delta.Amount0, delta.Amount1
	}
	return delta.Amount1, delta.Amount0
}

// Deploy swaps swapIn of the pooled base value into the target asset and
// extends (or creates) the position with the proceeds. Fees accrued on an
// existing position are collected in the same session and returned converted
// to base units. The whole session aborts if the swap output misses minOut.
func (a *PositionAdapter) Deploy(locker [20]byte, totalBase, swapIn, minOut *big.Int, existing *LiquidityPosition) (*DeployResult, error) {
	result := &DeployResult{
		SwapOut:       big.NewInt(0),
		HarvestedBase: big.NewInt(0),
	}
	err := a.market.Unlock(locker, func(session *market.Session) error {
		if existing != nil && existing.Liquidity != nil && existing.Liquidity.Sign() > 0 {
			collected, err := a.collectFees(session, existing)
			if err != nil {
				return err
			}
			result.HarvestedBase = collected
		}

		if swapIn != nil && swapIn.Sign() > 0 {
			out, err := a.router.Execute(session, a.key, a.baseIsCurrency0, swapIn, minOut)
			if err != nil {
				return err
			}
			result.SwapOut = out
		}

		var lower, upper int32
		if existing != nil {
			lower, upper = existing.TickLower, existing.TickUpper
		} else {
			lower = market.MinUsableTick(a.key.TickSpacing)
			upper = market.MaxUsableTick(a.key.TickSpacing)
		}
		sqrtLower, err := market.SqrtRatioAtTick(lower)
		if err != nil {
			return err
		}
		sqrtUpper, err := market.SqrtRatioAtTick(upper)
		if err != nil {
			return err
		}
		pool, err := a.market.GetPool(a.key)
		if err != nil {
			return err
		}

		baseRemaining := new(big.Int).Sub(totalBase, swapIn)
		var amount0, amount1 *big.Int
		if a.baseIsCurrency0 {
			amount0, amount1 = baseRemaining, result.SwapOut
		} else {
			amount0, amount1 = result.SwapOut, baseRemaining
		}
		liquidity := market.LiquidityForAmounts(pool.SqrtPriceX96, sqrtLower, sqrtUpper, amount0, amount1)
		if liquidity.Sign() <= 0 {
			return ErrDustConversion
		}

		_, fees, err := a.market.ModifyLiquidity(session, a.key, market.ModifyLiquidityParams{
			TickLower:      lower,
			TickUpper:      upper,
			LiquidityDelta: liquidity,
		})
		if err != nil {
			return err
		}
		// The position's own share of the swap fee charged above comes back
		// here; fold it into the harvested total.
		if err := a.foldFees(session, fees, result.HarvestedBase); err != nil {
			return err
		}

		result.LiquidityDelta = liquidity
		result.TickLower = lower
		result.TickUpper = upper
		return a.zeroSettle(session)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Harvest collects the position's accrued fees, converts the target-asset
// component to base units inside the same session and withdraws the total to
// the locker.
func (a *PositionAdapter) Harvest(locker [20]byte, position *LiquidityPosition) (*big.Int, error) {
	harvested := big.NewInt(0)
	err := a.market.Unlock(locker, func(session *market.Session) error {
		collected, err := a.collectFees(session, position)
		if err != nil {
			return err
		}
		harvested = collected
		return a.zeroSettle(session)
	})
	if err != nil {
		return nil, err
	}
	return harvested, nil
}

// collectFees touches the position without changing liquidity, converts any
// target-asset fee component to base and returns the total base-denominated
// fee income now owed to the locker through the session deltas.
func (a *PositionAdapter) collectFees(session *market.Session, position *LiquidityPosition) (*big.Int, error) {
	_, fees, err := a.market.ModifyLiquidity(session, a.key, market.ModifyLiquidityParams{
		TickLower:      position.TickLower,
		TickUpper:      position.TickUpper,
		LiquidityDelta: big.NewInt(0),
	})
	if err != nil {
		return nil, err
	}
	collected := big.NewInt(0)
	if err := a.foldFees(session, fees, collected); err != nil {
		return nil, err
	}
	return collected, nil
}

// foldFees adds a fee delta (negative amounts owed to the locker) into the
// running base-denominated total, swapping the target component to base.
func (a *PositionAdapter) foldFees(session *market.Session, fees market.BalanceDelta, total *big.Int) error {
	feeBase, feeTarget := a.splitDelta(fees)
	if feeBase.Sign() < 0 {
		total.Add(total, new(big.Int).Neg(feeBase))
	}
	if feeTarget.Sign() < 0 {
		out, err := a.router.Execute(session, a.key, !a.baseIsCurrency0, new(big.Int).Neg(feeTarget), nil)
		if err != nil {
			return err
		}
		total.Add(total, out)
	}
	return nil
}

// zeroSettle balances both currency deltas: positive deltas are settled from
// the locker's balance, negative deltas withdrawn to it.
func (a *PositionAdapter) zeroSettle(session *market.Session) error {
	for _, currency := range []market.Currency{a.key.Currency0, a.key.Currency1} {
		delta := session.CurrencyDelta(currency)
		switch delta.Sign() {
		case 1:
			if err := a.market.Settle(session, currency, delta); err != nil {
				return err
			}
		case -1:
			if err := a.market.Take(session, currency, new(big.Int).Neg(delta)); err != nil {
				return err
			}
		}
	}
	return nil
}
