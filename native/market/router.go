package market

import "math/big"

// Router is a thin convenience layer over the venue for exact-input trades:
// it quotes swaps without touching state and executes them with a minimum
// output guard.
type Router struct {
	manager *Manager
}

// NewRouter returns a router bound to the venue.
func NewRouter(manager *Manager) *Router {
	return &Router{manager: manager}
}

// Quote simulates an exact-input swap at the current pool state and returns
// the output amount the same swap would produce if executed next.
func (r *Router) Quote(key PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	if r == nil || r.manager == nil {
		return nil, ErrNilStore
	}
	pool, err := r.manager.GetPool(key)
	if err != nil {
		return nil, err
	}
	result, err := simulateSwap(pool, key.Fee, SwapParams{ZeroForOne: zeroForOne, AmountIn: amountIn})
	if err != nil {
		return nil, err
	}
	return result.amountOut, nil
}

// Execute swaps an exact input inside the session and fails with
// ErrSlippageExceeded when the output lands below minAmountOut. A nil or
// zero minAmountOut disables the guard.
func (r *Router) Execute(session *Session, key PoolKey, zeroForOne bool, amountIn, minAmountOut *big.Int) (*big.Int, error) {
	if r == nil || r.manager == nil {
		return nil, ErrNilStore
	}
	delta, err := r.manager.Swap(session, key, SwapParams{ZeroForOne: zeroForOne, AmountIn: amountIn})
	if err != nil {
		return nil, err
	}
	var amountOut *big.Int
	if zeroForOne {
		amountOut = new(big.Int).Neg(delta.Amount1)
	} else {
		amountOut = new(big.Int).Neg(delta.Amount0)
	}
	if minAmountOut != nil && minAmountOut.Sign() > 0 && amountOut.Cmp(minAmountOut) < 0 {
		return nil, ErrSlippageExceeded
	}
	return amountOut, nil
}
