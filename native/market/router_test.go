package market

import (
	"errors"
	"math/big"
	"testing"
)

func TestQuoteMatchesExecution(t *testing.T) {
	manager, bank := newTestManager(t)
	key := initTestPool(t, manager)
	lp := newTestAddress(0x20)
	trader := newTestAddress(0x21)
	seedLiquidity(t, manager, bank, key, lp, new(big.Int).Lsh(big.NewInt(1), 60))
	router := NewRouter(manager)

	amountIn := big.NewInt(5_000_000_000)
	quoted, err := router.Quote(key, true, amountIn)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quoted.Sign() <= 0 {
		t.Fatalf("expected positive quote, got %s", quoted)
	}

	bank.fund(trader, key.Currency0, amountIn)
	var executed *big.Int
	err = manager.Unlock(trader, func(session *Session) error {
		out, err := router.Execute(session, key, true, amountIn, nil)
		if err != nil {
			return err
		}
		executed = out
		if err := manager.Settle(session, key.Currency0, amountIn); err != nil {
			return err
		}
		return manager.Take(session, key.Currency1, out)
	})
	if err != nil {
		t.Fatalf("execute unlock: %v", err)
	}
	if executed.Cmp(quoted) != 0 {
		t.Fatalf("execution %s diverged from quote %s", executed, quoted)
	}
}

func TestExecuteEnforcesMinimumOutput(t *testing.T) {
	manager, bank := newTestManager(t)
	key := initTestPool(t, manager)
	lp := newTestAddress(0x22)
	trader := newTestAddress(0x23)
	seedLiquidity(t, manager, bank, key, lp, new(big.Int).Lsh(big.NewInt(1), 60))
	router := NewRouter(manager)

	amountIn := big.NewInt(1_000_000_000)
	quoted, err := router.Quote(key, true, amountIn)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	before, err := manager.GetPool(key)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	bank.fund(trader, key.Currency0, amountIn)
	minOut := new(big.Int).Add(quoted, big.NewInt(1))
	err = manager.Unlock(trader, func(session *Session) error {
		_, err := router.Execute(session, key, true, amountIn, minOut)
		return err
	})
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
	after, err := manager.GetPool(key)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if after.SqrtPriceX96.Cmp(before.SqrtPriceX96) != 0 {
		t.Fatalf("price moved despite aborted execution")
	}

	// The exact quote passes the guard.
	err = manager.Unlock(trader, func(session *Session) error {
		out, err := router.Execute(session, key, true, amountIn, quoted)
		if err != nil {
			return err
		}
		if err := manager.Settle(session, key.Currency0, amountIn); err != nil {
			return err
		}
		return manager.Take(session, key.Currency1, out)
	})
	if err != nil {
		t.Fatalf("execute at quote: %v", err)
	}
}

func TestQuoteRequiresInitializedPool(t *testing.T) {
	manager, _ := newTestManager(t)
	router := NewRouter(manager)
	if _, err := router.Quote(testPoolKey(), true, big.NewInt(1000)); !errors.Is(err, ErrPoolNotInitialized) {
		t.Fatalf("expected ErrPoolNotInitialized, got %v", err)
	}
}
