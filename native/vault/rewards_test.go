package vault

import (
	"errors"
	"math/big"
	"testing"

	"benevault/core/events"
)

func testRewardConfig() *RewardConfig {
	return &RewardConfig{
		Base:          big.NewInt(1_000_000_000_000_000),
		PerBenefactor: big.NewInt(1_000_000_000_000),
		Cap:           big.NewInt(2_000_000_000_000_000),
	}
}

func TestRewardConfigValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name   string
		config *RewardConfig
	}{
		{"nil", nil},
		{"nil base", &RewardConfig{PerBenefactor: big.NewInt(1), Cap: big.NewInt(1)}},
		{"negative per-benefactor", &RewardConfig{Base: big.NewInt(1), PerBenefactor: big.NewInt(-1), Cap: big.NewInt(1)}},
		{"cap below base", &RewardConfig{Base: big.NewInt(10), PerBenefactor: big.NewInt(0), Cap: big.NewInt(5)}},
	}
	for _, tc := range cases {
		if err := env.engine.SetRewardConfig(tc.config); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("%s: got %v, want ErrInvalidConfiguration", tc.name, err)
		}
	}

	if err := env.engine.SetRewardConfig(testRewardConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	stored, err := env.engine.RewardConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if stored == nil || stored.Base.Cmp(testRewardConfig().Base) != 0 {
		t.Fatalf("stored config mismatch: %+v", stored)
	}
}

func TestConversionPaysCallerReward(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetRewardConfig(testRewardConfig()); err != nil {
		t.Fatalf("set config: %v", err)
	}
	alice := newTestAddress(0xA1)
	bob := newTestAddress(0xB2)
	caller := newTestAddress(0xC0)
	env.contribute(t, alice, units(10))
	env.contribute(t, bob, units(5))
	env.fund(t, ModuleAddress(), units(1), nil)

	env.convert(t, caller)

	// Base + PerBenefactor * 2 benefactors at the default unit cost rate.
	want := new(big.Int).Add(testRewardConfig().Base, new(big.Int).Mul(testRewardConfig().PerBenefactor, big.NewInt(2)))
	if got := env.balanceBase(t, caller); got.Cmp(want) != 0 {
		t.Fatalf("caller reward = %s, want %s", got, want)
	}
	paid := env.emitter.byType(events.TypeRewardPaid)
	if len(paid) != 1 {
		t.Fatalf("expected 1 reward event, got %d", len(paid))
	}
	payload := paid[0].(events.RewardPaid)
	if payload.Sequence != 1 || payload.Caller != caller || payload.Amount.Cmp(want) != 0 {
		t.Fatalf("unexpected reward payload %+v", payload)
	}
}

func TestRewardRespectsCap(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetRewardConfig(testRewardConfig()); err != nil {
		t.Fatalf("set config: %v", err)
	}
	env.engine.SetCostRateFunc(func() *big.Int { return big.NewInt(1_000_000) })
	alice := newTestAddress(0xA1)
	caller := newTestAddress(0xC0)
	env.contribute(t, alice, units(10))
	env.fund(t, ModuleAddress(), units(1), nil)

	env.convert(t, caller)

	if got := env.balanceBase(t, caller); got.Cmp(testRewardConfig().Cap) != 0 {
		t.Fatalf("caller reward = %s, want cap %s", got, testRewardConfig().Cap)
	}
}

func TestRewardScalesWithCostRate(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetRewardConfig(testRewardConfig()); err != nil {
		t.Fatalf("set config: %v", err)
	}
	env.engine.SetCostRateFunc(func() *big.Int { return big.NewInt(3) })
	alice := newTestAddress(0xA1)
	caller := newTestAddress(0xC0)
	env.contribute(t, alice, units(10))
	env.fund(t, ModuleAddress(), units(1), nil)

	env.convert(t, caller)

	want := new(big.Int).Add(testRewardConfig().Base, new(big.Int).Mul(testRewardConfig().PerBenefactor, big.NewInt(3)))
	if got := env.balanceBase(t, caller); got.Cmp(want) != 0 {
		t.Fatalf("caller reward = %s, want %s", got, want)
	}
}

func TestNoRewardWithoutConfig(t *testing.T) {
	env := newTestEnv(t)
	alice := newTestAddress(0xA1)
	caller := newTestAddress(0xC0)
	env.contribute(t, alice, units(10))

	env.convert(t, caller)

	if got := env.balanceBase(t, caller); got.Sign() != 0 {
		t.Fatalf("caller received %s without config", got)
	}
	if len(env.emitter.byType(events.TypeRewardPaid)) != 0 {
		t.Fatalf("reward event without config")
	}
	if len(env.emitter.byType(events.TypeRewardFailed)) != 0 {
		t.Fatalf("reward failure event without config")
	}
}

// TestRewardFailureDoesNotUnwindConversion is the isolation property: a
// conversion whose incentive cannot be paid still commits everything else.
func TestRewardFailureDoesNotUnwindConversion(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetRewardConfig(testRewardConfig()); err != nil {
		t.Fatalf("set config: %v", err)
	}
	alice := newTestAddress(0xA1)
	caller := newTestAddress(0xC0)
	env.contribute(t, alice, units(10))
	// Module holds only conversion dust, far below the configured reward.

	record := env.convert(t, caller)
	if record.Sequence != 1 {
		t.Fatalf("conversion did not commit")
	}
	if got := env.balanceBase(t, caller); got.Sign() != 0 {
		t.Fatalf("caller paid %s despite failure", got)
	}

	failed := env.emitter.byType(events.TypeRewardFailed)
	if len(failed) != 1 {
		t.Fatalf("expected 1 failure event, got %d", len(failed))
	}
	payload := failed[0].(events.RewardFailed)
	if payload.Sequence != 1 || payload.Caller != caller || payload.Reason == "" {
		t.Fatalf("unexpected failure payload %+v", payload)
	}

	// The conversion's bookkeeping is fully intact.
	pending, err := env.engine.PendingTotal()
	if err != nil {
		t.Fatalf("pending total: %v", err)
	}
	if pending.Sign() != 0 {
		t.Fatalf("pending total = %s after conversion", pending)
	}
	position, err := env.engine.Position()
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position == nil || position.Liquidity.Sign() <= 0 {
		t.Fatalf("position missing after reward failure")
	}
}

func TestRewardSkipsZeroCaller(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetRewardConfig(testRewardConfig()); err != nil {
		t.Fatalf("set config: %v", err)
	}
	alice := newTestAddress(0xA1)
	env.contribute(t, alice, units(10))
	env.fund(t, ModuleAddress(), units(1), nil)

	env.convert(t, [20]byte{})

	if len(env.emitter.byType(events.TypeRewardPaid)) != 0 {
		t.Fatalf("reward paid to zero caller")
	}
	if len(env.emitter.byType(events.TypeRewardFailed)) != 0 {
		t.Fatalf("reward failure for zero caller")
	}
}
