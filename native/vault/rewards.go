package vault

import (
	"fmt"
	"math/big"

	"benevault/core/events"
)

// RewardPayer settles the caller incentive. Implementations must either move
// the full amount or return an error; partial payment is not a supported
// outcome.
type RewardPayer interface {
	Pay(from, to [20]byte, amount *big.Int) error
}

// accountRewardPayer pays rewards straight from the module's base balance.
type accountRewardPayer struct {
	state State
}

func (p accountRewardPayer) Pay(from, to [20]byte, amount *big.Int) error {
	source, err := p.state.GetAccount(from)
	if err != nil {
		return err
	}
	if source.BalanceBase.Cmp(amount) < 0 {
		return fmt.Errorf("reward exceeds module balance")
	}
	dest, err := p.state.GetAccount(to)
	if err != nil {
		return err
	}
	source.BalanceBase = new(big.Int).Sub(source.BalanceBase, amount)
	dest.BalanceBase = new(big.Int).Add(dest.BalanceBase, amount)
	if err := p.state.PutAccount(from, source); err != nil {
		return err
	}
	return p.state.PutAccount(to, dest)
}

// rewardAmount computes Base + PerBenefactor*count*costRate, capped at Cap.
// Returns nil when no reward is configured.
func (e *Engine) rewardAmount(benefactors int) (*big.Int, error) {
	config, ok, err := e.state.RewardConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	variable := new(big.Int).Mul(config.PerBenefactor, big.NewInt(int64(benefactors)))
	variable.Mul(variable, e.costRate())
	amount := new(big.Int).Add(config.Base, variable)
	if amount.Cmp(config.Cap) > 0 {
		amount = new(big.Int).Set(config.Cap)
	}
	return amount, nil
}

// payConversionReward attempts the caller incentive for a finished
// conversion. The conversion itself is already final: any failure here is
// absorbed and surfaced as a RewardFailed event instead of unwinding the
// conversion.
func (e *Engine) payConversionReward(sequence uint64, caller [20]byte, benefactors int) {
	if caller == ([20]byte{}) || caller == ModuleAddress() {
		return
	}
	amount, err := e.rewardAmount(benefactors)
	if err != nil {
		e.emit(events.RewardFailed{
			Sequence: sequence,
			Caller:   caller,
			Amount:   big.NewInt(0),
			Reason:   err.Error(),
		})
		return
	}
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	payer := e.rewards
	if payer == nil {
		payer = accountRewardPayer{state: e.state}
	}
	if err := payer.Pay(ModuleAddress(), caller, amount); err != nil {
		e.emit(events.RewardFailed{
			Sequence: sequence,
			Caller:   caller,
			Amount:   cloneBigInt(amount),
			Reason:   err.Error(),
		})
		return
	}
	e.emit(events.RewardPaid{
		Sequence: sequence,
		Caller:   caller,
		Amount:   cloneBigInt(amount),
	})
}
