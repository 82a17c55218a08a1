package vault

import (
	"math/big"

	"benevault/core/events"
	nativecommon "benevault/native/common"
)

// HarvestAndRecord collects the fees accrued by the shared position, converts
// the target-side portion into the base asset and books the total onto the
// existing conversion records. Returns the harvested base amount.
func (e *Engine) HarvestAndRecord() (*big.Int, error) {
	if err := e.readyForVenue(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	position, ok, err := e.state.Position()
	if err != nil {
		return nil, err
	}
	if !ok || position.Liquidity == nil || position.Liquidity.Sign() <= 0 {
		return nil, ErrNoPosition
	}
	harvested, err := e.adapter().Harvest(ModuleAddress(), position)
	if err != nil {
		return nil, mapMarketError(err)
	}
	count, err := e.state.ConversionRecordCount()
	if err != nil {
		return nil, err
	}
	if err := e.attributeFees(harvested, count); err != nil {
		return nil, err
	}
	return harvested, nil
}

// RecordAccumulatedFees credits an externally collected base-denominated fee
// amount onto a single conversion record. Zero amounts are a no-op.
func (e *Engine) RecordAccumulatedFees(sequence uint64, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	record, ok, err := e.state.ConversionRecord(sequence)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRecordNotFound
	}
	record.AccumulatedFees = new(big.Int).Add(record.AccumulatedFees, amount)
	if err := e.state.PutConversionRecord(record); err != nil {
		return err
	}
	e.emit(events.FeesRecorded{
		Sequence:        sequence,
		Amount:          cloneBigInt(amount),
		AccumulatedFees: cloneBigInt(record.AccumulatedFees),
	})
	return nil
}

// claimRow pairs a record the benefactor participates in with the watermark
// it will advance to.
type claimRow struct {
	sequence    uint64
	entitlement *big.Int
	owed        *big.Int
}

// claimableRows walks only the records the benefactor participated in and
// computes, per record, the gap between the current entitlement and the
// already-claimed watermark.
func (e *Engine) claimableRows(benefactor [20]byte) ([]claimRow, *big.Int, error) {
	sequences, err := e.state.Participation(benefactor)
	if err != nil {
		return nil, nil, err
	}
	rows := make([]claimRow, 0, len(sequences))
	payout := big.NewInt(0)
	for _, sequence := range sequences {
		record, ok, err := e.state.ConversionRecord(sequence)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, ErrRecordNotFound
		}
		entitlement := record.Entitlement(benefactor)
		watermark, err := e.state.ClaimWatermark(benefactor, sequence)
		if err != nil {
			return nil, nil, err
		}
		owed := new(big.Int).Sub(entitlement, watermark)
		if owed.Sign() <= 0 {
			continue
		}
		rows = append(rows, claimRow{sequence: sequence, entitlement: entitlement, owed: owed})
		payout = payout.Add(payout, owed)
	}
	return rows, payout, nil
}

// ClaimBenefactorFees pays the benefactor everything they are entitled to
// across all conversions they participated in, advancing each per-record
// watermark to the entitlement it was paid at. Claiming twice in a row pays
// zero the second time. Returns the amount paid.
func (e *Engine) ClaimBenefactorFees(benefactor [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if benefactor == ([20]byte{}) {
		return nil, ErrInvalidAmount
	}

	rows, payout, err := e.claimableRows(benefactor)
	if err != nil {
		return nil, err
	}
	if payout.Sign() == 0 {
		return big.NewInt(0), nil
	}

	module, err := e.state.GetAccount(ModuleAddress())
	if err != nil {
		return nil, err
	}
	if module.BalanceBase.Cmp(payout) < 0 {
		return nil, ErrInsufficientBalance
	}
	for _, row := range rows {
		if err := e.state.SetClaimWatermark(benefactor, row.sequence, row.entitlement); err != nil {
			return nil, err
		}
	}
	account, err := e.state.GetAccount(benefactor)
	if err != nil {
		return nil, err
	}
	module.BalanceBase = new(big.Int).Sub(module.BalanceBase, payout)
	account.BalanceBase = new(big.Int).Add(account.BalanceBase, payout)
	if err := e.state.PutAccount(ModuleAddress(), module); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(benefactor, account); err != nil {
		return nil, err
	}

	e.emit(events.FeesClaimed{
		Benefactor: benefactor,
		Amount:     cloneBigInt(payout),
		Records:    len(rows),
	})
	return payout, nil
}

// ClaimableAmount reports what ClaimBenefactorFees would pay right now
// without mutating anything.
func (e *Engine) ClaimableAmount(benefactor [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	_, payout, err := e.claimableRows(benefactor)
	if err != nil {
		return nil, err
	}
	return payout, nil
}
