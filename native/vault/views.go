package vault

import (
	"math/big"

	nativecommon "benevault/native/common"
)

// PendingContribution returns the benefactor's balance awaiting conversion.
func (e *Engine) PendingContribution(benefactor [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.PendingContribution(benefactor)
}

// PendingTotal returns the sum of all pending contributions.
func (e *Engine) PendingTotal() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.PendingTotal()
}

// Record returns the conversion record for a sequence number.
func (e *Engine) Record(sequence uint64) (*ConversionRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	record, ok, err := e.state.ConversionRecord(sequence)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// RecordCount returns how many conversions have completed.
func (e *Engine) RecordCount() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.state.ConversionRecordCount()
}

// ListRecords returns up to limit records starting at fromSequence in
// ascending order. A zero fromSequence starts at the first record; a zero or
// negative limit returns everything from the start point.
func (e *Engine) ListRecords(fromSequence uint64, limit int) ([]*ConversionRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	count, err := e.state.ConversionRecordCount()
	if err != nil {
		return nil, err
	}
	if fromSequence == 0 {
		fromSequence = 1
	}
	records := make([]*ConversionRecord, 0)
	for sequence := fromSequence; sequence <= count; sequence++ {
		if limit > 0 && len(records) >= limit {
			break
		}
		record, ok, err := e.state.ConversionRecord(sequence)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRecordNotFound
		}
		records = append(records, record)
	}
	return records, nil
}

// Participation returns the conversion sequences the benefactor holds shares
// in, oldest first.
func (e *Engine) Participation(benefactor [20]byte) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.Participation(benefactor)
}

// Position returns the shared liquidity position, or nil when no conversion
// has deployed one yet.
func (e *Engine) Position() (*LiquidityPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	position, ok, err := e.state.Position()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return position, nil
}

// RewardConfig returns the caller incentive parameters, or nil when rewards
// are disabled.
func (e *Engine) RewardConfig() (*RewardConfig, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	config, ok, err := e.state.RewardConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return config, nil
}

// SetRewardConfig installs the caller incentive parameters after validation.
func (e *Engine) SetRewardConfig(config *RewardConfig) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if config == nil {
		return ErrInvalidConfiguration
	}
	if err := config.Validate(); err != nil {
		return err
	}
	return e.state.SetRewardConfig(config)
}
