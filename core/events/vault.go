package events

import (
	"math/big"
	"strconv"
	"strings"

	"benevault/core/types"
	"benevault/crypto"
)

const (
	// TypeContributionReceived is emitted when a benefactor adds pending value.
	TypeContributionReceived = "vault.contribution.received"
	// TypeConversionCompleted is emitted once per successful conversion.
	TypeConversionCompleted = "vault.conversion.completed"
	// TypeFeesRecorded is emitted when harvested fees are credited to a record.
	TypeFeesRecorded = "vault.fees.recorded"
	// TypeFeesClaimed is emitted when a benefactor withdraws accrued fees.
	TypeFeesClaimed = "vault.fees.claimed"
	// TypeRewardPaid is emitted when the conversion caller incentive settles.
	TypeRewardPaid = "vault.reward.paid"
	// TypeRewardFailed is emitted when the caller incentive could not be paid.
	TypeRewardFailed = "vault.reward.failed"
	// TypePositionUpdated is emitted whenever the venue position changes.
	TypePositionUpdated = "vault.position.updated"
)

func formatAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.NewAddress(crypto.BenePrefix, addr[:]).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type ContributionReceived struct {
	Benefactor   [20]byte
	Amount       *big.Int
	PendingTotal *big.Int
}

func (ContributionReceived) EventType() string { return TypeContributionReceived }

func (e ContributionReceived) Event() *types.Event {
	return &types.Event{
		Type: TypeContributionReceived,
		Attributes: map[string]string{
			"benefactor":   formatAddress(e.Benefactor),
			"amount":       formatAmount(e.Amount),
			"pendingTotal": formatAmount(e.PendingTotal),
		},
	}
}

type ConversionCompleted struct {
	Sequence       uint64
	Caller         [20]byte
	ConvertedTotal *big.Int
	SwapIn         *big.Int
	SwapOut        *big.Int
	LiquidityDelta *big.Int
	Benefactors    int
}

func (ConversionCompleted) EventType() string { return TypeConversionCompleted }

func (e ConversionCompleted) Event() *types.Event {
	return &types.Event{
		Type: TypeConversionCompleted,
		Attributes: map[string]string{
			"sequence":       strconv.FormatUint(e.Sequence, 10),
			"caller":         formatAddress(e.Caller),
			"convertedTotal": formatAmount(e.ConvertedTotal),
			"swapIn":         formatAmount(e.SwapIn),
			"swapOut":        formatAmount(e.SwapOut),
			"liquidityDelta": formatAmount(e.LiquidityDelta),
			"benefactors":    strconv.Itoa(e.Benefactors),
		},
	}
}

type FeesRecorded struct {
	Sequence        uint64
	Amount          *big.Int
	AccumulatedFees *big.Int
}

func (FeesRecorded) EventType() string { return TypeFeesRecorded }

func (e FeesRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeFeesRecorded,
		Attributes: map[string]string{
			"sequence":        strconv.FormatUint(e.Sequence, 10),
			"amount":          formatAmount(e.Amount),
			"accumulatedFees": formatAmount(e.AccumulatedFees),
		},
	}
}

type FeesClaimed struct {
	Benefactor [20]byte
	Amount     *big.Int
	Records    int
}

func (FeesClaimed) EventType() string { return TypeFeesClaimed }

func (e FeesClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeFeesClaimed,
		Attributes: map[string]string{
			"benefactor": formatAddress(e.Benefactor),
			"amount":     formatAmount(e.Amount),
			"records":    strconv.Itoa(e.Records),
		},
	}
}

type RewardPaid struct {
	Sequence uint64
	Caller   [20]byte
	Amount   *big.Int
}

func (RewardPaid) EventType() string { return TypeRewardPaid }

func (e RewardPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardPaid,
		Attributes: map[string]string{
			"sequence": strconv.FormatUint(e.Sequence, 10),
			"caller":   formatAddress(e.Caller),
			"amount":   formatAmount(e.Amount),
		},
	}
}

type RewardFailed struct {
	Sequence uint64
	Caller   [20]byte
	Amount   *big.Int
	Reason   string
}

func (RewardFailed) EventType() string { return TypeRewardFailed }

func (e RewardFailed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardFailed,
		Attributes: map[string]string{
			"sequence": strconv.FormatUint(e.Sequence, 10),
			"caller":   formatAddress(e.Caller),
			"amount":   formatAmount(e.Amount),
			"reason":   strings.TrimSpace(e.Reason),
		},
	}
}

type PositionUpdated struct {
	PoolID    string
	LowerTick int32
	UpperTick int32
	Liquidity *big.Int
}

func (PositionUpdated) EventType() string { return TypePositionUpdated }

func (e PositionUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePositionUpdated,
		Attributes: map[string]string{
			"poolId":    strings.TrimSpace(e.PoolID),
			"lowerTick": strconv.FormatInt(int64(e.LowerTick), 10),
			"upperTick": strconv.FormatInt(int64(e.UpperTick), 10),
			"liquidity": formatAmount(e.Liquidity),
		},
	}
}
