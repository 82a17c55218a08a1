package vault

import (
	"errors"
	"math/big"
	"time"

	"benevault/core/events"
	nativecommon "benevault/native/common"
	"benevault/native/market"
)

// moduleName keys the pause switch for every vault entry point.
const moduleName = "vault"

// Engine implements the benefactor accounting and conversion lifecycle. All
// entry points are all-or-nothing per call; the only deliberate exception is
// the caller incentive, which is attempted after the conversion is final and
// absorbed on failure.
type Engine struct {
	state   State
	emitter events.Emitter
	market  *market.Manager
	router  *market.Router
	pauses  nativecommon.PauseView
	rewards RewardPayer

	key             market.PoolKey
	baseCurrency    market.Currency
	baseIsCurrency0 bool
	configured      bool

	now      func() time.Time
	costRate func() *big.Int
	busy     bool
}

// NewEngine constructs an engine with a no-op emitter and a unit cost rate.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		now:      time.Now,
		costRate: func() *big.Int { return big.NewInt(1) },
	}
}

// SetState wires the persistence backend.
func (e *Engine) SetState(state State) {
	if e == nil {
		return
	}
	e.state = state
}

// SetEmitter wires the event sink. A nil emitter restores the no-op sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetMarket wires the liquidity venue and its router.
func (e *Engine) SetMarket(manager *market.Manager, router *market.Router) {
	if e == nil {
		return
	}
	e.market = manager
	e.router = router
}

// SetPauses wires the module pause switches.
func (e *Engine) SetPauses(pauses nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = pauses
}

// SetRewardPayer overrides how the caller incentive settles; nil restores the
// default account transfer.
func (e *Engine) SetRewardPayer(payer RewardPayer) {
	if e == nil {
		return
	}
	e.rewards = payer
}

// SetNowFunc overrides the engine clock, primarily for deterministic testing.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// SetCostRateFunc overrides the per-unit-of-work rate in the reward formula.
func (e *Engine) SetCostRateFunc(rate func() *big.Int) {
	if e == nil || rate == nil {
		return
	}
	e.costRate = rate
}

// SetPoolConfig binds the engine to a venue pool and names which side of the
// pair is the base (contribution) asset. The pairing must match the key.
func (e *Engine) SetPoolConfig(key market.PoolKey, base market.Currency) error {
	if e == nil {
		return ErrNilState
	}
	if err := key.Validate(); err != nil {
		return ErrInvalidConfiguration
	}
	switch base {
	case key.Currency0:
		e.baseIsCurrency0 = true
	case key.Currency1:
		e.baseIsCurrency0 = false
	default:
		return ErrInvalidConfiguration
	}
	e.key = key
	e.baseCurrency = base
	e.configured = true
	return nil
}

// PoolKey returns the configured venue pool key.
func (e *Engine) PoolKey() market.PoolKey {
	return e.key
}

// BaseCurrency returns the configured contribution asset.
func (e *Engine) BaseCurrency() market.Currency {
	return e.baseCurrency
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) adapter() *PositionAdapter {
	return newPositionAdapter(e.market, e.router, e.key, e.baseIsCurrency0)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) readyForVenue() error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.market == nil || e.router == nil {
		return ErrNilMarket
	}
	if !e.configured {
		return ErrInvalidConfiguration
	}
	return nil
}

// enter acquires the reentrancy latch shared by every mutating entry point.
// The venue settlement callback runs inside the latch, so a nested call into
// the engine during that window fails instead of interleaving state.
func (e *Engine) enter() (func(), error) {
	if e.busy {
		return nil, ErrReentrantCall
	}
	e.busy = true
	return func() { e.busy = false }, nil
}

// ReceiveContribution moves amount from the benefactor's base balance into
// the vault and books it as pending until the next conversion. There is no
// registration step; the first contribution is what creates the benefactor.
func (e *Engine) ReceiveContribution(benefactor [20]byte, amount *big.Int) error {
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
	if benefactor == ([20]byte{}) || benefactor == ModuleAddress() {
		return ErrInvalidAmount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	account, err := e.state.GetAccount(benefactor)
	if err != nil {
		return err
	}
	if account.BalanceBase.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	module, err := e.state.GetAccount(ModuleAddress())
	if err != nil {
		return err
	}
	account.BalanceBase = new(big.Int).Sub(account.BalanceBase, amount)
	module.BalanceBase = new(big.Int).Add(module.BalanceBase, amount)
	if err := e.state.PutAccount(benefactor, account); err != nil {
		return err
	}
	if err := e.state.PutAccount(ModuleAddress(), module); err != nil {
		return err
	}

	pending, err := e.state.PendingContribution(benefactor)
	if err != nil {
		return err
	}
	if err := e.state.SetPendingContribution(benefactor, new(big.Int).Add(pending, amount)); err != nil {
		return err
	}
	total, err := e.state.PendingTotal()
	if err != nil {
		return err
	}
	total = new(big.Int).Add(total, amount)
	if err := e.state.SetPendingTotal(total); err != nil {
		return err
	}
	if err := e.state.AddPendingContributor(benefactor); err != nil {
		return err
	}

	e.emit(events.ContributionReceived{
		Benefactor:   benefactor,
		Amount:       cloneBigInt(amount),
		PendingTotal: total,
	})
	return nil
}

// ConvertAndAddLiquidity snapshots the pending ledger, swaps part of the
// pooled value into the target asset, deploys the pair into the venue
// position and freezes the contribution ratios in a new conversion record.
// Callable by anyone; the caller may pass minOut to bound swap slippage and
// earns the configured incentive. Venue work happens before any ledger write,
// so a failed conversion leaves no trace.
func (e *Engine) ConvertAndAddLiquidity(caller [20]byte, minOut *big.Int) (*ConversionRecord, error) {
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

	total, err := e.state.PendingTotal()
	if err != nil {
		return nil, err
	}
	if total.Sign() <= 0 {
		return nil, ErrNothingPending
	}
	contributors, err := e.state.PendingContributors()
	if err != nil {
		return nil, err
	}
	shares := make([]RecordShare, 0, len(contributors))
	for _, addr := range contributors {
		pending, err := e.state.PendingContribution(addr)
		if err != nil {
			return nil, err
		}
		if pending.Sign() > 0 {
			shares = append(shares, RecordShare{Address: addr, Amount: pending})
		}
	}
	if len(shares) == 0 {
		return nil, ErrNothingPending
	}

	pool, err := e.market.GetPool(e.key)
	if err != nil {
		return nil, mapMarketError(err)
	}
	position, hasPosition, err := e.state.Position()
	if err != nil {
		return nil, err
	}
	var existing *LiquidityPosition
	swapIn := evenSplit(total)
	if hasPosition && position.Liquidity != nil && position.Liquidity.Sign() > 0 {
		existing = position
		sqrtLower, err := market.SqrtRatioAtTick(position.TickLower)
		if err != nil {
			return nil, err
		}
		sqrtUpper, err := market.SqrtRatioAtTick(position.TickUpper)
		if err != nil {
			return nil, err
		}
		swapIn = SwapAmount(total, pool, sqrtLower, sqrtUpper, e.baseIsCurrency0)
	}

	result, err := e.adapter().Deploy(ModuleAddress(), total, swapIn, minOut, existing)
	if err != nil {
		return nil, mapMarketError(err)
	}

	count, err := e.state.ConversionRecordCount()
	if err != nil {
		return nil, err
	}
	sequence := count + 1
	record := &ConversionRecord{
		Sequence:        sequence,
		Timestamp:       e.now().Unix(),
		Caller:          caller,
		ConvertedTotal:  total,
		SwapIn:          swapIn,
		SwapOut:         result.SwapOut,
		LiquidityDelta:  result.LiquidityDelta,
		Shares:          shares,
		AccumulatedFees: big.NewInt(0),
	}
	if err := e.state.PutConversionRecord(record); err != nil {
		return nil, err
	}
	for _, share := range shares {
		if err := e.state.AddParticipation(share.Address, sequence); err != nil {
			return nil, err
		}
		if err := e.state.SetPendingContribution(share.Address, big.NewInt(0)); err != nil {
			return nil, err
		}
	}
	if err := e.state.SetPendingTotal(big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := e.state.ClearPendingContributors(); err != nil {
		return nil, err
	}

	liquidity := result.LiquidityDelta
	if existing != nil {
		liquidity = new(big.Int).Add(existing.Liquidity, result.LiquidityDelta)
	}
	newPosition := &LiquidityPosition{
		TickLower: result.TickLower,
		TickUpper: result.TickUpper,
		Liquidity: liquidity,
	}
	if err := e.state.SetPosition(newPosition); err != nil {
		return nil, err
	}
	e.emit(events.PositionUpdated{
		PoolID:    e.key.ID().Hex(),
		LowerTick: result.TickLower,
		UpperTick: result.TickUpper,
		Liquidity: cloneBigInt(liquidity),
	})

	// Fees collected while touching the pre-existing position belong to the
	// records that were live while they accrued, never to the new one.
	if result.HarvestedBase.Sign() > 0 {
		if err := e.attributeFees(result.HarvestedBase, count); err != nil {
			return nil, err
		}
	}

	e.emit(events.ConversionCompleted{
		Sequence:       sequence,
		Caller:         caller,
		ConvertedTotal: cloneBigInt(total),
		SwapIn:         cloneBigInt(swapIn),
		SwapOut:        cloneBigInt(result.SwapOut),
		LiquidityDelta: cloneBigInt(result.LiquidityDelta),
		Benefactors:    len(shares),
	})

	e.payConversionReward(sequence, caller, len(shares))
	return record, nil
}

// attributeFees splits a base-denominated fee amount across the first
// throughSeq records pro rata by liquidity contribution, crediting the floor
// remainder to the newest of them.
func (e *Engine) attributeFees(amount *big.Int, throughSeq uint64) error {
	if amount == nil || amount.Sign() <= 0 || throughSeq == 0 {
		return nil
	}
	records := make([]*ConversionRecord, 0, throughSeq)
	totalLiquidity := big.NewInt(0)
	for seq := uint64(1); seq <= throughSeq; seq++ {
		record, ok, err := e.state.ConversionRecord(seq)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRecordNotFound
		}
		records = append(records, record)
		totalLiquidity = totalLiquidity.Add(totalLiquidity, record.LiquidityDelta)
	}
	if totalLiquidity.Sign() <= 0 {
		return nil
	}
	remaining := new(big.Int).Set(amount)
	for i, record := range records {
		var portion *big.Int
		if i == len(records)-1 {
			portion = remaining
		} else {
			portion = new(big.Int).Mul(amount, record.LiquidityDelta)
			portion.Div(portion, totalLiquidity)
			remaining = new(big.Int).Sub(remaining, portion)
		}
		if portion.Sign() <= 0 {
			continue
		}
		record.AccumulatedFees = new(big.Int).Add(record.AccumulatedFees, portion)
		if err := e.state.PutConversionRecord(record); err != nil {
			return err
		}
		e.emit(events.FeesRecorded{
			Sequence:        record.Sequence,
			Amount:          portion,
			AccumulatedFees: cloneBigInt(record.AccumulatedFees),
		})
	}
	return nil
}

// mapMarketError folds venue errors into the engine's error surface.
func mapMarketError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, market.ErrSlippageExceeded):
		return ErrSlippageExceeded
	case errors.Is(err, market.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, market.ErrPoolNotInitialized),
		errors.Is(err, market.ErrCurrenciesNotSorted),
		errors.Is(err, market.ErrUnsupportedFeeTier),
		errors.Is(err, market.ErrTickNotAligned):
		return ErrInvalidConfiguration
	default:
		return err
	}
}
