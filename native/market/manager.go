package market

import (
	"fmt"
	"math/big"
	"sync"
)

// Store persists pools, positions and reserve balances between restarts.
// core/state.Manager satisfies it.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Bank moves funds between the venue and lockers. Debit must fail when the
// locker balance does not cover the amount.
type Bank interface {
	Debit(addr [20]byte, currency Currency, amount *big.Int) error
	Credit(addr [20]byte, currency Currency, amount *big.Int) error
}

// Manager is the singleton venue. All pools share one instance and one
// reserve ledger, and every balance-moving operation runs inside Unlock.
type Manager struct {
	mu     sync.Mutex
	locked bool

	store Store
	bank  Bank

	pools     map[PoolID]*Pool
	positions map[[32]byte]*Position
	reserves  map[Currency]*big.Int
}

// NewManager wires a venue over the provided persistence and bank layers.
func NewManager(store Store, bank Bank) *Manager {
	return &Manager{
		store:     store,
		bank:      bank,
		pools:     make(map[PoolID]*Pool),
		positions: make(map[[32]byte]*Position),
		reserves:  make(map[Currency]*big.Int),
	}
}

// Session is the capability handed to the unlock callback. Deltas track what
// the locker owes the venue (positive) or is owed (negative) per currency and
// must all be zero before the unlock commits. Settle and Take buffer bank
// transfers that execute at commit time.
type Session struct {
	manager *Manager
	locker  [20]byte
	active  bool

	deltas         map[Currency]*big.Int
	transfers      map[Currency]*big.Int
	dirtyPools     map[PoolID]struct{}
	dirtyPositions map[[32]byte]struct{}
	dirtyReserves  map[Currency]struct{}
}

// Locker reports the address that opened the session.
func (s *Session) Locker() [20]byte {
	return s.locker
}

// CurrencyDelta returns a copy of the outstanding delta for a currency.
func (s *Session) CurrencyDelta(currency Currency) *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	return cloneBigInt(s.deltas[currency])
}

func (s *Session) applyDelta(currency Currency, diff *big.Int) {
	if diff == nil || diff.Sign() == 0 {
		return
	}
	current, ok := s.deltas[currency]
	if !ok {
		current = big.NewInt(0)
	}
	current = new(big.Int).Add(current, diff)
	if current.Sign() == 0 {
		delete(s.deltas, currency)
		return
	}
	s.deltas[currency] = current
}

// bufferTransfer nets a pending bank move for the locker. Positive means the
// locker pays the venue at commit.
func (s *Session) bufferTransfer(currency Currency, amount *big.Int) {
	current, ok := s.transfers[currency]
	if !ok {
		current = big.NewInt(0)
	}
	current = new(big.Int).Add(current, amount)
	if current.Sign() == 0 {
		delete(s.transfers, currency)
		return
	}
	s.transfers[currency] = current
}

func (s *Session) markReserveDirty(currency Currency) {
	s.dirtyReserves[currency] = struct{}{}
}

type venueSnapshot struct {
	pools     map[PoolID]*Pool
	positions map[[32]byte]*Position
	reserves  map[Currency]*big.Int
}

func (m *Manager) snapshot() *venueSnapshot {
	snap := &venueSnapshot{
		pools:     make(map[PoolID]*Pool, len(m.pools)),
		positions: make(map[[32]byte]*Position, len(m.positions)),
		reserves:  make(map[Currency]*big.Int, len(m.reserves)),
	}
	for id, pool := range m.pools {
		snap.pools[id] = pool.clone()
	}
	for id, position := range m.positions {
		snap.positions[id] = position.clone()
	}
	for currency, reserve := range m.reserves {
		snap.reserves[currency] = cloneBigInt(reserve)
	}
	return snap
}

func (m *Manager) restore(snap *venueSnapshot) {
	m.pools = snap.pools
	m.positions = snap.positions
	m.reserves = snap.reserves
}

// Unlock opens a session for the locker, runs fn, verifies that every currency
// delta has been zeroed and settles the net balance moves through the bank.
// Any error restores the venue to its pre-unlock state. Sessions are
// single-flight: a nested Unlock fails with ErrVenueLocked.
func (m *Manager) Unlock(locker [20]byte, fn func(*Session) error) error {
	if m == nil || m.store == nil {
		return ErrNilStore
	}
	if m.bank == nil {
		return ErrNilBank
	}
	if fn == nil {
		return fmt.Errorf("market: nil unlock callback")
	}
	m.mu.Lock()
	if m.locked {
		m.mu.Unlock()
		return ErrVenueLocked
	}
	m.locked = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.locked = false
		m.mu.Unlock()
	}()

	snap := m.snapshot()
	session := &Session{
		manager:        m,
		locker:         locker,
		active:         true,
		deltas:         make(map[Currency]*big.Int),
		transfers:      make(map[Currency]*big.Int),
		dirtyPools:     make(map[PoolID]struct{}),
		dirtyPositions: make(map[[32]byte]struct{}),
		dirtyReserves:  make(map[Currency]struct{}),
	}
	err := fn(session)
	session.active = false
	if err != nil {
		m.restore(snap)
		return err
	}
	if len(session.deltas) != 0 {
		m.restore(snap)
		return ErrNonZeroDelta
	}
	if err := m.commit(session); err != nil {
		m.restore(snap)
		return err
	}
	return m.persist(session)
}

type netMove struct {
	currency Currency
	amount   *big.Int
}

// commit applies the buffered transfers as one net bank move per currency.
// Reserve coverage is checked for every paying-out currency before any
// balance is touched, and applied debits are compensated if a later one
// fails so the bank never ends up partially settled.
func (m *Manager) commit(session *Session) error {
	var debits, credits []netMove
	for currency, pending := range session.transfers {
		switch pending.Sign() {
		case 1:
			debits = append(debits, netMove{currency: currency, amount: pending})
		case -1:
			credits = append(credits, netMove{currency: currency, amount: new(big.Int).Neg(pending)})
		}
	}
	for _, move := range credits {
		reserve, err := m.loadReserve(move.currency)
		if err != nil {
			return err
		}
		if reserve.Cmp(move.amount) < 0 {
			return ErrInsufficientReserve
		}
	}
	applied := make([]netMove, 0, len(debits))
	for _, move := range debits {
		if err := m.bank.Debit(session.locker, move.currency, move.amount); err != nil {
			for _, undo := range applied {
				m.bank.Credit(session.locker, undo.currency, undo.amount)
			}
			return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
		}
		applied = append(applied, move)
	}
	for _, move := range debits {
		reserve, err := m.loadReserve(move.currency)
		if err != nil {
			return err
		}
		m.reserves[move.currency] = new(big.Int).Add(reserve, move.amount)
		session.markReserveDirty(move.currency)
	}
	for _, move := range credits {
		if err := m.bank.Credit(session.locker, move.currency, move.amount); err != nil {
			return err
		}
		reserve, err := m.loadReserve(move.currency)
		if err != nil {
			return err
		}
		m.reserves[move.currency] = new(big.Int).Sub(reserve, move.amount)
		session.markReserveDirty(move.currency)
	}
	return nil
}

// persist flushes pools, positions and reserves the session touched.
func (m *Manager) persist(session *Session) error {
	for id := range session.dirtyPools {
		pool, ok := m.pools[id]
		if !ok {
			continue
		}
		if err := m.store.KVPut(poolStorageKey(id), newStoredPool(pool)); err != nil {
			return fmt.Errorf("market: persist pool: %w", err)
		}
	}
	for id := range session.dirtyPositions {
		position, ok := m.positions[id]
		if !ok {
			continue
		}
		if err := m.store.KVPut(positionStorageKey(id), newStoredPosition(position)); err != nil {
			return fmt.Errorf("market: persist position: %w", err)
		}
	}
	for currency := range session.dirtyReserves {
		if err := m.store.KVPut(reserveStorageKey(currency), bigIntToString(m.reserves[currency])); err != nil {
			return fmt.Errorf("market: persist reserve: %w", err)
		}
	}
	return nil
}

func (m *Manager) sessionValid(session *Session) error {
	if session == nil || session.manager != m || !session.active {
		return ErrNoActiveSession
	}
	return nil
}

// Initialize registers a pool at the given starting price. It runs outside of
// unlock sessions because no balances move.
func (m *Manager) Initialize(key PoolKey, sqrtPriceX96 *big.Int) error {
	if m == nil || m.store == nil {
		return ErrNilStore
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return ErrInvalidSqrtPrice
	}
	id := key.ID()
	if pool, err := m.loadPool(id); err != nil {
		return err
	} else if pool != nil {
		return ErrPoolAlreadyInitialized
	}
	tick, err := TickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return err
	}
	pool := NewPool()
	pool.SqrtPriceX96 = cloneBigInt(sqrtPriceX96)
	pool.Tick = tick
	m.pools[id] = pool
	if err := m.store.KVPut(poolStorageKey(id), newStoredPool(pool)); err != nil {
		return fmt.Errorf("market: persist pool: %w", err)
	}
	return nil
}

type swapResult struct {
	amountOut     *big.Int
	feeAmount     *big.Int
	nextSqrtPrice *big.Int
	nextTick      int32
}

// simulateSwap runs the exact-input swap math against a pool without
// mutating it. Both Swap and the router quote path share it so a quote and
// the execution it precedes cannot disagree.
func simulateSwap(pool *Pool, fee uint32, params SwapParams) (*swapResult, error) {
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if pool.Liquidity.Sign() == 0 {
		return nil, ErrNoLiquidity
	}
	limit := params.SqrtPriceLimitX96
	if limit == nil || limit.Sign() == 0 {
		if params.ZeroForOne {
			limit = new(big.Int).Add(MinSqrtRatio, big.NewInt(1))
		} else {
			limit = new(big.Int).Sub(MaxSqrtRatio, big.NewInt(1))
		}
	}
	if params.ZeroForOne {
		if limit.Cmp(pool.SqrtPriceX96) >= 0 || limit.Cmp(MinSqrtRatio) <= 0 {
			return nil, ErrInvalidSqrtPrice
		}
	} else {
		if limit.Cmp(pool.SqrtPriceX96) <= 0 || limit.Cmp(MaxSqrtRatio) >= 0 {
			return nil, ErrInvalidSqrtPrice
		}
	}

	feeAmount := new(big.Int).Mul(params.AmountIn, big.NewInt(int64(fee)))
	feeAmount.Div(feeAmount, big.NewInt(feeDenominator))
	amountInNet := new(big.Int).Sub(params.AmountIn, feeAmount)
	if amountInNet.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	nextSqrtPrice := nextSqrtPriceFromInput(pool.SqrtPriceX96, pool.Liquidity, amountInNet, params.ZeroForOne)
	if params.ZeroForOne {
		if nextSqrtPrice.Cmp(limit) < 0 {
			return nil, ErrPriceLimitReached
		}
	} else {
		if nextSqrtPrice.Cmp(limit) > 0 {
			return nil, ErrPriceLimitReached
		}
	}

	var amountOut *big.Int
	if params.ZeroForOne {
		amountOut = amount1Delta(nextSqrtPrice, pool.SqrtPriceX96, pool.Liquidity, false)
	} else {
		amountOut = amount0Delta(pool.SqrtPriceX96, nextSqrtPrice, pool.Liquidity, false)
	}
	nextTick, err := TickAtSqrtRatio(nextSqrtPrice)
	if err != nil {
		return nil, err
	}
	return &swapResult{
		amountOut:     amountOut,
		feeAmount:     feeAmount,
		nextSqrtPrice: nextSqrtPrice,
		nextTick:      nextTick,
	}, nil
}

// Swap trades an exact input amount against the pool. The whole amount must
// fit without the price escaping the limit; partial fills are not supported
// and surface as ErrPriceLimitReached.
func (m *Manager) Swap(session *Session, key PoolKey, params SwapParams) (BalanceDelta, error) {
	zero := ZeroBalanceDelta()
	if err := m.sessionValid(session); err != nil {
		return zero, err
	}
	pool, err := m.requirePool(key)
	if err != nil {
		return zero, err
	}
	result, err := simulateSwap(pool, key.Fee, params)
	if err != nil {
		return zero, err
	}

	if result.feeAmount.Sign() > 0 {
		growth := new(big.Int).Mul(result.feeAmount, Q128)
		growth.Div(growth, pool.Liquidity)
		if params.ZeroForOne {
			pool.FeeGrowthGlobal0X128 = new(big.Int).Add(pool.FeeGrowthGlobal0X128, growth)
		} else {
			pool.FeeGrowthGlobal1X128 = new(big.Int).Add(pool.FeeGrowthGlobal1X128, growth)
		}
	}
	pool.SqrtPriceX96 = result.nextSqrtPrice
	pool.Tick = result.nextTick
	session.dirtyPools[key.ID()] = struct{}{}

	var delta BalanceDelta
	if params.ZeroForOne {
		delta = NewBalanceDelta(params.AmountIn, new(big.Int).Neg(result.amountOut))
		session.applyDelta(key.Currency0, params.AmountIn)
		session.applyDelta(key.Currency1, new(big.Int).Neg(result.amountOut))
	} else {
		delta = NewBalanceDelta(new(big.Int).Neg(result.amountOut), params.AmountIn)
		session.applyDelta(key.Currency1, params.AmountIn)
		session.applyDelta(key.Currency0, new(big.Int).Neg(result.amountOut))
	}
	return delta, nil
}

// ModifyLiquidity adds or removes liquidity for the locker's position in the
// given tick range. Fees accrued since the last touch are credited to the
// session as negative deltas before the principal change is applied, so a
// zero-delta call works as a pure fee harvest. Principal and fee deltas are
// returned separately.
func (m *Manager) ModifyLiquidity(session *Session, key PoolKey, params ModifyLiquidityParams) (BalanceDelta, BalanceDelta, error) {
	zero := ZeroBalanceDelta()
	if err := m.sessionValid(session); err != nil {
		return zero, zero, err
	}
	if params.TickLower >= params.TickUpper {
		return zero, zero, ErrInvalidTickRange
	}
	if params.TickLower < MinTick || params.TickUpper > MaxTick {
		return zero, zero, ErrTickOutOfRange
	}
	if key.TickSpacing <= 0 {
		return zero, zero, ErrUnsupportedFeeTier
	}
	if params.TickLower%key.TickSpacing != 0 || params.TickUpper%key.TickSpacing != 0 {
		return zero, zero, ErrTickNotAligned
	}
	pool, err := m.requirePool(key)
	if err != nil {
		return zero, zero, err
	}
	poolID := key.ID()
	positionID := PositionID(poolID, session.locker, params.TickLower, params.TickUpper)
	position, err := m.loadPosition(positionID)
	if err != nil {
		return zero, zero, err
	}
	liquidityDelta := cloneBigInt(params.LiquidityDelta)
	if position == nil {
		if liquidityDelta.Sign() < 0 {
			return zero, zero, ErrInsufficientLiquidity
		}
		if liquidityDelta.Sign() == 0 {
			return zero, zero, nil
		}
		position = newPosition(session.locker, params.TickLower, params.TickUpper)
	}

	fees := ZeroBalanceDelta()
	if position.Liquidity.Sign() > 0 {
		owed0 := mulDiv(position.Liquidity, new(big.Int).Sub(pool.FeeGrowthGlobal0X128, position.FeeGrowthInside0LastX128), Q128)
		owed1 := mulDiv(position.Liquidity, new(big.Int).Sub(pool.FeeGrowthGlobal1X128, position.FeeGrowthInside1LastX128), Q128)
		if owed0.Sign() > 0 {
			session.applyDelta(key.Currency0, new(big.Int).Neg(owed0))
		}
		if owed1.Sign() > 0 {
			session.applyDelta(key.Currency1, new(big.Int).Neg(owed1))
		}
		fees = NewBalanceDelta(new(big.Int).Neg(owed0), new(big.Int).Neg(owed1))
	}
	position.FeeGrowthInside0LastX128 = cloneBigInt(pool.FeeGrowthGlobal0X128)
	position.FeeGrowthInside1LastX128 = cloneBigInt(pool.FeeGrowthGlobal1X128)

	principal := ZeroBalanceDelta()
	if liquidityDelta.Sign() != 0 {
		newLiquidity := new(big.Int).Add(position.Liquidity, liquidityDelta)
		if newLiquidity.Sign() < 0 {
			return zero, zero, ErrInsufficientLiquidity
		}
		sqrtLower, err := SqrtRatioAtTick(params.TickLower)
		if err != nil {
			return zero, zero, err
		}
		sqrtUpper, err := SqrtRatioAtTick(params.TickUpper)
		if err != nil {
			return zero, zero, err
		}
		absDelta := new(big.Int).Abs(liquidityDelta)
		amount0, amount1 := AmountsForLiquidity(pool.SqrtPriceX96, sqrtLower, sqrtUpper, absDelta, liquidityDelta.Sign() > 0)
		if liquidityDelta.Sign() > 0 {
			principal = NewBalanceDelta(amount0, amount1)
			session.applyDelta(key.Currency0, amount0)
			session.applyDelta(key.Currency1, amount1)
		} else {
			principal = NewBalanceDelta(new(big.Int).Neg(amount0), new(big.Int).Neg(amount1))
			session.applyDelta(key.Currency0, new(big.Int).Neg(amount0))
			session.applyDelta(key.Currency1, new(big.Int).Neg(amount1))
		}
		position.Liquidity = newLiquidity
		if params.TickLower <= pool.Tick && pool.Tick < params.TickUpper {
			poolLiquidity := new(big.Int).Add(pool.Liquidity, liquidityDelta)
			if poolLiquidity.Sign() < 0 {
				return zero, zero, ErrInsufficientLiquidity
			}
			pool.Liquidity = poolLiquidity
		}
	}

	m.positions[positionID] = position
	session.dirtyPools[poolID] = struct{}{}
	session.dirtyPositions[positionID] = struct{}{}
	return principal, fees, nil
}

// Donate pushes tokens into a pool's fee growth so active liquidity earns
// them. The donor owes the amounts through the session.
func (m *Manager) Donate(session *Session, key PoolKey, amount0, amount1 *big.Int) (BalanceDelta, error) {
	zero := ZeroBalanceDelta()
	if err := m.sessionValid(session); err != nil {
		return zero, err
	}
	if amount0 == nil {
		amount0 = big.NewInt(0)
	}
	if amount1 == nil {
		amount1 = big.NewInt(0)
	}
	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		return zero, ErrInvalidAmount
	}
	pool, err := m.requirePool(key)
	if err != nil {
		return zero, err
	}
	if pool.Liquidity.Sign() == 0 {
		return zero, ErrNoLiquidity
	}
	if amount0.Sign() > 0 {
		growth := new(big.Int).Mul(amount0, Q128)
		growth.Div(growth, pool.Liquidity)
		pool.FeeGrowthGlobal0X128 = new(big.Int).Add(pool.FeeGrowthGlobal0X128, growth)
		session.applyDelta(key.Currency0, amount0)
	}
	if amount1.Sign() > 0 {
		growth := new(big.Int).Mul(amount1, Q128)
		growth.Div(growth, pool.Liquidity)
		pool.FeeGrowthGlobal1X128 = new(big.Int).Add(pool.FeeGrowthGlobal1X128, growth)
		session.applyDelta(key.Currency1, amount1)
	}
	session.dirtyPools[key.ID()] = struct{}{}
	return NewBalanceDelta(amount0, amount1), nil
}

// Settle pays the venue from the locker's balance, reducing the currency
// delta. The transfer is buffered and executes when the unlock commits.
func (m *Manager) Settle(session *Session, currency Currency, amount *big.Int) error {
	if err := m.sessionValid(session); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	session.applyDelta(currency, new(big.Int).Neg(amount))
	session.bufferTransfer(currency, amount)
	return nil
}

// Take withdraws venue funds to the locker's balance, increasing the currency
// delta. The transfer is buffered and executes when the unlock commits.
func (m *Manager) Take(session *Session, currency Currency, amount *big.Int) error {
	if err := m.sessionValid(session); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	session.applyDelta(currency, amount)
	session.bufferTransfer(currency, new(big.Int).Neg(amount))
	return nil
}

// GetPool returns a copy of the pool state for the key.
func (m *Manager) GetPool(key PoolKey) (*Pool, error) {
	if m == nil || m.store == nil {
		return nil, ErrNilStore
	}
	pool, err := m.loadPool(key.ID())
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotInitialized
	}
	return pool.clone(), nil
}

// GetPosition returns a copy of the owner's position in the given range, or
// nil when none exists.
func (m *Manager) GetPosition(key PoolKey, owner [20]byte, tickLower, tickUpper int32) (*Position, error) {
	if m == nil || m.store == nil {
		return nil, ErrNilStore
	}
	position, err := m.loadPosition(PositionID(key.ID(), owner, tickLower, tickUpper))
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}
	return position.clone(), nil
}

// Reserve reports the venue's booked balance for a currency.
func (m *Manager) Reserve(currency Currency) (*big.Int, error) {
	if m == nil || m.store == nil {
		return nil, ErrNilStore
	}
	reserve, err := m.loadReserve(currency)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(reserve), nil
}

func (m *Manager) requirePool(key PoolKey) (*Pool, error) {
	pool, err := m.loadPool(key.ID())
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotInitialized
	}
	return pool, nil
}

func (m *Manager) loadPool(id PoolID) (*Pool, error) {
	if pool, ok := m.pools[id]; ok {
		return pool, nil
	}
	var stored storedPool
	ok, err := m.store.KVGet(poolStorageKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	pool, err := stored.toPool()
	if err != nil {
		return nil, err
	}
	m.pools[id] = pool
	return pool, nil
}

func (m *Manager) loadPosition(id [32]byte) (*Position, error) {
	if position, ok := m.positions[id]; ok {
		return position, nil
	}
	var stored storedPosition
	ok, err := m.store.KVGet(positionStorageKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	position, err := stored.toPosition()
	if err != nil {
		return nil, err
	}
	m.positions[id] = position
	return position, nil
}

func (m *Manager) loadReserve(currency Currency) (*big.Int, error) {
	if reserve, ok := m.reserves[currency]; ok {
		return reserve, nil
	}
	var stored string
	ok, err := m.store.KVGet(reserveStorageKey(currency), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		reserve := big.NewInt(0)
		m.reserves[currency] = reserve
		return reserve, nil
	}
	reserve, err := bigIntFromString(stored)
	if err != nil {
		return nil, err
	}
	m.reserves[currency] = reserve
	return reserve, nil
}
