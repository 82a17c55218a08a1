package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"benevault/config"
	"benevault/core/events"
	"benevault/core/state"
	"benevault/core/types"
	nativecommon "benevault/native/common"
	"benevault/native/market"
	"benevault/native/vault"
	"benevault/observability"
	"benevault/storage"
)

const genesisMarkerKey = "node/genesis/applied"

// ErrPoolNotConfigured is returned at boot when the venue pool is missing and
// the configuration carries no initial price to create it with.
var ErrPoolNotConfigured = errors.New("pool not initialised and no initial price configured")

// Node is the central controller, wiring storage, venue and the vault engine
// together. All state-touching methods serialise on one mutex so engine
// operations observe a consistent view.
type Node struct {
	db     storage.Database
	state  *state.Manager
	store  *vault.Store
	engine *vault.Engine
	venue  *market.Manager
	router *market.Router
	pauses *pauseSet
	key    market.PoolKey
	base   market.Currency
	logger *slog.Logger

	stateMu sync.Mutex
	feed    eventFeed
}

// NewNode boots a node over the database using the supplied configuration.
// First boot applies genesis allocations, initialises the venue pool and
// seeds the reward configuration; later boots verify the pool exists.
func NewNode(db storage.Database, cfg *config.Config) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database must not be nil")
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	key, base, err := cfg.Pool.Key()
	if err != nil {
		return nil, err
	}
	target := key.Currency1
	if base == key.Currency1 {
		target = key.Currency0
	}

	manager := state.NewManager(db)
	store := vault.NewStore(manager)
	bank := vault.NewAccountBank(store, base, target)
	venue := market.NewManager(manager, bank)
	router := market.NewRouter(venue)

	n := &Node{
		db:     db,
		state:  manager,
		store:  store,
		venue:  venue,
		router: router,
		pauses: newPauseSet(cfg.Pauses.Modules()),
		key:    key,
		base:   base,
		logger: slog.Default().With("component", "node"),
	}
	if err := n.feed.load(manager); err != nil {
		return nil, err
	}

	engine := vault.NewEngine()
	engine.SetState(store)
	engine.SetMarket(venue, router)
	engine.SetPauses(n.pauses)
	engine.SetEmitter(observability.NewCountingEmitter(vaultEventSink{node: n}))
	if err := engine.SetPoolConfig(key, base); err != nil {
		return nil, err
	}
	n.engine = engine

	if err := n.applyGenesis(cfg); err != nil {
		return nil, err
	}
	if err := n.ensurePool(cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// applyGenesis credits configured allocations and seeds the reward
// configuration exactly once.
func (n *Node) applyGenesis(cfg *config.Config) error {
	var applied bool
	ok, err := n.state.KVGet([]byte(genesisMarkerKey), &applied)
	if err != nil {
		return err
	}
	if ok && applied {
		return nil
	}

	for _, alloc := range cfg.Genesis {
		addr, baseAmount, targetAmount, err := alloc.Parse()
		if err != nil {
			return err
		}
		account, err := n.state.GetAccount(addr[:])
		if err != nil {
			return err
		}
		account.BalanceBase = new(big.Int).Add(account.BalanceBase, baseAmount)
		account.BalanceTarget = new(big.Int).Add(account.BalanceTarget, targetAmount)
		if err := n.state.PutAccount(addr[:], account); err != nil {
			return err
		}
	}

	reward, err := cfg.Reward.Parse()
	if err != nil {
		return err
	}
	if reward != nil {
		if err := n.store.SetRewardConfig(reward); err != nil {
			return err
		}
	}

	if err := n.state.KVPut([]byte(genesisMarkerKey), true); err != nil {
		return err
	}
	n.logger.Info("genesis applied", "allocations", len(cfg.Genesis))
	return nil
}

// ensurePool initialises the venue pool when it does not exist yet.
func (n *Node) ensurePool(cfg *config.Config) error {
	_, err := n.venue.GetPool(n.key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, market.ErrPoolNotInitialized) {
		return err
	}
	price, perr := cfg.Pool.InitialPrice()
	if perr != nil {
		return perr
	}
	if price == nil {
		return ErrPoolNotConfigured
	}
	if err := n.venue.Initialize(n.key, price); err != nil {
		return err
	}
	n.logger.Info("pool initialised", "pool", n.key.ID().Hex())
	return nil
}

// Close releases the underlying database.
func (n *Node) Close() {
	if n == nil || n.db == nil {
		return
	}
	n.db.Close()
}

// --- Vault operations ---

// Contribute moves base funds from the benefactor into the pending pool.
func (n *Node) Contribute(benefactor [20]byte, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	err := n.engine.ReceiveContribution(benefactor, amount)
	if err == nil {
		observability.Vault().RecordContribution()
	}
	return err
}

// Convert swaps and deploys all pending contributions as one liquidity
// position extension, crediting the caller incentive when configured.
func (n *Node) Convert(caller [20]byte, minOut *big.Int) (*vault.ConversionRecord, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	record, err := n.engine.ConvertAndAddLiquidity(caller, minOut)
	observability.Vault().RecordConversion(err)
	return record, err
}

// Claim pays out the benefactor's accrued fee share across all records.
func (n *Node) Claim(benefactor [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.ClaimBenefactorFees(benefactor)
}

// Harvest collects position fees from the venue and attributes them.
func (n *Node) Harvest() (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	harvested, err := n.engine.HarvestAndRecord()
	if err == nil {
		observability.Vault().RecordHarvest()
	}
	return harvested, err
}

// RecordFees credits externally collected fee income to a conversion record.
func (n *Node) RecordFees(sequence uint64, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.RecordAccumulatedFees(sequence, amount)
}

// SetRewardConfig replaces the caller incentive parameters.
func (n *Node) SetRewardConfig(cfg *vault.RewardConfig) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetRewardConfig(cfg)
}

// --- Vault views ---

// PendingContribution returns the benefactor's unconverted balance.
func (n *Node) PendingContribution(benefactor [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.PendingContribution(benefactor)
}

// PendingTotal returns the pooled unconverted balance.
func (n *Node) PendingTotal() (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.PendingTotal()
}

// Record returns one conversion record by sequence.
func (n *Node) Record(sequence uint64) (*vault.ConversionRecord, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Record(sequence)
}

// RecordCount returns the number of completed conversions.
func (n *Node) RecordCount() (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.RecordCount()
}

// ListRecords pages through conversion records in sequence order.
func (n *Node) ListRecords(fromSequence uint64, limit int) ([]*vault.ConversionRecord, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.ListRecords(fromSequence, limit)
}

// Claimable returns what a claim would pay the benefactor right now.
func (n *Node) Claimable(benefactor [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.ClaimableAmount(benefactor)
}

// Participation lists the record sequences the benefactor holds shares in.
func (n *Node) Participation(benefactor [20]byte) ([]uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Participation(benefactor)
}

// Position returns the vault's venue position, or nil before the first
// conversion.
func (n *Node) Position() (*vault.LiquidityPosition, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Position()
}

// RewardConfig returns the caller incentive parameters, or nil when unset.
func (n *Node) RewardConfig() (*vault.RewardConfig, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.RewardConfig()
}

// --- Accounts and venue views ---

// GetAccount loads an account's balances.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.GetAccount(addr[:])
}

// ModuleAddress returns the address holding pooled and claimable funds.
func (n *Node) ModuleAddress() [20]byte {
	return vault.ModuleAddress()
}

// PoolKey returns the configured venue pool key.
func (n *Node) PoolKey() market.PoolKey {
	return n.key
}

// BaseCurrency returns the contribution currency.
func (n *Node) BaseCurrency() market.Currency {
	return n.base
}

// PoolInfo returns the venue pool state.
func (n *Node) PoolInfo() (*market.Pool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.venue.GetPool(n.key)
}

// Quote prices an exact-input swap without executing it. baseIn selects the
// direction: true sells the base currency for the target asset.
func (n *Node) Quote(baseIn bool, amountIn *big.Int) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	zeroForOne := baseIn == (n.base == n.key.Currency0)
	return n.router.Quote(n.key, zeroForOne, amountIn)
}

// --- Pause control ---

// Pause halts the named module's mutating operations.
func (n *Node) Pause(module string) error {
	return n.pauses.set(module, true)
}

// Resume lifts a pause set earlier.
func (n *Node) Resume(module string) error {
	return n.pauses.set(module, false)
}

// Paused reports the currently paused modules.
func (n *Node) Paused() map[string]bool {
	return n.pauses.snapshot()
}

// pauseSet is a mutable module pause registry satisfying common.PauseView.
type pauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func newPauseSet(initial map[string]bool) *pauseSet {
	paused := make(map[string]bool, len(initial))
	for module, isPaused := range initial {
		if isPaused {
			paused[module] = true
		}
	}
	return &pauseSet{paused: paused}
}

// IsPaused implements common.PauseView.
func (p *pauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

func (p *pauseSet) set(module string, paused bool) error {
	if !nativecommon.KnownModule(module) {
		return fmt.Errorf("unknown module %q", module)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if paused {
		p.paused[module] = true
	} else {
		delete(p.paused, module)
	}
	return nil
}

func (p *pauseSet) snapshot() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.paused))
	for module := range p.paused {
		out[module] = true
	}
	return out
}

// vaultEventSink converts engine events into feed entries and business
// metrics. It runs inside the engine call, with the node state lock held.
type vaultEventSink struct {
	node *Node
}

type eventWithPayload interface {
	Event() *types.Event
}

func (s vaultEventSink) Emit(evt events.Event) {
	if s.node == nil || evt == nil {
		return
	}
	switch evt.(type) {
	case events.FeesClaimed:
		observability.Vault().RecordClaim()
	case events.RewardPaid:
		observability.Vault().RecordReward("paid")
	case events.RewardFailed:
		observability.Vault().RecordReward("failed")
	}
	payload, ok := evt.(eventWithPayload)
	if !ok {
		return
	}
	event := payload.Event()
	if event == nil {
		return
	}
	s.node.publishEvent(event)
}
