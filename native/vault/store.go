package vault

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"

	"benevault/core/state"
	"benevault/core/types"
	"benevault/native/market"
)

// State exposes the persistence the engine needs. core/state.Manager backs
// the production implementation below; tests may substitute mocks.
type State interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error

	PendingContribution(addr [20]byte) (*big.Int, error)
	SetPendingContribution(addr [20]byte, amount *big.Int) error
	PendingTotal() (*big.Int, error)
	SetPendingTotal(amount *big.Int) error
	PendingContributors() ([][20]byte, error)
	AddPendingContributor(addr [20]byte) error
	ClearPendingContributors() error

	ConversionRecordCount() (uint64, error)
	ConversionRecord(seq uint64) (*ConversionRecord, bool, error)
	PutConversionRecord(record *ConversionRecord) error

	Participation(addr [20]byte) ([]uint64, error)
	AddParticipation(addr [20]byte, seq uint64) error

	ClaimWatermark(addr [20]byte, seq uint64) (*big.Int, error)
	SetClaimWatermark(addr [20]byte, seq uint64, amount *big.Int) error

	Position() (*LiquidityPosition, bool, error)
	SetPosition(position *LiquidityPosition) error

	RewardConfig() (*RewardConfig, bool, error)
	SetRewardConfig(config *RewardConfig) error
}

// Storage keys for vault state.
const (
	pendingKeyPrefix       = "vault/pending/"
	pendingTotalKey        = "vault/pending-total"
	contributorsKey        = "vault/contributors"
	recordCountKey         = "vault/records/count"
	recordKeyPrefix        = "vault/records/"
	participationKeyPrefix = "vault/participation/"
	watermarkKeyPrefix     = "vault/watermarks/"
	positionKey            = "vault/position"
	rewardConfigKey        = "vault/reward-config"
)

// Store adapts the keccak/RLP key-value manager to the engine's State
// interface.
type Store struct {
	manager *state.Manager
}

// NewStore wraps the state manager.
func NewStore(manager *state.Manager) *Store {
	return &Store{manager: manager}
}

func pendingKey(addr [20]byte) []byte {
	return []byte(pendingKeyPrefix + hex.EncodeToString(addr[:]))
}

func recordKey(seq uint64) []byte {
	return []byte(recordKeyPrefix + strconv.FormatUint(seq, 10))
}

func participationKey(addr [20]byte) []byte {
	return []byte(participationKeyPrefix + hex.EncodeToString(addr[:]))
}

func watermarkKey(addr [20]byte, seq uint64) []byte {
	return []byte(watermarkKeyPrefix + hex.EncodeToString(addr[:]) + "/" + strconv.FormatUint(seq, 10))
}

// GetAccount loads an account, returning zeroed defaults when absent.
func (s *Store) GetAccount(addr [20]byte) (*types.Account, error) {
	return s.manager.GetAccount(addr[:])
}

// PutAccount persists an account.
func (s *Store) PutAccount(addr [20]byte, account *types.Account) error {
	return s.manager.PutAccount(addr[:], account)
}

// PendingContribution returns the unconverted value for the address.
func (s *Store) PendingContribution(addr [20]byte) (*big.Int, error) {
	return s.loadAmount(pendingKey(addr))
}

// SetPendingContribution overwrites the unconverted value for the address.
func (s *Store) SetPendingContribution(addr [20]byte, amount *big.Int) error {
	return s.manager.KVPut(pendingKey(addr), amountToString(amount))
}

// PendingTotal returns the running total of unconverted value.
func (s *Store) PendingTotal() (*big.Int, error) {
	return s.loadAmount([]byte(pendingTotalKey))
}

// SetPendingTotal overwrites the running total.
func (s *Store) SetPendingTotal(amount *big.Int) error {
	return s.manager.KVPut([]byte(pendingTotalKey), amountToString(amount))
}

// PendingContributors lists the addresses with nonzero pending value.
func (s *Store) PendingContributors() ([][20]byte, error) {
	var raw [][]byte
	if err := s.manager.KVGetList([]byte(contributorsKey), &raw); err != nil {
		return nil, err
	}
	contributors := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("vault: malformed contributor entry of %d bytes", len(entry))
		}
		var addr [20]byte
		copy(addr[:], entry)
		contributors = append(contributors, addr)
	}
	return contributors, nil
}

// AddPendingContributor appends the address to the contributor index; the
// underlying list deduplicates repeat entries.
func (s *Store) AddPendingContributor(addr [20]byte) error {
	return s.manager.KVAppend([]byte(contributorsKey), addr[:])
}

// ClearPendingContributors empties the contributor index after a conversion.
func (s *Store) ClearPendingContributors() error {
	return s.manager.KVPut([]byte(contributorsKey), [][]byte{})
}

// ConversionRecordCount reports how many records exist; sequences run from 1
// through the count.
func (s *Store) ConversionRecordCount() (uint64, error) {
	var count uint64
	ok, err := s.manager.KVGet([]byte(recordCountKey), &count)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return count, nil
}

// ConversionRecord loads a record by sequence.
func (s *Store) ConversionRecord(seq uint64) (*ConversionRecord, bool, error) {
	var stored storedRecord
	ok, err := s.manager.KVGet(recordKey(seq), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	record, err := stored.toRecord()
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// PutConversionRecord persists the record and advances the count when the
// sequence extends the chain.
func (s *Store) PutConversionRecord(record *ConversionRecord) error {
	if record == nil {
		return ErrRecordNotFound
	}
	if err := s.manager.KVPut(recordKey(record.Sequence), newStoredRecord(record)); err != nil {
		return err
	}
	count, err := s.ConversionRecordCount()
	if err != nil {
		return err
	}
	if record.Sequence > count {
		return s.manager.KVPut([]byte(recordCountKey), record.Sequence)
	}
	return nil
}

// Participation lists the record sequences the address holds shares in.
func (s *Store) Participation(addr [20]byte) ([]uint64, error) {
	var raw [][]byte
	if err := s.manager.KVGetList(participationKey(addr), &raw); err != nil {
		return nil, err
	}
	seqs := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, fmt.Errorf("vault: malformed participation entry of %d bytes", len(entry))
		}
		seqs = append(seqs, binary.BigEndian.Uint64(entry))
	}
	return seqs, nil
}

// AddParticipation links the address to a record sequence; duplicates are
// dropped by the underlying list.
func (s *Store) AddParticipation(addr [20]byte, seq uint64) error {
	var encoded [8]byte
	binary.BigEndian.PutUint64(encoded[:], seq)
	return s.manager.KVAppend(participationKey(addr), encoded[:])
}

// ClaimWatermark returns the cumulative amount already paid to the address
// from the record, zero when never claimed.
func (s *Store) ClaimWatermark(addr [20]byte, seq uint64) (*big.Int, error) {
	return s.loadAmount(watermarkKey(addr, seq))
}

// SetClaimWatermark overwrites the cumulative paid amount.
func (s *Store) SetClaimWatermark(addr [20]byte, seq uint64, amount *big.Int) error {
	return s.manager.KVPut(watermarkKey(addr, seq), amountToString(amount))
}

// Position loads the venue position, reporting false when none has been
// deployed yet.
func (s *Store) Position() (*LiquidityPosition, bool, error) {
	var stored storedVaultPosition
	ok, err := s.manager.KVGet([]byte(positionKey), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	position, err := stored.toPosition()
	if err != nil {
		return nil, false, err
	}
	return position, true, nil
}

// SetPosition persists the venue position.
func (s *Store) SetPosition(position *LiquidityPosition) error {
	if position == nil {
		return ErrInvalidConfiguration
	}
	return s.manager.KVPut([]byte(positionKey), newStoredVaultPosition(position))
}

// RewardConfig loads the caller incentive parameters.
func (s *Store) RewardConfig() (*RewardConfig, bool, error) {
	var stored storedRewardConfig
	ok, err := s.manager.KVGet([]byte(rewardConfigKey), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	config, err := stored.toConfig()
	if err != nil {
		return nil, false, err
	}
	return config, true, nil
}

// SetRewardConfig persists the caller incentive parameters.
func (s *Store) SetRewardConfig(config *RewardConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return s.manager.KVPut([]byte(rewardConfigKey), newStoredRewardConfig(config))
}

func (s *Store) loadAmount(key []byte) (*big.Int, error) {
	var stored string
	ok, err := s.manager.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amountFromString(stored)
}

// Stored forms keep RLP-friendly fields: big integers as decimal strings,
// ticks offset to unsigned, timestamps as unsigned unix seconds.

type storedShare struct {
	Address []byte
	Amount  string
}

type storedRecord struct {
	Sequence        uint64
	Timestamp       uint64
	Caller          []byte
	ConvertedTotal  string
	SwapIn          string
	SwapOut         string
	LiquidityDelta  string
	Shares          []storedShare
	AccumulatedFees string
}

func newStoredRecord(r *ConversionRecord) *storedRecord {
	stored := &storedRecord{
		Sequence:        r.Sequence,
		Timestamp:       uint64(r.Timestamp),
		Caller:          append([]byte(nil), r.Caller[:]...),
		ConvertedTotal:  amountToString(r.ConvertedTotal),
		SwapIn:          amountToString(r.SwapIn),
		SwapOut:         amountToString(r.SwapOut),
		LiquidityDelta:  amountToString(r.LiquidityDelta),
		AccumulatedFees: amountToString(r.AccumulatedFees),
	}
	for _, share := range r.Shares {
		stored.Shares = append(stored.Shares, storedShare{
			Address: append([]byte(nil), share.Address[:]...),
			Amount:  amountToString(share.Amount),
		})
	}
	return stored
}

func (s *storedRecord) toRecord() (*ConversionRecord, error) {
	if len(s.Caller) != 20 {
		return nil, fmt.Errorf("vault: malformed record caller")
	}
	convertedTotal, err := amountFromString(s.ConvertedTotal)
	if err != nil {
		return nil, err
	}
	swapIn, err := amountFromString(s.SwapIn)
	if err != nil {
		return nil, err
	}
	swapOut, err := amountFromString(s.SwapOut)
	if err != nil {
		return nil, err
	}
	liquidityDelta, err := amountFromString(s.LiquidityDelta)
	if err != nil {
		return nil, err
	}
	accumulated, err := amountFromString(s.AccumulatedFees)
	if err != nil {
		return nil, err
	}
	record := &ConversionRecord{
		Sequence:        s.Sequence,
		Timestamp:       int64(s.Timestamp),
		ConvertedTotal:  convertedTotal,
		SwapIn:          swapIn,
		SwapOut:         swapOut,
		LiquidityDelta:  liquidityDelta,
		AccumulatedFees: accumulated,
	}
	copy(record.Caller[:], s.Caller)
	for _, share := range s.Shares {
		if len(share.Address) != 20 {
			return nil, fmt.Errorf("vault: malformed share address")
		}
		amount, err := amountFromString(share.Amount)
		if err != nil {
			return nil, err
		}
		entry := RecordShare{Amount: amount}
		copy(entry.Address[:], share.Address)
		record.Shares = append(record.Shares, entry)
	}
	return record, nil
}

type storedVaultPosition struct {
	TickLowerOffset uint32
	TickUpperOffset uint32
	Liquidity       string
}

func newStoredVaultPosition(p *LiquidityPosition) *storedVaultPosition {
	return &storedVaultPosition{
		TickLowerOffset: offsetTick(p.TickLower),
		TickUpperOffset: offsetTick(p.TickUpper),
		Liquidity:       amountToString(p.Liquidity),
	}
}

func (s *storedVaultPosition) toPosition() (*LiquidityPosition, error) {
	liquidity, err := amountFromString(s.Liquidity)
	if err != nil {
		return nil, err
	}
	lower, err := unoffsetTick(s.TickLowerOffset)
	if err != nil {
		return nil, err
	}
	upper, err := unoffsetTick(s.TickUpperOffset)
	if err != nil {
		return nil, err
	}
	return &LiquidityPosition{TickLower: lower, TickUpper: upper, Liquidity: liquidity}, nil
}

type storedRewardConfig struct {
	Base          string
	PerBenefactor string
	Cap           string
}

func newStoredRewardConfig(c *RewardConfig) *storedRewardConfig {
	return &storedRewardConfig{
		Base:          amountToString(c.Base),
		PerBenefactor: amountToString(c.PerBenefactor),
		Cap:           amountToString(c.Cap),
	}
}

func (s *storedRewardConfig) toConfig() (*RewardConfig, error) {
	base, err := amountFromString(s.Base)
	if err != nil {
		return nil, err
	}
	perBenefactor, err := amountFromString(s.PerBenefactor)
	if err != nil {
		return nil, err
	}
	cap, err := amountFromString(s.Cap)
	if err != nil {
		return nil, err
	}
	return &RewardConfig{Base: base, PerBenefactor: perBenefactor, Cap: cap}, nil
}

func offsetTick(tick int32) uint32 {
	return uint32(int64(tick) - int64(market.MinTick))
}

func unoffsetTick(offset uint32) (int32, error) {
	tick := int64(offset) + int64(market.MinTick)
	if tick < int64(market.MinTick) || tick > int64(market.MaxTick) {
		return 0, fmt.Errorf("vault: stored tick out of range")
	}
	return int32(tick), nil
}

func amountToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func amountFromString(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("vault: malformed amount %q", s)
	}
	return value, nil
}
