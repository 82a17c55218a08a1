package main

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"benevault/core/state"
	"benevault/crypto"
	"benevault/native/vault"
	"benevault/storage"
)

// Check names attached to findings. One name per invariant so downstream
// tooling can group violations without parsing detail strings.
const (
	checkSequenceContinuity = "sequence_continuity"
	checkTimestampOrder     = "timestamp_order"
	checkShareConservation  = "share_conservation"
	checkFeeMonotonicity    = "fee_monotonicity"
	checkWatermarkBound     = "watermark_bound"
	checkParticipationIndex = "participation_index"
	checkPendingLedger      = "pending_ledger"
	checkPositionLiquidity  = "position_liquidity"
	checkModuleSolvency     = "module_solvency"
)

type finding struct {
	Check      string `json:"check"`
	Sequence   uint64 `json:"sequence,omitempty"`
	Benefactor string `json:"benefactor,omitempty"`
	Detail     string `json:"detail"`
}

type positionInfo struct {
	TickLower int32  `json:"tickLower"`
	TickUpper int32  `json:"tickUpper"`
	Liquidity string `json:"liquidity"`
}

type exportDigest struct {
	Path   string `json:"path"`
	Rows   int    `json:"rows"`
	Blake3 string `json:"blake3"`
}

type auditReport struct {
	GeneratedAt     string         `json:"generatedAt"`
	Records         uint64         `json:"records"`
	Benefactors     int            `json:"benefactors"`
	PendingTotal    string         `json:"pendingTotal"`
	ConvertedTotal  string         `json:"convertedTotal"`
	AccumulatedFees string         `json:"accumulatedFees"`
	ClaimedFees     string         `json:"claimedFees"`
	OutstandingFees string         `json:"outstandingFees"`
	ModuleBalance   string         `json:"moduleBalance"`
	Position        *positionInfo  `json:"position,omitempty"`
	Findings        []finding      `json:"findings"`
	Exports         []exportDigest `json:"exports,omitempty"`
}

func (r *auditReport) addFinding(check string, sequence uint64, benefactor string, format string, args ...interface{}) {
	r.Findings = append(r.Findings, finding{
		Check:      check,
		Sequence:   sequence,
		Benefactor: benefactor,
		Detail:     fmt.Sprintf(format, args...),
	})
}

type auditOptions struct {
	ExportDir string
	Now       time.Time
}

// runAudit walks every conversion record, watermark and pending balance in
// the store and cross-checks them against each other. It never writes, so it
// is safe to point at the data directory of a live node opened read-only.
func runAudit(db storage.Database, opts auditOptions) (*auditReport, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	store := vault.NewStore(state.NewManager(db))
	report := &auditReport{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Findings:    []finding{},
	}

	count, err := store.ConversionRecordCount()
	if err != nil {
		return nil, fmt.Errorf("audit: record count: %w", err)
	}
	report.Records = count

	var (
		records        = make(map[uint64]*vault.ConversionRecord, count)
		rows           = make([]recordRow, 0)
		participation  = make(map[[20]byte]map[uint64]bool)
		convertedTotal = big.NewInt(0)
		feeTotal       = big.NewInt(0)
		claimedTotal   = big.NewInt(0)
		liquiditySum   = big.NewInt(0)
		prevTimestamp  int64
	)

	participationFor := func(addr [20]byte) (map[uint64]bool, error) {
		if set, ok := participation[addr]; ok {
			return set, nil
		}
		sequences, err := store.Participation(addr)
		if err != nil {
			return nil, fmt.Errorf("audit: participation for %s: %w", formatAuditAddress(addr), err)
		}
		set := make(map[uint64]bool, len(sequences))
		for _, seq := range sequences {
			set[seq] = true
		}
		participation[addr] = set
		return set, nil
	}

	for seq := uint64(1); seq <= count; seq++ {
		record, ok, err := store.ConversionRecord(seq)
		if err != nil {
			return nil, fmt.Errorf("audit: load record %d: %w", seq, err)
		}
		if !ok {
			report.addFinding(checkSequenceContinuity, seq, "", "record %d missing although count is %d", seq, count)
			continue
		}
		records[seq] = record
		if record.Sequence != seq {
			report.addFinding(checkSequenceContinuity, seq, "", "record stored at sequence %d reports sequence %d", seq, record.Sequence)
		}
		if record.Timestamp < prevTimestamp {
			report.addFinding(checkTimestampOrder, seq, "", "timestamp %d precedes predecessor %d", record.Timestamp, prevTimestamp)
		}
		prevTimestamp = record.Timestamp

		if record.ConvertedTotal == nil || record.ConvertedTotal.Sign() <= 0 {
			report.addFinding(checkShareConservation, seq, "", "converted total %s is not positive", formatAmount(record.ConvertedTotal))
		}
		fees := record.AccumulatedFees
		if fees == nil {
			fees = big.NewInt(0)
			report.addFinding(checkFeeMonotonicity, seq, "", "accumulated fees unset")
		} else if fees.Sign() < 0 {
			report.addFinding(checkFeeMonotonicity, seq, "", "accumulated fees %s are negative", fees)
		}

		shareSum := big.NewInt(0)
		recordClaimed := big.NewInt(0)
		for _, share := range record.Shares {
			benefactor := formatAuditAddress(share.Address)
			if share.Amount == nil || share.Amount.Sign() <= 0 {
				report.addFinding(checkShareConservation, seq, benefactor, "share amount %s is not positive", formatAmount(share.Amount))
			} else {
				shareSum.Add(shareSum, share.Amount)
			}

			entitlement := record.Entitlement(share.Address)
			watermark, err := store.ClaimWatermark(share.Address, seq)
			if err != nil {
				return nil, fmt.Errorf("audit: watermark for %s record %d: %w", benefactor, seq, err)
			}
			if watermark.Cmp(entitlement) > 0 {
				report.addFinding(checkWatermarkBound, seq, benefactor, "claim watermark %s exceeds entitlement %s", watermark, entitlement)
			}
			recordClaimed.Add(recordClaimed, watermark)

			indexed, err := participationFor(share.Address)
			if err != nil {
				return nil, err
			}
			if !indexed[seq] {
				report.addFinding(checkParticipationIndex, seq, benefactor, "share holder missing from participation index")
			}

			rows = append(rows, recordRow{
				Sequence:        seq,
				Timestamp:       record.Timestamp,
				Caller:          formatAuditAddress(record.Caller),
				Benefactor:      benefactor,
				ShareAmount:     cloneAmount(share.Amount),
				ConvertedTotal:  cloneAmount(record.ConvertedTotal),
				SwapIn:          cloneAmount(record.SwapIn),
				SwapOut:         cloneAmount(record.SwapOut),
				LiquidityDelta:  cloneAmount(record.LiquidityDelta),
				AccumulatedFees: cloneAmount(record.AccumulatedFees),
				Entitlement:     entitlement,
				Watermark:       watermark,
				Claimable:       claimableGap(entitlement, watermark),
			})
		}
		if record.ConvertedTotal != nil && shareSum.Cmp(record.ConvertedTotal) != 0 {
			report.addFinding(checkShareConservation, seq, "", "share sum %s does not equal converted total %s", shareSum, record.ConvertedTotal)
		}
		if recordClaimed.Cmp(fees) > 0 {
			report.addFinding(checkFeeMonotonicity, seq, "", "claimed %s exceeds accumulated fees %s", recordClaimed, fees)
		}

		convertedTotal.Add(convertedTotal, zeroWhenNil(record.ConvertedTotal))
		feeTotal.Add(feeTotal, fees)
		claimedTotal.Add(claimedTotal, recordClaimed)
		liquiditySum.Add(liquiditySum, zeroWhenNil(record.LiquidityDelta))
	}

	pendingTotal, err := store.PendingTotal()
	if err != nil {
		return nil, fmt.Errorf("audit: pending total: %w", err)
	}
	contributors, err := store.PendingContributors()
	if err != nil {
		return nil, fmt.Errorf("audit: pending contributors: %w", err)
	}
	pendingSum := big.NewInt(0)
	for _, addr := range contributors {
		amount, err := store.PendingContribution(addr)
		if err != nil {
			return nil, fmt.Errorf("audit: pending for %s: %w", formatAuditAddress(addr), err)
		}
		if amount.Sign() < 0 {
			report.addFinding(checkPendingLedger, 0, formatAuditAddress(addr), "pending contribution %s is negative", amount)
		}
		pendingSum.Add(pendingSum, amount)
		// Pulls the contributor's participation into the reverse check below.
		if _, err := participationFor(addr); err != nil {
			return nil, err
		}
	}
	if pendingSum.Cmp(pendingTotal) != 0 {
		report.addFinding(checkPendingLedger, 0, "", "indexed pending sum %s does not equal recorded total %s", pendingSum, pendingTotal)
	}

	// The participation index must not point at records the benefactor holds
	// no share of: a dangling entry makes claims fail hard.
	for addr, indexed := range participation {
		benefactor := formatAuditAddress(addr)
		for seq := range indexed {
			record, ok := records[seq]
			if !ok {
				if seq == 0 || seq > count {
					report.addFinding(checkParticipationIndex, seq, benefactor, "participation references unknown record")
				}
				continue
			}
			if record.ShareAmount(addr).Sign() <= 0 {
				report.addFinding(checkParticipationIndex, seq, benefactor, "participation references record without a share")
			}
		}
	}
	report.Benefactors = len(participation)

	position, hasPosition, err := store.Position()
	if err != nil {
		return nil, fmt.Errorf("audit: position: %w", err)
	}
	if hasPosition {
		report.Position = &positionInfo{
			TickLower: position.TickLower,
			TickUpper: position.TickUpper,
			Liquidity: formatAmount(position.Liquidity),
		}
		if liquiditySum.Cmp(zeroWhenNil(position.Liquidity)) != 0 {
			report.addFinding(checkPositionLiquidity, 0, "", "record liquidity deltas sum to %s but position holds %s", liquiditySum, formatAmount(position.Liquidity))
		}
	} else if liquiditySum.Sign() != 0 {
		report.addFinding(checkPositionLiquidity, 0, "", "records carry liquidity %s but no position is stored", liquiditySum)
	}

	module, err := store.GetAccount(vault.ModuleAddress())
	if err != nil {
		return nil, fmt.Errorf("audit: module account: %w", err)
	}
	outstanding := new(big.Int).Sub(feeTotal, claimedTotal)
	required := new(big.Int).Set(pendingTotal)
	if outstanding.Sign() > 0 {
		required.Add(required, outstanding)
	}
	if module.BalanceBase.Cmp(required) < 0 {
		report.addFinding(checkModuleSolvency, 0, "", "module balance %s below required %s (pending %s plus unclaimed fees %s)", module.BalanceBase, required, pendingTotal, outstanding)
	}

	report.PendingTotal = pendingTotal.String()
	report.ConvertedTotal = convertedTotal.String()
	report.AccumulatedFees = feeTotal.String()
	report.ClaimedFees = claimedTotal.String()
	report.OutstandingFees = outstanding.String()
	report.ModuleBalance = module.BalanceBase.String()

	sort.Slice(report.Findings, func(i, j int) bool {
		a, b := report.Findings[i], report.Findings[j]
		if a.Check != b.Check {
			return a.Check < b.Check
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.Benefactor < b.Benefactor
	})

	if opts.ExportDir != "" {
		digests, err := writeExports(opts.ExportDir, rows)
		if err != nil {
			return nil, err
		}
		report.Exports = digests
	}
	return report, nil
}

func formatAuditAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.BenePrefix, addr[:]).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func zeroWhenNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func claimableGap(entitlement, watermark *big.Int) *big.Int {
	gap := new(big.Int).Sub(entitlement, watermark)
	if gap.Sign() < 0 {
		return big.NewInt(0)
	}
	return gap
}
