package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"benevault/crypto"
	nativecommon "benevault/native/common"
	"benevault/native/vault"
)

const (
	codeVaultInvalidAmount       = -32071
	codeVaultInsufficientBalance = -32072
	codeVaultNothingPending      = -32073
	codeVaultDustConversion      = -32074
	codeVaultSlippage            = -32075
	codeVaultRecordNotFound      = -32076
	codeVaultNoPosition          = -32077
	codeVaultInvalidConfig       = -32078
	codeVaultPaused              = -32079
)

type benefactorParams struct {
	Benefactor string `json:"benefactor"`
}

type contributeParams struct {
	Benefactor string `json:"benefactor"`
	Amount     string `json:"amount"`
}

type convertParams struct {
	Caller string `json:"caller"`
	MinOut string `json:"minOut,omitempty"`
}

type recordFeesParams struct {
	Sequence uint64 `json:"sequence"`
	Amount   string `json:"amount"`
}

type sequenceParams struct {
	Sequence uint64 `json:"sequence"`
}

type listRecordsParams struct {
	FromSequence uint64 `json:"fromSequence,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

type rewardConfigParams struct {
	Base          string `json:"base"`
	PerBenefactor string `json:"perBenefactor"`
	Cap           string `json:"cap"`
}

type moduleParams struct {
	Module string `json:"module"`
}

type listEventsParams struct {
	FromSequence uint64 `json:"fromSequence,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

type shareJSON struct {
	Benefactor string `json:"benefactor"`
	Amount     string `json:"amount"`
}

type recordJSON struct {
	Sequence        uint64      `json:"sequence"`
	Timestamp       int64       `json:"timestamp"`
	Caller          string      `json:"caller"`
	ConvertedTotal  string      `json:"convertedTotal"`
	SwapIn          string      `json:"swapIn"`
	SwapOut         string      `json:"swapOut"`
	LiquidityDelta  string      `json:"liquidityDelta"`
	AccumulatedFees string      `json:"accumulatedFees"`
	Shares          []shareJSON `json:"shares"`
}

type pendingResult struct {
	Benefactor string `json:"benefactor,omitempty"`
	Pending    string `json:"pending,omitempty"`
	Total      string `json:"total"`
}

type claimResult struct {
	Benefactor string `json:"benefactor"`
	Amount     string `json:"amount"`
}

type harvestResult struct {
	Harvested string `json:"harvested"`
}

type claimableResult struct {
	Benefactor string   `json:"benefactor"`
	Claimable  string   `json:"claimable"`
	Records    []uint64 `json:"records"`
}

type positionJSON struct {
	TickLower int32  `json:"tickLower"`
	TickUpper int32  `json:"tickUpper"`
	Liquidity string `json:"liquidity"`
}

type rewardConfigJSON struct {
	Base          string `json:"base"`
	PerBenefactor string `json:"perBenefactor"`
	Cap           string `json:"cap"`
}

type pauseResult struct {
	Paused map[string]bool `json:"paused"`
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.BenePrefix, addr[:]).String()
}

func formatBigInt(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatRecord(record *vault.ConversionRecord) recordJSON {
	shares := make([]shareJSON, 0, len(record.Shares))
	for _, share := range record.Shares {
		shares = append(shares, shareJSON{
			Benefactor: formatAddress(share.Address),
			Amount:     formatBigInt(share.Amount),
		})
	}
	return recordJSON{
		Sequence:        record.Sequence,
		Timestamp:       record.Timestamp,
		Caller:          formatAddress(record.Caller),
		ConvertedTotal:  formatBigInt(record.ConvertedTotal),
		SwapIn:          formatBigInt(record.SwapIn),
		SwapOut:         formatBigInt(record.SwapOut),
		LiquidityDelta:  formatBigInt(record.LiquidityDelta),
		AccumulatedFees: formatBigInt(record.AccumulatedFees),
		Shares:          shares,
	}
}

func parseBech32Address(addr string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return out, fmt.Errorf("address required")
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	raw := decoded.Bytes()
	if len(raw) != 20 {
		return out, fmt.Errorf("address must decode to 20 bytes")
	}
	copy(out[:], raw)
	return out, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseOptionalBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// writeVaultError maps engine errors to the vault RPC error codes.
func writeVaultError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusInternalServerError
	code := codeServerError
	message := "internal_error"
	switch {
	case errors.Is(err, vault.ErrInvalidAmount):
		status, code, message = http.StatusBadRequest, codeVaultInvalidAmount, "invalid_amount"
	case errors.Is(err, vault.ErrInsufficientBalance):
		status, code, message = http.StatusConflict, codeVaultInsufficientBalance, "insufficient_balance"
	case errors.Is(err, vault.ErrNothingPending):
		status, code, message = http.StatusConflict, codeVaultNothingPending, "nothing_pending"
	case errors.Is(err, vault.ErrDustConversion):
		status, code, message = http.StatusConflict, codeVaultDustConversion, "dust_conversion"
	case errors.Is(err, vault.ErrSlippageExceeded):
		status, code, message = http.StatusConflict, codeVaultSlippage, "slippage_exceeded"
	case errors.Is(err, vault.ErrRecordNotFound):
		status, code, message = http.StatusNotFound, codeVaultRecordNotFound, "record_not_found"
	case errors.Is(err, vault.ErrNoPosition):
		status, code, message = http.StatusConflict, codeVaultNoPosition, "no_position"
	case errors.Is(err, vault.ErrInvalidConfiguration):
		status, code, message = http.StatusBadRequest, codeVaultInvalidConfig, "invalid_configuration"
	case errors.Is(err, nativecommon.ErrModulePaused):
		status, code, message = http.StatusServiceUnavailable, codeVaultPaused, "module_paused"
	case errors.Is(err, vault.ErrReentrantCall):
		status, code, message = http.StatusConflict, codeServerError, "busy"
	}
	writeError(w, status, id, code, message, err.Error())
}

func (s *Server) handleVaultContribute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params contributeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	benefactor, err := parseBech32Address(params.Benefactor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Contribute(benefactor, amount); err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	pending, err := s.node.PendingContribution(benefactor)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	total, err := s.node.PendingTotal()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, pendingResult{
		Benefactor: formatAddress(benefactor),
		Pending:    formatBigInt(pending),
		Total:      formatBigInt(total),
	})
}

func (s *Server) handleVaultConvert(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params convertParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	minOut, err := parseOptionalBigInt(params.MinOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.node.Convert(caller, minOut)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatRecord(record))
}

func (s *Server) handleVaultClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params benefactorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	benefactor, err := parseBech32Address(params.Benefactor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.node.Claim(benefactor)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimResult{Benefactor: formatAddress(benefactor), Amount: formatBigInt(amount)})
}

func (s *Server) handleVaultHarvest(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	harvested, err := s.node.Harvest()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, harvestResult{Harvested: formatBigInt(harvested)})
}

func (s *Server) handleVaultRecordFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params recordFeesParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.RecordFees(params.Sequence, amount); err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	record, err := s.node.Record(params.Sequence)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatRecord(record))
}

func (s *Server) handleVaultSetRewardConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardConfigParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	base, err := parseOptionalBigInt(params.Base)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	perBenefactor, err := parseOptionalBigInt(params.PerBenefactor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	cap, err := parseOptionalBigInt(params.Cap)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	config := &vault.RewardConfig{Base: base, PerBenefactor: perBenefactor, Cap: cap}
	if config.Base == nil {
		config.Base = big.NewInt(0)
	}
	if config.PerBenefactor == nil {
		config.PerBenefactor = big.NewInt(0)
	}
	if config.Cap == nil {
		config.Cap = new(big.Int).Set(config.Base)
	}
	if err := s.node.SetRewardConfig(config); err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, rewardConfigJSON{
		Base:          formatBigInt(config.Base),
		PerBenefactor: formatBigInt(config.PerBenefactor),
		Cap:           formatBigInt(config.Cap),
	})
}

func (s *Server) handleVaultPause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handlePauseFlip(w, req, s.node.Pause)
}

func (s *Server) handleVaultResume(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handlePauseFlip(w, req, s.node.Resume)
}

func (s *Server) handlePauseFlip(w http.ResponseWriter, req *RPCRequest, flip func(string) error) {
	var params moduleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	module := strings.TrimSpace(params.Module)
	if module == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "module required")
		return
	}
	if err := flip(module); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, pauseResult{Paused: s.node.Paused()})
}

func (s *Server) handleVaultGetPending(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	total, err := s.node.PendingTotal()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	result := pendingResult{Total: formatBigInt(total)}
	if len(req.Params) > 0 {
		var params benefactorParams
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		benefactor, err := parseBech32Address(params.Benefactor)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		pending, err := s.node.PendingContribution(benefactor)
		if err != nil {
			writeVaultError(w, req.ID, err)
			return
		}
		result.Benefactor = formatAddress(benefactor)
		result.Pending = formatBigInt(pending)
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleVaultGetRecord(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sequenceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.node.Record(params.Sequence)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatRecord(record))
}

func (s *Server) handleVaultListRecords(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listRecordsParams
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	records, err := s.node.ListRecords(params.FromSequence, params.Limit)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	out := make([]recordJSON, 0, len(records))
	for _, record := range records {
		out = append(out, formatRecord(record))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleVaultGetClaimable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params benefactorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	benefactor, err := parseBech32Address(params.Benefactor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	claimable, err := s.node.Claimable(benefactor)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	participation, err := s.node.Participation(benefactor)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimableResult{
		Benefactor: formatAddress(benefactor),
		Claimable:  formatBigInt(claimable),
		Records:    participation,
	})
}

func (s *Server) handleVaultGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	position, err := s.node.Position()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	if position == nil {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, positionJSON{
		TickLower: position.TickLower,
		TickUpper: position.TickUpper,
		Liquidity: formatBigInt(position.Liquidity),
	})
}

func (s *Server) handleVaultGetRewardConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	config, err := s.node.RewardConfig()
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	if config == nil {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, rewardConfigJSON{
		Base:          formatBigInt(config.Base),
		PerBenefactor: formatBigInt(config.PerBenefactor),
		Cap:           formatBigInt(config.Cap),
	})
}

func (s *Server) handleVaultListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listEventsParams
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	updates, err := s.node.EventsRange(params.FromSequence, params.Limit)
	if err != nil {
		writeVaultError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, updates)
}
