package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"benevault/native/market"
)

const (
	codeMarketPoolNotInitialized = -32081
	codeMarketQuoteFailed        = -32082
)

type balanceResult struct {
	Address       string `json:"address"`
	BalanceBase   string `json:"balanceBase"`
	BalanceTarget string `json:"balanceTarget"`
	Nonce         uint64 `json:"nonce"`
}

type poolResult struct {
	PoolID       string `json:"poolId"`
	Currency0    string `json:"currency0"`
	Currency1    string `json:"currency1"`
	BaseCurrency string `json:"baseCurrency"`
	FeeTier      uint32 `json:"feeTier"`
	TickSpacing  int32  `json:"tickSpacing"`
	SqrtPriceX96 string `json:"sqrtPriceX96"`
	Tick         int32  `json:"tick"`
	Liquidity    string `json:"liquidity"`
}

type quoteParams struct {
	BaseIn   bool   `json:"baseIn"`
	AmountIn string `json:"amountIn"`
}

type quoteResult struct {
	BaseIn    bool   `json:"baseIn"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "exactly one address expected")
		return
	}
	var addrStr string
	if err := json.Unmarshal(req.Params[0], &addrStr); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(addrStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, balanceResult{
		Address:       formatAddress(addr),
		BalanceBase:   formatBigInt(account.BalanceBase),
		BalanceTarget: formatBigInt(account.BalanceTarget),
		Nonce:         account.Nonce,
	})
}

func (s *Server) handleMarketGetPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	pool, err := s.node.PoolInfo()
	if err != nil {
		if errors.Is(err, market.ErrPoolNotInitialized) {
			writeError(w, http.StatusNotFound, req.ID, codeMarketPoolNotInitialized, "pool_not_initialized", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	key := s.node.PoolKey()
	writeResult(w, req.ID, poolResult{
		PoolID:       key.ID().Hex(),
		Currency0:    key.Currency0.Hex(),
		Currency1:    key.Currency1.Hex(),
		BaseCurrency: s.node.BaseCurrency().Hex(),
		FeeTier:      key.Fee,
		TickSpacing:  key.TickSpacing,
		SqrtPriceX96: formatBigInt(pool.SqrtPriceX96),
		Tick:         pool.Tick,
		Liquidity:    formatBigInt(pool.Liquidity),
	})
}

func (s *Server) handleMarketQuote(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params quoteParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amountIn, err := parsePositiveBigInt(params.AmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amountOut, err := s.node.Quote(params.BaseIn, amountIn)
	if err != nil {
		if errors.Is(err, market.ErrPoolNotInitialized) {
			writeError(w, http.StatusNotFound, req.ID, codeMarketPoolNotInitialized, "pool_not_initialized", err.Error())
			return
		}
		writeError(w, http.StatusConflict, req.ID, codeMarketQuoteFailed, "quote_failed", err.Error())
		return
	}
	writeResult(w, req.ID, quoteResult{
		BaseIn:    params.BaseIn,
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
	})
}
