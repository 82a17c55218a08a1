package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// vaultRoutes bridges the REST surface onto the node's JSON-RPC methods.
type vaultRoutes struct {
	client *rpcClient
}

func newVaultRoutes(client *rpcClient) *vaultRoutes {
	return &vaultRoutes{client: client}
}

func (vr *vaultRoutes) mountReads(r chi.Router) {
	r.Get("/pending", vr.getPending)
	r.Get("/benefactors/{benefactor}/pending", vr.getBenefactorPending)
	r.Get("/benefactors/{benefactor}/claimable", vr.getClaimable)
	r.Get("/benefactors/{benefactor}/balance", vr.getBalance)
	r.Get("/records", vr.listRecords)
	r.Get("/records/{sequence}", vr.getRecord)
	r.Get("/position", vr.getPosition)
	r.Get("/reward-config", vr.getRewardConfig)
	r.Get("/events", vr.listEvents)
}

func (vr *vaultRoutes) mountWrites(r chi.Router) {
	r.Post("/contributions", vr.contribute)
	r.Post("/conversions", vr.convert)
	r.Post("/claims", vr.claim)
}

func (vr *vaultRoutes) getPending(w http.ResponseWriter, r *http.Request) {
	vr.forward(w, r, "vault_getPending")
}

func (vr *vaultRoutes) getBenefactorPending(w http.ResponseWriter, r *http.Request) {
	benefactor := strings.TrimSpace(chi.URLParam(r, "benefactor"))
	if benefactor == "" {
		writeBadRequest(w, errors.New("benefactor is required"))
		return
	}
	vr.forward(w, r, "vault_getPending", map[string]string{"benefactor": benefactor})
}

func (vr *vaultRoutes) getClaimable(w http.ResponseWriter, r *http.Request) {
	benefactor := strings.TrimSpace(chi.URLParam(r, "benefactor"))
	if benefactor == "" {
		writeBadRequest(w, errors.New("benefactor is required"))
		return
	}
	vr.forward(w, r, "vault_getClaimable", map[string]string{"benefactor": benefactor})
}

func (vr *vaultRoutes) getBalance(w http.ResponseWriter, r *http.Request) {
	benefactor := strings.TrimSpace(chi.URLParam(r, "benefactor"))
	if benefactor == "" {
		writeBadRequest(w, errors.New("benefactor is required"))
		return
	}
	vr.forward(w, r, "bene_getBalance", benefactor)
}

func (vr *vaultRoutes) listRecords(w http.ResponseWriter, r *http.Request) {
	params, err := paginationParams(r, "from")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	vr.forward(w, r, "vault_listRecords", params)
}

func (vr *vaultRoutes) getRecord(w http.ResponseWriter, r *http.Request) {
	sequence, err := strconv.ParseUint(strings.TrimSpace(chi.URLParam(r, "sequence")), 10, 64)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid sequence: %w", err))
		return
	}
	vr.forward(w, r, "vault_getRecord", map[string]uint64{"sequence": sequence})
}

func (vr *vaultRoutes) getPosition(w http.ResponseWriter, r *http.Request) {
	vr.forward(w, r, "vault_getPosition")
}

func (vr *vaultRoutes) getRewardConfig(w http.ResponseWriter, r *http.Request) {
	vr.forward(w, r, "vault_getRewardConfig")
}

func (vr *vaultRoutes) listEvents(w http.ResponseWriter, r *http.Request) {
	params, err := paginationParams(r, "cursor")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	vr.forward(w, r, "vault_listEvents", params)
}

type contributionRequest struct {
	Benefactor string `json:"benefactor"`
	Amount     string `json:"amount"`
}

func (vr *vaultRoutes) contribute(w http.ResponseWriter, r *http.Request) {
	var body contributionRequest
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.Benefactor) == "" || strings.TrimSpace(body.Amount) == "" {
		writeBadRequest(w, errors.New("benefactor and amount are required"))
		return
	}
	vr.forward(w, r, "vault_contribute", body)
}

type conversionRequest struct {
	Caller string `json:"caller"`
	MinOut string `json:"minOut,omitempty"`
}

func (vr *vaultRoutes) convert(w http.ResponseWriter, r *http.Request) {
	var body conversionRequest
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.Caller) == "" {
		writeBadRequest(w, errors.New("caller is required"))
		return
	}
	vr.forward(w, r, "vault_convert", body)
}

type claimRequest struct {
	Benefactor string `json:"benefactor"`
}

func (vr *vaultRoutes) claim(w http.ResponseWriter, r *http.Request) {
	var body claimRequest
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.Benefactor) == "" {
		writeBadRequest(w, errors.New("benefactor is required"))
		return
	}
	vr.forward(w, r, "vault_claim", body)
}

// marketRoutes exposes the venue views the vault converts through.
type marketRoutes struct {
	client *rpcClient
}

func newMarketRoutes(client *rpcClient) *marketRoutes {
	return &marketRoutes{client: client}
}

func (mr *marketRoutes) mount(r chi.Router) {
	r.Get("/pool", mr.getPool)
	r.Post("/quote", mr.quote)
}

func (mr *marketRoutes) getPool(w http.ResponseWriter, r *http.Request) {
	forwardCall(w, r, mr.client, "market_getPool")
}

type quoteRequest struct {
	BaseIn   bool   `json:"baseIn"`
	AmountIn string `json:"amountIn"`
}

func (mr *marketRoutes) quote(w http.ResponseWriter, r *http.Request) {
	var body quoteRequest
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.AmountIn) == "" {
		writeBadRequest(w, errors.New("amountIn is required"))
		return
	}
	forwardCall(w, r, mr.client, "market_quote", body)
}

func (vr *vaultRoutes) forward(w http.ResponseWriter, r *http.Request, method string, params ...interface{}) {
	forwardCall(w, r, vr.client, method, params...)
}

func forwardCall(w http.ResponseWriter, r *http.Request, client *rpcClient, method string, params ...interface{}) {
	if client == nil {
		writeInternalError(w, errors.New("upstream client not configured"))
		return
	}
	resp, err := client.Call(r.Context(), method, params...)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, fmt.Errorf("%s failed: %w", method, err))
		return
	}
	if resp.Error != nil {
		status := resp.status
		if status == 0 || status == http.StatusOK {
			status = http.StatusBadGateway
		}
		writeRPCError(w, status, resp.Error)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(resp.Result) == 0 {
		_, _ = w.Write([]byte("null"))
		return
	}
	_, _ = w.Write(resp.Result)
}

func paginationParams(r *http.Request, cursorKey string) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	if raw := strings.TrimSpace(r.URL.Query().Get(cursorKey)); raw != "" {
		from, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", cursorKey, err)
		}
		params["fromSequence"] = from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid limit %q", raw)
		}
		params["limit"] = limit
	}
	return params, nil
}

func decodeBody(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, requestBodyLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeRPCError(w http.ResponseWriter, status int, rpcErr *rpcError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload, err := json.Marshal(map[string]interface{}{
		"error": rpcErr.Message,
		"code":  rpcErr.Code,
	})
	if err != nil {
		payload = []byte(`{"error":"upstream error"}`)
	}
	_, _ = w.Write(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusInternalServerError, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		payload = []byte(`{"error":"internal error"}`)
	}
	_, _ = w.Write(payload)
}
