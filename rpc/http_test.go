package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"benevault/config"
	"benevault/core"
	"benevault/core/events"
	"benevault/crypto"
	"benevault/native/market"
	"benevault/storage"
)

const testRPCToken = "rpc-test-token"

type testEnv struct {
	server *Server
	node   *core.Node
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func bech(addr [20]byte) string {
	return crypto.NewAddress(crypto.BenePrefix, addr[:]).String()
}

func newTestEnv(t *testing.T, allocs ...config.Alloc) *testEnv {
	t.Helper()
	cfg := &config.Config{
		RPCAddress:  "127.0.0.1:0",
		DataDir:     t.TempDir(),
		NetworkName: "bene-test",
		Pool: config.Pool{
			BaseCurrency:        "native",
			TargetCurrency:      bech(testAddr(0x02)),
			FeeTier:             market.FeeTier030,
			InitialSqrtPriceX96: market.Q96.String(),
		},
		Genesis: allocs,
	}
	node, err := core.NewNode(storage.NewMemDB(), cfg)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	t.Cleanup(node.Close)
	return &testEnv{server: NewServer(node, testRPCToken), node: node}
}

func marshalParam(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal param: %v", err)
	}
	return raw
}

func rpcBody(t *testing.T, id int, method string, params ...interface{}) string {
	t.Helper()
	raws := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		raws = append(raws, marshalParam(t, p))
	}
	payload := map[string]interface{}{"jsonrpc": jsonRPCVersion, "id": id, "method": method}
	if len(raws) > 0 {
		payload["params"] = raws
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return string(body)
}

func (env *testEnv) post(t *testing.T, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.RemoteAddr = "192.0.2.10:52110"
	if authed {
		req.Header.Set("Authorization", "Bearer "+testRPCToken)
	}
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)
	return rec
}

func decodeRPCResponse(t *testing.T, rec *httptest.ResponseRecorder) (json.RawMessage, *RPCError) {
	t.Helper()
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Result, resp.Error
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("unexpected rpc error: %d %s", rpcErr.Code, rpcErr.Message)
	}
	if err := json.Unmarshal(result, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func expectRPCError(t *testing.T, rec *httptest.ResponseRecorder, status, code int) *RPCError {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected HTTP status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil {
		t.Fatalf("expected rpc error, got result")
	}
	if rpcErr.Code != code {
		t.Fatalf("expected code %d, got %d (%s)", code, rpcErr.Code, rpcErr.Message)
	}
	return rpcErr
}

func TestHandleRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, "{not json", false)
	expectRPCError(t, rec, http.StatusBadRequest, codeParseError)
}

func TestHandleRejectsUnsupportedVersion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, `{"jsonrpc":"1.0","id":1,"method":"vault_getPending"}`, false)
	expectRPCError(t, rec, http.StatusBadRequest, codeInvalidRequest)
}

func TestHandleUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, rpcBody(t, 1, "vault_unknown"), false)
	expectRPCError(t, rec, http.StatusNotFound, codeMethodNotFound)
}

func TestContributeRequiresAuth(t *testing.T) {
	alice := testAddr(0x0a)
	env := newTestEnv(t, config.Alloc{Address: bech(alice), Base: "100"})
	body := rpcBody(t, 1, "vault_contribute", map[string]string{"benefactor": bech(alice), "amount": "10"})
	rec := env.post(t, body, false)
	expectRPCError(t, rec, http.StatusUnauthorized, codeUnauthorized)
}

func TestContributeInvalidAddress(t *testing.T) {
	env := newTestEnv(t)
	body := rpcBody(t, 1, "vault_contribute", map[string]string{"benefactor": "not-bech32", "amount": "10"})
	rec := env.post(t, body, true)
	expectRPCError(t, rec, http.StatusBadRequest, codeInvalidParams)
}

func TestContributeRejectsZeroAmount(t *testing.T) {
	alice := testAddr(0x0a)
	env := newTestEnv(t, config.Alloc{Address: bech(alice), Base: "100"})
	body := rpcBody(t, 1, "vault_contribute", map[string]string{"benefactor": bech(alice), "amount": "0"})
	rec := env.post(t, body, true)
	expectRPCError(t, rec, http.StatusBadRequest, codeInvalidParams)
}

func TestContributeInsufficientBalance(t *testing.T) {
	alice := testAddr(0x0a)
	env := newTestEnv(t, config.Alloc{Address: bech(alice), Base: "10"})
	body := rpcBody(t, 1, "vault_contribute", map[string]string{"benefactor": bech(alice), "amount": "25"})
	rec := env.post(t, body, true)
	expectRPCError(t, rec, http.StatusConflict, codeVaultInsufficientBalance)
}

func TestContributeAndQueryFlow(t *testing.T) {
	alice := testAddr(0x0a)
	env := newTestEnv(t, config.Alloc{Address: bech(alice), Base: "100"})

	rec := env.post(t, rpcBody(t, 1, "vault_contribute", map[string]string{"benefactor": bech(alice), "amount": "60"}), true)
	var pending pendingResult
	decodeResult(t, rec, &pending)
	if pending.Pending != "60" || pending.Total != "60" {
		t.Fatalf("unexpected pending result: %+v", pending)
	}

	rec = env.post(t, rpcBody(t, 2, "bene_getBalance", bech(alice)), false)
	var balance balanceResult
	decodeResult(t, rec, &balance)
	if balance.BalanceBase != "40" {
		t.Fatalf("expected balance 40 after contribution, got %s", balance.BalanceBase)
	}

	rec = env.post(t, rpcBody(t, 3, "vault_getPending", map[string]string{"benefactor": bech(alice)}), false)
	decodeResult(t, rec, &pending)
	if pending.Pending != "60" {
		t.Fatalf("expected pending 60, got %s", pending.Pending)
	}

	rec = env.post(t, rpcBody(t, 4, "vault_getClaimable", map[string]string{"benefactor": bech(alice)}), false)
	var claimable claimableResult
	decodeResult(t, rec, &claimable)
	if claimable.Claimable != "0" || len(claimable.Records) != 0 {
		t.Fatalf("expected nothing claimable before conversion, got %+v", claimable)
	}

	rec = env.post(t, rpcBody(t, 5, "vault_claim", map[string]string{"benefactor": bech(alice)}), false)
	var claim claimResult
	decodeResult(t, rec, &claim)
	if claim.Amount != "0" {
		t.Fatalf("expected zero claim before conversion, got %s", claim.Amount)
	}
}

func TestConvertNothingPending(t *testing.T) {
	caller := testAddr(0x0c)
	env := newTestEnv(t)
	body := rpcBody(t, 1, "vault_convert", map[string]string{"caller": bech(caller)})
	rec := env.post(t, body, false)
	expectRPCError(t, rec, http.StatusConflict, codeVaultNothingPending)
}

func TestRecordFeesUnknownSequence(t *testing.T) {
	env := newTestEnv(t)
	body := rpcBody(t, 1, "vault_recordFees", map[string]interface{}{"sequence": 9, "amount": "5"})
	rec := env.post(t, body, true)
	expectRPCError(t, rec, http.StatusNotFound, codeVaultRecordNotFound)
}

func TestGetRecordNotFound(t *testing.T) {
	env := newTestEnv(t)
	body := rpcBody(t, 1, "vault_getRecord", map[string]interface{}{"sequence": 1})
	rec := env.post(t, body, false)
	expectRPCError(t, rec, http.StatusNotFound, codeVaultRecordNotFound)
}

func TestListRecordsEmpty(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, rpcBody(t, 1, "vault_listRecords"), false)
	var records []recordJSON
	decodeResult(t, rec, &records)
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestGetPositionBeforeConversion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, rpcBody(t, 1, "vault_getPosition"), false)
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if string(result) != "null" {
		t.Fatalf("expected null position, got %s", result)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	alice := testAddr(0x0a)
	env := newTestEnv(t, config.Alloc{Address: bech(alice), Base: "100"})

	rec := env.post(t, rpcBody(t, 1, "vault_pause", map[string]string{"module": "vault"}), true)
	var paused pauseResult
	decodeResult(t, rec, &paused)
	if !paused.Paused["vault"] {
		t.Fatalf("expected vault paused, got %+v", paused)
	}

	body := rpcBody(t, 2, "vault_contribute", map[string]string{"benefactor": bech(alice), "amount": "10"})
	rec = env.post(t, body, true)
	expectRPCError(t, rec, http.StatusServiceUnavailable, codeVaultPaused)

	rec = env.post(t, rpcBody(t, 3, "vault_resume", map[string]string{"module": "vault"}), true)
	decodeResult(t, rec, &paused)
	if paused.Paused["vault"] {
		t.Fatalf("expected vault resumed, got %+v", paused)
	}

	rec = env.post(t, body, true)
	var pending pendingResult
	decodeResult(t, rec, &pending)
	if pending.Pending != "10" {
		t.Fatalf("expected pending 10 after resume, got %s", pending.Pending)
	}
}

func TestPauseUnknownModule(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, rpcBody(t, 1, "vault_pause", map[string]string{"module": "consensus"}), true)
	expectRPCError(t, rec, http.StatusBadRequest, codeInvalidParams)
}

func TestSetRewardConfigRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	params := map[string]string{"base": "5", "perBenefactor": "1", "cap": "10"}
	rec := env.post(t, rpcBody(t, 1, "vault_setRewardConfig", params), true)
	var cfg rewardConfigJSON
	decodeResult(t, rec, &cfg)
	if cfg.Base != "5" || cfg.PerBenefactor != "1" || cfg.Cap != "10" {
		t.Fatalf("unexpected reward config: %+v", cfg)
	}

	rec = env.post(t, rpcBody(t, 2, "vault_getRewardConfig"), false)
	decodeResult(t, rec, &cfg)
	if cfg.Base != "5" || cfg.PerBenefactor != "1" || cfg.Cap != "10" {
		t.Fatalf("reward config did not persist: %+v", cfg)
	}
}

func TestGetPoolReturnsConfiguredKey(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, rpcBody(t, 1, "market_getPool"), false)
	var pool poolResult
	decodeResult(t, rec, &pool)
	if pool.SqrtPriceX96 != market.Q96.String() {
		t.Fatalf("expected boot price %s, got %s", market.Q96.String(), pool.SqrtPriceX96)
	}
	if pool.FeeTier != market.FeeTier030 {
		t.Fatalf("expected fee tier %d, got %d", market.FeeTier030, pool.FeeTier)
	}
	if pool.TickSpacing != 60 {
		t.Fatalf("expected tick spacing 60, got %d", pool.TickSpacing)
	}
	if pool.Liquidity != "0" {
		t.Fatalf("expected empty pool, got liquidity %s", pool.Liquidity)
	}
}

func TestListEventsAfterContribute(t *testing.T) {
	alice := testAddr(0x0a)
	env := newTestEnv(t, config.Alloc{Address: bech(alice), Base: "100"})

	rec := env.post(t, rpcBody(t, 1, "vault_contribute", map[string]string{"benefactor": bech(alice), "amount": "30"}), true)
	if _, rpcErr := decodeRPCResponse(t, rec); rpcErr != nil {
		t.Fatalf("contribute failed: %v", rpcErr)
	}

	rec = env.post(t, rpcBody(t, 2, "vault_listEvents"), false)
	var updates []core.EventUpdate
	decodeResult(t, rec, &updates)
	if len(updates) != 1 {
		t.Fatalf("expected one event, got %d", len(updates))
	}
	if updates[0].Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", updates[0].Sequence)
	}
	if updates[0].Event == nil || updates[0].Event.Type != events.TypeContributionReceived {
		t.Fatalf("unexpected event payload: %+v", updates[0].Event)
	}
}

func TestRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if authErr := env.server.requireAuth(req); authErr == nil {
		t.Fatalf("expected missing header error")
	}

	req.Header.Set("Authorization", "Basic abc")
	if authErr := env.server.requireAuth(req); authErr == nil {
		t.Fatalf("expected bearer scheme error")
	}

	req.Header.Set("Authorization", "Bearer wrong-token")
	if authErr := env.server.requireAuth(req); authErr == nil {
		t.Fatalf("expected invalid credentials error")
	}

	req.Header.Set("Authorization", "Bearer "+testRPCToken)
	if authErr := env.server.requireAuth(req); authErr != nil {
		t.Fatalf("expected auth success, got %s", authErr.Message)
	}
}

func TestRequireAuthWithoutConfiguredToken(t *testing.T) {
	env := newTestEnv(t)
	env.server.authToken = ""
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	authErr := env.server.requireAuth(req)
	if authErr == nil || authErr.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized when no token configured, got %v", authErr)
	}
}

func TestAllowSourceRateLimit(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	for i := 0; i < maxWritesPerWin; i++ {
		if !env.server.allowSource("203.0.113.7", now) {
			t.Fatalf("request %d should not be rate limited", i)
		}
	}
	if env.server.allowSource("203.0.113.7", now) {
		t.Fatalf("expected rate limit after %d writes", maxWritesPerWin)
	}
	if !env.server.allowSource("203.0.113.8", now) {
		t.Fatalf("distinct source should not share the limiter")
	}
	if !env.server.allowSource("203.0.113.7", now.Add(rateLimitWindow+time.Second)) {
		t.Fatalf("window expiry should reset the limiter")
	}
}

func TestClientSourcePrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if source := clientSource(req); source != "203.0.113.9" {
		t.Fatalf("expected forwarded client, got %q", source)
	}

	req.Header.Del("X-Forwarded-For")
	if source := clientSource(req); source != "10.0.0.5" {
		t.Fatalf("expected remote host, got %q", source)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	if status["status"] != "ok" {
		t.Fatalf("unexpected health payload: %v", status)
	}
}

func TestQuoteInvalidAmount(t *testing.T) {
	env := newTestEnv(t)
	body := rpcBody(t, 1, "market_quote", map[string]interface{}{"baseIn": true, "amountIn": "-5"})
	rec := env.post(t, body, false)
	expectRPCError(t, rec, http.StatusBadRequest, codeInvalidParams)
}

func TestRequestBodyLimit(t *testing.T) {
	env := newTestEnv(t)
	oversized := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"vault_getPending","params":[{"benefactor":"%s"}]}`,
		bytes.Repeat([]byte("a"), maxRequestBytes+1))
	rec := env.post(t, oversized, false)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}
