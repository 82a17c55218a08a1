package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

type upstreamCall struct {
	Method string
	Params []json.RawMessage
	Auth   string
}

type fakeUpstream struct {
	server  *httptest.Server
	calls   []upstreamCall
	respond func(method string) (int, string)
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	fake := &fakeUpstream{}
	fake.respond = func(string) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{}}`
	}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read upstream body: %v", err)
			return
		}
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode upstream body: %v", err)
			return
		}
		fake.calls = append(fake.calls, upstreamCall{
			Method: req.Method,
			Params: req.Params,
			Auth:   r.Header.Get("Authorization"),
		})
		status, payload := fake.respond(req.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeUpstream) lastCall(t *testing.T) upstreamCall {
	t.Helper()
	if len(f.calls) == 0 {
		t.Fatalf("expected an upstream call")
	}
	return f.calls[len(f.calls)-1]
}

func newTestGateway(t *testing.T, upstream *fakeUpstream) http.Handler {
	t.Helper()
	target, err := url.Parse(upstream.server.URL)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}
	handler, err := New(Config{
		Upstream:      target,
		UpstreamToken: "node-token",
		Timeout:       5 * time.Second,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return handler
}

func TestRecordBridgeForwardsMethod(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.respond = func(string) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"sequence":7,"convertedTotal":"15"}}`
	}
	gateway := newTestGateway(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/records/7", nil)
	res := httptest.NewRecorder()
	gateway.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	call := upstream.lastCall(t)
	if call.Method != "vault_getRecord" {
		t.Fatalf("expected vault_getRecord, got %s", call.Method)
	}
	if call.Auth != "Bearer node-token" {
		t.Fatalf("expected gateway node token upstream, got %q", call.Auth)
	}
	var params struct {
		Sequence uint64 `json:"sequence"`
	}
	if len(call.Params) != 1 {
		t.Fatalf("expected one param, got %d", len(call.Params))
	}
	if err := json.Unmarshal(call.Params[0], &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.Sequence != 7 {
		t.Fatalf("expected sequence 7, got %d", params.Sequence)
	}
	var record struct {
		Sequence       uint64 `json:"sequence"`
		ConvertedTotal string `json:"convertedTotal"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if record.Sequence != 7 || record.ConvertedTotal != "15" {
		t.Fatalf("unexpected record payload: %+v", record)
	}
}

func TestRecordBridgeMirrorsUpstreamStatus(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.respond = func(string) (int, string) {
		return http.StatusNotFound, `{"jsonrpc":"2.0","id":1,"error":{"code":-32076,"message":"record_not_found"}}`
	}
	gateway := newTestGateway(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/records/99", nil)
	res := httptest.NewRecorder()
	gateway.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	var payload struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Error != "record_not_found" || payload.Code != -32076 {
		t.Fatalf("unexpected error payload: %+v", payload)
	}
}

func TestContributeValidatesBody(t *testing.T) {
	upstream := newFakeUpstream(t)
	gateway := newTestGateway(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/v1/vault/contributions", strings.NewReader(`{"benefactor":""}`))
	res := httptest.NewRecorder()
	gateway.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(upstream.calls) != 0 {
		t.Fatalf("invalid body must not reach the node")
	}
}

func TestContributeForwardsBody(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.respond = func(string) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"pending":"10","total":"10"}}`
	}
	gateway := newTestGateway(t, upstream)

	body := `{"benefactor":"bene1q0f9s0c8","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/vault/contributions", strings.NewReader(body))
	res := httptest.NewRecorder()
	gateway.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	call := upstream.lastCall(t)
	if call.Method != "vault_contribute" {
		t.Fatalf("expected vault_contribute, got %s", call.Method)
	}
	var params contributionRequest
	if err := json.Unmarshal(call.Params[0], &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.Benefactor != "bene1q0f9s0c8" || params.Amount != "10" {
		t.Fatalf("unexpected forwarded params: %+v", params)
	}
}

func TestEventsPagination(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.respond = func(string) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":[]}`
	}
	gateway := newTestGateway(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/events?cursor=5&limit=10", nil)
	res := httptest.NewRecorder()
	gateway.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	call := upstream.lastCall(t)
	if call.Method != "vault_listEvents" {
		t.Fatalf("expected vault_listEvents, got %s", call.Method)
	}
	var params struct {
		FromSequence uint64 `json:"fromSequence"`
		Limit        int    `json:"limit"`
	}
	if err := json.Unmarshal(call.Params[0], &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.FromSequence != 5 || params.Limit != 10 {
		t.Fatalf("unexpected pagination params: %+v", params)
	}
}

func TestEventsRejectsBadCursor(t *testing.T) {
	upstream := newFakeUpstream(t)
	gateway := newTestGateway(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/events?cursor=abc", nil)
	res := httptest.NewRecorder()
	gateway.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", res.Code)
	}
}

func TestQuoteBridge(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.respond = func(string) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"amountOut":"42"}}`
	}
	gateway := newTestGateway(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/v1/market/quote", strings.NewReader(`{"baseIn":true,"amountIn":"100"}`))
	res := httptest.NewRecorder()
	gateway.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	call := upstream.lastCall(t)
	if call.Method != "market_quote" {
		t.Fatalf("expected market_quote, got %s", call.Method)
	}
}

func TestUpstreamDownReturnsBadGateway(t *testing.T) {
	upstream := newFakeUpstream(t)
	gateway := newTestGateway(t, upstream)
	upstream.server.Close()

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/pending", nil)
	res := httptest.NewRecorder()
	gateway.ServeHTTP(res, req)

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when node is down, got %d", res.Code)
	}
}

func TestUpstreamFailureLogsRedactParams(t *testing.T) {
	target, err := url.Parse("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("parse target: %v", err)
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	client, err := newRPCClient(target, "node-token", time.Second, logger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	benefactor := "bene1sensitiveaddress"
	_, err = client.Call(context.Background(), "vault_contribute", map[string]string{
		"benefactor": benefactor,
		"amount":     "10",
	})
	if err == nil {
		t.Fatalf("expected transport error")
	}

	logged := buf.String()
	if !strings.Contains(logged, "[REDACTED]") {
		t.Fatalf("expected params to be masked in log output: %s", logged)
	}
	if strings.Contains(logged, benefactor) {
		t.Fatalf("raw request payload leaked into log output: %s", logged)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	upstream := newFakeUpstream(t)
	gateway := newTestGateway(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	gateway.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res = httptest.NewRecorder()
	gateway.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", res.Code)
	}
}
