package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"benevault/core"
	"benevault/observability"
)

const (
	jsonRPCVersion   = "2.0"
	maxRequestBytes  = 1 << 20 // 1 MiB
	rateLimitWindow  = time.Minute
	maxWritesPerWin  = 60
	readHeaderWindow = 5 * time.Second
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the node over JSON-RPC plus the event websocket and the
// Prometheus scrape endpoint.
type Server struct {
	node      *core.Node
	authToken string
	logger    *slog.Logger

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
}

// NewServer wires a server over the node. An empty authToken disables every
// authenticated method rather than leaving them open.
func NewServer(node *core.Node, authToken string) *Server {
	return &Server{
		node:         node,
		authToken:    strings.TrimSpace(authToken),
		logger:       slog.Default().With("component", "rpc"),
		rateLimiters: make(map[string]*rateLimiter),
	}
}

// Handler returns the full HTTP surface of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("serving JSON-RPC", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderWindow,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusRecorder captures the HTTP status written by a handler so the
// dispatch loop can report request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handle is the main request handler that routes to specific method handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	w = recorder
	w.Header().Set("Content-Type", "application/json")
	start := time.Now()
	method := "unknown"
	defer func() {
		code := 0
		if recorder.status != http.StatusOK {
			code = recorder.status
		}
		observability.RPCMetrics().Observe(method, code, time.Since(start))
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	method = req.Method

	switch req.Method {
	case "vault_contribute":
		s.handleMutation(w, r, req, true, s.handleVaultContribute)
	case "vault_convert":
		s.handleMutation(w, r, req, false, s.handleVaultConvert)
	case "vault_claim":
		s.handleMutation(w, r, req, false, s.handleVaultClaim)
	case "vault_harvest":
		s.handleMutation(w, r, req, true, s.handleVaultHarvest)
	case "vault_recordFees":
		s.handleMutation(w, r, req, true, s.handleVaultRecordFees)
	case "vault_setRewardConfig":
		s.handleMutation(w, r, req, true, s.handleVaultSetRewardConfig)
	case "vault_pause":
		s.handleMutation(w, r, req, true, s.handleVaultPause)
	case "vault_resume":
		s.handleMutation(w, r, req, true, s.handleVaultResume)
	case "vault_getPending":
		s.handleVaultGetPending(w, r, req)
	case "vault_getRecord":
		s.handleVaultGetRecord(w, r, req)
	case "vault_listRecords":
		s.handleVaultListRecords(w, r, req)
	case "vault_getClaimable":
		s.handleVaultGetClaimable(w, r, req)
	case "vault_getPosition":
		s.handleVaultGetPosition(w, r, req)
	case "vault_getRewardConfig":
		s.handleVaultGetRewardConfig(w, r, req)
	case "vault_listEvents":
		s.handleVaultListEvents(w, r, req)
	case "bene_getBalance":
		s.handleGetBalance(w, r, req)
	case "market_getPool":
		s.handleMarketGetPool(w, r, req)
	case "market_quote":
		s.handleMarketQuote(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

// handleMutation applies the rate limit and, when required, bearer auth
// before running a state-changing handler.
func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest, authed bool, next handlerFunc) {
	if !s.allowSource(clientSource(r), time.Now()) {
		observability.RPCMetrics().RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return
	}
	if authed {
		if authErr := s.requireAuth(r); authErr != nil {
			observability.RPCMetrics().RecordThrottle("unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.rateLimiters[source]
	if !ok {
		limiter = &rateLimiter{windowStart: now}
		s.rateLimiters[source] = limiter
	}
	if now.Sub(limiter.windowStart) >= rateLimitWindow {
		limiter.windowStart = now
		limiter.count = 0
	}
	if limiter.count >= maxWritesPerWin {
		return false
	}
	limiter.count++
	return true
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
