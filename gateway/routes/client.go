package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"benevault/observability/logging"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
	ID      int64         `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	status  int
}

// rpcClient wraps the node's JSON-RPC endpoint. The gateway authenticates
// upstream with its own node token; client credentials never leave the
// gateway.
type rpcClient struct {
	target  *url.URL
	token   string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
	nextID  atomic.Int64
}

func newRPCClient(target *url.URL, token string, timeout time.Duration, logger *slog.Logger) (*rpcClient, error) {
	if target == nil {
		return nil, fmt.Errorf("nil upstream target")
	}
	cloned := *target
	if strings.TrimSpace(cloned.Scheme) == "" {
		return nil, fmt.Errorf("upstream target scheme required")
	}
	if strings.TrimSpace(cloned.Host) == "" {
		return nil, fmt.Errorf("upstream target host required")
	}
	if strings.TrimSpace(cloned.Path) == "" {
		cloned.Path = "/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &rpcClient{
		target: &cloned,
		token:  strings.TrimSpace(token),
		client: &http.Client{
			Timeout:   timeout + 5*time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: timeout,
		logger:  logger.With("component", "gateway.upstream"),
	}, nil
}

// Call performs one JSON-RPC round trip. Transport failures are returned as
// errors; RPC-level errors travel inside the response together with the
// upstream HTTP status.
func (c *rpcClient) Call(ctx context.Context, method string, params ...interface{}) (*rpcResponse, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("encode rpc request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("upstream call failed",
			"method", method,
			logging.MaskField("params", string(payload)),
			"error", err,
		)
		return nil, fmt.Errorf("perform rpc request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rpc response: %w", err)
	}
	out := &rpcResponse{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	out.status = resp.StatusCode
	return out, nil
}
