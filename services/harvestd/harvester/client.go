package harvester

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"benevault/core/types"
)

// Node RPC error codes the loop reacts to.
const (
	codeNoPosition   = -32077
	codeModulePaused = -32079
)

// RPCError carries a JSON-RPC error envelope returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e == nil {
		return "rpc error"
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Skippable reports whether the error means the vault simply has nothing to
// harvest right now (no position yet, or the module is paused).
func Skippable(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == codeNoPosition || rpcErr.Code == codeModulePaused
}

// EventUpdate mirrors one entry of the node event feed.
type EventUpdate struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Client is a minimal JSON-RPC client for the vault node.
type Client struct {
	endpoint string
	token    string
	client   *http.Client
	nextID   atomic.Int64
}

// NewClient builds a client for the supplied endpoint. The bearer token is
// attached to every call; the node ignores it on read methods.
func NewClient(endpoint, token string, timeout time.Duration) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("node endpoint required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: trimmed,
		token:    strings.TrimSpace(token),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Harvest triggers one fee harvest on the node and returns the collected
// base-denominated amount.
func (c *Client) Harvest(ctx context.Context) (*big.Int, error) {
	var result struct {
		Harvested string `json:"harvested"`
	}
	if err := c.call(ctx, "vault_harvest", nil, &result); err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(result.Harvested), 10)
	if !ok {
		return nil, fmt.Errorf("invalid harvested amount %q", result.Harvested)
	}
	return amount, nil
}

// Events pages the node event feed strictly after the supplied cursor.
func (c *Client) Events(ctx context.Context, fromSequence uint64, limit int) ([]EventUpdate, error) {
	params := []interface{}{map[string]interface{}{
		"fromSequence": fromSequence,
		"limit":        limit,
	}}
	var updates []EventUpdate
	if err := c.call(ctx, "vault_listEvents", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
