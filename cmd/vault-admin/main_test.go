package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w
	resultCh := make(chan struct {
		data string
		err  error
	})
	go func() {
		data, err := io.ReadAll(r)
		resultCh <- struct {
			data string
			err  error
		}{data: string(data), err: err}
	}()
	fn()
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	os.Stdout = old
	result := <-resultCh
	if err := r.Close(); err != nil {
		t.Fatalf("failed to close reader: %v", err)
	}
	if result.err != nil {
		t.Fatalf("failed to read stdout: %v", result.err)
	}
	return result.data
}

func paramsJSON(t *testing.T, params []interface{}) string {
	t.Helper()
	if len(params) != 1 {
		t.Fatalf("expected single parameter object, got %d", len(params))
	}
	data, err := json.Marshal(params[0])
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}
	return string(data)
}

func TestApplyGlobalFlags(t *testing.T) {
	originalEndpoint := rpcEndpoint
	defer func() { rpcEndpoint = originalEndpoint }()

	args, err := applyGlobalFlags([]string{"--rpc", "http://node:9999", "vault", "position"})
	if err != nil {
		t.Fatalf("applyGlobalFlags returned error: %v", err)
	}
	if rpcEndpoint != "http://node:9999" {
		t.Fatalf("unexpected endpoint: %q", rpcEndpoint)
	}
	if len(args) != 2 || args[0] != "vault" || args[1] != "position" {
		t.Fatalf("unexpected remaining args: %v", args)
	}

	args, err = applyGlobalFlags([]string{"--rpc=http://other:8080", "balance"})
	if err != nil {
		t.Fatalf("applyGlobalFlags returned error: %v", err)
	}
	if rpcEndpoint != "http://other:8080" {
		t.Fatalf("unexpected endpoint: %q", rpcEndpoint)
	}
	if len(args) != 1 || args[0] != "balance" {
		t.Fatalf("unexpected remaining args: %v", args)
	}

	if _, err := applyGlobalFlags([]string{"--rpc"}); err == nil {
		t.Fatal("expected error for missing --rpc value")
	}
}

func TestGetBalanceDialErrorIncludesEndpointAndCause(t *testing.T) {
	originalEndpoint := rpcEndpoint
	rpcEndpoint = "http://test.invalid"
	defer func() { rpcEndpoint = originalEndpoint }()

	originalClient := http.DefaultClient
	http.DefaultClient = &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp 127.0.0.1:8080: connect: connection refused (test stub)")
	})}
	defer func() { http.DefaultClient = originalClient }()

	output := captureStdout(t, func() {
		getBalance("bene1testaddress")
	})

	if !strings.Contains(output, "POST http://test.invalid") {
		t.Fatalf("expected output to include endpoint, got %q", output)
	}
	if !strings.Contains(output, "connection refused (test stub)") {
		t.Fatalf("expected output to include underlying error, got %q", output)
	}
}
