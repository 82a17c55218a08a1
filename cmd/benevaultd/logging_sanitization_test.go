package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"benevault/observability/logging"
)

func TestTokenLogRedactsSensitiveValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{}))

	sensitiveToken := "bearer-secret-0123456789"
	logger.Warn("Rejecting stale credential for test",
		logging.MaskField("token", sensitiveToken),
		slog.String("reason", "unit test"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log payload: %v", err)
	}

	if logging.IsAllowlisted("token") {
		t.Fatalf("token should not be allowlisted for logging: %v", logging.RedactionAllowlist())
	}

	raw := buf.Bytes()
	if bytes.Contains(raw, []byte(sensitiveToken)) {
		t.Fatalf("log output leaked sensitive token: %s", raw)
	}

	value, ok := entry["token"].(string)
	if !ok {
		t.Fatalf("expected string token attribute, got %T", entry["token"])
	}
	if value != logging.RedactedValue {
		t.Fatalf("expected redacted token, got %q", value)
	}
}
