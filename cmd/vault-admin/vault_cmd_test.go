package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestVaultCommandArgValidation(t *testing.T) {
	originalCall := vaultRPCCall
	vaultRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		t.Fatalf("unexpected RPC call for method %s", method)
		return nil, nil, nil
	}
	defer func() { vaultRPCCall = originalCall }()

	cases := []struct {
		name       string
		args       []string
		wantStderr string
	}{
		{
			name:       "contribute_missing_benefactor",
			args:       []string{"contribute", "--amount", "50"},
			wantStderr: "Error: --benefactor is required\n",
		},
		{
			name:       "contribute_missing_amount",
			args:       []string{"contribute", "--benefactor", "bene1example"},
			wantStderr: "Error: --amount is required\n",
		},
		{
			name:       "convert_missing_caller",
			args:       []string{"convert"},
			wantStderr: "Error: --caller is required\n",
		},
		{
			name:       "claim_missing_benefactor",
			args:       []string{"claim"},
			wantStderr: "Error: --benefactor is required\n",
		},
		{
			name:       "record_missing_sequence",
			args:       []string{"record"},
			wantStderr: "Error: --sequence is required\n",
		},
		{
			name:       "position_rejects_positional",
			args:       []string{"position", "extra"},
			wantStderr: "Error: unexpected positional arguments\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			stderr := &bytes.Buffer{}
			exit := runVaultCommand(tc.args, stdout, stderr)
			if exit != 1 {
				t.Fatalf("unexpected exit code: got %d, want 1", exit)
			}
			if stdout.Len() != 0 {
				t.Fatalf("expected empty stdout, got %q", stdout.String())
			}
			if got := stderr.String(); got != tc.wantStderr {
				t.Fatalf("stderr mismatch: got %q, want %q", got, tc.wantStderr)
			}
		})
	}
}

func TestVaultCommandUnknownSubcommand(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	exit := runVaultCommand([]string{"bogus"}, stdout, stderr)
	if exit != 1 {
		t.Fatalf("unexpected exit code: %d", exit)
	}
	if !strings.Contains(stderr.String(), "Unknown vault subcommand: bogus") {
		t.Fatalf("expected unknown subcommand message, got %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "vault-admin vault <command>") {
		t.Fatalf("expected usage text, got %q", stderr.String())
	}
}

func TestVaultContributeRPCSuccess(t *testing.T) {
	benefactor := "bene1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	original := vaultRPCCall
	vaultRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		if method != "vault_contribute" {
			t.Fatalf("unexpected method %s", method)
		}
		if !requireAuth {
			t.Fatalf("expected authenticated call")
		}
		want := `{"amount":"50","benefactor":"` + benefactor + `"}`
		if got := paramsJSON(t, params); got != want {
			t.Fatalf("unexpected params: got %s, want %s", got, want)
		}
		return json.RawMessage(`{"pending":"50","total":"50"}`), nil, nil
	}
	defer func() { vaultRPCCall = original }()

	exit := runVaultCommand([]string{"contribute", "--benefactor", benefactor, "--amount", "50"}, stdout, stderr)
	if exit != 0 {
		t.Fatalf("unexpected exit code: %d", exit)
	}
	if stderr.Len() != 0 {
		t.Fatalf("expected empty stderr, got %q", stderr.String())
	}
	if stdout.String() != "{\"pending\":\"50\",\"total\":\"50\"}\n" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestVaultConvertOmitsEmptyMinOut(t *testing.T) {
	caller := "bene1caller"

	t.Run("without_min_out", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		original := vaultRPCCall
		vaultRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
			if method != "vault_convert" {
				t.Fatalf("unexpected method %s", method)
			}
			if requireAuth {
				t.Fatalf("convert should not require auth")
			}
			want := `{"caller":"` + caller + `"}`
			if got := paramsJSON(t, params); got != want {
				t.Fatalf("unexpected params: got %s, want %s", got, want)
			}
			return json.RawMessage(`{"sequence":1}`), nil, nil
		}
		defer func() { vaultRPCCall = original }()

		exit := runVaultCommand([]string{"convert", "--caller", caller}, stdout, stderr)
		if exit != 0 {
			t.Fatalf("unexpected exit code: %d", exit)
		}
	})

	t.Run("with_min_out", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		original := vaultRPCCall
		vaultRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
			want := `{"caller":"` + caller + `","minOut":"90"}`
			if got := paramsJSON(t, params); got != want {
				t.Fatalf("unexpected params: got %s, want %s", got, want)
			}
			return json.RawMessage(`{"sequence":2}`), nil, nil
		}
		defer func() { vaultRPCCall = original }()

		exit := runVaultCommand([]string{"convert", "--caller", caller, "--min-out", "90"}, stdout, stderr)
		if exit != 0 {
			t.Fatalf("unexpected exit code: %d", exit)
		}
	})
}

func TestVaultPendingParamVariants(t *testing.T) {
	t.Run("total_only", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		original := vaultRPCCall
		vaultRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
			if method != "vault_getPending" {
				t.Fatalf("unexpected method %s", method)
			}
			if len(params) != 0 {
				t.Fatalf("expected no params, got %d", len(params))
			}
			return json.RawMessage(`{"total":"120"}`), nil, nil
		}
		defer func() { vaultRPCCall = original }()

		exit := runVaultCommand([]string{"pending"}, stdout, stderr)
		if exit != 0 {
			t.Fatalf("unexpected exit code: %d", exit)
		}
		if stdout.String() != "{\"total\":\"120\"}\n" {
			t.Fatalf("unexpected stdout: %q", stdout.String())
		}
	})

	t.Run("per_benefactor", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		original := vaultRPCCall
		vaultRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
			want := `{"benefactor":"bene1someone"}`
			if got := paramsJSON(t, params); got != want {
				t.Fatalf("unexpected params: got %s, want %s", got, want)
			}
			return json.RawMessage(`{"pending":"40","total":"120"}`), nil, nil
		}
		defer func() { vaultRPCCall = original }()

		exit := runVaultCommand([]string{"pending", "--benefactor", "bene1someone"}, stdout, stderr)
		if exit != 0 {
			t.Fatalf("unexpected exit code: %d", exit)
		}
	})
}

func TestVaultCommandSurfacesRPCError(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	original := vaultRPCCall
	vaultRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: -32073, Message: "nothing_pending"}, nil
	}
	defer func() { vaultRPCCall = original }()

	exit := runVaultCommand([]string{"convert", "--caller", "bene1caller"}, stdout, stderr)
	if exit != 1 {
		t.Fatalf("unexpected exit code: %d", exit)
	}
	if stdout.Len() != 0 {
		t.Fatalf("expected empty stdout, got %q", stdout.String())
	}
	if stderr.String() != "RPC error -32073: nothing_pending\n" {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestVaultEventsSendsPagingParams(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	original := vaultRPCCall
	vaultRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		if method != "vault_listEvents" {
			t.Fatalf("unexpected method %s", method)
		}
		want := `{"fromSequence":7,"limit":25}`
		if got := paramsJSON(t, params); got != want {
			t.Fatalf("unexpected params: got %s, want %s", got, want)
		}
		return json.RawMessage(`[]`), nil, nil
	}
	defer func() { vaultRPCCall = original }()

	exit := runVaultCommand([]string{"events", "--from", "7", "--limit", "25"}, stdout, stderr)
	if exit != 0 {
		t.Fatalf("unexpected exit code: %d", exit)
	}
	if stdout.String() != "[]\n" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}
