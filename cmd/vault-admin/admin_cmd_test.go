package main

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestAdminCommandArgValidation(t *testing.T) {
	originalCall := adminRPCCall
	adminRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		t.Fatalf("unexpected RPC call for method %s", method)
		return nil, nil, nil
	}
	defer func() { adminRPCCall = originalCall }()

	cases := []struct {
		name       string
		args       []string
		wantStderr string
	}{
		{
			name:       "record_fees_missing_sequence",
			args:       []string{"record-fees", "--amount", "30"},
			wantStderr: "Error: --sequence is required\n",
		},
		{
			name:       "record_fees_missing_amount",
			args:       []string{"record-fees", "--sequence", "1"},
			wantStderr: "Error: --amount is required\n",
		},
		{
			name:       "set_reward_missing_base",
			args:       []string{"set-reward"},
			wantStderr: "Error: --base is required\n",
		},
		{
			name:       "pause_missing_module",
			args:       []string{"pause"},
			wantStderr: "Error: --module is required\n",
		},
		{
			name:       "harvest_rejects_positional",
			args:       []string{"harvest", "extra"},
			wantStderr: "Error: unexpected positional arguments\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			stderr := &bytes.Buffer{}
			exit := runAdminCommand(tc.args, stdout, stderr)
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

func TestAdminHarvestRequiresAuth(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	original := adminRPCCall
	adminRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		if method != "vault_harvest" {
			t.Fatalf("unexpected method %s", method)
		}
		if !requireAuth {
			t.Fatalf("expected authenticated call")
		}
		if len(params) != 0 {
			t.Fatalf("expected no params, got %d", len(params))
		}
		return json.RawMessage(`{"harvested":"75"}`), nil, nil
	}
	defer func() { adminRPCCall = original }()

	exit := runAdminCommand([]string{"harvest"}, stdout, stderr)
	if exit != 0 {
		t.Fatalf("unexpected exit code: %d", exit)
	}
	if stdout.String() != "{\"harvested\":\"75\"}\n" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestAdminRecordFeesParams(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	original := adminRPCCall
	adminRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		if method != "vault_recordFees" {
			t.Fatalf("unexpected method %s", method)
		}
		if !requireAuth {
			t.Fatalf("expected authenticated call")
		}
		want := `{"amount":"30","sequence":4}`
		if got := paramsJSON(t, params); got != want {
			t.Fatalf("unexpected params: got %s, want %s", got, want)
		}
		return json.RawMessage(`{"sequence":4,"accumulatedFees":"30"}`), nil, nil
	}
	defer func() { adminRPCCall = original }()

	exit := runAdminCommand([]string{"record-fees", "--sequence", "4", "--amount", "30"}, stdout, stderr)
	if exit != 0 {
		t.Fatalf("unexpected exit code: %d", exit)
	}
}

func TestAdminSetRewardOmitsEmptyFields(t *testing.T) {
	t.Run("base_only", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		original := adminRPCCall
		adminRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
			if method != "vault_setRewardConfig" {
				t.Fatalf("unexpected method %s", method)
			}
			want := `{"base":"10"}`
			if got := paramsJSON(t, params); got != want {
				t.Fatalf("unexpected params: got %s, want %s", got, want)
			}
			return json.RawMessage(`{"base":"10","perBenefactor":"0","cap":"10"}`), nil, nil
		}
		defer func() { adminRPCCall = original }()

		exit := runAdminCommand([]string{"set-reward", "--base", "10"}, stdout, stderr)
		if exit != 0 {
			t.Fatalf("unexpected exit code: %d", exit)
		}
	})

	t.Run("all_fields", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		original := adminRPCCall
		adminRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
			want := `{"base":"10","cap":"50","perBenefactor":"2"}`
			if got := paramsJSON(t, params); got != want {
				t.Fatalf("unexpected params: got %s, want %s", got, want)
			}
			return json.RawMessage(`{"base":"10","perBenefactor":"2","cap":"50"}`), nil, nil
		}
		defer func() { adminRPCCall = original }()

		exit := runAdminCommand([]string{"set-reward", "--base", "10", "--per-benefactor", "2", "--cap", "50"}, stdout, stderr)
		if exit != 0 {
			t.Fatalf("unexpected exit code: %d", exit)
		}
	})
}

func TestAdminPauseFlipMethods(t *testing.T) {
	cases := []struct {
		sub    string
		method string
	}{
		{sub: "pause", method: "vault_pause"},
		{sub: "resume", method: "vault_resume"},
	}

	for _, tc := range cases {
		t.Run(tc.sub, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			stderr := &bytes.Buffer{}
			original := adminRPCCall
			adminRPCCall = func(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
				if method != tc.method {
					t.Fatalf("unexpected method %s, want %s", method, tc.method)
				}
				if !requireAuth {
					t.Fatalf("expected authenticated call")
				}
				want := `{"module":"vault"}`
				if got := paramsJSON(t, params); got != want {
					t.Fatalf("unexpected params: got %s, want %s", got, want)
				}
				return json.RawMessage(`{"paused":{}}`), nil, nil
			}
			defer func() { adminRPCCall = original }()

			exit := runAdminCommand([]string{tc.sub, "--module", "vault"}, stdout, stderr)
			if exit != 0 {
				t.Fatalf("unexpected exit code: %d", exit)
			}
		})
	}
}
