package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"benevault/cmd/internal/passphrase"
	"benevault/crypto"
)

const walletPassEnv = "BENEVAULT_WALLET_PASS"

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("BENEVAULT_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		code := runGenerateKey(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "vault":
		code := runVaultCommand(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
	case "admin":
		code := runAdminCommand(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
	case "market":
		code := runMarketCommand(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	var outPath, keystorePath string
	outPath = "wallet.key"
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--out" && i+1 < len(args):
			outPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--out="):
			outPath = strings.TrimPrefix(args[i], "--out=")
		case args[i] == "--keystore" && i+1 < len(args):
			keystorePath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--keystore="):
			keystorePath = strings.TrimPrefix(args[i], "--keystore=")
		default:
			fmt.Fprintf(stderr, "Error: unexpected argument %q\n", args[i])
			return 1
		}
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating key: %v\n", err)
		return 1
	}

	if keystorePath != "" {
		pass, err := passphrase.NewSource(walletPassEnv).Get()
		if err != nil {
			fmt.Fprintf(stderr, "Error resolving passphrase: %v\n", err)
			return 1
		}
		if err := crypto.SaveToKeystore(keystorePath, key, pass); err != nil {
			fmt.Fprintf(stderr, "Error saving keystore: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Generated new key and saved encrypted keystore to %s\n", keystorePath)
	} else {
		if err := os.WriteFile(outPath, key.Bytes(), 0o600); err != nil {
			fmt.Fprintf(stderr, "Error saving key to %s: %v\n", outPath, err)
			return 1
		}
		fmt.Fprintf(stdout, "Generated new key and saved to %s\n", outPath)
	}
	fmt.Fprintf(stdout, "Your public address is: %s\n", key.PubKey().Address().String())
	fmt.Fprintln(stdout, "Store this file securely. It controls the funds held under this address.")
	return 0
}

// --- RPC HELPER FUNCTIONS ---

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type balanceResponse struct {
	Address       string `json:"address"`
	BalanceBase   string `json:"balanceBase"`
	BalanceTarget string `json:"balanceTarget"`
	Nonce         uint64 `json:"nonce"`
}

func getBalance(addr string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"id": 1, "method": "bene_getBalance", "params": []string{addr},
	})

	resp, err := doRPCRequest(payload, false)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result balanceResponse `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		fmt.Println("Error: failed to decode response from node")
		return
	}
	if rpcResp.Error != nil {
		fmt.Printf("Error from node: %s\n", rpcResp.Error.Message)
		return
	}

	account := rpcResp.Result
	fmt.Printf("State for: %s\n", account.Address)
	fmt.Printf("  Base:   %s\n", account.BalanceBase)
	fmt.Printf("  Target: %s\n", account.BalanceTarget)
	fmt.Printf("  Nonce:  %d\n", account.Nonce)
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires BENEVAULT_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

func callNodeRPC(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{"id": 1, "method": method, "params": params}
	body, _ := json.Marshal(payload)
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response from node")
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	if _, err := w.Write(result); err == nil {
		if len(result) == 0 || result[len(result)-1] != '\n' {
			fmt.Fprintln(w)
		}
	}
}

func printUsage() {
	fmt.Println("Usage: vault-admin <command> [arguments]")
	fmt.Println()
	fmt.Println("Global flags:")
	fmt.Println("  --rpc <url>      - Node RPC endpoint (default http://localhost:8080, or RPC_URL)")
	fmt.Println()
	fmt.Println("Privileged commands read the bearer token from BENEVAULT_RPC_TOKEN.")
	fmt.Println("Commands:")
	fmt.Println("  generate-key [--out file] [--keystore file] - Generates a new key")
	fmt.Println("  balance <address>                  - Shows balances and nonce for an address")
	fmt.Println("  vault                              - Contribution, conversion and claim subcommands")
	fmt.Println("  admin                              - Privileged operations (harvest, rewards, pause)")
	fmt.Println("  market                             - Venue pool queries")
}
