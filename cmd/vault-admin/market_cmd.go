package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

var marketRPCCall = callNodeRPC

func runMarketCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, marketUsage())
		return 1
	}
	switch args[0] {
	case "pool":
		return runMarketPool(args[1:], stdout, stderr)
	case "quote":
		return runMarketQuote(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown market subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, marketUsage())
		return 1
	}
}

func runMarketPool(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	result, rpcErr, err := marketRPCCall("market_getPool", []interface{}{}, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runMarketQuote(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("market quote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var amount string
	var targetIn bool
	fs.StringVar(&amount, "amount", "", "exact input amount in base units")
	fs.BoolVar(&targetIn, "target-in", false, "quote selling the target asset instead of the base currency")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		fmt.Fprintln(stderr, "Error: --amount is required")
		return 1
	}
	params := []interface{}{map[string]interface{}{
		"baseIn":   !targetIn,
		"amountIn": trimmed,
	}}
	result, rpcErr, err := marketRPCCall("market_quote", params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func marketUsage() string {
	return strings.TrimSpace(`Usage:
  vault-admin market <command> [flags]

Commands:
  pool   Show the venue pool state
  quote  Price an exact-input swap without executing it
`)
}
