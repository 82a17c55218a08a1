package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

var vaultRPCCall = callNodeRPC

func runVaultCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, vaultUsage())
		return 1
	}
	switch args[0] {
	case "contribute":
		return runVaultContribute(args[1:], stdout, stderr)
	case "convert":
		return runVaultConvert(args[1:], stdout, stderr)
	case "claim":
		return runVaultClaim(args[1:], stdout, stderr)
	case "pending":
		return runVaultPending(args[1:], stdout, stderr)
	case "claimable":
		return runVaultClaimable(args[1:], stdout, stderr)
	case "record":
		return runVaultRecord(args[1:], stdout, stderr)
	case "records":
		return runVaultRecords(args[1:], stdout, stderr)
	case "position":
		return runVaultPosition(args[1:], stdout, stderr)
	case "events":
		return runVaultEvents(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown vault subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, vaultUsage())
		return 1
	}
}

func runVaultContribute(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vault contribute", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var benefactor, amount string
	fs.StringVar(&benefactor, "benefactor", "", "bech32 address funding the contribution")
	fs.StringVar(&amount, "amount", "", "contribution amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	trimmedBenefactor := strings.TrimSpace(benefactor)
	if trimmedBenefactor == "" {
		fmt.Fprintln(stderr, "Error: --benefactor is required")
		return 1
	}
	trimmedAmount := strings.TrimSpace(amount)
	if trimmedAmount == "" {
		fmt.Fprintln(stderr, "Error: --amount is required")
		return 1
	}
	params := []interface{}{map[string]string{
		"benefactor": trimmedBenefactor,
		"amount":     trimmedAmount,
	}}
	result, rpcErr, err := vaultRPCCall("vault_contribute", params, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runVaultConvert(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vault convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var caller, minOut string
	fs.StringVar(&caller, "caller", "", "bech32 address receiving the caller incentive")
	fs.StringVar(&minOut, "min-out", "", "minimum acceptable swap output (optional)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	trimmedCaller := strings.TrimSpace(caller)
	if trimmedCaller == "" {
		fmt.Fprintln(stderr, "Error: --caller is required")
		return 1
	}
	param := map[string]string{"caller": trimmedCaller}
	if trimmed := strings.TrimSpace(minOut); trimmed != "" {
		param["minOut"] = trimmed
	}
	result, rpcErr, err := vaultRPCCall("vault_convert", []interface{}{param}, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runVaultClaim(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vault claim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var benefactor string
	fs.StringVar(&benefactor, "benefactor", "", "bech32 address claiming accrued fees")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	trimmed := strings.TrimSpace(benefactor)
	if trimmed == "" {
		fmt.Fprintln(stderr, "Error: --benefactor is required")
		return 1
	}
	params := []interface{}{map[string]string{"benefactor": trimmed}}
	result, rpcErr, err := vaultRPCCall("vault_claim", params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runVaultPending(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vault pending", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var benefactor string
	fs.StringVar(&benefactor, "benefactor", "", "bech32 address to inspect (optional)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	params := []interface{}{}
	if trimmed := strings.TrimSpace(benefactor); trimmed != "" {
		params = append(params, map[string]string{"benefactor": trimmed})
	}
	result, rpcErr, err := vaultRPCCall("vault_getPending", params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runVaultClaimable(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vault claimable", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var benefactor string
	fs.StringVar(&benefactor, "benefactor", "", "bech32 address to inspect")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	trimmed := strings.TrimSpace(benefactor)
	if trimmed == "" {
		fmt.Fprintln(stderr, "Error: --benefactor is required")
		return 1
	}
	params := []interface{}{map[string]string{"benefactor": trimmed}}
	result, rpcErr, err := vaultRPCCall("vault_getClaimable", params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runVaultRecord(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vault record", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var sequence uint64
	fs.Uint64Var(&sequence, "sequence", 0, "conversion record sequence")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if sequence == 0 {
		fmt.Fprintln(stderr, "Error: --sequence is required")
		return 1
	}
	params := []interface{}{map[string]uint64{"sequence": sequence}}
	result, rpcErr, err := vaultRPCCall("vault_getRecord", params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runVaultRecords(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vault records", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var from uint64
	var limit int
	fs.Uint64Var(&from, "from", 0, "list records with sequence greater than this")
	fs.IntVar(&limit, "limit", 0, "maximum records to return (0 uses the node default)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	params := []interface{}{map[string]interface{}{
		"fromSequence": from,
		"limit":        limit,
	}}
	result, rpcErr, err := vaultRPCCall("vault_listRecords", params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runVaultPosition(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	result, rpcErr, err := vaultRPCCall("vault_getPosition", []interface{}{}, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runVaultEvents(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vault events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var from uint64
	var limit int
	fs.Uint64Var(&from, "from", 0, "list events with sequence greater than this")
	fs.IntVar(&limit, "limit", 0, "maximum events to return (0 uses the node default)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	params := []interface{}{map[string]interface{}{
		"fromSequence": from,
		"limit":        limit,
	}}
	result, rpcErr, err := vaultRPCCall("vault_listEvents", params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func vaultUsage() string {
	return strings.TrimSpace(`Usage:
  vault-admin vault <command> [flags]

Commands:
  contribute  Move base funds into the pending pool (privileged)
  convert     Convert all pending contributions into the shared position
  claim       Pay out a benefactor's accrued fee share
  pending     Show pending totals, optionally for one benefactor
  claimable   Show what a claim would pay a benefactor right now
  record      Fetch one conversion record by sequence
  records     List conversion records
  position    Show the vault's venue position
  events      List vault events from the feed
`)
}
