package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

var adminRPCCall = callNodeRPC

func runAdminCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	switch args[0] {
	case "harvest":
		return runAdminHarvest(args[1:], stdout, stderr)
	case "record-fees":
		return runAdminRecordFees(args[1:], stdout, stderr)
	case "set-reward":
		return runAdminSetReward(args[1:], stdout, stderr)
	case "reward-config":
		return runAdminRewardConfig(args[1:], stdout, stderr)
	case "pause":
		return runAdminPauseFlip(args[1:], stdout, stderr, "vault_pause")
	case "resume":
		return runAdminPauseFlip(args[1:], stdout, stderr, "vault_resume")
	default:
		fmt.Fprintf(stderr, "Unknown admin subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
}

func runAdminHarvest(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	result, rpcErr, err := adminRPCCall("vault_harvest", []interface{}{}, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runAdminRecordFees(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("admin record-fees", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var sequence uint64
	var amount string
	fs.Uint64Var(&sequence, "sequence", 0, "conversion record sequence to credit")
	fs.StringVar(&amount, "amount", "", "fee amount in base units")
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
	trimmedAmount := strings.TrimSpace(amount)
	if trimmedAmount == "" {
		fmt.Fprintln(stderr, "Error: --amount is required")
		return 1
	}
	params := []interface{}{map[string]interface{}{
		"sequence": sequence,
		"amount":   trimmedAmount,
	}}
	result, rpcErr, err := adminRPCCall("vault_recordFees", params, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runAdminSetReward(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("admin set-reward", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var base, perBenefactor, capAmount string
	fs.StringVar(&base, "base", "", "flat incentive per conversion in base units")
	fs.StringVar(&perBenefactor, "per-benefactor", "", "additional incentive per participating benefactor")
	fs.StringVar(&capAmount, "cap", "", "maximum total incentive per conversion")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	trimmedBase := strings.TrimSpace(base)
	if trimmedBase == "" {
		fmt.Fprintln(stderr, "Error: --base is required")
		return 1
	}
	param := map[string]string{"base": trimmedBase}
	if trimmed := strings.TrimSpace(perBenefactor); trimmed != "" {
		param["perBenefactor"] = trimmed
	}
	if trimmed := strings.TrimSpace(capAmount); trimmed != "" {
		param["cap"] = trimmed
	}
	result, rpcErr, err := adminRPCCall("vault_setRewardConfig", []interface{}{param}, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runAdminRewardConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	result, rpcErr, err := adminRPCCall("vault_getRewardConfig", []interface{}{}, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runAdminPauseFlip(args []string, stdout, stderr io.Writer, method string) int {
	fs := flag.NewFlagSet("admin pause", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var module string
	fs.StringVar(&module, "module", "", "module to pause or resume")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	trimmed := strings.TrimSpace(module)
	if trimmed == "" {
		fmt.Fprintln(stderr, "Error: --module is required")
		return 1
	}
	params := []interface{}{map[string]string{"module": trimmed}}
	result, rpcErr, err := adminRPCCall(method, params, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func adminUsage() string {
	return strings.TrimSpace(`Usage:
  vault-admin admin <command> [flags]

Commands:
  harvest        Collect position fees from the venue and attribute them
  record-fees    Credit externally collected fees to a conversion record
  set-reward     Replace the conversion caller incentive parameters
  reward-config  Show the current caller incentive parameters
  pause          Halt a module's mutating operations
  resume         Lift a pause set earlier
`)
}
