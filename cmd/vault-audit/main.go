package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"benevault/storage"
)

func main() {
	dataDir := flag.String("data", "./bene-data", "Path to the node data directory")
	outPath := flag.String("out", "", "Write the JSON report to this file instead of stdout")
	exportDir := flag.String("export", "", "Directory for the CSV and parquet record exports")
	strict := flag.Bool("strict", false, "Exit with status 1 when any finding is reported")
	flag.Parse()

	db, err := storage.NewLevelDBReadOnly(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	report, err := runAudit(db, auditOptions{ExportDir: *exportDir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit failed: %v\n", err)
		os.Exit(1)
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		os.Exit(1)
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, append(output, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println(string(output))
	}

	if *strict && len(report.Findings) > 0 {
		fmt.Fprintf(os.Stderr, "audit reported %d finding(s)\n", len(report.Findings))
		os.Exit(1)
	}
}
