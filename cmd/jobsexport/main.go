package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sessionscribe/sessionscribe/internal/export"
	"github.com/sessionscribe/sessionscribe/internal/ledger"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dbPath = flag.String("db", "jobs.db", "path to the job ledger database")
		out    = flag.String("o", "jobs.xlsx", "output XLSX file path")
	)
	flag.Parse()

	// Opening the ledger would create an empty database; an export tool
	// should not do that.
	if _, err := os.Stat(*dbPath); err != nil {
		printError("Error: ledger database %s: %v\n", *dbPath, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	led, err := ledger.Open(ctx, *dbPath, logger)
	if err != nil {
		printError("Error: open ledger %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer func() { _ = led.Close() }()

	data, err := export.NewExporter(led, logger).JobsXLSX(ctx)
	if err != nil {
		printError("Error: export jobs: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		printError("Error: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}
