// Package main implements the replay-gate CLI: it scans one or more
// telemetry logs, prints the aggregate counts and rates as JSON, and fails
// when a rate breaches its release ceiling.
//
// Usage:
//
//	go run ./cmd/tools/replay-gate [--strict] [--max-miss-rate=0.25] telemetry.jsonl [more.jsonl.zst ...]
//
// Exit codes: 0 pass, 2 gate failure, 1 missing or unreadable input.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"

	"drivewatch/internal/replay"
	"drivewatch/internal/types"
)

// Exit codes.
const (
	exitPass      = 0
	exitInput     = 1
	exitGateFails = 2
)

type report struct {
	*replay.Summary
	Gate       replay.Gate        `json:"gate"`
	Passed     bool               `json:"passed"`
	Violations []replay.Violation `json:"violations,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	gate := replay.DefaultGate()

	fs := flag.NewFlagSet("replay-gate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&gate.Strict, "strict", false, "also fail on skipped lines or an empty log")
	fs.Float64Var(&gate.MaxMissRate, "max-miss-rate", gate.MaxMissRate, "ceiling for parkingMissRate")
	fs.Float64Var(&gate.MaxUnwindRate, "max-unwind-rate", gate.MaxUnwindRate, "ceiling for unwindRate")
	fs.Float64Var(&gate.MaxFallbackRate, "max-fallback-rate", gate.MaxFallbackRate, "ceiling for fallbackPerAlert")
	if err := fs.Parse(args); err != nil {
		return exitInput
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil)).With("tool", "replay-gate")
	if fs.NArg() == 0 {
		logger.Error("at least one telemetry log is required")
		fs.Usage()
		return exitInput
	}

	summary, err := replay.Analyze(context.Background(), fs.Args()...)
	if err != nil {
		logger.Error("analysis failed", "error", err)
		return exitInput
	}
	logger.Info("logs analyzed", "files", len(summary.Files), "lines", summary.Counts.Lines, "skipped", summary.Counts.Skipped)

	violations := gate.Evaluate(summary)
	out := report{Summary: summary, Gate: gate, Passed: len(violations) == 0, Violations: violations}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("writing summary failed", "error", err)
		return exitInput
	}

	if err := gate.Check(summary); err != nil {
		msg := err.Error()
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		logger.Error("release gate failed", "violations", msg)
		return exitGateFails
	}
	return exitPass
}
