// Package main implements the auto-tune CLI. It analyzes telemetry logs and
// prints a proposed threshold file together with the observed metrics and
// the adjustments that justify it. The proposal is for human review; the
// current threshold file is never modified.
//
// Usage:
//
//	go run ./cmd/tools/auto-tune --thresholds=thresholds.json telemetry.jsonl
//	go run ./cmd/tools/auto-tune --out=proposal.json telemetry.jsonl.zst
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"drivewatch/internal/replay"
	"drivewatch/internal/thresholds"
	"drivewatch/internal/tuner"
	"drivewatch/internal/types"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, types.RealClock{}))
}

func run(args []string, stdout, stderr io.Writer, clock types.Clock) int {
	fs := flag.NewFlagSet("auto-tune", flag.ContinueOnError)
	fs.SetOutput(stderr)
	thresholdsPath := fs.String("thresholds", "", "current threshold file (default: built-in defaults)")
	outPath := fs.String("out", "", "write the proposal here instead of standard output")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil)).With("tool", "auto-tune")
	if fs.NArg() == 0 {
		logger.Error("at least one telemetry log is required")
		fs.Usage()
		return 1
	}
	if *outPath != "" {
		if samePath(*outPath, *thresholdsPath) {
			logger.Error("refusing to overwrite the current threshold file", "path", *thresholdsPath)
			return 1
		}
		for _, in := range fs.Args() {
			if samePath(*outPath, in) {
				logger.Error("refusing to overwrite an input telemetry log", "path", in)
				return 1
			}
		}
	}
	for _, in := range fs.Args() {
		if samePath(*thresholdsPath, in) {
			logger.Error("threshold file is also given as a telemetry log", "path", in)
			return 1
		}
	}

	base := thresholds.Defaults()
	if *thresholdsPath != "" {
		loaded, err := thresholds.Load(*thresholdsPath)
		if err != nil {
			logger.Error("loading thresholds failed", "error", err)
			return 1
		}
		base = *loaded
	}

	summary, err := replay.Analyze(context.Background(), fs.Args()...)
	if err != nil {
		logger.Error("analysis failed", "error", err)
		return 1
	}

	proposal, err := tuner.New(tuner.DefaultPolicy(), clock).Propose(base, summary, strings.Join(fs.Args(), ","))
	if err != nil {
		logger.Error("proposal failed", "error", err)
		return 1
	}

	body, err := json.MarshalIndent(proposal, "", "  ")
	if err != nil {
		logger.Error("encoding proposal failed", "error", err)
		return 1
	}
	body = append(body, '\n')

	if *outPath == "" {
		_, _ = stdout.Write(body)
		return 0
	}
	if err := os.WriteFile(*outPath, body, 0o644); err != nil {
		logger.Error("writing proposal failed", "error", err)
		return 1
	}
	logger.Info("wrote proposal", "adjustments", len(proposal.Adjustments), "path", *outPath)
	return 0
}

// samePath reports whether a and b name the same file. Existing files are
// compared by identity so links and relative spellings match.
func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if ai, err := os.Stat(a); err == nil {
		if bi, err := os.Stat(b); err == nil {
			return os.SameFile(ai, bi)
		}
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
