// Package ingest feeds newline-delimited JSON sensor samples into the
// engine from a stream such as standard input or a recorded drive file.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"drivewatch/internal/types"
)

const maxLineBytes = 1 << 20

// Ingester accepts one sample. *engine.Manager implements it.
type Ingester interface {
	Ingest(ctx context.Context, s types.SensorSample) error
}

// Stats counts what a stream produced.
type Stats struct {
	Lines    int `json:"lines"`
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
	Invalid  int `json:"invalid"`
}

// Stream reads one JSON sample per line from r until EOF or ctx is done.
// Lines that do not decode are counted as invalid and logged; samples the
// engine rejects with an *types.AppError are counted as dropped. Any other
// ingest error stops the stream.
func Stream(ctx context.Context, r io.Reader, ing Ingester, defaultDevice string, logger types.Logger) (Stats, error) {
	if logger == nil {
		logger = types.NopLogger{}
	}
	var stats Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		stats.Lines++

		var s types.SensorSample
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			stats.Invalid++
			logger.Warn("Skipping undecodable sample line", "line", stats.Lines, "error", err)
			continue
		}
		if s.DeviceID == "" {
			s.DeviceID = defaultDevice
		}

		err := ing.Ingest(ctx, s)
		var appErr *types.AppError
		switch {
		case err == nil:
			stats.Accepted++
		case errors.As(err, &appErr):
			stats.Dropped++
		default:
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("failed to read sample stream: %w", err)
	}
	return stats, nil
}
