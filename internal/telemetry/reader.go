package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"drivewatch/internal/fileio"
	"drivewatch/internal/types"
)

// maxLineBytes bounds a single log line. Longer lines are skipped.
const maxLineBytes = 1 << 20

// Line is the subset of a telemetry record the offline tools read.
type Line struct {
	Time           time.Time       `json:"time"`
	Level          string          `json:"level"`
	Msg            string          `json:"msg"`
	Event          types.EventName `json:"event"`
	SessionID      string          `json:"session_id"`
	Reason         string          `json:"reason,omitempty"`
	Mode           string          `json:"mode,omitempty"`
	Tier           string          `json:"tier,omitempty"`
	Source         string          `json:"source,omitempty"`
	CameraID       string          `json:"camera_id,omitempty"`
	Score          float64         `json:"score,omitempty"`
	DwellSeconds   float64         `json:"dwell_seconds,omitempty"`
	IsIntersection bool            `json:"is_at_intersection,omitempty"`
	Reversed       bool            `json:"reversed,omitempty"`
}

// ScanStats counts what a scan saw.
type ScanStats struct {
	Lines   int `json:"lines"`
	Skipped int `json:"skipped"`
}

// Scan decodes every line of r and calls fn for each parsed event. Blank
// lines are ignored. Lines that carry neither an event name nor a known
// marker, and lines longer than maxLineBytes, are counted as skipped and
// never abort the scan. An error from fn stops the scan and is returned.
func Scan(r io.Reader, fn func(Line) error) (ScanStats, error) {
	var stats ScanStats
	br := bufio.NewReaderSize(r, 64*1024)

	for {
		raw, tooLong, err := readLine(br)
		if err != nil && err != io.EOF {
			return stats, fmt.Errorf("failed to read telemetry log: %w", err)
		}
		text := strings.TrimSpace(string(raw))
		if tooLong || text != "" {
			stats.Lines++
			line, ok := Line{}, false
			if !tooLong {
				line, ok = parseLine(text)
			}
			if !ok {
				stats.Skipped++
			} else if ferr := fn(line); ferr != nil {
				return stats, ferr
			}
		}
		if err == io.EOF {
			return stats, nil
		}
	}
}

// readLine returns the next line without its terminator. A line over
// maxLineBytes is drained and reported as tooLong with no content.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		var chunk []byte
		chunk, err = br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineBytes+1 {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, tooLong, err
	}
}

// ScanFile opens path (plain or ".zst") and scans it.
func ScanFile(path string, fn func(Line) error) (ScanStats, error) {
	f, err := fileio.Open(path)
	if err != nil {
		return ScanStats{}, err
	}
	defer f.Close()
	return Scan(f, fn)
}

func parseLine(raw string) (Line, bool) {
	var line Line
	if err := json.Unmarshal([]byte(raw), &line); err != nil {
		// Plain-text lines from older builds only carry a marker.
		line = Line{Msg: raw}
	}
	if line.Event == "" {
		line.Event = eventFromMarker(line.Msg)
	}
	if line.Event == "" {
		return Line{}, false
	}
	if line.Event == types.EventParkingConfirmed && line.Source == "" {
		line.Source = sourceFromMarker(line.Msg)
	}
	return line, true
}

// eventFromMarker recovers the event of a line written before structured
// event names existed.
func eventFromMarker(msg string) types.EventName {
	switch {
	case strings.Contains(msg, MarkerDrivingStarted):
		return types.EventDrivingStarted
	case strings.Contains(msg, MarkerParkingConfirmed):
		return types.EventParkingConfirmed
	case strings.Contains(msg, MarkerCameraAlert):
		return types.EventCameraAlertFired
	default:
		return ""
	}
}

func sourceFromMarker(msg string) string {
	_, rest, ok := strings.Cut(msg, MarkerParkingConfirmed)
	if !ok {
		return ""
	}
	rest, _, _ = strings.Cut(rest, ")")
	return strings.TrimSpace(rest)
}
