// Package replay scans telemetry logs offline and computes the quality rates
// the release gate and the threshold tuner work from.
package replay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"drivewatch/internal/parking"
	"drivewatch/internal/telemetry"
	"drivewatch/internal/types"
)

// FileConcurrencyLimit bounds how many logs are scanned at once.
const FileConcurrencyLimit = 4

// Counts are raw event tallies across every scanned log.
type Counts struct {
	Lines   int `json:"lines"`
	Skipped int `json:"skippedLines"`

	DrivingStarted        int `json:"drivingStarted"`
	StopCandidatesOpened  int `json:"stopCandidatesOpened"`
	StopCandidatesUnwound int `json:"stopCandidatesUnwound"`
	CandidatesReady       int `json:"candidatesReady"`
	FinalizationCancelled int `json:"finalizationCancelled"`
	HotspotBlocked        int `json:"hotspotBlocked"`
	LockoutBlocked        int `json:"lockoutBlocked"`
	ParkingConfirmed      int `json:"parkingConfirmed"`
	// Reconfirmations are confirmations of a drive already confirmed once
	// and then unwound.
	Reconfirmations       int `json:"reconfirmations"`
	FallbackConfirmations int `json:"fallbackConfirmations"`
	PostConfirmUnwound    int `json:"postConfirmUnwound"`
	SessionTimeouts       int `json:"sessionTimeouts"`
	SamplesDropped        int `json:"samplesDropped"`

	CameraAlerts        int `json:"cameraAlerts"`
	CameraAlertsHigh    int `json:"cameraAlertsHigh"`
	CameraSuppressedLow int `json:"cameraSuppressedLow"`
	CameraRejected      int `json:"cameraRejected"`
	CameraDelivered     int `json:"cameraDelivered"`
	CameraFallbacks     int `json:"cameraFallbacks"`
	CameraUndelivered   int `json:"cameraUndelivered"`

	CancelReasons map[string]int `json:"cancelReasons,omitempty"`
	RejectReasons map[string]int `json:"rejectReasons,omitempty"`
}

func addAll(dst *map[string]int, src map[string]int) {
	for k, v := range src {
		if *dst == nil {
			*dst = make(map[string]int)
		}
		(*dst)[k] += v
	}
}

func bump(m *map[string]int, key string) {
	if *m == nil {
		*m = make(map[string]int)
	}
	(*m)[key]++
}

func (c *Counts) add(o Counts) {
	c.Lines += o.Lines
	c.Skipped += o.Skipped
	c.DrivingStarted += o.DrivingStarted
	c.StopCandidatesOpened += o.StopCandidatesOpened
	c.StopCandidatesUnwound += o.StopCandidatesUnwound
	c.CandidatesReady += o.CandidatesReady
	c.FinalizationCancelled += o.FinalizationCancelled
	c.HotspotBlocked += o.HotspotBlocked
	c.LockoutBlocked += o.LockoutBlocked
	c.ParkingConfirmed += o.ParkingConfirmed
	c.Reconfirmations += o.Reconfirmations
	c.FallbackConfirmations += o.FallbackConfirmations
	c.PostConfirmUnwound += o.PostConfirmUnwound
	c.SessionTimeouts += o.SessionTimeouts
	c.SamplesDropped += o.SamplesDropped
	c.CameraAlerts += o.CameraAlerts
	c.CameraAlertsHigh += o.CameraAlertsHigh
	c.CameraSuppressedLow += o.CameraSuppressedLow
	c.CameraRejected += o.CameraRejected
	c.CameraDelivered += o.CameraDelivered
	c.CameraFallbacks += o.CameraFallbacks
	c.CameraUndelivered += o.CameraUndelivered
	addAll(&c.CancelReasons, o.CancelReasons)
	addAll(&c.RejectReasons, o.RejectReasons)
}

// DwellStats summarizes confirmation dwell times in seconds.
type DwellStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
}

func dwellStats(xs []float64) DwellStats {
	if len(xs) == 0 {
		return DwellStats{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return DwellStats{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.9, stat.Empirical, sorted, nil),
	}
}

// Summary is the analyzer output.
type Summary struct {
	Files  []string `json:"files"`
	Counts Counts   `json:"counts"`

	ParkingMissRate  float64 `json:"parkingMissRate"`
	UnwindRate       float64 `json:"unwindRate"`
	FallbackPerAlert float64 `json:"fallbackPerAlert"`
	// SuppressedPerFired is low-tier suppressions per fired alert.
	SuppressedPerFired float64 `json:"suppressedPerFired"`

	ConfirmedDwell DwellStats `json:"confirmedDwell"`
	ReversedDwell  DwellStats `json:"reversedDwell"`
}

// ratio divides with a zero denominator defined as zero.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Summarize derives the rates from counts and dwell samples. A drive counts
// as served once however often it re-confirms. Confirmations whose drive
// started before the scanned logs can still push served past started, so
// the miss count floors at zero.
func Summarize(files []string, c Counts, confirmedDwell, reversedDwell []float64) *Summary {
	miss := c.DrivingStarted - (c.ParkingConfirmed - c.Reconfirmations)
	if miss < 0 {
		miss = 0
	}
	return &Summary{
		Files:              files,
		Counts:             c,
		ParkingMissRate:    ratio(miss, c.DrivingStarted),
		UnwindRate:         ratio(c.PostConfirmUnwound, c.ParkingConfirmed),
		FallbackPerAlert:   ratio(c.CameraFallbacks, c.CameraAlerts),
		SuppressedPerFired: ratio(c.CameraSuppressedLow, c.CameraAlerts),
		ConfirmedDwell:     dwellStats(confirmedDwell),
		ReversedDwell:      dwellStats(reversedDwell),
	}
}

// accumulator folds lines from one file.
type accumulator struct {
	counts    Counts
	confirmed []float64
	reversed  []float64
	// unwound holds sessions whose last confirmation was unwound.
	unwound map[string]bool
}

func (a *accumulator) observe(l telemetry.Line) error {
	c := &a.counts
	switch l.Event {
	case types.EventDrivingStarted:
		c.DrivingStarted++
		delete(a.unwound, l.SessionID)
	case types.EventStopCandidateOpened:
		c.StopCandidatesOpened++
	case types.EventStopCandidateUnwound:
		c.StopCandidatesUnwound++
	case types.EventParkingCandidateReady:
		c.CandidatesReady++
	case types.EventParkingFinalizationCanceled:
		c.FinalizationCancelled++
		bump(&c.CancelReasons, l.Reason)
		switch l.Reason {
		case string(parking.GuardHotspot):
			c.HotspotBlocked++
		case string(parking.GuardLockout):
			c.LockoutBlocked++
		}
	case types.EventParkingConfirmed:
		c.ParkingConfirmed++
		if a.unwound[l.SessionID] {
			c.Reconfirmations++
			delete(a.unwound, l.SessionID)
		}
		if l.Source == string(types.SourceGPSUnknownFallback) {
			c.FallbackConfirmations++
		}
		if l.DwellSeconds > 0 {
			a.confirmed = append(a.confirmed, l.DwellSeconds)
		}
	case types.EventParkingPostConfirmUnwound:
		c.PostConfirmUnwound++
		if l.SessionID != "" {
			if a.unwound == nil {
				a.unwound = make(map[string]bool)
			}
			a.unwound[l.SessionID] = true
		}
		if l.DwellSeconds > 0 {
			a.reversed = append(a.reversed, l.DwellSeconds)
		}
	case types.EventSessionTimeout:
		c.SessionTimeouts++
	case types.EventSampleDropped:
		c.SamplesDropped++
	case types.EventCameraAlertFired:
		c.CameraAlerts++
		if l.Tier == string(types.TierHigh) {
			c.CameraAlertsHigh++
		}
	case types.EventCameraAlertSuppressed:
		c.CameraSuppressedLow++
	case types.EventCameraAlertRejected:
		c.CameraRejected++
		bump(&c.RejectReasons, l.Reason)
	case types.EventCameraAlertDelivered:
		switch types.DeliveryMode(l.Mode) {
		case types.DeliveryPrimary:
			c.CameraDelivered++
		case types.DeliveryFallbackAudio:
			c.CameraDelivered++
			c.CameraFallbacks++
		case types.DeliverySuppressed:
			c.CameraUndelivered++
		}
	}
	return nil
}

// Analyze scans every path concurrently and returns the merged summary. A
// path that cannot be opened fails the whole analysis; malformed lines are
// only counted.
func Analyze(ctx context.Context, paths ...string) (*Summary, error) {
	if len(paths) == 0 {
		return nil, types.NewAppError(types.ErrCodeMissingField, "no telemetry logs given", nil)
	}

	var (
		mu        sync.Mutex
		total     Counts
		confirmed []float64
		reversed  []float64
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(FileConcurrencyLimit)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			var acc accumulator
			stats, err := telemetry.ScanFile(path, acc.observe)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", path, err)
			}
			acc.counts.Lines = stats.Lines
			acc.counts.Skipped = stats.Skipped

			mu.Lock()
			total.add(acc.counts)
			confirmed = append(confirmed, acc.confirmed...)
			reversed = append(reversed, acc.reversed...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Summarize(append([]string(nil), paths...), total, confirmed, reversed), nil
}
