package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivewatch/internal/types"
)

type recordingIngester struct {
	samples []types.SensorSample
	err     func(types.SensorSample) error
}

func (r *recordingIngester) Ingest(_ context.Context, s types.SensorSample) error {
	r.samples = append(r.samples, s)
	if r.err != nil {
		return r.err(s)
	}
	return nil
}

func TestStream_CountsEachOutcome(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp":"2026-05-04T17:00:00Z","latitude":40.7,"longitude":-74,"speed_mps":12,"heading_degrees":-1,"motion_activity":"automotive","activity_confidence":0.9}`,
		``,
		`{"timestamp":`,
		`{"device_id":"car","timestamp":"2026-05-04T17:00:01Z","latitude":91,"longitude":-74,"speed_mps":12,"heading_degrees":-1}`,
	}, "\n")

	ing := &recordingIngester{err: func(s types.SensorSample) error {
		if s.Latitude > 90 {
			return types.NewAppError(types.ErrCodeInvalidCoordinate, "bad latitude", nil)
		}
		return nil
	}}

	stats, err := Stream(context.Background(), strings.NewReader(input), ing, "phone", nil)
	require.NoError(t, err)
	assert.Equal(t, Stats{Lines: 3, Accepted: 1, Dropped: 1, Invalid: 1}, stats)

	require.Len(t, ing.samples, 2)
	assert.Equal(t, "phone", ing.samples[0].DeviceID)
	assert.Equal(t, "car", ing.samples[1].DeviceID)
}

func TestStream_StopsOnEngineFault(t *testing.T) {
	input := `{"timestamp":"2026-05-04T17:00:00Z"}` + "\n" + `{"timestamp":"2026-05-04T17:00:01Z"}`
	fault := errors.New("engine stopped")
	ing := &recordingIngester{err: func(types.SensorSample) error { return fault }}

	stats, err := Stream(context.Background(), strings.NewReader(input), ing, "", nil)
	assert.ErrorIs(t, err, fault)
	assert.Equal(t, 1, stats.Lines)
}

func TestStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ing := &recordingIngester{}
	_, err := Stream(ctx, strings.NewReader(`{"timestamp":"2026-05-04T17:00:00Z"}`), ing, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ing.samples)
}
