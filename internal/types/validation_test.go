package types

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePosition(t *testing.T) {
	tests := []struct {
		name    string
		pos     Position
		wantErr bool
	}{
		{"midtown", Position{40.7527, -73.9772}, false},
		{"null island", Position{0, 0}, false},
		{"north pole", Position{90, 0}, false},
		{"antimeridian west", Position{0, -180}, false},
		{"antimeridian east", Position{0, 180}, false},
		{"latitude too high", Position{90.0001, 0}, true},
		{"latitude too low", Position{-91, 0}, true},
		{"longitude too high", Position{0, 181}, true},
		{"longitude too low", Position{0, -180.5}, true},
		{"NaN latitude", Position{math.NaN(), 0}, true},
		{"infinite longitude", Position{0, math.Inf(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePosition(tt.pos)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var appErr *AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, ErrCodeInvalidCoordinate, appErr.Code)
			assert.NotEmpty(t, appErr.Details)
		})
	}
}

func validSample() SensorSample {
	return SensorSample{
		DeviceID:           "phone",
		Timestamp:          time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC),
		Latitude:           40.7527,
		Longitude:          -73.9772,
		HeadingDegrees:     90,
		SpeedMPS:           8,
		MotionActivity:     ActivityAutomotive,
		ActivityConfidence: 0.9,
	}
}

func TestValidateSample(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SensorSample)
		want   ErrorCode
	}{
		{"valid", func(*SensorSample) {}, ""},
		{"unknown heading and speed", func(s *SensorSample) {
			s.HeadingDegrees = UnknownReading
			s.SpeedMPS = UnknownReading
		}, ""},
		{"heading 360", func(s *SensorSample) { s.HeadingDegrees = 360 }, ""},
		{"zero confidence", func(s *SensorSample) { s.ActivityConfidence = 0 }, ""},
		{"missing timestamp", func(s *SensorSample) { s.Timestamp = time.Time{} }, ErrCodeMissingField},
		{"bad latitude", func(s *SensorSample) { s.Latitude = 120 }, ErrCodeInvalidCoordinate},
		{"negative heading", func(s *SensorSample) { s.HeadingDegrees = -5 }, ErrCodeInvalidSample},
		{"heading over 360", func(s *SensorSample) { s.HeadingDegrees = 361 }, ErrCodeInvalidSample},
		{"NaN heading", func(s *SensorSample) { s.HeadingDegrees = math.NaN() }, ErrCodeInvalidSample},
		{"negative speed", func(s *SensorSample) { s.SpeedMPS = -2 }, ErrCodeInvalidSample},
		{"infinite speed", func(s *SensorSample) { s.SpeedMPS = math.Inf(1) }, ErrCodeInvalidSample},
		{"confidence above one", func(s *SensorSample) { s.ActivityConfidence = 1.2 }, ErrCodeInvalidSample},
		{"NaN confidence", func(s *SensorSample) { s.ActivityConfidence = math.NaN() }, ErrCodeInvalidSample},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSample()
			tt.mutate(&s)
			err := ValidateSample(s)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			assert.Equal(t, tt.want, appErr.Code)
		})
	}
}

func TestSensorSample_Helpers(t *testing.T) {
	s := validSample()
	assert.True(t, s.HeadingKnown())
	assert.True(t, s.SpeedKnown())
	assert.True(t, s.ConfidentActivity(ActivityAutomotive, 0.9))
	assert.False(t, s.ConfidentActivity(ActivityAutomotive, 0.95))
	assert.False(t, s.ConfidentActivity(ActivityStationary, 0.1))

	s.HeadingDegrees, s.SpeedMPS = UnknownReading, UnknownReading
	assert.False(t, s.HeadingKnown())
	assert.False(t, s.SpeedKnown())
	assert.Equal(t, Position{40.7527, -73.9772}, s.Position())
}

func TestParseMotionActivity(t *testing.T) {
	assert.Equal(t, ActivityAutomotive, ParseMotionActivity(" Automotive "))
	assert.Equal(t, ActivityStationary, ParseMotionActivity("stationary"))
	assert.Equal(t, ActivityUnknown, ParseMotionActivity("cycling"))
	assert.Equal(t, ActivityUnknown, ParseMotionActivity(""))
}
