package types

import (
	"fmt"
	"math"
)

// Coordinate bounds.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// ValidatePosition rejects NaN, infinite, and out-of-range coordinates with
// an ErrCodeInvalidCoordinate AppError.
func ValidatePosition(p Position) error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) || p.Latitude < MinLat || p.Latitude > MaxLat {
		return NewAppErrorWithDetails(ErrCodeInvalidCoordinate,
			fmt.Sprintf("latitude %v outside [%v, %v]", p.Latitude, MinLat, MaxLat), nil,
			map[string]any{"latitude": p.Latitude})
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) || p.Longitude < MinLon || p.Longitude > MaxLon {
		return NewAppErrorWithDetails(ErrCodeInvalidCoordinate,
			fmt.Sprintf("longitude %v outside [%v, %v]", p.Longitude, MinLon, MaxLon), nil,
			map[string]any{"longitude": p.Longitude})
	}
	return nil
}

// ValidateSample checks the parts of a sample the engine cannot tolerate.
// Unknown heading/speed (-1) are valid; other negative or NaN readings are not.
func ValidateSample(s SensorSample) error {
	if s.Timestamp.IsZero() {
		return NewAppError(ErrCodeMissingField, "sample timestamp is required", nil)
	}
	if err := ValidatePosition(s.Position()); err != nil {
		return err
	}
	if math.IsNaN(s.HeadingDegrees) || (s.HeadingDegrees < 0 && s.HeadingDegrees != UnknownReading) || s.HeadingDegrees > 360 {
		return NewAppError(ErrCodeInvalidSample, fmt.Sprintf("heading %v outside [0, 360] and not unknown", s.HeadingDegrees), nil)
	}
	if math.IsNaN(s.SpeedMPS) || math.IsInf(s.SpeedMPS, 0) || (s.SpeedMPS < 0 && s.SpeedMPS != UnknownReading) {
		return NewAppError(ErrCodeInvalidSample, fmt.Sprintf("speed %v is negative and not unknown", s.SpeedMPS), nil)
	}
	if math.IsNaN(s.ActivityConfidence) || s.ActivityConfidence < 0 || s.ActivityConfidence > 1 {
		return NewAppError(ErrCodeInvalidSample, fmt.Sprintf("activity confidence %v outside [0, 1]", s.ActivityConfidence), nil)
	}
	return nil
}
