// Package geo provides the pure geospatial math used by the decision engine:
// haversine distance, initial bearing, and heading difference. All functions
// are deterministic and side-effect free.
package geo

import (
	"errors"
	"fmt"
	"math"

	"drivewatch/internal/types"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371008.8

// ErrInvalidCoordinate is wrapped by every error this package returns.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

func validate(p types.Position) error {
	if err := types.ValidatePosition(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCoordinate, err)
	}
	return nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b types.Position) (float64, error) {
	if err := validate(a); err != nil {
		return 0, err
	}
	if err := validate(b); err != nil {
		return 0, err
	}
	return haversine(a, b), nil
}

func haversine(a, b types.Position) float64 {
	if a == b {
		return 0
	}
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing returns the initial bearing from one point to another in degrees,
// normalized to [0, 360) with 0 = north and 90 = east.
func Bearing(from, to types.Position) (float64, error) {
	if err := validate(from); err != nil {
		return 0, err
	}
	if err := validate(to); err != nil {
		return 0, err
	}
	return bearing(from, to), nil
}

func bearing(from, to types.Position) float64 {
	lat1 := radians(from.Latitude)
	lat2 := radians(to.Latitude)
	dLon := radians(to.Longitude - from.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeHeading(degrees(math.Atan2(y, x)))
}

// NormalizeHeading folds any angle into [0, 360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// HeadingDelta returns the smallest absolute angular difference between two
// headings, in [0, 180].
func HeadingDelta(a, b float64) float64 {
	d := math.Abs(NormalizeHeading(a) - NormalizeHeading(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Offset returns the point reached by travelling distanceMeters from p on the
// given bearing. Used to build fixtures and to size spatial buckets.
func Offset(p types.Position, bearingDeg, distanceMeters float64) types.Position {
	lat1 := radians(p.Latitude)
	lon1 := radians(p.Longitude)
	brg := radians(bearingDeg)
	ang := distanceMeters / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(math.Sin(brg)*math.Sin(ang)*math.Cos(lat1), math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))
	return types.Position{
		Latitude:  degrees(lat2),
		Longitude: math.Mod(degrees(lon2)+540, 360) - 180,
	}
}
