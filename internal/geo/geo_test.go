package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivewatch/internal/types"
)

func TestDistance_KnownPairs(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Position
		want float64
		tol  float64
	}{
		{"same point", types.Position{Latitude: 40.7128, Longitude: -74.0060}, types.Position{Latitude: 40.7128, Longitude: -74.0060}, 0, 1e-9},
		{"one degree of latitude", types.Position{Latitude: 0, Longitude: 0}, types.Position{Latitude: 1, Longitude: 0}, 111195, 5},
		{"manhattan block scale", types.Position{Latitude: 40.7580, Longitude: -73.9855}, types.Position{Latitude: 40.7590, Longitude: -73.9855}, 111.2, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tt.tol)
		})
	}
}

func TestDistance_Symmetric(t *testing.T) {
	a := types.Position{Latitude: 37.7749, Longitude: -122.4194}
	b := types.Position{Latitude: 37.7790, Longitude: -122.4120}
	ab, err := Distance(a, b)
	require.NoError(t, err)
	ba, err := Distance(b, a)
	require.NoError(t, err)
	assert.InDelta(t, ab, ba, 1e-9)
}

func TestDistance_InvalidCoordinate(t *testing.T) {
	tests := []struct {
		name string
		p    types.Position
	}{
		{"NaN latitude", types.Position{Latitude: math.NaN(), Longitude: 0}},
		{"latitude too large", types.Position{Latitude: 91, Longitude: 0}},
		{"longitude too small", types.Position{Latitude: 0, Longitude: -181}},
		{"infinite longitude", types.Position{Latitude: 0, Longitude: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Distance(tt.p, types.Position{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCoordinate))

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeInvalidCoordinate, appErr.Code)

			_, err = Bearing(types.Position{}, tt.p)
			assert.ErrorIs(t, err, ErrInvalidCoordinate)
		})
	}
}

func TestBearing_CardinalDirections(t *testing.T) {
	origin := types.Position{Latitude: 40, Longitude: -75}
	tests := []struct {
		name string
		to   types.Position
		want float64
	}{
		{"north", types.Position{Latitude: 40.01, Longitude: -75}, 0},
		{"east", types.Position{Latitude: 40, Longitude: -74.99}, 90},
		{"south", types.Position{Latitude: 39.99, Longitude: -75}, 180},
		{"west", types.Position{Latitude: 40, Longitude: -75.01}, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bearing(origin, tt.to)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.01)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}
}

func TestHeadingDelta(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{0, 0, 0},
		{10, 350, 20},
		{350, 10, 20},
		{90, 270, 180},
		{0, 180, 180},
		{45, 90, 45},
		{-90, 270, 0},
		{720, 0, 0},
	}
	for _, tt := range tests {
		got := HeadingDelta(tt.a, tt.b)
		assert.InDelta(t, tt.want, got, 1e-9, "HeadingDelta(%v, %v)", tt.a, tt.b)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 180.0)
	}
}

func TestOffset_RoundTrip(t *testing.T) {
	origin := types.Position{Latitude: 51.5007, Longitude: -0.1246}
	for _, brg := range []float64{0, 45, 90, 180, 270} {
		p := Offset(origin, brg, 150)
		d, err := Distance(origin, p)
		require.NoError(t, err)
		assert.InDelta(t, 150, d, 0.01)

		b, err := Bearing(origin, p)
		require.NoError(t, err)
		assert.InDelta(t, 0, HeadingDelta(b, brg), 0.01)
	}
}

func TestParseHeadingCode(t *testing.T) {
	tests := []struct {
		code    string
		want    float64
		wantErr bool
	}{
		{"N", 0, false},
		{"NE", 45, false},
		{"E", 90, false},
		{"EB", 90, false},
		{"sb", 180, false},
		{" SW ", 225, false},
		{"WB", 270, false},
		{"NW", 315, false},
		{"NWB", 315, false},
		{"X", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := ParseHeadingCode(tt.code)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeadingCode(t *testing.T) {
	assert.Equal(t, "N", HeadingCode(359))
	assert.Equal(t, "E", HeadingCode(80))
	assert.Equal(t, "SW", HeadingCode(225))
}

func TestReading_UnknownSafeComparisons(t *testing.T) {
	unknown := Reading(types.UnknownReading)
	assert.False(t, unknown.Known())
	assert.False(t, unknown.Below(5))
	assert.False(t, unknown.Above(5))
	assert.True(t, unknown.WithinOr(90, 10, true))
	assert.False(t, unknown.WithinOr(90, 10, false))

	r := Reading(3)
	assert.True(t, r.Known())
	assert.True(t, r.Below(5))
	assert.False(t, r.Above(5))

	h := Reading(85)
	assert.True(t, h.WithinOr(90, 10, false))
	assert.False(t, h.WithinOr(180, 10, true))
}
