package cameras

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"drivewatch/internal/fileio"
	"drivewatch/internal/geo"
	"drivewatch/internal/types"
)

// Zone is a circular area of interest.
type Zone struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusM   float64 `json:"radius_m"`
}

// Contains reports whether p lies within the zone.
func (z Zone) Contains(p types.Position) bool {
	d, err := geo.Distance(p, types.Position{Latitude: z.Latitude, Longitude: z.Longitude})
	return err == nil && d <= z.RadiusM
}

// Zones groups the known false-positive hotspots (drive-thrus, car washes,
// long signal queues) and explicitly mapped intersections.
type Zones struct {
	Hotspots      []Zone `json:"hotspots"`
	Intersections []Zone `json:"intersections"`
}

// InHotspot reports whether p is inside any hotspot zone.
func (z *Zones) InHotspot(p types.Position) bool {
	return anyContains(z.Hotspots, p)
}

// InIntersection reports whether p is inside any intersection zone.
func (z *Zones) InIntersection(p types.Position) bool {
	return anyContains(z.Intersections, p)
}

func anyContains(zs []Zone, p types.Position) bool {
	for _, zone := range zs {
		if zone.Contains(p) {
			return true
		}
	}
	return false
}

// LoadZones reads a zones JSON file. An empty path or a missing file yields
// an empty zone set; malformed content is an error.
func LoadZones(path string) (*Zones, error) {
	if path == "" {
		return &Zones{}, nil
	}
	r, err := fileio.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Zones{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open zones file: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}

	var z Zones
	if err := json.Unmarshal(data, &z); err != nil {
		return nil, types.NewAppError(types.ErrCodeInvalidCameraDataset, "malformed zones file", err)
	}
	for _, zone := range append(append([]Zone{}, z.Hotspots...), z.Intersections...) {
		if zone.RadiusM <= 0 {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidCameraDataset,
				"zone radius must be positive", nil, map[string]any{"zone": zone.Name})
		}
		if err := types.ValidatePosition(types.Position{Latitude: zone.Latitude, Longitude: zone.Longitude}); err != nil {
			return nil, err
		}
	}
	return &z, nil
}
