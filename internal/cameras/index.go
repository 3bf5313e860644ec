// Package cameras provides the read-only camera reference index: a spatial
// lookup over the enforcement-camera dataset, plus the hotspot and
// intersection zones the parking guards consult.
//
// An Index is built once at startup and never mutated, so it is safe to share
// across every per-device engine without locking.
package cameras

import (
	"math"
	"sort"

	"drivewatch/internal/geo"
	"drivewatch/internal/types"
)

// bucketDegrees is the grid cell size. 0.01° is ~1.1 km of latitude, which
// keeps a max-radius query to a handful of cells at city latitudes.
const bucketDegrees = 0.01

// metersPerDegreeLat approximates one degree of latitude on the mean sphere.
const metersPerDegreeLat = geo.EarthRadiusMeters * math.Pi / 180

var lonBuckets = int(math.Round(360 / bucketDegrees))

type cell struct {
	lat, lon int
}

func cellFor(p types.Position) cell {
	return cell{
		lat: int(math.Floor(p.Latitude / bucketDegrees)),
		lon: wrapLon(int(math.Floor((p.Longitude + 180) / bucketDegrees))),
	}
}

func wrapLon(i int) int {
	i %= lonBuckets
	if i < 0 {
		i += lonBuckets
	}
	return i
}

// Index is a grid-bucketed camera lookup.
type Index struct {
	cells map[cell][]types.CameraDef
	count int
	zones *Zones
}

// NewIndex builds an index over defs. Cameras with invalid coordinates are
// skipped. zones may be nil.
func NewIndex(defs []types.CameraDef, zones *Zones) *Index {
	ix := &Index{
		cells: make(map[cell][]types.CameraDef),
		zones: zones,
	}
	for _, d := range defs {
		if types.ValidatePosition(d.Position()) != nil {
			continue
		}
		c := cellFor(d.Position())
		ix.cells[c] = append(ix.cells[c], d)
		ix.count++
	}
	return ix
}

// Empty returns an index with no cameras and no zones. The engine runs in
// zero-alert mode against it.
func Empty() *Index {
	return NewIndex(nil, nil)
}

// Len returns the number of indexed cameras.
func (ix *Index) Len() int { return ix.count }

// Zones returns the attached zone set, never nil.
func (ix *Index) Zones() *Zones {
	if ix.zones == nil {
		return &Zones{}
	}
	return ix.zones
}

// Near returns the cameras within radiusMeters of p, nearest first. An
// invalid position or non-positive radius yields no cameras.
func (ix *Index) Near(p types.Position, radiusMeters float64) []types.CameraDef {
	if ix.count == 0 || radiusMeters <= 0 || types.ValidatePosition(p) != nil {
		return nil
	}

	type hit struct {
		def  types.CameraDef
		dist float64
	}
	var hits []hit
	consider := func(defs []types.CameraDef) {
		for _, d := range defs {
			dist, err := geo.Distance(p, d.Position())
			if err != nil || dist > radiusMeters {
				continue
			}
			hits = append(hits, hit{def: d, dist: dist})
		}
	}

	latSpan, lonSpan := spans(p, radiusMeters)
	if (2*latSpan+1)*(2*lonSpan+1) >= len(ix.cells) {
		for _, defs := range ix.cells {
			consider(defs)
		}
	} else {
		center := cellFor(p)
		for dl := -latSpan; dl <= latSpan; dl++ {
			for dn := -lonSpan; dn <= lonSpan; dn++ {
				consider(ix.cells[cell{lat: center.lat + dl, lon: wrapLon(center.lon + dn)}])
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].def.ID < hits[j].def.ID
	})

	out := make([]types.CameraDef, len(hits))
	for i, h := range hits {
		out[i] = h.def
	}
	return out
}

// spans returns how many cells either side of the centre cell a query of
// radius meters must scan.
func spans(p types.Position, radius float64) (int, int) {
	latDeg := radius / metersPerDegreeLat
	latSpan := int(math.Ceil(latDeg/bucketDegrees)) + 1

	cosLat := math.Cos(p.Latitude * math.Pi / 180)
	if cosLat < 1e-6 {
		return latSpan, lonBuckets
	}
	lonSpan := int(math.Ceil(latDeg/cosLat/bucketDegrees)) + 1
	if lonSpan > lonBuckets/2 {
		lonSpan = lonBuckets / 2
	}
	return latSpan, lonSpan
}

// IsIntersection reports whether p is within radiusMeters of a red-light
// camera or inside a declared intersection zone.
func (ix *Index) IsIntersection(p types.Position, radiusMeters float64) bool {
	for _, d := range ix.Near(p, radiusMeters) {
		if d.Type == types.CameraRedLight {
			return true
		}
	}
	return ix.Zones().InIntersection(p)
}

// InHotspot reports whether p falls inside a known false-positive hotspot.
func (ix *Index) InHotspot(p types.Position) bool {
	return ix.Zones().InHotspot(p)
}
