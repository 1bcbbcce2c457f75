// Package velocity provides the distance and speed math behind network
// movement features.
package velocity

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371.0

// kmPerDegree is the length of one degree of latitude.
const kmPerDegree = 111.0

// Point is a located sighting.
type Point struct {
	Lat         float64
	Lon         float64
	TimestampMs int64
}

// CellKey identifies a grid cell used to snap GPS jitter.
type CellKey struct {
	X, Y int64
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Cell returns the grid cell containing (lat, lon) for a cell size in meters.
func Cell(lat, lon, cellMeters float64) CellKey {
	size := cellMeters / 1000 / kmPerDegree
	return CellKey{
		X: int64(math.Floor(lon / size)),
		Y: int64(math.Floor(lat / size)),
	}
}

// CellRepresentatives keeps the first point seen in each grid cell,
// ordered by cell key so results do not depend on input order.
func CellRepresentatives(points []Point, cellMeters float64) []Point {
	seen := make(map[CellKey]Point, len(points))
	for _, p := range points {
		k := Cell(p.Lat, p.Lon, cellMeters)
		if _, ok := seen[k]; !ok {
			seen[k] = p
		}
	}

	keys := make([]CellKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].X < keys[j].X
	})

	out := make([]Point, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

// distinctPositions removes exact duplicate coordinates.
func distinctPositions(points []Point) []Point {
	type pos struct{ lat, lon float64 }
	seen := make(map[pos]struct{}, len(points))
	out := make([]Point, 0, len(points))
	for _, p := range points {
		k := pos{p.Lat, p.Lon}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

// MaxPairwiseKm returns the largest distance between any two points.
// Up to maxPoints distinct positions are compared exactly; above that the
// comparison runs over one representative per grid cell, which bounds the
// error by the cell diagonal.
func MaxPairwiseKm(points []Point, cellMeters float64, maxPoints int) float64 {
	candidates := distinctPositions(points)
	if maxPoints > 0 && len(candidates) > maxPoints {
		candidates = CellRepresentatives(candidates, cellMeters)
	}

	var best float64
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			d := HaversineKm(candidates[i].Lat, candidates[i].Lon, candidates[j].Lat, candidates[j].Lon)
			if d > best {
				best = d
			}
		}
	}
	return best
}

// SpeedKmh converts a distance over an elapsed time to km/h.
// Zero or negative elapsed time yields 0.
func SpeedKmh(distanceKm float64, elapsedMs int64) float64 {
	if elapsedMs <= 0 || distanceKm <= 0 {
		return 0
	}
	hours := float64(elapsedMs) / float64(3600*1000)
	return distanceKm / hours
}
