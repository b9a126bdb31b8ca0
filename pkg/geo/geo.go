// Package geo provides great-circle distance math and radius search
// used for route and trip discovery. All functions are pure; callers
// supply coordinates in IEEE-754 double-precision degrees.
package geo

import (
	"math"
	"sort"
)

// EarthRadiusKm is the mean radius of Earth in kilometers.
const EarthRadiusKm = 6371.0

// AverageSpeedKmph is the assumed average driving speed, used to
// estimate travel time when no mapping provider is configured.
const AverageSpeedKmph = 40.0

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Candidate is an entity considered for a radius search.
type Candidate struct {
	ID    string
	Coord Coordinate
}

// Match is a candidate that passed the radius filter.
type Match struct {
	ID         string  `json:"id"`
	DistanceKm float64 `json:"distance_km"`
}

// ValidLatLon reports whether the pair is a usable WGS-84 coordinate.
func ValidLatLon(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// DistanceKm returns the great-circle distance between two points in
// kilometers, computed with the haversine formula on a spherical Earth.
func DistanceKm(a, b Coordinate) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLng*sinLng

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// EstimateMinutes returns the estimated direct travel time between two
// points in minutes, assuming AverageSpeedKmph.
func EstimateMinutes(a, b Coordinate) float64 {
	return (DistanceKm(a, b) / AverageSpeedKmph) * 60.0
}

// WithinRadius returns the candidates within radiusKm of center, sorted
// ascending by distance. Ties are broken by candidate ID so results are
// deterministic.
func WithinRadius(center Coordinate, candidates []Candidate, radiusKm float64) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, Match{ID: c.ID, DistanceKm: DistanceKm(center, c.Coord)})
	}
	return Rank(matches, radiusKm)
}

// Rank filters matches to those within radiusKm and sorts them ascending
// by distance, ties broken by ID. Callers that compute their own distance
// (for example min over several reference points) use this directly.
func Rank(matches []Match, radiusKm float64) []Match {
	ranked := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.DistanceKm <= radiusKm {
			ranked = append(ranked, m)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].DistanceKm != ranked[j].DistanceKm {
			return ranked[i].DistanceKm < ranked[j].DistanceKm
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked
}

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
