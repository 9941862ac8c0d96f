// Package geo provides the pure geometry calculations used by the trip
// lifecycle. Kept free of any trip state so the math is independently
// testable.
package geo

import (
	"math"
	"time"

	"github.com/markromolecule/lakbai-core/internal/domain"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance in kilometers
// between two coordinate pairs.
func DistanceKm(a, b domain.Coordinates) float64 {
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// DurationMinutes returns the wall-clock difference between start and end
// rounded to whole minutes, never negative.
func DurationMinutes(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Minutes()))
}
