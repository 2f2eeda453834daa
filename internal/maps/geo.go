// README: Straight-line distance helpers and the offline travel estimator.
package maps

import (
	"context"
	"math"

	"courier/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// StraightLine estimates travel time as great-circle distance at a fixed
// speed. Used when no maps key is configured.
type StraightLine struct {
	SpeedKmh float64
}

func (s StraightLine) TravelMinutes(_ context.Context, from, to types.Point) (float64, error) {
	speed := s.SpeedKmh
	if speed <= 0 {
		speed = 30
	}
	return HaversineKm(from, to) / speed * 60, nil
}
