// Package geo contains pure geographic computation helpers.
package geo

import (
	"errors"
	"math"

	"swoop/internal/types"
)

const earthRadiusMeters = 6371000.0

// ErrInvalidPoint is returned when a coordinate falls outside the legal
// longitude/latitude ranges.
var ErrInvalidPoint = errors.New("invalid coordinate pair")

// Distance returns the great-circle distance in meters between two points
// specified in decimal degrees (haversine formula).
func Distance(a, b types.Point) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, ErrInvalidPoint
	}
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c, nil
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Average travel speeds in km/h per vehicle class.
var vehicleSpeedsKmh = map[string]float64{
	"bike":    15,
	"scooter": 25,
	"car":     30,
	"van":     25,
}

// EstimateDuration converts a distance in meters into an estimated delivery
// duration in minutes for the given vehicle class. A handling buffer of
// 0.3x travel time, clamped to [10, 20] minutes, covers pickup and drop-off.
// Unknown vehicle classes fall back to the bike speed.
func EstimateDuration(distanceMeters float64, vehicle string) float64 {
	speed, ok := vehicleSpeedsKmh[vehicle]
	if !ok {
		speed = vehicleSpeedsKmh["bike"]
	}
	travelMin := distanceMeters / 1000 / speed * 60
	buffer := math.Min(20, math.Max(10, 0.3*travelMin))
	return travelMin + buffer
}
