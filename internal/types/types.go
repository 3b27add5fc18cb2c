// README: Common identifier and coordinate value objects used across modules.
package types

// ID is an opaque entity identifier (business, rider, offer).
type ID string

// Point is a WGS84 coordinate pair.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the point lies inside the legal coordinate ranges.
func (p Point) Valid() bool {
	return p.Lng >= -180 && p.Lng <= 180 && p.Lat >= -90 && p.Lat <= 90
}
