// README: Rider directory snapshot used by eligibility and matching.
package rider

import (
	"time"

	"swoop/internal/types"
)

// Vehicle classes known to the dispatch core.
const (
	VehicleBike    = "bike"
	VehicleScooter = "scooter"
	VehicleCar     = "car"
	VehicleVan     = "van"
)

// bikeWeightCeilingKg is the maximum package weight ever shown to
// bike-class riders.
const BikeWeightCeilingKg = 5.0

// Snapshot is a point-in-time read of a rider's directory entry. The
// dispatch core never mutates it; ownership of these fields belongs to the
// rider directory collaborator.
type Snapshot struct {
	ID         types.ID
	Position   types.Point
	Available  bool
	Vehicle    string
	Rating     float64
	CapacityKg float64
	UpdatedAt  time.Time
}
