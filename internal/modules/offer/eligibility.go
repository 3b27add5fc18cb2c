// README: Rider eligibility checks, evaluated before any acceptance attempt.
package offer

import (
	"fmt"

	"swoop/internal/modules/rider"
)

// CheckEligibility reports whether a rider snapshot may accept this offer.
// This is distinct from role-based authorization: it covers availability,
// vehicle requirement, and minimum rating, short-circuiting on the first
// failing check with a specific reason.
func CheckEligibility(snap rider.Snapshot, o *Offer) error {
	if !snap.Available {
		return fmt.Errorf("%w: rider unavailable", ErrNotEligible)
	}
	if o.RequiredVehicle != "" && snap.Vehicle != o.RequiredVehicle {
		return fmt.Errorf("%w: vehicle mismatch (need %s, have %s)", ErrNotEligible, o.RequiredVehicle, snap.Vehicle)
	}
	if o.MinRating > 0 && snap.Rating < o.MinRating {
		return fmt.Errorf("%w: rating too low (%.1f < %.1f)", ErrNotEligible, snap.Rating, o.MinRating)
	}
	if snap.Vehicle == rider.VehicleBike && o.Package.WeightKg > rider.BikeWeightCeilingKg {
		return fmt.Errorf("%w: package exceeds bike weight ceiling (%.1f kg > %.1f kg)",
			ErrNotEligible, o.Package.WeightKg, rider.BikeWeightCeilingKg)
	}
	if snap.CapacityKg > 0 && o.Package.WeightKg > snap.CapacityKg {
		return fmt.Errorf("%w: package exceeds rider capacity (%.1f kg > %.1f kg)",
			ErrNotEligible, o.Package.WeightKg, snap.CapacityKg)
	}
	return nil
}
