// README: Query and result types for the geospatial matcher.
package matching

import (
	"time"

	"swoop/internal/types"
)

type SortKey string

const (
	SortDistance SortKey = "distance"
	SortPayment  SortKey = "payment"
	SortCreated  SortKey = "created"
	SortDuration SortKey = "duration"
)

const (
	// DefaultRadiusM applies when the caller omits a radius.
	DefaultRadiusM = 10_000.0
	// MaxRadiusM is the hard ceiling for a single search.
	MaxRadiusM = 100_000.0

	DefaultLimit = 20
	MaxLimit     = 100
)

// Query describes one nearby-offers search from a rider's point of view.
// Vehicle is the searching rider's vehicle class; it drives both the
// required-vehicle filter and the bike weight ceiling policy.
type Query struct {
	Center  types.Point
	RadiusM float64

	MinPayment     int64
	MaxPayment     int64
	MaxWeightKg    float64
	FragileOnly    bool
	Vehicle        string
	DeadlineBefore *time.Time

	Sort       SortKey
	Descending bool

	Page  int
	Limit int
}

// OfferSummary is the matcher's public view of an open offer. History and
// contact details stay internal.
type OfferSummary struct {
	ID               types.ID    `json:"id"`
	Status           string      `json:"status"`
	PickupAddress    string      `json:"pickup_address"`
	Pickup           types.Point `json:"pickup"`
	DeliveryAddress  string      `json:"delivery_address"`
	Delivery         types.Point `json:"delivery"`
	WeightKg         float64     `json:"weight_kg"`
	Fragile          bool        `json:"fragile"`
	PaymentAmount    int64       `json:"payment_amount"`
	Currency         string      `json:"currency"`
	RequiredVehicle  string      `json:"required_vehicle,omitempty"`
	DistanceM        float64     `json:"distance_m"`
	EstimatedMinutes float64     `json:"estimated_minutes"`
	Deadline         *time.Time  `json:"deadline,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Page is one page of matcher results. An empty page is a valid answer, not
// an error.
type Page struct {
	Offers []OfferSummary `json:"offers"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int            `json:"total"`
}
