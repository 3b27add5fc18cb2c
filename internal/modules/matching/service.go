// README: Geospatial matcher: nearby-offer and nearby-rider queries with
// filters, sorting, and pagination.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"swoop/internal/geo"
	"swoop/internal/modules/offer"
	"swoop/internal/modules/rider"
	"swoop/internal/observability"
	"swoop/internal/types"
)

var ErrValidation = errors.New("invalid matching query")

// OpenOfferSource loads the authoritative open offers behind the candidates
// found in the spatial index.
type OpenOfferSource interface {
	ListOpenByIDs(ctx context.Context, ids []types.ID) ([]*offer.Offer, error)
}

// OfferIndex is the spatial candidate index.
type OfferIndex interface {
	SearchOpenOffers(ctx context.Context, p types.Point, radiusM float64) ([]types.ID, error)
}

// RiderIndex finds available riders near a point.
type RiderIndex interface {
	NearbyAvailable(ctx context.Context, p types.Point, radiusM float64) ([]types.ID, error)
}

type Service struct {
	offers OpenOfferSource
	index  OfferIndex
	riders RiderIndex
}

func NewService(offers OpenOfferSource, index OfferIndex, riders RiderIndex) *Service {
	return &Service{offers: offers, index: index, riders: riders}
}

// FindNearbyOffers executes one nearby-offers search: spatial range query,
// conjunctive filters, distance computation, sort, paginate. Candidates that
// raced with an acceptance simply drop out when re-checked against the store.
func (s *Service) FindNearbyOffers(ctx context.Context, q Query) (*Page, error) {
	if err := normalize(&q); err != nil {
		return nil, err
	}
	observability.MatcherQueriesTotal.Inc()

	ids, err := s.index.SearchOpenOffers(ctx, q.Center, q.RadiusM)
	if err != nil {
		return nil, fmt.Errorf("search open offers: %w", err)
	}
	page := &Page{Offers: []OfferSummary{}, Page: q.Page, Limit: q.Limit}
	if len(ids) == 0 {
		return page, nil
	}

	offers, err := s.offers.ListOpenByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	summaries := make([]OfferSummary, 0, len(offers))
	for _, o := range offers {
		if !matches(o, q) {
			continue
		}
		d, err := geo.Distance(q.Center, o.Pickup.Position)
		if err != nil {
			continue
		}
		// The GEO index is a projection and can lag; re-check the radius
		// against the authoritative coordinates.
		if d > q.RadiusM {
			continue
		}
		summaries = append(summaries, summarize(o, d))
	}

	sortSummaries(summaries, q.Sort, q.Descending)
	page.Total = len(summaries)
	page.Offers = paginate(summaries, q.Page, q.Limit)
	return page, nil
}

// NearbyRiders returns ids of available riders within radiusM of p. Used by
// outward notification on offer creation; it never mutates anything.
func (s *Service) NearbyRiders(ctx context.Context, p types.Point, radiusM float64) ([]types.ID, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	if radiusM <= 0 {
		radiusM = DefaultRadiusM
	}
	if radiusM > MaxRadiusM {
		return nil, fmt.Errorf("%w: radius exceeds %.0f m", ErrValidation, MaxRadiusM)
	}
	return s.riders.NearbyAvailable(ctx, p, radiusM)
}

func normalize(q *Query) error {
	if !q.Center.Valid() {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	if q.RadiusM == 0 {
		q.RadiusM = DefaultRadiusM
	}
	if q.RadiusM < 0 || q.RadiusM > MaxRadiusM {
		return fmt.Errorf("%w: radius must be in (0, %.0f] m", ErrValidation, MaxRadiusM)
	}
	if q.MinPayment < 0 || q.MaxPayment < 0 || (q.MaxPayment > 0 && q.MinPayment > q.MaxPayment) {
		return fmt.Errorf("%w: payment bounds inverted", ErrValidation)
	}
	switch q.Sort {
	case "":
		q.Sort = SortDistance
	case SortDistance, SortPayment, SortCreated, SortDuration:
	default:
		return fmt.Errorf("%w: unknown sort key %q", ErrValidation, q.Sort)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return nil
}

// matches applies the conjunctive non-spatial filters.
func matches(o *offer.Offer, q Query) bool {
	if o.Status != offer.StatusOpen {
		return false
	}
	if q.MinPayment > 0 && o.Payment.Amount < q.MinPayment {
		return false
	}
	if q.MaxPayment > 0 && o.Payment.Amount > q.MaxPayment {
		return false
	}
	if q.MaxWeightKg > 0 && o.Package.WeightKg > q.MaxWeightKg {
		return false
	}
	if q.FragileOnly && !o.Package.Fragile {
		return false
	}
	if q.DeadlineBefore != nil {
		if o.Deadline == nil || o.Deadline.After(*q.DeadlineBefore) {
			return false
		}
	}
	if q.Vehicle != "" {
		if o.RequiredVehicle != "" && o.RequiredVehicle != q.Vehicle {
			return false
		}
		// Bike-class riders only see light packages; other classes are
		// unrestricted unless the offer itself demands a vehicle.
		if q.Vehicle == rider.VehicleBike && o.Package.WeightKg > rider.BikeWeightCeilingKg {
			return false
		}
	}
	return true
}

func summarize(o *offer.Offer, distanceM float64) OfferSummary {
	return OfferSummary{
		ID:               o.ID,
		Status:           string(o.Status),
		PickupAddress:    o.Pickup.Address,
		Pickup:           o.Pickup.Position,
		DeliveryAddress:  o.Delivery.Address,
		Delivery:         o.Delivery.Position,
		WeightKg:         o.Package.WeightKg,
		Fragile:          o.Package.Fragile,
		PaymentAmount:    o.Payment.Amount,
		Currency:         string(o.Payment.Currency),
		RequiredVehicle:  o.RequiredVehicle,
		DistanceM:        distanceM,
		EstimatedMinutes: o.EstimatedDurationMin,
		Deadline:         o.Deadline,
		CreatedAt:        o.CreatedAt,
	}
}

func sortSummaries(items []OfferSummary, key SortKey, desc bool) {
	// cmp orders by the requested key only; -1, 0, or 1.
	cmp := func(a, b OfferSummary) int {
		switch key {
		case SortPayment:
			switch {
			case a.PaymentAmount < b.PaymentAmount:
				return -1
			case a.PaymentAmount > b.PaymentAmount:
				return 1
			}
		case SortCreated:
			switch {
			case a.CreatedAt.Before(b.CreatedAt):
				return -1
			case a.CreatedAt.After(b.CreatedAt):
				return 1
			}
		case SortDuration:
			switch {
			case a.EstimatedMinutes < b.EstimatedMinutes:
				return -1
			case a.EstimatedMinutes > b.EstimatedMinutes:
				return 1
			}
		default: // distance
			switch {
			case a.DistanceM < b.DistanceM:
				return -1
			case a.DistanceM > b.DistanceM:
				return 1
			}
		}
		return 0
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := cmp(items[i], items[j])
		if c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		// Ties always fall back to earliest created, regardless of the
		// requested direction.
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func paginate(items []OfferSummary, page, limit int) []OfferSummary {
	start := (page - 1) * limit
	if start >= len(items) {
		return []OfferSummary{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
