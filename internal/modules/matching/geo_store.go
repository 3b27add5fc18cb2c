// README: Spatial index of open offers backed by Redis GEO.
package matching

import (
	"context"

	"github.com/redis/go-redis/v9"

	"swoop/internal/types"
)

const openOfferGeoKey = "offers:open:geo"

// GeoStore mirrors open offers into a Redis GEO set keyed by pickup
// coordinate. It is a projection, not the source of truth: candidates it
// returns are re-checked against the offer store before they are shown.
type GeoStore struct {
	redis *redis.Client
}

func NewGeoStore(redis *redis.Client) *GeoStore {
	return &GeoStore{redis: redis}
}

func (s *GeoStore) AddOpenOffer(ctx context.Context, id types.ID, pickup types.Point) error {
	return s.redis.GeoAdd(ctx, openOfferGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pickup.Lng,
		Latitude:  pickup.Lat,
	}).Err()
}

func (s *GeoStore) RemoveOffer(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, openOfferGeoKey, string(id)).Err()
}

// SearchOpenOffers returns candidate offer ids within radiusM meters of p,
// nearest first.
func (s *GeoStore) SearchOpenOffers(ctx context.Context, p types.Point, radiusM float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, openOfferGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusM,
		RadiusUnit: "m",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}
