// README: Rider directory store backed by Redis GEO and hash metadata.
package rider

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"swoop/internal/types"
)

const riderGeoKey = "riders:geo"

// ErrUnknownRider is returned when no directory entry exists for an id.
var ErrUnknownRider = errors.New("rider not found in directory")

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// Upsert records a rider's current position and metadata.
func (s *Store) Upsert(ctx context.Context, snap Snapshot) error {
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, riderGeoKey, &redis.GeoLocation{
		Name:      string(snap.ID),
		Longitude: snap.Position.Lng,
		Latitude:  snap.Position.Lat,
	})
	pipe.HSet(ctx, metaKey(snap.ID), map[string]interface{}{
		"available":   strconv.FormatBool(snap.Available),
		"vehicle":     snap.Vehicle,
		"rating":      strconv.FormatFloat(snap.Rating, 'f', 2, 64),
		"capacity_kg": strconv.FormatFloat(snap.CapacityKg, 'f', 1, 64),
		"updated":     time.Now().UTC().Format(time.RFC3339),
	})
	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot reads the current directory entry for a rider.
func (s *Store) Snapshot(ctx context.Context, id types.ID) (Snapshot, error) {
	meta, err := s.redis.HGetAll(ctx, metaKey(id)).Result()
	if err != nil {
		return Snapshot{}, err
	}
	if len(meta) == 0 {
		return Snapshot{}, ErrUnknownRider
	}

	snap := Snapshot{ID: id}
	snap.Available = meta["available"] == "true"
	snap.Vehicle = meta["vehicle"]
	if v, err := strconv.ParseFloat(meta["rating"], 64); err == nil {
		snap.Rating = v
	}
	if v, err := strconv.ParseFloat(meta["capacity_kg"], 64); err == nil {
		snap.CapacityKg = v
	}
	if t, err := time.Parse(time.RFC3339, meta["updated"]); err == nil {
		snap.UpdatedAt = t
	}

	pos, err := s.redis.GeoPos(ctx, riderGeoKey, string(id)).Result()
	if err == nil && len(pos) == 1 && pos[0] != nil {
		snap.Position = types.Point{Lng: pos[0].Longitude, Lat: pos[0].Latitude}
	}
	return snap, nil
}

// NearbyAvailable returns ids of available riders within radiusM meters of p,
// nearest first. Identities only, no mutation.
func (s *Store) NearbyAvailable(ctx context.Context, p types.Point, radiusM float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, riderGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusM,
		RadiusUnit: "m",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, 0, len(results))
	for _, r := range results {
		if avail, err := s.redis.HGet(ctx, metaKey(types.ID(r)), "available").Result(); err == nil && avail == "true" {
			ids = append(ids, types.ID(r))
		}
	}
	return ids, nil
}

func metaKey(id types.ID) string { return "rider:meta:" + string(id) }
