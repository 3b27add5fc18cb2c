// README: Road-network route estimation via the Google Maps Directions API.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"swoop/internal/types"
)

// RouteService estimates pickup-to-delivery routes over the road network.
// It satisfies the offer service's RouteEstimator; when unavailable the
// caller falls back to great-circle estimates.
type RouteService struct {
	client *maps.Client
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Estimate returns road distance in meters and travel time in minutes for
// the best route between from and to.
func (s *RouteService) Estimate(ctx context.Context, from, to types.Point) (float64, float64, error) {
	req := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := s.client.Directions(ctx, req)
	if err != nil {
		return 0, 0, fmt.Errorf("directions: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, 0, fmt.Errorf("no route between %s and %s", latLng(from), latLng(to))
	}

	var meters, minutes float64
	for _, leg := range routes[0].Legs {
		meters += float64(leg.Distance.Meters)
		minutes += leg.Duration.Minutes()
	}
	return meters, minutes, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
