// README: Driving-time estimates between two coordinates via the Google Maps Directions API.
package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"courier/internal/types"
)

var ErrNoRoute = errors.New("no route found")

type directionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client directionsClient
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// TravelMinutes returns the driving time from one point to another.
func (s *RouteService) TravelMinutes(ctx context.Context, from, to types.Point) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, ErrNoRoute
	}
	return routes[0].Legs[0].Duration.Minutes(), nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
