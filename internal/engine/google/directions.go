// Package google routes through the Google Maps Directions API.
package google

import (
	"context"
	"fmt"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"googlemaps.github.io/maps"
)

// Router wraps a maps.Client.
type Router struct {
	client *maps.Client
	mode   maps.Mode
}

// NewRouter creates a driving Router. Extra options (e.g. maps.WithBaseURL)
// are passed to the client.
func NewRouter(apiKey string, opts ...maps.ClientOption) (*Router, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &Router{client: client, mode: maps.TravelModeDriving}, nil
}

func directionsRequest(from, to geo.Coordinate, mode maps.Mode) *maps.DirectionsRequest {
	return &maps.DirectionsRequest{
		Origin:       from.String(),
		Destination:  to.String(),
		Mode:         mode,
		Alternatives: true,
	}
}

// Route implements engine.Router.
func (r *Router) Route(ctx context.Context, from, to geo.Coordinate) ([]routemap.Route, error) {
	result, _, err := r.client.Directions(ctx, directionsRequest(from, to, r.mode))
	if err != nil {
		return nil, fmt.Errorf("directions: %w", err)
	}
	return toRoutes(result)
}

func toRoutes(result []maps.Route) ([]routemap.Route, error) {
	if len(result) == 0 {
		return nil, routemap.ErrRouteNotFound
	}

	routes := make([]routemap.Route, 0, len(result))
	for i, mr := range result {
		var totals routemap.Totals
		for _, leg := range mr.Legs {
			totals.TotalDistance += float64(leg.Distance.Meters)
			totals.TotalTime += leg.Duration.Seconds()
		}

		points, err := mr.OverviewPolyline.Decode()
		if err != nil {
			return nil, fmt.Errorf("decode overview polyline: %w", err)
		}
		path := make([]geo.Coordinate, 0, len(points))
		for _, p := range points {
			path = append(path, geo.Coordinate{Lat: p.Lat, Lon: p.Lng})
		}

		name := mr.Summary
		if name == "" {
			name = fmt.Sprintf("google-%d", i)
		}
		routes = append(routes, routemap.Route{Name: name, Summary: totals, Path: path})
	}
	return routes, nil
}
