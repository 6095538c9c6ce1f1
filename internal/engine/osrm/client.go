// Package osrm routes through an OSRM HTTP server.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []route `json:"routes"`
}

type route struct {
	Distance float64  `json:"distance"` // meters
	Duration float64  `json:"duration"` // seconds
	Geometry geometry `json:"geometry"`
}

type geometry struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"` // lon,lat
}

// Client calls the OSRM route service.
type Client struct {
	baseURL    string
	profile    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a Client for baseURL (e.g. http://router.project-osrm.org).
// ratePerSec bounds outgoing requests; non-positive disables limiting.
func NewClient(baseURL, profile string, ratePerSec float64, logger *zap.Logger) *Client {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		profile: profile,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

func (c *Client) endpoint(from, to geo.Coordinate) string {
	q := url.Values{}
	q.Set("alternatives", "true")
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	q.Set("steps", "false")
	return fmt.Sprintf("%s/route/v1/%s/%s;%s?%s", c.baseURL, c.profile, from.LonLat(), to.LonLat(), q.Encode())
}

// Route implements engine.Router.
func (c *Client) Route(ctx context.Context, from, to geo.Coordinate) ([]routemap.Route, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("osrm rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(from, to), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call OSRM API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("OSRM API returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to decode OSRM response: %w", err)
	}

	if body.Code != "Ok" || len(body.Routes) == 0 {
		c.logger.Debug("osrm found no route",
			zap.String("code", body.Code),
			zap.String("message", body.Message),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: osrm %s %s", routemap.ErrRouteNotFound, body.Code, body.Message)
	}

	routes := make([]routemap.Route, 0, len(body.Routes))
	for i, r := range body.Routes {
		path := make([]geo.Coordinate, 0, len(r.Geometry.Coordinates))
		for _, p := range r.Geometry.Coordinates {
			path = append(path, geo.Coordinate{Lat: p[1], Lon: p[0]})
		}
		routes = append(routes, routemap.Route{
			Name:    fmt.Sprintf("osrm-%d", i),
			Summary: routemap.Totals{TotalDistance: r.Distance, TotalTime: r.Duration},
			Path:    path,
		})
	}
	return routes, nil
}
