package engine

import (
	"context"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
)

// DefaultEstimateSpeed is an average urban driving speed, 30 km/h.
const DefaultEstimateSpeed = 8.33

// Estimate routes along the straight line at a constant speed. It never fails,
// so it is registered as its own engine and never chained behind a real one.
type Estimate struct {
	speedMS float64
}

// NewEstimate creates an Estimate router. Non-positive speeds use the default.
func NewEstimate(speedMS float64) *Estimate {
	if speedMS <= 0 {
		speedMS = DefaultEstimateSpeed
	}
	return &Estimate{speedMS: speedMS}
}

func (e *Estimate) Route(ctx context.Context, from, to geo.Coordinate) ([]routemap.Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	distance := geo.Distance(from, to)
	return []routemap.Route{{
		Name: "estimate",
		Summary: routemap.Totals{
			TotalDistance: distance,
			TotalTime:     distance / e.speedMS,
		},
		Path: []geo.Coordinate{from, to},
	}}, nil
}
