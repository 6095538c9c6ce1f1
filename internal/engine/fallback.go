package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"go.uber.org/zap"
)

// Fallback tries each router in order and returns the first non-empty result.
// Only transport failures fall through: a router that answers
// routemap.ErrRouteNotFound, or returns no routes, ends the chain.
type Fallback struct {
	routers []Router
	logger  *zap.Logger
}

// NewFallback chains routers, primary first.
func NewFallback(logger *zap.Logger, routers ...Router) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{routers: routers, logger: logger}
}

func (f *Fallback) Route(ctx context.Context, from, to geo.Coordinate) ([]routemap.Route, error) {
	var errs []error
	for i, r := range f.routers {
		routes, err := r.Route(ctx, from, to)
		if err == nil && len(routes) > 0 {
			return routes, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			return nil, routemap.ErrRouteNotFound
		}
		if errors.Is(err, routemap.ErrRouteNotFound) {
			return nil, err
		}
		f.logger.Debug("router failed, trying next", zap.Int("index", i), zap.Error(err))
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", routemap.ErrRouteNotFound, errors.Join(errs...))
}
