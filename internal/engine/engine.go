// Package engine turns a path-finding Router into the routing control the
// map widget drives: one control per origin/destination pair, computing in
// the background and reporting through listeners.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"go.uber.org/zap"
)

// Router computes candidate routes between two points. An empty result with
// a nil error is treated as routemap.ErrRouteNotFound.
type Router interface {
	Route(ctx context.Context, from, to geo.Coordinate) ([]routemap.Route, error)
}

// RouteCanvas is implemented by map surfaces that can draw route paths.
type RouteCanvas interface {
	DrawRoute(id string, path []geo.Coordinate, draggable bool)
	ClearRoute(id string)
	HideAlternatives(id string)
}

// Engine creates route controls backed by a Router.
type Engine struct {
	name    string
	router  Router
	timeout time.Duration
	logger  *zap.Logger
	seq     atomic.Uint64
}

// New creates an Engine. Each computation is bounded by timeout.
func New(name string, router Router, timeout time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		name:    name,
		router:  router,
		timeout: timeout,
		logger:  logger.With(zap.String("engine", name)),
	}
}

// Name returns the engine name used in configuration.
func (e *Engine) Name() string { return e.name }

// Control implements routemap.RoutingEngine.
func (e *Engine) Control(opts routemap.ControlOptions) routemap.RouteControl {
	id := fmt.Sprintf("%s-%d", e.name, e.seq.Add(1))
	return &Control{
		id:     id,
		opts:   opts,
		engine: e,
	}
}

// Control computes one route and draws it on the surface it is added to.
type Control struct {
	id     string
	opts   routemap.ControlOptions
	engine *Engine

	mu         sync.Mutex
	surface    routemap.MapSurface
	cancel     context.CancelFunc
	removed    bool
	drawn      bool
	onStart    []func()
	onSelected []func(routemap.Route)
	onError    []func(error)
}

// ID identifies the control's drawing on the canvas.
func (c *Control) ID() string { return c.id }

func (c *Control) OnRoutingStart(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStart = append(c.onStart, fn)
}

func (c *Control) OnRouteSelected(fn func(routemap.Route)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSelected = append(c.onSelected, fn)
}

func (c *Control) OnRoutingError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

// AddTo attaches the control to s and starts routing. A control is added at
// most once.
func (c *Control) AddTo(s routemap.MapSurface) {
	c.mu.Lock()
	if c.removed || c.surface != nil {
		c.mu.Unlock()
		return
	}
	c.surface = s
	ctx, cancel := context.WithTimeout(context.Background(), c.engine.timeout)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Remove cancels any computation, clears the drawing and drops listeners.
func (c *Control) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return
	}
	c.removed = true
	if c.cancel != nil {
		c.cancel()
	}
	if canvas, ok := c.surface.(RouteCanvas); ok && c.drawn {
		canvas.ClearRoute(c.id)
	}
	c.onStart, c.onSelected, c.onError = nil, nil, nil
}

// HideAlternatives suppresses alternative itineraries on the canvas.
func (c *Control) HideAlternatives() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return
	}
	if canvas, ok := c.surface.(RouteCanvas); ok {
		canvas.HideAlternatives(c.id)
	}
}

func (c *Control) run(ctx context.Context) {
	defer c.cancelCtx()

	c.emitStart()

	from, to := c.opts.Waypoints[0], c.opts.Waypoints[1]
	started := time.Now()
	routes, err := c.engine.router.Route(ctx, from, to)
	if c.isRemoved() {
		return
	}
	if err == nil && len(routes) == 0 {
		err = routemap.ErrRouteNotFound
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: routing timed out after %s", routemap.ErrRouteNotFound, c.engine.timeout)
		}
		c.engine.logger.Warn("routing failed",
			zap.String("control", c.id),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Error(err),
		)
		c.emitError(err)
		return
	}

	best := Best(routes)
	c.engine.logger.Debug("route computed",
		zap.String("control", c.id),
		zap.Int("candidates", len(routes)),
		zap.Float64("distance_m", best.Summary.TotalDistance),
		zap.Float64("time_s", best.Summary.TotalTime),
		zap.Duration("took", time.Since(started)),
	)

	if !c.draw(best) {
		return
	}
	c.emitSelected(best)
}

func (c *Control) cancelCtx() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Control) isRemoved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removed
}

func (c *Control) draw(r routemap.Route) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return false
	}
	if canvas, ok := c.surface.(RouteCanvas); ok && len(r.Path) > 0 {
		canvas.DrawRoute(c.id, r.Path, c.opts.RouteWhileDragging)
		c.drawn = true
	}
	return true
}

func (c *Control) emitStart() {
	c.mu.Lock()
	fns := append([]func(){}, c.onStart...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Control) emitSelected(r routemap.Route) {
	c.mu.Lock()
	fns := append([]func(routemap.Route){}, c.onSelected...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(r)
	}
}

func (c *Control) emitError(err error) {
	c.mu.Lock()
	fns := append([]func(error){}, c.onError...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// Best returns the fastest route, preferring the shorter one on equal time.
func Best(routes []routemap.Route) routemap.Route {
	sorted := append([]routemap.Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Summary.TotalTime != sorted[j].Summary.TotalTime {
			return sorted[i].Summary.TotalTime < sorted[j].Summary.TotalTime
		}
		return sorted[i].Summary.TotalDistance < sorted[j].Summary.TotalDistance
	})
	return sorted[0]
}
