package routemap

import "github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"

// ListenerID identifies a click handler registered on a MapSurface.
type ListenerID uint64

// MarkerKind distinguishes the two markers a widget can place.
type MarkerKind string

const (
	MarkerOrigin      MarkerKind = "origin"
	MarkerDestination MarkerKind = "destination"
)

// MarkerOptions controls how a marker is rendered. A marker of a given kind
// replaces any previous marker of the same kind.
type MarkerOptions struct {
	Kind    MarkerKind `json:"kind"`
	AutoPan bool       `json:"auto_pan"`
}

// MapSurface is the tile-rendering map the widget draws on.
type MapSurface interface {
	// OnClick registers fn to receive clicked coordinates.
	OnClick(fn func(geo.Coordinate)) ListenerID
	// OffClick removes a handler registered with OnClick.
	OffClick(id ListenerID)
	// SetView recenters the map on c at the given zoom.
	SetView(c geo.Coordinate, zoom int)
	// Zoom returns the current zoom level.
	Zoom() int
	// RenderMarker places a marker at c.
	RenderMarker(c geo.Coordinate, opts MarkerOptions)
}

// Geolocator reports the user's current position asynchronously. Exactly one
// of onSuccess or onError is invoked per request.
type Geolocator interface {
	CurrentPosition(onSuccess func(geo.Coordinate), onError func(error))
}

// Presenter is the user-facing part of the widget outside the map itself.
type Presenter interface {
	// ShowSummary displays the route summary; an empty text hides the element.
	ShowSummary(text string)
	// ShowNotice shows a one-off message to the user.
	ShowNotice(text string)
}

// Totals is the engine's summary of a computed route.
type Totals struct {
	TotalDistance float64 `json:"total_distance"` // meters
	TotalTime     float64 `json:"total_time"`     // seconds
}

// Route is one candidate path returned by a routing engine.
type Route struct {
	Name    string           `json:"name,omitempty"`
	Summary Totals           `json:"summary"`
	Path    []geo.Coordinate `json:"path,omitempty"`
}

// ControlOptions configures a routing overlay.
type ControlOptions struct {
	Waypoints          [2]geo.Coordinate
	RouteWhileDragging bool
}

// RoutingEngine creates routing overlays.
type RoutingEngine interface {
	Control(opts ControlOptions) RouteControl
}

// RouteControl is a live routing overlay. Listeners must be registered
// before AddTo; after Remove no listener is invoked again.
type RouteControl interface {
	// AddTo attaches the overlay to a surface and starts a routing pass.
	AddTo(surface MapSurface)
	// Remove detaches the overlay and releases its listeners.
	Remove()
	OnRoutingStart(fn func())
	OnRouteSelected(fn func(Route))
	OnRoutingError(fn func(error))
	// HideAlternatives suppresses the alternative-routes panel.
	HideAlternatives()
}

// Observer receives widget events. Implementations must not block.
type Observer interface {
	Observe(evt Event)
}
