package routemap

import (
	"errors"
	"fmt"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"go.uber.org/zap"
)

// Pair is the (origin, destination) tuple an overlay is built for.
type Pair struct {
	Origin      geo.Coordinate `json:"origin"`
	Destination geo.Coordinate `json:"destination"`
}

type overlay struct {
	control    RouteControl
	pair       Pair
	generation uint64
}

// Widget is the location/destination/route state machine behind one mounted
// map. It is not safe for concurrent use: every method, including the
// callbacks it hands to its capabilities, must run on one event loop.
type Widget struct {
	engine   RoutingEngine
	format   SummaryFormat
	observer Observer
	logger   *zap.Logger

	surface    MapSurface
	clickID    ListenerID
	geolocator Geolocator
	presenter  Presenter

	userLocation      *geo.Coordinate
	destination       *geo.Coordinate
	permissionGranted bool
	activated         bool
	locating          bool
	tornDown          bool

	overlay     *overlay
	generation  uint64
	routeStatus RouteStatus
	summary     string
}

// NewWidget creates a Widget that builds overlays with engine. A nil observer
// or logger is replaced by a no-op.
func NewWidget(engine RoutingEngine, format SummaryFormat, observer Observer, logger *zap.Logger) *Widget {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Widget{
		engine:      engine,
		format:      format,
		observer:    observer,
		logger:      logger,
		presenter:   noopPresenter{},
		routeStatus: RouteIdle,
	}
}

// --- Capabilities ---

// SetGeolocator installs the geolocation capability; nil marks it unavailable.
func (w *Widget) SetGeolocator(g Geolocator) {
	w.geolocator = g
}

// SetPresenter installs the user-facing presenter and replays the current summary.
func (w *Widget) SetPresenter(p Presenter) {
	if p == nil {
		w.presenter = noopPresenter{}
		return
	}
	w.presenter = p
	if w.summary != "" {
		p.ShowSummary(w.summary)
	}
}

// AttachSurface makes s the widget's map. A previously attached surface is
// detached first, together with the overlay drawn on it.
func (w *Widget) AttachSurface(s MapSurface) {
	if w.tornDown || s == nil {
		return
	}
	if w.surface != nil {
		w.DetachSurface()
	}
	w.surface = s
	w.clickID = s.OnClick(w.SelectDestination)

	if w.userLocation != nil {
		w.renderMarker(MarkerOrigin, *w.userLocation)
	}
	if w.destination != nil {
		w.renderMarker(MarkerDestination, *w.destination)
	}
	w.recenter()
	w.reconcile(false)
}

// DetachSurface removes the click handler and the overlay from the current
// map. Location and destination are kept for the next surface.
func (w *Widget) DetachSurface() {
	if w.surface == nil {
		return
	}
	w.surface.OffClick(w.clickID)
	w.retireOverlay()
	w.surface = nil
	w.clickID = 0
}

// --- Location Acquirer ---

// Activate runs the first-activation logic: request the position when
// permission has not been granted yet, otherwise recenter on the known one.
// Later calls do nothing.
func (w *Widget) Activate() {
	if w.tornDown || w.activated {
		return
	}
	w.activated = true

	if !w.permissionGranted {
		_ = w.requestLocation()
		return
	}
	w.recenter()
}

// RetryLocation re-requests the current position on behalf of the caller.
func (w *Widget) RetryLocation() error {
	if w.tornDown {
		return ErrTornDown
	}
	return w.requestLocation()
}

// SetOrigin sets the origin manually, bypassing geolocation.
func (w *Widget) SetOrigin(c geo.Coordinate) error {
	if w.tornDown {
		return ErrTornDown
	}
	w.setUserLocation(c)
	return nil
}

func (w *Widget) requestLocation() error {
	if w.geolocator == nil {
		w.reportLocationError(ErrGeolocationUnavailable)
		return ErrGeolocationUnavailable
	}
	if w.locating {
		return nil
	}
	w.locating = true
	w.geolocator.CurrentPosition(w.onLocation, w.onLocationError)
	return nil
}

func (w *Widget) onLocation(c geo.Coordinate) {
	w.locating = false
	if w.tornDown {
		return
	}
	w.permissionGranted = true
	w.setUserLocation(c)
}

func (w *Widget) onLocationError(err error) {
	w.locating = false
	if w.tornDown {
		return
	}
	if err == nil {
		err = ErrPositionUnavailable
	}
	w.reportLocationError(err)
}

func (w *Widget) reportLocationError(err error) {
	w.logger.Warn("error getting user location", zap.Error(err))
	w.observer.Observe(Event{Kind: EventLocationFailed, Err: err})
}

func (w *Widget) setUserLocation(c geo.Coordinate) {
	w.userLocation = &c
	w.observer.Observe(Event{Kind: EventLocationAcquired, Coordinate: &c})
	w.renderMarker(MarkerOrigin, c)
	w.recenter()
	w.reconcile(false)
}

func (w *Widget) recenter() {
	if w.surface == nil || w.userLocation == nil {
		return
	}
	w.surface.SetView(*w.userLocation, w.surface.Zoom())
}

// --- Destination Selector ---

// SelectDestination records a map interaction. It always overwrites the
// previous destination and performs no range validation.
func (w *Widget) SelectDestination(c geo.Coordinate) {
	if w.tornDown {
		return
	}
	w.logger.Debug("map clicked", zap.Float64("lat", c.Lat), zap.Float64("lon", c.Lon))
	w.destination = &c
	w.observer.Observe(Event{Kind: EventDestinationSelected, Coordinate: &c})
	w.renderMarker(MarkerDestination, c)
	w.reconcile(false)
}

// BuildRoute is the manual "build route" trigger. With both endpoints known
// it always retires and rebuilds the overlay, even for an unchanged pair.
func (w *Widget) BuildRoute() error {
	if w.tornDown {
		return ErrTornDown
	}
	if w.destination == nil {
		w.presenter.ShowNotice(w.format.DestinationRequired)
		return ErrMissingDestination
	}
	if w.userLocation == nil {
		return ErrOriginUnknown
	}
	if w.surface == nil {
		return ErrSurfaceDetached
	}
	w.reconcile(true)
	return nil
}

func (w *Widget) renderMarker(kind MarkerKind, c geo.Coordinate) {
	if w.surface == nil {
		return
	}
	w.surface.RenderMarker(c, MarkerOptions{Kind: kind, AutoPan: false})
}

// --- Route Manager ---

func (w *Widget) currentPair() (Pair, bool) {
	if w.userLocation == nil || w.destination == nil {
		return Pair{}, false
	}
	return Pair{Origin: *w.userLocation, Destination: *w.destination}, true
}

// reconcile drives the overlay from the current pair. A missing endpoint only
// blanks the summary; the stale overlay is superseded by the next valid pair.
func (w *Widget) reconcile(force bool) {
	pair, ok := w.currentPair()
	if !ok || w.surface == nil {
		w.setSummary("")
		return
	}
	if !force && w.overlay != nil && w.overlay.pair == pair {
		return
	}
	w.retireOverlay()
	w.attachOverlay(pair)
}

func (w *Widget) attachOverlay(pair Pair) {
	w.generation++
	gen := w.generation

	w.logger.Debug("creating routing control", zap.Uint64("overlay", gen))
	ctl := w.engine.Control(ControlOptions{
		Waypoints:          [2]geo.Coordinate{pair.Origin, pair.Destination},
		RouteWhileDragging: true,
	})
	w.overlay = &overlay{control: ctl, pair: pair, generation: gen}
	w.transition(RouteRouting)

	ctl.OnRoutingStart(func() { w.onRoutingStart(gen) })
	ctl.OnRouteSelected(func(r Route) { w.onRouteSelected(gen, r) })
	ctl.OnRoutingError(func(err error) { w.onRoutingError(gen, err) })
	ctl.AddTo(w.surface)

	p := pair
	w.observer.Observe(Event{Kind: EventOverlayAttached, Pair: &p, Overlay: gen})
}

func (w *Widget) retireOverlay() {
	if w.overlay == nil {
		return
	}
	old := w.overlay
	w.overlay = nil
	old.control.Remove()
	w.transition(RouteIdle)
	w.setSummary("")

	p := old.pair
	w.observer.Observe(Event{Kind: EventOverlayRetired, Pair: &p, Overlay: old.generation})
}

func (w *Widget) isCurrent(gen uint64) bool {
	return !w.tornDown && w.overlay != nil && w.overlay.generation == gen
}

func (w *Widget) onRoutingStart(gen uint64) {
	if !w.isCurrent(gen) {
		return
	}
	w.overlay.control.HideAlternatives()
}

func (w *Widget) onRouteSelected(gen uint64, r Route) {
	if !w.isCurrent(gen) {
		return
	}
	w.transition(RouteSelected)
	text := w.format.Summary(r.Summary)
	w.setSummary(text)

	totals := r.Summary
	p := w.overlay.pair
	w.observer.Observe(Event{Kind: EventRouteSelected, Pair: &p, Overlay: gen, Totals: &totals, Summary: text})
}

func (w *Widget) onRoutingError(gen uint64, err error) {
	if !w.isCurrent(gen) {
		return
	}
	if !errors.Is(err, ErrRouteNotFound) {
		err = fmt.Errorf("%w: %v", ErrRouteNotFound, err)
	}
	w.transition(RouteFailed)
	w.setSummary("")
	w.logger.Warn("routing failed", zap.Uint64("overlay", gen), zap.Error(err))

	p := w.overlay.pair
	w.observer.Observe(Event{Kind: EventRouteFailed, Pair: &p, Overlay: gen, Err: err})
}

func (w *Widget) transition(to RouteStatus) {
	if !w.routeStatus.CanTransitionTo(to) {
		w.logger.Warn("ignoring invalid route transition",
			zap.String("from", w.routeStatus.String()),
			zap.String("to", to.String()),
		)
		return
	}
	w.routeStatus = to
}

func (w *Widget) setSummary(text string) {
	if text == w.summary {
		return
	}
	w.summary = text
	w.presenter.ShowSummary(text)
}

// --- Lifecycle ---

// Teardown detaches the click handler and the live overlay. Every later
// operation is a no-op or returns ErrTornDown.
func (w *Widget) Teardown() {
	if w.tornDown {
		return
	}
	w.DetachSurface()
	w.retireOverlay()
	w.tornDown = true
	w.observer.Observe(Event{Kind: EventTornDown})
}

// --- Getters ---

// OverlayState describes the live overlay.
type OverlayState struct {
	Pair       Pair        `json:"pair"`
	Generation uint64      `json:"generation"`
	Status     RouteStatus `json:"status"`
}

// State is a point-in-time copy of the widget's data model.
type State struct {
	UserLocation      *geo.Coordinate `json:"user_location,omitempty"`
	Destination       *geo.Coordinate `json:"destination,omitempty"`
	PermissionGranted bool            `json:"permission_granted"`
	Locating          bool            `json:"locating"`
	SurfaceAttached   bool            `json:"surface_attached"`
	Overlay           *OverlayState   `json:"overlay,omitempty"`
	Summary           string          `json:"summary"`
	TornDown          bool            `json:"torn_down"`
}

// Snapshot returns a copy of the current state.
func (w *Widget) Snapshot() State {
	st := State{
		PermissionGranted: w.permissionGranted,
		Locating:          w.locating,
		SurfaceAttached:   w.surface != nil,
		Summary:           w.summary,
		TornDown:          w.tornDown,
	}
	if w.userLocation != nil {
		c := *w.userLocation
		st.UserLocation = &c
	}
	if w.destination != nil {
		c := *w.destination
		st.Destination = &c
	}
	if w.overlay != nil {
		st.Overlay = &OverlayState{
			Pair:       w.overlay.pair,
			Generation: w.overlay.generation,
			Status:     w.routeStatus,
		}
	}
	return st
}

// Summary returns the current route summary text.
func (w *Widget) Summary() string { return w.summary }

// RouteStatus returns the overlay lifecycle status.
func (w *Widget) RouteStatus() RouteStatus { return w.routeStatus }

// Locale returns the locale of user-facing texts.
func (w *Widget) Locale() Locale { return w.format.Locale }
