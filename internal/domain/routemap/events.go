package routemap

import "github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"

// EventKind names a widget event.
type EventKind string

const (
	EventLocationAcquired    EventKind = "location_acquired"
	EventLocationFailed      EventKind = "location_failed"
	EventDestinationSelected EventKind = "destination_selected"
	EventOverlayAttached     EventKind = "overlay_attached"
	EventOverlayRetired      EventKind = "overlay_retired"
	EventRouteSelected       EventKind = "route_selected"
	EventRouteFailed         EventKind = "route_failed"
	EventTornDown            EventKind = "torn_down"
)

// Event is emitted to the widget's Observer on every committed transition.
type Event struct {
	Kind       EventKind
	Coordinate *geo.Coordinate
	Pair       *Pair
	Overlay    uint64
	Totals     *Totals
	Summary    string
	Err        error
}

type noopObserver struct{}

func (noopObserver) Observe(Event) {}

type noopPresenter struct{}

func (noopPresenter) ShowSummary(string) {}
func (noopPresenter) ShowNotice(string)  {}
