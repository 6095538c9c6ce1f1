package routemap

import "fmt"

// RouteStatus is the lifecycle state of the widget's routing overlay.
type RouteStatus string

const (
	RouteIdle     RouteStatus = "idle"
	RouteRouting  RouteStatus = "routing"
	RouteSelected RouteStatus = "selected"
	RouteFailed   RouteStatus = "failed"
)

// validRouteTransitions defines the overlay state machine. Every rebuild goes
// through idle, so an overlay is always retired before the next is attached.
var validRouteTransitions = map[RouteStatus][]RouteStatus{
	RouteIdle:     {RouteRouting},
	RouteRouting:  {RouteSelected, RouteFailed, RouteIdle},
	RouteSelected: {RouteSelected, RouteIdle},
	RouteFailed:   {RouteIdle},
}

// IsValid returns true if the status is a recognized route status.
func (s RouteStatus) IsValid() bool {
	_, exists := validRouteTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s RouteStatus) CanTransitionTo(target RouteStatus) bool {
	for _, t := range validRouteTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// HasOverlay returns true if an overlay is alive in this status.
func (s RouteStatus) HasOverlay() bool {
	return s != RouteIdle
}

func (s RouteStatus) String() string {
	return string(s)
}

// ParseRouteStatus converts a string to a RouteStatus.
func ParseRouteStatus(s string) (RouteStatus, error) {
	status := RouteStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid route status: %s", s)
	}
	return status, nil
}
