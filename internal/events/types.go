package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicRoutemapEvents   = "routemap.events"
	TopicRoutemapCommands = "routemap.commands"
)

// Event types published on the events topic.
const (
	LocationAcquired    = "routemap.location.acquired"
	LocationFailed      = "routemap.location.failed"
	DestinationSelected = "routemap.destination.selected"
	RouteSelected       = "routemap.route.selected"
	RouteFailed         = "routemap.route.failed"
	SessionClosed       = "routemap.session.closed"
)

// Command types consumed from the commands topic.
const (
	DestinationAssigned = "routemap.destination.assigned"
)

// PointEvent reports a location or destination of a session.
type PointEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FailureEvent reports a failed geolocation or routing attempt.
type FailureEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	Overlay    uint64    `json:"overlay,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RouteSelectedEvent reports the route chosen for an overlay.
type RouteSelectedEvent struct {
	SessionID      uuid.UUID `json:"session_id"`
	Overlay        uint64    `json:"overlay"`
	OriginLat      float64   `json:"origin_lat"`
	OriginLon      float64   `json:"origin_lon"`
	DestinationLat float64   `json:"destination_lat"`
	DestinationLon float64   `json:"destination_lon"`
	DistanceMeters float64   `json:"distance_m"`
	TimeSeconds    float64   `json:"time_s"`
	Summary        string    `json:"summary"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// SessionClosedEvent reports a torn-down session.
type SessionClosedEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DestinationAssignedCommand asks the service to select a destination for a session.
type DestinationAssignedCommand struct {
	SessionID uuid.UUID `json:"session_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
}
