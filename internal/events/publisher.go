package events

import (
	"context"
	"sync"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/kafka"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const source = "service-routemap"

// EventPublisher is the subset of kafka.Producer the publisher needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// SessionPublisher turns widget events into CloudEvents on the events topic.
// Publish only enqueues; a single worker writes in order.
type SessionPublisher struct {
	producer EventPublisher
	topic    string
	logger   *zap.Logger

	queue    chan kafka.CloudEvent
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSessionPublisher creates a publisher with a queue of bufferSize events.
func NewSessionPublisher(producer EventPublisher, topic string, bufferSize int, logger *zap.Logger) *SessionPublisher {
	if topic == "" {
		topic = TopicRoutemapEvents
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &SessionPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		queue:    make(chan kafka.CloudEvent, bufferSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the worker until Close.
func (p *SessionPublisher) Start() {
	go p.run()
}

// Publish implements application.EventSink.
func (p *SessionPublisher) Publish(_ context.Context, sessionID uuid.UUID, evt routemap.Event) {
	eventType, data, ok := toPayload(sessionID, evt, time.Now().UTC())
	if !ok {
		return
	}

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	if err != nil {
		p.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	ce.Subject = sessionID.String()

	select {
	case p.queue <- ce:
	default:
		p.logger.Warn("event queue full, dropping event",
			zap.String("event_type", eventType),
			zap.String("session_id", ce.Subject),
		)
	}
}

// Close stops accepting work, flushes queued events and waits for the worker.
func (p *SessionPublisher) Close(ctx context.Context) {
	p.stopOnce.Do(func() { close(p.stop) })
	select {
	case <-p.done:
	case <-ctx.Done():
	}
}

func (p *SessionPublisher) run() {
	defer close(p.done)
	for {
		select {
		case ce := <-p.queue:
			p.write(ce)
		case <-p.stop:
			for {
				select {
				case ce := <-p.queue:
					p.write(ce)
				default:
					return
				}
			}
		}
	}
}

func (p *SessionPublisher) write(ce kafka.CloudEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.producer.PublishEvent(ctx, p.topic, ce); err != nil {
		p.logger.Error("failed to publish event",
			zap.String("topic", p.topic),
			zap.String("event_type", ce.Type),
			zap.Error(err),
		)
	}
}

func toPayload(sessionID uuid.UUID, evt routemap.Event, now time.Time) (string, interface{}, bool) {
	reason := ""
	if evt.Err != nil {
		reason = evt.Err.Error()
	}

	switch evt.Kind {
	case routemap.EventLocationAcquired:
		if evt.Coordinate == nil {
			return "", nil, false
		}
		return LocationAcquired, PointEvent{SessionID: sessionID, Lat: evt.Coordinate.Lat, Lon: evt.Coordinate.Lon, OccurredAt: now}, true

	case routemap.EventLocationFailed:
		return LocationFailed, FailureEvent{SessionID: sessionID, Reason: reason, OccurredAt: now}, true

	case routemap.EventDestinationSelected:
		if evt.Coordinate == nil {
			return "", nil, false
		}
		return DestinationSelected, PointEvent{SessionID: sessionID, Lat: evt.Coordinate.Lat, Lon: evt.Coordinate.Lon, OccurredAt: now}, true

	case routemap.EventRouteSelected:
		if evt.Pair == nil || evt.Totals == nil {
			return "", nil, false
		}
		return RouteSelected, RouteSelectedEvent{
			SessionID:      sessionID,
			Overlay:        evt.Overlay,
			OriginLat:      evt.Pair.Origin.Lat,
			OriginLon:      evt.Pair.Origin.Lon,
			DestinationLat: evt.Pair.Destination.Lat,
			DestinationLon: evt.Pair.Destination.Lon,
			DistanceMeters: evt.Totals.TotalDistance,
			TimeSeconds:    evt.Totals.TotalTime,
			Summary:        evt.Summary,
			OccurredAt:     now,
		}, true

	case routemap.EventRouteFailed:
		return RouteFailed, FailureEvent{SessionID: sessionID, Overlay: evt.Overlay, Reason: reason, OccurredAt: now}, true

	case routemap.EventTornDown:
		return SessionClosed, SessionClosedEvent{SessionID: sessionID, OccurredAt: now}, true

	default:
		return "", nil, false
	}
}
