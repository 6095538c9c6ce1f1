package events

import (
	"context"
	"errors"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/apperr"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DestinationAssigner selects a destination on a session.
type DestinationAssigner interface {
	AssignDestination(ctx context.Context, sessionID uuid.UUID, c geo.Coordinate) error
}

// DestinationCommandConsumer listens to routemap commands and applies
// destination assignments to live sessions.
type DestinationCommandConsumer struct {
	consumer *kafka.Consumer
	service  DestinationAssigner
	logger   *zap.Logger
}

// NewDestinationCommandConsumer creates a new DestinationCommandConsumer.
func NewDestinationCommandConsumer(
	brokers []string,
	groupID string,
	topic string,
	service DestinationAssigner,
	logger *zap.Logger,
) *DestinationCommandConsumer {
	if topic == "" {
		topic = TopicRoutemapCommands
	}
	return &DestinationCommandConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, topic, logger),
		service:  service,
		logger:   logger,
	}
}

// Start begins consuming commands. This blocks until the context is cancelled.
func (c *DestinationCommandConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *DestinationCommandConsumer) Close() error {
	return c.consumer.Close()
}

func (c *DestinationCommandConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from commands topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case DestinationAssigned:
		return c.handleDestinationAssigned(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled command type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *DestinationCommandConsumer) handleDestinationAssigned(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var cmd DestinationAssignedCommand
	if err := cloudEvent.ParseData(&cmd); err != nil {
		c.logger.Error("failed to parse DestinationAssignedCommand data",
			zap.Error(err),
		)
		return nil // Don't retry malformed data
	}

	c.logger.Info("processing destination assignment",
		zap.String("session_id", cmd.SessionID.String()),
		zap.Float64("lat", cmd.Lat),
		zap.Float64("lon", cmd.Lon),
	)

	err := c.service.AssignDestination(ctx, cmd.SessionID, geo.Coordinate{Lat: cmd.Lat, Lon: cmd.Lon})
	if err != nil {
		if appErr, ok := apperr.As(err); ok && (appErr.Kind == apperr.KindNotFound || appErr.Kind == apperr.KindInvalidState) {
			c.logger.Warn("destination assignment for unknown session",
				zap.String("session_id", cmd.SessionID.String()),
			)
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		c.logger.Error("failed to assign destination",
			zap.String("session_id", cmd.SessionID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
