//go:build integration

package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/application"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/engine"
	routemapEvents "github.com/Kilat-Pet-Delivery/service-routemap/internal/events"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/handler"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/kafka"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	KafkaBrokers []string
	Cleanup      func()
}

// routemapStack holds wired-up routemap service components.
type routemapStack struct {
	Service   *application.SessionService
	Publisher *routemapEvents.SessionPublisher
	Consumer  *routemapEvents.DestinationCommandConsumer
	Server    *httptest.Server
	Cleanup   func()
}

// setupContainers starts a Kafka testcontainer and pre-creates the routemap topics.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	// Pre-create required topics.
	createTopics(t, kafkaBrokers, routemapEvents.TopicRoutemapEvents, routemapEvents.TopicRoutemapCommands)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
	}

	return &testInfra{
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupRoutemapStack wires up the full routemap service stack behind an HTTP server.
func setupRoutemapStack(t *testing.T, brokers []string) *routemapStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	producer := kafka.NewProducer(brokers, logger)
	publisher := routemapEvents.NewSessionPublisher(producer, routemapEvents.TopicRoutemapEvents, 64, logger)
	publisher.Start()

	engines := map[string]routemap.RoutingEngine{
		"estimate": engine.New("estimate", engine.NewEstimate(10), 5*time.Second, logger),
	}
	svc := application.NewSessionService(engines, "estimate", publisher, application.Options{}, logger)

	groupID := fmt.Sprintf("test-routemap-%s", uuid.New().String()[:8])
	consumer := routemapEvents.NewDestinationCommandConsumer(brokers, groupID, routemapEvents.TopicRoutemapCommands, svc, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler.NewSessionHandler(svc, nil, logger).RegisterRoutes(&router.RouterGroup, nil)
	server := httptest.NewServer(router)

	return &routemapStack{
		Service:   svc,
		Publisher: publisher,
		Consumer:  consumer,
		Server:    server,
		Cleanup: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			svc.Shutdown(ctx)
			server.Close()
			publisher.Close(ctx)
			_ = consumer.Close()
			_ = producer.Close()
		},
	}
}

// createSession creates a session over HTTP and returns its ID.
func createSession(t *testing.T, stack *routemapStack) uuid.UUID {
	t.Helper()
	resp, err := http.Post(stack.Server.URL+"/api/v1/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Data application.SessionDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data.ID
}

// setOrigin posts a manual origin for a session.
func setOrigin(t *testing.T, stack *routemapStack, sessionID uuid.UUID, lat, lon float64) {
	t.Helper()
	payload, _ := json.Marshal(map[string]float64{"lat": lat, "lon": lon})
	resp, err := http.Post(stack.Server.URL+"/api/v1/sessions/"+sessionID.String()+"/origin", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// connectMap opens the session's map websocket without geolocation.
func connectMap(t *testing.T, stack *routemapStack, sessionID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(stack.Server.URL, "http") + "/api/v1/sessions/" + sessionID.String() + "/ws?geolocation=false"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "failed to connect map websocket")

	require.Eventually(t, func() bool {
		dto, err := stack.Service.GetSession(context.Background(), sessionID, uuid.Nil)
		return err == nil && dto.SurfaceAttached
	}, 5*time.Second, 50*time.Millisecond, "map was not attached")
	return conn
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the
// expected type about the given session.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType, subject string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType && ce.Subject == subject {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
