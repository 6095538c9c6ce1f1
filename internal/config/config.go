package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// OSRMConfig configures the OSRM HTTP routing engine.
type OSRMConfig struct {
	URL        string
	Profile    string
	RatePerSec float64
}

// GraphConfig configures the offline graph routing engine.
type GraphConfig struct {
	File     string
	SpeedMPS float64
}

// RoutingConfig selects and configures the routing engines.
type RoutingConfig struct {
	Engine          string
	Timeout         time.Duration
	OSRM            OSRMConfig
	GoogleMapsKey   string
	Graph           GraphConfig
	EstimateSpeedMS float64
}

// KafkaConfig configures the session event stream.
type KafkaConfig struct {
	Brokers       []string
	EventsTopic   string
	CommandsTopic string
	GroupPrefix   string
}

// JWTConfig configures optional bearer authentication.
type JWTConfig struct {
	Secret string
}

// ServiceConfig holds all configuration for the routemap service.
type ServiceConfig struct {
	Port               string
	AppEnv             string
	DefaultLocale      string
	DefaultZoom        int
	SessionIdleTimeout time.Duration
	CORSAllowedOrigins []string
	Routing            RoutingConfig
	KafkaConfig        KafkaConfig
	JWTConfig          JWTConfig
}

const envPrefix = "ROUTEMAP"

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory.
func Load() (*ServiceConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &ServiceConfig{
		Port:               servicePort(v.GetString("SERVICE_PORT")),
		AppEnv:             v.GetString("APP_ENV"),
		DefaultLocale:      v.GetString("DEFAULT_LOCALE"),
		DefaultZoom:        v.GetInt("DEFAULT_ZOOM"),
		SessionIdleTimeout: v.GetDuration("SESSION_IDLE_TIMEOUT"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		Routing: RoutingConfig{
			Engine:  strings.ToLower(v.GetString("ROUTING_ENGINE")),
			Timeout: v.GetDuration("ROUTING_TIMEOUT"),
			OSRM: OSRMConfig{
				URL:        strings.TrimRight(v.GetString("OSRM_URL"), "/"),
				Profile:    v.GetString("OSRM_PROFILE"),
				RatePerSec: v.GetFloat64("OSRM_RATE_PER_SEC"),
			},
			GoogleMapsKey: v.GetString("GOOGLE_MAPS_API_KEY"),
			Graph: GraphConfig{
				File:     v.GetString("GRAPH_FILE"),
				SpeedMPS: v.GetFloat64("GRAPH_SPEED_MPS"),
			},
			EstimateSpeedMS: v.GetFloat64("ESTIMATE_SPEED_MPS"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:       splitList(v.GetString("KAFKA_BROKERS")),
			EventsTopic:   v.GetString("KAFKA_EVENTS_TOPIC"),
			CommandsTopic: v.GetString("KAFKA_COMMANDS_TOPIC"),
			GroupPrefix:   v.GetString("KAFKA_GROUP_PREFIX"),
		},
		JWTConfig: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVICE_PORT", "8080")
	v.SetDefault("DEFAULT_LOCALE", "ru")
	v.SetDefault("DEFAULT_ZOOM", 13)
	v.SetDefault("SESSION_IDLE_TIMEOUT", "30m")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("ROUTING_ENGINE", "osrm")
	v.SetDefault("ROUTING_TIMEOUT", "10s")
	v.SetDefault("OSRM_URL", "https://router.project-osrm.org")
	v.SetDefault("OSRM_PROFILE", "driving")
	v.SetDefault("OSRM_RATE_PER_SEC", 1.0)
	v.SetDefault("GRAPH_SPEED_MPS", 1.4)
	v.SetDefault("ESTIMATE_SPEED_MPS", 8.33)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_EVENTS_TOPIC", "routemap.events")
	v.SetDefault("KAFKA_COMMANDS_TOPIC", "routemap.commands")
	v.SetDefault("KAFKA_GROUP_PREFIX", "")
	v.SetDefault("JWT_SECRET", "")
}

func (c *ServiceConfig) validate() error {
	switch c.Routing.Engine {
	case "osrm":
	case "google":
		if c.Routing.GoogleMapsKey == "" {
			return fmt.Errorf("%s_GOOGLE_MAPS_API_KEY is required for the google engine", envPrefix)
		}
	case "graph":
		if c.Routing.Graph.File == "" {
			return fmt.Errorf("%s_GRAPH_FILE is required for the graph engine", envPrefix)
		}
	default:
		return fmt.Errorf("unknown routing engine %q", c.Routing.Engine)
	}
	if c.Routing.Timeout <= 0 {
		return fmt.Errorf("%s_ROUTING_TIMEOUT must be positive", envPrefix)
	}
	if c.DefaultZoom < 0 || c.DefaultZoom > 22 {
		return fmt.Errorf("%s_DEFAULT_ZOOM out of range: %d", envPrefix, c.DefaultZoom)
	}
	return nil
}

// KafkaEnabled reports whether brokers are configured.
func (c *ServiceConfig) KafkaEnabled() bool {
	return len(c.KafkaConfig.Brokers) > 0
}

func servicePort(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
