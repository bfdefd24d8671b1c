// Package config defines service configuration structures and loading hooks.
//
// Durations are kept as integer milliseconds so that they can be set from a
// flat env var; the accessor methods convert them to time.Duration.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/roadwatch/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the inbound command queue.
	QueueSize int `koanf:"queue_size"`

	AlertDistanceMeters float64 `koanf:"alert_distance_meters"`
	CooldownMS          int     `koanf:"cooldown_ms"`

	IntersectionRadiusMeters float64  `koanf:"intersection_radius_meters"`
	IntersectionDebounceMS   int      `koanf:"intersection_debounce_ms"`
	IntersectionRoles        []string `koanf:"intersection_roles"`
	IntersectionMaxResults   int      `koanf:"intersection_max_results"`

	// POISource locates the intersections GeoJSON: file://, http(s):// or
	// minio://bucket/object. Empty leaves the static index absent.
	POISource              string `koanf:"poi_source"`
	POIIDProperty          string `koanf:"poi_id_property"`
	POIDescriptionProperty string `koanf:"poi_description_property"`

	MinIOEndpoint  string `koanf:"minio_endpoint"`
	MinIOAccessKey string `koanf:"minio_access_key"`
	MinIOSecretKey string `koanf:"minio_secret_key"`
	MinIOUseSSL    bool   `koanf:"minio_use_ssl"`
	MinIORegion    string `koanf:"minio_region"`

	// ActorTTLMS evicts actors that have not reported for this long. 0 disables.
	ActorTTLMS      int `koanf:"actor_ttl_ms"`
	PruneIntervalMS int `koanf:"prune_interval_ms"`

	// SendBuffer bounds each websocket connection's outbound queue.
	SendBuffer int `koanf:"send_buffer"`

	// ClassifierURL points at the external detector. Empty selects the simulated one.
	ClassifierURL          string `koanf:"classifier_url"`
	ClassifierTimeoutMS    int    `koanf:"classifier_timeout_ms"`
	ClassifierLatencyMinMS int    `koanf:"classifier_latency_min_ms"`
	ClassifierLatencyMaxMS int    `koanf:"classifier_latency_max_ms"`
	ClassifierLabel        string `koanf:"classifier_label"`

	// KafkaBrokers enables the Kafka transport when non-empty.
	KafkaBrokers      []string `koanf:"kafka_brokers"`
	KafkaReportsTopic string   `koanf:"kafka_reports_topic"`
	KafkaAlertsTopic  string   `koanf:"kafka_alerts_topic"`
	KafkaGroupID      string   `koanf:"kafka_group_id"`

	TracingEnabled     bool    `koanf:"tracing_enabled"`
	TracingExporter    string  `koanf:"tracing_exporter"`
	TracingEndpoint    string  `koanf:"tracing_endpoint"`
	TracingSampleRatio float64 `koanf:"tracing_sample_ratio"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		QueueSize:                10_000,
		AlertDistanceMeters:      50,
		CooldownMS:               5000,
		IntersectionRadiusMeters: 20,
		IntersectionDebounceMS:   5000,
		IntersectionRoles:        []string{"A"},
		IntersectionMaxResults:   5,
		POIIDProperty:            "INTERSECTION_ID",
		POIDescriptionProperty:   "INTERSECTION_DESC",
		MinIORegion:              "us-east-1",
		PruneIntervalMS:          30_000,
		SendBuffer:               64,
		ClassifierTimeoutMS:      2000,
		ClassifierLatencyMinMS:   80,
		ClassifierLatencyMaxMS:   150,
		ClassifierLabel:          "car",
		KafkaReportsTopic:        "position_reports",
		KafkaAlertsTopic:         "proximity_alerts",
		KafkaGroupID:             "roadwatch",
		TracingExporter:          "stdout",
		TracingEndpoint:          "localhost:4317",
		TracingSampleRatio:       1.0,
	}
}

// Validate reports the first invalid setting, wrapped with ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if c.AlertDistanceMeters < 0 || math.IsNaN(c.AlertDistanceMeters) {
		return fmt.Errorf("%w: alert_distance_meters must be >= 0", ErrInvalidConfig)
	}
	if c.CooldownMS < 0 {
		return fmt.Errorf("%w: cooldown_ms must be >= 0", ErrInvalidConfig)
	}
	if c.IntersectionRadiusMeters < 0 || math.IsNaN(c.IntersectionRadiusMeters) {
		return fmt.Errorf("%w: intersection_radius_meters must be >= 0", ErrInvalidConfig)
	}
	if c.IntersectionDebounceMS < 0 {
		return fmt.Errorf("%w: intersection_debounce_ms must be >= 0", ErrInvalidConfig)
	}
	if _, err := c.Roles(); err != nil {
		return fmt.Errorf("%w: intersection_roles: %w", ErrInvalidConfig, err)
	}
	if c.ClassifierLatencyMinMS < 0 || c.ClassifierLatencyMaxMS < c.ClassifierLatencyMinMS {
		return fmt.Errorf("%w: classifier latency range is invalid", ErrInvalidConfig)
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return fmt.Errorf("%w: tracing_sample_ratio must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}

// Roles parses IntersectionRoles.
func (c *Config) Roles() ([]model.Role, error) {
	roles := make([]model.Role, 0, len(c.IntersectionRoles))
	for _, s := range c.IntersectionRoles {
		r, err := model.ParseRole(s)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Cooldown returns CooldownMS as a duration.
func (c *Config) Cooldown() time.Duration { return ms(c.CooldownMS) }

// IntersectionDebounce returns IntersectionDebounceMS as a duration.
func (c *Config) IntersectionDebounce() time.Duration { return ms(c.IntersectionDebounceMS) }

// ActorTTL returns ActorTTLMS as a duration.
func (c *Config) ActorTTL() time.Duration { return ms(c.ActorTTLMS) }

// PruneInterval returns PruneIntervalMS as a duration.
func (c *Config) PruneInterval() time.Duration { return ms(c.PruneIntervalMS) }

// ClassifierTimeout returns ClassifierTimeoutMS as a duration.
func (c *Config) ClassifierTimeout() time.Duration { return ms(c.ClassifierTimeoutMS) }
