package config

import (
	"time"

	"github.com/fleetwatch/fleetwatch/internal/types"
)

// Config represents the complete Fleetwatch configuration
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Broker     BrokerConfig     `yaml:"broker"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Evaluator  EvaluatorConfig  `yaml:"evaluator"`
	Admin      AdminConfig      `yaml:"admin"`
	Thresholds ThresholdsConfig `yaml:"-"`
}

// StoreConfig contains connection settings for the Redis store
type StoreConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password,omitempty"`
	DB           int           `yaml:"db,omitempty"`
	PoolSize     int           `yaml:"pool_size,omitempty"`
	DialTimeout  time.Duration `yaml:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// BrokerConfig contains Kafka connection and topic settings
type BrokerConfig struct {
	Brokers       []string `yaml:"brokers"`
	ReadingsTopic string   `yaml:"readings_topic"`
	EventsTopic   string   `yaml:"events_topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// AlertingConfig defines alert lifecycle behavior
type AlertingConfig struct {
	DedupWindow        time.Duration `yaml:"deduplication_window"`
	EscalationTimeout  time.Duration `yaml:"escalation_timeout"`
	EscalationInterval time.Duration `yaml:"escalation_interval"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	RetentionDays      int           `yaml:"retention_days"`
	MaxAlertsPerDevice int           `yaml:"max_alerts_per_device"`
	RateLimitWindow    time.Duration `yaml:"rate_limit_window"`
}

// EvaluatorConfig defines rule evaluation behavior
type EvaluatorConfig struct {
	// ExpectedIntervals maps a sensor type to the interval readings are
	// expected to arrive at, used by the communication health check.
	ExpectedIntervals map[string]time.Duration `yaml:"expected_intervals,omitempty"`
	DefaultInterval   time.Duration            `yaml:"default_interval"`
}

// AdminConfig defines the admin HTTP surface
type AdminConfig struct {
	Port string `yaml:"port"`
}

// ThresholdsConfig maps a device ID to its static threshold rule.
// Loaded once at startup; not hot-reloadable.
type ThresholdsConfig struct {
	Devices map[string]types.ThresholdConfig `yaml:"devices"`
}

// ExpectedInterval returns the reading interval configured for a sensor
// type, or the default when none is configured.
func (c EvaluatorConfig) ExpectedInterval(sensorType string) time.Duration {
	if d, ok := c.ExpectedIntervals[sensorType]; ok && d > 0 {
		return d
	}
	return c.DefaultInterval
}
