package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a single file (legacy method)
func LoadConfig(path string) (*Config, error) {
	return LoadConfigDir(filepath.Dir(path))
}

// LoadConfigDir loads all configuration files from a directory
func LoadConfigDir(dir string) (*Config, error) {
	cfg := &Config{}

	// Load fleetwatch.yaml
	if err := loadYAML(filepath.Join(dir, "fleetwatch.yaml"), cfg); err != nil {
		return nil, fmt.Errorf("loading fleetwatch.yaml: %w", err)
	}

	// Load thresholds.yaml
	if err := loadYAML(filepath.Join(dir, "thresholds.yaml"), &cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("loading thresholds.yaml: %w", err)
	}

	applyDefaults(cfg)

	// Validate configuration
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in defaults for settings the config files omit
func applyDefaults(cfg *Config) {
	if cfg.Store.Address == "" {
		cfg.Store.Address = "localhost:6379"
	}
	if cfg.Store.PoolSize == 0 {
		cfg.Store.PoolSize = 50
	}
	if cfg.Store.DialTimeout == 0 {
		cfg.Store.DialTimeout = 5 * time.Second
	}
	if cfg.Store.ReadTimeout == 0 {
		cfg.Store.ReadTimeout = 3 * time.Second
	}
	if cfg.Store.WriteTimeout == 0 {
		cfg.Store.WriteTimeout = 3 * time.Second
	}
	if cfg.Broker.ReadingsTopic == "" {
		cfg.Broker.ReadingsTopic = "sensor-readings"
	}
	if cfg.Broker.EventsTopic == "" {
		cfg.Broker.EventsTopic = "alert-events"
	}
	if cfg.Broker.ConsumerGroup == "" {
		cfg.Broker.ConsumerGroup = "fleetwatch-engine"
	}
	if cfg.Alerting.DedupWindow == 0 {
		cfg.Alerting.DedupWindow = 60 * time.Second
	}
	if cfg.Alerting.EscalationTimeout == 0 {
		cfg.Alerting.EscalationTimeout = 15 * time.Minute
	}
	if cfg.Alerting.EscalationInterval == 0 {
		cfg.Alerting.EscalationInterval = 60 * time.Second
	}
	if cfg.Alerting.CleanupInterval == 0 {
		cfg.Alerting.CleanupInterval = time.Hour
	}
	if cfg.Alerting.RetentionDays == 0 {
		cfg.Alerting.RetentionDays = 7
	}
	if cfg.Alerting.MaxAlertsPerDevice == 0 {
		cfg.Alerting.MaxAlertsPerDevice = 10
	}
	if cfg.Alerting.RateLimitWindow == 0 {
		cfg.Alerting.RateLimitWindow = time.Minute
	}
	if cfg.Evaluator.DefaultInterval == 0 {
		cfg.Evaluator.DefaultInterval = 5 * time.Second
	}
	if cfg.Admin.Port == "" {
		cfg.Admin.Port = "8088"
	}
}

// loadYAML loads a YAML file into a struct
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if len(cfg.Thresholds.Devices) == 0 {
		return fmt.Errorf("no device thresholds configured")
	}

	for deviceID, t := range cfg.Thresholds.Devices {
		if t.Type == "" {
			return fmt.Errorf("device %s: sensor type is required", deviceID)
		}
		if t.Min >= t.Max {
			return fmt.Errorf("device %s: min (%v) must be below max (%v)", deviceID, t.Min, t.Max)
		}
	}

	if len(cfg.Broker.Brokers) == 0 {
		return fmt.Errorf("no broker addresses configured")
	}

	if cfg.Alerting.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if cfg.Alerting.MaxAlertsPerDevice < 1 {
		return fmt.Errorf("max_alerts_per_device must be at least 1")
	}

	for sensorType, d := range cfg.Evaluator.ExpectedIntervals {
		if d <= 0 {
			return fmt.Errorf("expected interval for %s must be positive", sensorType)
		}
	}

	return nil
}
