package types

import "time"

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the numeric order of a severity (low=0 .. critical=3).
// Unknown severities rank below low.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Next returns the severity one step up. Critical saturates.
func (s Severity) Next() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh, SeverityCritical:
		return SeverityCritical
	}
	return s
}

// Status is the lifecycle state of an alert. Transitions only move
// forward: triggered -> acknowledged -> resolved, or triggered -> resolved.
// Resolved is terminal.
type Status string

const (
	StatusTriggered    Status = "triggered"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// ViolationKind is the closed set of rule breaches the evaluator can detect.
type ViolationKind string

const (
	KindThresholdExceeded   ViolationKind = "threshold_exceeded"
	KindThresholdBelow      ViolationKind = "threshold_below"
	KindTrendWarning        ViolationKind = "trend_warning"
	KindDataAnomaly         ViolationKind = "data_anomaly"
	KindDeviceCommunication ViolationKind = "device_communication"
)

// SensorReading is a single measurement delivered by the stream.
type SensorReading struct {
	DeviceID   string    `json:"deviceId"`
	SensorType string    `json:"sensorType"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Location   string    `json:"location,omitempty"`
	Status     string    `json:"status,omitempty"`
}

// ThresholdConfig is the static per-device rule configuration, loaded once
// at startup.
type ThresholdConfig struct {
	Min      float64 `yaml:"min" json:"min"`
	Max      float64 `yaml:"max" json:"max"`
	Type     string  `yaml:"type" json:"type"`
	Unit     string  `yaml:"unit,omitempty" json:"unit,omitempty"`
	Location string  `yaml:"location,omitempty" json:"location,omitempty"`
}

// TrendInfo carries the regression result attached to a trend warning.
type TrendInfo struct {
	Direction          string  `json:"direction"`
	Rate               float64 `json:"rate"`
	SecondsToThreshold float64 `json:"secondsToThreshold"`
}

// AnomalyStats carries the statistics behind a data anomaly violation.
type AnomalyStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	ZScore float64 `json:"zScore"`
}

// Violation is a single rule breach for one reading. Violations are
// transient: they exist between evaluation and alert creation and are
// never persisted.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	Severity  Severity      `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Deviation float64       `json:"deviation"`
	Trend     *TrendInfo    `json:"trend,omitempty"`
	Stats     *AnomalyStats `json:"stats,omitempty"`
}

// Alert is the persistent record of an ongoing or past anomaly for a
// device. The ID is unique and immutable; EscalationLevel only grows
// while the alert stays triggered.
type Alert struct {
	ID              string            `json:"id"`
	DeviceID        string            `json:"deviceId"`
	Kind            ViolationKind     `json:"kind"`
	Severity        Severity          `json:"severity"`
	Message         string            `json:"message"`
	Value           float64           `json:"value"`
	Threshold       float64           `json:"threshold"`
	Status          Status            `json:"status"`
	CreatedAt       time.Time         `json:"createdAt"`
	TriggeredAt     time.Time         `json:"triggeredAt"`
	AcknowledgedAt  *time.Time        `json:"acknowledgedAt,omitempty"`
	ResolvedAt      *time.Time        `json:"resolvedAt,omitempty"`
	EscalatedAt     *time.Time        `json:"escalatedAt,omitempty"`
	AcknowledgedBy  string            `json:"acknowledgedBy,omitempty"`
	EscalationLevel int               `json:"escalationLevel"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// EventType identifies a lifecycle event published downstream.
type EventType string

const (
	EventAlertTriggered    EventType = "alert-triggered"
	EventAlertResolved     EventType = "alert-resolved"
	EventAlertAcknowledged EventType = "alert-acknowledged"
	EventAlertEscalated    EventType = "alert-escalated"
)
