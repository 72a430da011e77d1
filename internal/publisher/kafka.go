// Package publisher adapts the downstream lifecycle event stream: keyed,
// headered Kafka messages, partitioned by device so per-device event
// order survives downstream.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/types"
)

// writerInterface allows substituting kafkago.Writer in tests.
type writerInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// envelope is the published payload: the alert plus the send timestamp.
type envelope struct {
	types.Alert
	SentAt time.Time `json:"sentAt"`
}

// Kafka publishes alert lifecycle events.
type Kafka struct {
	writer writerInterface
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Kafka publisher for the configured events topic.
func New(cfg config.BrokerConfig, logger zerolog.Logger) *Kafka {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Kafka{
		writer: writer,
		logger: logger.With().Str("component", "publisher").Logger(),
		now:    time.Now,
	}
}

// PublishAlertEvent sends one lifecycle event, keyed by device ID, with
// the event type, device, alert ID, and severity as message headers.
func (p *Kafka) PublishAlertEvent(ctx context.Context, eventType types.EventType, alert *types.Alert) error {
	payload, err := json.Marshal(envelope{Alert: *alert, SentAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding %s event for alert %s: %w", eventType, alert.ID, err)
	}

	msg := kafkago.Message{
		Key:   []byte(alert.DeviceID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "deviceId", Value: []byte(alert.DeviceID)},
			{Key: "alertId", Value: []byte(alert.ID)},
			{Key: "severity", Value: []byte(alert.Severity)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s event for alert %s: %w", eventType, alert.ID, err)
	}

	p.logger.Debug().
		Str("event_type", string(eventType)).
		Str("alert_id", alert.ID).
		Str("device", alert.DeviceID).
		Msg("Lifecycle event published")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Kafka) Close() error {
	return p.writer.Close()
}
