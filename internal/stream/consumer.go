// Package stream consumes sensor readings from the broker and feeds them
// into the engine. Delivery is at-least-once: offsets are committed only
// after a reading has been handed over, and the dedup window downstream
// absorbs redelivery.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/metrics"
	"github.com/fleetwatch/fleetwatch/internal/types"
)

// Handler receives decoded readings. ProcessSensorData must contain its
// own failures; the consumer treats every handed-over message as done.
type Handler interface {
	ProcessSensorData(ctx context.Context, reading types.SensorReading)
}

// readerInterface allows substituting kafkago.Reader in tests.
type readerInterface interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads the sensor readings topic as part of a consumer group.
type Consumer struct {
	reader  readerInterface
	handler Handler
	logger  zerolog.Logger
}

// New creates a Consumer for the configured readings topic.
func New(cfg config.BrokerConfig, handler Handler, logger zerolog.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    cfg.ReadingsTopic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{
		reader:  reader,
		handler: handler,
		logger:  logger.With().Str("component", "stream").Logger(),
	}
}

// Run consumes messages until ctx is cancelled. Transport errors back the
// loop off exponentially; decode failures drop the message. One bad
// record never halts the stream.
func (c *Consumer) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 2 * time.Minute
	bo.MaxElapsedTime = 0

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			c.logger.Error().
				Err(err).
				Dur("retry_in", wait).
				Msg("Failed to fetch message, backing off")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		var reading types.SensorReading
		if err := json.Unmarshal(msg.Value, &reading); err != nil {
			metrics.ProcessingErrors.Inc()
			c.logger.Warn().
				Err(err).
				Int64("offset", msg.Offset).
				Msg("Dropping undecodable message")
		} else {
			c.handler.ProcessSensorData(ctx, reading)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().
				Err(err).
				Int64("offset", msg.Offset).
				Msg("Failed to commit offset")
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
