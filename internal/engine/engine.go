// Package engine orchestrates the alerting pipeline: rule evaluation of
// incoming readings, deduplicated alert creation, automatic resolution,
// periodic escalation, and lifecycle event publication.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetwatch/fleetwatch/internal/alertmgr"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/evaluator"
	"github.com/fleetwatch/fleetwatch/internal/metrics"
	"github.com/fleetwatch/fleetwatch/internal/types"
)

// Publisher delivers lifecycle events downstream.
type Publisher interface {
	PublishAlertEvent(ctx context.Context, eventType types.EventType, alert *types.Alert) error
}

// Engine drives readings through evaluation and the alert lifecycle.
// Readings are handled one at a time on the caller's goroutine; the
// dedup and escalation state for one device is never raced within a
// process. Partition the stream by device when scaling out.
type Engine struct {
	evaluator *evaluator.Evaluator
	manager   *alertmgr.Manager
	publisher Publisher
	cfg       config.AlertingConfig
	logger    zerolog.Logger
	now       func() time.Time

	mu                sync.Mutex
	messagesProcessed uint64
	alertsTriggered   uint64
	alertsResolved    uint64
	processingErrors  uint64
	lastProcessedAt   time.Time

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
}

// Metrics is the engine counter snapshot plus sub-component metrics.
type Metrics struct {
	MessagesProcessed uint64            `json:"messagesProcessed"`
	AlertsTriggered   uint64            `json:"alertsTriggered"`
	AlertsResolved    uint64            `json:"alertsResolved"`
	ProcessingErrors  uint64            `json:"processingErrors"`
	LastProcessedAt   *time.Time        `json:"lastProcessedAt,omitempty"`
	Evaluator         evaluator.Metrics `json:"evaluator"`
	Manager           alertmgr.Metrics  `json:"alertManager"`
}

// New creates an Engine.
func New(eval *evaluator.Evaluator, manager *alertmgr.Manager, pub Publisher, cfg config.AlertingConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		evaluator: eval,
		manager:   manager,
		publisher: pub,
		cfg:       cfg,
		logger:    logger.With().Str("component", "engine").Logger(),
		now:       time.Now,
	}
}

// Start launches the periodic escalation, cleanup, and metrics loops.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(3)
	go e.escalationLoop(ctx)
	go e.cleanupLoop(ctx)
	go e.metricsLoop(ctx)
}

// Shutdown cancels the periodic loops and waits for them to exit.
// Safe to call more than once.
func (e *Engine) Shutdown() {
	e.shutdown.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.logger.Info().Msg("Engine stopped")
	})
}

// ProcessSensorData runs one reading through evaluation, creates alerts
// for non-duplicate violations, and auto-resolves the device's active
// alerts that the reading clears. Malformed input and collaborator
// failures are logged and counted; they never stop the stream.
func (e *Engine) ProcessSensorData(ctx context.Context, reading types.SensorReading) {
	defer func() {
		if r := recover(); r != nil {
			e.countError()
			e.logger.Error().
				Interface("panic", r).
				Str("device", reading.DeviceID).
				Msg("Panic while processing reading")
		}
	}()

	if reading.DeviceID == "" || reading.SensorType == "" {
		e.countError()
		e.logger.Warn().
			Str("device", reading.DeviceID).
			Str("sensor_type", reading.SensorType).
			Msg("Dropping malformed reading")
		return
	}
	ts := reading.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}

	violations := e.evaluator.Evaluate(reading.DeviceID, reading.Value, reading.SensorType, ts)

	// Violations are handled strictly in evaluator order, one at a time,
	// so the dedup state for this device cannot race itself.
	for _, v := range violations {
		metrics.ViolationsDetected.WithLabelValues(string(v.Kind)).Inc()
		e.handleViolation(ctx, reading, ts, v)
	}

	e.resolvePass(ctx, reading)

	e.mu.Lock()
	e.messagesProcessed++
	e.lastProcessedAt = e.now()
	e.mu.Unlock()
	metrics.ReadingsProcessed.Inc()
}

// handleViolation creates and announces an alert for one violation
// unless the dedup window or rate limiter absorbs it.
func (e *Engine) handleViolation(ctx context.Context, reading types.SensorReading, ts time.Time, v types.Violation) {
	dup, err := e.manager.IsDuplicate(ctx, reading.DeviceID, v.Kind)
	if err != nil {
		e.countError()
		e.logger.Error().Err(err).Str("device", reading.DeviceID).Msg("Dedup check failed")
		return
	}
	if dup {
		metrics.DedupSkipped.Inc()
		e.logger.Debug().
			Str("device", reading.DeviceID).
			Str("kind", string(v.Kind)).
			Msg("Violation within dedup window, skipping")
		return
	}

	md := map[string]string{
		"sensorType": reading.SensorType,
		"readingAt":  ts.UTC().Format(time.RFC3339),
	}
	if reading.Location != "" {
		md["location"] = reading.Location
	}
	if reading.Unit != "" {
		md["unit"] = reading.Unit
	}
	if v.Trend != nil {
		md["trendDirection"] = v.Trend.Direction
	}

	alert, err := e.manager.CreateAlert(ctx, alertmgr.Draft{
		DeviceID:    reading.DeviceID,
		Kind:        v.Kind,
		Severity:    v.Severity,
		Message:     v.Message,
		Value:       v.Value,
		Threshold:   v.Threshold,
		TriggeredAt: ts,
		Metadata:    md,
	})
	if err != nil {
		e.countError()
		e.logger.Error().Err(err).Str("device", reading.DeviceID).Msg("Failed to create alert")
		return
	}
	if alert == nil {
		// Rate limiter rejected the draft
		return
	}

	e.mu.Lock()
	e.alertsTriggered++
	e.mu.Unlock()
	metrics.AlertsTriggered.WithLabelValues(string(alert.Severity)).Inc()

	e.publish(ctx, types.EventAlertTriggered, alert)
}

// resolvePass checks every active alert for the reading's device against
// the resolution rules and resolves the ones the reading clears.
func (e *Engine) resolvePass(ctx context.Context, reading types.SensorReading) {
	active, err := e.manager.GetActiveAlertsForDevice(ctx, reading.DeviceID)
	if err != nil {
		e.countError()
		e.logger.Error().Err(err).Str("device", reading.DeviceID).Msg("Failed to load active alerts")
		return
	}

	for _, alert := range active {
		if !e.evaluator.CheckResolution(alert, reading.Value, reading.SensorType) {
			continue
		}
		resolved, err := e.manager.ResolveAlert(ctx, alert.ID, "auto-resolution")
		if err != nil {
			e.countError()
			e.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Auto-resolution failed")
			continue
		}

		e.mu.Lock()
		e.alertsResolved++
		e.mu.Unlock()
		metrics.AlertsResolved.Inc()

		e.publish(ctx, types.EventAlertResolved, resolved)
	}
}

// CheckEscalations escalates overdue triggered alerts and publishes an
// event per escalation.
func (e *Engine) CheckEscalations(ctx context.Context) error {
	escalated, err := e.manager.CheckEscalations(ctx)
	if err != nil {
		return fmt.Errorf("escalation scan: %w", err)
	}
	for _, alert := range escalated {
		metrics.AlertsEscalated.Inc()
		e.publish(ctx, types.EventAlertEscalated, alert)
	}
	return nil
}

// CleanupOldAlerts deletes resolved alerts past the retention period.
func (e *Engine) CleanupOldAlerts(ctx context.Context) error {
	retention := time.Duration(e.cfg.RetentionDays) * 24 * time.Hour
	removed, err := e.manager.CleanupResolved(ctx, retention)
	if err != nil {
		return fmt.Errorf("retention sweep: %w", err)
	}
	if removed > 0 {
		e.logger.Info().Int("removed", removed).Msg("Retention sweep removed expired alerts")
	}
	return nil
}

// AcknowledgeAlert acknowledges an alert on behalf of an operator and
// publishes the lifecycle event. Store errors surface to the caller.
func (e *Engine) AcknowledgeAlert(ctx context.Context, id, by string) (*types.Alert, error) {
	alert, err := e.manager.AcknowledgeAlert(ctx, id, by)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, types.EventAlertAcknowledged, alert)
	return alert, nil
}

// ResolveAlert resolves an alert on behalf of an operator and publishes
// the lifecycle event. Store errors surface to the caller.
func (e *Engine) ResolveAlert(ctx context.Context, id, by string) (*types.Alert, error) {
	alert, err := e.manager.ResolveAlert(ctx, id, by)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.alertsResolved++
	e.mu.Unlock()
	metrics.AlertsResolved.Inc()

	e.publish(ctx, types.EventAlertResolved, alert)
	return alert, nil
}

// GetActiveAlerts returns all non-resolved alerts, newest first.
func (e *Engine) GetActiveAlerts(ctx context.Context) ([]*types.Alert, error) {
	return e.manager.GetAllActiveAlerts(ctx)
}

// GetAlertStats returns the on-demand aggregation over active alerts.
func (e *Engine) GetAlertStats(ctx context.Context) (*alertmgr.Stats, error) {
	return e.manager.GetAlertStats(ctx)
}

// GetMetrics returns engine counters plus sub-component metrics.
func (e *Engine) GetMetrics() Metrics {
	e.mu.Lock()
	m := Metrics{
		MessagesProcessed: e.messagesProcessed,
		AlertsTriggered:   e.alertsTriggered,
		AlertsResolved:    e.alertsResolved,
		ProcessingErrors:  e.processingErrors,
	}
	if !e.lastProcessedAt.IsZero() {
		t := e.lastProcessedAt
		m.LastProcessedAt = &t
	}
	e.mu.Unlock()

	m.Evaluator = e.evaluator.Metrics()
	m.Manager = e.manager.Metrics()
	return m
}

// publish sends a lifecycle event, counting but not propagating failures:
// event delivery is downstream of the state change and must not undo it.
func (e *Engine) publish(ctx context.Context, eventType types.EventType, alert *types.Alert) {
	if err := e.publisher.PublishAlertEvent(ctx, eventType, alert); err != nil {
		e.countError()
		e.logger.Error().
			Err(err).
			Str("event_type", string(eventType)).
			Str("alert_id", alert.ID).
			Msg("Failed to publish lifecycle event")
		return
	}
	metrics.EventsPublished.WithLabelValues(string(eventType)).Inc()
}

func (e *Engine) countError() {
	e.mu.Lock()
	e.processingErrors++
	e.mu.Unlock()
	metrics.ProcessingErrors.Inc()
}

func (e *Engine) escalationLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.EscalationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.CheckEscalations(ctx); err != nil {
				e.logger.Error().Err(err).Msg("Escalation check failed")
			}
		}
	}
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.CleanupOldAlerts(ctx); err != nil {
				e.logger.Error().Err(err).Msg("Cleanup failed")
			}
		}
	}
}

// metricsLoop periodically logs engine counters and refreshes the active
// alert gauge.
func (e *Engine) metricsLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := e.GetMetrics()
			e.logger.Info().
				Uint64("messages_processed", m.MessagesProcessed).
				Uint64("alerts_triggered", m.AlertsTriggered).
				Uint64("alerts_resolved", m.AlertsResolved).
				Uint64("processing_errors", m.ProcessingErrors).
				Msg("Engine metrics")

			if active, err := e.manager.GetAllActiveAlerts(ctx); err == nil {
				metrics.ActiveAlerts.Set(float64(len(active)))
			}
		}
	}
}
