// Package alertmgr owns the persistent alert lifecycle: creation with
// dedup and rate-limit guards, acknowledgement, resolution, time-based
// escalation, and the derived indices kept in the store.
package alertmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/types"
)

// Store is the durable state backing alerts and their indices. The redis
// adapter in internal/store implements it; tests use an in-memory fake.
type Store interface {
	SaveAlert(ctx context.Context, alert *types.Alert) error
	GetAlert(ctx context.Context, id string) (*types.Alert, error)
	DeleteAlert(ctx context.Context, id, deviceID string) error
	IndexAlert(ctx context.Context, id, deviceID string) error
	RemoveActive(ctx context.Context, id string) error
	ActiveAlertIDs(ctx context.Context) ([]string, error)
	DeviceAlertIDs(ctx context.Context, deviceID string) ([]string, error)
	SetDedup(ctx context.Context, deviceID string, kind types.ViolationKind, alertID string, window time.Duration) error
	DedupExists(ctx context.Context, deviceID string, kind types.ViolationKind) (bool, error)
	SetEscalationMarker(ctx context.Context, alertID string, timeout time.Duration) error
	ClearEscalationMarker(ctx context.Context, alertID string) error
	IncrDailyCounter(ctx context.Context, day time.Time, field string) error
	DailyCounters(ctx context.Context, day time.Time) (map[string]int64, error)
	ScanAlertIDs(ctx context.Context) ([]string, error)
}

// Draft is the alert-to-be built from a violation plus reading context.
type Draft struct {
	DeviceID    string
	Kind        types.ViolationKind
	Severity    types.Severity
	Message     string
	Value       float64
	Threshold   float64
	TriggeredAt time.Time
	Metadata    map[string]string
}

// Manager drives the alert state machine against the store.
type Manager struct {
	store   Store
	cfg     config.AlertingConfig
	logger  zerolog.Logger
	limiter *rateLimiter
	now     func() time.Time

	mu           sync.Mutex
	created      uint64
	acknowledged uint64
	resolved     uint64
	escalated    uint64
	rateLimited  uint64
}

// Metrics is a snapshot of manager counters.
type Metrics struct {
	Created      uint64 `json:"created"`
	Acknowledged uint64 `json:"acknowledged"`
	Resolved     uint64 `json:"resolved"`
	Escalated    uint64 `json:"escalated"`
	RateLimited  uint64 `json:"rateLimited"`
}

// Stats is the on-demand aggregation over currently active alerts.
type Stats struct {
	TotalActive int                         `json:"totalActive"`
	BySeverity  map[types.Severity]int      `json:"bySeverity"`
	ByDevice    map[string]int              `json:"byDevice"`
	ByKind      map[types.ViolationKind]int `json:"byKind"`
	Oldest      *time.Time                  `json:"oldest,omitempty"`
	Newest      *time.Time                  `json:"newest,omitempty"`
	Today       map[string]int64            `json:"today,omitempty"`
}

// New creates a Manager.
func New(store Store, cfg config.AlertingConfig, logger zerolog.Logger) *Manager {
	log := logger.With().Str("component", "alertmgr").Logger()
	return &Manager{
		store:   store,
		cfg:     cfg,
		logger:  log,
		limiter: newRateLimiter(log, cfg.MaxAlertsPerDevice, cfg.RateLimitWindow),
		now:     time.Now,
	}
}

// CreateAlert persists a new triggered alert from a draft, writing the
// record, both indices, the dedup snapshot, and the escalation marker,
// then bumping the daily counters. The writes are sequential and
// best-effort: only a failure to write the record itself fails the call.
// A nil alert with nil error means the rate limiter rejected the draft.
func (m *Manager) CreateAlert(ctx context.Context, draft Draft) (*types.Alert, error) {
	if !m.limiter.Allow(draft.DeviceID + "|" + string(draft.Kind)) {
		m.mu.Lock()
		m.rateLimited++
		m.mu.Unlock()
		return nil, nil
	}

	now := m.now()
	triggeredAt := draft.TriggeredAt
	if triggeredAt.IsZero() {
		triggeredAt = now
	}

	alert := &types.Alert{
		ID:          newAlertID(draft.DeviceID, draft.Kind, triggeredAt),
		DeviceID:    draft.DeviceID,
		Kind:        draft.Kind,
		Severity:    draft.Severity,
		Message:     draft.Message,
		Value:       draft.Value,
		Threshold:   draft.Threshold,
		Status:      types.StatusTriggered,
		CreatedAt:   now,
		TriggeredAt: triggeredAt,
		Metadata:    draft.Metadata,
	}

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("persisting alert: %w", err)
	}
	if err := m.store.IndexAlert(ctx, alert.ID, alert.DeviceID); err != nil {
		m.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to index alert")
	}
	if err := m.store.SetDedup(ctx, alert.DeviceID, alert.Kind, alert.ID, m.cfg.DedupWindow); err != nil {
		m.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to write dedup snapshot")
	}
	if err := m.store.SetEscalationMarker(ctx, alert.ID, m.cfg.EscalationTimeout); err != nil {
		m.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to write escalation marker")
	}
	m.bumpDaily(ctx, "triggered")
	m.bumpDaily(ctx, "severity:"+string(alert.Severity))

	m.mu.Lock()
	m.created++
	m.mu.Unlock()

	m.logger.Info().
		Str("alert_id", alert.ID).
		Str("device", alert.DeviceID).
		Str("kind", string(alert.Kind)).
		Str("severity", string(alert.Severity)).
		Msg("Alert created")

	return alert, nil
}

// AcknowledgeAlert moves a triggered alert to acknowledged and cancels
// its escalation marker. Fails with NotFoundError for unknown IDs and
// InvalidStateError for alerts not in the triggered status.
func (m *Manager) AcknowledgeAlert(ctx context.Context, id, by string) (*types.Alert, error) {
	alert, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, &NotFoundError{ID: id}
	}
	if alert.Status != types.StatusTriggered {
		return nil, &InvalidStateError{ID: id, Status: alert.Status, Op: "acknowledge"}
	}

	now := m.now()
	alert.Status = types.StatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = by

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("persisting acknowledgement: %w", err)
	}
	if err := m.store.ClearEscalationMarker(ctx, id); err != nil {
		m.logger.Error().Err(err).Str("alert_id", id).Msg("Failed to clear escalation marker")
	}
	m.bumpDaily(ctx, "acknowledged")

	m.mu.Lock()
	m.acknowledged++
	m.mu.Unlock()

	m.logger.Info().Str("alert_id", id).Str("by", by).Msg("Alert acknowledged")
	return alert, nil
}

// ResolveAlert moves an alert to resolved from either the triggered or
// acknowledged status and drops it from the active set. Resolving an
// already-resolved alert is a no-op, not an error. The record is kept
// until the retention sweep removes it.
func (m *Manager) ResolveAlert(ctx context.Context, id, by string) (*types.Alert, error) {
	alert, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, &NotFoundError{ID: id}
	}
	if alert.Status == types.StatusResolved {
		return alert, nil
	}

	now := m.now()
	alert.Status = types.StatusResolved
	alert.ResolvedAt = &now
	if by != "" {
		if alert.Metadata == nil {
			alert.Metadata = make(map[string]string)
		}
		alert.Metadata["resolvedBy"] = by
	}

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("persisting resolution: %w", err)
	}
	if err := m.store.RemoveActive(ctx, id); err != nil {
		m.logger.Error().Err(err).Str("alert_id", id).Msg("Failed to remove alert from active set")
	}
	if err := m.store.ClearEscalationMarker(ctx, id); err != nil {
		m.logger.Error().Err(err).Str("alert_id", id).Msg("Failed to clear escalation marker")
	}
	m.bumpDaily(ctx, "resolved")

	m.mu.Lock()
	m.resolved++
	m.mu.Unlock()

	m.logger.Info().
		Str("alert_id", id).
		Str("by", by).
		Dur("active_for", now.Sub(alert.TriggeredAt)).
		Msg("Alert resolved")
	return alert, nil
}

// EscalateAlert bumps a triggered alert one severity step, increments its
// escalation level, and resets the escalation marker. Alerts in any other
// status are returned unchanged.
func (m *Manager) EscalateAlert(ctx context.Context, id string) (*types.Alert, error) {
	alert, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, &NotFoundError{ID: id}
	}
	if alert.Status != types.StatusTriggered {
		return alert, nil
	}

	now := m.now()
	alert.Severity = alert.Severity.Next()
	alert.EscalationLevel++
	alert.EscalatedAt = &now

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("persisting escalation: %w", err)
	}
	if err := m.store.SetEscalationMarker(ctx, id, m.cfg.EscalationTimeout); err != nil {
		m.logger.Error().Err(err).Str("alert_id", id).Msg("Failed to reset escalation marker")
	}
	m.bumpDaily(ctx, "escalated")

	m.mu.Lock()
	m.escalated++
	m.mu.Unlock()

	m.logger.Warn().
		Str("alert_id", id).
		Str("severity", string(alert.Severity)).
		Int("level", alert.EscalationLevel).
		Msg("Alert escalated")
	return alert, nil
}

// CheckEscalations scans active alerts and escalates every triggered
// alert whose last escalation (or initial trigger) is older than the
// escalation timeout. Driven by the engine's fixed scan period; the TTL
// marker in the store is informational only.
func (m *Manager) CheckEscalations(ctx context.Context) ([]*types.Alert, error) {
	ids, err := m.store.ActiveAlertIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var escalated []*types.Alert
	for _, id := range ids {
		alert, err := m.store.GetAlert(ctx, id)
		if err != nil {
			m.logger.Error().Err(err).Str("alert_id", id).Msg("Failed to load alert during escalation scan")
			continue
		}
		if alert == nil || alert.Status != types.StatusTriggered {
			continue
		}

		since := alert.TriggeredAt
		if alert.EscalatedAt != nil {
			since = *alert.EscalatedAt
		}
		if now.Sub(since) <= m.cfg.EscalationTimeout {
			continue
		}

		updated, err := m.EscalateAlert(ctx, id)
		if err != nil {
			m.logger.Error().Err(err).Str("alert_id", id).Msg("Failed to escalate alert")
			continue
		}
		escalated = append(escalated, updated)
	}
	return escalated, nil
}

// IsDuplicate reports whether a live dedup snapshot exists for the
// (device, kind) pair. Advisory only: under concurrent creation a rare
// duplicate is accepted over a missed alert.
func (m *Manager) IsDuplicate(ctx context.Context, deviceID string, kind types.ViolationKind) (bool, error) {
	return m.store.DedupExists(ctx, deviceID, kind)
}

// GetActiveAlertsForDevice returns the device's non-resolved alerts.
func (m *Manager) GetActiveAlertsForDevice(ctx context.Context, deviceID string) ([]*types.Alert, error) {
	ids, err := m.store.DeviceAlertIDs(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return m.loadActive(ctx, ids)
}

// GetAllActiveAlerts returns every non-resolved alert, newest first.
func (m *Manager) GetAllActiveAlerts(ctx context.Context) ([]*types.Alert, error) {
	ids, err := m.store.ActiveAlertIDs(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := m.loadActive(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt)
	})
	return alerts, nil
}

// GetAlertStats aggregates active alerts by severity, device, and kind,
// and attaches today's daily counters.
func (m *Manager) GetAlertStats(ctx context.Context) (*Stats, error) {
	alerts, err := m.GetAllActiveAlerts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalActive: len(alerts),
		BySeverity:  make(map[types.Severity]int),
		ByDevice:    make(map[string]int),
		ByKind:      make(map[types.ViolationKind]int),
	}
	for _, a := range alerts {
		stats.BySeverity[a.Severity]++
		stats.ByDevice[a.DeviceID]++
		stats.ByKind[a.Kind]++
		t := a.TriggeredAt
		if stats.Oldest == nil || t.Before(*stats.Oldest) {
			tt := t
			stats.Oldest = &tt
		}
		if stats.Newest == nil || t.After(*stats.Newest) {
			tt := t
			stats.Newest = &tt
		}
	}

	today, err := m.store.DailyCounters(ctx, m.now())
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to read daily counters")
	} else if len(today) > 0 {
		stats.Today = today
	}
	return stats, nil
}

// CleanupResolved deletes resolved alert records older than the retention
// period, returning the number removed.
func (m *Manager) CleanupResolved(ctx context.Context, retention time.Duration) (int, error) {
	ids, err := m.store.ScanAlertIDs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-retention)
	removed := 0
	for _, id := range ids {
		alert, err := m.store.GetAlert(ctx, id)
		if err != nil {
			m.logger.Error().Err(err).Str("alert_id", id).Msg("Failed to load alert during cleanup")
			continue
		}
		if alert == nil || alert.Status != types.StatusResolved {
			continue
		}
		if alert.ResolvedAt == nil || alert.ResolvedAt.After(cutoff) {
			continue
		}
		if err := m.store.DeleteAlert(ctx, id, alert.DeviceID); err != nil {
			m.logger.Error().Err(err).Str("alert_id", id).Msg("Failed to delete expired alert")
			continue
		}
		removed++
	}

	m.limiter.Cleanup()
	return removed, nil
}

// Metrics returns a snapshot of manager counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		Created:      m.created,
		Acknowledged: m.acknowledged,
		Resolved:     m.resolved,
		Escalated:    m.escalated,
		RateLimited:  m.rateLimited,
	}
}

// loadActive fetches alerts by ID, dropping missing and resolved records.
func (m *Manager) loadActive(ctx context.Context, ids []string) ([]*types.Alert, error) {
	alerts := make([]*types.Alert, 0, len(ids))
	for _, id := range ids {
		alert, err := m.store.GetAlert(ctx, id)
		if err != nil {
			m.logger.Error().Err(err).Str("alert_id", id).Msg("Failed to load alert")
			continue
		}
		if alert == nil || alert.Status == types.StatusResolved {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// bumpDaily increments a daily counter, logging failures instead of
// surfacing them; counters are advisory.
func (m *Manager) bumpDaily(ctx context.Context, field string) {
	if err := m.store.IncrDailyCounter(ctx, m.now(), field); err != nil {
		m.logger.Error().Err(err).Str("field", field).Msg("Failed to bump daily counter")
	}
}

// newAlertID builds a unique, immutable alert ID from the device, the
// violation kind, the trigger time, and a random suffix.
func newAlertID(deviceID string, kind types.ViolationKind, ts time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s:%s:%d:%s", deviceID, kind, ts.UnixMilli(), suffix)
}
