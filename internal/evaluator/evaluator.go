package evaluator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/types"
	"github.com/rs/zerolog"
)

const (
	historyCap        = 50
	trendMinPoints    = 5
	trendWindow       = 5
	trendMinRate      = 0.1
	trendHorizon      = 300 * time.Second
	anomalyMinPoints  = 10
	anomalyWindow     = 20
	zScoreThreshold   = 3.0
	healthMissFactor  = 3
	resolveMaxFactor  = 0.95
	resolveMinFactor  = 1.05
	trendResolveAfter = 10 * time.Minute
)

// point is one observed (value, timestamp) pair in a device's history.
type point struct {
	value float64
	ts    time.Time
}

// Evaluator runs per-device statistical rule checks against incoming
// sensor readings. History is kept in process only; losing it on restart
// degrades the predictive checks but never correctness.
type Evaluator struct {
	thresholds map[string]types.ThresholdConfig
	intervals  config.EvaluatorConfig
	logger     zerolog.Logger

	mu      sync.Mutex
	history map[string][]point
	now     func() time.Time

	evaluations     uint64
	violationsFound uint64
	skippedNoConfig uint64
}

// Metrics is a snapshot of evaluator counters.
type Metrics struct {
	Evaluations     uint64 `json:"evaluations"`
	ViolationsFound uint64 `json:"violationsFound"`
	SkippedNoConfig uint64 `json:"skippedNoConfig"`
	TrackedDevices  int    `json:"trackedDevices"`
}

// New creates an Evaluator for a static threshold map.
func New(thresholds map[string]types.ThresholdConfig, intervals config.EvaluatorConfig, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		intervals:  intervals,
		logger:     logger.With().Str("component", "evaluator").Logger(),
		history:    make(map[string][]point),
		now:        time.Now,
	}
}

// Evaluate appends the reading to the device's history and runs the four
// rule checks in fixed order: threshold, trend, anomaly, communication
// health. Readings for devices without a threshold config, or whose
// sensor type does not match the configured type, are skipped with a
// warning. Evaluate never fails; a malformed value yields no violations.
func (e *Evaluator) Evaluate(deviceID string, value float64, sensorType string, ts time.Time) []types.Violation {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.evaluations++

	cfg, ok := e.thresholds[deviceID]
	if !ok {
		e.skippedNoConfig++
		e.logger.Warn().
			Str("device", deviceID).
			Str("sensor_type", sensorType).
			Msg("No threshold configured for device, skipping evaluation")
		return nil
	}
	if cfg.Type != sensorType {
		e.skippedNoConfig++
		e.logger.Warn().
			Str("device", deviceID).
			Str("sensor_type", sensorType).
			Str("configured_type", cfg.Type).
			Msg("Sensor type does not match threshold config, skipping evaluation")
		return nil
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		e.logger.Warn().
			Str("device", deviceID).
			Float64("value", value).
			Msg("Non-finite reading value, skipping evaluation")
		return nil
	}

	hist := append(e.history[deviceID], point{value: value, ts: ts})
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	e.history[deviceID] = hist

	var violations []types.Violation
	if v := e.checkThreshold(deviceID, value, cfg); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkTrend(deviceID, value, sensorType, cfg, hist); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkAnomaly(deviceID, value, hist); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkHealth(deviceID, sensorType, hist); v != nil {
		violations = append(violations, *v)
	}

	e.violationsFound += uint64(len(violations))
	return violations
}

// checkThreshold compares the value against the configured min/max bound.
func (e *Evaluator) checkThreshold(deviceID string, value float64, cfg types.ThresholdConfig) *types.Violation {
	var (
		kind      types.ViolationKind
		threshold float64
		direction string
	)
	switch {
	case value > cfg.Max:
		kind, threshold, direction = types.KindThresholdExceeded, cfg.Max, "above max"
	case value < cfg.Min:
		kind, threshold, direction = types.KindThresholdBelow, cfg.Min, "below min"
	default:
		return nil
	}

	deviation := 0.0
	if threshold != 0 {
		deviation = math.Abs(value-threshold) / math.Abs(threshold)
	}

	return &types.Violation{
		Kind:      kind,
		Severity:  severityForDeviation(deviation),
		Message:   fmt.Sprintf("device %s reading %.2f %s %.2f (%.1f%% deviation)", deviceID, value, direction, threshold, deviation*100),
		Value:     value,
		Threshold: threshold,
		Deviation: deviation,
	}
}

// checkTrend extrapolates the recent rate of change and warns when the
// reading is on course to cross a bound within the horizon. It stays
// silent once a bound is already breached; the threshold check owns that.
func (e *Evaluator) checkTrend(deviceID string, value float64, sensorType string, cfg types.ThresholdConfig, hist []point) *types.Violation {
	if len(hist) < trendMinPoints {
		return nil
	}

	window := hist[len(hist)-trendWindow:]
	values := make([]float64, len(window))
	for i, p := range window {
		values[i] = p.value
	}
	trend := ComputeTrend(values)
	if trend.Direction == DirectionStable || trend.Rate < trendMinRate {
		return nil
	}

	var remaining float64
	var bound float64
	switch trend.Direction {
	case DirectionIncreasing:
		bound = cfg.Max
		remaining = cfg.Max - value
	case DirectionDecreasing:
		bound = cfg.Min
		remaining = value - cfg.Min
	}
	if remaining <= 0 {
		return nil
	}

	step := e.sampleInterval(sensorType, window)
	eta := time.Duration(remaining / trend.Rate * float64(step))
	if eta <= 0 || eta >= trendHorizon {
		return nil
	}

	return &types.Violation{
		Kind:      types.KindTrendWarning,
		Severity:  types.SeverityMedium,
		Message:   fmt.Sprintf("device %s trending %s, projected to cross %.2f in %s", deviceID, trend.Direction, bound, eta.Round(time.Second)),
		Value:     value,
		Threshold: bound,
		Trend: &types.TrendInfo{
			Direction:          string(trend.Direction),
			Rate:               trend.Rate,
			SecondsToThreshold: eta.Seconds(),
		},
	}
}

// checkAnomaly flags values more than three standard deviations from the
// recent mean.
func (e *Evaluator) checkAnomaly(deviceID string, value float64, hist []point) *types.Violation {
	if len(hist) < anomalyMinPoints {
		return nil
	}

	window := hist
	if len(window) > anomalyWindow {
		window = window[len(window)-anomalyWindow:]
	}
	values := make([]float64, len(window))
	for i, p := range window {
		values[i] = p.value
	}
	mean, stdDev := MeanStdDev(values)
	if stdDev <= 0 {
		return nil
	}
	zScore := math.Abs(value-mean) / stdDev
	if zScore <= zScoreThreshold {
		return nil
	}

	return &types.Violation{
		Kind:     types.KindDataAnomaly,
		Severity: types.SeverityLow,
		Message:  fmt.Sprintf("device %s reading %.2f deviates %.1f sigma from recent mean %.2f", deviceID, value, zScore, mean),
		Value:    value,
		Stats: &types.AnomalyStats{
			Mean:   mean,
			StdDev: stdDev,
			ZScore: zScore,
		},
	}
}

// checkHealth flags gaps between consecutive readings that exceed three
// times the expected reporting interval for the sensor type.
func (e *Evaluator) checkHealth(deviceID, sensorType string, hist []point) *types.Violation {
	if len(hist) < 2 {
		return nil
	}

	prev := hist[len(hist)-2]
	curr := hist[len(hist)-1]
	elapsed := curr.ts.Sub(prev.ts)
	expected := e.intervals.ExpectedInterval(sensorType)
	if elapsed <= time.Duration(healthMissFactor)*expected {
		return nil
	}

	return &types.Violation{
		Kind:     types.KindDeviceCommunication,
		Severity: types.SeverityMedium,
		Message:  fmt.Sprintf("device %s silent for %s, expected a reading every %s", deviceID, elapsed.Round(time.Second), expected),
		Value:    elapsed.Seconds(),
	}
}

// sampleInterval estimates seconds between readings from the window's
// timestamps, falling back to the configured expected interval when the
// timestamps are too close together to be useful.
func (e *Evaluator) sampleInterval(sensorType string, window []point) time.Duration {
	span := window[len(window)-1].ts.Sub(window[0].ts)
	if span > 0 {
		return span / time.Duration(len(window)-1)
	}
	return e.intervals.ExpectedInterval(sensorType)
}

// CheckResolution reports whether an active alert should auto-resolve
// given the current reading. Threshold alerts resolve with a hysteresis
// band below/above the nominal bound so a value oscillating around the
// threshold does not flap. Trend warnings expire on their own after ten
// minutes; anomaly and communication alerts resolve as soon as another
// reading is seen for the device.
func (e *Evaluator) CheckResolution(alert *types.Alert, currentValue float64, sensorType string) bool {
	if alert == nil {
		return false
	}

	switch alert.Kind {
	case types.KindThresholdExceeded, types.KindThresholdBelow:
		cfg, ok := e.thresholds[alert.DeviceID]
		if !ok || cfg.Type != sensorType {
			return false
		}
		if alert.Kind == types.KindThresholdExceeded {
			return currentValue <= cfg.Max*resolveMaxFactor
		}
		return currentValue >= cfg.Min*resolveMinFactor
	case types.KindTrendWarning:
		return e.now().Sub(alert.TriggeredAt) > trendResolveAfter
	case types.KindDataAnomaly, types.KindDeviceCommunication:
		return true
	default:
		e.logger.Warn().
			Str("alert_id", alert.ID).
			Str("kind", string(alert.Kind)).
			Msg("Unknown violation kind in resolution check")
		return false
	}
}

// Metrics returns a snapshot of evaluator counters.
func (e *Evaluator) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Metrics{
		Evaluations:     e.evaluations,
		ViolationsFound: e.violationsFound,
		SkippedNoConfig: e.skippedNoConfig,
		TrackedDevices:  len(e.history),
	}
}

// severityForDeviation maps the deviation fraction to a severity band.
func severityForDeviation(deviation float64) types.Severity {
	switch {
	case deviation >= 0.30:
		return types.SeverityCritical
	case deviation >= 0.20:
		return types.SeverityHigh
	case deviation >= 0.10:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}
