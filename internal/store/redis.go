// Package store adapts the Redis key/value, set, hash, and TTL
// primitives backing alert records and their indices.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/types"
)

// Key layout. Alert state and indices share the "alert"/"alerts"
// namespaces; daily counters live under "metrics".
const (
	alertKeyPrefix      = "alert:"
	dedupKeyPrefix      = "alert:dedup:"
	escalationKeyPrefix = "alert:escalation:"
	activeSetKey        = "alerts:active"
	deviceSetPrefix     = "alerts:device:"
	metricsKeyPrefix    = "metrics:alerts:"
)

// Redis is the durable store for alert state. It is the single source of
// truth across process restarts.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to store at %s: %w", cfg.Address, err)
	}

	return &Redis{
		client: client,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// SaveAlert writes the full alert record as a hash at alert:{id}.
func (r *Redis) SaveAlert(ctx context.Context, alert *types.Alert) error {
	fields, err := alertToFields(alert)
	if err != nil {
		return fmt.Errorf("encoding alert %s: %w", alert.ID, err)
	}
	if err := r.client.HSet(ctx, alertKeyPrefix+alert.ID, fields).Err(); err != nil {
		return fmt.Errorf("writing alert %s: %w", alert.ID, err)
	}
	return nil
}

// GetAlert reads the alert record at alert:{id}. A missing record returns
// (nil, nil).
func (r *Redis) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	fields, err := r.client.HGetAll(ctx, alertKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("reading alert %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	alert, err := fieldsToAlert(fields)
	if err != nil {
		return nil, fmt.Errorf("decoding alert %s: %w", id, err)
	}
	return alert, nil
}

// DeleteAlert removes the alert record and its device index entry.
func (r *Redis) DeleteAlert(ctx context.Context, id, deviceID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, alertKeyPrefix+id)
	pipe.SRem(ctx, activeSetKey, id)
	if deviceID != "" {
		pipe.SRem(ctx, deviceSetPrefix+deviceID, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting alert %s: %w", id, err)
	}
	return nil
}

// IndexAlert adds the alert to the active set and its device set.
func (r *Redis) IndexAlert(ctx context.Context, id, deviceID string) error {
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, activeSetKey, id)
	pipe.SAdd(ctx, deviceSetPrefix+deviceID, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("indexing alert %s: %w", id, err)
	}
	return nil
}

// RemoveActive drops the alert from the active set. The device set entry
// is kept until the retention sweep deletes the record.
func (r *Redis) RemoveActive(ctx context.Context, id string) error {
	if err := r.client.SRem(ctx, activeSetKey, id).Err(); err != nil {
		return fmt.Errorf("removing alert %s from active set: %w", id, err)
	}
	return nil
}

// ActiveAlertIDs returns the members of the active alert set.
func (r *Redis) ActiveAlertIDs(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing active alerts: %w", err)
	}
	return ids, nil
}

// DeviceAlertIDs returns all alert IDs indexed for a device, including
// resolved ones not yet swept.
func (r *Redis) DeviceAlertIDs(ctx context.Context, deviceID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, deviceSetPrefix+deviceID).Result()
	if err != nil {
		return nil, fmt.Errorf("listing alerts for device %s: %w", deviceID, err)
	}
	return ids, nil
}

// SetDedup writes the deduplication snapshot for (device, kind) with the
// window as its TTL.
func (r *Redis) SetDedup(ctx context.Context, deviceID string, kind types.ViolationKind, alertID string, window time.Duration) error {
	key := dedupKeyPrefix + deviceID + ":" + string(kind)
	if err := r.client.Set(ctx, key, alertID, window).Err(); err != nil {
		return fmt.Errorf("writing dedup key for %s/%s: %w", deviceID, kind, err)
	}
	return nil
}

// DedupExists reports whether a live dedup snapshot exists for
// (device, kind).
func (r *Redis) DedupExists(ctx context.Context, deviceID string, kind types.ViolationKind) (bool, error) {
	key := dedupKeyPrefix + deviceID + ":" + string(kind)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("checking dedup key for %s/%s: %w", deviceID, kind, err)
	}
	return n > 0, nil
}

// SetEscalationMarker writes the informational escalation TTL marker.
func (r *Redis) SetEscalationMarker(ctx context.Context, alertID string, timeout time.Duration) error {
	if err := r.client.Set(ctx, escalationKeyPrefix+alertID, "1", timeout).Err(); err != nil {
		return fmt.Errorf("writing escalation marker for %s: %w", alertID, err)
	}
	return nil
}

// ClearEscalationMarker removes the escalation TTL marker.
func (r *Redis) ClearEscalationMarker(ctx context.Context, alertID string) error {
	if err := r.client.Del(ctx, escalationKeyPrefix+alertID).Err(); err != nil {
		return fmt.Errorf("clearing escalation marker for %s: %w", alertID, err)
	}
	return nil
}

// IncrDailyCounter bumps a field in the per-day metrics hash.
func (r *Redis) IncrDailyCounter(ctx context.Context, day time.Time, field string) error {
	key := metricsKeyPrefix + day.UTC().Format("2006-01-02")
	if err := r.client.HIncrBy(ctx, key, field, 1).Err(); err != nil {
		return fmt.Errorf("incrementing daily counter %s: %w", field, err)
	}
	return nil
}

// DailyCounters returns the per-day metrics hash for a given day.
func (r *Redis) DailyCounters(ctx context.Context, day time.Time) (map[string]int64, error) {
	key := metricsKeyPrefix + day.UTC().Format("2006-01-02")
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading daily counters: %w", err)
	}
	counters := make(map[string]int64, len(raw))
	for field, v := range raw {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			counters[field] = n
		}
	}
	return counters, nil
}

// ScanAlertIDs walks the alert:{id} keyspace and returns record IDs. The
// dedup and escalation namespaces share the prefix and are filtered out.
func (r *Redis) ScanAlertIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, alertKeyPrefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning alert keys: %w", err)
		}
		for _, key := range keys {
			id := strings.TrimPrefix(key, alertKeyPrefix)
			if strings.HasPrefix(id, "dedup:") || strings.HasPrefix(id, "escalation:") {
				continue
			}
			ids = append(ids, id)
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

// Ping verifies the store connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
