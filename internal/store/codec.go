package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/types"
)

// alertToFields flattens an Alert into redis hash fields. Optional
// timestamps are omitted when unset; metadata is stored as a JSON blob.
func alertToFields(a *types.Alert) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		"id":              a.ID,
		"deviceId":        a.DeviceID,
		"kind":            string(a.Kind),
		"severity":        string(a.Severity),
		"message":         a.Message,
		"value":           strconv.FormatFloat(a.Value, 'g', -1, 64),
		"threshold":       strconv.FormatFloat(a.Threshold, 'g', -1, 64),
		"status":          string(a.Status),
		"createdAt":       a.CreatedAt.UTC().Format(time.RFC3339Nano),
		"triggeredAt":     a.TriggeredAt.UTC().Format(time.RFC3339Nano),
		"escalationLevel": strconv.Itoa(a.EscalationLevel),
	}
	if a.AcknowledgedAt != nil {
		fields["acknowledgedAt"] = a.AcknowledgedAt.UTC().Format(time.RFC3339Nano)
	}
	if a.ResolvedAt != nil {
		fields["resolvedAt"] = a.ResolvedAt.UTC().Format(time.RFC3339Nano)
	}
	if a.EscalatedAt != nil {
		fields["escalatedAt"] = a.EscalatedAt.UTC().Format(time.RFC3339Nano)
	}
	if a.AcknowledgedBy != "" {
		fields["acknowledgedBy"] = a.AcknowledgedBy
	}
	if len(a.Metadata) > 0 {
		blob, err := json.Marshal(a.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		fields["metadata"] = string(blob)
	}
	return fields, nil
}

// fieldsToAlert rebuilds an Alert from redis hash fields.
func fieldsToAlert(fields map[string]string) (*types.Alert, error) {
	a := &types.Alert{
		ID:             fields["id"],
		DeviceID:       fields["deviceId"],
		Kind:           types.ViolationKind(fields["kind"]),
		Severity:       types.Severity(fields["severity"]),
		Message:        fields["message"],
		Status:         types.Status(fields["status"]),
		AcknowledgedBy: fields["acknowledgedBy"],
	}

	var err error
	if a.Value, err = strconv.ParseFloat(fields["value"], 64); err != nil {
		return nil, fmt.Errorf("parsing value: %w", err)
	}
	if a.Threshold, err = strconv.ParseFloat(fields["threshold"], 64); err != nil {
		return nil, fmt.Errorf("parsing threshold: %w", err)
	}
	if a.EscalationLevel, err = strconv.Atoi(fields["escalationLevel"]); err != nil {
		return nil, fmt.Errorf("parsing escalation level: %w", err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["createdAt"]); err != nil {
		return nil, fmt.Errorf("parsing createdAt: %w", err)
	}
	if a.TriggeredAt, err = time.Parse(time.RFC3339Nano, fields["triggeredAt"]); err != nil {
		return nil, fmt.Errorf("parsing triggeredAt: %w", err)
	}

	if raw := fields["acknowledgedAt"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parsing acknowledgedAt: %w", err)
		}
		a.AcknowledgedAt = &t
	}
	if raw := fields["resolvedAt"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parsing resolvedAt: %w", err)
		}
		a.ResolvedAt = &t
	}
	if raw := fields["escalatedAt"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parsing escalatedAt: %w", err)
		}
		a.EscalatedAt = &t
	}

	if blob := fields["metadata"]; blob != "" {
		if err := json.Unmarshal([]byte(blob), &a.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	return a, nil
}
