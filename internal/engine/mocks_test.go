package engine

import (
	"context"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/types"
)

// memStore implements alertmgr.Store in memory for engine tests.
type memStore struct {
	mu      sync.Mutex
	alerts  map[string]*types.Alert
	active  map[string]struct{}
	device  map[string]map[string]struct{}
	dedup   map[string]time.Time
	markers map[string]struct{}
	daily   map[string]map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		alerts:  make(map[string]*types.Alert),
		active:  make(map[string]struct{}),
		device:  make(map[string]map[string]struct{}),
		dedup:   make(map[string]time.Time),
		markers: make(map[string]struct{}),
		daily:   make(map[string]map[string]int64),
	}
}

func (s *memStore) SaveAlert(_ context.Context, alert *types.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *memStore) GetAlert(_ context.Context, id string) (*types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	cp := *alert
	return &cp, nil
}

func (s *memStore) DeleteAlert(_ context.Context, id, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, id)
	delete(s.active, id)
	if ids, ok := s.device[deviceID]; ok {
		delete(ids, id)
	}
	return nil
}

func (s *memStore) IndexAlert(_ context.Context, id, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[id] = struct{}{}
	if s.device[deviceID] == nil {
		s.device[deviceID] = make(map[string]struct{})
	}
	s.device[deviceID][id] = struct{}{}
	return nil
}

func (s *memStore) RemoveActive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
	return nil
}

func (s *memStore) ActiveAlertIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) DeviceAlertIDs(_ context.Context, deviceID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.device[deviceID]))
	for id := range s.device[deviceID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) SetDedup(_ context.Context, deviceID string, kind types.ViolationKind, _ string, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedup[deviceID+"|"+string(kind)] = time.Now().Add(window)
	return nil
}

func (s *memStore) DedupExists(_ context.Context, deviceID string, kind types.ViolationKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.dedup[deviceID+"|"+string(kind)]
	return ok && time.Now().Before(expires), nil
}

func (s *memStore) SetEscalationMarker(_ context.Context, alertID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[alertID] = struct{}{}
	return nil
}

func (s *memStore) ClearEscalationMarker(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, alertID)
	return nil
}

func (s *memStore) IncrDailyCounter(_ context.Context, day time.Time, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := day.Format("2006-01-02")
	if s.daily[key] == nil {
		s.daily[key] = make(map[string]int64)
	}
	s.daily[key][field]++
	return nil
}

func (s *memStore) DailyCounters(_ context.Context, day time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters := make(map[string]int64)
	for field, n := range s.daily[day.Format("2006-01-02")] {
		counters[field] = n
	}
	return counters, nil
}

func (s *memStore) ScanAlertIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.alerts))
	for id := range s.alerts {
		ids = append(ids, id)
	}
	return ids, nil
}

// capturePublisher records lifecycle events in order.
type capturePublisher struct {
	mu     sync.Mutex
	err    error
	events []capturedEvent
}

type capturedEvent struct {
	Type  types.EventType
	Alert types.Alert
}

func (p *capturePublisher) PublishAlertEvent(_ context.Context, eventType types.EventType, alert *types.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, capturedEvent{Type: eventType, Alert: *alert})
	return nil
}

func (p *capturePublisher) captured() []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]capturedEvent, len(p.events))
	copy(out, p.events)
	return out
}
