package alertmgr

import (
	"context"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/types"
)

// fakeStore is an in-memory Store for tests, mirroring the redis adapter's
// key semantics: alert records, active/device sets, TTL'd dedup snapshots
// and escalation markers, and per-day counters.
type fakeStore struct {
	mu      sync.Mutex
	now     func() time.Time
	alerts  map[string]*types.Alert
	active  map[string]struct{}
	device  map[string]map[string]struct{}
	dedup   map[string]fakeDedup
	markers map[string]time.Time
	daily   map[string]map[string]int64
	saveErr error
}

type fakeDedup struct {
	alertID string
	expires time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:     time.Now,
		alerts:  make(map[string]*types.Alert),
		active:  make(map[string]struct{}),
		device:  make(map[string]map[string]struct{}),
		dedup:   make(map[string]fakeDedup),
		markers: make(map[string]time.Time),
		daily:   make(map[string]map[string]int64),
	}
}

func copyAlert(a *types.Alert) *types.Alert {
	cp := *a
	if a.Metadata != nil {
		cp.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (s *fakeStore) SaveAlert(_ context.Context, alert *types.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.alerts[alert.ID] = copyAlert(alert)
	return nil
}

func (s *fakeStore) GetAlert(_ context.Context, id string) (*types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	return copyAlert(alert), nil
}

func (s *fakeStore) DeleteAlert(_ context.Context, id, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, id)
	delete(s.active, id)
	if ids, ok := s.device[deviceID]; ok {
		delete(ids, id)
	}
	return nil
}

func (s *fakeStore) IndexAlert(_ context.Context, id, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[id] = struct{}{}
	if s.device[deviceID] == nil {
		s.device[deviceID] = make(map[string]struct{})
	}
	s.device[deviceID][id] = struct{}{}
	return nil
}

func (s *fakeStore) RemoveActive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
	return nil
}

func (s *fakeStore) ActiveAlertIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) DeviceAlertIDs(_ context.Context, deviceID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.device[deviceID]))
	for id := range s.device[deviceID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) SetDedup(_ context.Context, deviceID string, kind types.ViolationKind, alertID string, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedup[deviceID+"|"+string(kind)] = fakeDedup{alertID: alertID, expires: s.now().Add(window)}
	return nil
}

func (s *fakeStore) DedupExists(_ context.Context, deviceID string, kind types.ViolationKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.dedup[deviceID+"|"+string(kind)]
	if !ok {
		return false, nil
	}
	return s.now().Before(entry.expires), nil
}

func (s *fakeStore) SetEscalationMarker(_ context.Context, alertID string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[alertID] = s.now().Add(timeout)
	return nil
}

func (s *fakeStore) ClearEscalationMarker(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, alertID)
	return nil
}

func (s *fakeStore) IncrDailyCounter(_ context.Context, day time.Time, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := day.Format("2006-01-02")
	if s.daily[key] == nil {
		s.daily[key] = make(map[string]int64)
	}
	s.daily[key][field]++
	return nil
}

func (s *fakeStore) DailyCounters(_ context.Context, day time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters := make(map[string]int64)
	for field, n := range s.daily[day.Format("2006-01-02")] {
		counters[field] = n
	}
	return counters, nil
}

func (s *fakeStore) ScanAlertIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.alerts))
	for id := range s.alerts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) hasMarker(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.markers[id]
	return ok
}
