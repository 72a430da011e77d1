package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/fleetwatch/internal/alertmgr"
	"github.com/fleetwatch/fleetwatch/internal/engine"
	"github.com/fleetwatch/fleetwatch/internal/types"
)

type fakeEngine struct {
	alerts  []*types.Alert
	stats   *alertmgr.Stats
	metrics engine.Metrics
	ackErr  error
	ackedBy string
}

func (f *fakeEngine) AcknowledgeAlert(_ context.Context, id, by string) (*types.Alert, error) {
	if f.ackErr != nil {
		return nil, f.ackErr
	}
	f.ackedBy = by
	return &types.Alert{ID: id, Status: types.StatusAcknowledged, AcknowledgedBy: by}, nil
}

func (f *fakeEngine) ResolveAlert(_ context.Context, id, by string) (*types.Alert, error) {
	if f.ackErr != nil {
		return nil, f.ackErr
	}
	return &types.Alert{ID: id, Status: types.StatusResolved}, nil
}

func (f *fakeEngine) GetActiveAlerts(_ context.Context) ([]*types.Alert, error) {
	return f.alerts, nil
}

func (f *fakeEngine) GetAlertStats(_ context.Context) (*alertmgr.Stats, error) {
	return f.stats, nil
}

func (f *fakeEngine) GetMetrics() engine.Metrics {
	return f.metrics
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(eng *fakeEngine, pinger Pinger) *Server {
	return NewServer(eng, pinger, NewLogBuffer(100), zerolog.Nop(), "0")
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakePinger{})

	rec := doRequest(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHealth_StoreDown(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakePinger{err: errors.New("connection refused")})

	rec := doRequest(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "unhealthy", body.Components["store"])
}

func TestListAlerts(t *testing.T) {
	eng := &fakeEngine{alerts: []*types.Alert{
		{ID: "a1", DeviceID: "device-001", Severity: types.SeverityHigh, Status: types.StatusTriggered, TriggeredAt: time.Now()},
		{ID: "a2", DeviceID: "device-002", Severity: types.SeverityLow, Status: types.StatusTriggered, TriggeredAt: time.Now()},
	}}
	s := newTestServer(eng, &fakePinger{})

	rec := doRequest(s, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Alerts []types.Alert `json:"alerts"`
		Count  int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Alerts, 2)
	assert.Equal(t, "a1", body.Alerts[0].ID)
}

func TestStats(t *testing.T) {
	eng := &fakeEngine{stats: &alertmgr.Stats{
		TotalActive: 3,
		BySeverity:  map[types.Severity]int{types.SeverityHigh: 3},
	}}
	s := newTestServer(eng, &fakePinger{})

	rec := doRequest(s, http.MethodGet, "/api/alerts/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats alertmgr.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalActive)
}

func TestAcknowledge(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestServer(eng, &fakePinger{})

	rec := doRequest(s, http.MethodPost, "/api/alerts/a1/acknowledge", `{"by":"operator-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator-1", eng.ackedBy)

	var alert types.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alert))
	assert.Equal(t, "a1", alert.ID)
	assert.Equal(t, types.StatusAcknowledged, alert.Status)
}

func TestAcknowledge_RequiresOperator(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakePinger{})

	rec := doRequest(s, http.MethodPost, "/api/alerts/a1/acknowledge", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/alerts/a1/acknowledge", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledge_NotFound(t *testing.T) {
	eng := &fakeEngine{ackErr: &alertmgr.NotFoundError{ID: "missing"}}
	s := newTestServer(eng, &fakePinger{})

	rec := doRequest(s, http.MethodPost, "/api/alerts/missing/acknowledge", `{"by":"operator-1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcknowledge_InvalidState(t *testing.T) {
	eng := &fakeEngine{ackErr: &alertmgr.InvalidStateError{ID: "a1", Status: types.StatusResolved, Op: "acknowledge"}}
	s := newTestServer(eng, &fakePinger{})

	rec := doRequest(s, http.MethodPost, "/api/alerts/a1/acknowledge", `{"by":"operator-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAcknowledge_InternalError(t *testing.T) {
	eng := &fakeEngine{ackErr: errors.New("store unavailable")}
	s := newTestServer(eng, &fakePinger{})

	rec := doRequest(s, http.MethodPost, "/api/alerts/a1/acknowledge", `{"by":"operator-1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// Internal detail must not leak to the client
	assert.NotContains(t, rec.Body.String(), "store unavailable")
}

func TestResolve(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakePinger{})

	rec := doRequest(s, http.MethodPost, "/api/alerts/a1/resolve", `{"by":"operator-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var alert types.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alert))
	assert.Equal(t, types.StatusResolved, alert.Status)
}

func TestEngineMetrics(t *testing.T) {
	eng := &fakeEngine{metrics: engine.Metrics{MessagesProcessed: 42}}
	s := newTestServer(eng, &fakePinger{})

	rec := doRequest(s, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var m engine.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, uint64(42), m.MessagesProcessed)
}

func TestLogs(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakePinger{})
	s.logBuffer.Write([]byte(`{"level":"info","message":"engine started"}`))

	rec := doRequest(s, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []LogEntry `json:"entries"`
		Count   int        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "engine started", body.Entries[0].Message)
	assert.Equal(t, "info", body.Entries[0].Level)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakePinger{})

	rec := doRequest(s, http.MethodDelete, "/api/alerts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
