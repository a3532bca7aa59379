package uiapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsched/gridsched/internal/engine"
	"github.com/gridsched/gridsched/internal/metrics"
	"github.com/gridsched/gridsched/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	st, err := store.NewStore(filepath.Join(t.TempDir(), "gridsched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	optimizer := engine.NewOptimizer(engine.DefaultDaytime, zerolog.Nop())
	return NewServer(st, optimizer, collector, zerolog.Nop()), st
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const optimizeBody = `{
  "rates": [{"from": 0, "to": 0, "value": 2}],
  "devices": [{"id": "d1", "name": "heater", "power": 1000, "duration": 2}]
}`

func TestHandleOptimize(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/optimize", optimizeBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Schedule       map[string][]string `json:"schedule"`
		ConsumedEnergy struct {
			Value   float64            `json:"value"`
			Devices map[string]float64 `json:"devices"`
		} `json:"consumedEnergy"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 4.0, out.ConsumedEnergy.Value)
	assert.Equal(t, []string{"d1"}, out.Schedule["0"])
}

func TestHandleOptimizeErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "malformed body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "coverage gap",
			body:       `{"rates": [{"from": 0, "to": 12, "value": 1}], "devices": [{"id": "d1", "name": "x", "power": 1, "duration": 1}]}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "exactly once",
		},
		{
			name:       "unschedulable device",
			body:       `{"rates": [{"from": 0, "to": 0, "value": 2}], "devices": [{"id": "d1", "name": "kiln", "power": 5000, "duration": 2}], "maxPower": 1000}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "kiln",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/optimize", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantError)
		})
	}
}

func TestDeviceEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/devices",
		`{"name": "dishwasher", "power": 950, "duration": 3, "mode": "night"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created engine.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID, "missing id should be generated")

	rec = doJSON(t, h, http.MethodGet, "/api/devices/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/devices/"+created.ID,
		`{"name": "dishwasher", "power": 1100, "duration": 3, "mode": "night"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var devices []engine.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, 1100.0, devices[0].Power)

	rec = doJSON(t, h, http.MethodDelete, "/api/devices/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/devices/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceValidationOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/devices",
		`{"name": "broken", "power": 100, "duration": 30}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "duration")
}

func TestPlanAndRunEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	// No plan yet.
	rec := doJSON(t, h, http.MethodGet, "/api/plans/default", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/plans/default",
		`{"rates": [{"from": 0, "to": 0, "value": 2}], "maxPower": 2100}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/plans/default", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var plan PlanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, "default", plan.Name)
	require.NotNil(t, plan.MaxPower)
	assert.Equal(t, 2100.0, *plan.MaxPower)

	// A run without devices is rejected.
	rec = doJSON(t, h, http.MethodPost, "/api/runs", `{"plan": "default"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/devices",
		`{"id": "d1", "name": "heater", "power": 1000, "duration": 2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/runs", `{"plan": "default"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 4.0, run.TotalCost)
	assert.Equal(t, "default", run.PlanName)

	rec = doJSON(t, h, http.MethodGet, "/api/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestBadPlanRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPut, "/api/plans/default",
		`{"rates": [{"from": 0, "to": 12, "value": 2}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	// The default registry backs /metrics; the Go runtime collectors are
	// always present there.
	rec := doJSON(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_"))
}
