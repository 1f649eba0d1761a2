package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/soilwatch/internal/dashboard"
	"github.com/speedwagon-io/soilwatch/internal/export"
	"github.com/speedwagon-io/soilwatch/internal/lib/logger/handlers/slogdiscard"
	"github.com/speedwagon-io/soilwatch/internal/metrics"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

func sampleReport(t *testing.T) *model.Report {
	t.Helper()
	m, err := metrics.Derive([]model.RawRecord{
		{"timestamp": "2024-01-01 00:00:00", "moisturePercent": 40.0, "pump": false, "temperature": 21.5},
		{"timestamp": "2024-01-01 00:01:00", "moisturePercent": 45.0, "pump": true, "status": "Wet"},
		{"timestamp": "2024-01-01 00:02:00", "moisturePercent": 42.0, "pump": true, "status": "Wet"},
	})
	require.NoError(t, err)

	current := model.CurrentFromRecord(model.RawRecord{"moisturePercent": 42.0, "pump": true})
	return model.NewReport("field-1", "North field", current, m)
}

func newTestServer(t *testing.T) (*Server, *dashboard.State, *httptest.Server) {
	t.Helper()
	state := dashboard.NewState()
	hub := NewHub(slogdiscard.NewDiscardLogger(), state, nil)
	s := NewServer(slogdiscard.NewDiscardLogger(), ":0", state, hub)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return s, state, ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var sb bytes.Buffer
	_, err = sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, []byte(sb.String())
}

func TestServer_BeforeFirstReport(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/live")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, path := range []string{"/ready", "/api/dashboard", "/api/current", "/api/export.csv"} {
		resp, _ := get(t, ts.URL+path)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
}

func TestServer_Dashboard(t *testing.T) {
	_, state, ts := newTestServer(t)
	report := sampleReport(t)
	state.Set(report)

	resp, _ := get(t, ts.URL+"/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, ts.URL+"/api/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got struct {
		ID      string `json:"id"`
		NoData  bool   `json:"no_data"`
		Metrics struct {
			TotalReadings  int      `json:"total_readings"`
			AvgHumidity    *float64 `json:"avg_humidity"`
			AvgTemperature *float64 `json:"avg_temperature"`
		} `json:"metrics"`
		Summary        model.Summary        `json:"summary"`
		CurrentDisplay model.CurrentDisplay `json:"current_display"`
	}
	require.NoError(t, json.Unmarshal(body, &got))

	assert.Equal(t, report.ID, got.ID)
	assert.False(t, got.NoData)
	assert.Equal(t, 3, got.Metrics.TotalReadings)
	assert.Nil(t, got.Metrics.AvgHumidity)
	require.NotNil(t, got.Metrics.AvgTemperature)
	assert.Equal(t, 21.5, *got.Metrics.AvgTemperature)
	assert.Equal(t, "42.33%", got.Summary.AvgMoisture)
	assert.Equal(t, "N/A", got.Summary.AvgHumidity)
	assert.Equal(t, "66.7%", got.Summary.PumpOnTime)
	assert.Equal(t, "42%", got.CurrentDisplay.Moisture)
	assert.Equal(t, "N/A°C", got.CurrentDisplay.Temperature)
	assert.Equal(t, "ON", got.CurrentDisplay.Pump)
}

func TestServer_Current(t *testing.T) {
	_, state, ts := newTestServer(t)
	state.Set(model.NewNoDataReport("field-1", "North field", model.Current{}, dashboard.NoticeNoHistory))

	resp, body := get(t, ts.URL+"/api/current")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got CurrentResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.False(t, got.Current.Present)
	assert.Equal(t, "N/A%", got.Display.Moisture)
	assert.Equal(t, "OFF", got.Display.Pump)
	assert.Equal(t, "N/A", got.Display.LastUpdate)
}

func TestServer_Export(t *testing.T) {
	_, state, ts := newTestServer(t)
	state.Set(sampleReport(t))

	resp, body := get(t, ts.URL+"/api/export.csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "soil_moisture_data_")

	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, export.Header, rows[0])
	assert.Equal(t, []string{"2024-01-01 00:02:00", "42", "", "", "Wet", "ON"}, rows[1])
	assert.Equal(t, []string{"2024-01-01 00:00:00", "40", "21.5", "", "", "OFF"}, rows[3])
}

func TestServer_ExportWithoutHistory(t *testing.T) {
	_, state, ts := newTestServer(t)
	state.Set(model.NewNoDataReport("field-1", "North field", model.Current{}, dashboard.NoticeNoHistory))

	resp, body := get(t, ts.URL+"/api/export.csv")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), dashboard.NoticeNoHistory)
}

type stubChecker struct {
	name    string
	status  Status
	message string
}

func (c stubChecker) Name() string { return c.name }

func (c stubChecker) Check(context.Context) (Status, string) { return c.status, c.message }

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []HealthChecker
		wantStatus Status
		wantCode   int
	}{
		{
			name:       "no checkers",
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name: "degraded",
			checkers: []HealthChecker{
				stubChecker{name: "sender", status: StatusHealthy},
				stubChecker{name: "buffer", status: StatusDegraded, message: "1200 reports waiting"},
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusOK,
		},
		{
			name: "unhealthy wins",
			checkers: []HealthChecker{
				stubChecker{name: "buffer", status: StatusDegraded},
				NewBreakerHealthChecker(func() string { return "open" }),
			},
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, ts := newTestServer(t)
			for _, c := range tt.checkers {
				s.AddChecker(c)
			}

			resp, body := get(t, ts.URL+"/health")
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var got HealthResponse
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Len(t, got.Components, len(tt.checkers))
		})
	}
}

func TestHealthCheckers(t *testing.T) {
	ctx := context.Background()

	status, _ := NewSenderHealthChecker(func(context.Context) error { return errors.New("refused") }).Check(ctx)
	assert.Equal(t, StatusDegraded, status)

	status, _ = NewBufferHealthChecker(func(context.Context) (int64, error) { return 5, nil }).Check(ctx)
	assert.Equal(t, StatusHealthy, status)
	status, _ = NewBufferHealthChecker(func(context.Context) (int64, error) { return 5000, nil }).Check(ctx)
	assert.Equal(t, StatusDegraded, status)
	status, _ = NewBufferHealthChecker(func(context.Context) (int64, error) { return 0, errors.New("locked") }).Check(ctx)
	assert.Equal(t, StatusUnhealthy, status)

	status, _ = NewBreakerHealthChecker(func() string { return "half-open" }).Check(ctx)
	assert.Equal(t, StatusDegraded, status)

	state := dashboard.NewState()
	fresh := NewFreshnessChecker(state, time.Minute)
	status, _ = fresh.Check(ctx)
	assert.Equal(t, StatusDegraded, status)

	report := model.NewReport("d", "D", model.Current{}, &model.Metrics{})
	state.Set(report)
	status, _ = fresh.Check(ctx)
	assert.Equal(t, StatusHealthy, status)

	fresh.now = func() time.Time { return report.GeneratedAt.Add(2 * time.Minute) }
	status, msg := fresh.Check(ctx)
	assert.Equal(t, StatusDegraded, status)
	assert.Contains(t, msg, "2m0s")
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *memCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, 0, c.err
	}
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[key]++
	return c.counts[key], window, nil
}

func TestServer_ExportRateLimit(t *testing.T) {
	s, state, ts := newTestServer(t)
	state.Set(sampleReport(t))

	counter := &memCounter{}
	s.LimitExports(NewRateLimiter(slogdiscard.NewDiscardLogger(), counter, 2, time.Minute, "soilwatch"))
	limited := httptest.NewServer(s.Handler())
	defer limited.Close()

	for i := 0; i < 2; i++ {
		resp, _ := get(t, limited.URL+"/api/export.csv")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, _ := get(t, limited.URL+"/api/export.csv")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// Other routes are not limited.
	resp, _ = get(t, limited.URL+"/api/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The server without the limiter keeps serving.
	resp, _ = get(t, ts.URL+"/api/export.csv")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	counter.mu.Lock()
	counter.err = errors.New("redis down")
	counter.mu.Unlock()
	resp, _ = get(t, limited.URL+"/api/export.csv")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:52311"
	assert.Equal(t, "10.0.0.7", clientID(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientID(r))
}

func TestHub(t *testing.T) {
	state := dashboard.NewState()
	first := sampleReport(t)
	state.Set(first)

	hub := NewHub(slogdiscard.NewDiscardLogger(), state, []string{"*"})
	s := NewServer(slogdiscard.NewDiscardLogger(), ":0", state, hub)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://example.com"}})
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var got model.Report
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, first.ID, got.ID)

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	second := model.NewNoDataReport("field-1", "North field", model.Current{}, dashboard.NoticeHistoryUnavailable)
	require.NoError(t, hub.Present(context.Background(), second))

	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, second.ID, got.ID)
	assert.True(t, got.NoData)
	assert.Equal(t, "websocket", hub.Name())

	require.NoError(t, hub.Close())
	assert.Zero(t, hub.Count())
}
