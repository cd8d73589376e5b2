package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/metrics"
	"github.com/itohio/growbox/pkg/sensor"
)

func ptr(v float64) *float64 { return &v }

type testServer struct {
	srv     *Server
	store   *config.Store
	hub     *sensor.Hub
	history *sensor.History
	handler http.Handler
	access  *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := config.NewStore(nil, "", nil)
	hub := sensor.NewHub()
	history := sensor.NewHistory(10)
	out := control.ActuatorOutputs{PeltierPWM: 200, PeltierHeat: true, FanInner: 255}

	srv := New(Deps{
		Store:   store,
		Hub:     hub,
		History: history,
		Outputs: func() control.ActuatorOutputs { return out },
		Metrics: metrics.New(),
	}, nil)

	access := &bytes.Buffer{}
	return &testServer{srv: srv, store: store, hub: hub, history: history, handler: srv.Handler(access), access: access}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Contains(t, ts.access.String(), `"GET /health HTTP/1.1" 200`)
}

func TestPlainTextReadings(t *testing.T) {
	tests := []struct {
		name string
		path string
		data sensor.SensorData
		want string
	}{
		{name: "ec present", path: "/api/ec", data: sensor.SensorData{EC: ptr(702.456)}, want: "702.46"},
		{name: "ec absent", path: "/api/ec", data: sensor.SensorData{}, want: "0.0"},
		{name: "tray present", path: "/api/tray", data: sensor.SensorData{Tray: ptr(1950.6)}, want: "1951"},
		{name: "tray absent", path: "/api/tray", data: sensor.SensorData{}, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.hub.Publish(tt.data)

			rec := ts.do(t, http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestSensors(t *testing.T) {
	ts := newTestServer(t)
	ts.hub.Publish(sensor.SensorData{
		Internal: &sensor.TempHum{Temp: 22.5, Hum: 60},
		Tray:     ptr(2000),
	})

	rec := ts.do(t, http.MethodGet, "/api/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got sensor.SensorData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Internal)
	assert.Equal(t, 22.5, got.Internal.Temp)
	assert.Nil(t, got.External)
	require.NotNil(t, got.Tray)
	assert.Equal(t, 2000.0, *got.Tray)
}

func TestActuators(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/actuators", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got control.ActuatorOutputs
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, control.ActuatorOutputs{PeltierPWM: 200, PeltierHeat: true, FanInner: 255}, got)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.history.Record(sensor.SensorData{Timestamp: time.Unix(100, 0), Internal: &sensor.TempHum{Temp: 20, Hum: 50}})
	ts.history.Record(sensor.SensorData{Timestamp: time.Unix(160, 0), Internal: &sensor.TempHum{Temp: 22, Hum: 54}})

	rec := ts.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Entries []sensor.HistoryEntry `json:"entries"`
		Summary sensor.Summary        `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Entries, 2)
	assert.Equal(t, 2, got.Summary.Temp.Count)
	assert.InDelta(t, 21.0, got.Summary.Temp.Avg, 1e-9)
}

func TestHistory_Points(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 10; i++ {
		ts.history.Record(sensor.SensorData{
			Timestamp: time.Unix(int64(100+60*i), 0),
			Internal:  &sensor.TempHum{Temp: float64(20 + i), Hum: 50},
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/history?points=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Entries []sensor.HistoryEntry `json:"entries"`
		Summary sensor.Summary        `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Entries, 5)
	assert.InDelta(t, 20.0, got.Entries[0].Temp, 1e-9)
	assert.InDelta(t, 28.0, got.Entries[4].Temp, 1e-9)
	assert.Equal(t, 10, got.Summary.Temp.Count)

	rec = ts.do(t, http.MethodGet, "/api/history?points=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_Disabled(t *testing.T) {
	srv := New(Deps{Store: config.NewStore(nil, "", nil), Hub: sensor.NewHub()}, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetConfig(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got ConfigView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, config.Default().Plant, got.Plant)
	assert.Equal(t, TrayCalibration{NoTray: 3200, Dry: 2400, Wet: 1500}, got.Calibration)
}

func TestPostConfig(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantVersion uint64
		check       func(t *testing.T, cfg config.Config)
	}{
		{
			name:        "plant fields",
			body:        `{"name": "Basil", "target_temp": 23, "light_start_hour": 6, "vent_on": false}`,
			wantStatus:  http.StatusOK,
			wantVersion: 2,
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, "Basil", cfg.Plant.Name)
				assert.Equal(t, 23.0, cfg.Plant.TargetTemp)
				assert.Equal(t, uint8(6), cfg.Plant.LightStartHour)
				assert.False(t, cfg.Plant.VentOn)
				assert.Equal(t, uint8(20), cfg.Plant.LightEndHour, "untouched")
			},
		},
		{
			name:        "tray calibration",
			body:        `{"water_cal_dry_tray": 2500, "water_cal_wet_tray": 1400}`,
			wantStatus:  http.StatusOK,
			wantVersion: 3,
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, 3200.0, cfg.Control.WaterCalNoTray)
				assert.Equal(t, 2500.0, cfg.Control.WaterCalDryTray)
				assert.Equal(t, 1400.0, cfg.Control.WaterCalWetTray)
			},
		},
		{
			name:        "inconsistent calibration is stored",
			body:        `{"water_cal_dry_tray": 1000}`,
			wantStatus:  http.StatusOK,
			wantVersion: 3,
			check: func(t *testing.T, cfg config.Config) {
				assert.False(t, cfg.Control.TrayCalibrated())
			},
		},
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest, wantVersion: 1},
		{name: "hour out of range", body: `{"light_end_hour": 24}`, wantStatus: http.StatusBadRequest, wantVersion: 1},
		{name: "humidity out of range", body: `{"target_humidity": 101}`, wantStatus: http.StatusBadRequest, wantVersion: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/api/config", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantVersion, ts.store.Version())
			if tt.check != nil {
				tt.check(t, ts.store.Snapshot())
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodDelete, "/api/config", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/tray", "")

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{route="/api/tray",status="200"} 1`)
}

func TestRun_GracefulShutdown(t *testing.T) {
	ts := newTestServer(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- ts.srv.Run(ctx, addr, io.Discard) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop within timeout")
	}
}
