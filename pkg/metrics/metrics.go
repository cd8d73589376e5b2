// Package metrics exposes the grow box state as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/schedule"
	"github.com/itohio/growbox/pkg/sensor"
)

const namespace = "growbox"

// Metrics holds the collectors in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	sensors      *prometheus.GaugeVec
	missing      *prometheus.CounterVec
	outputs      *prometheus.GaugeVec
	gains        *prometheus.GaugeVec
	latches      *prometheus.GaugeVec
	airTempError prometheus.Gauge
	trayLockout  prometheus.Gauge
	cycles       prometheus.Counter

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sensors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_value",
			Help:      "Filtered sensor estimate by quantity.",
		}, []string{"quantity"}),
		missing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_missing_total",
			Help:      "Control cycles that ran with a sensor group absent.",
		}, []string{"group"}),
		outputs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actuator_output",
			Help:      "Actuator command by output.",
		}, []string{"output"}),
		gains: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "air_temp_gain",
			Help:      "Air temperature PID gains by term.",
		}, []string{"term"}),
		latches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latch_active",
			Help:      "Hysteresis latch state (0 off, 1 on).",
		}, []string{"latch"}),
		airTempError: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "air_temp_error_celsius",
			Help:      "Target minus internal temperature.",
		}),
		trayLockout: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tray_lockout_cycles",
			Help:      "Remaining tray disturbance lockout cycles.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_cycles_total",
			Help:      "Total control cycles run.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sensors,
		m.missing,
		m.outputs,
		m.gains,
		m.latches,
		m.airTempError,
		m.trayLockout,
		m.cycles,
		m.httpRequestsTotal,
		m.httpDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe records one control cycle.
func (m *Metrics) Observe(c schedule.Cycle) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.observeSensors(c.Sensors)
	m.observeOutputs(c.Outputs)
	m.observeStatus(c.Status)
}

func (m *Metrics) observeSensors(d sensor.SensorData) {
	for _, group := range d.Missing() {
		m.missing.WithLabelValues(group).Inc()
	}

	if d.Internal != nil {
		m.sensors.WithLabelValues("internal_temp").Set(d.Internal.Temp)
		m.sensors.WithLabelValues("internal_hum").Set(float64(d.Internal.Hum))
	}
	if d.External != nil {
		m.sensors.WithLabelValues("external_temp").Set(d.External.Temp)
		m.sensors.WithLabelValues("external_hum").Set(float64(d.External.Hum))
	}
	if d.NTC != nil {
		m.sensors.WithLabelValues("ntc_peltier_inner").Set(d.NTC[sensor.NTCPeltierInner])
		m.sensors.WithLabelValues("ntc_peltier_outer").Set(d.NTC[sensor.NTCPeltierOuter])
		m.sensors.WithLabelValues("ntc_hum_cold").Set(d.NTC[sensor.NTCHumCold])
		m.sensors.WithLabelValues("ntc_hum_hot").Set(d.NTC[sensor.NTCHumHot])
	}
	if d.Tray != nil {
		m.sensors.WithLabelValues("tray").Set(*d.Tray)
	}
	if d.EC != nil {
		m.sensors.WithLabelValues("ec").Set(*d.EC)
	}
	if d.CO2 != nil {
		m.sensors.WithLabelValues("co2").Set(*d.CO2)
	}
}

func (m *Metrics) observeOutputs(out control.ActuatorOutputs) {
	peltier := float64(out.PeltierPWM)
	if !out.PeltierHeat {
		peltier = -peltier
	}
	m.outputs.WithLabelValues("peltier").Set(peltier)
	m.outputs.WithLabelValues("hum_peltier").Set(float64(out.HumPeltierPWM))
	m.outputs.WithLabelValues("fan_inner").Set(float64(out.FanInner))
	m.outputs.WithLabelValues("fan_outer").Set(float64(out.FanOuter))
	m.outputs.WithLabelValues("fan_hum").Set(float64(out.FanHum))
	m.outputs.WithLabelValues("vent").Set(boolValue(out.VentOn))
	m.outputs.WithLabelValues("led").Set(float64(out.LEDIntensity))
	m.outputs.WithLabelValues("pump_nutrient").Set(boolValue(out.PumpNutrient))
	m.outputs.WithLabelValues("pump_water").Set(boolValue(out.PumpWater))
}

func (m *Metrics) observeStatus(s control.Status) {
	m.gains.WithLabelValues("kp").Set(s.AirTempKp)
	m.gains.WithLabelValues("ki").Set(s.AirTempKi)
	m.gains.WithLabelValues("kd").Set(s.AirTempKd)
	m.latches.WithLabelValues("dehumidifier").Set(boolValue(s.DehumidifierActive))
	m.latches.WithLabelValues("pump_nutrient").Set(boolValue(s.PumpNutrientActive))
	m.latches.WithLabelValues("pump_water").Set(boolValue(s.PumpWaterActive))
	m.airTempError.Set(s.AirTempError)
	m.trayLockout.Set(float64(s.TrayLockout))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their duration under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
