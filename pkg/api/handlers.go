package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/sensor"
)

const maxBodySize = 64 << 10

// TrayCalibration holds the three tray ADC reference points.
type TrayCalibration struct {
	NoTray float64 `json:"water_cal_no_tray"`
	Dry    float64 `json:"water_cal_dry_tray"`
	Wet    float64 `json:"water_cal_wet_tray"`
}

// ConfigView is the editable part of the configuration.
type ConfigView struct {
	Plant       config.PlantConfig `json:"plant"`
	Calibration TrayCalibration    `json:"calibration"`
}

// ConfigRequest is a partial configuration change. Nil fields are left
// untouched.
type ConfigRequest struct {
	Name           *string  `json:"name,omitempty"`
	NominalEC      *float64 `json:"nominal_ec,omitempty"`
	TargetTemp     *float64 `json:"target_temp,omitempty"`
	TargetHumidity *uint8   `json:"target_humidity,omitempty"`
	VentOn         *bool    `json:"vent_on,omitempty"`
	LightIntensity *uint8   `json:"light_intensity,omitempty"`
	LightStartHour *uint8   `json:"light_start_hour,omitempty"`
	LightEndHour   *uint8   `json:"light_end_hour,omitempty"`

	WaterCalNoTray  *float64 `json:"water_cal_no_tray,omitempty"`
	WaterCalDryTray *float64 `json:"water_cal_dry_tray,omitempty"`
	WaterCalWetTray *float64 `json:"water_cal_wet_tray,omitempty"`
}

func (r ConfigRequest) validate() error {
	if r.LightStartHour != nil && *r.LightStartHour > 23 {
		return fmt.Errorf("light_start_hour %d out of range", *r.LightStartHour)
	}
	if r.LightEndHour != nil && *r.LightEndHour > 23 {
		return fmt.Errorf("light_end_hour %d out of range", *r.LightEndHour)
	}
	if r.TargetHumidity != nil && *r.TargetHumidity > 100 {
		return fmt.Errorf("target_humidity %d out of range", *r.TargetHumidity)
	}
	return nil
}

func (r ConfigRequest) hasCalibration() bool {
	return r.WaterCalNoTray != nil || r.WaterCalDryTray != nil || r.WaterCalWetTray != nil
}

func (r ConfigRequest) applyPlant(p *config.PlantConfig) {
	setIf(&p.Name, r.Name)
	setIf(&p.NominalEC, r.NominalEC)
	setIf(&p.TargetTemp, r.TargetTemp)
	setIf(&p.TargetHumidity, r.TargetHumidity)
	setIf(&p.VentOn, r.VentOn)
	setIf(&p.LightIntensity, r.LightIntensity)
	setIf(&p.LightStartHour, r.LightStartHour)
	setIf(&p.LightEndHour, r.LightEndHour)
}

func (r ConfigRequest) applyCalibration(c *config.ControlConfig) {
	setIf(&c.WaterCalNoTray, r.WaterCalNoTray)
	setIf(&c.WaterCalDryTray, r.WaterCalDryTray)
	setIf(&c.WaterCalWetTray, r.WaterCalWetTray)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) sensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Hub.Snapshot())
}

func (s *Server) actuators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Outputs())
}

func (s *Server) ec(w http.ResponseWriter, r *http.Request) {
	v := "0.0"
	if ec := s.deps.Hub.Snapshot().EC; ec != nil {
		v = fmt.Sprintf("%.2f", *ec)
	}
	writeText(w, v)
}

func (s *Server) tray(w http.ResponseWriter, r *http.Request) {
	v := "0"
	if tray := s.deps.Hub.Snapshot().Tray; tray != nil {
		v = fmt.Sprintf("%.0f", *tray)
	}
	writeText(w, v)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	points := 0
	if v := r.URL.Query().Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid points")
			return
		}
		points = n
	}
	writeJSON(w, http.StatusOK, struct {
		Entries []sensor.HistoryEntry `json:"entries"`
		Summary sensor.Summary        `json:"summary"`
	}{
		Entries: sensor.Downsample(nil, s.deps.History.Entries(), points),
		Summary: s.deps.History.Summary(),
	})
}

func (s *Server) configView() ConfigView {
	cfg := s.deps.Store.Snapshot()
	return ConfigView{
		Plant: cfg.Plant,
		Calibration: TrayCalibration{
			NoTray: cfg.Control.WaterCalNoTray,
			Dry:    cfg.Control.WaterCalDryTray,
			Wet:    cfg.Control.WaterCalWetTray,
		},
	}
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configView())
}

func (s *Server) postConfig(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	var req ConfigRequest
	if err := json.Unmarshal(b, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Persist failures keep the in-memory change, so they are only logged.
	if err := s.deps.Store.UpdatePlant(req.applyPlant); err != nil {
		s.log.Error("plant configuration not persisted", "err", err)
	}
	if req.hasCalibration() {
		if err := s.deps.Store.UpdateControl(req.applyCalibration); err != nil {
			s.log.Error("tray calibration not persisted", "err", err)
		}
		if cc, _ := s.deps.Store.Control(); !cc.TrayCalibrated() {
			s.log.Warn("tray calibration is inconsistent, soil thresholds will be used",
				"no_tray", cc.WaterCalNoTray, "dry", cc.WaterCalDryTray, "wet", cc.WaterCalWetTray)
		}
	}

	writeJSON(w, http.StatusOK, s.configView())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeText(w http.ResponseWriter, v string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, v)
}
