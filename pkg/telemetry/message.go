package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/sensor"
)

// Log is the periodic telemetry record. Absent readings are sent as zero.
type Log struct {
	Timestamp int64                   `json:"timestamp"`
	TempIn    float64                 `json:"temp_in"`
	HumIn     uint8                   `json:"hum_in"`
	TempOut   float64                 `json:"temp_out"`
	HumOut    uint8                   `json:"hum_out"`
	Soil      float64                 `json:"soil"`
	EC        float64                 `json:"ec"`
	Outputs   control.ActuatorOutputs `json:"outputs"`
}

// BuildLog flattens a sensor snapshot and the current outputs.
func BuildLog(d sensor.SensorData, out control.ActuatorOutputs, now time.Time) Log {
	l := Log{
		Timestamp: now.Unix(),
		Outputs:   out,
	}
	if d.Internal != nil {
		l.TempIn, l.HumIn = d.Internal.Temp, d.Internal.Hum
	}
	if d.External != nil {
		l.TempOut, l.HumOut = d.External.Temp, d.External.Hum
	}
	if d.Tray != nil {
		l.Soil = *d.Tray
	}
	if d.EC != nil {
		l.EC = *d.EC
	}
	return l
}

// ConfigUpdate is a partial plant configuration change. Nil fields are left
// untouched.
type ConfigUpdate struct {
	TargetTemp     *float64 `json:"target_temp,omitempty"`
	PlantName      *string  `json:"plant_name,omitempty"`
	LightIntensity *uint8   `json:"light_intensity,omitempty"`
	LightStartHour *uint8   `json:"light_start_hour,omitempty"`
	LightEndHour   *uint8   `json:"light_end_hour,omitempty"`
}

// ParseConfigUpdate decodes and validates a config update payload.
func ParseConfigUpdate(payload []byte) (ConfigUpdate, error) {
	var u ConfigUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return ConfigUpdate{}, fmt.Errorf("invalid config update: %w", err)
	}
	if u.LightStartHour != nil && *u.LightStartHour > 23 {
		return ConfigUpdate{}, fmt.Errorf("invalid config update: light_start_hour %d out of range", *u.LightStartHour)
	}
	if u.LightEndHour != nil && *u.LightEndHour > 23 {
		return ConfigUpdate{}, fmt.Errorf("invalid config update: light_end_hour %d out of range", *u.LightEndHour)
	}
	return u, nil
}

// Empty reports whether the update changes nothing.
func (u ConfigUpdate) Empty() bool {
	return u.TargetTemp == nil && u.PlantName == nil && u.LightIntensity == nil &&
		u.LightStartHour == nil && u.LightEndHour == nil
}

// Apply copies the set fields into p.
func (u ConfigUpdate) Apply(p *config.PlantConfig) {
	if u.TargetTemp != nil {
		p.TargetTemp = *u.TargetTemp
	}
	if u.PlantName != nil {
		p.Name = *u.PlantName
	}
	if u.LightIntensity != nil {
		p.LightIntensity = *u.LightIntensity
	}
	if u.LightStartHour != nil {
		p.LightStartHour = *u.LightStartHour
	}
	if u.LightEndHour != nil {
		p.LightEndHour = *u.LightEndHour
	}
}
