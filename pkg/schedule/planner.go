// Package schedule drives the sensing and control cadence and derives the
// day/night targets from the plant configuration.
package schedule

import (
	"time"

	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/control"
)

// LightsOn reports whether now falls inside the plant's light window.
// The window is [start, end) in local hours and may wrap midnight. An equal
// start and end hour means the lights stay off.
func LightsOn(plant config.PlantConfig, now time.Time) bool {
	hour := uint8(now.UTC().Add(plant.TimezoneOffset).Hour())
	start, end := plant.LightStartHour%24, plant.LightEndHour%24

	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

// Target returns the control target for now.
func Target(plant config.PlantConfig, now time.Time) control.TargetState {
	t := control.TargetState{
		Temp:     plant.TargetTemp,
		Humidity: plant.TargetHumidity,
		VentOn:   plant.VentOn,
	}
	if LightsOn(plant, now) {
		t.LightIntensity = plant.LightIntensity
	}
	return t
}
