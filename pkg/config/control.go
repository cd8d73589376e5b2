package config

import (
	"errors"
	"fmt"

	"github.com/itohio/growbox/internal/mathx"
)

// Safe PID gain bounds. Adaptive tuning never leaves this box.
const (
	MinKp = 0.1
	MaxKp = 20.0
	MinKi = 0.0
	MaxKi = 10.0
	MinKd = 0.0
	MaxKd = 10.0
)

// PIDGains holds one PID gain triple.
type PIDGains struct {
	Kp float64 `yaml:"kp" json:"kp"`
	Ki float64 `yaml:"ki" json:"ki"`
	Kd float64 `yaml:"kd" json:"kd"`
}

// Clamp returns the gains limited to the safe bounds.
func (g PIDGains) Clamp() PIDGains {
	return PIDGains{
		Kp: mathx.Clamp(g.Kp, MinKp, MaxKp),
		Ki: mathx.Clamp(g.Ki, MinKi, MaxKi),
		Kd: mathx.Clamp(g.Kd, MinKd, MaxKd),
	}
}

// ControlConfig contains every tunable parameter of the plant controller.
type ControlConfig struct {
	// Temperature (cascade)
	AirTemp     PIDGains `yaml:"air_temp" json:"air_temp"`
	PeltierHeat PIDGains `yaml:"peltier_heat" json:"peltier_heat"`
	PeltierCool PIDGains `yaml:"peltier_cool" json:"peltier_cool"`

	// Humidity
	HumColdSide   PIDGains `yaml:"hum_cold_side" json:"hum_cold_side"`
	HumColdTarget float64  `yaml:"hum_cold_target" json:"hum_cold_target"` // C, cold plate target while dehumidifying

	// Feedforward
	KFFHum  float64 `yaml:"k_ff_hum" json:"k_ff_hum"`
	KFFVent float64 `yaml:"k_ff_vent" json:"k_ff_vent"`

	// Fans
	FanTempOuter          PIDGains `yaml:"fan_temp_outer" json:"fan_temp_outer"`
	FanHumHot             PIDGains `yaml:"fan_hum_hot" json:"fan_hum_hot"`
	PeltierTempDiffTarget float64  `yaml:"peltier_temp_diff_target" json:"peltier_temp_diff_target"`
	KFanEffort            float64  `yaml:"k_fan_effort" json:"k_fan_effort"`
	FanBaseDay            float64  `yaml:"fan_base_day" json:"fan_base_day"`
	FanBaseNight          float64  `yaml:"fan_base_night" json:"fan_base_night"`
	MaxFanSpeed           uint8    `yaml:"max_fan_speed" json:"max_fan_speed"`

	// Soil moisture (used when the tray calibration is unusable)
	SoilLowThreshold  float64 `yaml:"soil_low_threshold" json:"soil_low_threshold"`
	SoilHighThreshold float64 `yaml:"soil_high_threshold" json:"soil_high_threshold"`

	// EC (ppm)
	ECLowThreshold  float64 `yaml:"ec_low_threshold" json:"ec_low_threshold"`
	ECHighThreshold float64 `yaml:"ec_high_threshold" json:"ec_high_threshold"`

	// Water tray calibration, raw ADC. Higher reading = less liquid.
	WaterCalNoTray  float64 `yaml:"water_cal_no_tray" json:"water_cal_no_tray"`
	WaterCalDryTray float64 `yaml:"water_cal_dry_tray" json:"water_cal_dry_tray"`
	WaterCalWetTray float64 `yaml:"water_cal_wet_tray" json:"water_cal_wet_tray"`
}

// DefaultControl returns the factory control configuration.
func DefaultControl() ControlConfig {
	return ControlConfig{
		AirTemp:               PIDGains{Kp: 1.0, Ki: 0.0, Kd: 0.0},
		PeltierHeat:           PIDGains{Kp: 2.0, Ki: 0.1, Kd: 0.0},
		PeltierCool:           PIDGains{Kp: 5.0, Ki: 0.1, Kd: 0.0},
		HumColdSide:           PIDGains{Kp: 2.0, Ki: 0.1, Kd: 0.0},
		HumColdTarget:         5.0,
		KFFHum:                0.2,
		KFFVent:               0.2,
		FanTempOuter:          PIDGains{Kp: 5.0, Ki: 0.1, Kd: 0.0},
		FanHumHot:             PIDGains{Kp: 5.0, Ki: 0.1, Kd: 0.0},
		PeltierTempDiffTarget: 10.0,
		KFanEffort:            0.5,
		FanBaseDay:            51, // ~20%
		FanBaseNight:          0,
		MaxFanSpeed:           204, // ~80%
		SoilLowThreshold:      100,
		SoilHighThreshold:     220,
		ECLowThreshold:        650,
		ECHighThreshold:       750,
		WaterCalNoTray:        3200,
		WaterCalDryTray:       2400,
		WaterCalWetTray:       1500,
	}
}

// ClampGains limits every gain triple to the safe bounds.
func (c *ControlConfig) ClampGains() {
	c.AirTemp = c.AirTemp.Clamp()
	c.PeltierHeat = c.PeltierHeat.Clamp()
	c.PeltierCool = c.PeltierCool.Clamp()
	c.HumColdSide = c.HumColdSide.Clamp()
	c.FanTempOuter = c.FanTempOuter.Clamp()
	c.FanHumHot = c.FanHumHot.Clamp()
}

// TrayCalibrated reports whether the three tray reference points are ordered
// no-tray > dry > wet.
func (c *ControlConfig) TrayCalibrated() bool {
	return c.WaterCalNoTray > c.WaterCalDryTray && c.WaterCalDryTray > c.WaterCalWetTray
}

// Validate reports threshold and calibration inversions. The controller
// still runs with an invalid configuration; this is for operators.
func (c *ControlConfig) Validate() error {
	var errs []error
	if !c.TrayCalibrated() {
		errs = append(errs, fmt.Errorf("tray calibration must satisfy no_tray > dry > wet, got %.0f/%.0f/%.0f",
			c.WaterCalNoTray, c.WaterCalDryTray, c.WaterCalWetTray))
	}
	if c.ECLowThreshold >= c.ECHighThreshold {
		errs = append(errs, fmt.Errorf("ec_low_threshold %.1f must be below ec_high_threshold %.1f",
			c.ECLowThreshold, c.ECHighThreshold))
	}
	if c.SoilLowThreshold >= c.SoilHighThreshold {
		errs = append(errs, fmt.Errorf("soil_low_threshold %.1f must be below soil_high_threshold %.1f",
			c.SoilLowThreshold, c.SoilHighThreshold))
	}
	return errors.Join(errs...)
}
