// Package control implements the grow box plant controller.
package control

// TargetState is the desired setpoint for one control cycle.
type TargetState struct {
	Temp           float64 `json:"temp"`     // C
	Humidity       uint8   `json:"humidity"` // %
	VentOn         bool    `json:"vent_on"`
	LightIntensity uint8   `json:"light_intensity"`
}

// ActuatorOutputs is the logical command surface. Hardware specific
// translation (H-bridge polarity, LED duty limits) belongs to the board.
type ActuatorOutputs struct {
	PeltierPWM    uint8 `json:"peltier_pwm"`
	PeltierHeat   bool  `json:"peltier_heat"` // direction: true heats, false cools
	HumPeltierPWM uint8 `json:"hum_peltier_pwm"`
	FanInner      uint8 `json:"fan_inner"`
	FanOuter      uint8 `json:"fan_outer"`
	FanHum        uint8 `json:"fan_hum"`
	VentOn        bool  `json:"vent_on"`
	LEDIntensity  uint8 `json:"led_intensity"`
	PumpNutrient  bool  `json:"pump_nutrient"`
	PumpWater     bool  `json:"pump_water"`
}

// Status exposes the controller's internal state for telemetry.
type Status struct {
	DehumidifierActive bool    `json:"dehumidifier_active"`
	PumpNutrientActive bool    `json:"pump_nutrient_active"`
	PumpWaterActive    bool    `json:"pump_water_active"`
	TrayLockout        int     `json:"tray_lockout"`
	FanInnerSpeed      float64 `json:"fan_inner_speed"`
	FanOuterSpeed      float64 `json:"fan_outer_speed"`
	FanHumSpeed        float64 `json:"fan_hum_speed"`
	AirTempError       float64 `json:"air_temp_error"`
	AirTempKp          float64 `json:"air_temp_kp"`
	AirTempKi          float64 `json:"air_temp_ki"`
	AirTempKd          float64 `json:"air_temp_kd"`
}
