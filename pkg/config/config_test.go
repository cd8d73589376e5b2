package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Schedule.SensorTick)
	assert.Equal(t, 10, cfg.Schedule.ControlDecimation)
	assert.Equal(t, time.Second, cfg.Schedule.ControlPeriod())
	assert.Equal(t, 300, cfg.Schedule.TunerInterval)
	assert.Equal(t, float64(51), cfg.Control.FanBaseDay)
	assert.Equal(t, uint8(204), cfg.Control.MaxFanSpeed)
	assert.Equal(t, PIDGains{Kp: 1.0}, cfg.Control.AirTemp)
	assert.True(t, cfg.Control.TrayCalibrated())
	assert.NoError(t, cfg.Control.Validate())
	assert.Equal(t, float64(4095), cfg.Filter.InitialTray)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, DefaultControl(), cfg.Control)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyUSB1"
  stale_after: 2s

control:
  air_temp:
    kp: 3.0
    ki: 0.5
    kd: 0.1
  max_fan_speed: 180
  water_cal_no_tray: 3500
  water_cal_dry_tray: 2600
  water_cal_wet_tray: 1400

plant:
  name: "Basil"
  target_temp: 23.5
  light_start_hour: 6
  light_end_hour: 22

schedule:
  sensor_tick: 50ms
  control_decimation: 20

mqtt:
  enabled: true
  broker: "tcp://broker:1883"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 2*time.Second, cfg.Serial.StaleAfter)
	assert.Equal(t, PIDGains{Kp: 3.0, Ki: 0.5, Kd: 0.1}, cfg.Control.AirTemp)
	assert.Equal(t, uint8(180), cfg.Control.MaxFanSpeed)
	assert.Equal(t, float64(2600), cfg.Control.WaterCalDryTray)
	assert.Equal(t, "Basil", cfg.Plant.Name)
	assert.Equal(t, 23.5, cfg.Plant.TargetTemp)
	assert.Equal(t, uint8(6), cfg.Plant.LightStartHour)
	assert.Equal(t, 50*time.Millisecond, cfg.Schedule.SensorTick)
	assert.Equal(t, 20, cfg.Schedule.ControlDecimation)
	assert.Equal(t, time.Second, cfg.Schedule.ControlPeriod())
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "plant/logs", cfg.MQTT.LogTopic) // default
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_ZeroFieldsGetDefaults(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: ""
control:
  max_fan_speed: 0
  air_temp:
    kp: 0
    ki: 50
    kd: -1
  water_cal_no_tray: 0
  water_cal_dry_tray: 0
  water_cal_wet_tray: 0
schedule:
  control_decimation: 0
filter:
  temp_noise: -5
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Serial.Port, cfg.Serial.Port)
	assert.Equal(t, def.Control.MaxFanSpeed, cfg.Control.MaxFanSpeed)
	assert.Equal(t, def.Control.WaterCalNoTray, cfg.Control.WaterCalNoTray)
	assert.Equal(t, def.Schedule.ControlDecimation, cfg.Schedule.ControlDecimation)
	assert.Equal(t, def.Filter.TempNoise, cfg.Filter.TempNoise)

	// Out of range gains are clamped, not rejected
	assert.Equal(t, PIDGains{Kp: MinKp, Ki: MaxKi, Kd: MinKd}, cfg.Control.AirTemp)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Plant.TargetTemp = 19.5
	cfg.Control.HumColdTarget = 4.0

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, 19.5, loaded.Plant.TargetTemp)
	assert.Equal(t, 4.0, loaded.Control.HumColdTarget)
	assert.Equal(t, cfg.Schedule, loaded.Schedule)
}

func TestPIDGains_Clamp(t *testing.T) {
	tests := []struct {
		name string
		in   PIDGains
		want PIDGains
	}{
		{name: "inside", in: PIDGains{Kp: 1, Ki: 1, Kd: 1}, want: PIDGains{Kp: 1, Ki: 1, Kd: 1}},
		{name: "kp too small", in: PIDGains{Kp: 0.01}, want: PIDGains{Kp: 0.1}},
		{name: "all too large", in: PIDGains{Kp: 100, Ki: 100, Kd: 100}, want: PIDGains{Kp: 20, Ki: 10, Kd: 10}},
		{name: "negative", in: PIDGains{Kp: -1, Ki: -1, Kd: -1}, want: PIDGains{Kp: 0.1, Ki: 0, Kd: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Clamp())
		})
	}
}

func TestControlConfig_Validate(t *testing.T) {
	cfg := DefaultControl()
	assert.NoError(t, cfg.Validate())

	cfg.WaterCalWetTray = cfg.WaterCalDryTray + 1
	assert.False(t, cfg.TrayCalibrated())
	assert.ErrorContains(t, cfg.Validate(), "tray calibration")

	cfg = DefaultControl()
	cfg.ECLowThreshold = 800
	assert.ErrorContains(t, cfg.Validate(), "ec_low_threshold")
}
