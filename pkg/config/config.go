package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Control     ControlConfig     `yaml:"control"`
	Filter      FilterConfig      `yaml:"filter"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Plant       PlantConfig       `yaml:"plant"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
	Mock        MockConfig        `yaml:"mock"`
	Log         LogConfig         `yaml:"log"`
}

// SerialConfig contains the sensor/actuator board link configuration.
type SerialConfig struct {
	Port       string        `yaml:"port"`
	BaudRate   int           `yaml:"baud_rate"`
	StaleAfter time.Duration `yaml:"stale_after"` // Frames older than this count as failed reads
}

// FilterConfig contains the state estimator noise model.
type FilterConfig struct {
	ProcessNoise float64 `yaml:"process_noise"`
	TempNoise    float64 `yaml:"temp_noise"` // Measurement variance for temperature channels
	HumNoise     float64 `yaml:"hum_noise"`  // Measurement variance for humidity channels
	ADCNoise     float64 `yaml:"adc_noise"`  // Measurement variance for tray and EC channels

	InitialTemp float64 `yaml:"initial_temp"`
	InitialHum  float64 `yaml:"initial_hum"`
	InitialTray float64 `yaml:"initial_tray"` // Starts at "no tray" for safety
	InitialEC   float64 `yaml:"initial_ec"`
}

// CalibrationConfig contains analog front-end calibration.
type CalibrationConfig struct {
	ADCVRef        float64 `yaml:"adc_vref"`
	ECKValue       float64 `yaml:"ec_k_value"`
	NTCSeries      float64 `yaml:"ntc_series"`       // Series resistor (ohm)
	NTCNominal     float64 `yaml:"ntc_nominal"`      // Thermistor resistance at nominal temperature (ohm)
	NTCNominalTemp float64 `yaml:"ntc_nominal_temp"` // Nominal temperature (C)
	NTCBeta        float64 `yaml:"ntc_beta"`
}

// PlantConfig describes the plant being grown and its day/night schedule.
type PlantConfig struct {
	Name           string        `yaml:"name" json:"name"`
	NominalEC      float64       `yaml:"nominal_ec" json:"nominal_ec"`
	TargetTemp     float64       `yaml:"target_temp" json:"target_temp"`
	TargetHumidity uint8         `yaml:"target_humidity" json:"target_humidity"`
	VentOn         bool          `yaml:"vent_on" json:"vent_on"`
	LightStartHour uint8         `yaml:"light_start_hour" json:"light_start_hour"`
	LightEndHour   uint8         `yaml:"light_end_hour" json:"light_end_hour"`
	LightIntensity uint8         `yaml:"light_intensity" json:"light_intensity"`
	TimezoneOffset time.Duration `yaml:"timezone_offset" json:"timezone_offset"`
}

// ScheduleConfig contains the loop cadence.
type ScheduleConfig struct {
	SensorTick        time.Duration `yaml:"sensor_tick"`
	ControlDecimation int           `yaml:"control_decimation"` // Control runs once every N sensor ticks
	TunerInterval     int           `yaml:"tuner_interval"`     // In control cycles
	HistoryInterval   time.Duration `yaml:"history_interval"`
	HistorySize       int           `yaml:"history_size"`
}

// ControlPeriod returns the effective control cycle period.
func (s ScheduleConfig) ControlPeriod() time.Duration {
	return s.SensorTick * time.Duration(s.ControlDecimation)
}

// MQTTConfig contains telemetry broker configuration.
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"` // Generated when empty
	LogTopic    string        `yaml:"log_topic"`
	ConfigTopic string        `yaml:"config_topic"`
	Interval    time.Duration `yaml:"interval"`
}

// HTTPConfig contains the status API configuration.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MockConfig contains simulated board configuration.
type MockConfig struct {
	AmbientTemp     float64       `yaml:"ambient_temp"`     // C
	AmbientHumidity float64       `yaml:"ambient_humidity"` // %
	NoiseLevel      float64       `yaml:"noise_level"`      // Relative noise amplitude
	FailureRate     float64       `yaml:"failure_rate"`     // Probability of a failed sensor read (0..1)
	TrayStart       float64       `yaml:"tray_start"`       // Initial tray ADC reading
	SampleRate      time.Duration `yaml:"sample_rate"`      // Simulation step
	Seed            int64         `yaml:"seed"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // Optional log file, stdout is always used
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:       "/dev/ttyACM0",
			BaudRate:   115200,
			StaleAfter: 500 * time.Millisecond,
		},
		Control: DefaultControl(),
		Filter: FilterConfig{
			ProcessNoise: 0.01,
			TempNoise:    40.0,
			HumNoise:     5.0,
			ADCNoise:     0.2,
			InitialTemp:  25.0,
			InitialHum:   50.0,
			InitialTray:  4095.0,
			InitialEC:    0.0,
		},
		Calibration: CalibrationConfig{
			ADCVRef:        3.3,
			ECKValue:       1.0,
			NTCSeries:      10000,
			NTCNominal:     10000,
			NTCNominalTemp: 25.0,
			NTCBeta:        3950,
		},
		Plant: PlantConfig{
			Name:           "My Plant",
			NominalEC:      1.2,
			TargetTemp:     25.0,
			TargetHumidity: 60,
			VentOn:         true,
			LightStartHour: 8,
			LightEndHour:   20,
			LightIntensity: 255,
		},
		Schedule: ScheduleConfig{
			SensorTick:        100 * time.Millisecond,
			ControlDecimation: 10,
			TunerInterval:     300,
			HistoryInterval:   time.Minute,
			HistorySize:       10,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			LogTopic:    "plant/logs",
			ConfigTopic: "plant/config",
			Interval:    5 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Listen:  ":8080",
		},
		Mock: MockConfig{
			AmbientTemp:     22.0,
			AmbientHumidity: 55.0,
			NoiseLevel:      0.01,
			FailureRate:     0.0,
			TrayStart:       2000,
			SampleRate:      100 * time.Millisecond,
			Seed:            1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills fields where zero is never a usable value.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.StaleAfter == 0 {
		c.Serial.StaleAfter = def.Serial.StaleAfter
	}

	if c.Control.MaxFanSpeed == 0 {
		c.Control.MaxFanSpeed = def.Control.MaxFanSpeed
	}
	if c.Control.WaterCalNoTray == 0 && c.Control.WaterCalDryTray == 0 && c.Control.WaterCalWetTray == 0 {
		c.Control.WaterCalNoTray = def.Control.WaterCalNoTray
		c.Control.WaterCalDryTray = def.Control.WaterCalDryTray
		c.Control.WaterCalWetTray = def.Control.WaterCalWetTray
	}
	c.Control.ClampGains()

	if c.Filter.ProcessNoise <= 0 {
		c.Filter.ProcessNoise = def.Filter.ProcessNoise
	}
	if c.Filter.TempNoise <= 0 {
		c.Filter.TempNoise = def.Filter.TempNoise
	}
	if c.Filter.HumNoise <= 0 {
		c.Filter.HumNoise = def.Filter.HumNoise
	}
	if c.Filter.ADCNoise <= 0 {
		c.Filter.ADCNoise = def.Filter.ADCNoise
	}

	if c.Calibration.ADCVRef == 0 {
		c.Calibration.ADCVRef = def.Calibration.ADCVRef
	}
	if c.Calibration.ECKValue == 0 {
		c.Calibration.ECKValue = def.Calibration.ECKValue
	}
	if c.Calibration.NTCSeries == 0 {
		c.Calibration.NTCSeries = def.Calibration.NTCSeries
	}
	if c.Calibration.NTCNominal == 0 {
		c.Calibration.NTCNominal = def.Calibration.NTCNominal
	}
	if c.Calibration.NTCBeta == 0 {
		c.Calibration.NTCBeta = def.Calibration.NTCBeta
	}

	if c.Schedule.SensorTick == 0 {
		c.Schedule.SensorTick = def.Schedule.SensorTick
	}
	if c.Schedule.ControlDecimation <= 0 {
		c.Schedule.ControlDecimation = def.Schedule.ControlDecimation
	}
	if c.Schedule.TunerInterval <= 0 {
		c.Schedule.TunerInterval = def.Schedule.TunerInterval
	}
	if c.Schedule.HistoryInterval == 0 {
		c.Schedule.HistoryInterval = def.Schedule.HistoryInterval
	}
	if c.Schedule.HistorySize <= 0 {
		c.Schedule.HistorySize = def.Schedule.HistorySize
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.LogTopic == "" {
		c.MQTT.LogTopic = def.MQTT.LogTopic
	}
	if c.MQTT.ConfigTopic == "" {
		c.MQTT.ConfigTopic = def.MQTT.ConfigTopic
	}
	if c.MQTT.Interval == 0 {
		c.MQTT.Interval = def.MQTT.Interval
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = def.HTTP.Listen
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
