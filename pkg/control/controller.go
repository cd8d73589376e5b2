package control

import (
	"log/slog"

	"github.com/itohio/growbox/internal/mathx"
	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/sensor"
)

const (
	minTargetTemp = 5.0 // below this the targets are not configured yet

	humHysteresis = 10.0

	trayDisturbance = 50.0 // reading rise per cycle treated as tray removal
	trayLockout     = 10   // cycles

	tempDeadband       = 0.5
	fallbackAmbientC   = 25.0
	fullDrive          = 255.0
	slewAlpha          = 0.1
	peltierOverheatC   = 60.0
	humPeltierOverheat = 70.0
)

// PlantController turns sensor snapshots and targets into actuator outputs.
// It owns all latch, PID and slew state and is not safe for concurrent use.
type PlantController struct {
	cfg config.ControlConfig
	log *slog.Logger

	pidAirTemp  *pidLoop
	pidHumCold  *pidLoop
	pidFanOuter *pidLoop
	pidFanHum   *pidLoop

	tuner      *Tuner
	gainsDirty bool

	fanInnerSpeed float64
	fanOuterSpeed float64
	fanHumSpeed   float64

	dehumidifierActive bool
	pumpNutrientActive bool
	pumpWaterActive    bool

	prevTray    *float64
	lockout     int
	airTempErr  float64
	overheating bool
}

// New creates a controller. The PID sampling interval is the control period
// and the tuner analyzes every sched.TunerInterval cycles.
func New(cfg config.ControlConfig, sched config.ScheduleConfig, log *slog.Logger) *PlantController {
	if log == nil {
		log = slog.Default()
	}
	dt := sched.ControlPeriod()

	cfg.ClampGains()
	return &PlantController{
		cfg:                cfg,
		log:                log,
		pidAirTemp:         newPIDLoop(cfg.AirTemp, dt),
		pidHumCold:         newPIDLoop(cfg.HumColdSide, dt),
		pidFanOuter:        newPIDLoop(cfg.FanTempOuter, dt),
		pidFanHum:          newPIDLoop(cfg.FanHumHot, dt),
		tuner:              NewTuner(sched.TunerInterval),
		dehumidifierActive: true,
	}
}

// UpdateConfig replaces the working configuration and reapplies the gains.
// Latch, PID memory and slew state are kept.
func (c *PlantController) UpdateConfig(cfg config.ControlConfig) {
	cfg.ClampGains()
	c.cfg = cfg
	c.pidAirTemp.setGains(cfg.AirTemp)
	c.pidHumCold.setGains(cfg.HumColdSide)
	c.pidFanOuter.setGains(cfg.FanTempOuter)
	c.pidFanHum.setGains(cfg.FanHumHot)
	c.gainsDirty = false
}

// Config returns a copy of the working configuration.
func (c *PlantController) Config() config.ControlConfig {
	return c.cfg
}

// TakeTunedGains returns the air temperature gains when the tuner changed
// them since the last call. The caller writes them back to the store.
func (c *PlantController) TakeTunedGains() (config.PIDGains, bool) {
	if !c.gainsDirty {
		return config.PIDGains{}, false
	}
	c.gainsDirty = false
	return c.cfg.AirTemp, true
}

// Status returns the internal state.
func (c *PlantController) Status() Status {
	return Status{
		DehumidifierActive: c.dehumidifierActive,
		PumpNutrientActive: c.pumpNutrientActive,
		PumpWaterActive:    c.pumpWaterActive,
		TrayLockout:        c.lockout,
		FanInnerSpeed:      c.fanInnerSpeed,
		FanOuterSpeed:      c.fanOuterSpeed,
		FanHumSpeed:        c.fanHumSpeed,
		AirTempError:       c.airTempErr,
		AirTempKp:          c.cfg.AirTemp.Kp,
		AirTempKi:          c.cfg.AirTemp.Ki,
		AirTempKd:          c.cfg.AirTemp.Kd,
	}
}

// Step runs one control cycle. It always returns a defined output; missing
// readings and interlocks are handled inside each sub-controller.
func (c *PlantController) Step(sensors sensor.SensorData, target TargetState) ActuatorOutputs {
	if target.Temp < minTargetTemp {
		return ActuatorOutputs{}
	}

	humPWM := c.controlHumidity(sensors, target)
	vent := c.controlVentilation(target)
	pumpNutrient := c.controlTray(sensors)
	pumpWater := c.controlEC(sensors)
	fanOuterEffort, fanHumEffort := c.controlAuxFans(sensors)
	peltierPWM, fanInnerTarget := c.controlTemperature(sensors, target)

	c.applySlew(fanInnerTarget, fanOuterEffort, fanHumEffort)

	return c.postProcess(sensors, target, peltierPWM, humPWM, vent, pumpNutrient, pumpWater)
}

// controlHumidity returns the dehumidifier peltier PWM in [0, 255].
func (c *PlantController) controlHumidity(s sensor.SensorData, target TargetState) float64 {
	if s.Internal == nil || s.NTC == nil {
		return 0
	}
	hum := float64(s.Internal.Hum)
	setpoint := float64(target.Humidity)

	switch {
	case hum > setpoint+humHysteresis && !c.dehumidifierActive:
		c.dehumidifierActive = true
		c.log.Info("dehumidifier on", "humidity", hum, "target", setpoint)
	case hum < setpoint-humHysteresis && c.dehumidifierActive:
		c.dehumidifierActive = false
		c.log.Info("dehumidifier off", "humidity", hum, "target", setpoint)
	}

	if !c.dehumidifierActive {
		return 0
	}

	effort := c.pidHumCold.update(c.cfg.HumColdTarget, s.NTC[sensor.NTCHumCold])
	return mathx.Clamp(-effort, 0, fullDrive)
}

func (c *PlantController) controlVentilation(target TargetState) bool {
	return target.VentOn
}

// controlTray drives the nutrient pump from the tray level. Higher readings
// mean less liquid.
func (c *PlantController) controlTray(s sensor.SensorData) bool {
	if s.Tray == nil {
		c.prevTray = nil
		c.pumpNutrientActive = false
		return false
	}
	level := *s.Tray

	if c.prevTray != nil {
		delta := level - *c.prevTray
		c.prevTray = &level
		if delta > trayDisturbance {
			c.lockout = trayLockout
			c.pumpNutrientActive = false
			c.log.Warn("tray disturbance, pump locked out", "delta", delta, "cycles", trayLockout)
			return false
		}
	} else {
		c.prevTray = &level
	}

	if c.lockout > 0 {
		c.lockout--
		c.pumpNutrientActive = false
		return false
	}

	if !c.cfg.TrayCalibrated() {
		// Plain soil hysteresis.
		if level > c.cfg.SoilHighThreshold {
			c.pumpNutrientActive = true
		} else if level < c.cfg.SoilLowThreshold {
			c.pumpNutrientActive = false
		}
		return c.pumpNutrientActive
	}

	ceiling, start, stop := c.trayThresholds()
	switch {
	case level > ceiling:
		c.pumpNutrientActive = false
	case level > start:
		c.pumpNutrientActive = true
	case level < stop:
		c.pumpNutrientActive = false
	}
	return c.pumpNutrientActive
}

// trayThresholds derives the safety ceiling, start and stop levels from the
// no-tray, dry and wet calibration points.
func (c *PlantController) trayThresholds() (ceiling, start, stop float64) {
	noTray, dry, wet := c.cfg.WaterCalNoTray, c.cfg.WaterCalDryTray, c.cfg.WaterCalWetTray
	band := (dry - wet) / 3
	return dry + (noTray-dry)/4, dry - band, wet + band
}

// controlEC drives the water pump: dilute when the solution is too strong.
func (c *PlantController) controlEC(s sensor.SensorData) bool {
	if s.EC == nil {
		c.pumpWaterActive = false
		return false
	}
	ec := *s.EC
	if ec > c.cfg.ECHighThreshold {
		c.pumpWaterActive = true
	} else if ec < c.cfg.ECLowThreshold {
		c.pumpWaterActive = false
	}
	return c.pumpWaterActive
}

// controlAuxFans returns raw fan efforts for the outer temperature fan and
// the hot humidity side fan.
func (c *PlantController) controlAuxFans(s sensor.SensorData) (outer, hum float64) {
	if s.NTC == nil {
		return 0, 0
	}
	ntc := s.NTC
	diffTemp := mathx.Abs(ntc[sensor.NTCPeltierOuter] - ntc[sensor.NTCPeltierInner])
	diffHum := mathx.Abs(ntc[sensor.NTCHumHot] - ntc[sensor.NTCHumCold])

	// Effort grows as the differential exceeds the target.
	outer = c.pidFanOuter.update(diffTemp, c.cfg.PeltierTempDiffTarget)
	hum = c.pidFanHum.update(diffHum, c.cfg.PeltierTempDiffTarget)
	return outer, hum
}

// controlTemperature returns the signed peltier drive and the inner fan
// target. Bang-bang with a deadband around the target.
func (c *PlantController) controlTemperature(s sensor.SensorData, target TargetState) (pwm, fanTarget float64) {
	if s.Internal == nil || s.NTC == nil {
		return 0, 0
	}
	internal := s.Internal.Temp
	external := fallbackAmbientC
	if s.External != nil {
		external = s.External.Temp
	}

	err := target.Temp - internal
	c.airTempErr = err

	if prev := c.cfg.AirTemp; c.tuner.Update(err, &c.cfg.AirTemp) && c.cfg.AirTemp != prev {
		c.pidAirTemp.setGains(c.cfg.AirTemp)
		c.gainsDirty = true
		c.log.Info("air temperature gains tuned",
			"kp", c.cfg.AirTemp.Kp, "ki", c.cfg.AirTemp.Ki, "kd", c.cfg.AirTemp.Kd)
	}

	if mathx.Abs(err) < tempDeadband {
		c.pidAirTemp.reset()
		return 0, c.cfg.FanBaseDay
	}

	// The air loop is tracked for telemetry only; the drive is bang-bang.
	effort := c.pidAirTemp.update(target.Temp, internal)
	c.log.Debug("temperature drive",
		"error", err, "external", external, "peltier_inner", s.NTC[sensor.NTCPeltierInner], "pid_effort", effort)

	if err > 0 {
		return fullDrive, fullDrive
	}
	return -fullDrive, fullDrive
}

// applySlew moves each fan accumulator a fraction alpha toward its target.
func (c *PlantController) applySlew(inner, outer, hum float64) {
	c.fanInnerSpeed = c.fanInnerSpeed*(1-slewAlpha) + inner*slewAlpha
	c.fanOuterSpeed = c.fanOuterSpeed*(1-slewAlpha) + outer*slewAlpha
	c.fanHumSpeed = c.fanHumSpeed*(1-slewAlpha) + hum*slewAlpha
}

func (c *PlantController) postProcess(
	s sensor.SensorData,
	target TargetState,
	peltierPWM, humPWM float64,
	vent, pumpNutrient, pumpWater bool,
) ActuatorOutputs {
	maxFan := float64(c.cfg.MaxFanSpeed)

	out := ActuatorOutputs{
		FanHum:       mathx.ToByte(mathx.Clamp(c.fanHumSpeed, 0, maxFan)),
		VentOn:       vent,
		LEDIntensity: target.LightIntensity,
		PumpNutrient: pumpNutrient,
		PumpWater:    pumpWater,
	}

	if s.NTC == nil {
		// Without plate temperatures both peltiers stay off.
		return out
	}

	magnitude := mathx.ToByte(mathx.Abs(peltierPWM))
	overheat := s.NTC[sensor.NTCPeltierInner] > peltierOverheatC
	if overheat {
		magnitude = 0
	}
	if overheat != c.overheating {
		c.overheating = overheat
		if overheat {
			c.log.Warn("peltier overheat interlock engaged", "temp", s.NTC[sensor.NTCPeltierInner])
		} else {
			c.log.Info("peltier overheat interlock released", "temp", s.NTC[sensor.NTCPeltierInner])
		}
	}
	out.PeltierPWM = magnitude
	out.PeltierHeat = peltierPWM >= 0

	if s.NTC[sensor.NTCHumHot] <= humPeltierOverheat {
		out.HumPeltierPWM = mathx.ToByte(humPWM)
	}

	// Inner and outer fans run at full speed while the peltier is driven.
	if magnitude > 0 {
		out.FanInner = 255
		out.FanOuter = 255
	}
	return out
}
