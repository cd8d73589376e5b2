package board

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/growbox/internal/mathx"
	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/sensor"
)

// Simulation constants. Rates are per second.
const (
	ambientTau   = 900.0 // Air temperature leak towards ambient
	plateTau     = 5.0   // Peltier plate thermal lag
	peltierSwing = 20.0  // Plate offset at full drive (C)
	peltierWaste = 5.0   // Extra heat on the hot side at full drive (C)
	ledHeat      = 3.0   // Air heating at full LED intensity (C)

	humLeak        = 1.0 / 1200
	ventHumLeak    = 1.0 / 120
	dehumidifyRate = 0.05 // %/s at full drive

	trayDryRate  = 0.5  // ADC/s, tray dries towards no tray
	pumpFlowRate = 20.0 // ADC/s per running pump
	ecDriftRate  = 0.05 // ADC/s, evaporation concentrates nutrients
	ecPumpRate   = 5.0  // ADC/s per running pump

	co2Ambient = 420.0
	co2Rise    = 0.01 // ppm/s with the vent closed
)

// Mock simulates a grow box for testing and development.
type Mock struct {
	cfg config.MockConfig
	cal config.CalibrationConfig
	log *slog.Logger

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{}
	rng       *rand.Rand

	out control.ActuatorOutputs

	// Simulation state
	airTemp float64
	airHum  float64
	ntcTemp [sensor.NTCCount]float64
	tray    float64
	ec      float64
	co2     float64
	elapsed time.Duration
}

// NewMock creates a new simulated board.
func NewMock(cfg config.MockConfig, cal config.CalibrationConfig, log *slog.Logger) *Mock {
	def := config.Default()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.Mock.SampleRate
	}
	if cal.ADCVRef == 0 {
		cal = def.Calibration
	}
	if log == nil {
		log = slog.Default()
	}

	m := &Mock{
		cfg: cfg,
		cal: cal,
		log: log.With("device", "mock"),
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	m.reset()
	return m
}

func (m *Mock) reset() {
	m.airTemp = m.cfg.AmbientTemp
	m.airHum = m.cfg.AmbientHumidity
	for i := range m.ntcTemp {
		m.ntcTemp[i] = m.cfg.AmbientTemp
	}
	m.tray = m.cfg.TrayStart
	m.ec = 2048
	m.co2 = co2Ambient
	m.elapsed = 0
	m.out = control.ActuatorOutputs{}
}

// Connect starts the simulation.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.reset()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.done = make(chan struct{})
	m.connected = true

	go m.simulate(m.ctx, m.done)

	m.log.Info("mock board connected", "sample_rate", m.cfg.SampleRate)
	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	done := m.done
	m.mu.Unlock()

	<-done
	return nil
}

// IsConnected returns whether the simulation is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Actuate latches the outputs the simulation reacts to.
func (m *Mock) Actuate(out control.ActuatorOutputs) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	out.LEDIntensity = min(out.LEDIntensity, ledMaxDuty)
	m.out = out
	return nil
}

// outputs returns the last actuated outputs.
func (m *Mock) outputs() control.ActuatorOutputs {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.out
}

func (m *Mock) ReadInternal(context.Context) (sensor.TempHum, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("internal"); err != nil {
		return sensor.TempHum{}, err
	}
	return sensor.TempHum{
		Temp: m.noisy(m.airTemp),
		Hum:  uint8(mathx.Clamp(math.Round(m.noisy(m.airHum)), 0, 100)),
	}, nil
}

func (m *Mock) ReadExternal(context.Context) (sensor.TempHum, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("external"); err != nil {
		return sensor.TempHum{}, err
	}
	return sensor.TempHum{
		Temp: m.noisy(m.cfg.AmbientTemp),
		Hum:  uint8(mathx.Clamp(math.Round(m.noisy(m.cfg.AmbientHumidity)), 0, 100)),
	}, nil
}

func (m *Mock) ReadNTC(context.Context) ([sensor.NTCCount]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var adc [sensor.NTCCount]uint16
	if err := m.check("ntc"); err != nil {
		return adc, err
	}
	for i, t := range m.ntcTemp {
		adc[i] = sensor.NTCReading(m.noisy(t), m.cal)
	}
	return adc, nil
}

func (m *Mock) ReadTray(context.Context) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("tray"); err != nil {
		return 0, err
	}
	return toADC(m.noisy(m.tray)), nil
}

func (m *Mock) ReadEC(context.Context) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("ec"); err != nil {
		return 0, err
	}
	return toADC(m.noisy(m.ec)), nil
}

func (m *Mock) ReadCO2(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("co2"); err != nil {
		return 0, err
	}
	return m.noisy(m.co2), nil
}

// check must be called with mu held.
func (m *Mock) check(name string) error {
	if !m.connected {
		return ErrNotConnected
	}
	if m.cfg.FailureRate > 0 && m.rng.Float64() < m.cfg.FailureRate {
		return fmt.Errorf("%w: simulated %s failure", ErrNoReading, name)
	}
	return nil
}

// noisy must be called with mu held.
func (m *Mock) noisy(v float64) float64 {
	if m.cfg.NoiseLevel == 0 {
		return v
	}
	return v + m.rng.NormFloat64()*m.cfg.NoiseLevel*math.Abs(v)
}

func toADC(v float64) uint16 {
	return uint16(mathx.Clamp(math.Round(v), 0, adcMax))
}

func (m *Mock) simulate(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.step(m.cfg.SampleRate)
			m.mu.Unlock()
		}
	}
}

// step advances the plant model by d. Must be called with mu held.
func (m *Mock) step(d time.Duration) {
	dt := d.Seconds()
	m.elapsed += d
	out := m.out

	// Signed peltier drive, positive heats the chamber
	drive := float64(out.PeltierPWM) / 255
	if !out.PeltierHeat {
		drive = -drive
	}
	humDrive := float64(out.HumPeltierPWM) / 255
	fanInner := float64(out.FanInner) / 255

	inner := m.cfg.AmbientTemp + peltierSwing*drive
	outer := m.cfg.AmbientTemp - peltierSwing*drive + peltierWaste*math.Abs(drive)
	humCold := m.airTemp - peltierSwing*humDrive
	humHot := m.airTemp + (peltierSwing+peltierWaste)*humDrive

	plateAlpha := math.Min(dt/plateTau, 1)
	m.ntcTemp[sensor.NTCPeltierInner] += plateAlpha * (inner - m.ntcTemp[sensor.NTCPeltierInner])
	m.ntcTemp[sensor.NTCPeltierOuter] += plateAlpha * (outer - m.ntcTemp[sensor.NTCPeltierOuter])
	m.ntcTemp[sensor.NTCHumCold] += plateAlpha * (humCold - m.ntcTemp[sensor.NTCHumCold])
	m.ntcTemp[sensor.NTCHumHot] += plateAlpha * (humHot - m.ntcTemp[sensor.NTCHumHot])

	// Air exchanges heat with ambient, the inner plate (fan assisted) and the LED
	exchange := (0.05 + 0.15*fanInner) / 60
	m.airTemp += dt * ((m.cfg.AmbientTemp-m.airTemp)/ambientTau +
		(m.ntcTemp[sensor.NTCPeltierInner]-m.airTemp)*exchange +
		ledHeat*float64(out.LEDIntensity)/255/ambientTau)

	leak := humLeak
	if out.VentOn {
		leak = ventHumLeak
	}
	m.airHum += dt * ((m.cfg.AmbientHumidity-m.airHum)*leak - dehumidifyRate*humDrive)
	m.airHum = mathx.Clamp(m.airHum, 0, 100)

	pumps := 0.0
	if out.PumpWater {
		pumps++
	}
	if out.PumpNutrient {
		pumps++
	}
	m.tray += dt * (trayDryRate - pumpFlowRate*pumps)
	m.tray = mathx.Clamp(m.tray, 0, adcMax)

	ecDelta := ecDriftRate
	if out.PumpNutrient {
		ecDelta += ecPumpRate
	}
	if out.PumpWater {
		ecDelta -= ecPumpRate
	}
	m.ec = mathx.Clamp(m.ec+dt*ecDelta, 0, adcMax)

	if out.VentOn {
		m.co2 += math.Min(dt/60, 1) * (co2Ambient - m.co2)
	} else {
		m.co2 += dt * co2Rise
	}
}
