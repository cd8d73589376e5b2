package board

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/sensor"
)

func quietMockConfig() config.MockConfig {
	cfg := config.Default().Mock
	cfg.NoiseLevel = 0
	return cfg
}

// simulate runs the plant model for d in one second steps.
func simulate(m *Mock, out control.ActuatorOutputs, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = out
	for i := time.Duration(0); i < d; i += time.Second {
		m.step(time.Second)
	}
}

func TestNewMock_Defaults(t *testing.T) {
	m := NewMock(config.MockConfig{AmbientTemp: 20}, config.CalibrationConfig{}, nil)
	require.NotNil(t, m)
	assert.Equal(t, config.Default().Mock.SampleRate, m.cfg.SampleRate)
	assert.Equal(t, config.Default().Calibration, m.cal)
	assert.Equal(t, 20.0, m.airTemp)
	assert.False(t, m.IsConnected())

	_, err := m.ReadInternal(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, m.Actuate(control.ActuatorOutputs{}), ErrNotConnected)
}

func TestMock_ReadsReflectState(t *testing.T) {
	cal := config.Default().Calibration
	m := NewMock(quietMockConfig(), cal, nil)
	require.NoError(t, m.Connect())
	defer m.Close()
	ctx := context.Background()

	th, err := m.ReadInternal(ctx)
	require.NoError(t, err)
	assert.Equal(t, sensor.TempHum{Temp: 22, Hum: 55}, th)

	ntc, err := m.ReadNTC(ctx)
	require.NoError(t, err)
	want := sensor.NTCReading(22, cal)
	for i := range ntc {
		assert.Equal(t, want, ntc[i], "ntc%d", i)
	}

	tray, err := m.ReadTray(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(2000), tray)

	co2, err := m.ReadCO2(ctx)
	require.NoError(t, err)
	assert.InDelta(t, co2Ambient, co2, 0.1)
}

func TestMock_FailureRate(t *testing.T) {
	cfg := quietMockConfig()
	cfg.FailureRate = 1
	m := NewMock(cfg, config.CalibrationConfig{}, nil)
	require.NoError(t, m.Connect())
	defer m.Close()
	ctx := context.Background()

	_, err := m.ReadInternal(ctx)
	assert.ErrorIs(t, err, ErrNoReading)
	_, err = m.ReadNTC(ctx)
	assert.ErrorIs(t, err, ErrNoReading)
	_, err = m.ReadEC(ctx)
	assert.ErrorIs(t, err, ErrNoReading)
}

func TestMock_Peltier(t *testing.T) {
	tests := []struct {
		name string
		heat bool
	}{
		{name: "cooling", heat: false},
		{name: "heating", heat: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMock(quietMockConfig(), config.CalibrationConfig{}, nil)
			simulate(m, control.ActuatorOutputs{PeltierPWM: 255, PeltierHeat: tt.heat, FanInner: 255}, 10*time.Minute)

			inner := m.ntcTemp[sensor.NTCPeltierInner]
			outer := m.ntcTemp[sensor.NTCPeltierOuter]
			if tt.heat {
				assert.Greater(t, m.airTemp, 23.0)
				assert.Greater(t, inner, outer)
			} else {
				assert.Less(t, m.airTemp, 21.0)
				assert.Less(t, inner, outer)
			}
		})
	}
}

func TestMock_Dehumidifier(t *testing.T) {
	m := NewMock(quietMockConfig(), config.CalibrationConfig{}, nil)
	simulate(m, control.ActuatorOutputs{HumPeltierPWM: 255}, 5*time.Minute)

	assert.Less(t, m.airHum, 55.0)
	assert.Less(t, m.ntcTemp[sensor.NTCHumCold], m.ntcTemp[sensor.NTCHumHot])
}

func TestMock_Tray(t *testing.T) {
	m := NewMock(quietMockConfig(), config.CalibrationConfig{}, nil)

	simulate(m, control.ActuatorOutputs{}, time.Minute)
	assert.InDelta(t, 2030, m.tray, 1e-6, "tray dries while idle")
	ec := m.ec

	simulate(m, control.ActuatorOutputs{PumpWater: true}, 10*time.Second)
	assert.InDelta(t, 2030-195, m.tray, 1e-6)
	assert.Less(t, m.ec, ec, "water dilutes nutrients")

	ec = m.ec
	simulate(m, control.ActuatorOutputs{PumpNutrient: true}, 10*time.Second)
	assert.Greater(t, m.ec, ec)
}

func TestMock_CO2(t *testing.T) {
	m := NewMock(quietMockConfig(), config.CalibrationConfig{}, nil)

	simulate(m, control.ActuatorOutputs{}, 100*time.Second)
	assert.InDelta(t, co2Ambient+1, m.co2, 1e-6)

	simulate(m, control.ActuatorOutputs{VentOn: true}, 10*time.Minute)
	assert.InDelta(t, co2Ambient, m.co2, 0.01)
}

func TestMock_ActuateLimitsLED(t *testing.T) {
	m := NewMock(quietMockConfig(), config.CalibrationConfig{}, nil)
	require.NoError(t, m.Connect())
	defer m.Close()

	require.NoError(t, m.Actuate(control.ActuatorOutputs{LEDIntensity: 255, VentOn: true}))
	out := m.outputs()
	assert.Equal(t, uint8(ledMaxDuty), out.LEDIntensity)
	assert.True(t, out.VentOn)
}

// TestMock_GracefulShutdown tests that the simulation stops when Close() is called.
func TestMock_GracefulShutdown(t *testing.T) {
	cfg := quietMockConfig()
	cfg.SampleRate = 10 * time.Millisecond
	m := NewMock(cfg, config.CalibrationConfig{}, nil)

	require.NoError(t, m.Connect())
	assert.Error(t, m.Connect(), "second connect")

	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.elapsed >= 30*time.Millisecond
	}, 5*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, m.Close())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("simulation did not stop within timeout")
	}

	assert.False(t, m.IsConnected())
	assert.NoError(t, m.Close())
}
