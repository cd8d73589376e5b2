package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/itohio/growbox/internal/mathx"
	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/estimator"
)

// fallback is fed to the filter for a channel whose sensor did not answer.
const fallback float32 = 0.0

// errNotFinite marks a reading a Source returned as NaN or Inf.
var errNotFinite = errors.New("reading is not finite")

// ecFallbackTemp is the compensation temperature when the internal sensor is down.
const ecFallbackTemp = 25.0

// Acquirer polls a Source, runs the Kalman filter over the full channel
// vector and re-applies the presence mask of this cycle.
// It is not safe for concurrent use; one acquisition task owns it.
type Acquirer struct {
	src    Source
	filter *estimator.Filter
	cal    config.CalibrationConfig
	log    *slog.Logger
	now    func() time.Time
}

// NewAcquirer creates an acquirer with a filter built from fc.
func NewAcquirer(src Source, fc config.FilterConfig, cal config.CalibrationConfig, log *slog.Logger) (*Acquirer, error) {
	if log == nil {
		log = slog.Default()
	}

	initial := make([]float32, channelCount)
	noise := make([]float32, channelCount)
	for i := range initial {
		switch {
		case i == chInternalHum || i == chExternalHum:
			initial[i], noise[i] = float32(fc.InitialHum), float32(fc.HumNoise)
		case i == chTray:
			initial[i], noise[i] = float32(fc.InitialTray), float32(fc.ADCNoise)
		case i == chEC:
			initial[i], noise[i] = float32(fc.InitialEC), float32(fc.ADCNoise)
		default:
			initial[i], noise[i] = float32(fc.InitialTemp), float32(fc.TempNoise)
		}
	}

	f, err := estimator.New(initial, float32(fc.ProcessNoise), noise)
	if err != nil {
		return nil, fmt.Errorf("failed to create sensor filter: %w", err)
	}

	return &Acquirer{
		src:    src,
		filter: f,
		cal:    cal,
		log:    log,
		now:    time.Now,
	}, nil
}

// Step reads every sensor once and returns the filtered snapshot. Failed
// reads become absent fields; Step itself never fails.
func (a *Acquirer) Step(ctx context.Context) SensorData {
	internal, errInt := a.src.ReadInternal(ctx)
	external, errExt := a.src.ReadExternal(ctx)
	ntcRaw, errNTC := a.src.ReadNTC(ctx)
	tray, errTray := a.src.ReadTray(ctx)
	ecRaw, errEC := a.src.ReadEC(ctx)
	co2, errCO2 := a.src.ReadCO2(ctx)

	errInt = checkTempHum(internal, errInt)
	errExt = checkTempHum(external, errExt)
	if errCO2 == nil && !finite(co2) {
		errCO2 = errNotFinite
	}

	a.logMissing("internal", errInt)
	a.logMissing("external", errExt)
	a.logMissing("ntc", errNTC)
	a.logMissing("tray", errTray)
	a.logMissing("ec", errEC)

	// EC compensation uses the unfiltered internal temperature.
	ecTemp := ecFallbackTemp
	if errInt == nil {
		ecTemp = internal.Temp
	}

	z := make([]float32, channelCount)
	for i := range z {
		z[i] = fallback
	}
	if errInt == nil {
		z[chInternalTemp] = float32(internal.Temp)
		z[chInternalHum] = float32(internal.Hum)
	}
	if errExt == nil {
		z[chExternalTemp] = float32(external.Temp)
		z[chExternalHum] = float32(external.Hum)
	}
	if errNTC == nil {
		for i, raw := range ntcRaw {
			z[chNTC0+i] = float32(NTCTemperature(raw, a.cal))
		}
	}
	if errTray == nil {
		z[chTray] = float32(tray)
	}
	if errEC == nil {
		z[chEC] = float32(ECToPPM(ecRaw, ecTemp, a.cal.ECKValue, a.cal.ADCVRef))
	}

	est, err := a.filter.Update(z)
	if err != nil {
		// The layout is fixed and every measurement is finite, so this
		// cannot happen.
		a.log.Error("sensor filter update failed", "err", err)
		return SensorData{Timestamp: a.now()}
	}

	data := SensorData{Timestamp: a.now()}
	if errInt == nil {
		data.Internal = &TempHum{Temp: float64(est[chInternalTemp]), Hum: humidity(est[chInternalHum])}
	}
	if errExt == nil {
		data.External = &TempHum{Temp: float64(est[chExternalTemp]), Hum: humidity(est[chExternalHum])}
	}
	if errNTC == nil {
		var ntc [NTCCount]float64
		for i := range ntc {
			ntc[i] = float64(est[chNTC0+i])
		}
		data.NTC = &ntc
	}
	if errTray == nil {
		v := float64(est[chTray])
		data.Tray = &v
	}
	if errEC == nil {
		v := float64(est[chEC])
		data.EC = &v
	}
	// CO2 is reported unfiltered.
	if errCO2 == nil {
		data.CO2 = &co2
	}

	return data
}

func (a *Acquirer) logMissing(group string, err error) {
	if err != nil {
		a.log.Debug("sensor read failed", "group", group, "err", err)
	}
}

func checkTempHum(th TempHum, err error) error {
	if err == nil && !finite(th.Temp) {
		return errNotFinite
	}
	return err
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func humidity(v float32) uint8 {
	return uint8(mathx.Clamp(v, 0, 100))
}
