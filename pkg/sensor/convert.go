package sensor

import (
	"math"

	"github.com/itohio/growbox/pkg/config"
)

const (
	adcMax      = 4095.0
	kelvinAt0C  = 273.15
	ecRefTemp   = 25.0
	ecTempCoeff = 0.02
)

// adcToVoltage converts a 12-bit ADC reading to voltage.
func adcToVoltage(adc uint16, vref float64) float64 {
	return (float64(adc) / adcMax) * vref
}

// ntcResistance returns the thermistor resistance from the divider output.
// The thermistor sits on the low side: V_out = V_ref * R_ntc / (R_series + R_ntc).
func ntcResistance(vout, vref, series float64) float64 {
	if vout <= 0 {
		return 0
	}
	if vout >= vref {
		return math.Inf(1)
	}
	return series * vout / (vref - vout)
}

// NTCTemperature converts an NTC divider ADC reading to degrees Celsius with
// the beta equation. Rail readings map to the coldest or hottest finite value.
func NTCTemperature(adc uint16, cal config.CalibrationConfig) float64 {
	r := ntcResistance(adcToVoltage(adc, cal.ADCVRef), cal.ADCVRef, cal.NTCSeries)
	switch {
	case r <= 0:
		r = 1 // shorted: very hot
	case math.IsInf(r, 1):
		r = cal.NTCNominal * 1e3 // open: very cold
	}

	t0 := cal.NTCNominalTemp + kelvinAt0C
	invT := 1/t0 + math.Log(r/cal.NTCNominal)/cal.NTCBeta
	return 1/invT - kelvinAt0C
}

// ECToPPM converts a 12-bit EC probe reading to TDS ppm. The probe front end
// resolves 8 bits, so the reading is reduced to 8 bits first. tempC is the
// solution temperature used for compensation.
func ECToPPM(adc uint16, tempC, kValue, vref float64) float64 {
	adc8 := float64(adc >> 4)
	v := adc8 * (vref / 255.0)
	v /= 1 + ecTempCoeff*(tempC-ecRefTemp)

	ppm := (133.42*v*v*v - 255.86*v*v + 857.39*v) * 0.5 * kValue
	return math.Max(ppm, 0)
}

// NTCReading is the inverse of NTCTemperature: the ADC reading an NTC divider
// produces at tempC.
func NTCReading(tempC float64, cal config.CalibrationConfig) uint16 {
	t0 := cal.NTCNominalTemp + kelvinAt0C
	t := tempC + kelvinAt0C
	r := cal.NTCNominal * math.Exp(cal.NTCBeta*(1/t-1/t0))
	adc := adcMax * r / (cal.NTCSeries + r)
	return uint16(math.Round(math.Max(0, math.Min(adcMax, adc))))
}
