// Package sensor turns raw board readings into filtered SensorData snapshots.
package sensor

import (
	"context"
	"time"
)

// NTC thermistor positions.
const (
	NTCPeltierInner = iota
	NTCPeltierOuter
	NTCHumCold
	NTCHumHot
	NTCCount
)

// Kalman channel layout.
const (
	chInternalTemp = iota
	chInternalHum
	chExternalTemp
	chExternalHum
	chNTC0
	chTray = chNTC0 + NTCCount
	chEC   = chTray + 1

	channelCount = chEC + 1
)

// TempHum is a combined temperature and relative humidity reading.
type TempHum struct {
	Temp float64 `json:"temp"` // C
	Hum  uint8   `json:"hum"`  // %
}

// SensorData is one snapshot of every estimated quantity. A nil field means
// the sensor did not answer in this cycle.
type SensorData struct {
	Timestamp time.Time          `json:"timestamp"`
	Internal  *TempHum           `json:"internal,omitempty"`
	External  *TempHum           `json:"external,omitempty"`
	NTC       *[NTCCount]float64 `json:"ntc,omitempty"`  // C, indexed by NTC* constants
	Tray      *float64           `json:"tray,omitempty"` // raw ADC, higher = drier
	EC        *float64           `json:"ec,omitempty"`   // ppm
	CO2       *float64           `json:"co2,omitempty"`  // ppm
}

// Clone returns a deep copy.
func (d SensorData) Clone() SensorData {
	out := SensorData{Timestamp: d.Timestamp}
	if d.Internal != nil {
		v := *d.Internal
		out.Internal = &v
	}
	if d.External != nil {
		v := *d.External
		out.External = &v
	}
	if d.NTC != nil {
		v := *d.NTC
		out.NTC = &v
	}
	out.Tray = clonePtr(d.Tray)
	out.EC = clonePtr(d.EC)
	out.CO2 = clonePtr(d.CO2)
	return out
}

// Missing returns the names of sensor groups absent from the snapshot.
func (d SensorData) Missing() []string {
	var out []string
	if d.Internal == nil {
		out = append(out, "internal")
	}
	if d.External == nil {
		out = append(out, "external")
	}
	if d.NTC == nil {
		out = append(out, "ntc")
	}
	if d.Tray == nil {
		out = append(out, "tray")
	}
	if d.EC == nil {
		out = append(out, "ec")
	}
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Source provides raw physical readings. Every method returns an error when
// the sensor did not answer; the error is never propagated past Acquirer.
type Source interface {
	ReadInternal(ctx context.Context) (TempHum, error)
	ReadExternal(ctx context.Context) (TempHum, error)
	ReadNTC(ctx context.Context) ([NTCCount]uint16, error) // 12-bit ADC counts
	ReadTray(ctx context.Context) (uint16, error)          // 12-bit ADC counts
	ReadEC(ctx context.Context) (uint16, error)            // 12-bit ADC counts
	ReadCO2(ctx context.Context) (float64, error)          // ppm
}
