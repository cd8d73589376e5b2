package board

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/sensor"
)

const (
	frameTag   = "S"
	commandTag = "A"
	frameLen   = 12
	absent     = "-"

	adcMax = 4095
	// ledMaxDuty limits the LED driver to 75 % duty.
	ledMaxDuty = 191
)

// Frame is one parsed board report. A nil field means the board reported
// the sensor as failed.
type Frame struct {
	Timestamp time.Time
	Internal  *sensor.TempHum
	External  *sensor.TempHum
	NTC       *[sensor.NTCCount]uint16
	Tray      *uint16
	EC        *uint16
	CO2       *float64
}

// parseFrame parses a board report.
// Format: S,int_t,int_h,ext_t,ext_h,ntc0,ntc1,ntc2,ntc3,tray,ec,co2
// Example: S,22.50,55,18.20,70,2048,1900,3100,1500,2000,1024,-
// Temperatures are C, humidity %, NTC/tray/EC raw 12-bit ADC, CO2 ppm.
// A "-" marks a failed sensor. Non-finite values ("NaN", "Inf") are read as
// failed sensors too.
func parseFrame(line string, ts time.Time) (Frame, error) {
	parts := strings.Split(line, ",")
	if len(parts) != frameLen {
		return Frame{}, fmt.Errorf("invalid frame format: expected %d comma-separated values, got %d", frameLen, len(parts))
	}
	if parts[0] != frameTag {
		return Frame{}, fmt.Errorf("invalid frame tag %q", parts[0])
	}

	f := Frame{Timestamp: ts}
	var err error

	if f.Internal, err = parseTempHum(parts[1], parts[2]); err != nil {
		return Frame{}, fmt.Errorf("invalid internal reading: %w", err)
	}
	if f.External, err = parseTempHum(parts[3], parts[4]); err != nil {
		return Frame{}, fmt.Errorf("invalid external reading: %w", err)
	}

	var ntc [sensor.NTCCount]uint16
	ntcPresent := true
	for i := range ntc {
		v, err := parseADC(parts[5+i])
		if err != nil {
			return Frame{}, fmt.Errorf("invalid ntc%d: %w", i, err)
		}
		if v == nil {
			ntcPresent = false
			continue
		}
		ntc[i] = *v
	}
	if ntcPresent {
		f.NTC = &ntc
	}

	if f.Tray, err = parseADC(parts[9]); err != nil {
		return Frame{}, fmt.Errorf("invalid tray: %w", err)
	}
	if f.EC, err = parseADC(parts[10]); err != nil {
		return Frame{}, fmt.Errorf("invalid ec: %w", err)
	}
	if parts[11] != absent {
		co2, err := strconv.ParseFloat(parts[11], 64)
		if err != nil {
			return Frame{}, fmt.Errorf("invalid co2: %w", err)
		}
		if finite(co2) {
			f.CO2 = &co2
		}
	}

	return f, nil
}

// parseTempHum returns nil when either half is absent or not finite.
func parseTempHum(temp, hum string) (*sensor.TempHum, error) {
	if temp == absent || hum == absent {
		return nil, nil
	}
	t, err := strconv.ParseFloat(temp, 64)
	if err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}
	h, err := strconv.ParseFloat(hum, 64)
	if err != nil {
		return nil, fmt.Errorf("humidity: %w", err)
	}
	if !finite(t) || !finite(h) {
		return nil, nil
	}
	if h < 0 || h > 100 {
		return nil, fmt.Errorf("humidity out of range: %v", h)
	}
	return &sensor.TempHum{Temp: t, Hum: uint8(h)}, nil
}

func parseADC(s string) (*uint16, error) {
	if s == absent {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return nil, err
	}
	if v > adcMax {
		return nil, fmt.Errorf("out of range: %d (max %d)", v, adcMax)
	}
	u := uint16(v)
	return &u, nil
}

// encodeCommand builds the actuator command line.
// Format: A,dir,peltier_duty,hum_duty,fan_in,fan_out,fan_hum,vent,led,pump_n,pump_w
//
// The peltier H-bridge is active low while heating, so the heating duty is
// inverted. The LED duty is limited to 75 %.
func encodeCommand(out control.ActuatorOutputs) string {
	dir, duty := 0, int(out.PeltierPWM)
	if out.PeltierHeat {
		dir, duty = 1, 255-int(out.PeltierPWM)
	}
	led := min(int(out.LEDIntensity), ledMaxDuty)

	return fmt.Sprintf("%s,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
		commandTag,
		dir,
		duty,
		out.HumPeltierPWM,
		out.FanInner,
		out.FanOuter,
		out.FanHum,
		bit(out.VentOn),
		led,
		bit(out.PumpNutrient),
		bit(out.PumpWater),
	)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}
