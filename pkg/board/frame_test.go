package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/sensor"
)

func u16(v uint16) *uint16 { return &v }

func f64(v float64) *float64 { return &v }

func TestParseFrame(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	tests := []struct {
		name    string
		line    string
		want    Frame
		wantErr bool
	}{
		{
			name: "valid frame - all sensors",
			line: "S,22.50,55,18.20,70,2048,1900,3100,1500,2000,1024,415.5",
			want: Frame{
				Timestamp: ts,
				Internal:  &sensor.TempHum{Temp: 22.5, Hum: 55},
				External:  &sensor.TempHum{Temp: 18.2, Hum: 70},
				NTC:       &[sensor.NTCCount]uint16{2048, 1900, 3100, 1500},
				Tray:      u16(2000),
				EC:        u16(1024),
				CO2:       f64(415.5),
			},
		},
		{
			name: "valid frame - no co2",
			line: "S,22.50,55,18.20,70,2048,1900,3100,1500,2000,1024,-",
			want: Frame{
				Timestamp: ts,
				Internal:  &sensor.TempHum{Temp: 22.5, Hum: 55},
				External:  &sensor.TempHum{Temp: 18.2, Hum: 70},
				NTC:       &[sensor.NTCCount]uint16{2048, 1900, 3100, 1500},
				Tray:      u16(2000),
				EC:        u16(1024),
			},
		},
		{
			name: "valid frame - everything failed",
			line: "S,-,-,-,-,-,-,-,-,-,-,-",
			want: Frame{Timestamp: ts},
		},
		{
			name: "valid frame - half a temp/hum pair is absent",
			line: "S,22.50,-,18.20,70,0,0,0,0,4095,0,-",
			want: Frame{
				Timestamp: ts,
				External:  &sensor.TempHum{Temp: 18.2, Hum: 70},
				NTC:       &[sensor.NTCCount]uint16{0, 0, 0, 0},
				Tray:      u16(4095),
				EC:        u16(0),
			},
		},
		{
			name: "valid frame - one failed ntc drops the group",
			line: "S,22.50,55,18.20,70,2048,-,3100,1500,2000,1024,-",
			want: Frame{
				Timestamp: ts,
				Internal:  &sensor.TempHum{Temp: 22.5, Hum: 55},
				External:  &sensor.TempHum{Temp: 18.2, Hum: 70},
				Tray:      u16(2000),
				EC:        u16(1024),
			},
		},
		{
			name: "valid frame - non-finite readings count as failed",
			line: "S,NaN,NaN,Inf,50,2048,1900,3100,1500,2000,1024,NaN",
			want: Frame{
				Timestamp: ts,
				NTC:       &[sensor.NTCCount]uint16{2048, 1900, 3100, 1500},
				Tray:      u16(2000),
				EC:        u16(1024),
			},
		},
		{
			name: "valid frame - non-finite humidity",
			line: "S,22.50,+Inf,18.20,-Inf,2048,1900,3100,1500,2000,1024,inf",
			want: Frame{
				Timestamp: ts,
				NTC:       &[sensor.NTCCount]uint16{2048, 1900, 3100, 1500},
				Tray:      u16(2000),
				EC:        u16(1024),
			},
		},
		{
			name:    "invalid - wrong number of fields",
			line:    "S,22.50,55,18.20,70,2048,1900,3100,1500,2000,1024",
			wantErr: true,
		},
		{
			name:    "invalid - too many fields",
			line:    "S,22.50,55,18.20,70,2048,1900,3100,1500,2000,1024,-,extra",
			wantErr: true,
		},
		{
			name:    "invalid - wrong tag",
			line:    "A,22.50,55,18.20,70,2048,1900,3100,1500,2000,1024,-",
			wantErr: true,
		},
		{
			name:    "invalid - non-numeric temperature",
			line:    "S,abc,55,18.20,70,2048,1900,3100,1500,2000,1024,-",
			wantErr: true,
		},
		{
			name:    "invalid - humidity out of range",
			line:    "S,22.50,101,18.20,70,2048,1900,3100,1500,2000,1024,-",
			wantErr: true,
		},
		{
			name:    "invalid - ntc out of range",
			line:    "S,22.50,55,18.20,70,5000,1900,3100,1500,2000,1024,-",
			wantErr: true,
		},
		{
			name:    "invalid - negative tray",
			line:    "S,22.50,55,18.20,70,2048,1900,3100,1500,-1,1024,-",
			wantErr: true,
		},
		{
			name:    "invalid - non-numeric co2",
			line:    "S,22.50,55,18.20,70,2048,1900,3100,1500,2000,1024,high",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFrame(tt.line, ts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		out  control.ActuatorOutputs
		want string
	}{
		{
			name: "all off",
			want: "A,0,0,0,0,0,0,0,0,0,0\n",
		},
		{
			name: "cooling",
			out: control.ActuatorOutputs{
				PeltierPWM:    200,
				HumPeltierPWM: 100,
				FanInner:      255,
				FanOuter:      255,
				FanHum:        128,
				VentOn:        true,
				LEDIntensity:  150,
				PumpNutrient:  true,
			},
			want: "A,0,200,100,255,255,128,1,150,1,0\n",
		},
		{
			name: "heating is active low",
			out:  control.ActuatorOutputs{PeltierPWM: 200, PeltierHeat: true},
			want: "A,1,55,0,0,0,0,0,0,0,0\n",
		},
		{
			name: "heating at zero drive keeps the bridge off",
			out:  control.ActuatorOutputs{PeltierHeat: true},
			want: "A,1,255,0,0,0,0,0,0,0,0\n",
		},
		{
			name: "led duty is limited",
			out:  control.ActuatorOutputs{LEDIntensity: 255, PumpWater: true},
			want: "A,0,0,0,0,0,0,0,191,0,1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeCommand(tt.out))
		})
	}
}
