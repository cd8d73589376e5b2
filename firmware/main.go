//go:build tinygo

//go:generate tinygo flash -target=pico

package main

import (
	"machine"
	"strconv"
	"strings"
	"time"

	"tinygo.org/x/drivers/shtc3"
)

// pwmGroup is the part of a TinyGo PWM peripheral the firmware uses.
type pwmGroup interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

type pwmOutput struct {
	group   pwmGroup
	channel uint8
}

func (p *pwmOutput) set(duty uint8) {
	p.group.Set(p.channel, p.group.Top()*uint32(duty)/255)
}

type climate struct {
	dev    shtc3.Device
	ok     bool
	milliC int32
	rhx100 int32
}

var (
	serial = machine.Serial
	adc    machine.ADC

	peltier    pwmOutput
	humPeltier pwmOutput
	fanInner   pwmOutput
	fanOuter   pwmOutput
	fanHum     pwmOutput
	led        pwmOutput

	internal climate
	external climate

	// ADC averages of the last frame
	muxValues [MUX_CHANNELS]uint16

	// Timing
	lastFrame   time.Time
	lastClimate time.Time
	lastCommand time.Time
	failsafe    bool

	// Serial buffer for reading command lines
	serialBuffer [64]byte
	serialPos    int
	frameBuffer  [96]byte
)

func main() {
	serial.Configure(machine.UARTConfig{BaudRate: SERIAL_BAUD_RATE})

	// Relays and direction pins
	for _, pin := range []machine.Pin{PIN_PELTIER_DIR, PIN_VENT, PIN_PUMP_NUTRIENT, PIN_PUMP_WATER, PIN_MUX_S0, PIN_MUX_S1, PIN_MUX_S2} {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		pin.Low()
	}

	peltier = configurePWM(machine.PWM1, PIN_PELTIER_PWM)
	humPeltier = configurePWM(machine.PWM2, PIN_HUM_PELTIER)
	fanInner = configurePWM(machine.PWM3, PIN_FAN_INNER)
	fanOuter = configurePWM(machine.PWM3, PIN_FAN_OUTER)
	fanHum = configurePWM(machine.PWM4, PIN_FAN_HUM)
	led = configurePWM(machine.PWM5, PIN_LED)

	machine.InitADC()
	adc = machine.ADC{Pin: PIN_MUX_ADC}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	machine.I2C0.Configure(machine.I2CConfig{SDA: PIN_I2C0_SDA, SCL: PIN_I2C0_SCL, Frequency: 400 * machine.KHz})
	machine.I2C1.Configure(machine.I2CConfig{SDA: PIN_I2C1_SDA, SCL: PIN_I2C1_SCL, Frequency: 400 * machine.KHz})
	// SHTC3 has a fixed address, one sensor per bus
	internal.dev = shtc3.New(machine.I2C0)
	external.dev = shtc3.New(machine.I2C1)

	applyFailsafe()

	for {
		now := time.Now()

		processSerial(now)

		if !failsafe && now.Sub(lastCommand) >= COMMAND_TIMEOUT_MS*time.Millisecond {
			applyFailsafe()
		}

		if now.Sub(lastClimate) >= CLIMATE_READ_INTERVAL*time.Millisecond {
			readClimate(&internal)
			readClimate(&external)
			lastClimate = now
		}

		if now.Sub(lastFrame) >= FRAME_INTERVAL_MS*time.Millisecond {
			readMux()
			writeFrame()
			lastFrame = now
		}

		time.Sleep(100 * time.Microsecond)
	}
}

func configurePWM(group pwmGroup, pin machine.Pin) pwmOutput {
	group.Configure(machine.PWMConfig{Period: uint64(1e9 / PWM_FREQUENCY_HZ)})
	ch, err := group.Channel(pin)
	if err != nil {
		println("pwm channel error:", err.Error())
	}
	out := pwmOutput{group: group, channel: ch}
	out.set(0)
	return out
}

func readClimate(c *climate) {
	_ = c.dev.WakeUp()
	defer func() { _ = c.dev.Sleep() }()

	milliC, rhx100, err := c.dev.ReadTemperatureHumidity()
	if err != nil {
		c.ok = false
		return
	}
	c.ok = true
	c.milliC = milliC
	c.rhx100 = rhx100
}

func selectMux(ch int) {
	PIN_MUX_S0.Set(ch&1 != 0)
	PIN_MUX_S1.Set(ch&2 != 0)
	PIN_MUX_S2.Set(ch&4 != 0)
	time.Sleep(MUX_SETTLE_US * time.Microsecond)
}

func readMux() {
	for ch := range MUX_CHANNELS {
		selectMux(ch)
		var sum uint32
		for range NUM_SAMPLES {
			// TinyGo scales every reading to 16 bits
			sum += uint32(adc.Get() >> 4)
		}
		muxValues[ch] = uint16(sum / NUM_SAMPLES)
	}
}

// writeFrame sends one sensor report.
// Format: S,int_t,int_h,ext_t,ext_h,ntc0,ntc1,ntc2,ntc3,tray,ec,co2
// A "-" marks a failed sensor. No CO2 sensor is fitted.
func writeFrame() {
	b := append(frameBuffer[:0], 'S')
	b = appendClimate(b, &internal)
	b = appendClimate(b, &external)
	for ch := range MUX_CHANNELS {
		b = append(b, ',')
		b = strconv.AppendUint(b, uint64(muxValues[ch]), 10)
	}
	b = append(b, ",-\n"...)
	serial.Write(b)
}

func appendClimate(b []byte, c *climate) []byte {
	if !c.ok {
		return append(b, ",-,-"...)
	}
	b = append(b, ',')
	b = strconv.AppendFloat(b, float64(c.milliC)/1000, 'f', 2, 32)
	b = append(b, ',')
	rh := min(max((c.rhx100+50)/100, 0), 100)
	return strconv.AppendInt(b, int64(rh), 10)
}

func processSerial(now time.Time) {
	// Read available bytes from serial
	for serial.Buffered() > 0 {
		data, err := serial.ReadByte()
		if err != nil {
			break
		}

		// Check for newline (end of line)
		if data == '\n' || data == '\r' {
			if serialPos > 0 && applyCommand(string(serialBuffer[:serialPos])) {
				lastCommand = now
				failsafe = false
			}
			serialPos = 0
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Overlong line - drop it
			serialPos = 0
		}
	}
}

// applyCommand parses and applies an actuator command.
// Format: A,dir,peltier_duty,hum_duty,fan_in,fan_out,fan_hum,vent,led,pump_n,pump_w
func applyCommand(line string) bool {
	parts := strings.Split(line, ",")
	if len(parts) != 11 || parts[0] != "A" {
		return false
	}

	var v [10]uint8
	for i := range v {
		n, err := strconv.Atoi(parts[i+1])
		if err != nil || n < 0 || n > 255 {
			return false
		}
		v[i] = uint8(n)
	}

	PIN_PELTIER_DIR.Set(v[0] == 1)
	peltier.set(v[1])
	humPeltier.set(v[2])
	fanInner.set(v[3])
	fanOuter.set(v[4])
	fanHum.set(v[5])
	PIN_VENT.Set(v[6] == 1)
	led.set(v[7])
	PIN_PUMP_NUTRIENT.Set(v[8] == 1)
	PIN_PUMP_WATER.Set(v[9] == 1)

	return true
}

func applyFailsafe() {
	failsafe = true
	applyCommand("A,0,0,0,0,0,0,0,0,0,0")
}
