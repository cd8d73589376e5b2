//go:build tinygo

package main

import "machine"

const (
	// Timing
	FRAME_INTERVAL_MS   = 100  // One sensor frame per host sensor tick
	COMMAND_TIMEOUT_MS  = 5000 // All outputs off when the host goes quiet
	NUM_SAMPLES         = 16   // ADC samples averaged per channel and frame
	MUX_SETTLE_US       = 50   // Analog mux settle time after switching
	CLIMATE_READ_INTERVAL = 1000 // ms, SHTC3 sleeps between reads

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// PWM
	PWM_FREQUENCY_HZ = 25000

	// Peltier H-bridge: PWM on IN1, direction on IN2 (high = heat, PWM active low)
	PIN_PELTIER_PWM = machine.GP2
	PIN_PELTIER_DIR = machine.GP3
	PIN_HUM_PELTIER = machine.GP4

	// Fans
	PIN_FAN_INNER = machine.GP6
	PIN_FAN_OUTER = machine.GP7
	PIN_FAN_HUM   = machine.GP8

	// LED driver
	PIN_LED = machine.GP10

	// Relays
	PIN_VENT          = machine.GP11
	PIN_PUMP_NUTRIENT = machine.GP12
	PIN_PUMP_WATER    = machine.GP13

	// SHTC3 buses: internal on I2C0, external on I2C1
	PIN_I2C0_SDA = machine.GP16
	PIN_I2C0_SCL = machine.GP17
	PIN_I2C1_SDA = machine.GP14
	PIN_I2C1_SCL = machine.GP15

	// CD4051 analog mux feeding ADC0
	PIN_MUX_ADC = machine.ADC0
	PIN_MUX_S0  = machine.GP18
	PIN_MUX_S1  = machine.GP19
	PIN_MUX_S2  = machine.GP20

	// Mux channels
	MUX_NTC_PELTIER_INNER = 0
	MUX_NTC_PELTIER_OUTER = 1
	MUX_NTC_HUM_COLD      = 2
	MUX_NTC_HUM_HOT       = 3
	MUX_TRAY              = 4
	MUX_EC                = 5
	MUX_CHANNELS          = 6

	// Serial configuration
	// Frame: "S,22.50,55,18.20,70,2048,1900,3100,1500,2000,1024,-\n" = ~55 bytes
	// 10 frames/sec * 55 bytes = 550 bytes/sec, USB CDC at 115200 has ample headroom
	SERIAL_BAUD_RATE = 115200
)
