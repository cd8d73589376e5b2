// Package board talks to the sensor and actuator board, real or simulated.
package board

import (
	"errors"

	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/sensor"
)

var (
	// ErrNotConnected is returned by reads and commands on a closed device.
	ErrNotConnected = errors.New("board: not connected")
	// ErrNoReading is returned when a sensor has no fresh reading.
	ErrNoReading = errors.New("board: no reading")
)

// Device defines the interface for grow box boards (real or mocked).
type Device interface {
	sensor.Source

	Connect() error
	Close() error
	IsConnected() bool
	Actuate(out control.ActuatorOutputs) error
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
