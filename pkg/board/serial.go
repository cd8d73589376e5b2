package board

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/sensor"
)

const (
	// DefaultBaudRate is the board's USB CDC baud rate.
	DefaultBaudRate = 115200
	// DefaultStaleAfter is how long a frame stays usable.
	DefaultStaleAfter = 500 * time.Millisecond
)

// Serial represents a connection to the grow box board.
type Serial struct {
	port       string
	baudRate   int
	staleAfter time.Duration
	log        *slog.Logger
	now        func() time.Time

	conn      io.ReadWriteCloser
	mu        sync.RWMutex
	writeMu   sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{}

	latest Frame
	frames uint64
}

// New creates a new Serial instance for the specified port.
func New(port string, baudRate int, staleAfter time.Duration, log *slog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}
	if log == nil {
		log = slog.Default()
	}

	return &Serial{
		port:       port,
		baudRate:   baudRate,
		staleAfter: staleAfter,
		log:        log.With("port", port),
		now:        time.Now,
	}
}

// Ports returns the names of available serial ports.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the serial port and starts reading frames.
func (d *Serial) Connect() error {
	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	if err := d.attach(port); err != nil {
		port.Close()
		return err
	}
	d.log.Info("board connected", "baud", d.baudRate)
	return nil
}

// attach starts reading frames from conn.
func (d *Serial) attach(conn io.ReadWriteCloser) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	d.conn = conn
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.done = make(chan struct{})
	d.connected = true
	d.latest = Frame{}

	go d.readFrames(d.ctx, conn, d.done)

	return nil
}

// Close closes the connection and waits for the reader to stop.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}

	d.cancel()
	var err error
	if d.conn != nil {
		err = d.conn.Close()
		d.conn = nil
	}
	d.connected = false
	done := d.done
	d.mu.Unlock()

	<-done

	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// frameCount returns the number of frames parsed since Connect.
func (d *Serial) frameCount() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frames
}

// Actuate sends the actuator command to the board.
func (d *Serial) Actuate(out control.ActuatorOutputs) error {
	d.mu.RLock()
	conn := d.conn
	connected := d.connected
	d.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := io.WriteString(conn, encodeCommand(out)); err != nil {
		return fmt.Errorf("failed to send actuator command: %w", err)
	}
	return nil
}

func (d *Serial) ReadInternal(context.Context) (sensor.TempHum, error) {
	f, err := d.frame()
	if err != nil {
		return sensor.TempHum{}, err
	}
	if f.Internal == nil {
		return sensor.TempHum{}, fmt.Errorf("%w: internal", ErrNoReading)
	}
	return *f.Internal, nil
}

func (d *Serial) ReadExternal(context.Context) (sensor.TempHum, error) {
	f, err := d.frame()
	if err != nil {
		return sensor.TempHum{}, err
	}
	if f.External == nil {
		return sensor.TempHum{}, fmt.Errorf("%w: external", ErrNoReading)
	}
	return *f.External, nil
}

func (d *Serial) ReadNTC(context.Context) ([sensor.NTCCount]uint16, error) {
	f, err := d.frame()
	if err != nil {
		return [sensor.NTCCount]uint16{}, err
	}
	if f.NTC == nil {
		return [sensor.NTCCount]uint16{}, fmt.Errorf("%w: ntc", ErrNoReading)
	}
	return *f.NTC, nil
}

func (d *Serial) ReadTray(context.Context) (uint16, error) {
	f, err := d.frame()
	if err != nil {
		return 0, err
	}
	if f.Tray == nil {
		return 0, fmt.Errorf("%w: tray", ErrNoReading)
	}
	return *f.Tray, nil
}

func (d *Serial) ReadEC(context.Context) (uint16, error) {
	f, err := d.frame()
	if err != nil {
		return 0, err
	}
	if f.EC == nil {
		return 0, fmt.Errorf("%w: ec", ErrNoReading)
	}
	return *f.EC, nil
}

func (d *Serial) ReadCO2(context.Context) (float64, error) {
	f, err := d.frame()
	if err != nil {
		return 0, err
	}
	if f.CO2 == nil {
		return 0, fmt.Errorf("%w: co2", ErrNoReading)
	}
	return *f.CO2, nil
}

// frame returns the latest frame if it is fresh.
func (d *Serial) frame() (Frame, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return Frame{}, ErrNotConnected
	}
	if d.latest.Timestamp.IsZero() {
		return Frame{}, fmt.Errorf("%w: no frame received yet", ErrNoReading)
	}
	if age := d.now().Sub(d.latest.Timestamp); age > d.staleAfter {
		return Frame{}, fmt.Errorf("%w: frame is %v old", ErrNoReading, age)
	}
	return d.latest, nil
}

// readFrames reads lines from conn and keeps the latest valid frame.
func (d *Serial) readFrames(ctx context.Context, conn io.Reader, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in frame reader", "panic", r)
		}
	}()

	scanner := bufio.NewScanner(conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			// Scanner stopped (EOF, closed port or error)
			if err := scanner.Err(); err != nil && ctx.Err() == nil {
				d.log.Error("error reading from serial port", "err", err)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		f, err := parseFrame(line, d.now())
		if err != nil {
			d.log.Warn("failed to parse frame", "line", line, "err", err)
			continue
		}

		d.mu.Lock()
		d.latest = f
		d.frames++
		d.mu.Unlock()
	}
}
