package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/growbox/internal/slot"
	"github.com/itohio/growbox/pkg/config"
	"github.com/itohio/growbox/pkg/control"
	"github.com/itohio/growbox/pkg/sensor"
)

// Sensing produces one filtered sensor snapshot per call.
type Sensing interface {
	Step(ctx context.Context) sensor.SensorData
}

// Actuator applies controller outputs to the hardware.
type Actuator interface {
	Actuate(out control.ActuatorOutputs) error
}

// Cycle describes one completed control cycle.
type Cycle struct {
	Time    time.Time
	Sensors sensor.SensorData
	Target  control.TargetState
	Outputs control.ActuatorOutputs
	Status  control.Status
}

// Loop senses every tick and runs the controller every decimation ticks.
// Cycles are strictly sequential.
type Loop struct {
	tick       time.Duration
	decimation uint64
	log        *slog.Logger
	now        func() time.Time

	sensing  Sensing
	ctrl     *control.PlantController
	actuator Actuator
	store    *config.Store
	hub      *sensor.Hub
	outputs  *slot.Slot[control.ActuatorOutputs]

	ticks      uint64
	cfgVersion uint64

	callbacks []func(Cycle)
	cbMu      sync.RWMutex
}

// NewLoop wires the sensing, control and actuation stages.
func NewLoop(
	sched config.ScheduleConfig,
	sensing Sensing,
	ctrl *control.PlantController,
	actuator Actuator,
	store *config.Store,
	hub *sensor.Hub,
	log *slog.Logger,
) *Loop {
	if log == nil {
		log = slog.Default()
	}
	if sched.SensorTick <= 0 {
		sched.SensorTick = config.Default().Schedule.SensorTick
	}
	if sched.ControlDecimation <= 0 {
		sched.ControlDecimation = config.Default().Schedule.ControlDecimation
	}

	return &Loop{
		tick:       sched.SensorTick,
		decimation: uint64(sched.ControlDecimation),
		log:        log,
		now:        time.Now,
		sensing:    sensing,
		ctrl:       ctrl,
		actuator:   actuator,
		store:      store,
		hub:        hub,
		outputs:    slot.New[control.ActuatorOutputs](nil),
	}
}

// Outputs returns the latest actuator outputs.
func (l *Loop) Outputs() control.ActuatorOutputs {
	return l.outputs.Snapshot()
}

// OnCycle registers a callback invoked after every control cycle.
// Callbacks run on the loop goroutine and should return quickly.
func (l *Loop) OnCycle(cb func(Cycle)) {
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
	l.callbacks = append(l.callbacks, cb)
}

// Run ticks until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	l.log.Info("control loop started", "tick", l.tick, "decimation", l.decimation)
	defer l.log.Info("control loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one sensing step and, on every decimation-th tick, a control
// cycle. It reports whether a control cycle ran.
func (l *Loop) Tick(ctx context.Context) bool {
	l.hub.Publish(l.sensing.Step(ctx))

	l.ticks++
	if l.ticks%l.decimation != 0 {
		return false
	}

	l.control()
	return true
}

func (l *Loop) control() {
	sensors := l.hub.Snapshot()

	if cfg, version := l.store.Control(); version != l.cfgVersion {
		l.ctrl.UpdateConfig(cfg)
		l.cfgVersion = version
		l.log.Debug("control configuration reloaded", "version", version)
	}

	now := l.now()
	target := Target(l.store.Plant(), now)
	out := l.ctrl.Step(sensors, target)

	if gains, ok := l.ctrl.TakeTunedGains(); ok {
		if err := l.store.UpdateControl(func(c *config.ControlConfig) { c.AirTemp = gains }); err != nil {
			l.log.Warn("tuned gains not persisted", "err", err)
		}
	}

	if err := l.actuator.Actuate(out); err != nil {
		l.log.Error("failed to actuate", "err", err)
	}
	l.outputs.Publish(out)

	l.notifyCallbacks(Cycle{
		Time:    now,
		Sensors: sensors,
		Target:  target,
		Outputs: out,
		Status:  l.ctrl.Status(),
	})
}

func (l *Loop) notifyCallbacks(c Cycle) {
	l.cbMu.RLock()
	callbacks := make([]func(Cycle), len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(c)
		}
	}
}
