package control

import (
	"time"

	"go.einride.tech/pid"

	"github.com/itohio/growbox/pkg/config"
)

// pidLoop is one PID loop with a fixed sampling interval.
type pidLoop struct {
	ctrl pid.Controller
	dt   time.Duration
}

func newPIDLoop(g config.PIDGains, dt time.Duration) *pidLoop {
	l := &pidLoop{dt: dt}
	l.setGains(g)
	return l
}

// setGains replaces the gains and keeps the integral and derivative memory.
func (l *pidLoop) setGains(g config.PIDGains) {
	l.ctrl.Config = pid.ControllerConfig{
		ProportionalGain: g.Kp,
		IntegralGain:     g.Ki,
		DerivativeGain:   g.Kd,
	}
}

// update runs one step with error = reference - actual and returns the
// control signal.
func (l *pidLoop) update(reference, actual float64) float64 {
	l.ctrl.Update(pid.ControllerInput{
		ReferenceSignal:  reference,
		ActualSignal:     actual,
		SamplingInterval: l.dt,
	})
	return l.ctrl.State.ControlSignal
}

func (l *pidLoop) reset() {
	l.ctrl.State = pid.ControllerState{}
}

func (l *pidLoop) integral() float64 {
	return l.ctrl.State.ControlErrorIntegral
}
