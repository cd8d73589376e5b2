package control

import (
	"github.com/itohio/growbox/internal/mathx"
	"github.com/itohio/growbox/pkg/config"
)

const (
	tunerHistory       = 64
	oscillationCount   = 10  // zero crossings above this mean the loop oscillates
	sluggishError      = 1.0 // mean absolute error above this means the loop is slow
	oscillationScaling = 0.90
	sluggishScaling    = 1.05
)

// Tuner adjusts one loop's gains from the recent error history.
//
// Every call records the error. Every interval-th call analyzes the history:
// many zero crossings scale kp and kd down, a large mean absolute error
// without oscillation scales kp up. Gains are clamped to the safe bounds
// after every analysis.
type Tuner struct {
	ring     [tunerHistory]float64
	head     int // next write position
	n        int // valid entries
	counter  int
	interval int
}

// NewTuner creates a tuner analyzing every interval calls.
func NewTuner(interval int) *Tuner {
	if interval <= 0 {
		interval = 1
	}
	return &Tuner{interval: interval}
}

// Update records err and, on every interval-th call, adjusts gains in place.
// It reports whether an analysis pass ran.
func (t *Tuner) Update(err float64, gains *config.PIDGains) bool {
	t.ring[t.head] = err
	t.head = (t.head + 1) % tunerHistory
	if t.n < tunerHistory {
		t.n++
	}

	t.counter++
	if t.counter < t.interval {
		return false
	}
	t.counter = 0

	crossings := t.zeroCrossings()
	mae := t.meanAbsError()

	if crossings > oscillationCount {
		gains.Kp *= oscillationScaling
		gains.Kd *= oscillationScaling
	} else if mae > sluggishError {
		gains.Kp *= sluggishScaling
	}

	*gains = gains.Clamp()
	return true
}

// history returns the buffered errors, oldest first.
func (t *Tuner) history() []float64 {
	out := make([]float64, 0, t.n)
	start := (t.head - t.n + tunerHistory) % tunerHistory
	for i := 0; i < t.n; i++ {
		out = append(out, t.ring[(start+i)%tunerHistory])
	}
	return out
}

// zeroCrossings counts strict sign changes between consecutive errors.
// A zero sample neither starts nor ends a crossing.
func (t *Tuner) zeroCrossings() int {
	h := t.history()
	crossings := 0
	for i := 1; i < len(h); i++ {
		prev, curr := h[i-1], h[i]
		if (prev > 0 && curr < 0) || (prev < 0 && curr > 0) {
			crossings++
		}
	}
	return crossings
}

func (t *Tuner) meanAbsError() float64 {
	if t.n == 0 {
		return 0
	}
	var sum float64
	for _, e := range t.history() {
		sum += mathx.Abs(e)
	}
	return sum / float64(t.n)
}
