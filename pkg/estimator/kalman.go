// Package estimator implements a multi-channel linear Kalman filter.
//
// The model uses identity transition and observation matrices, isotropic
// process noise and diagonal measurement noise. With an identity initial
// covariance the covariance stays diagonal for ever, so every channel is an
// independent scalar filter and the update is computed per channel.
package estimator

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

var (
	// ErrDimension is returned when vector lengths disagree with the filter.
	ErrDimension = errors.New("estimator: dimension mismatch")
	// ErrNoise is returned for non-positive or non-finite noise parameters.
	ErrNoise = errors.New("estimator: noise must be positive and finite")
	// ErrMeasurement is returned for a non-finite measurement.
	ErrMeasurement = errors.New("estimator: measurement must be finite")
)

// Filter holds the state mean and the diagonal of the state covariance.
// It is not safe for concurrent use.
type Filter struct {
	x []float32 // state mean
	p []float32 // covariance diagonal
	q float32   // process noise
	r []float32 // measurement noise diagonal
}

// New creates a filter with one channel per initial value. The initial
// covariance is the identity.
func New(initial []float32, processNoise float32, measurementNoise []float32) (*Filter, error) {
	if len(initial) == 0 {
		return nil, fmt.Errorf("%w: no channels", ErrDimension)
	}
	if len(measurementNoise) != len(initial) {
		return nil, fmt.Errorf("%w: %d initial values, %d noise values", ErrDimension, len(initial), len(measurementNoise))
	}
	if !positive(processNoise) {
		return nil, fmt.Errorf("%w: process noise %v", ErrNoise, processNoise)
	}
	for i, r := range measurementNoise {
		if !positive(r) {
			return nil, fmt.Errorf("%w: channel %d measurement noise %v", ErrNoise, i, r)
		}
	}

	f := &Filter{
		x: make([]float32, len(initial)),
		p: make([]float32, len(initial)),
		q: processNoise,
		r: make([]float32, len(initial)),
	}
	copy(f.x, initial)
	copy(f.r, measurementNoise)
	for i := range f.p {
		f.p[i] = 1
	}
	return f, nil
}

// Update runs one predict and update step over every channel and returns a
// copy of the new state mean. Every measurement must be finite; on error the
// filter is left untouched.
func (f *Filter) Update(z []float32) ([]float32, error) {
	if len(z) != len(f.x) {
		return nil, fmt.Errorf("%w: got %d measurements, want %d", ErrDimension, len(z), len(f.x))
	}
	for i, v := range z {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: channel %d is %v", ErrMeasurement, i, v)
		}
	}

	for i := range f.x {
		// Predict: x = F x, P = F P F' + Q with F = I
		f.p[i] += f.q

		// Update with H = I
		k := f.p[i] / (f.p[i] + f.r[i])
		f.x[i] += k * (z[i] - f.x[i])
		f.p[i] = (1 - k) * f.p[i]
	}

	return f.State(), nil
}

// State returns a copy of the current state mean.
func (f *Filter) State() []float32 {
	out := make([]float32, len(f.x))
	copy(out, f.x)
	return out
}

// Covariance returns a copy of the covariance diagonal.
func (f *Filter) Covariance() []float32 {
	out := make([]float32, len(f.p))
	copy(out, f.p)
	return out
}

func positive(v float32) bool {
	return v > 0 && !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
