// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace holds numeric primitives operating on digitizer traces:
// baseline estimation, maximum finding, polynomial extrapolation,
// integration and trapezoidal filtering.
//
// All functions are stateless and safe for concurrent use.
package trace // import "github.com/go-lpc/pixie/trace"

import (
	"fmt"

	"github.com/go-lpc/pixie"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// MinBaselineLen is the minimum number of samples needed for a baseline
// estimation. The maximum search starts after this many samples.
const MinBaselineLen = 30

// Max describes the position and value of a trace maximum.
type Max struct {
	Index int
	Value float64
}

// Float64s converts raw ADC samples to floating point values.
func Float64s(raw []uint16) []float64 {
	o := make([]float64, len(raw))
	for i, v := range raw {
		o[i] = float64(v)
	}
	return o
}

// Baseline returns the mean and the population standard deviation of
// the samples in [lo, hi).
func Baseline(w []float64, lo, hi int) (mean, stddev float64, err error) {
	switch {
	case len(w) == 0:
		return 0, 0, fmt.Errorf("trace: could not compute baseline: %w", pixie.ErrEmptyInput)
	case hi < lo:
		return 0, 0, fmt.Errorf("trace: could not compute baseline over [%d, %d): %w", lo, hi, pixie.ErrInvertedRange)
	case lo < 0 || hi > len(w):
		return 0, 0, fmt.Errorf(
			"trace: could not compute baseline over [%d, %d) (len=%d): %w",
			lo, hi, len(w), pixie.ErrIndexOutOfRange,
		)
	case hi-lo < MinBaselineLen:
		return 0, 0, fmt.Errorf(
			"trace: baseline range [%d, %d) shorter than %d samples: %w",
			lo, hi, MinBaselineLen, pixie.ErrInvalidArgument,
		)
	}
	mean, stddev = stat.PopMeanStdDev(w[lo:hi], nil)
	return mean, stddev, nil
}

// FindMaximum returns the first maximum of the trace in [MinBaselineLen, delay).
// The baseline is not subtracted.
func FindMaximum(w []float64, delay int) (Max, error) {
	switch {
	case len(w) == 0:
		return Max{}, fmt.Errorf("trace: could not find maximum: %w", pixie.ErrEmptyInput)
	case delay > len(w):
		return Max{}, fmt.Errorf(
			"trace: trace delay (%d) larger than trace (len=%d): %w",
			delay, len(w), pixie.ErrIndexOutOfRange,
		)
	case delay <= MinBaselineLen:
		return Max{}, fmt.Errorf(
			"trace: trace delay (%d) must be greater than %d: %w",
			delay, MinBaselineLen, pixie.ErrInvalidArgument,
		)
	}
	i := MinBaselineLen + floats.MaxIdx(w[MinBaselineLen:delay])
	return Max{Index: i, Value: w[i]}, nil
}

// LeadingEdge returns the interpolated position where the leading edge of
// the pulse peaking at max last crosses threshold.
func LeadingEdge(w []float64, threshold float64, max Max) (float64, error) {
	switch {
	case len(w) == 0:
		return 0, fmt.Errorf("trace: could not find leading edge: %w", pixie.ErrEmptyInput)
	case threshold <= 0:
		return 0, fmt.Errorf("trace: invalid leading edge threshold %v: %w", threshold, pixie.ErrInvalidArgument)
	case max.Index < 0 || max.Index >= len(w):
		return 0, fmt.Errorf(
			"trace: maximum position %d outside of trace (len=%d): %w",
			max.Index, len(w), pixie.ErrIndexOutOfRange,
		)
	case w[max.Index] <= threshold:
		return 0, fmt.Errorf(
			"trace: maximum (%v) below leading edge threshold (%v): %w",
			w[max.Index], threshold, pixie.ErrInvalidArgument,
		)
	}

	for i := max.Index - 1; i >= 0; i-- {
		if w[i] > threshold {
			continue
		}
		if w[i+1] == w[i] {
			return float64(i + 1), nil
		}
		return float64(i) + (threshold-w[i])/(w[i+1]-w[i]), nil
	}
	return 0, fmt.Errorf("trace: no leading edge crossing %v: %w", threshold, pixie.ErrInvalidArgument)
}

// Integrate returns the integral of the samples using the trapezoidal rule,
// with a unit sample spacing.
func Integrate(w []float64) (float64, error) {
	switch len(w) {
	case 0:
		return 0, fmt.Errorf("trace: could not integrate: %w", pixie.ErrEmptyInput)
	case 1:
		return 0, fmt.Errorf("trace: could not integrate a single sample: %w", pixie.ErrInvalidArgument)
	}
	xs := make([]float64, len(w))
	floats.Span(xs, 0, float64(len(w)-1))
	return integrate.Trapezoidal(xs, w), nil
}

// QDC returns the integral of the samples in [lo, hi).
func QDC(w []float64, lo, hi int) (float64, error) {
	if err := checkRange(w, lo, hi); err != nil {
		return 0, fmt.Errorf("trace: could not compute QDC: %w", err)
	}
	return Integrate(w[lo:hi])
}

// TailRatio returns the integral of the samples in [lo, hi) divided by qdc.
func TailRatio(w []float64, lo, hi int, qdc float64) (float64, error) {
	if err := checkRange(w, lo, hi); err != nil {
		return 0, fmt.Errorf("trace: could not compute tail ratio: %w", err)
	}
	if qdc == 0 {
		return 0, fmt.Errorf("trace: could not compute tail ratio with a null QDC: %w", pixie.ErrInvalidArgument)
	}
	v, err := Integrate(w[lo:hi])
	if err != nil {
		return 0, err
	}
	return v / qdc, nil
}

func checkRange(w []float64, lo, hi int) error {
	switch {
	case len(w) == 0:
		return pixie.ErrEmptyInput
	case hi < lo:
		return fmt.Errorf("range [%d, %d): %w", lo, hi, pixie.ErrInvertedRange)
	case lo < 0 || hi > len(w):
		return fmt.Errorf("range [%d, %d) (len=%d): %w", lo, hi, len(w), pixie.ErrIndexOutOfRange)
	}
	return nil
}
