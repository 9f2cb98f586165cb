// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timing

import (
	"fmt"
	"math"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TraditionalCFD is a digital constant fraction discriminator.
// It uses (fraction, delay) as parameters.
//
// The bipolar signal cfd[i] = f*(w[i] - w[i+d] - baseline) is fitted with
// a line between its extrema and the phase is the zero crossing of that line.
type TraditionalCFD struct{}

func (TraditionalCFD) Name() string { return "cfd" }

func (alg TraditionalCFD) Phase(w []float64, p Params, max trace.Max, base Baseline) (Result, error) {
	if err := check(alg.Name(), w, max); err != nil {
		return Result{}, err
	}

	var (
		f = p.P0
		d = int(p.P1)
	)
	if d <= 0 || d >= len(w) {
		return Result{}, fmt.Errorf(
			"timing: cfd: invalid delay %d (len=%d): %w",
			d, len(w), pixie.ErrInvalidArgument,
		)
	}

	cfd := make([]float64, len(w)-d)
	for i := range cfd {
		cfd[i] = f * (w[i] - w[i+d] - base.Mean)
	}

	lo, hi := floats.MinIdx(cfd), floats.MaxIdx(cfd)
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == lo {
		return Result{}, fmt.Errorf("timing: cfd: flat bipolar signal: %w", pixie.ErrInvalidArgument)
	}

	xs := make([]float64, hi-lo+1)
	floats.Span(xs, float64(lo), float64(hi))
	alpha, beta := stat.LinearRegression(xs, cfd[lo:hi+1], nil, false)
	if beta == 0 {
		return Result{}, fmt.Errorf("timing: cfd: null slope: %w", pixie.ErrInvalidArgument)
	}
	return Result{Phase: -alpha / beta}, nil
}

// PolynomialCFD locates the crossing of a fraction of the pulse amplitude
// on its leading edge, interpolating with a polynomial of the given order.
// It uses the fraction as P0. The maximum value should be the
// extrapolated maximum.
type PolynomialCFD struct {
	Order int // 1 or 2
}

func (alg PolynomialCFD) Name() string {
	if alg.Order == 1 {
		return "polycfd1"
	}
	return "polycfd"
}

func (alg PolynomialCFD) Phase(w []float64, p Params, max trace.Max, base Baseline) (Result, error) {
	if err := check(alg.Name(), w, max); err != nil {
		return Result{}, err
	}
	if alg.Order != 1 && alg.Order != 2 {
		return Result{}, fmt.Errorf(
			"timing: %s: invalid polynomial order %d: %w",
			alg.Name(), alg.Order, pixie.ErrUnsupportedConfiguration,
		)
	}

	thr := p.P0 * (max.Value - base.Mean)
	ys := make([]float64, len(w))
	copy(ys, w)
	floats.AddConst(-base.Mean, ys)

	for i := max.Index; i > 0; i-- {
		if !(ys[i-1] < thr && ys[i] >= thr) {
			continue
		}
		if alg.Order == 1 {
			return Result{Phase: float64(i-1) + (thr-ys[i-1])/(ys[i]-ys[i-1])}, nil
		}

		if i+1 >= len(ys) {
			return Result{}, fmt.Errorf(
				"timing: %s: threshold crossing at %d too close to the end of the waveform: %w",
				alg.Name(), i, pixie.ErrIndexOutOfRange,
			)
		}
		_, c, err := trace.Poly2(ys[i-1:i+2], 0)
		if err != nil {
			return Result{}, fmt.Errorf("timing: %s: %w", alg.Name(), err)
		}
		if c[2] > 0 {
			return Result{}, fmt.Errorf(
				"timing: %s: concave-upward parabola at %d, try a larger fraction: %w",
				alg.Name(), i, pixie.ErrInvalidArgument,
			)
		}
		x := (-c[1] + math.Sqrt(c[1]*c[1]-4*c[2]*(c[0]-thr))) / (2 * c[2])
		return Result{Phase: float64(i-1) + x}, nil
	}

	return Result{}, fmt.Errorf(
		"timing: %s: no crossing of threshold %v before %d: %w",
		alg.Name(), thr, max.Index, pixie.ErrInvalidArgument,
	)
}

// LeadingEdge is a fixed threshold discriminator.
// It uses the threshold above baseline, in ADC units, as P0.
type LeadingEdge struct{}

func (LeadingEdge) Name() string { return "le" }

func (alg LeadingEdge) Phase(w []float64, p Params, max trace.Max, base Baseline) (Result, error) {
	if err := check(alg.Name(), w, max); err != nil {
		return Result{}, err
	}
	ys := make([]float64, len(w))
	copy(ys, w)
	floats.AddConst(-base.Mean, ys)

	phase, err := trace.LeadingEdge(ys, p.P0, max)
	if err != nil {
		return Result{}, fmt.Errorf("timing: %s: %w", alg.Name(), err)
	}
	return Result{Phase: phase}, nil
}
