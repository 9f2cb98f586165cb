// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"fmt"

	"github.com/go-lpc/pixie"
	"gonum.org/v1/gonum/floats"
)

// Window describes the regions of a trace used by Analyze.
type Window struct {
	BaselineLo int // first sample of the baseline region
	BaselineHi int // end of the baseline region (excluded)
	Delay      int // end of the maximum search region (excluded)
	Pre        int // samples of the waveform before the maximum
	Post       int // samples of the waveform after the maximum (excluded)
}

// DefaultWindow is suited for 250 MHz traces of fast scintillators.
var DefaultWindow = Window{
	BaselineLo: 0,
	BaselineHi: 70,
	Delay:      80,
	Pre:        5,
	Post:       10,
}

// Analysis gathers the waveform metrics of a trace.
type Analysis struct {
	Baseline float64
	StdDev   float64
	Max      Max     // raw maximum
	ExtMax   float64 // extrapolated maximum
	Coeffs   [4]float64

	Lo       int       // index of the first waveform sample in the trace
	Waveform []float64 // baseline subtracted samples around the maximum
	QDC      float64   // integral of the waveform
}

// Analyze computes the baseline, the maximum, the extrapolated maximum,
// the baseline subtracted waveform and its QDC in one go.
func Analyze(w []float64, win Window) (Analysis, error) {
	var (
		ana Analysis
		err error
	)

	ana.Baseline, ana.StdDev, err = Baseline(w, win.BaselineLo, win.BaselineHi)
	if err != nil {
		return ana, err
	}

	ana.Max, err = FindMaximum(w, win.Delay)
	if err != nil {
		return ana, err
	}

	ana.ExtMax, ana.Coeffs, err = ExtrapolatedMaximum(w, ana.Max)
	if err != nil {
		return ana, err
	}

	lo, hi := ana.Max.Index-win.Pre, ana.Max.Index+win.Post
	if lo < 0 || hi > len(w) || hi-lo < 2 {
		return ana, fmt.Errorf(
			"trace: waveform [%d, %d) outside of trace (len=%d): %w",
			lo, hi, len(w), pixie.ErrIndexOutOfRange,
		)
	}
	ana.Lo = lo
	ana.Waveform = make([]float64, hi-lo)
	copy(ana.Waveform, w[lo:hi])
	floats.AddConst(-ana.Baseline, ana.Waveform)

	ana.QDC, err = Integrate(ana.Waveform)
	if err != nil {
		return ana, err
	}
	return ana, nil
}
