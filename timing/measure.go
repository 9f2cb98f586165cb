// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timing

import (
	"github.com/go-lpc/pixie/trace"
)

// Measure computes the phase of an analyzed trace, in samples since the
// first sample of the trace.
//
// Discriminators run on the raw trace with the extrapolated maximum.
// Pulse fits run on the baseline subtracted waveform, with the waveform
// QDC when none was configured, and their phase is shifted back by the
// waveform offset.
func Measure(alg Algorithm, w []float64, ana trace.Analysis, p Params) (Result, error) {
	base := Baseline{Mean: ana.Baseline, StdDev: ana.StdDev}

	fit, ok := alg.(PulseFit)
	if !ok {
		max := trace.Max{Index: ana.Max.Index, Value: ana.ExtMax}
		return alg.Phase(w, p, max, base)
	}

	if fit.QDC == 0 {
		fit.QDC = ana.QDC
	}
	max := trace.Max{
		Index: ana.Max.Index - ana.Lo,
		Value: ana.ExtMax - ana.Baseline,
	}
	res, err := fit.Phase(ana.Waveform, p, max, base)
	if err != nil {
		return res, err
	}
	res.Phase += float64(ana.Lo)
	return res, nil
}
