// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package timing extracts the sub-sample phase of digitized pulses.
//
// Algorithms are interchangeable through the Algorithm interface and
// are selected by name from configuration with New.
package timing // import "github.com/go-lpc/pixie/timing"

import (
	"fmt"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/trace"
)

// Params are the two tuning parameters of an algorithm.
// CFDs use (fraction, delay), pulse fits use (beta, gamma) and the
// leading edge discriminator uses its threshold as P0.
type Params struct {
	P0 float64
	P1 float64
}

// Baseline describes the baseline of a trace.
type Baseline struct {
	Mean   float64
	StdDev float64
}

// Result is the outcome of a phase computation.
// Amplitude, Chi2 and NDF are only filled by fits.
type Result struct {
	Phase     float64
	Amplitude float64
	Chi2      float64
	NDF       int
}

// Algorithm computes the phase of a pulse, in samples.
type Algorithm interface {
	Name() string
	Phase(w []float64, p Params, max trace.Max, base Baseline) (Result, error)
}

// New returns the algorithm registered under name.
func New(name string) (Algorithm, error) {
	switch name {
	case "none", "":
		return None{}, nil
	case "cfd":
		return TraditionalCFD{}, nil
	case "polycfd":
		return PolynomialCFD{Order: 2}, nil
	case "polycfd1":
		return PolynomialCFD{Order: 1}, nil
	case "fit":
		return PulseFit{Kind: PMT}, nil
	case "fit-sipm":
		return PulseFit{Kind: FastSiPM}, nil
	case "le":
		return LeadingEdge{}, nil
	}
	return nil, fmt.Errorf("timing: unknown algorithm %q: %w", name, pixie.ErrUnsupportedConfiguration)
}

// Names lists the names known to New.
var Names = []string{"none", "cfd", "polycfd", "polycfd1", "fit", "fit-sipm", "le"}

func check(name string, w []float64, max trace.Max) error {
	switch {
	case len(w) == 0:
		return fmt.Errorf("timing: %s: could not compute phase: %w", name, pixie.ErrEmptyInput)
	case max.Index < 0 || max.Index >= len(w):
		return fmt.Errorf(
			"timing: %s: maximum position %d outside of waveform (len=%d): %w",
			name, max.Index, len(w), pixie.ErrIndexOutOfRange,
		)
	}
	return nil
}

// None is the explicit absence of a timing algorithm.
// Its phase is always zero.
type None struct{}

func (None) Name() string { return "none" }

func (alg None) Phase(w []float64, p Params, max trace.Max, base Baseline) (Result, error) {
	if err := check(alg.Name(), w, max); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

var (
	_ Algorithm = (*None)(nil)
	_ Algorithm = (*TraditionalCFD)(nil)
	_ Algorithm = (*PolynomialCFD)(nil)
	_ Algorithm = (*LeadingEdge)(nil)
	_ Algorithm = (*PulseFit)(nil)
)
