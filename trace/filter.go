// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-lpc/pixie"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoTrigger is returned when the trigger filter never crosses its threshold.
var ErrNoTrigger = errors.New("trace: no trigger")

// Trapezoid describes the shape of a trapezoidal filter, in samples.
type Trapezoid struct {
	Rise int // rise time
	Flat int // flat top
}

// Filter is a software emulation of the on-board trigger (fast) and
// energy (slow) trapezoidal filters.
type Filter struct {
	Trigger   Trapezoid
	Threshold float64 // trigger threshold, in ADC units

	Energy Trapezoid
	Tau    float64 // decay constant of the preamplifier, in samples

	// Pileup requests the energy of every trigger, not only the first one.
	Pileup bool
}

// FilterResult holds the outcome of a Filter.
type FilterResult struct {
	TriggerFilter []float64
	Triggers      []int // rising threshold crossings of the trigger filter
	Baseline      float64
	Coeffs        [3]float64 // energy filter coefficients
	Sums          [][3]float64
	Energies      []float64
	Limits        [6]int // energy sum limits of the last computed energy
}

// Energy returns the energy of the first trigger.
func (r FilterResult) Energy() float64 {
	if len(r.Energies) == 0 {
		return 0
	}
	return r.Energies[0]
}

// HasPileup returns whether more than one trigger was found.
func (r FilterResult) HasPileup() bool { return len(r.Triggers) > 1 }

// Apply runs the trigger and energy filters over w.
func (f Filter) Apply(w []float64) (FilterResult, error) {
	var res FilterResult
	switch {
	case len(w) == 0:
		return res, fmt.Errorf("trace: could not filter: %w", pixie.ErrEmptyInput)
	case f.Trigger.Rise <= 0 || f.Trigger.Flat < 0:
		return res, fmt.Errorf("trace: invalid trigger filter %+v: %w", f.Trigger, pixie.ErrInvalidArgument)
	case f.Energy.Rise <= 0 || f.Energy.Flat < 0:
		return res, fmt.Errorf("trace: invalid energy filter %+v: %w", f.Energy, pixie.ErrInvalidArgument)
	case f.Tau <= 0:
		return res, fmt.Errorf("trace: invalid decay constant %v: %w", f.Tau, pixie.ErrInvalidArgument)
	}

	res.TriggerFilter, res.Triggers = f.trigger(w)
	if len(res.Triggers) == 0 {
		return res, ErrNoTrigger
	}

	trig := res.Triggers[0]
	off := trig - f.Trigger.Rise - 5
	if off <= 0 {
		return res, fmt.Errorf(
			"trace: trigger at %d too early for a baseline: %w",
			trig, pixie.ErrIndexOutOfRange,
		)
	}
	res.Baseline = stat.Mean(w[:off], nil)
	res.Coeffs = f.coeffs()

	trigs := res.Triggers[:1]
	if f.Pileup {
		trigs = res.Triggers
	}
	for i, trig := range trigs {
		lim, ok := f.limits(trig, len(w))
		if !ok {
			if i == 0 {
				return res, fmt.Errorf(
					"trace: trigger at %d does not leave room for the energy sums (len=%d): %w",
					trig, len(w), pixie.ErrIndexOutOfRange,
				)
			}
			continue
		}
		sums := [3]float64{
			floats.Sum(w[lim[0]:lim[1]]),
			floats.Sum(w[lim[2]:lim[3]]),
			floats.Sum(w[lim[4]:lim[5]]),
		}
		res.Limits = lim
		res.Sums = append(res.Sums, sums)
		res.Energies = append(res.Energies, floats.Dot(res.Coeffs[:], sums[:])-res.Baseline)
	}

	return res, nil
}

func (f Filter) trigger(w []float64) ([]float64, []int) {
	var (
		l     = f.Trigger.Rise
		g     = f.Trigger.Flat
		out   = make([]float64, len(w))
		trigs []int
		above bool
	)
	for i := 2*l + g - 1; i < len(w); i++ {
		lead := floats.Sum(w[i-l+1 : i+1])
		lag := floats.Sum(w[i-2*l-g+1 : i-l-g+1])
		out[i] = (lead - lag) / float64(l)
		switch {
		case out[i] >= f.Threshold && !above:
			trigs = append(trigs, i)
			above = true
		case out[i] < f.Threshold:
			above = false
		}
	}
	return out, trigs
}

func (f Filter) coeffs() [3]float64 {
	var (
		l    = float64(f.Energy.Rise)
		beta = math.Exp(-1 / f.Tau)
		cg   = 1 - beta
		bl   = math.Pow(beta, l)
		ctmp = 1 - bl
	)
	return [3]float64{-(cg / ctmp) * bl, cg, cg / ctmp}
}

func (f Filter) limits(trig, n int) ([6]int, bool) {
	var (
		l  = f.Energy.Rise
		g  = f.Energy.Flat
		p0 = trig - l - 10
	)
	if p0 < 0 || trig+l+g > n {
		return [6]int{}, false
	}
	return [6]int{p0, p0 + l - 1, p0 + l, p0 + l + g - 1, p0 + l + g, p0 + 2*l + g - 1}, true
}
