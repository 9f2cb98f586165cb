// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"errors"
	"testing"

	"github.com/go-lpc/pixie"
	"gonum.org/v1/gonum/floats/scalar"
)

// refTrace is a 250 MHz trace of a plastic scintillator.
var refTrace = Float64s([]uint16{
	437, 436, 434, 434, 437, 437, 438, 435, 434, 438, 439, 437, 438, 434,
	435, 439, 438, 434, 434, 435, 437, 440, 439, 435, 437, 439, 438, 435,
	436, 436, 437, 439, 435, 433, 434, 436, 439, 441, 436, 437, 439, 438,
	438, 435, 434, 434, 438, 438, 434, 434, 437, 440, 439, 438, 434, 436,
	439, 439, 437, 436, 434, 436, 438, 437, 436, 437, 440, 440, 439, 436,
	435, 437, 501, 1122, 2358, 3509, 3816, 3467, 2921, 2376, 1914, 1538,
	1252, 1043, 877, 750, 667, 619, 591, 563, 526, 458, 395, 403, 452,
	478, 492, 498, 494, 477, 460, 459, 462, 461, 460, 456, 452, 452, 455,
	453, 446, 441, 440, 444, 456, 459, 451, 450, 447, 445, 449, 456, 456,
	455,
})

const (
	refBaseline = 436.7428571
	refStdDev   = 1.976184739
	refExtMax   = 3818.0718412264
	refDelay    = 80
)

var refMax = Max{Index: 76, Value: 3816}

func TestFloat64s(t *testing.T) {
	got := Float64s([]uint16{0, 1, 65535})
	want := []float64{0, 1, 65535}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("invalid value[%d]: got=%v, want=%v", i, got[i], want[i])
		}
	}
	if got := Float64s(nil); len(got) != 0 {
		t.Fatalf("invalid conversion of empty trace: %v", got)
	}
}

func TestBaseline(t *testing.T) {
	for _, tc := range []struct {
		name   string
		w      []float64
		lo, hi int
		err    error
	}{
		{"empty", nil, 0, 40, pixie.ErrEmptyInput},
		{"too-small", refTrace, 0, 1, pixie.ErrInvalidArgument},
		{"inverted", refTrace, 17, 1, pixie.ErrInvertedRange},
		{"too-large", refTrace, 0, len(refTrace) + 100, pixie.ErrIndexOutOfRange},
		{"negative", refTrace, -1, 40, pixie.ErrIndexOutOfRange},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Baseline(tc.w, tc.lo, tc.hi)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
		})
	}

	mean, stddev, err := Baseline(refTrace, 0, 70)
	if err != nil {
		t.Fatalf("could not compute baseline: %+v", err)
	}
	if got, want := mean, refBaseline; !scalar.EqualWithinAbs(got, want, 1e-7) {
		t.Fatalf("invalid baseline: got=%v, want=%v", got, want)
	}
	if got, want := stddev, refStdDev; !scalar.EqualWithinAbs(got, want, 1e-9) {
		t.Fatalf("invalid stddev: got=%v, want=%v", got, want)
	}

	// the baseline honours the lower bound of the range.
	flat := make([]float64, 60)
	for i := range flat {
		if i < 20 {
			flat[i] = 1000
			continue
		}
		flat[i] = 10
	}
	mean, stddev, err = Baseline(flat, 20, 60)
	if err != nil {
		t.Fatalf("could not compute baseline: %+v", err)
	}
	if mean != 10 || stddev != 0 {
		t.Fatalf("invalid baseline: got=(%v, %v), want=(10, 0)", mean, stddev)
	}
}

func TestFindMaximum(t *testing.T) {
	for _, tc := range []struct {
		name  string
		w     []float64
		delay int
		err   error
	}{
		{"empty", nil, refDelay, pixie.ErrEmptyInput},
		{"too-large", refTrace, len(refTrace) + 100, pixie.ErrIndexOutOfRange},
		{"too-small", refTrace, 5, pixie.ErrInvalidArgument},
		{"short-trace", []float64{1000, 4}, refDelay, pixie.ErrIndexOutOfRange},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FindMaximum(tc.w, tc.delay)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
		})
	}

	got, err := FindMaximum(refTrace, refDelay)
	if err != nil {
		t.Fatalf("could not find maximum: %+v", err)
	}
	if got != refMax {
		t.Fatalf("invalid maximum: got=%+v, want=%+v", got, refMax)
	}
}

func TestLeadingEdge(t *testing.T) {
	for _, tc := range []struct {
		name   string
		w      []float64
		thresh float64
		max    Max
		err    error
	}{
		{"empty", nil, 1908, refMax, pixie.ErrEmptyInput},
		{"bad-threshold", refTrace, -0.5, refMax, pixie.ErrInvalidArgument},
		{"bad-max", refTrace, 1908, Max{Index: len(refTrace) + 10, Value: 3}, pixie.ErrIndexOutOfRange},
		{"above-max", refTrace, 4000, refMax, pixie.ErrInvalidArgument},
		{"no-crossing", []float64{10, 20, 30}, 5, Max{Index: 2, Value: 30}, pixie.ErrInvalidArgument},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LeadingEdge(tc.w, tc.thresh, tc.max)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
		})
	}

	got, err := LeadingEdge(refTrace, 0.5*refMax.Value, refMax)
	if err != nil {
		t.Fatalf("could not find leading edge: %+v", err)
	}
	if want := 73.63592233009709; !scalar.EqualWithinAbs(got, want, 1e-9) {
		t.Fatalf("invalid leading edge: got=%v, want=%v", got, want)
	}

	got, err = LeadingEdge([]float64{0, 5, 5, 10}, 5, Max{Index: 3, Value: 10})
	if err != nil {
		t.Fatalf("could not find leading edge: %+v", err)
	}
	if want := 2.0; got != want {
		t.Fatalf("invalid leading edge on a plateau: got=%v, want=%v", got, want)
	}
}

func TestPoly3(t *testing.T) {
	_, _, err := Poly3(nil, 0)
	if !errors.Is(err, pixie.ErrEmptyInput) {
		t.Fatalf("invalid error: %v", err)
	}
	_, _, err = Poly3(refTrace, len(refTrace)-3)
	if !errors.Is(err, pixie.ErrIndexOutOfRange) {
		t.Fatalf("invalid error: %v", err)
	}

	max, coeffs, err := Poly3(refTrace[74:78], 0)
	if err != nil {
		t.Fatalf("could not fit: %+v", err)
	}
	want := [4]float64{2358.0, 1635.66666666667, -516.0, 31.3333333333333}
	for i := range want {
		if !scalar.EqualWithinAbs(coeffs[i], want[i], 1e-6) {
			t.Fatalf("invalid coeff[%d]: got=%v, want=%v", i, coeffs[i], want[i])
		}
	}
	if !scalar.EqualWithinAbs(max, refExtMax, 1e-6) {
		t.Fatalf("invalid maximum: got=%v, want=%v", max, refExtMax)
	}

	// a monotonic cubic has no local maximum.
	_, _, err = Poly3([]float64{0, 2, 10, 30}, 0)
	if !errors.Is(err, pixie.ErrInvalidArgument) {
		t.Fatalf("invalid error: %v", err)
	}
}

func TestPoly2(t *testing.T) {
	_, _, err := Poly2(nil, 0)
	if !errors.Is(err, pixie.ErrEmptyInput) {
		t.Fatalf("invalid error: %v", err)
	}
	val, coeffs, err := Poly2(refTrace[73:76], 0)
	if err != nil {
		t.Fatalf("could not fit: %+v", err)
	}
	want := [3]float64{1122.0, 1278.5, -42.4999999999999}
	for i := range want {
		if !scalar.EqualWithinAbs(coeffs[i], want[i], 1e-3) {
			t.Fatalf("invalid coeff[%d]: got=%v, want=%v", i, coeffs[i], want[i])
		}
	}
	if want := 10737.0720588236; !scalar.EqualWithinAbs(val, want, 1e-4) {
		t.Fatalf("invalid extremum: got=%v, want=%v", val, want)
	}

	// coefficients are expressed for the sample index.
	_, coeffs, err = Poly2(refTrace, 73)
	if err != nil {
		t.Fatalf("could not fit: %+v", err)
	}
	for i, x := range []float64{73, 74, 75} {
		got := coeffs[0] + coeffs[1]*x + coeffs[2]*x*x
		if !scalar.EqualWithinAbs(got, refTrace[73+i], 1e-6) {
			t.Fatalf("invalid fit at %v: got=%v, want=%v", x, got, refTrace[73+i])
		}
	}
}

func TestExtrapolatedMaximum(t *testing.T) {
	for _, tc := range []struct {
		name string
		w    []float64
		max  Max
		err  error
	}{
		{"empty", nil, refMax, pixie.ErrEmptyInput},
		{"short", []float64{1, 2, 1}, Max{Index: 1, Value: 2}, pixie.ErrInvalidArgument},
		{"left-edge", refTrace, Max{Index: 1}, pixie.ErrIndexOutOfRange},
		{"right-edge", refTrace, Max{Index: len(refTrace) - 1}, pixie.ErrIndexOutOfRange},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ExtrapolatedMaximum(tc.w, tc.max)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
		})
	}

	max, coeffs, err := ExtrapolatedMaximum(refTrace, refMax)
	if err != nil {
		t.Fatalf("could not extrapolate maximum: %+v", err)
	}
	if !scalar.EqualWithinAbs(max, refExtMax, 1e-6) {
		t.Fatalf("invalid maximum: got=%v, want=%v", max, refExtMax)
	}
	want := [4]float64{-15641316.0007084, 592747.666694852, -7472.00000037373, 31.3333333349849}
	for i := range want {
		if !scalar.EqualWithinAbs(coeffs[i], want[i], 1e-3) {
			t.Fatalf("invalid coeff[%d]: got=%v, want=%v", i, coeffs[i], want[i])
		}
	}
}

func TestIntegrate(t *testing.T) {
	data := []float64{0, 1, 2, 3, 4, 5}

	_, err := Integrate(nil)
	if !errors.Is(err, pixie.ErrEmptyInput) {
		t.Fatalf("invalid error: %v", err)
	}
	_, err = Integrate(data[:1])
	if !errors.Is(err, pixie.ErrInvalidArgument) {
		t.Fatalf("invalid error: %v", err)
	}

	got, err := Integrate(data)
	if err != nil {
		t.Fatalf("could not integrate: %+v", err)
	}
	if want := 12.5; got != want {
		t.Fatalf("invalid integral: got=%v, want=%v", got, want)
	}

	for _, tc := range []struct {
		name   string
		w      []float64
		lo, hi int
		err    error
	}{
		{"empty", nil, 0, 4, pixie.ErrEmptyInput},
		{"too-large", refTrace, 0, len(refTrace) + 10, pixie.ErrIndexOutOfRange},
		{"inverted", refTrace, 1000, 0, pixie.ErrInvertedRange},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := QDC(tc.w, tc.lo, tc.hi)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
		})
	}

	got, err = QDC(data, 2, 5)
	if err != nil {
		t.Fatalf("could not compute QDC: %+v", err)
	}
	if want := 6.0; got != want {
		t.Fatalf("invalid QDC: got=%v, want=%v", got, want)
	}
}

func TestTailRatio(t *testing.T) {
	for _, tc := range []struct {
		name   string
		w      []float64
		lo, hi int
		qdc    float64
		err    error
	}{
		{"empty", nil, 0, 4, 100, pixie.ErrEmptyInput},
		{"too-large", refTrace, 0, len(refTrace) + 10, 100, pixie.ErrIndexOutOfRange},
		{"null-qdc", refTrace, 0, 4, 0, pixie.ErrInvalidArgument},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := TailRatio(tc.w, tc.lo, tc.hi, tc.qdc)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
		})
	}

	qdc, err := QDC(refTrace, 70, 91)
	if err != nil {
		t.Fatalf("could not compute QDC: %+v", err)
	}
	got, err := TailRatio(refTrace, 80, 91, qdc)
	if err != nil {
		t.Fatalf("could not compute tail ratio: %+v", err)
	}
	if want := 0.2960894762; !scalar.EqualWithinAbs(got, want, 1e-6) {
		t.Fatalf("invalid tail ratio: got=%v, want=%v", got, want)
	}
}

func TestAnalyze(t *testing.T) {
	ana, err := Analyze(refTrace, DefaultWindow)
	if err != nil {
		t.Fatalf("could not analyze trace: %+v", err)
	}
	if !scalar.EqualWithinAbs(ana.Baseline, refBaseline, 1e-7) {
		t.Fatalf("invalid baseline: got=%v, want=%v", ana.Baseline, refBaseline)
	}
	if ana.Max != refMax {
		t.Fatalf("invalid maximum: got=%+v, want=%+v", ana.Max, refMax)
	}
	if !scalar.EqualWithinAbs(ana.ExtMax, refExtMax, 1e-6) {
		t.Fatalf("invalid extrapolated maximum: got=%v, want=%v", ana.ExtMax, refExtMax)
	}
	if got, want := ana.Lo, 71; got != want {
		t.Fatalf("invalid waveform start: got=%d, want=%d", got, want)
	}
	if got, want := len(ana.Waveform), 15; got != want {
		t.Fatalf("invalid waveform length: got=%d, want=%d", got, want)
	}
	if got, want := ana.Waveform[5], refMax.Value-ana.Baseline; got != want {
		t.Fatalf("invalid waveform peak: got=%v, want=%v", got, want)
	}
	if want := 21173.1; !scalar.EqualWithinAbs(ana.QDC, want, 1e-6) {
		t.Fatalf("invalid QDC: got=%v, want=%v", ana.QDC, want)
	}

	win := DefaultWindow
	win.Post = 100
	_, err = Analyze(refTrace, win)
	if !errors.Is(err, pixie.ErrIndexOutOfRange) {
		t.Fatalf("invalid error: %v", err)
	}

	_, err = Analyze(refTrace[:20], DefaultWindow)
	if !errors.Is(err, pixie.ErrIndexOutOfRange) {
		t.Fatalf("invalid error: %v", err)
	}
}

func TestFilter(t *testing.T) {
	step := func(levels ...float64) []float64 {
		var o []float64
		for _, lvl := range levels {
			for i := 0; i < 30; i++ {
				o = append(o, lvl)
			}
		}
		return o
	}

	filter := Filter{
		Trigger:   Trapezoid{Rise: 4, Flat: 2},
		Threshold: 100,
		Energy:    Trapezoid{Rise: 10, Flat: 5},
		Tau:       50,
	}

	res, err := filter.Apply(step(100, 100, 1100, 1100))
	if err != nil {
		t.Fatalf("could not apply filter: %+v", err)
	}
	if got, want := res.Triggers, []int{60}; len(got) != 1 || got[0] != want[0] {
		t.Fatalf("invalid triggers: got=%v, want=%v", got, want)
	}
	if res.HasPileup() {
		t.Fatalf("unexpected pileup")
	}
	if got, want := res.Baseline, 100.0; got != want {
		t.Fatalf("invalid baseline: got=%v, want=%v", got, want)
	}
	if got, want := res.Limits, [6]int{40, 49, 50, 54, 55, 64}; got != want {
		t.Fatalf("invalid limits: got=%v, want=%v", got, want)
	}
	if got, want := res.Sums[0], [3]float64{900, 400, 4900}; got != want {
		t.Fatalf("invalid sums: got=%v, want=%v", got, want)
	}
	wantCoeffs := [3]float64{-0.0894357724257427, 0.019801326693244747, 0.10923709911898745}
	for i := range wantCoeffs {
		if !scalar.EqualWithinAbs(res.Coeffs[i], wantCoeffs[i], 1e-12) {
			t.Fatalf("invalid coeff[%d]: got=%v, want=%v", i, res.Coeffs[i], wantCoeffs[i])
		}
	}
	if got, want := res.Energy(), 362.69012117716795; !scalar.EqualWithinAbs(got, want, 1e-9) {
		t.Fatalf("invalid energy: got=%v, want=%v", got, want)
	}
	if got, want := res.TriggerFilter[60], 250.0; got != want {
		t.Fatalf("invalid trigger filter: got=%v, want=%v", got, want)
	}

	filter.Pileup = true
	res, err = filter.Apply(step(100, 100, 1100, 2100))
	if err != nil {
		t.Fatalf("could not apply filter: %+v", err)
	}
	if !res.HasPileup() {
		t.Fatalf("expected a pileup")
	}
	if got, want := res.Triggers, []int{60, 90}; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("invalid triggers: got=%v, want=%v", got, want)
	}
	if got, want := len(res.Energies), 2; got != want {
		t.Fatalf("invalid number of energies: got=%d, want=%d", got, want)
	}
	if got, want := res.Energies[1], 620.1073681893497; !scalar.EqualWithinAbs(got, want, 1e-9) {
		t.Fatalf("invalid energy: got=%v, want=%v", got, want)
	}

	for _, tc := range []struct {
		name   string
		filter Filter
		w      []float64
		err    error
	}{
		{"empty", filter, nil, pixie.ErrEmptyInput},
		{"no-trigger", filter, step(100, 100), ErrNoTrigger},
		{"bad-rise", Filter{Energy: Trapezoid{Rise: 1}, Tau: 1}, step(100), pixie.ErrInvalidArgument},
		{"bad-tau", Filter{Trigger: Trapezoid{Rise: 1}, Energy: Trapezoid{Rise: 1}}, step(100), pixie.ErrInvalidArgument},
		{"early", filter, append(make([]float64, 10), step(1000, 1000)...), pixie.ErrIndexOutOfRange},
		{"no-room", filter, append(step(100, 100), 1100, 1100, 1100, 1100, 1100), pixie.ErrIndexOutOfRange},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.filter.Apply(tc.w)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
			}
		})
	}
}
