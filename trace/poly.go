// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"fmt"
	"math"

	"github.com/go-lpc/pixie"
	"gonum.org/v1/gonum/mat"
)

// Poly2 fits a parabola through w[start], w[start+1] and w[start+2].
// It returns the value of the parabola at its extremum and its coefficients,
// in ascending power order, for the sample index.
func Poly2(w []float64, start int) (float64, [3]float64, error) {
	var coeffs [3]float64
	if err := checkPoly(w, start, 3); err != nil {
		return 0, coeffs, fmt.Errorf("trace: could not fit 2nd order polynomial: %w", err)
	}

	a, err := polyFit(w[start : start+3])
	if err != nil {
		return 0, coeffs, fmt.Errorf("trace: could not fit 2nd order polynomial: %w", err)
	}
	if a[2] == 0 {
		return 0, coeffs, fmt.Errorf("trace: degenerate 2nd order polynomial: %w", pixie.ErrInvalidArgument)
	}
	copy(coeffs[:], polyShift(a, float64(start)))
	return a[0] - a[1]*a[1]/(4*a[2]), coeffs, nil
}

// Poly3 fits a cubic through the 4 samples starting at w[start].
// It returns the value of the cubic at its local maximum and its
// coefficients, in ascending power order, for the sample index.
func Poly3(w []float64, start int) (float64, [4]float64, error) {
	var coeffs [4]float64
	if err := checkPoly(w, start, 4); err != nil {
		return 0, coeffs, fmt.Errorf("trace: could not fit 3rd order polynomial: %w", err)
	}

	a, err := polyFit(w[start : start+4])
	if err != nil {
		return 0, coeffs, fmt.Errorf("trace: could not fit 3rd order polynomial: %w", err)
	}
	copy(coeffs[:], polyShift(a, float64(start)))

	x, ok := cubicMax(a)
	if !ok {
		return 0, coeffs, fmt.Errorf("trace: 3rd order polynomial has no local maximum: %w", pixie.ErrInvalidArgument)
	}
	return a[0] + x*(a[1]+x*(a[2]+x*a[3])), coeffs, nil
}

// ExtrapolatedMaximum refines the maximum of the pulse with a cubic through
// the 4 samples around max, leaning on the side of the larger neighbour.
func ExtrapolatedMaximum(w []float64, max Max) (float64, [4]float64, error) {
	switch {
	case len(w) == 0:
		return 0, [4]float64{}, fmt.Errorf("trace: could not extrapolate maximum: %w", pixie.ErrEmptyInput)
	case len(w) < 4:
		return 0, [4]float64{}, fmt.Errorf(
			"trace: could not extrapolate maximum with %d samples: %w",
			len(w), pixie.ErrInvalidArgument,
		)
	case max.Index < 2 || max.Index+1 >= len(w):
		return 0, [4]float64{}, fmt.Errorf(
			"trace: could not extrapolate maximum at %d (len=%d): %w",
			max.Index, len(w), pixie.ErrIndexOutOfRange,
		)
	}

	start := max.Index - 1
	if w[max.Index-1] >= w[max.Index+1] {
		start = max.Index - 2
	}
	return Poly3(w, start)
}

func checkPoly(w []float64, start, n int) error {
	switch {
	case len(w) == 0:
		return pixie.ErrEmptyInput
	case start < 0 || start+n > len(w):
		return fmt.Errorf("need %d samples from %d (len=%d): %w", n, start, len(w), pixie.ErrIndexOutOfRange)
	}
	return nil
}

// polyFit returns the coefficients of the polynomial going through the
// points (i, ys[i]).
func polyFit(ys []float64) ([]float64, error) {
	n := len(ys)
	vdm := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		x := 1.0
		for j := 0; j < n; j++ {
			vdm.Set(i, j, x)
			x *= float64(i)
		}
	}

	var a mat.VecDense
	err := a.SolveVec(vdm, mat.NewVecDense(n, append([]float64(nil), ys...)))
	if err != nil {
		return nil, err
	}
	return a.RawVector().Data, nil
}

// polyShift returns the coefficients of p(x-s), given those of p(x).
func polyShift(a []float64, s float64) []float64 {
	o := make([]float64, len(a))
	for k, ak := range a {
		binom := 1.0
		for j := k; j >= 0; j-- {
			o[j] += ak * binom * math.Pow(-s, float64(k-j))
			binom = binom * float64(j) / float64(k-j+1)
		}
	}
	return o
}

// cubicMax returns the position of the local maximum of the cubic a.
func cubicMax(a []float64) (float64, bool) {
	if a[3] == 0 {
		if a[2] >= 0 {
			return 0, false
		}
		return -a[1] / (2 * a[2]), true
	}
	disc := 4*a[2]*a[2] - 12*a[3]*a[1]
	if disc <= 0 {
		return 0, false
	}
	var (
		sq = math.Sqrt(disc)
		x1 = (-2*a[2] + sq) / (6 * a[3])
		x2 = (-2*a[2] - sq) / (6 * a[3])
	)
	if 2*a[2]+6*a[3]*x1 < 0 {
		return x1, true
	}
	return x2, true
}
