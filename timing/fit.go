// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timing

import (
	"fmt"
	"math"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/trace"
	"gonum.org/v1/gonum/mat"
)

// Kind is the kind of pulse template a PulseFit uses.
type Kind uint8

const (
	PMT      Kind = iota // photo-multiplier tube
	FastSiPM             // fast output of a silicon photo-multiplier
)

func (k Kind) String() string {
	switch k {
	case PMT:
		return "PMT"
	case FastSiPM:
		return "FastSiPM"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

const (
	fitMaxIter = 100
	fitXTol    = 1e-4
)

// PulseFit fits a baseline subtracted waveform with a pulse template,
// using a Levenberg-Marquardt minimizer.
//
// The PMT template is
//
//	f(t) = qdc * alpha * exp(-beta*(t-phi)) * (1 - exp(-(gamma*(t-phi))^4))
//
// for t >= phi, and zero before, with (beta, gamma) taken from (P0, P1) and
// (phi, alpha) free. The FastSiPM template is a Gaussian of width gamma
// (P1) and area qdc, with phi free.
//
// The waveform integral is used when QDC is zero.
type PulseFit struct {
	Kind Kind
	QDC  float64
}

func (alg PulseFit) Name() string {
	if alg.Kind == FastSiPM {
		return "fit-sipm"
	}
	return "fit"
}

func (alg PulseFit) Phase(w []float64, p Params, max trace.Max, base Baseline) (Result, error) {
	if err := check(alg.Name(), w, max); err != nil {
		return Result{}, err
	}

	qdc := alg.QDC
	if qdc == 0 {
		v, err := trace.Integrate(w)
		if err != nil {
			return Result{}, fmt.Errorf("timing: %s: could not compute QDC: %w", alg.Name(), err)
		}
		qdc = v
	}
	if qdc == 0 {
		return Result{}, fmt.Errorf("timing: %s: null QDC: %w", alg.Name(), pixie.ErrInvalidArgument)
	}

	var m model
	switch alg.Kind {
	case PMT:
		m = pmt{qdc: qdc, beta: p.P0, gamma: p.P1}
	case FastSiPM:
		if p.P1 <= 0 {
			return Result{}, fmt.Errorf("timing: %s: invalid width %v: %w", alg.Name(), p.P1, pixie.ErrInvalidArgument)
		}
		m = sipm{qdc: qdc, gamma: p.P1, n: len(w)}
	default:
		return Result{}, fmt.Errorf("timing: unknown pulse kind %v: %w", alg.Kind, pixie.ErrUnsupportedConfiguration)
	}

	npar := len(m.init())
	if len(w) <= npar {
		return Result{}, fmt.Errorf(
			"timing: %s: not enough samples (%d) for %d parameters: %w",
			alg.Name(), len(w), npar, pixie.ErrInvalidArgument,
		)
	}

	x, chi2 := levmar(m, w)

	sigma := base.StdDev
	if sigma <= 0 {
		sigma = 1
	}
	res := Result{
		Phase: x[0],
		Chi2:  chi2 / (sigma * sigma),
		NDF:   len(w) - npar,
	}
	if alg.Kind == PMT {
		res.Amplitude = x[1]
	}
	return res, nil
}

// model is a pulse template with its Jacobian.
type model interface {
	init() []float64
	eval(x []float64, t float64) float64
	grad(dst, x []float64, t float64)
}

type pmt struct {
	qdc   float64
	beta  float64
	gamma float64
}

func (pmt) init() []float64 { return []float64{0, 2.5} }

func (m pmt) eval(x []float64, t float64) float64 {
	phi, alpha := x[0], x[1]
	d := t - phi
	if d < 0 {
		return 0
	}
	return m.qdc * alpha * math.Exp(-m.beta*d) * (1 - math.Exp(-math.Pow(m.gamma*d, 4)))
}

func (m pmt) grad(dst, x []float64, t float64) {
	phi, alpha := x[0], x[1]
	d := t - phi
	if d < 0 {
		dst[0], dst[1] = 0, 0
		return
	}
	var (
		e = math.Exp(-m.beta * d)
		g = math.Exp(-math.Pow(m.gamma*d, 4))
	)
	dst[0] = m.qdc*alpha*m.beta*e*(1-g) - 4*m.qdc*alpha*math.Pow(m.gamma, 4)*d*d*d*e*g
	dst[1] = m.qdc * e * (1 - g)
}

type sipm struct {
	qdc   float64
	gamma float64
	n     int
}

func (m sipm) init() []float64 { return []float64{0.5 * float64(m.n)} }

func (m sipm) eval(x []float64, t float64) float64 {
	d := t - x[0]
	return m.qdc / (m.gamma * math.Sqrt(2*math.Pi)) * math.Exp(-d*d/(2*m.gamma*m.gamma))
}

func (m sipm) grad(dst, x []float64, t float64) {
	d := t - x[0]
	dst[0] = m.qdc * d / (m.gamma * m.gamma * m.gamma * math.Sqrt(2*math.Pi)) * math.Exp(-d*d/(2*m.gamma*m.gamma))
}

// levmar minimizes the sum of squared residuals between the model and ys,
// sampled at t=0,1,...; it returns the best parameters and their sum of
// squared residuals.
func levmar(m model, ys []float64) ([]float64, float64) {
	var (
		x    = m.init()
		n    = len(ys)
		np   = len(x)
		jac  = mat.NewDense(n, np, nil)
		res  = mat.NewVecDense(n, nil)
		row  = make([]float64, np)
		xnew = make([]float64, np)
		lam  = 1e-3
	)

	ssr := func(x []float64) float64 {
		var sum float64
		for i, y := range ys {
			r := m.eval(x, float64(i)) - y
			sum += r * r
		}
		return sum
	}

	cur := ssr(x)
	for iter := 0; iter < fitMaxIter; iter++ {
		for i, y := range ys {
			t := float64(i)
			res.SetVec(i, m.eval(x, t)-y)
			m.grad(row, x, t)
			jac.SetRow(i, row)
		}

		var (
			jtj mat.Dense
			g   mat.VecDense
		)
		jtj.Mul(jac.T(), jac)
		g.MulVec(jac.T(), res)

		accepted := false
		for !accepted && lam < 1e12 {
			a := mat.DenseCopyOf(&jtj)
			for k := 0; k < np; k++ {
				d := jtj.At(k, k)
				if d == 0 {
					d = 1
				}
				a.Set(k, k, d*(1+lam))
			}

			var dx mat.VecDense
			if err := dx.SolveVec(a, &g); err != nil {
				if _, ok := err.(mat.Condition); !ok {
					lam *= 10
					continue
				}
			}
			for k := range xnew {
				xnew[k] = x[k] - dx.AtVec(k)
			}

			v := ssr(xnew)
			if math.IsNaN(v) || v >= cur {
				lam *= 10
				continue
			}
			accepted = true
			lam /= 10

			small := true
			for k := range x {
				if math.Abs(xnew[k]-x[k]) > fitXTol*(math.Abs(xnew[k])+fitXTol) {
					small = false
				}
			}
			copy(x, xnew)
			cur = v
			if small {
				return x, cur
			}
		}
		if !accepted {
			break
		}
	}
	return x, cur
}
