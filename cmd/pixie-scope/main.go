// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pixie-scope plots the traces of a raw event of a Pixie-16 spill file.
//
// Usage: pixie-scope [OPTIONS] FILE
//
// Example:
//
//	$> pixie-scope -cfg setup.yaml -evt 42 -o evt-42.png ./run_042.dat
package main // import "github.com/go-lpc/pixie/cmd/pixie-scope"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"github.com/go-lpc/pixie/config"
	"github.com/go-lpc/pixie/internal/spillio"
	"github.com/go-lpc/pixie/lmd"
	"github.com/go-lpc/pixie/timing"
	"github.com/go-lpc/pixie/trace"
	"github.com/go-lpc/pixie/unpack"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var (
	msg = log.New(os.Stdout, "pixie-scope: ", 0)

	errNoEvent = errors.New("no such event")
	errNoTrace = errors.New("no trace to plot")
)

func main() {
	var (
		oname = flag.String("o", "scope.png", "path to output plot file")
		ievt  = flag.Int("evt", 0, "index of the raw event to plot")
		id    = flag.Int("id", -1, "identifier of the channel to plot (-1: all)")
		cfg   = flag.String("cfg", "", "path to YAML setup file")
		fw    = flag.String("fw", "", "firmware revision of modules not listed in the setup")
		freq  = flag.String("freq", "", "sampling frequency (MHz) of modules not listed in the setup")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: pixie-scope [OPTIONS] FILE

ex:
 $> pixie-scope -cfg setup.yaml -evt 42 -o evt-42.png ./run_042.dat

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input spill file")
	}

	setup, err := config.Resolve(*cfg, *fw, *freq)
	if err != nil {
		msg.Fatalf("could not load setup: %+v", err)
	}

	err = process(*oname, flag.Arg(0), setup, *ievt, *id)
	if err != nil {
		msg.Fatalf("could not plot event %d: %+v", *ievt, err)
	}
}

func process(oname, fname string, setup config.Setup, ievt, id int) error {
	evt, err := find(fname, setup, ievt)
	if err != nil {
		return err
	}

	hits := make([]lmd.Hit, 0, len(evt.Hits))
	for _, hit := range evt.Hits {
		if len(hit.Trace) == 0 {
			continue
		}
		if id >= 0 && hit.ID() != uint32(id) {
			continue
		}
		hits = append(hits, hit)
	}
	if len(hits) == 0 {
		return fmt.Errorf("event %d: %w", ievt, errNoTrace)
	}

	p, err := newPlot(hits, setup)
	if err != nil {
		return fmt.Errorf("could not create plot: %w", err)
	}
	p.Title.Text = fmt.Sprintf("Event %d", ievt)

	err = p.Save(20*vg.Centimeter, 12*vg.Centimeter, oname)
	if err != nil {
		return fmt.Errorf("could not save plot: %w", err)
	}
	return nil
}

// find returns the raw event of index ievt in the spill file.
func find(fname string, setup config.Setup, ievt int) (unpack.RawEvent, error) {
	f, err := spillio.Open(fname)
	if err != nil {
		return unpack.RawEvent{}, fmt.Errorf("could not open spill file: %w", err)
	}
	defer f.Close()

	var (
		asm = unpack.New(append(setup.Options(), unpack.WithLogger(msg))...)
		n   = 0
	)
	for {
		words, err := f.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return unpack.RawEvent{}, fmt.Errorf("could not read spill: %w", err)
		}
		evts, err := asm.ReadSpill(words)
		if err != nil {
			return unpack.RawEvent{}, fmt.Errorf("could not assemble spill: %w", err)
		}
		if ievt < n+len(evts) {
			return evts[ievt-n], nil
		}
		n += len(evts)
	}
	return unpack.RawEvent{}, fmt.Errorf("event %d (events=%d): %w", ievt, n, errNoEvent)
}

func newPlot(hits []lmd.Hit, setup config.Setup) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "ADC"
	p.Legend.Top = true

	for i := range hits {
		hit := &hits[i]
		w := trace.Float64s(hit.Trace)
		pts := make(plotter.XYs, len(w))
		for j, v := range w {
			pts[j].X = float64(j)
			pts[j].Y = v
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("could not create trace of channel %d: %w", hit.ID(), err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("id=%d", hit.ID()), line)

		ana, err := trace.Analyze(w, setup.TraceWindow())
		if err != nil {
			msg.Printf("could not analyze trace of channel %d: %+v", hit.ID(), err)
			continue
		}

		base := plotter.NewFunction(func(float64) float64 { return ana.Baseline })
		base.Color = line.Color
		base.Dashes = plotutil.Dashes(1)
		p.Add(base)

		alg, par, err := setup.Timer(hit.ID())
		if err != nil {
			return nil, err
		}
		if _, ok := alg.(timing.None); ok {
			continue
		}
		res, err := timing.Measure(alg, w, ana, par)
		if err != nil || math.IsNaN(res.Phase) {
			msg.Printf("could not compute phase of channel %d: %+v", hit.ID(), err)
			continue
		}
		phase, err := plotter.NewLine(plotter.XYs{
			{X: res.Phase, Y: ana.Baseline},
			{X: res.Phase, Y: ana.Max.Value},
		})
		if err != nil {
			return nil, fmt.Errorf("could not create phase marker of channel %d: %w", hit.ID(), err)
		}
		phase.Color = line.Color
		phase.Dashes = plotutil.Dashes(2)
		p.Add(phase)
	}

	return p, nil
}
