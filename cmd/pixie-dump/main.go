// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pixie-dump decodes and displays the raw events of Pixie-16 spill files.
//
// Usage: pixie-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> pixie-dump -fw R30474 -freq 250 ./testdata/run-042.dat
//	=== event 0 (spill 0) ===
//	window: [100.000, 162.000)
//	hits:   2
//	  id=   1 crate= 0 slot= 2 chan= 1 time=       100.000 energy=   100
//	  id=   3 crate= 0 slot= 2 chan= 3 time=       120.000 energy=   200
//	[...]
package main // import "github.com/go-lpc/pixie/cmd/pixie-dump"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/pixie/config"
	"github.com/go-lpc/pixie/internal/spillio"
	"github.com/go-lpc/pixie/lmd"
	"github.com/go-lpc/pixie/timing"
	"github.com/go-lpc/pixie/trace"
	"github.com/go-lpc/pixie/unpack"
)

func main() {
	log.SetPrefix("pixie-dump: ")
	log.SetFlags(0)

	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	var (
		fset = flag.NewFlagSet("pixie-dump", flag.ExitOnError)

		cfg    = fset.String("cfg", "", "path to YAML setup file")
		fw     = fset.String("fw", "", "firmware revision of modules not listed in the setup")
		freq   = fset.String("freq", "", "sampling frequency (MHz) of modules not listed in the setup")
		traces = fset.Bool("traces", false, "display traces")
		phase  = fset.Bool("phase", false, "compute the phase of hits with a trace")
		nmax   = fset.Int("n", -1, "maximum number of events to display (-1: all)")
	)

	fset.Usage = func() {
		fmt.Printf(`pixie-dump decodes and displays the raw events of Pixie-16 spill files.

Usage: pixie-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> pixie-dump -fw R30474 -freq 250 ./testdata/run-042.dat
 === event 0 (spill 0) ===
 window: [100.000, 162.000)
 hits:   2
   id=   1 crate= 0 slot= 2 chan= 1 time=       100.000 energy=   100
   id=   3 crate= 0 slot= 2 chan= 3 time=       120.000 energy=   200
 [...]

`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input spill file")
	}

	setup, err := config.Resolve(*cfg, *fw, *freq)
	if err != nil {
		log.Fatalf("could not load setup: %+v", err)
	}

	opts := dumpOpts{
		traces: *traces,
		phase:  *phase,
		nmax:   *nmax,
	}
	for _, fname := range fset.Args() {
		err := process(w, fname, setup, opts)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

type dumpOpts struct {
	traces bool
	phase  bool
	nmax   int
}

func process(w io.Writer, fname string, setup config.Setup, opts dumpOpts) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := spillio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	var (
		asm = unpack.New(append(
			setup.Options(),
			unpack.WithLogger(log.New(os.Stderr, "pixie-dump: ", 0)),
		)...)
		ievt = 0
	)

loop:
	for ispill := 0; ; ispill++ {
		words, err := f.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not read spill: %w", err)
		}

		evts, err := asm.ReadSpill(words)
		if err != nil {
			return fmt.Errorf("could not assemble spill %d: %w", ispill, err)
		}

		for i := range evts {
			if opts.nmax >= 0 && ievt >= opts.nmax {
				break loop
			}
			evt := &evts[i]
			fmt.Fprintf(wbuf, "=== event %d (spill %d) ===\n", ievt, ispill)
			fmt.Fprintf(wbuf, "window: [%.3f, %.3f)\n", evt.Start, evt.Stop)
			fmt.Fprintf(wbuf, "hits:   %d\n", len(evt.Hits))
			for j := range evt.Hits {
				dumpHit(wbuf, &evt.Hits[j], setup, opts)
			}
			ievt++
		}
	}

	st := asm.Stats()
	fmt.Fprintf(wbuf, "=== stats ===\n")
	fmt.Fprintf(wbuf, "spills:          % 10d\n", st.Spills)
	fmt.Fprintf(wbuf, "hits:            % 10d\n", st.Hits)
	fmt.Fprintf(wbuf, "raw events:      % 10d\n", st.RawEvents)
	fmt.Fprintf(wbuf, "bad modules:     % 10d\n", st.BadModules)
	fmt.Fprintf(wbuf, "missing buffers: % 10d\n", st.MissingBuffers)
	fmt.Fprintf(wbuf, "truncated:       % 10d\n", st.Truncated)

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close %q: %w", fname, err)
	}

	return nil
}

func dumpHit(w io.Writer, hit *lmd.Hit, setup config.Setup, opts dumpOpts) {
	fmt.Fprintf(w, "  id=%4d crate=%2d slot=%2d chan=%2d time=%14.3f energy=%6d%s\n",
		hit.ID(), hit.Crate, hit.Slot, hit.Chan, hit.Time(), hit.Energy, flags(hit),
	)
	if len(hit.Trace) == 0 {
		return
	}
	if opts.phase {
		res, err := phaseOf(hit, setup)
		switch err {
		case nil:
			fmt.Fprintf(w, "    phase=%.3f\n", res.Phase)
		default:
			fmt.Fprintf(w, "    phase=n/a (%v)\n", err)
		}
	}
	if opts.traces {
		fmt.Fprintf(w, "    trace=%v\n", hit.Trace)
	}
}

func phaseOf(hit *lmd.Hit, setup config.Setup) (timing.Result, error) {
	alg, p, err := setup.Timer(hit.ID())
	if err != nil {
		return timing.Result{}, err
	}
	w := trace.Float64s(hit.Trace)
	ana, err := trace.Analyze(w, setup.TraceWindow())
	if err != nil {
		return timing.Result{}, err
	}
	return timing.Measure(alg, w, ana, p)
}

func flags(hit *lmd.Hit) string {
	var o string
	if hit.Pileup {
		o += " pileup"
	}
	if hit.Saturated {
		o += " saturated"
	}
	if hit.CfdForcedTrigger {
		o += " forced"
	}
	return o
}
