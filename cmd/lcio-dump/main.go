// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// lcio-dump decodes and displays Pixie-16 raw events embedded in LCIO files.
//
// Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> lcio-dump ./testdata/run_042.lcio
//	=== event 0 ===
//	window: [100.000, 162.000)
//	hits:   2
//	  id=   1 crate= 0 slot= 2 chan= 1 time=       100.000 energy=   100 trace=0
//	  id=   3 crate= 0 slot= 2 chan= 3 time=       120.000 energy=   200 trace=0
//	[...]
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/pixie/internal/xcnv"
	"github.com/go-lpc/pixie/unpack"
	"go-hep.org/x/hep/lcio"
)

const usage = `lcio-dump decodes and displays Pixie-16 raw events embedded in LCIO files.

Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> lcio-dump ./testdata/run_042.lcio
 === event 0 ===
 window: [100.000, 162.000)
 hits:   2
   id=   1 crate= 0 slot= 2 chan= 1 time=       100.000 energy=   100 trace=0
   id=   3 crate= 0 slot= 2 chan= 3 time=       120.000 energy=   200 trace=0
 [...]

`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("lcio-dump: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("lcio", flag.ExitOnError)

		nmax = fset.Int("n", -1, "maximum number of events to display (-1: all)")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input LCIO file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *nmax)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

var errDone = errors.New("lcio-dump: done")

func process(w io.Writer, fname string, nmax int) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	var (
		msg  = log.New(io.Discard, "", 0)
		ievt = 0
	)
	err = xcnv.LCIO2Events(r, 0, msg, func(evt unpack.RawEvent) error {
		if nmax >= 0 && ievt >= nmax {
			return errDone
		}
		fmt.Fprintf(wbuf, "=== event %d ===\n", ievt)
		fmt.Fprintf(wbuf, "window: [%.3f, %.3f)\n", evt.Start, evt.Stop)
		fmt.Fprintf(wbuf, "hits:   %d\n", len(evt.Hits))
		for i := range evt.Hits {
			hit := &evt.Hits[i]
			fmt.Fprintf(wbuf, "  id=%4d crate=%2d slot=%2d chan=%2d time=%14.3f energy=%6d trace=%d\n",
				hit.ID(), hit.Crate, hit.Slot, hit.Chan, hit.Time(), hit.Energy, len(hit.Trace),
			)
		}
		ievt++
		return nil
	})
	if err != nil && !errors.Is(err, errDone) {
		return fmt.Errorf("could not decode raw events: %w", err)
	}

	return nil
}
