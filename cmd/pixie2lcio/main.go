// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie2lcio converts a Pixie-16 spill file to an LCIO one.
package main // import "github.com/go-lpc/pixie/cmd/pixie2lcio"

import (
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/pixie/config"
	"github.com/go-lpc/pixie/internal/spillio"
	"github.com/go-lpc/pixie/internal/xcnv"
	"github.com/go-lpc/pixie/unpack"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "pixie2lcio: ", 0)
)

func main() {
	var (
		oname = flag.String("o", "out.lcio", "path to output LCIO file")
		compr = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		run   = flag.Int("run", -1, "run number (-1: infer from input file name)")
		cfg   = flag.String("cfg", "", "path to YAML setup file")
		fw    = flag.String("fw", "", "firmware revision of modules not listed in the setup")
		freq  = flag.String("freq", "", "sampling frequency (MHz) of modules not listed in the setup")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: pixie2lcio [OPTIONS] run_042.dat

ex:
 $> pixie2lcio -o out.lcio -lvl=9 -fw R30474 -freq 250 ./run_042.dat

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input spill file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	setup, err := config.Resolve(*cfg, *fw, *freq)
	if err != nil {
		msg.Fatalf("could not load setup: %+v", err)
	}

	err = process(*oname, *compr, flag.Arg(0), int32(*run), setup)
	if err != nil {
		msg.Fatalf("could not convert spill file: %+v", err)
	}
}

func process(oname string, lvl int, fname string, run int32, setup config.Setup) error {
	f, err := spillio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open spill file: %w", err)
	}
	defer f.Close()

	if run < 0 {
		run, err = runNbrFrom(fname)
		if err != nil {
			return fmt.Errorf("could not infer run from %q: %w", fname, err)
		}
	}

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	asm := unpack.New(append(setup.Options(), unpack.WithLogger(msg))...)
	err = xcnv.Spills2LCIO(w, f, asm, run, msg)
	if err != nil {
		return fmt.Errorf("could not convert spills to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}

func runNbrFrom(fname string) (int32, error) {
	var (
		name = filepath.Base(fname)
		run  int32
	)
	_, err := fmt.Sscanf(name, "run_%d.dat", &run)
	return run, err
}
