// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie-evb starts a TDAQ event builder for Pixie-16 spills.
//
// Spills are read on the /spills input and raw events are published on
// the /events output. Assembler metrics are served over HTTP for
// Prometheus.
//
// The acquisition setup is read from a YAML file (-cfg) or from the
// conditions database (-db), using the last recorded setup unless -setup
// is given.
package main // import "github.com/go-lpc/pixie/cmd/pixie-evb"

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/pixie/conddb"
	"github.com/go-lpc/pixie/config"
	"github.com/go-lpc/pixie/evb"
	"github.com/go-lpc/pixie/internal/monitor"
)

func main() {
	var (
		cfg     = flag.String("cfg", "", "path to YAML setup file")
		fw      = flag.String("fw", "", "firmware revision of modules not listed in the setup")
		freq    = flag.String("freq", "", "sampling frequency (MHz) of modules not listed in the setup")
		dbname  = flag.String("db", "", "name of the conditions database (empty: disabled)")
		sname   = flag.String("setup", "", "name of the setup in the conditions database (empty: last one)")
		metrics = flag.String("metrics", ":9100", "address of the Prometheus metrics endpoint (empty: disabled)")
	)

	cmd := flags.New()

	msg := log.New(os.Stdout, "pixie-evb: ", 0)
	setup, err := loadSetup(*dbname, *sname, *cfg, *fw, *freq)
	if err != nil {
		msg.Fatalf("could not load setup: %+v", err)
	}

	mon := monitor.New()
	if *metrics != "" {
		go func() {
			err := http.ListenAndServe(*metrics, mon.Handler())
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				msg.Printf("could not serve metrics: %+v", err)
			}
		}()
	}

	dev := evb.NewServer(setup, mon, msg)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.InputHandle("/spills", dev.Spills)
	srv.OutputHandle("/events", dev.Events)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func loadSetup(dbname, name, fname, fw, freq string) (config.Setup, error) {
	if dbname == "" {
		return config.Resolve(fname, fw, freq)
	}

	db, err := conddb.Open(dbname)
	if err != nil {
		return config.Setup{}, err
	}
	defer db.Close()

	ctx := context.Background()
	if name == "" {
		name, err = db.LastSetup(ctx)
		if err != nil {
			return config.Setup{}, err
		}
	}

	return db.Setup(ctx, name)
}
