// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package evb implements a TDAQ event builder for Pixie-16 spills.
//
// The server reads spills on its /spills input, assembles them into raw
// events and publishes those on its /events output.
package evb // import "github.com/go-lpc/pixie/evb"

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/pixie/config"
	"github.com/go-lpc/pixie/internal/monitor"
	"github.com/go-lpc/pixie/lmd"
	"github.com/go-lpc/pixie/unpack"
	"golang.org/x/xerrors"
)

// Server is a TDAQ event builder.
type Server struct {
	msg *log.Logger
	mon *monitor.Monitor

	mu    sync.Mutex
	setup config.Setup
	asm   *unpack.Assembler
	evts  chan unpack.RawEvent
	n     int // number of events sent
}

// NewServer creates an event builder for the given setup.
// Recovered decoding errors are reported to msg and the running
// statistics to mon.
func NewServer(setup config.Setup, mon *monitor.Monitor, msg *log.Logger) *Server {
	srv := &Server{
		msg:   msg,
		mon:   mon,
		setup: setup,
	}
	srv.reset()
	return srv
}

func (srv *Server) reset() {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.asm = unpack.New(append(srv.setup.Options(), unpack.WithLogger(srv.msg))...)
	srv.evts = make(chan unpack.RawEvent, 1024)
	srv.n = 0
}

// Stats returns the statistics of the current assembler.
func (srv *Server) Stats() unpack.Stats {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.asm.Stats()
}

// OnConfig replaces the setup with the YAML document carried by the
// request, if any.
func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	if len(req.Body) == 0 {
		return nil
	}

	setup, err := config.Decode(bytes.NewReader(req.Body))
	if err != nil {
		ctx.Msg.Errorf("could not decode setup: %+v", err)
		return xerrors.Errorf("could not decode setup: %w", err)
	}

	srv.mu.Lock()
	srv.setup = setup
	srv.mu.Unlock()
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	srv.reset()
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.reset()
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	st := srv.Stats()
	srv.mu.Lock()
	n := srv.n
	srv.mu.Unlock()
	ctx.Msg.Debugf(
		"received /stop command... -> spills=%d, hits=%d, events=%d (sent=%d)",
		st.Spills, st.Hits, st.RawEvents, n,
	)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

// Spills handles the /spills input: each frame holds the little-endian
// words of a spill.
func (srv *Server) Spills(ctx tdaq.Context, src tdaq.Frame) error {
	words, err := lmd.Words(src.Body)
	if err != nil {
		ctx.Msg.Errorf("could not read spill words: %+v", err)
		return xerrors.Errorf("could not read spill words: %w", err)
	}

	srv.mu.Lock()
	var (
		start = time.Now()
		evts  []unpack.RawEvent
		ch    = srv.evts
	)
	evts, err = srv.asm.ReadSpill(words)
	st := srv.asm.Stats()
	srv.mu.Unlock()

	if srv.mon != nil {
		srv.mon.Observe(time.Since(start))
		srv.mon.Update(st)
	}
	if err != nil {
		ctx.Msg.Errorf("could not assemble spill: %+v", err)
		return xerrors.Errorf("could not assemble spill: %w", err)
	}

	for _, evt := range evts {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case ch <- evt:
		}
	}
	return nil
}

// Events handles the /events output: each frame holds one raw event,
// encoded with EncodeEvent.
func (srv *Server) Events(ctx tdaq.Context, dst *tdaq.Frame) error {
	srv.mu.Lock()
	ch := srv.evts
	srv.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case evt := <-ch:
		buf := new(bytes.Buffer)
		err := EncodeEvent(buf, evt)
		if err != nil {
			return fmt.Errorf("could not encode event: %w", err)
		}
		dst.Body = buf.Bytes()

		srv.mu.Lock()
		srv.n++
		srv.mu.Unlock()
	}
	return nil
}
