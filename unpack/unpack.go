// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package unpack assembles the hits of a Pixie-16 spill into raw events.
//
// A spill is a sequence of module buffers, each one made of a two-word
// header (buffer length and module number) followed by list-mode records.
// Hits are queued per module and grouped in time windows of a configurable
// width into RawEvents.
package unpack // import "github.com/go-lpc/pixie/unpack"

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/fwmask"
	"github.com/go-lpc/pixie/lmd"
	"golang.org/x/xerrors"
)

// Spill framing.
const (
	// Delimiter is a filler word that may appear between module buffers.
	Delimiter = 0xffffffff

	// EndOfSpill is the module number of the record closing a spill.
	EndOfSpill = 9999

	// WallClock is the module number of the record holding the wall-clock
	// time of a spill, in seconds since the Unix epoch.
	WallClock = 1000

	// MaxBufferLen is the maximum length of a module buffer, in words.
	MaxBufferLen = 131072
)

// Module describes the digitizer behind a module number.
type Module struct {
	Firmware  fwmask.Firmware
	Frequency fwmask.Frequency
}

// State is the state of an Assembler.
type State uint8

const (
	Idle State = iota
	Reading
	Flushing
)

func (st State) String() string {
	switch st {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Flushing:
		return "flushing"
	}
	return fmt.Sprintf("State(%d)", uint8(st))
}

type config struct {
	width   float64 // event width, in filter clock ticks
	maxSize int     // maximum spill size, in words
	maxMods uint32
	mods    map[uint32]Module
	def     Module
	msg     *log.Logger
}

func newConfig() config {
	return config{
		width:   62,
		maxSize: 1000000,
		maxMods: 14,
		msg:     log.New(os.Stdout, "unpack: ", 0),
	}
}

// Option configures an Assembler.
type Option func(*config)

// WithEventWidth sets the width of the event window, in filter clock ticks.
func WithEventWidth(ticks float64) Option {
	return func(cfg *config) {
		cfg.width = ticks
	}
}

// WithMaxSpillSize sets the maximum number of words of a spill.
func WithMaxSpillSize(words int) Option {
	return func(cfg *config) {
		cfg.maxSize = words
	}
}

// WithMaxModules sets the number of module numbers accepted in a spill.
func WithMaxModules(n uint32) Option {
	return func(cfg *config) {
		cfg.maxMods = n
	}
}

// WithModules declares the digitizer of each module number.
func WithModules(mods map[uint32]Module) Option {
	return func(cfg *config) {
		cfg.mods = make(map[uint32]Module, len(mods))
		for k, v := range mods {
			cfg.mods[k] = v
		}
	}
}

// WithDefaultModule declares the digitizer of modules not listed
// with WithModules.
func WithDefaultModule(fw fwmask.Firmware, freq fwmask.Frequency) Option {
	return func(cfg *config) {
		cfg.def = Module{Firmware: fw, Frequency: freq}
	}
}

// WithLogger sets the logger used to report recovered errors.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// Assembler groups the hits of successive spills into raw events.
// An Assembler owns its module queues and is not safe for concurrent use.
type Assembler struct {
	cfg   config
	msg   *log.Logger
	state State

	decs   map[uint32]*lmd.Decoder
	queues map[uint32][]lmd.Hit
	bad    map[uint32]bool // modules dropped for the current spill

	stats Stats
	first bool  // whether FirstTime has been recorded
	err   error // invalid configuration
}

// New creates a new event assembler.
func New(opts ...Option) *Assembler {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	asm := &Assembler{
		cfg:    cfg,
		msg:    cfg.msg,
		decs:   make(map[uint32]*lmd.Decoder),
		queues: make(map[uint32][]lmd.Hit),
		bad:    make(map[uint32]bool),
		stats:  newStats(),
	}
	if w := cfg.width; !(w > 0) || math.IsInf(w, 0) {
		asm.err = xerrors.Errorf("unpack: invalid event width %v: %w", w, pixie.ErrInvalidArgument)
	}
	return asm
}

// Err returns the configuration error of the assembler, if any.
func (asm *Assembler) Err() error { return asm.err }

// State returns the current state of the assembler.
func (asm *Assembler) State() State { return asm.state }

// Width returns the width of the event window, in filter clock ticks.
func (asm *Assembler) Width() float64 { return asm.cfg.width }

// Decoder returns the decoder used for the given module number.
func (asm *Assembler) Decoder(vsn uint32) (*lmd.Decoder, error) {
	if dec, ok := asm.decs[vsn]; ok {
		return dec, nil
	}
	mod, ok := asm.cfg.mods[vsn]
	if !ok {
		mod = asm.cfg.def
	}
	dec, err := lmd.NewDecoder(mod.Firmware, mod.Frequency)
	if err != nil {
		return nil, xerrors.Errorf("unpack: module %d: %w", vsn, err)
	}
	asm.decs[vsn] = dec
	return dec, nil
}

// ReadSpill decodes the module buffers of a spill and returns the raw
// events built from their hits.
//
// Malformed module buffers are logged and skipped: the rest of the
// spill is still processed.
func (asm *Assembler) ReadSpill(words []uint32) ([]RawEvent, error) {
	switch {
	case asm.err != nil:
		return nil, asm.err
	case len(words) == 0:
		return nil, xerrors.Errorf("unpack: could not read spill: %w", pixie.ErrEmptyBuffer)
	case len(words) > asm.cfg.maxSize:
		return nil, xerrors.Errorf(
			"unpack: spill too big (words=%d, max=%d): %w",
			len(words), asm.cfg.maxSize, pixie.ErrInvalidArgument,
		)
	}

	asm.state = Reading
	asm.stats.Spills++
	for k := range asm.bad {
		delete(asm.bad, k)
	}

	var (
		end  = false
		next = uint32(0) // expected module number
	)
loop:
	for i := 0; i < len(words); {
		if words[i] == Delimiter {
			i++
			continue
		}
		if len(words)-i < lmd.EmptyBufferLen {
			asm.msg.Printf("spill %d: truncated module header at word %d", asm.stats.Spills, i)
			asm.stats.Truncated++
			break
		}
		var (
			n   = words[i]
			vsn = words[i+1]
		)
		if n < lmd.EmptyBufferLen || n > MaxBufferLen || int64(n) > int64(len(words)-i) {
			asm.msg.Printf(
				"spill %d: invalid buffer length %d for module %d at word %d (remaining=%d)",
				asm.stats.Spills, n, vsn, i, len(words)-i,
			)
			asm.stats.Truncated++
			break
		}
		buf := words[i : i+int(n)]
		i += int(n)

		switch {
		case vsn == EndOfSpill:
			end = true
			break loop
		case vsn == WallClock:
			if len(buf) >= 4 {
				asm.stats.WallClock = time.Unix(int64(buf[2]), 0).UTC()
			}
			continue
		case vsn >= asm.cfg.maxMods:
			asm.msg.Printf("spill %d: invalid module number %d (max=%d)", asm.stats.Spills, vsn, asm.cfg.maxMods)
			asm.stats.BadModules++
			continue
		}

		if vsn != next {
			asm.msg.Printf("spill %d: missing buffer (module=%d, want=%d)", asm.stats.Spills, vsn, next)
			asm.stats.MissingBuffers++
		}
		next = vsn + 1
		if vsn > asm.stats.MaxModule {
			asm.stats.MaxModule = vsn
		}

		if asm.bad[vsn] {
			continue
		}
		asm.readBuffer(vsn, buf)
	}

	if !end {
		asm.msg.Printf("spill %d: no end of spill record", asm.stats.Spills)
	}

	return asm.Flush(), nil
}

func (asm *Assembler) readBuffer(vsn uint32, buf []uint32) {
	dec, err := asm.Decoder(vsn)
	if err != nil {
		asm.drop(vsn, err)
		return
	}

	hits, err := dec.DecodeBuffer(buf)
	if err != nil {
		asm.drop(vsn, err)
		if errors.Is(err, pixie.ErrLengthMismatch) {
			return
		}
	}
	if len(hits) == 0 {
		return
	}

	asm.stats.Hits += len(hits)
	for i := range hits {
		asm.stats.Counts[hits[i].ID()]++
	}

	q := append(asm.queues[vsn], hits...)
	lmd.Sort(q)
	asm.queues[vsn] = q
}

func (asm *Assembler) drop(vsn uint32, err error) {
	asm.msg.Printf("spill %d: dropping module %d: %+v", asm.stats.Spills, vsn, err)
	asm.stats.BadModules++
	asm.bad[vsn] = true
}

// Stats returns a snapshot of the running statistics of the assembler.
func (asm *Assembler) Stats() Stats {
	return asm.stats.clone()
}
