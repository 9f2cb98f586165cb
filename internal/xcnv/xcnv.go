// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert Pixie-16 raw events to/from LCIO.
//
// Each raw event is stored as an LCIO event made of generic object
// collections.
package xcnv // import "github.com/go-lpc/pixie/internal/xcnv"

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/lmd"
	"github.com/go-lpc/pixie/unpack"
	"go-hep.org/x/hep/lcio"
)

const (
	Detector = "PIXIE16"

	WindowCollection = "PIXIE_WINDOW"
	HitsCollection   = "PIXIE_HITS"
	TracesCollection = "PIXIE_TRACES"
)

// hit flags
const (
	flagForced = 1 << iota
	flagPileup
	flagSaturated
	flagVirtual
)

// number of fixed int32 words of a hit
const nhdr = 14

// SpillReader yields the words of successive spills.
type SpillReader interface {
	Next() ([]uint32, error)
}

// Spills2LCIO assembles the spills read from r and writes one LCIO event
// per raw event.
func Spills2LCIO(w *lcio.Writer, r SpillReader, asm *unpack.Assembler, run int32, msg *log.Logger) error {
	err := w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: run,
		Detector:  Detector,
		Descr:     fmt.Sprintf("event-width=%g", asm.Width()),
		Params: lcio.Params{
			Ints: map[string][]int32{
				"Run": {run},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("could not write run header: %w", err)
	}

	var ievt int32
	for ispill := 0; ; ispill++ {
		words, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("could not read spill %d: %w", ispill, err)
		}

		evts, err := asm.ReadSpill(words)
		if err != nil {
			return fmt.Errorf("could not assemble spill %d: %w", ispill, err)
		}
		msg.Printf("processing spill %d (events=%d)...", ispill, len(evts))

		var stamp int64
		if clock := asm.Stats().WallClock; !clock.IsZero() {
			stamp = clock.UnixNano()
		}
		for i := range evts {
			evt := NewEvent(run, ievt, stamp, evts[i])
			err = w.WriteEvent(&evt)
			if err != nil {
				return fmt.Errorf("could not write event %d: %w", ievt, err)
			}
			ievt++
		}
	}

	msg.Printf("processed %d events", ievt)
	return nil
}

// NewEvent converts a raw event into an LCIO event.
func NewEvent(run, num int32, stamp int64, raw unpack.RawEvent) lcio.Event {
	var (
		win = &lcio.GenericObject{
			Data: []lcio.GenericObjectData{
				{F64s: []float64{raw.Start, raw.Stop}},
			},
		}
		hits = &lcio.GenericObject{
			Data: make([]lcio.GenericObjectData, len(raw.Hits)),
		}
		trcs = &lcio.GenericObject{
			Data: make([]lcio.GenericObjectData, len(raw.Hits)),
		}
	)
	for i := range raw.Hits {
		hits.Data[i] = hitData(&raw.Hits[i])
		trcs.Data[i] = traceData(raw.Hits[i].Trace)
	}

	evt := lcio.Event{
		RunNumber:   run,
		EventNumber: num,
		TimeStamp:   stamp,
		Detector:    Detector,
	}
	evt.Add(WindowCollection, win)
	evt.Add(HitsCollection, hits)
	evt.Add(TracesCollection, trcs)
	return evt
}

func hitData(h *lmd.Hit) lcio.GenericObjectData {
	var flags int32
	if h.CfdForcedTrigger {
		flags |= flagForced
	}
	if h.Pileup {
		flags |= flagPileup
	}
	if h.Saturated {
		flags |= flagSaturated
	}
	if h.Virtual {
		flags |= flagVirtual
	}

	i32s := make([]int32, 0, nhdr+len(h.EnergySums)+len(h.QDCs))
	i32s = append(i32s,
		int32(h.ID()),
		int32(h.Chan), int32(h.Slot), int32(h.Crate), int32(h.Module),
		int32(h.EventTimeLo), int32(h.EventTimeHi),
		int32(h.CfdFractionalTime), int32(h.CfdTriggerSource),
		int32(h.Energy), flags,
		int32(h.ExternalTimeLo), int32(h.ExternalTimeHi),
		int32(len(h.EnergySums)),
	)
	for _, v := range h.EnergySums {
		i32s = append(i32s, int32(v))
	}
	for _, v := range h.QDCs {
		i32s = append(i32s, int32(v))
	}

	return lcio.GenericObjectData{
		I32s: i32s,
		F64s: []float64{h.Time(), h.CfdSize},
	}
}

func traceData(trace []uint16) lcio.GenericObjectData {
	i32s := make([]int32, len(trace))
	for i, v := range trace {
		i32s[i] = int32(v)
	}
	return lcio.GenericObjectData{I32s: i32s}
}

// RawEvent converts an LCIO event written by NewEvent back into a raw event.
func RawEvent(evt *lcio.Event) (unpack.RawEvent, error) {
	var raw unpack.RawEvent

	win, err := collection(evt, WindowCollection)
	if err != nil {
		return raw, err
	}
	hits, err := collection(evt, HitsCollection)
	if err != nil {
		return raw, err
	}
	trcs, err := collection(evt, TracesCollection)
	if err != nil {
		return raw, err
	}

	if len(win.Data) != 1 || len(win.Data[0].F64s) != 2 {
		return raw, fmt.Errorf("xcnv: event %d: invalid event window: %w", evt.EventNumber, pixie.ErrLengthMismatch)
	}
	if len(hits.Data) != len(trcs.Data) {
		return raw, fmt.Errorf(
			"xcnv: event %d: hits/traces mismatch (hits=%d, traces=%d): %w",
			evt.EventNumber, len(hits.Data), len(trcs.Data), pixie.ErrLengthMismatch,
		)
	}

	raw.Start = win.Data[0].F64s[0]
	raw.Stop = win.Data[0].F64s[1]
	raw.Hits = make([]lmd.Hit, len(hits.Data))
	for i := range hits.Data {
		err = hitFrom(&raw.Hits[i], hits.Data[i], trcs.Data[i])
		if err != nil {
			return raw, fmt.Errorf("xcnv: event %d: hit %d: %w", evt.EventNumber, i, err)
		}
	}
	return raw, nil
}

func collection(evt *lcio.Event, name string) (*lcio.GenericObject, error) {
	coll, ok := evt.Get(name).(*lcio.GenericObject)
	if !ok || coll == nil {
		return nil, fmt.Errorf(
			"xcnv: event %d: missing %s collection: %w",
			evt.EventNumber, name, pixie.ErrInvalidArgument,
		)
	}
	return coll, nil
}

func hitFrom(h *lmd.Hit, data, trace lcio.GenericObjectData) error {
	i32s := data.I32s
	if len(i32s) < nhdr || len(data.F64s) != 2 {
		return fmt.Errorf("invalid hit data (words=%d): %w", len(i32s), pixie.ErrLengthMismatch)
	}
	nsums := int(i32s[nhdr-1])
	if nsums < 0 || nhdr+nsums > len(i32s) {
		return fmt.Errorf("invalid number of energy sums %d: %w", nsums, pixie.ErrLengthMismatch)
	}

	flags := i32s[10]
	*h = lmd.Hit{
		Chan:              uint32(i32s[1]),
		Slot:              uint32(i32s[2]),
		Crate:             uint32(i32s[3]),
		Module:            uint32(i32s[4]),
		EventTimeLo:       uint32(i32s[5]),
		EventTimeHi:       uint32(i32s[6]),
		CfdFractionalTime: uint32(i32s[7]),
		CfdTriggerSource:  uint32(i32s[8]),
		CfdForcedTrigger:  flags&flagForced != 0,
		CfdSize:           data.F64s[1],
		Energy:            uint32(i32s[9]),
		Pileup:            flags&flagPileup != 0,
		Saturated:         flags&flagSaturated != 0,
		Virtual:           flags&flagVirtual != 0,
		ExternalTimeLo:    uint32(i32s[11]),
		ExternalTimeHi:    uint32(i32s[12]),
	}
	if nsums > 0 {
		h.EnergySums = u32sFrom(i32s[nhdr : nhdr+nsums])
	}
	if qdcs := i32s[nhdr+nsums:]; len(qdcs) > 0 {
		h.QDCs = u32sFrom(qdcs)
	}
	if len(trace.I32s) > 0 {
		h.Trace = make([]uint16, len(trace.I32s))
		for i, v := range trace.I32s {
			h.Trace[i] = uint16(v)
		}
	}

	if id := uint32(i32s[0]); id != h.ID() {
		return fmt.Errorf("invalid hit identifier (got=%d, want=%d): %w", id, h.ID(), pixie.ErrInvalidArgument)
	}
	return nil
}

func u32sFrom(vs []int32) []uint32 {
	o := make([]uint32, len(vs))
	for i, v := range vs {
		o[i] = uint32(v)
	}
	return o
}

// LCIO2Events reads the LCIO events from r and hands each decoded raw
// event to f.
func LCIO2Events(r *lcio.Reader, freq int, msg *log.Logger, f func(raw unpack.RawEvent) error) error {
	i := 0
	for r.Next() {
		if freq > 0 && i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		evt := r.Event()
		raw, err := RawEvent(&evt)
		if err != nil {
			return fmt.Errorf("could not convert LCIO event: %w", err)
		}
		err = f(raw)
		if err != nil {
			return err
		}
		i++
	}

	err := r.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not read LCIO file: %w", err)
	}
	return nil
}
