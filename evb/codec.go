// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evb

import (
	"fmt"
	"io"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/lmd"
	"github.com/go-lpc/pixie/unpack"
)

// EncodeEvent writes a raw event in the body format of the /events output.
func EncodeEvent(w io.Writer, evt unpack.RawEvent) error {
	enc := tdaq.NewEncoder(w)
	enc.WriteF64(evt.Start)
	enc.WriteF64(evt.Stop)
	enc.WriteU32(uint32(len(evt.Hits)))
	for i := range evt.Hits {
		hit := &evt.Hits[i]
		enc.WriteU32(hit.Chan)
		enc.WriteU32(hit.Slot)
		enc.WriteU32(hit.Crate)
		enc.WriteU32(hit.Module)
		enc.WriteU32(hit.EventTimeLo)
		enc.WriteU32(hit.EventTimeHi)
		enc.WriteU32(hit.CfdFractionalTime)
		enc.WriteBool(hit.CfdForcedTrigger)
		enc.WriteU32(hit.CfdTriggerSource)
		enc.WriteF64(hit.CfdSize)
		enc.WriteU32(hit.Energy)
		enc.WriteBool(hit.Pileup)
		enc.WriteBool(hit.Saturated)
		enc.WriteBool(hit.Virtual)
		writeU32s(enc, hit.EnergySums)
		writeU32s(enc, hit.QDCs)
		enc.WriteU32(hit.ExternalTimeLo)
		enc.WriteU32(hit.ExternalTimeHi)
		enc.WriteU32(uint32(len(hit.Trace)))
		for _, v := range hit.Trace {
			enc.WriteU16(v)
		}
	}
	if err := enc.Err(); err != nil {
		return fmt.Errorf("evb: could not encode raw event: %w", err)
	}
	return nil
}

func writeU32s(enc *tdaq.Encoder, vs []uint32) {
	enc.WriteU32(uint32(len(vs)))
	for _, v := range vs {
		enc.WriteU32(v)
	}
}

// DecodeEvent reads a raw event written by EncodeEvent.
func DecodeEvent(r io.Reader) (unpack.RawEvent, error) {
	var (
		dec = tdaq.NewDecoder(r)
		evt unpack.RawEvent
	)
	evt.Start = dec.ReadF64()
	evt.Stop = dec.ReadF64()
	n := dec.ReadU32()
	if err := dec.Err(); err != nil {
		return evt, fmt.Errorf("evb: could not decode raw event header: %w", err)
	}
	if n > unpack.MaxBufferLen {
		return evt, fmt.Errorf("evb: invalid number of hits %d: %w", n, pixie.ErrInvalidArgument)
	}
	if n > 0 {
		evt.Hits = make([]lmd.Hit, n)
	}
	for i := range evt.Hits {
		hit := &evt.Hits[i]
		hit.Chan = dec.ReadU32()
		hit.Slot = dec.ReadU32()
		hit.Crate = dec.ReadU32()
		hit.Module = dec.ReadU32()
		hit.EventTimeLo = dec.ReadU32()
		hit.EventTimeHi = dec.ReadU32()
		hit.CfdFractionalTime = dec.ReadU32()
		hit.CfdForcedTrigger = dec.ReadBool()
		hit.CfdTriggerSource = dec.ReadU32()
		hit.CfdSize = dec.ReadF64()
		hit.Energy = dec.ReadU32()
		hit.Pileup = dec.ReadBool()
		hit.Saturated = dec.ReadBool()
		hit.Virtual = dec.ReadBool()
		var err error
		hit.EnergySums, err = readU32s(dec)
		if err != nil {
			return evt, fmt.Errorf("evb: hit %d: invalid energy sums: %w", i, err)
		}
		hit.QDCs, err = readU32s(dec)
		if err != nil {
			return evt, fmt.Errorf("evb: hit %d: invalid QDC sums: %w", i, err)
		}
		hit.ExternalTimeLo = dec.ReadU32()
		hit.ExternalTimeHi = dec.ReadU32()
		ntrace := dec.ReadU32()
		if ntrace > 2*unpack.MaxBufferLen {
			return evt, fmt.Errorf("evb: hit %d: invalid trace length %d: %w", i, ntrace, pixie.ErrInvalidArgument)
		}
		if ntrace > 0 && dec.Err() == nil {
			hit.Trace = make([]uint16, ntrace)
			for j := range hit.Trace {
				hit.Trace[j] = dec.ReadU16()
			}
		}
		if err := dec.Err(); err != nil {
			return evt, fmt.Errorf("evb: could not decode hit %d: %w", i, err)
		}
	}
	return evt, nil
}

func readU32s(dec *tdaq.Decoder) ([]uint32, error) {
	n := dec.ReadU32()
	switch {
	case dec.Err() != nil:
		return nil, dec.Err()
	case n > unpack.MaxBufferLen:
		return nil, fmt.Errorf("invalid length %d: %w", n, pixie.ErrInvalidArgument)
	case n == 0:
		return nil, nil
	}
	vs := make([]uint32, n)
	for i := range vs {
		vs[i] = dec.ReadU32()
	}
	return vs, dec.Err()
}
