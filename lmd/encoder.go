// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lmd

import (
	"fmt"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/fwmask"
)

// Encoder encodes hits into list-mode records of a given firmware and
// frequency.
type Encoder struct {
	fw   fwmask.Firmware
	freq fwmask.Frequency
	m    masks
}

// NewEncoder creates an encoder for the given firmware and frequency.
func NewEncoder(fw fwmask.Firmware, freq fwmask.Frequency) (*Encoder, error) {
	m, err := newMasks(fw, freq)
	if err != nil {
		return nil, fmt.Errorf("lmd: could not create encoder (%v): %w", err, pixie.ErrInvalidArgument)
	}
	return &Encoder{fw: fw, freq: freq, m: m}, nil
}

// Encode encodes a hit into a list-mode record.
func (enc *Encoder) Encode(hit *Hit) ([]uint32, error) {
	return enc.Append(nil, hit)
}

// Append appends the list-mode record of hit to dst.
func (enc *Encoder) Append(dst []uint32, hit *Hit) ([]uint32, error) {
	if hit == nil || hit.isZero() {
		return dst, fmt.Errorf("lmd: could not encode empty hit: %w", pixie.ErrInvalidArgument)
	}

	lay := layout{
		esums: len(hit.EnergySums) != 0,
		qdcs:  len(hit.QDCs) != 0,
		ets:   hit.ExternalTimeLo != 0 || hit.ExternalTimeHi != 0,
	}
	if lay.esums && len(hit.EnergySums) != numEnergySums {
		return dst, fmt.Errorf(
			"lmd: invalid number of energy sums (got=%d, want=%d): %w",
			len(hit.EnergySums), numEnergySums, pixie.ErrInvalidArgument,
		)
	}
	if lay.qdcs && len(hit.QDCs) != numQDCs {
		return dst, fmt.Errorf(
			"lmd: invalid number of QDC sums (got=%d, want=%d): %w",
			len(hit.QDCs), numQDCs, pixie.ErrInvalidArgument,
		)
	}

	var (
		m    = &enc.m
		tlen = uint32(len(hit.Trace))
		hlen = headerLen(lay)
		elen = hlen + (tlen+1)/2
		w    [hdrWords]uint32
		err  error
	)

	put := func(word *uint32, mask fwmask.Mask, v uint32, name string) {
		if err != nil {
			return
		}
		if v > mask.Max() {
			err = fmt.Errorf(
				"lmd: %s value %d overflows its field (max=%d): %w",
				name, v, mask.Max(), pixie.ErrInvalidArgument,
			)
			return
		}
		*word = mask.Put(*word, v)
	}

	put(&w[0], m.chn, hit.Chan, "channel")
	put(&w[0], m.slot, hit.Slot, "slot")
	put(&w[0], m.crate, hit.Crate, "crate")
	put(&w[0], m.hlen, hlen, "header length")
	put(&w[0], m.elen, elen, "event length")
	put(&w[0], m.finish, b2u(hit.Pileup), "finish code")

	w[1] = hit.EventTimeLo

	put(&w[2], m.thi, hit.EventTimeHi, "event time high")
	put(&w[2], m.cfd, hit.CfdFractionalTime, "CFD fractional time")
	put(&w[2], m.forced, b2u(hit.CfdForcedTrigger), "CFD forced trigger")
	put(&w[2], m.trgsrc, hit.CfdTriggerSource, "CFD trigger source")

	put(&w[3], m.energy, hit.Energy, "energy")
	put(&w[3], m.tlen, tlen, "trace length")
	put(&w[m.oorw], m.oor, b2u(hit.Saturated), "trace out of range")

	if err != nil {
		return dst, err
	}

	dst = append(dst, w[:]...)
	if lay.esums {
		dst = append(dst, hit.EnergySums...)
	}
	if lay.qdcs {
		dst = append(dst, hit.QDCs...)
	}
	if lay.ets {
		dst = append(dst, hit.ExternalTimeLo, hit.ExternalTimeHi)
	}

	for i := 0; i < len(hit.Trace); i += 2 {
		v := uint32(hit.Trace[i]) & m.sample.Value
		if i+1 < len(hit.Trace) {
			v |= (uint32(hit.Trace[i+1]) & m.sample.Value) << m.sample.Shift
		}
		dst = append(dst, v)
	}

	return dst, nil
}

// EncodeBuffer encodes the hits of a module into a module buffer,
// prefixed with its length and module number.
func (enc *Encoder) EncodeBuffer(module uint32, hits []Hit) ([]uint32, error) {
	buf := make([]uint32, EmptyBufferLen, EmptyBufferLen+len(hits)*hdrWords)
	for i := range hits {
		var err error
		buf, err = enc.Append(buf, &hits[i])
		if err != nil {
			return nil, fmt.Errorf("lmd: could not encode hit %d of module %d: %w", i, module, err)
		}
	}
	buf[0] = uint32(len(buf))
	buf[1] = module
	return buf, nil
}

func b2u(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
