// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lmd

import (
	"errors"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/fwmask"
	"golang.org/x/xerrors"
)

const (
	hdrWords = 4 // number of words of the minimal record header

	// EmptyBufferLen is the length of a module buffer without any record.
	EmptyBufferLen = 2
)

// layout describes the optional blocks of a record, keyed by header length.
type layout struct {
	esums bool
	qdcs  bool
	ets   bool
}

var layouts = map[uint32]layout{
	4:  {},
	6:  {ets: true},
	8:  {esums: true},
	10: {esums: true, ets: true},
	12: {qdcs: true},
	14: {qdcs: true, ets: true},
	16: {esums: true, qdcs: true},
	18: {esums: true, qdcs: true, ets: true},
}

func headerLen(lay layout) uint32 {
	n := uint32(hdrWords)
	if lay.esums {
		n += numEnergySums
	}
	if lay.qdcs {
		n += numQDCs
	}
	if lay.ets {
		n += 2
	}
	return n
}

// masks holds the masks of one firmware/frequency layout.
// The CFD forced-trigger and trigger-source masks are zero when the
// layout has no such bits.
type masks struct {
	chn    fwmask.Mask
	slot   fwmask.Mask
	crate  fwmask.Mask
	hlen   fwmask.Mask
	elen   fwmask.Mask
	finish fwmask.Mask
	thi    fwmask.Mask
	cfd    fwmask.Mask
	forced fwmask.Mask
	trgsrc fwmask.Mask
	energy fwmask.Mask
	oor    fwmask.Mask
	oorw   int // index of the word holding the out-of-range flag
	tlen   fwmask.Mask
	sample fwmask.Mask
}

func newMasks(fw fwmask.Firmware, freq fwmask.Frequency) (masks, error) {
	var (
		m   masks
		err error
	)
	get := func(dst *fwmask.Mask, field fwmask.Field, optional bool) {
		if err != nil {
			return
		}
		v, e := fwmask.MaskFor(fw, freq, field)
		switch {
		case e == nil:
			*dst = v
		case optional && errors.Is(e, pixie.ErrUnsupportedConfiguration):
			*dst = fwmask.Mask{}
		default:
			err = e
		}
	}

	get(&m.chn, fwmask.Channel, false)
	get(&m.slot, fwmask.Slot, false)
	get(&m.crate, fwmask.Crate, false)
	get(&m.hlen, fwmask.HeaderLength, false)
	get(&m.elen, fwmask.EventLength, false)
	get(&m.finish, fwmask.FinishCode, false)
	get(&m.thi, fwmask.EventTimeHigh, false)
	get(&m.cfd, fwmask.CfdFractionalTime, false)
	get(&m.forced, fwmask.CfdForcedTrigger, true)
	get(&m.trgsrc, fwmask.CfdTriggerSource, true)
	get(&m.energy, fwmask.EventEnergy, false)
	get(&m.oor, fwmask.TraceOutOfRange, false)
	get(&m.tlen, fwmask.TraceLength, false)
	get(&m.sample, fwmask.TraceSample, false)
	m.oorw = fwmask.TraceOutOfRangeWord(fw)

	return m, err
}

// Decoder decodes list-mode records of a given firmware and frequency.
// A Decoder holds no state between calls and may be shared.
type Decoder struct {
	fw   fwmask.Firmware
	freq fwmask.Frequency
	cfd  float64
	m    masks
}

// NewDecoder creates a decoder for the given firmware and frequency.
func NewDecoder(fw fwmask.Firmware, freq fwmask.Frequency) (*Decoder, error) {
	m, err := newMasks(fw, freq)
	if err != nil {
		return nil, xerrors.Errorf("lmd: could not create decoder: %w", err)
	}
	cfd, err := fwmask.CfdSize(fw, freq)
	if err != nil {
		return nil, xerrors.Errorf("lmd: could not create decoder: %w", err)
	}
	return &Decoder{fw: fw, freq: freq, cfd: cfd, m: m}, nil
}

func (dec *Decoder) Firmware() fwmask.Firmware   { return dec.fw }
func (dec *Decoder) Frequency() fwmask.Frequency { return dec.freq }

// Decode decodes the back-to-back records held in words.
// Zero words between records are skipped.
// Decode returns the hits decoded before an error, together with that error.
func (dec *Decoder) Decode(words []uint32) ([]Hit, error) {
	if len(words) == 0 {
		return nil, xerrors.Errorf("lmd: could not decode buffer: %w", pixie.ErrEmptyBuffer)
	}

	var hits []Hit
	for i := 0; i < len(words); {
		if words[i] == 0 {
			i++
			continue
		}
		var hit Hit
		n, err := dec.decode(&hit, words[i:])
		if err != nil {
			return hits, xerrors.Errorf("lmd: could not decode record %d (word %d): %w", len(hits), i, err)
		}
		hits = append(hits, hit)
		i += n
	}

	return hits, nil
}

// DecodeBuffer decodes a module buffer: a two-word header holding the
// buffer length (header included) and the module number, followed by
// the records of that module.
func (dec *Decoder) DecodeBuffer(words []uint32) ([]Hit, error) {
	if len(words) < EmptyBufferLen {
		return nil, xerrors.Errorf("lmd: could not read module buffer header: %w", pixie.ErrTruncatedBuffer)
	}
	var (
		n   = words[0]
		mod = words[1]
	)
	switch {
	case n == 0:
		return nil, xerrors.Errorf("lmd: module %d: zero-length buffer: %w", mod, pixie.ErrEmptyBuffer)
	case n == EmptyBufferLen:
		return nil, nil
	case n < EmptyBufferLen || int64(n) > int64(len(words)):
		return nil, xerrors.Errorf(
			"lmd: module %d: invalid buffer length (got=%d, max=%d): %w",
			mod, n, len(words), pixie.ErrTruncatedBuffer,
		)
	}

	hits, err := dec.Decode(words[EmptyBufferLen:n])
	for i := range hits {
		hits[i].Module = mod
	}
	if err != nil {
		return hits, xerrors.Errorf("lmd: module %d: %w", mod, err)
	}
	return hits, nil
}

func (dec *Decoder) decode(hit *Hit, p []uint32) (int, error) {
	if len(p) < hdrWords {
		return 0, xerrors.Errorf(
			"could not read record header (got=%d words, want=%d): %w",
			len(p), hdrWords, pixie.ErrTruncatedBuffer,
		)
	}
	m := &dec.m

	w0 := p[0]
	hit.Chan = m.chn.Get(w0)
	hit.Slot = m.slot.Get(w0)
	hit.Crate = m.crate.Get(w0)
	hit.Pileup = m.finish.Get(w0) != 0
	var (
		hlen = m.hlen.Get(w0)
		elen = m.elen.Get(w0)
	)

	hit.EventTimeLo = p[1]

	w2 := p[2]
	hit.EventTimeHi = m.thi.Get(w2)
	hit.CfdFractionalTime = m.cfd.Get(w2)
	hit.CfdSize = dec.cfd
	if m.forced.Value != 0 {
		hit.CfdForcedTrigger = m.forced.Get(w2) != 0
	}
	if m.trgsrc.Value != 0 {
		hit.CfdTriggerSource = m.trgsrc.Get(w2)
	}

	w3 := p[3]
	hit.Energy = m.energy.Get(w3)
	hit.Saturated = m.oor.Get(p[m.oorw]) != 0
	tlen := m.tlen.Get(w3)

	lay, ok := layouts[hlen]
	if !ok {
		return 0, xerrors.Errorf("invalid header length %d: %w", hlen, pixie.ErrLengthMismatch)
	}
	if want := hlen + (tlen+1)/2; elen != want {
		return 0, xerrors.Errorf(
			"event length (%d) does not match header length (%d) and trace length (%d): %w",
			elen, hlen, tlen, pixie.ErrLengthMismatch,
		)
	}
	if int64(elen) > int64(len(p)) {
		return 0, xerrors.Errorf(
			"record needs %d words, only %d available: %w",
			elen, len(p), pixie.ErrTruncatedBuffer,
		)
	}

	cur := hdrWords
	if lay.esums {
		hit.EnergySums = make([]uint32, numEnergySums)
		cur += copy(hit.EnergySums, p[cur:cur+numEnergySums])
	}
	if lay.qdcs {
		hit.QDCs = make([]uint32, numQDCs)
		cur += copy(hit.QDCs, p[cur:cur+numQDCs])
	}
	if lay.ets {
		hit.ExternalTimeLo = p[cur]
		hit.ExternalTimeHi = p[cur+1]
		cur += 2
	}

	if tlen > 0 {
		hit.Trace = make([]uint16, tlen)
		dec.decodeTrace(hit.Trace, p[hlen:elen])
	}

	return int(elen), nil
}

func (dec *Decoder) decodeTrace(trace []uint16, p []uint32) {
	m := dec.m.sample
	for i := range trace {
		w := p[i/2]
		if i%2 == 1 {
			w >>= m.Shift
		}
		trace[i] = uint16(w & m.Value)
	}
}

// TimeInSamples returns the arrival time of the hit in ADC samples,
// applying the frequency-dependent clock multiplier and CFD trigger-source
// correction.
func (dec *Decoder) TimeInSamples(hit *Hit) float64 {
	t := float64(hit.FilterTime())
	if hit.CfdFractionalTime == 0 || hit.CfdForcedTrigger {
		return t
	}

	var (
		frac = float64(hit.CfdFractionalTime) / dec.cfd
		src  = float64(hit.CfdTriggerSource)
	)
	switch dec.freq {
	case fwmask.F250MHz:
		return 2*t + frac - src
	case fwmask.F500MHz:
		return 10*t + frac + src - 1
	default:
		return t + frac
	}
}

// TimeInNs returns the arrival time of the hit in nanoseconds.
func (dec *Decoder) TimeInNs(hit *Hit) float64 {
	return dec.TimeInSamples(hit) * 1e3 / float64(dec.freq)
}
