// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lmd decodes and encodes Pixie-16 list-mode data records.
package lmd // import "github.com/go-lpc/pixie/lmd"

import (
	"math"
	"sort"
)

const (
	numEnergySums = 4
	numQDCs       = 8
)

// Hit is a single channel trigger recorded by a Pixie-16 module.
type Hit struct {
	Chan   uint32 // channel number
	Slot   uint32 // slot of the module in its crate
	Crate  uint32 // crate number
	Module uint32 // module number, as assigned by the readout

	EventTimeLo uint32 // low 32 bits of the 48-bit filter timestamp
	EventTimeHi uint32 // high 16 bits of the 48-bit filter timestamp

	CfdFractionalTime uint32
	CfdForcedTrigger  bool
	CfdTriggerSource  uint32
	// CfdSize is the full scale of CfdFractionalTime.
	// It is set by the decoder and ignored by the encoder.
	CfdSize float64

	Energy    uint32 // on-board computed energy
	Pileup    bool   // finish code
	Saturated bool   // trace out of range
	Virtual   bool   // channel built in software

	EnergySums []uint32 // trailing, leading, gap and baseline sums
	QDCs       []uint32

	ExternalTimeLo uint32
	ExternalTimeHi uint32

	Trace []uint16
}

// ID returns the unique identifier of the channel that recorded the hit.
func (h *Hit) ID() uint32 {
	return h.Crate*208 + h.Module*16 + h.Chan
}

// FilterTime returns the 48-bit timestamp of the hit, in filter clock ticks.
func (h *Hit) FilterTime() uint64 {
	return uint64(h.EventTimeHi)<<32 | uint64(h.EventTimeLo)
}

// ExternalTime returns the 48-bit external timestamp of the hit.
func (h *Hit) ExternalTime() uint64 {
	return uint64(h.ExternalTimeHi)<<32 | uint64(h.ExternalTimeLo)
}

// Time returns the arrival time of the hit, in filter clock ticks,
// with the on-board CFD fractional time folded in.
func (h *Hit) Time() float64 {
	t := float64(h.FilterTime())
	if h.CfdFractionalTime == 0 || h.CfdForcedTrigger || h.CfdSize == 0 {
		return t
	}
	return t + float64(h.CfdFractionalTime)/h.CfdSize
}

// Baseline returns the baseline computed on-board, stored as an IEEE-754
// float in the last energy sum.
func (h *Hit) Baseline() (float64, bool) {
	if len(h.EnergySums) != numEnergySums {
		return 0, false
	}
	return float64(math.Float32frombits(h.EnergySums[numEnergySums-1])), true
}

func (h *Hit) isZero() bool {
	return h.Chan == 0 && h.Slot == 0 && h.Crate == 0 && h.Module == 0 &&
		h.EventTimeLo == 0 && h.EventTimeHi == 0 &&
		h.CfdFractionalTime == 0 && !h.CfdForcedTrigger && h.CfdTriggerSource == 0 &&
		h.Energy == 0 && !h.Pileup && !h.Saturated && !h.Virtual &&
		len(h.EnergySums) == 0 && len(h.QDCs) == 0 &&
		h.ExternalTimeLo == 0 && h.ExternalTimeHi == 0 &&
		len(h.Trace) == 0
}

// Less orders hits by time and then by identifier.
func Less(a, b *Hit) bool {
	ta, tb := a.Time(), b.Time()
	if ta != tb {
		return ta < tb
	}
	return a.ID() < b.ID()
}

// Equal returns whether both hits share the same identifier and time.
func Equal(a, b *Hit) bool {
	return a.ID() == b.ID() && a.Time() == b.Time()
}

// Sort sorts hits by time and identifier, keeping the original order of
// equal hits.
func Sort(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return Less(&hits[i], &hits[j])
	})
}
