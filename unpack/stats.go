// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unpack

import "time"

// Stats holds the running statistics of an Assembler.
type Stats struct {
	Spills    int // number of spills read
	Hits      int // number of decoded hits
	RawEvents int // number of built raw events

	BadModules     int // module buffers dropped
	MissingBuffers int // gaps in the module sequence
	Truncated      int // spills with a truncated module buffer

	MaxModule uint32    // highest module number read
	FirstTime float64   // start time of the first raw event
	WallClock time.Time // last wall-clock record

	Counts map[uint32]int // number of hits per channel identifier
}

func newStats() Stats {
	return Stats{Counts: make(map[uint32]int)}
}

func (st Stats) clone() Stats {
	o := st
	o.Counts = make(map[uint32]int, len(st.Counts))
	for k, v := range st.Counts {
		o.Counts[k] = v
	}
	return o
}
