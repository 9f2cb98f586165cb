// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unpack

import (
	"math"
	"sort"

	"github.com/go-lpc/pixie/lmd"
)

// RawEvent is a group of hits falling in the same time window.
type RawEvent struct {
	Start float64   // start of the window, in filter clock ticks
	Stop  float64   // end of the window (excluded)
	Hits  []lmd.Hit // hits sorted by time and identifier
}

// First returns the time of the earliest hit of the event.
func (evt *RawEvent) First() float64 {
	if len(evt.Hits) == 0 {
		return math.NaN()
	}
	return evt.Hits[0].Time()
}

// Last returns the time of the latest hit of the event.
func (evt *RawEvent) Last() float64 {
	if len(evt.Hits) == 0 {
		return math.NaN()
	}
	return evt.Hits[len(evt.Hits)-1].Time()
}

// Flush builds raw events out of all the queued hits.
//
// The earliest queued hit opens a window of the assembler's width:
// every queued hit with a time before the end of the window is moved
// into the event. This is repeated until all the queues are empty.
func (asm *Assembler) Flush() []RawEvent {
	asm.state = Flushing
	defer func() { asm.state = Idle }()

	vsns := make([]uint32, 0, len(asm.queues))
	for vsn, q := range asm.queues {
		if len(q) == 0 {
			delete(asm.queues, vsn)
			continue
		}
		vsns = append(vsns, vsn)
	}
	sort.Slice(vsns, func(i, j int) bool { return vsns[i] < vsns[j] })

	var evts []RawEvent
	for {
		evt, ok := asm.buildRawEvent(vsns)
		if !ok {
			break
		}
		evts = append(evts, evt)
	}

	for _, vsn := range vsns {
		delete(asm.queues, vsn)
	}
	return evts
}

func (asm *Assembler) buildRawEvent(vsns []uint32) (RawEvent, bool) {
	var (
		start = math.Inf(+1)
		found = false
	)
	for _, vsn := range vsns {
		q := asm.queues[vsn]
		if len(q) == 0 {
			continue
		}
		if t := q[0].Time(); t < start {
			start = t
			found = true
		}
	}
	if !found {
		return RawEvent{}, false
	}

	evt := RawEvent{
		Start: start,
		Stop:  start + asm.cfg.width,
	}
	for _, vsn := range vsns {
		q := asm.queues[vsn]
		n := 0
		for n < len(q) && q[n].Time() < evt.Stop {
			n++
		}
		if n == 0 {
			continue
		}
		evt.Hits = append(evt.Hits, q[:n]...)
		asm.queues[vsn] = q[n:]
	}
	if len(evt.Hits) == 0 {
		return RawEvent{}, false
	}
	lmd.Sort(evt.Hits)

	if !asm.first {
		asm.first = true
		asm.stats.FirstTime = start
	}
	asm.stats.RawEvents++

	return evt, true
}
