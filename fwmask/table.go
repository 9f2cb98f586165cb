// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fwmask

type row struct {
	field Field
	fws   []Firmware
	freqs []Frequency
	mask  Mask
}

var (
	allFreqs = Frequencies

	fwOld  = []Firmware{R17562, R20466, R27361}
	fwMid  = []Firmware{R29432, R30474, R30980, R30981}
	fwNew  = []Firmware{R34688, R35207}
	fwCfd  = []Firmware{R30474, R30980, R30981, R34688}
	fwLong = []Firmware{R29432, R30474, R30980, R30981, R34688, R35207}
)

func cat(fws ...[]Firmware) []Firmware {
	var o []Firmware
	for _, v := range fws {
		o = append(o, v...)
	}
	return o
}

// rows describes the list-mode layouts.
// A (firmware, frequency, field) triplet not listed here has no mask.
var rows = []row{
	{Channel, Firmwares, allFreqs, Mask{0x0000000F, 0}},
	{Slot, Firmwares, allFreqs, Mask{0x000000F0, 4}},
	{Crate, Firmwares, allFreqs, Mask{0x00000F00, 8}},
	{HeaderLength, Firmwares, allFreqs, Mask{0x0001F000, 12}},
	{FinishCode, Firmwares, allFreqs, Mask{0x80000000, 31}},
	{EventTimeHigh, Firmwares, allFreqs, Mask{0x0000FFFF, 0}},
	{TraceSample, Firmwares, allFreqs, Mask{0x0000FFFF, 16}},

	{EventLength, fwOld, allFreqs, Mask{0x3FFE0000, 17}},
	{EventLength, fwLong, allFreqs, Mask{0x7FFE0000, 17}},

	{CfdFractionalTime, []Firmware{R17562, R29432}, []Frequency{F100MHz}, Mask{0xFFFF0000, 16}},
	{CfdFractionalTime, fwCfd, []Frequency{F100MHz}, Mask{0x7FFF0000, 16}},
	{CfdFractionalTime, []Firmware{R20466}, []Frequency{F250MHz}, Mask{0xFFFF0000, 16}},
	{CfdFractionalTime, []Firmware{R27361, R29432}, []Frequency{F250MHz}, Mask{0x7FFF0000, 16}},
	{CfdFractionalTime, fwCfd, []Frequency{F250MHz}, Mask{0x3FFF0000, 16}},
	{CfdFractionalTime, fwLong, []Frequency{F500MHz}, Mask{0x1FFF0000, 16}},

	{CfdForcedTrigger, fwCfd, []Frequency{F100MHz, F250MHz}, Mask{0x80000000, 31}},

	{CfdTriggerSource, []Firmware{R27361, R29432}, []Frequency{F250MHz}, Mask{0x80000000, 31}},
	{CfdTriggerSource, fwCfd, []Frequency{F250MHz}, Mask{0x40000000, 30}},
	{CfdTriggerSource, fwLong, []Frequency{F500MHz}, Mask{0xE0000000, 29}},

	{EventEnergy, fwMid, allFreqs, Mask{0x00007FFF, 0}},
	{EventEnergy, cat(fwOld, fwNew), allFreqs, Mask{0x0000FFFF, 0}},

	{TraceOutOfRange, fwOld, allFreqs, Mask{0x40000000, 30}},
	{TraceOutOfRange, fwMid, allFreqs, Mask{0x00008000, 15}},
	{TraceOutOfRange, fwNew, allFreqs, Mask{0x80000000, 31}},

	{TraceLength, cat(fwOld, fwMid), allFreqs, Mask{0xFFFF0000, 16}},
	{TraceLength, fwNew, allFreqs, Mask{0x7FFF0000, 16}},
}

type cfdRow struct {
	fws  []Firmware
	freq Frequency
	size float64
}

var cfdRows = []cfdRow{
	{Firmwares, F500MHz, 8192},
	{[]Firmware{R17562, R29432}, F100MHz, 65536},
	{fwCfd, F100MHz, 32768},
	{[]Firmware{R20466}, F250MHz, 65536},
	{[]Firmware{R27361, R29432}, F250MHz, 32768},
	{fwCfd, F250MHz, 16384},
}

func newTable() *Table {
	tbl := &Table{
		masks: make(map[key]Mask),
		cfds:  make(map[key]float64),
	}
	for _, r := range rows {
		for _, fw := range r.fws {
			for _, freq := range r.freqs {
				k := key{fw, freq, r.field}
				if _, dup := tbl.masks[k]; dup {
					panic("fwmask: duplicate mask for " + fw.String() + " " + freq.String() + " " + r.field.String())
				}
				tbl.masks[k] = r.mask
			}
		}
	}
	for _, r := range cfdRows {
		for _, fw := range r.fws {
			tbl.cfds[key{fw: fw, freq: r.freq}] = r.size
		}
	}
	return tbl
}
