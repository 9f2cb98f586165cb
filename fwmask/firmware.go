// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fwmask

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-lpc/pixie"
)

// Firmware identifies a Pixie-16 firmware revision.
type Firmware uint8

const (
	Unknown Firmware = iota
	R17562
	R20466
	R27361
	R29432
	R30474
	R30980
	R30981
	R34688
	R35207
)

// Firmwares lists all the known firmware revisions, oldest first.
var Firmwares = []Firmware{
	R17562, R20466, R27361, R29432, R30474, R30980, R30981, R34688, R35207,
}

func (fw Firmware) String() string {
	switch fw {
	case R17562:
		return "R17562"
	case R20466:
		return "R20466"
	case R27361:
		return "R27361"
	case R29432:
		return "R29432"
	case R30474:
		return "R30474"
	case R30980:
		return "R30980"
	case R30981:
		return "R30981"
	case R34688:
		return "R34688"
	case R35207:
		return "R35207"
	}
	return "UNKNOWN"
}

// ParseFirmware converts a firmware version string into a Firmware.
// The string is a decimal revision number, optionally prefixed by "R" or "r".
// Revisions map onto the firmware whose layout they share.
func ParseFirmware(s string) (Firmware, error) {
	str := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "R"), "r")
	v, err := strconv.ParseUint(str, 10, 32)
	if err != nil {
		return Unknown, fmt.Errorf("fwmask: could not parse firmware %q: %w", s, pixie.ErrUnsupportedConfiguration)
	}

	switch {
	case 17562 <= v && v < 20466:
		return R17562, nil
	case 20466 <= v && v < 27361:
		return R20466, nil
	case 27361 <= v && v < 29432:
		return R27361, nil
	case 29432 <= v && v < 30474:
		return R29432, nil
	case 30474 <= v && v < 30980:
		return R30474, nil
	case v == 30980:
		return R30980, nil
	case 30981 <= v && v < 34688:
		return R30981, nil
	case v == 35207:
		return R35207, nil
	case 34688 <= v && v <= 42950:
		return R34688, nil
	}

	return Unknown, fmt.Errorf("fwmask: unknown firmware revision %d: %w", v, pixie.ErrUnsupportedConfiguration)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (fw *Firmware) UnmarshalText(p []byte) error {
	v, err := ParseFirmware(string(p))
	if err != nil {
		return err
	}
	*fw = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (fw Firmware) MarshalText() ([]byte, error) {
	if fw == Unknown {
		return nil, fmt.Errorf("fwmask: can not marshal unknown firmware: %w", pixie.ErrUnsupportedConfiguration)
	}
	return []byte(fw.String()), nil
}

// Frequency is the sampling frequency of a module, in MHz.
type Frequency uint32

const (
	F100MHz Frequency = 100
	F250MHz Frequency = 250
	F500MHz Frequency = 500
)

// Frequencies lists all the supported sampling frequencies.
var Frequencies = []Frequency{F100MHz, F250MHz, F500MHz}

// Valid returns whether freq is a supported sampling frequency.
func (freq Frequency) Valid() bool {
	switch freq {
	case F100MHz, F250MHz, F500MHz:
		return true
	}
	return false
}

func (freq Frequency) String() string {
	return strconv.Itoa(int(freq)) + "MHz"
}

// ParseFrequency parses a sampling frequency such as "250" or "250MHz".
func ParseFrequency(s string) (Frequency, error) {
	str := strings.TrimSuffix(strings.TrimSpace(s), "MHz")
	v, err := strconv.ParseUint(str, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("fwmask: could not parse frequency %q: %w", s, pixie.ErrUnsupportedConfiguration)
	}
	freq := Frequency(v)
	if !freq.Valid() {
		return 0, fmt.Errorf("fwmask: unsupported frequency %d MHz: %w", v, pixie.ErrUnsupportedConfiguration)
	}
	return freq, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (freq *Frequency) UnmarshalText(p []byte) error {
	v, err := ParseFrequency(string(p))
	if err != nil {
		return err
	}
	*freq = v
	return nil
}
