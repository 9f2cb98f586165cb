// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pixie

import "errors"

// Errors shared by the codec, the waveform metrics, the timing algorithms
// and the event assembler.
// Callers are expected to test for them with errors.Is.
var (
	// ErrUnsupportedConfiguration reports an unknown firmware, frequency
	// or field, or a firmware/frequency pair without a mask.
	ErrUnsupportedConfiguration = errors.New("pixie: unsupported configuration")

	ErrEmptyBuffer     = errors.New("pixie: empty buffer")
	ErrEmptyInput      = errors.New("pixie: empty input")
	ErrTruncatedBuffer = errors.New("pixie: truncated buffer")
	ErrIndexOutOfRange = errors.New("pixie: index out of range")
	ErrInvertedRange   = errors.New("pixie: inverted range")
	ErrInvalidArgument = errors.New("pixie: invalid argument")

	// ErrLengthMismatch reports a record whose header length, event length
	// and trace length are not consistent.
	ErrLengthMismatch = errors.New("pixie: length mismatch")
)
