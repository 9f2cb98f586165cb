// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lmd

import (
	"encoding/binary"
	"fmt"

	"github.com/go-lpc/pixie"
)

const wordSize = 4

// Words converts a little-endian byte stream into 32-bit words.
func Words(p []byte) ([]uint32, error) {
	if len(p)%wordSize != 0 {
		return nil, fmt.Errorf(
			"lmd: byte stream is not word aligned (len=%d): %w",
			len(p), pixie.ErrTruncatedBuffer,
		)
	}
	ws := make([]uint32, len(p)/wordSize)
	for i := range ws {
		ws[i] = binary.LittleEndian.Uint32(p[i*wordSize:])
	}
	return ws, nil
}

// AppendBytes appends the little-endian representation of words to dst.
func AppendBytes(dst []byte, words []uint32) []byte {
	for _, w := range words {
		dst = binary.LittleEndian.AppendUint32(dst, w)
	}
	return dst
}

// Bytes returns the little-endian representation of words.
func Bytes(words []uint32) []byte {
	return AppendBytes(make([]byte, 0, len(words)*wordSize), words)
}
