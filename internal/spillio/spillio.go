// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spillio reads and writes files of Pixie-16 spills.
//
// A spill file is a stream of little-endian 32-bit words.
// Each spill is a sequence of module buffers closed by an end of spill
// record.
package spillio // import "github.com/go-lpc/pixie/internal/spillio"

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/internal/mmap"
	"github.com/go-lpc/pixie/lmd"
	"github.com/go-lpc/pixie/unpack"
)

// Reader reads spills from a stream of words.
type Reader struct {
	r   io.Reader
	buf []byte
	err error
	n   int // number of spills read
}

// NewReader returns a new Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   r,
		buf: make([]byte, 4),
	}
}

func (r *Reader) readU32() uint32 {
	if r.err != nil {
		return 0
	}
	_, r.err = io.ReadFull(r.r, r.buf)
	return binary.LittleEndian.Uint32(r.buf)
}

// Next returns the words of the next spill, end of spill record included.
// A trailing spill without end of spill record is returned as is.
// Next returns io.EOF when no spill is left.
func (r *Reader) Next() ([]uint32, error) {
	if r.err != nil {
		return nil, r.err
	}

	var spill []uint32
	for {
		w := r.readU32()
		if r.err != nil {
			if r.err != io.EOF {
				return nil, r.error("could not read buffer length", r.err)
			}
			if len(spill) == 0 {
				return nil, io.EOF
			}
			r.err = nil
			r.n++
			return spill, nil
		}
		if w == unpack.Delimiter {
			spill = append(spill, w)
			continue
		}

		n := w
		vsn := r.readU32()
		if r.err != nil {
			return nil, r.error("could not read module number", r.err)
		}
		if n < lmd.EmptyBufferLen || n > unpack.MaxBufferLen {
			return nil, r.error(
				fmt.Sprintf("invalid buffer length %d for module %d", n, vsn),
				pixie.ErrInvalidArgument,
			)
		}

		spill = append(spill, n, vsn)
		for i := uint32(lmd.EmptyBufferLen); i < n; i++ {
			spill = append(spill, r.readU32())
		}
		if r.err != nil {
			return nil, r.error(fmt.Sprintf("could not read buffer of module %d", vsn), r.err)
		}

		if vsn == unpack.EndOfSpill {
			r.n++
			return spill, nil
		}
	}
}

func (r *Reader) error(msg string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = fmt.Errorf("%w (%v)", pixie.ErrTruncatedBuffer, err)
	}
	r.err = fmt.Errorf("spillio: spill %d: %s: %w", r.n, msg, err)
	return r.err
}

// File is a memory-mapped spill file.
type File struct {
	*Reader
	h *mmap.Handle
}

// Open opens the named spill file for reading.
func Open(fname string) (*File, error) {
	h, err := mmap.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("spillio: could not open spill file: %w", err)
	}
	sr := io.NewSectionReader(h, 0, int64(h.Len()))
	return &File{
		Reader: NewReader(bufio.NewReader(sr)),
		h:      h,
	}, nil
}

// Close closes the spill file.
func (f *File) Close() error {
	return f.h.Close()
}

// Writer writes spills to a stream of words.
type Writer struct {
	w   *bufio.Writer
	buf []byte
	err error
}

// NewWriter returns a new Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:   bufio.NewWriter(w),
		buf: make([]byte, 4),
	}
}

func (w *Writer) writeU32(v uint32) {
	if w.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(w.buf, v)
	_, w.err = w.w.Write(w.buf)
}

// WriteBuffer writes a module buffer, length and module number included.
func (w *Writer) WriteBuffer(buf []uint32) error {
	if len(buf) < lmd.EmptyBufferLen || int(buf[0]) != len(buf) {
		return fmt.Errorf("spillio: invalid module buffer: %w", pixie.ErrLengthMismatch)
	}
	for _, v := range buf {
		w.writeU32(v)
	}
	if w.err != nil {
		return fmt.Errorf("spillio: could not write module buffer: %w", w.err)
	}
	return nil
}

// WriteClock writes a wall-clock record.
func (w *Writer) WriteClock(t time.Time) error {
	w.writeU32(4)
	w.writeU32(unpack.WallClock)
	w.writeU32(uint32(t.Unix()))
	w.writeU32(0)
	if w.err != nil {
		return fmt.Errorf("spillio: could not write wall-clock record: %w", w.err)
	}
	return nil
}

// EndSpill writes an end of spill record.
func (w *Writer) EndSpill() error {
	w.writeU32(lmd.EmptyBufferLen)
	w.writeU32(unpack.EndOfSpill)
	if w.err != nil {
		return fmt.Errorf("spillio: could not write end of spill: %w", w.err)
	}
	return nil
}

// WriteSpill writes the module buffers of a spill, followed by an end of
// spill record.
func (w *Writer) WriteSpill(bufs ...[]uint32) error {
	for _, buf := range bufs {
		err := w.WriteBuffer(buf)
		if err != nil {
			return err
		}
	}
	return w.EndSpill()
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	if w.err != nil {
		return fmt.Errorf("spillio: could not flush: %w", w.err)
	}
	return nil
}
