// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/fwmask"
	"github.com/go-lpc/pixie/timing"
	"github.com/go-lpc/pixie/trace"
	"github.com/go-lpc/pixie/unpack"
	"github.com/google/go-cmp/cmp"
)

const refSetup = `
event-width: 100
default:
  firmware: R30474
  frequency: 250
modules:
  - {vsn: 2, firmware: "34688", frequency: 500}
  - {vsn: 3, firmware: r29432, frequency: 100MHz}
window:
  baseline-lo: 0
  baseline-hi: 60
  delay: 90
  pre: 4
  post: 12
timing:
  algorithm: polycfd
  p0: 0.5
channels:
  - {id: 17, algorithm: fit, p0: 0.2659, p1: 0.2081}
  - {id: 18, algorithm: le, p0: 1000}
`

func TestDecode(t *testing.T) {
	setup, err := Decode(strings.NewReader(refSetup))
	if err != nil {
		t.Fatalf("could not decode setup: %+v", err)
	}

	want := Setup{
		EventWidth:   100,
		MaxSpillSize: 1000000,
		MaxModules:   14,
		Default:      Module{Firmware: fwmask.R30474, Frequency: fwmask.F250MHz},
		Modules: []Module{
			{VSN: 2, Firmware: fwmask.R34688, Frequency: fwmask.F500MHz},
			{VSN: 3, Firmware: fwmask.R29432, Frequency: fwmask.F100MHz},
		},
		Window: Window{BaselineLo: 0, BaselineHi: 60, Delay: 90, Pre: 4, Post: 12},
		Timing: Timing{Algorithm: "polycfd", P0: 0.5},
		Channels: []Channel{
			{ID: 17, Timing: Timing{Algorithm: "fit", P0: 0.2659, P1: 0.2081}},
			{ID: 18, Timing: Timing{Algorithm: "le", P0: 1000}},
		},
	}
	if diff := cmp.Diff(want, setup); diff != "" {
		t.Fatalf("invalid setup: (-want +got)\n%s", diff)
	}

	if diff := cmp.Diff(trace.Window{BaselineHi: 60, Delay: 90, Pre: 4, Post: 12}, setup.TraceWindow()); diff != "" {
		t.Fatalf("invalid trace window: (-want +got)\n%s", diff)
	}
}

func TestDecodeEmpty(t *testing.T) {
	setup, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("could not decode empty setup: %+v", err)
	}
	if diff := cmp.Diff(Default(), setup); diff != "" {
		t.Fatalf("invalid setup: (-want +got)\n%s", diff)
	}
	if diff := cmp.Diff(trace.DefaultWindow, setup.TraceWindow()); diff != "" {
		t.Fatalf("invalid trace window: (-want +got)\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "unknown-firmware",
			doc:  "default: {firmware: R1, frequency: 250}",
			want: pixie.ErrUnsupportedConfiguration,
		},
		{
			name: "unknown-frequency",
			doc:  "default: {firmware: R30474, frequency: 42}",
			want: pixie.ErrUnsupportedConfiguration,
		},
		{
			name: "unsupported-pair",
			doc:  "modules: [{vsn: 1, firmware: R30474}]",
			want: pixie.ErrUnsupportedConfiguration,
		},
		{
			name: "duplicate-module",
			doc: `modules:
  - {vsn: 1, firmware: R30474, frequency: 250}
  - {vsn: 1, firmware: R30474, frequency: 500}`,
			want: pixie.ErrInvalidArgument,
		},
		{
			name: "module-out-of-range",
			doc:  "modules: [{vsn: 14, firmware: R30474, frequency: 250}]",
			want: pixie.ErrIndexOutOfRange,
		},
		{
			name: "event-width",
			doc:  "event-width: 0",
			want: pixie.ErrInvalidArgument,
		},
		{
			name: "negative-event-width",
			doc:  "event-width: -1",
			want: pixie.ErrInvalidArgument,
		},
		{
			name: "nan-event-width",
			doc:  "event-width: .nan",
			want: pixie.ErrInvalidArgument,
		},
		{
			name: "inf-event-width",
			doc:  "event-width: .inf",
			want: pixie.ErrInvalidArgument,
		},
		{
			name: "max-spill-size",
			doc:  "max-spill-size: -1",
			want: pixie.ErrInvalidArgument,
		},
		{
			name: "max-modules",
			doc:  "max-modules: 0",
			want: pixie.ErrInvalidArgument,
		},
		{
			name: "inverted-baseline",
			doc:  "window: {baseline-lo: 70, baseline-hi: 0, delay: 80, pre: 5, post: 10}",
			want: pixie.ErrInvertedRange,
		},
		{
			name: "short-baseline",
			doc:  "window: {baseline-lo: 0, baseline-hi: 20, delay: 80, pre: 5, post: 10}",
			want: pixie.ErrInvalidArgument,
		},
		{
			name: "waveform-window",
			doc:  "window: {baseline-lo: 0, baseline-hi: 70, delay: 80, pre: 5, post: 0}",
			want: pixie.ErrInvalidArgument,
		},
		{
			name: "timing",
			doc:  "timing: {algorithm: magic}",
			want: pixie.ErrUnsupportedConfiguration,
		},
		{
			name: "channel-timing",
			doc:  "channels: [{id: 1, algorithm: magic}]",
			want: pixie.ErrUnsupportedConfiguration,
		},
		{
			name: "duplicate-channel",
			doc:  "channels: [{id: 1, algorithm: cfd}, {id: 1, algorithm: le}]",
			want: pixie.ErrInvalidArgument,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.doc))
			if !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
		})
	}
}

func TestDecodeUnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("event-witdh: 10"))
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !strings.Contains(err.Error(), "event-witdh") {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	tmp, err := os.MkdirTemp("", "pixie-config-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	want, err := Decode(strings.NewReader(refSetup))
	if err != nil {
		t.Fatalf("could not decode setup: %+v", err)
	}

	fname := filepath.Join(tmp, "setup.yaml")
	err = want.Save(fname)
	if err != nil {
		t.Fatalf("could not save setup: %+v", err)
	}

	got, err := Load(fname)
	if err != nil {
		t.Fatalf("could not load setup: %+v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round-trip failed: (-want +got)\n%s", diff)
	}

	_, err = Load(filepath.Join(tmp, "not-there.yaml"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestEncodeDefault(t *testing.T) {
	var buf bytes.Buffer
	err := Default().Encode(&buf)
	if err != nil {
		t.Fatalf("could not encode default setup: %+v", err)
	}
	if strings.Contains(buf.String(), "default:") {
		t.Fatalf("unset default module should be omitted:\n%s", buf.String())
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("could not decode default setup: %+v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Fatalf("round-trip failed: (-want +got)\n%s", diff)
	}
}

func TestTimer(t *testing.T) {
	setup, err := Decode(strings.NewReader(refSetup))
	if err != nil {
		t.Fatalf("could not decode setup: %+v", err)
	}

	for _, tc := range []struct {
		id   uint32
		name string
		p    timing.Params
	}{
		{0, "polycfd", timing.Params{P0: 0.5}},
		{17, "fit", timing.Params{P0: 0.2659, P1: 0.2081}},
		{18, "le", timing.Params{P0: 1000}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			alg, p, err := setup.Timer(tc.id)
			if err != nil {
				t.Fatalf("could not create timer: %+v", err)
			}
			if got, want := alg.Name(), tc.name; got != want {
				t.Fatalf("invalid algorithm: got=%q, want=%q", got, want)
			}
			if got, want := p, tc.p; got != want {
				t.Fatalf("invalid params: got=%+v, want=%+v", got, want)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	setup, err := Decode(strings.NewReader(refSetup))
	if err != nil {
		t.Fatalf("could not decode setup: %+v", err)
	}

	opts := append(setup.Options(), unpack.WithLogger(log.New(io.Discard, "", 0)))
	asm := unpack.New(opts...)
	if got, want := asm.Width(), 100.0; got != want {
		t.Fatalf("invalid event width: got=%v, want=%v", got, want)
	}

	for _, tc := range []struct {
		vsn  uint32
		fw   fwmask.Firmware
		freq fwmask.Frequency
	}{
		{0, fwmask.R30474, fwmask.F250MHz},
		{2, fwmask.R34688, fwmask.F500MHz},
		{3, fwmask.R29432, fwmask.F100MHz},
	} {
		dec, err := asm.Decoder(tc.vsn)
		if err != nil {
			t.Fatalf("could not get decoder of module %d: %+v", tc.vsn, err)
		}
		if dec.Firmware() != tc.fw || dec.Frequency() != tc.freq {
			t.Fatalf(
				"invalid decoder for module %d: got=(%v, %v), want=(%v, %v)",
				tc.vsn, dec.Firmware(), dec.Frequency(), tc.fw, tc.freq,
			)
		}
	}
}

func TestResolve(t *testing.T) {
	tmp, err := os.MkdirTemp("", "pixie-config-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	fname := filepath.Join(tmp, "setup.yaml")
	err = os.WriteFile(fname, []byte(refSetup), 0644)
	if err != nil {
		t.Fatalf("could not write setup: %+v", err)
	}

	for _, tc := range []struct {
		name  string
		fname string
		fw    string
		freq  string
		want  Module
		err   error
	}{
		{
			name: "default",
		},
		{
			name: "flags",
			fw:   "R29432",
			freq: "100",
			want: Module{Firmware: fwmask.R29432, Frequency: fwmask.F100MHz},
		},
		{
			name:  "file",
			fname: fname,
			want:  Module{Firmware: fwmask.R30474, Frequency: fwmask.F250MHz},
		},
		{
			name:  "file-and-flags",
			fname: fname,
			freq:  "500",
			want:  Module{Firmware: fwmask.R30474, Frequency: fwmask.F500MHz},
		},
		{
			name: "invalid-firmware",
			fw:   "R0",
			freq: "250",
			err:  pixie.ErrUnsupportedConfiguration,
		},
		{
			name: "invalid-frequency",
			fw:   "R30474",
			freq: "42",
			err:  pixie.ErrUnsupportedConfiguration,
		},
		{
			name:  "missing-file",
			fname: filepath.Join(tmp, "not-there.yaml"),
			err:   os.ErrNotExist,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			setup, err := Resolve(tc.fname, tc.fw, tc.freq)
			switch {
			case tc.err != nil:
				if !errors.Is(err, tc.err) {
					t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.err)
				}
				return
			case err != nil:
				t.Fatalf("could not resolve setup: %+v", err)
			}
			if got, want := setup.Default, tc.want; got != want {
				t.Fatalf("invalid default module: got=%+v, want=%+v", got, want)
			}
		})
	}
}
