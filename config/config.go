// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the setup of a Pixie-16 acquisition from YAML.
//
// A setup file looks like:
//
//	event-width: 62
//	default:
//	  firmware: R30474
//	  frequency: 250
//	modules:
//	  - {vsn: 2, firmware: R34688, frequency: 500}
//	window:
//	  baseline-lo: 0
//	  baseline-hi: 70
//	  delay: 80
//	  pre: 5
//	  post: 10
//	timing:
//	  algorithm: polycfd
//	  p0: 0.5
//	channels:
//	  - {id: 17, algorithm: fit, p0: 0.2659, p1: 0.2081}
package config // import "github.com/go-lpc/pixie/config"

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/fwmask"
	"github.com/go-lpc/pixie/timing"
	"github.com/go-lpc/pixie/trace"
	"github.com/go-lpc/pixie/unpack"
	"gopkg.in/yaml.v3"
)

// Setup describes the digitizers of an acquisition and how their hits
// are assembled and timed.
type Setup struct {
	EventWidth   float64 `yaml:"event-width"`
	MaxSpillSize int     `yaml:"max-spill-size"`
	MaxModules   uint32  `yaml:"max-modules"`

	Default Module   `yaml:"default,omitempty"`
	Modules []Module `yaml:"modules,omitempty"`

	Window   Window    `yaml:"window"`
	Timing   Timing    `yaml:"timing"`
	Channels []Channel `yaml:"channels,omitempty"`
}

// Module declares the firmware and frequency of a module number.
type Module struct {
	VSN       uint32           `yaml:"vsn,omitempty"`
	Firmware  fwmask.Firmware  `yaml:"firmware"`
	Frequency fwmask.Frequency `yaml:"frequency"`
}

// Window is the YAML form of trace.Window.
type Window struct {
	BaselineLo int `yaml:"baseline-lo"`
	BaselineHi int `yaml:"baseline-hi"`
	Delay      int `yaml:"delay"`
	Pre        int `yaml:"pre"`
	Post       int `yaml:"post"`
}

// Timing selects a timing algorithm and its parameters.
type Timing struct {
	Algorithm string  `yaml:"algorithm"`
	P0        float64 `yaml:"p0,omitempty"`
	P1        float64 `yaml:"p1,omitempty"`
}

// Channel overrides the timing of a channel, by identifier.
type Channel struct {
	ID     uint32 `yaml:"id"`
	Timing `yaml:",inline"`
}

// Default returns the default setup.
// The default module is left unset.
func Default() Setup {
	win := trace.DefaultWindow
	return Setup{
		EventWidth:   62,
		MaxSpillSize: 1000000,
		MaxModules:   14,
		Window: Window{
			BaselineLo: win.BaselineLo,
			BaselineHi: win.BaselineHi,
			Delay:      win.Delay,
			Pre:        win.Pre,
			Post:       win.Post,
		},
		Timing: Timing{Algorithm: "none"},
	}
}

// Load loads a setup from the named YAML file.
func Load(fname string) (Setup, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Setup{}, fmt.Errorf("config: could not open setup file: %w", err)
	}
	defer f.Close()

	setup, err := Decode(f)
	if err != nil {
		return setup, fmt.Errorf("config: could not load %q: %w", fname, err)
	}
	return setup, nil
}

// Decode decodes and validates a YAML setup.
// Fields absent from the document keep their default value.
func Decode(r io.Reader) (Setup, error) {
	setup := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&setup)
	if err != nil && !errors.Is(err, io.EOF) {
		return setup, fmt.Errorf("config: could not decode setup: %w", err)
	}

	err = setup.Validate()
	if err != nil {
		return setup, err
	}
	return setup, nil
}

// Resolve loads the named setup file, or the default setup when fname is
// empty. The firmware and frequency, when not empty, replace the default
// module of the setup.
func Resolve(fname, fw, freq string) (Setup, error) {
	setup := Default()
	if fname != "" {
		v, err := Load(fname)
		if err != nil {
			return v, err
		}
		setup = v
	}

	if fw != "" {
		v, err := fwmask.ParseFirmware(fw)
		if err != nil {
			return setup, fmt.Errorf("config: invalid default firmware: %w", err)
		}
		setup.Default.Firmware = v
	}
	if freq != "" {
		v, err := fwmask.ParseFrequency(freq)
		if err != nil {
			return setup, fmt.Errorf("config: invalid default frequency: %w", err)
		}
		setup.Default.Frequency = v
	}

	err := setup.Validate()
	if err != nil {
		return setup, err
	}
	return setup, nil
}

// Save writes the setup to the named YAML file.
func (setup Setup) Save(fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("config: could not create setup file: %w", err)
	}
	defer f.Close()

	err = setup.Encode(f)
	if err != nil {
		return err
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("config: could not close setup file: %w", err)
	}
	return nil
}

// Encode writes the setup as YAML.
func (setup Setup) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(setup)
	if err != nil {
		return fmt.Errorf("config: could not encode setup: %w", err)
	}
	err = enc.Close()
	if err != nil {
		return fmt.Errorf("config: could not flush setup: %w", err)
	}
	return nil
}

// Validate checks the consistency of the setup.
func (setup Setup) Validate() error {
	switch {
	case !(setup.EventWidth > 0) || math.IsInf(setup.EventWidth, 0):
		return fmt.Errorf("config: invalid event width %v: %w", setup.EventWidth, pixie.ErrInvalidArgument)
	case setup.MaxSpillSize <= 0:
		return fmt.Errorf("config: invalid maximum spill size %d: %w", setup.MaxSpillSize, pixie.ErrInvalidArgument)
	case setup.MaxModules == 0:
		return fmt.Errorf("config: invalid maximum number of modules: %w", pixie.ErrInvalidArgument)
	}

	if setup.Default != (Module{}) {
		err := checkModule(setup.Default)
		if err != nil {
			return fmt.Errorf("config: invalid default module: %w", err)
		}
	}

	seen := make(map[uint32]bool, len(setup.Modules))
	for _, mod := range setup.Modules {
		if seen[mod.VSN] {
			return fmt.Errorf("config: duplicate module %d: %w", mod.VSN, pixie.ErrInvalidArgument)
		}
		seen[mod.VSN] = true
		if mod.VSN >= setup.MaxModules {
			return fmt.Errorf(
				"config: module %d out of range (max=%d): %w",
				mod.VSN, setup.MaxModules, pixie.ErrIndexOutOfRange,
			)
		}
		err := checkModule(mod)
		if err != nil {
			return fmt.Errorf("config: invalid module %d: %w", mod.VSN, err)
		}
	}

	win := setup.Window
	switch {
	case win.BaselineHi < win.BaselineLo:
		return fmt.Errorf(
			"config: invalid baseline region [%d, %d): %w",
			win.BaselineLo, win.BaselineHi, pixie.ErrInvertedRange,
		)
	case win.BaselineHi-win.BaselineLo < trace.MinBaselineLen:
		return fmt.Errorf(
			"config: baseline region too short (got=%d, min=%d): %w",
			win.BaselineHi-win.BaselineLo, trace.MinBaselineLen, pixie.ErrInvalidArgument,
		)
	case win.Pre < 0 || win.Post <= 0:
		return fmt.Errorf("config: invalid waveform window [-%d, %d): %w", win.Pre, win.Post, pixie.ErrInvalidArgument)
	}

	_, err := timing.New(setup.Timing.Algorithm)
	if err != nil {
		return fmt.Errorf("config: invalid default timing: %w", err)
	}
	ids := make(map[uint32]bool, len(setup.Channels))
	for _, ch := range setup.Channels {
		if ids[ch.ID] {
			return fmt.Errorf("config: duplicate channel %d: %w", ch.ID, pixie.ErrInvalidArgument)
		}
		ids[ch.ID] = true
		_, err := timing.New(ch.Algorithm)
		if err != nil {
			return fmt.Errorf("config: invalid timing for channel %d: %w", ch.ID, err)
		}
	}

	return nil
}

func checkModule(mod Module) error {
	_, err := fwmask.CfdSize(mod.Firmware, mod.Frequency)
	return err
}

// Options returns the event assembler options of the setup.
func (setup Setup) Options() []unpack.Option {
	opts := []unpack.Option{
		unpack.WithEventWidth(setup.EventWidth),
		unpack.WithMaxSpillSize(setup.MaxSpillSize),
		unpack.WithMaxModules(setup.MaxModules),
	}
	if setup.Default != (Module{}) {
		opts = append(opts, unpack.WithDefaultModule(setup.Default.Firmware, setup.Default.Frequency))
	}
	if len(setup.Modules) > 0 {
		mods := make(map[uint32]unpack.Module, len(setup.Modules))
		for _, mod := range setup.Modules {
			mods[mod.VSN] = unpack.Module{Firmware: mod.Firmware, Frequency: mod.Frequency}
		}
		opts = append(opts, unpack.WithModules(mods))
	}
	return opts
}

// TraceWindow returns the trace analysis window of the setup.
func (setup Setup) TraceWindow() trace.Window {
	return trace.Window{
		BaselineLo: setup.Window.BaselineLo,
		BaselineHi: setup.Window.BaselineHi,
		Delay:      setup.Window.Delay,
		Pre:        setup.Window.Pre,
		Post:       setup.Window.Post,
	}
}

// Timer returns the timing algorithm and parameters of a channel.
func (setup Setup) Timer(id uint32) (timing.Algorithm, timing.Params, error) {
	cfg := setup.Timing
	for _, ch := range setup.Channels {
		if ch.ID == id {
			cfg = ch.Timing
			break
		}
	}
	alg, err := timing.New(cfg.Algorithm)
	if err != nil {
		return nil, timing.Params{}, fmt.Errorf("config: channel %d: %w", id, err)
	}
	return alg, timing.Params{P0: cfg.P0, P1: cfg.P1}, nil
}
