// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pixie

import (
	"runtime/debug"
	"testing"
)

func TestVersion(t *testing.T) {
	for _, tc := range []struct {
		name string
		bi   *debug.BuildInfo
		vers string
		sum  string
	}{
		{
			name: "nil",
		},
		{
			name: "main",
			bi: &debug.BuildInfo{
				Main: debug.Module{Path: "github.com/go-lpc/pixie", Version: "v0.1.0", Sum: "h1:xxx"},
			},
			vers: "v0.1.0",
			sum:  "h1:xxx",
		},
		{
			name: "dep",
			bi: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/daq"},
				Deps: []*debug.Module{
					{Path: "go-hep.org/x/hep", Version: "v0.32.1"},
					{Path: "github.com/go-lpc/pixie", Version: "v0.2.0", Sum: "h1:yyy"},
				},
			},
			vers: "v0.2.0",
			sum:  "h1:yyy",
		},
		{
			name: "replace-path-version",
			bi: &debug.BuildInfo{
				Deps: []*debug.Module{
					{
						Path: "github.com/go-lpc/pixie", Version: "v0.2.0",
						Replace: &debug.Module{Path: "example.org/pixie", Version: "v0.2.1", Sum: "h1:zzz"},
					},
				},
			},
			vers: "example.org/pixie v0.2.1",
			sum:  "h1:zzz",
		},
		{
			name: "replace-local",
			bi: &debug.BuildInfo{
				Deps: []*debug.Module{
					{
						Path: "github.com/go-lpc/pixie", Version: "v0.2.0",
						Replace: &debug.Module{},
					},
				},
			},
			vers: "v0.2.0*",
		},
		{
			name: "missing",
			bi:   &debug.BuildInfo{},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vers, sum := versionOf(tc.bi)
			if got, want := vers, tc.vers; got != want {
				t.Fatalf("invalid version: got=%q, want=%q", got, want)
			}
			if got, want := sum, tc.sum; got != want {
				t.Fatalf("invalid sum: got=%q, want=%q", got, want)
			}
		})
	}
}
