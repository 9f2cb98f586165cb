// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lmd

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHitID(t *testing.T) {
	for _, tc := range []struct {
		hit  Hit
		want uint32
	}{
		{Hit{}, 0},
		{Hit{Chan: 15}, 15},
		{Hit{Module: 2, Chan: 3}, 35},
		{Hit{Crate: 1, Module: 13, Chan: 15}, 208 + 13*16 + 15},
	} {
		t.Run("", func(t *testing.T) {
			if got, want := tc.hit.ID(), tc.want; got != want {
				t.Fatalf("invalid ID: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestHitTime(t *testing.T) {
	for _, tc := range []struct {
		name string
		hit  Hit
		want float64
	}{
		{
			name: "filter",
			hit:  Hit{EventTimeLo: 10, EventTimeHi: 1},
			want: 1<<32 + 10,
		},
		{
			name: "cfd",
			hit:  Hit{EventTimeLo: 10, CfdFractionalTime: 4096, CfdSize: 16384},
			want: 10.25,
		},
		{
			name: "forced",
			hit:  Hit{EventTimeLo: 10, CfdFractionalTime: 4096, CfdSize: 16384, CfdForcedTrigger: true},
			want: 10,
		},
		{
			name: "no-cfd-size",
			hit:  Hit{EventTimeLo: 10, CfdFractionalTime: 4096},
			want: 10,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got, want := tc.hit.Time(), tc.want; got != want {
				t.Fatalf("invalid time: got=%v, want=%v", got, want)
			}
		})
	}

	hit := Hit{ExternalTimeLo: 2, ExternalTimeHi: 3}
	if got, want := hit.ExternalTime(), uint64(3<<32|2); got != want {
		t.Fatalf("invalid external time: got=%d, want=%d", got, want)
	}
}

func TestSort(t *testing.T) {
	hits := []Hit{
		{Chan: 2, EventTimeLo: 20},
		{Chan: 5, EventTimeLo: 10, Energy: 1},
		{Chan: 1, EventTimeLo: 20},
		{Chan: 5, EventTimeLo: 10, Energy: 2},
		{Chan: 0, EventTimeLo: 10, CfdFractionalTime: 8192, CfdSize: 16384},
	}
	Sort(hits)

	want := []Hit{
		{Chan: 5, EventTimeLo: 10, Energy: 1},
		{Chan: 5, EventTimeLo: 10, Energy: 2},
		{Chan: 0, EventTimeLo: 10, CfdFractionalTime: 8192, CfdSize: 16384},
		{Chan: 1, EventTimeLo: 20},
		{Chan: 2, EventTimeLo: 20},
	}
	if diff := cmp.Diff(want, hits); diff != "" {
		t.Fatalf("invalid order (-want +got):\n%s", diff)
	}

	if !Equal(&hits[0], &hits[1]) {
		t.Fatalf("hits 0 and 1 should be equal")
	}
	if Equal(&hits[1], &hits[2]) {
		t.Fatalf("hits 1 and 2 should differ")
	}
	if Less(&hits[0], &hits[1]) || Less(&hits[1], &hits[0]) {
		t.Fatalf("equal hits should not be ordered")
	}
}
