// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unpack

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Merge merges time-ordered streams of raw events into a single stream
// ordered by window start.
// The returned channel is closed when all the input streams are closed or
// when the context is done.
func Merge(ctx context.Context, streams ...<-chan RawEvent) <-chan RawEvent {
	out := make(chan RawEvent)
	go func() {
		defer close(out)

		type head struct {
			evt RawEvent
			src <-chan RawEvent
		}

		recv := func(src <-chan RawEvent) (RawEvent, bool) {
			select {
			case evt, ok := <-src:
				return evt, ok
			case <-ctx.Done():
				return RawEvent{}, false
			}
		}

		heads := make([]head, 0, len(streams))
		for _, src := range streams {
			evt, ok := recv(src)
			if !ok {
				continue
			}
			heads = append(heads, head{evt, src})
		}

		for len(heads) > 0 {
			if ctx.Err() != nil {
				return
			}
			imin := 0
			for i := range heads[1:] {
				if heads[i+1].evt.Start < heads[imin].evt.Start {
					imin = i + 1
				}
			}

			select {
			case out <- heads[imin].evt:
			case <-ctx.Done():
				return
			}

			evt, ok := recv(heads[imin].src)
			if !ok {
				heads = append(heads[:imin], heads[imin+1:]...)
				continue
			}
			heads[imin].evt = evt
		}
	}()
	return out
}

// AssembleCrates runs one assembler per crate over the spills of that crate
// and returns the raw events of all crates, ordered by window start.
func AssembleCrates(ctx context.Context, spills map[uint32][][]uint32, newAssembler func(crate uint32) *Assembler) ([]RawEvent, error) {
	crates := make([]uint32, 0, len(spills))
	for crate := range spills {
		crates = append(crates, crate)
	}
	sort.Slice(crates, func(i, j int) bool { return crates[i] < crates[j] })

	grp, ctx := errgroup.WithContext(ctx)
	streams := make([]<-chan RawEvent, len(crates))
	for i, crate := range crates {
		var (
			ch    = make(chan RawEvent)
			crate = crate
			data  = spills[crate]
		)
		streams[i] = ch
		grp.Go(func() error {
			defer close(ch)
			asm := newAssembler(crate)
			for j, spill := range data {
				evts, err := asm.ReadSpill(spill)
				if err != nil {
					return xerrors.Errorf("unpack: crate %d: could not read spill %d: %w", crate, j, err)
				}
				for _, evt := range evts {
					select {
					case ch <- evt:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			return nil
		})
	}

	var evts []RawEvent
	for evt := range Merge(ctx, streams...) {
		evts = append(evts, evt)
	}

	err := grp.Wait()
	if err != nil {
		return nil, err
	}
	return evts, nil
}
