// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/config"
	"github.com/go-lpc/pixie/fwmask"
	"github.com/go-lpc/pixie/internal/fakedb"
	"github.com/google/go-cmp/cmp"
)

func init() {
	drvName = "fakedb"
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	return db
}

func TestOpen(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if got, want := dsn("pixie"), "username:s3cr3t@tcp(localhost)/pixie"; got != want {
		t.Fatalf("invalid DSN: got=%q, want=%q", got, want)
	}
}

func TestLastSetup(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"name"},
		Values: [][]driver.Value{
			{"LPC2023_ToF"},
		},
	}, func(ctx context.Context) error {
		name, err := db.LastSetup(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last setup: %+v", err)
		}

		if got, want := name, "LPC2023_ToF"; got != want {
			t.Fatalf("invalid last setup: got=%q, want=%q", got, want)
		}
		return nil
	})

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"name"},
	}, func(ctx context.Context) error {
		_, err := db.LastSetup(ctx)
		if err == nil {
			t.Fatalf("expected an error")
		}
		return nil
	})
}

func TestQueryContext(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"event_width"},
		Values: [][]driver.Value{
			{float64(62)},
		},
	}, func(ctx context.Context) error {
		rows, err := db.QueryContext(ctx, queryEventWidth, "LPC2023_ToF")
		if err != nil {
			t.Fatalf("could not execute query %q: %+v", queryEventWidth, err)
		}
		defer rows.Close()

		var width float64
		for rows.Next() {
			err = rows.Scan(&width)
			if err != nil {
				t.Fatalf("could not scan event width: %+v", err)
			}
		}

		if err := rows.Err(); err != nil {
			t.Fatalf("could not scan event width: %+v", err)
		}

		if got, want := width, 62.0; got != want {
			t.Fatalf("invalid event width: got=%v, want=%v", got, want)
		}
		return nil
	})
}

func TestModules(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	for _, tc := range []struct {
		name string
		rows [][]driver.Value
		want []config.Module
		err  error
	}{
		{
			name: "ok",
			rows: [][]driver.Value{
				{int64(0), "R30474", int64(250)},
				{int64(1), "34688", int64(500)},
			},
			want: []config.Module{
				{VSN: 0, Firmware: fwmask.R30474, Frequency: fwmask.F250MHz},
				{VSN: 1, Firmware: fwmask.R34688, Frequency: fwmask.F500MHz},
			},
		},
		{
			name: "bad-firmware",
			rows: [][]driver.Value{
				{int64(0), "Rxyz", int64(250)},
			},
			err: pixie.ErrUnsupportedConfiguration,
		},
		{
			name: "bad-frequency",
			rows: [][]driver.Value{
				{int64(0), "R30474", int64(125)},
			},
			err: pixie.ErrUnsupportedConfiguration,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_ = fakedb.Run(context.Background(), fakedb.Rows{
				Names:  []string{"vsn", "firmware", "frequency"},
				Values: tc.rows,
			}, func(ctx context.Context) error {
				mods, err := db.Modules(ctx, "LPC2023_ToF")
				switch {
				case tc.err != nil:
					if !errors.Is(err, tc.err) {
						t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.err)
					}
				case err != nil:
					t.Fatalf("could not retrieve modules: %+v", err)
				default:
					if diff := cmp.Diff(tc.want, mods); diff != "" {
						t.Fatalf("invalid modules: (-want +got)\n%s", diff)
					}
				}
				return nil
			})
		})
	}
}

func TestChannels(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	want := []config.Channel{
		{ID: 17, Timing: config.Timing{Algorithm: "fit", P0: 0.2659, P1: 0.2081}},
		{ID: 18, Timing: config.Timing{Algorithm: "cfd", P0: 0.5, P1: 2}},
	}
	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "algorithm", "p0", "p1"},
		Values: [][]driver.Value{
			{int64(17), "fit", 0.2659, 0.2081},
			{int64(18), "cfd", 0.5, 2.0},
		},
	}, func(ctx context.Context) error {
		chans, err := db.Channels(ctx, "LPC2023_ToF")
		if err != nil {
			t.Fatalf("could not retrieve channels: %+v", err)
		}
		if diff := cmp.Diff(want, chans); diff != "" {
			t.Fatalf("invalid channels: (-want +got)\n%s", diff)
		}
		return nil
	})
}

func TestSetup(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	rows := map[string]fakedb.Rows{
		queryEventWidth: {
			Names:  []string{"event_width"},
			Values: [][]driver.Value{{float64(100)}},
		},
		queryModules: {
			Names: []string{"vsn", "firmware", "frequency"},
			Values: [][]driver.Value{
				{int64(0), "R30474", int64(250)},
				{int64(1), "R30474", int64(250)},
			},
		},
		queryChannels: {
			Names: []string{"id", "algorithm", "p0", "p1"},
			Values: [][]driver.Value{
				{int64(17), "polycfd", 0.5, 0.0},
			},
		},
	}

	_ = fakedb.RunQueries(context.Background(), rows, func(ctx context.Context) error {
		setup, err := db.Setup(ctx, "LPC2023_ToF")
		if err != nil {
			t.Fatalf("could not retrieve setup: %+v", err)
		}

		want := config.Default()
		want.EventWidth = 100
		want.Modules = []config.Module{
			{VSN: 0, Firmware: fwmask.R30474, Frequency: fwmask.F250MHz},
			{VSN: 1, Firmware: fwmask.R30474, Frequency: fwmask.F250MHz},
		}
		want.Channels = []config.Channel{
			{ID: 17, Timing: config.Timing{Algorithm: "polycfd", P0: 0.5}},
		}
		if diff := cmp.Diff(want, setup); diff != "" {
			t.Fatalf("invalid setup: (-want +got)\n%s", diff)
		}
		return nil
	})

	rows[queryChannels] = fakedb.Rows{
		Names:  []string{"id", "algorithm", "p0", "p1"},
		Values: [][]driver.Value{{int64(17), "magic", 0.5, 0.0}},
	}
	_ = fakedb.RunQueries(context.Background(), rows, func(ctx context.Context) error {
		_, err := db.Setup(ctx, "LPC2023_ToF")
		if !errors.Is(err, pixie.ErrUnsupportedConfiguration) {
			t.Fatalf("invalid error: got=%+v, want=%+v", err, pixie.ErrUnsupportedConfiguration)
		}
		return nil
	})

	_ = fakedb.RunQueries(context.Background(), nil, func(ctx context.Context) error {
		_, err := db.Setup(ctx, "LPC2023_ToF")
		if err == nil || !strings.Contains(err.Error(), "unknown setup") {
			t.Fatalf("invalid error: %+v", err)
		}
		return nil
	})
}
