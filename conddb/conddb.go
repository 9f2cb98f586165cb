// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb retrieves the setup of a Pixie-16 acquisition from the
// conditions database.
package conddb // import "github.com/go-lpc/pixie/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-lpc/pixie"
	"github.com/go-lpc/pixie/config"
	"github.com/go-lpc/pixie/fwmask"
	_ "github.com/go-sql-driver/mysql"
)

const (
	host    = "localhost"
	timeout = 5 * time.Second
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

const (
	queryLastSetup  = "SELECT name FROM setups ORDER BY datetime DESC LIMIT 1"
	queryEventWidth = "SELECT event_width FROM setups WHERE name=?"
	queryModules    = "SELECT vsn, firmware, frequency FROM modules WHERE setup=? ORDER BY vsn"
	queryChannels   = "SELECT id, algorithm, p0, p1 FROM channels WHERE setup=? ORDER BY id"
)

// DB exposes convenience methods to retrieve the acquisition setups
// stored in the conditions database.
type DB struct {
	db   *sql.DB
	name string // name of the conditions database
}

// Open opens a connection to the conditions database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastSetup returns the name of the most recent setup.
func (db *DB) LastSetup(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := ""
	rows, err := db.db.QueryContext(ctx, queryLastSetup)
	if err != nil {
		return name, fmt.Errorf("conddb: could not query last setup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name)
		if err != nil {
			return name, fmt.Errorf("conddb: could not get last setup value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return name, fmt.Errorf("conddb: could not scan db for last setup: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return name, fmt.Errorf("conddb: context error while retrieving last setup: %w", err)
	}

	if name == "" {
		return name, fmt.Errorf("conddb: no setup in %q db", db.name)
	}

	return name, nil
}

// EventWidth returns the event width of a setup, in filter clock ticks.
func (db *DB) EventWidth(ctx context.Context, setup string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		width float64
		found bool
	)
	rows, err := db.db.QueryContext(ctx, queryEventWidth, setup)
	if err != nil {
		return width, fmt.Errorf("conddb: could not query event width: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&width)
		if err != nil {
			return width, fmt.Errorf("conddb: could not get event width value: %w", err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return width, fmt.Errorf("conddb: could not scan db for event width: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return width, fmt.Errorf("conddb: context error while retrieving event width: %w", err)
	}

	if !found {
		return width, fmt.Errorf("conddb: unknown setup %q", setup)
	}

	return width, nil
}

// Modules returns the modules declared by a setup.
func (db *DB) Modules(ctx context.Context, setup string) ([]config.Module, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mods []config.Module
	rows, err := db.db.QueryContext(ctx, queryModules, setup)
	if err != nil {
		return mods, fmt.Errorf("conddb: could not run modules query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var (
			mod  config.Module
			fw   string
			freq uint32
		)
		err = rows.Scan(&mod.VSN, &fw, &freq)
		if err != nil {
			return mods, fmt.Errorf("conddb: could not scan row %d for modules: %w", i, err)
		}
		i++

		mod.Firmware, err = fwmask.ParseFirmware(fw)
		if err != nil {
			return mods, fmt.Errorf("conddb: invalid firmware for module %d: %w", mod.VSN, err)
		}
		mod.Frequency = fwmask.Frequency(freq)
		if !mod.Frequency.Valid() {
			return mods, fmt.Errorf(
				"conddb: invalid frequency %d for module %d: %w",
				freq, mod.VSN, pixie.ErrUnsupportedConfiguration,
			)
		}
		mods = append(mods, mod)
	}

	if err := rows.Err(); err != nil {
		return mods, fmt.Errorf("conddb: could not scan db for modules: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return mods, fmt.Errorf("conddb: context error while retrieving modules: %w", err)
	}

	return mods, nil
}

// Channels returns the per-channel timing of a setup.
func (db *DB) Channels(ctx context.Context, setup string) ([]config.Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var chans []config.Channel
	rows, err := db.db.QueryContext(ctx, queryChannels, setup)
	if err != nil {
		return chans, fmt.Errorf("conddb: could not run channels query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ch config.Channel
		err = rows.Scan(&ch.ID, &ch.Algorithm, &ch.P0, &ch.P1)
		if err != nil {
			return chans, fmt.Errorf("conddb: could not scan channels: %w", err)
		}
		chans = append(chans, ch)
	}

	if err := rows.Err(); err != nil {
		return chans, fmt.Errorf("conddb: could not scan db for channels: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return chans, fmt.Errorf("conddb: context error while retrieving channels: %w", err)
	}

	return chans, nil
}

// Setup assembles and validates the named setup.
// Settings not stored in the database keep their default value.
func (db *DB) Setup(ctx context.Context, name string) (config.Setup, error) {
	setup := config.Default()

	width, err := db.EventWidth(ctx, name)
	if err != nil {
		return setup, err
	}
	setup.EventWidth = width

	setup.Modules, err = db.Modules(ctx, name)
	if err != nil {
		return setup, err
	}

	setup.Channels, err = db.Channels(ctx, name)
	if err != nil {
		return setup, err
	}

	err = setup.Validate()
	if err != nil {
		return setup, fmt.Errorf("conddb: invalid setup %q: %w", name, err)
	}

	return setup, nil
}
