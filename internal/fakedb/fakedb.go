// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
package fakedb // import "github.com/go-lpc/pixie/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
)

var query struct {
	mu   sync.Mutex
	rows map[string]Rows // rows served per normalized query text
	def  *Rows           // rows served to any other query
}

// Run runs f, serving rows to every query.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = nil
	query.def = &rows

	return f(ctx)
}

// RunQueries runs f, serving to each query the rows registered under its
// text. Queries are compared with their white spaces collapsed.
// Unregistered queries yield no row.
func RunQueries(ctx context.Context, rows map[string]Rows, f func(ctx context.Context) error) error {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = make(map[string]Rows, len(rows))
	for k, v := range rows {
		query.rows[normalize(k)] = v
	}
	query.def = nil

	return f(ctx)
}

func normalize(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func lookup(q string) *Rows {
	if rows, ok := query.rows[normalize(q)]; ok {
		return &Rows{Names: rows.Names, Values: rows.Values}
	}
	if query.def != nil {
		return query.def
	}
	return &Rows{}
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

// Close invalidates any current prepared statements and transactions.
func (c *Conn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	panic("not implemented")
}

type Stmt struct {
	query string
}

// Close closes the statement.
func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns -1: the number of placeholders is not checked.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec executes a query that doesn't return rows.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	panic("not implemented")
}

// Query executes a query that may return rows, such as a SELECT.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return lookup(stmt.query), nil
}

// Rows are the rows returned by a query.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

// Columns returns the names of the columns.
func (rows *Rows) Columns() []string {
	return rows.Names
}

// Close closes the rows iterator.
func (rows *Rows) Close() error {
	return nil
}

// Next populates dest with the next row of data.
// Next returns io.EOF when there are no more rows.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
