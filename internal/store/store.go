// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package store is the durable table layer behind §4.4 (C5): samples,
// variants, observations, covered regions, data sources, and tasks, backed
// by database/sql and the go-duckdb driver. DuckDB plays the role spec.md
// assigns to "the relational store" external collaborator: it gives ACID
// transactions, unique constraints, and a B-tree (ART) index, which is all
// §4.4 asks of it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	log "github.com/sirupsen/logrus"
)

// Store wraps a *sql.DB plus the in-process per-sample advisory locks used
// to serialize sample-state transitions against concurrent imports (§4.4,
// §4.9). DuckDB's embedded, single-process model makes an in-process mutex
// table equivalent to a server-side row lock here: there is exactly one
// process holding the database file open, so a mutex keyed by sample id
// gives the same mutual exclusion a "SELECT ... FOR UPDATE" would against a
// standalone server (documented in DESIGN.md).
type Store struct {
	db *sql.DB

	sampleLocksMu sync.Mutex
	sampleLocks   map[int64]*sync.Mutex
}

// Open opens (and, if necessary, creates) the DuckDB database at path and
// applies the schema. path == "" opens a private in-memory database, used
// by tests.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// DuckDB's single-writer model means a pool bigger than one
	// connection just serializes behind the file lock anyway; pin it so
	// errors surface as query contention, not driver-level connection
	// thrash.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, sampleLocks: map[int64]*sync.Mutex{}}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for components (like the bulk numpy
// exporter) that need to run ad hoc read-only queries outside the Store
// API surface.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// lockSample returns the in-process mutex for sampleID, creating it on
// first use.
func (s *Store) lockSample(sampleID int64) *sync.Mutex {
	s.sampleLocksMu.Lock()
	defer s.sampleLocksMu.Unlock()
	mu, ok := s.sampleLocks[sampleID]
	if !ok {
		mu = &sync.Mutex{}
		s.sampleLocks[sampleID] = mu
	}
	return mu
}

// WithSampleLock runs fn while holding the per-sample advisory lock (§4.4,
// §4.9): two concurrent imports into the same sample serialize; imports
// into different samples proceed in parallel.
func (s *Store) WithSampleLock(sampleID int64, fn func() error) error {
	mu := s.lockSample(sampleID)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			log.Warnf("store: rollback after error: %s", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
