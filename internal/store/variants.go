// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/varda/varda/internal/variant"
)

// UpsertVariant implements §4.4's upsert_variant: returns the existing id
// if the (chrom, begin, end, observed) tuple is already present, else
// inserts a new row. The unique constraint on variants guarantees
// at-most-one row per tuple (invariant 2 of §8) even under concurrent
// callers; a unique-constraint violation from a racing insert is retried
// as a lookup.
func (s *Store) UpsertVariant(ctx context.Context, tx *sql.Tx, v variant.Variant) (int64, error) {
	exec := sqlExecer(tx, s.db)
	var id int64
	err := exec.QueryRowContext(ctx, `SELECT id FROM variants WHERE chrom = ? AND begin = ? AND "end" = ? AND observed = ?`,
		v.Chrom, v.Begin, v.End, v.Observed).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("store: upsert variant lookup: %w", err)
	}
	err = exec.QueryRowContext(ctx, `INSERT INTO variants (chrom, begin, "end", observed) VALUES (?, ?, ?, ?) RETURNING id`,
		v.Chrom, v.Begin, v.End, v.Observed).Scan(&id)
	if err == nil {
		return id, nil
	}
	// Lost the race to a concurrent insert of the same identity: the
	// unique constraint rejected us, so the row now exists; look it up.
	lookupErr := exec.QueryRowContext(ctx, `SELECT id FROM variants WHERE chrom = ? AND begin = ? AND "end" = ? AND observed = ?`,
		v.Chrom, v.Begin, v.End, v.Observed).Scan(&id)
	if lookupErr != nil {
		return 0, fmt.Errorf("store: upsert variant insert: %w (lookup after conflict also failed: %s)", err, lookupErr)
	}
	return id, nil
}

// VariantRow is a materialized Variant row, including its store-assigned id.
type VariantRow struct {
	ID       int64
	Chrom    string
	Begin    uint64
	End      uint64
	Observed string
}

// FindVariant looks up a variant by its canonical identity without
// inserting, for read-only frequency queries.
func (s *Store) FindVariant(ctx context.Context, v variant.Variant) (VariantRow, bool, error) {
	var row VariantRow
	err := s.db.QueryRowContext(ctx, `SELECT id, chrom, begin, "end", observed FROM variants WHERE chrom = ? AND begin = ? AND "end" = ? AND observed = ?`,
		v.Chrom, v.Begin, v.End, v.Observed).Scan(&row.ID, &row.Chrom, &row.Begin, &row.End, &row.Observed)
	if errors.Is(err, sql.ErrNoRows) {
		return VariantRow{}, false, nil
	} else if err != nil {
		return VariantRow{}, false, fmt.Errorf("store: find variant: %w", err)
	}
	return row, true, nil
}

// execer abstracts over *sql.Tx and *sql.DB so helpers can run either
// inside a caller-managed transaction or standalone.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqlExecer(tx *sql.Tx, db *sql.DB) execer {
	if tx != nil {
		return tx
	}
	return db
}
