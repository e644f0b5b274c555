// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/varda/varda/internal/varderr"
)

// Sample mirrors §3's Sample entity.
type Sample struct {
	ID              int64
	Owner           string
	Name            string
	PoolSize        int
	CoverageProfile bool
	Public          bool
	Active          bool
	Notes           string
}

// CreateSample inserts a new, inactive sample.
func (s *Store) CreateSample(ctx context.Context, owner, name string, poolSize int, coverageProfile, public bool, notes string) (int64, error) {
	if poolSize < 1 {
		return 0, varderr.New(varderr.BadRequest, "pool_size must be >= 1")
	}
	var id int64
	row := s.db.QueryRowContext(ctx, `INSERT INTO samples (owner, name, pool_size, coverage_profile, public, notes)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`, owner, name, poolSize, coverageProfile, public, notes)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("store: create sample: %w", err)
	}
	return id, nil
}

// GetSample loads a sample by id.
func (s *Store) GetSample(ctx context.Context, id int64) (Sample, error) {
	var sm Sample
	row := s.db.QueryRowContext(ctx, `SELECT id, owner, name, pool_size, coverage_profile, public, active, notes
		FROM samples WHERE id = ?`, id)
	err := row.Scan(&sm.ID, &sm.Owner, &sm.Name, &sm.PoolSize, &sm.CoverageProfile, &sm.Public, &sm.Active, &sm.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return Sample{}, varderr.New(varderr.NotFound, fmt.Sprintf("sample %d", id))
	} else if err != nil {
		return Sample{}, fmt.Errorf("store: get sample: %w", err)
	}
	return sm, nil
}

// setSampleActive flips Sample.Active; callers (internal/task) are
// responsible for checking the activation guard of §4.9 before calling
// this — it performs no guard checks itself, by design, so the guard lives
// in exactly one place (REDESIGN FLAGS §9).
func (s *Store) setSampleActive(ctx context.Context, tx *sql.Tx, sampleID int64, active bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE samples SET active = ? WHERE id = ?`, active, sampleID)
	if err != nil {
		return fmt.Errorf("store: set sample active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return varderr.New(varderr.NotFound, fmt.Sprintf("sample %d", sampleID))
	}
	return nil
}

// SetSampleActiveTx exposes setSampleActive for internal/task's
// transactional activation guard.
func (s *Store) SetSampleActiveTx(ctx context.Context, tx *sql.Tx, sampleID int64, active bool) error {
	return s.setSampleActive(ctx, tx, sampleID, active)
}

// WithTx exposes withTx so internal/task can compose the activation guard
// (task-state check + variation/coverage existence check + flip) inside a
// single transaction, per REDESIGN FLAGS §9.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.withTx(ctx, fn)
}

// CountVariations reports how many Variation rows exist for sampleID.
func (s *Store) CountVariations(ctx context.Context, tx *sql.Tx, sampleID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM variations WHERE sample_id = ?`, sampleID).Scan(&n)
	return n, err
}

// CountCoverages reports how many Coverage rows exist for sampleID.
func (s *Store) CountCoverages(ctx context.Context, tx *sql.Tx, sampleID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM coverages WHERE sample_id = ?`, sampleID).Scan(&n)
	return n, err
}

// CountActiveTasksForSample reports tasks targeting sampleID that are
// waiting or running, used by the activation guard (§4.9).
func (s *Store) CountActiveTasksForSample(ctx context.Context, tx *sql.Tx, sampleTarget string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE target = ? AND state IN ('waiting', 'running')`, sampleTarget).Scan(&n)
	return n, err
}
