// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/varda/varda/internal/selection"
)

// ObservationRow is one row to append via AddObservations.
type ObservationRow struct {
	VariantID   int64
	VariationID int64
	Support     int
	Zygosity    string // hom | het | unknown
}

// AddObservations implements §4.4's add_observations: an append-only bulk
// insert, run inside a single transaction so a crash mid-batch leaves no
// partial batch visible (§4.5 "Output is ... batched writes").
func (s *Store) AddObservations(ctx context.Context, batch []ObservationRow) error {
	if len(batch) == 0 {
		return nil
	}
	return retryDo(ctx, 3, 50*time.Millisecond, isTransientStoreError, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `INSERT INTO observations (variant_id, variation_id, support, zygosity) VALUES (?, ?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("store: prepare add observations: %w", err)
			}
			defer stmt.Close()
			for _, row := range batch {
				if _, err := stmt.ExecContext(ctx, row.VariantID, row.VariationID, row.Support, row.Zygosity); err != nil {
					return fmt.Errorf("store: add observation: %w", err)
				}
			}
			return nil
		})
	})
}

// CountObservations implements §4.4's count_observations: the summed
// support of the observations of variantID whose variation's sample
// matches selection.
func (s *Store) CountObservations(ctx context.Context, variantID int64, sel selection.Expr) (int, error) {
	whereSQL, args := sel.Plan("sm")
	query := fmt.Sprintf(`
		SELECT coalesce(sum(o.support), 0)
		FROM observations o
		JOIN variations v ON v.id = o.variation_id
		JOIN samples sm ON sm.id = v.sample_id
		WHERE o.variant_id = ? AND (%s)`, whereSQL)
	args = append([]any{variantID}, args...)
	var total int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: count observations: %w", err)
	}
	return total, nil
}
