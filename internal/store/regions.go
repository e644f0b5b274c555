// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/varda/varda/internal/binning"
	"github.com/varda/varda/internal/selection"
)

// RegionRow is one row to append via AddRegions.
type RegionRow struct {
	CoverageID int64
	Chrom      string
	Begin      uint64
	End        uint64
}

// AddRegions implements §4.4's add_regions: an append-only bulk insert with
// bin precomputed by internal/binning.
func (s *Store) AddRegions(ctx context.Context, batch []RegionRow) error {
	if len(batch) == 0 {
		return nil
	}
	return retryDo(ctx, 3, 50*time.Millisecond, isTransientStoreError, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `INSERT INTO covered_regions (coverage_id, chrom, begin, "end", bin) VALUES (?, ?, ?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("store: prepare add regions: %w", err)
			}
			defer stmt.Close()
			for _, row := range batch {
				bin, err := binning.Assign(row.Begin-1, row.End)
				if err != nil {
					return err
				}
				if _, err := stmt.ExecContext(ctx, row.CoverageID, row.Chrom, row.Begin, row.End, bin); err != nil {
					return fmt.Errorf("store: add region: %w", err)
				}
			}
			return nil
		})
	})
}

// CountCoveringSamples implements §4.4's count_covering_samples and the
// covered half of §4.7's freq(): the summed pool_size of the distinct
// samples matched by selection that either (i) have a coverage profile and a CoveredRegion
// spanning pos, or (ii) are named by an explicit sample:<id> clause (which
// contribute unconditionally, for population-study samples without
// coverage — §4.7). The query is restricted to the bins overlapping pos,
// per §4.1's "all range queries route through this function".
func (s *Store) CountCoveringSamples(ctx context.Context, chrom string, pos uint64, sel selection.Expr) (covered int, err error) {
	bins := binning.Overlapping(pos-1, pos)
	placeholders := make([]string, len(bins))
	binArgs := make([]any, len(bins))
	for i, b := range bins {
		placeholders[i] = "?"
		binArgs[i] = b
	}

	coveredWhere, coveredArgs := sel.Plan("sm")
	explicitWhere, explicitArgs := selection.PlanExplicitSampleIDs(sel, "sm")

	query := fmt.Sprintf(`
		SELECT coalesce(sum(pool_size), 0) FROM (
			SELECT DISTINCT sm.id, sm.pool_size
			FROM covered_regions cr
			JOIN coverages c ON c.id = cr.coverage_id
			JOIN samples sm ON sm.id = c.sample_id
			WHERE cr.chrom = ? AND cr.bin IN (%s) AND cr.begin <= ? AND cr."end" >= ? AND sm.coverage_profile AND (%s)
			UNION
			SELECT DISTINCT sm.id, sm.pool_size
			FROM samples sm
			WHERE (%s)
		)`, strings.Join(placeholders, ","), coveredWhere, explicitWhere)

	args := []any{chrom}
	args = append(args, binArgs...)
	args = append(args, pos, pos)
	args = append(args, coveredArgs...)
	args = append(args, explicitArgs...)

	err = s.db.QueryRowContext(ctx, query, args...).Scan(&covered)
	if err != nil {
		return 0, fmt.Errorf("store: count covering samples: %w", err)
	}
	return covered, nil
}
