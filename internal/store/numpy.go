// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kshedden/gonpy"

	"github.com/varda/varda/internal/selection"
)

// nopCloser adapts an io.Writer that must not be closed by gonpy (which
// unconditionally closes whatever it's given) to io.WriteCloser.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// BulkExport writes an observations-by-samples support matrix for the
// samples matched by sel to path as an int32 .npy array, for offline
// analysis outside the frequency-query path (SPEC_FULL.md §3 C5: this is
// not on the path of any mandated operation, it exists to give
// github.com/kshedden/gonpy a concrete home).
func (s *Store) BulkExport(ctx context.Context, path string, sel selection.Expr) (rows, cols int, err error) {
	whereSQL, args := sel.Plan("sm")

	// The sample and variant id lists depend on independent tables, so
	// list them concurrently, bounded by a throttle the way the teacher's
	// export pipeline bounds concurrent per-column writers.
	var sampleIDs, variantIDs []int64
	t := &throttle{Max: 2}
	t.Acquire()
	go func() {
		defer t.Release()
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM samples sm WHERE %s ORDER BY id`, whereSQL), args...)
		if err != nil {
			t.Report(fmt.Errorf("store: bulk export: list samples: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				t.Report(fmt.Errorf("store: bulk export: scan sample: %w", err))
				return
			}
			sampleIDs = append(sampleIDs, id)
		}
		t.Report(rows.Err())
	}()
	t.Acquire()
	go func() {
		defer t.Release()
		rows, err := s.db.QueryContext(ctx, `SELECT id FROM variants ORDER BY id`)
		if err != nil {
			t.Report(fmt.Errorf("store: bulk export: list variants: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				t.Report(fmt.Errorf("store: bulk export: scan variant: %w", err))
				return
			}
			variantIDs = append(variantIDs, id)
		}
		t.Report(rows.Err())
	}()
	if err := t.Wait(); err != nil {
		return 0, 0, err
	}

	rows, cols = len(variantIDs), len(sampleIDs)
	data := make([]int32, rows*cols)
	colIndex := make(map[int64]int, len(sampleIDs))
	for i, id := range sampleIDs {
		colIndex[id] = i
	}
	rowIndex := make(map[int64]int, len(variantIDs))
	for i, id := range variantIDs {
		rowIndex[id] = i
	}

	supportRows, err := s.db.QueryContext(ctx, `SELECT o.variant_id, v.sample_id, sum(o.support)
		FROM observations o JOIN variations v ON v.id = o.variation_id
		GROUP BY o.variant_id, v.sample_id`)
	if err != nil {
		return 0, 0, fmt.Errorf("store: bulk export: aggregate observations: %w", err)
	}
	defer supportRows.Close()
	for supportRows.Next() {
		var variantID, sampleID int64
		var support int32
		if err := supportRows.Scan(&variantID, &sampleID, &support); err != nil {
			return 0, 0, fmt.Errorf("store: bulk export: scan observation: %w", err)
		}
		r, ok := rowIndex[variantID]
		if !ok {
			continue
		}
		c, ok := colIndex[sampleID]
		if !ok {
			continue
		}
		data[r*cols+c] = support
	}
	if err := supportRows.Err(); err != nil {
		return 0, 0, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return 0, 0, fmt.Errorf("store: bulk export: open %s: %w", path, err)
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return 0, 0, fmt.Errorf("store: bulk export: new writer: %w", err)
	}
	npw.Shape = []int{rows, cols}
	if err := npw.WriteInt32(data); err != nil {
		return 0, 0, fmt.Errorf("store: bulk export: write: %w", err)
	}
	if err := bufw.Flush(); err != nil {
		return 0, 0, fmt.Errorf("store: bulk export: flush: %w", err)
	}
	return rows, cols, nil
}
