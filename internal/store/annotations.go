// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"fmt"
)

// AnnotationByTask resolves the Annotation a given "annotate" task drives,
// so a generic worker can reconstruct the run from the task row alone.
func (s *Store) AnnotationByTask(ctx context.Context, taskID int64) (Annotation, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM annotations WHERE task_id = ?`, taskID).Scan(&id)
	if err != nil {
		return Annotation{}, fmt.Errorf("store: annotation by task %d: %w", taskID, err)
	}
	return s.GetAnnotation(ctx, id)
}

// AnnotationQuery is one named sample-selection expression bound to an
// Annotation, in the order it was submitted (§3 Annotation, §4.8 step 1).
type AnnotationQuery struct {
	Slug       string
	Expression string
}

// CreateAnnotation records a pending annotation run: the original
// DataSource, its task, and the ordered query list whose slugs name the
// INFO fields C8 emits.
func (s *Store) CreateAnnotation(ctx context.Context, originalDataSourceID, taskID int64, queries []AnnotationQuery) (int64, error) {
	var id int64
	row := s.db.QueryRowContext(ctx, `INSERT INTO annotations (original_data_source_id, task_id) VALUES (?, ?) RETURNING id`, originalDataSourceID, taskID)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("store: create annotation: %w", err)
	}
	for i, q := range queries {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO annotation_queries (annotation_id, ord, slug, expression) VALUES (?, ?, ?, ?)`, id, i, q.Slug, q.Expression); err != nil {
			return 0, fmt.Errorf("store: insert annotation query %d: %w", i, err)
		}
	}
	return id, nil
}

// Annotation mirrors §3's Annotation entity.
type Annotation struct {
	ID                    int64
	OriginalDataSourceID  int64
	AnnotatedDataSourceID int64 // 0 until SetAnnotationResult runs
	TaskID                int64
}

// GetAnnotation fetches an Annotation by id.
func (s *Store) GetAnnotation(ctx context.Context, id int64) (Annotation, error) {
	var a Annotation
	a.ID = id
	var annotated *int64
	row := s.db.QueryRowContext(ctx, `SELECT original_data_source_id, annotated_data_source_id, task_id FROM annotations WHERE id = ?`, id)
	if err := row.Scan(&a.OriginalDataSourceID, &annotated, &a.TaskID); err != nil {
		return Annotation{}, fmt.Errorf("store: get annotation %d: %w", id, err)
	}
	if annotated != nil {
		a.AnnotatedDataSourceID = *annotated
	}
	return a, nil
}

// AnnotationQueries returns annotationID's queries in submission order.
func (s *Store) AnnotationQueries(ctx context.Context, annotationID int64) ([]AnnotationQuery, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, expression FROM annotation_queries WHERE annotation_id = ? ORDER BY ord`, annotationID)
	if err != nil {
		return nil, fmt.Errorf("store: annotation queries: %w", err)
	}
	defer rows.Close()
	var out []AnnotationQuery
	for rows.Next() {
		var q AnnotationQuery
		if err := rows.Scan(&q.Slug, &q.Expression); err != nil {
			return nil, fmt.Errorf("store: scan annotation query: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// SetAnnotationResult binds the annotated DataSource produced once C8
// finishes (§4.8 step 3).
func (s *Store) SetAnnotationResult(ctx context.Context, annotationID, annotatedDataSourceID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE annotations SET annotated_data_source_id = ? WHERE id = ?`, annotatedDataSourceID, annotationID)
	if err != nil {
		return fmt.Errorf("store: set annotation result: %w", err)
	}
	return nil
}
