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

// DataSource mirrors §3's DataSource entity.
type DataSource struct {
	ID       int64
	Digest   string
	Filetype string // vcf | bed | csv
	Gzipped  bool
	Owner    string
}

// CreateDataSource inserts a new DataSource. owner+digest is unique across
// all samples (schema constraint), so callers look the pair up with
// DataSourceByDigest first; inserting a pair that already exists fails with
// the driver's unique-constraint error, wrapped.
func (s *Store) CreateDataSource(ctx context.Context, digest, filetype string, gzipped bool, owner string) (int64, error) {
	var id int64
	row := s.db.QueryRowContext(ctx, `INSERT INTO data_sources (digest, filetype, gzipped, owner)
		VALUES (?, ?, ?, ?) RETURNING id`, digest, filetype, gzipped, owner)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("store: create data source: %w", err)
	}
	return id, nil
}

// GetDataSource fetches a DataSource by id.
func (s *Store) GetDataSource(ctx context.Context, id int64) (DataSource, error) {
	var d DataSource
	d.ID = id
	row := s.db.QueryRowContext(ctx, `SELECT digest, filetype, gzipped, owner FROM data_sources WHERE id = ?`, id)
	if err := row.Scan(&d.Digest, &d.Filetype, &d.Gzipped, &d.Owner); err != nil {
		return DataSource{}, fmt.Errorf("store: get data source %d: %w", id, err)
	}
	return d, nil
}

// DataSourceByDigest implements §4.4's data_source_by_digest operation.
func (s *Store) DataSourceByDigest(ctx context.Context, owner, digest string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM data_sources WHERE owner = ? AND digest = ?`, owner, digest).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("store: data source by digest: %w", err)
	}
	return id, true, nil
}

// HasVariationFor reports whether sampleID already has a Variation bound to
// dataSourceID (§4.5 Duplication).
func (s *Store) HasVariationFor(ctx context.Context, sampleID, dataSourceID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM variations WHERE sample_id = ? AND data_source_id = ?`, sampleID, dataSourceID).Scan(&n)
	return n > 0, err
}

// HasCoverageFor reports whether sampleID already has a Coverage bound to
// dataSourceID (§4.5 Duplication).
func (s *Store) HasCoverageFor(ctx context.Context, sampleID, dataSourceID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM coverages WHERE sample_id = ? AND data_source_id = ?`, sampleID, dataSourceID).Scan(&n)
	return n > 0, err
}

// VariationIDFor returns the id of the Variation already bound to
// (sampleID, dataSourceID), if any, for a resumed import to reuse instead
// of re-creating it (§4.5 resumption).
func (s *Store) VariationIDFor(ctx context.Context, sampleID, dataSourceID int64) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM variations WHERE sample_id = ? AND data_source_id = ?`, sampleID, dataSourceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("store: variation id for: %w", err)
	}
	return id, true, nil
}

// CoverageIDFor returns the id of the Coverage already bound to (sampleID,
// dataSourceID), if any, for a resumed import to reuse (§4.5 resumption).
func (s *Store) CoverageIDFor(ctx context.Context, sampleID, dataSourceID int64) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM coverages WHERE sample_id = ? AND data_source_id = ?`, sampleID, dataSourceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("store: coverage id for: %w", err)
	}
	return id, true, nil
}

// CreateVariation records a variation import (§3 Variation), failing with
// IntegrityConflict if this (sample, data_source) pair already exists.
func (s *Store) CreateVariation(ctx context.Context, sampleID, dataSourceID int64) (int64, error) {
	exists, err := s.HasVariationFor(ctx, sampleID, dataSourceID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, varderr.New(varderr.IntegrityConflict, "variation already exists for this sample and data source")
	}
	var id int64
	row := s.db.QueryRowContext(ctx, `INSERT INTO variations (sample_id, data_source_id) VALUES (?, ?) RETURNING id`, sampleID, dataSourceID)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("store: create variation: %w", err)
	}
	return id, nil
}

// CreateCoverage records a coverage import (§3 Coverage), with the same
// uniqueness rule as CreateVariation.
func (s *Store) CreateCoverage(ctx context.Context, sampleID, dataSourceID int64) (int64, error) {
	exists, err := s.HasCoverageFor(ctx, sampleID, dataSourceID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, varderr.New(varderr.IntegrityConflict, "coverage already exists for this sample and data source")
	}
	var id int64
	row := s.db.QueryRowContext(ctx, `INSERT INTO coverages (sample_id, data_source_id) VALUES (?, ?) RETURNING id`, sampleID, dataSourceID)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("store: create coverage: %w", err)
	}
	return id, nil
}
