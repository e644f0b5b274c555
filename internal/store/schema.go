// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

// schemaStatements creates the tables described in spec §3/§4.4. Applied
// idempotently (IF NOT EXISTS) on every Open so repeated starts against an
// existing database are safe.
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS seq_sample_id START 1`,
	`CREATE TABLE IF NOT EXISTS samples (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_sample_id'),
		owner VARCHAR NOT NULL,
		name VARCHAR NOT NULL,
		pool_size INTEGER NOT NULL CHECK (pool_size >= 1),
		coverage_profile BOOLEAN NOT NULL DEFAULT false,
		public BOOLEAN NOT NULL DEFAULT false,
		active BOOLEAN NOT NULL DEFAULT false,
		notes VARCHAR NOT NULL DEFAULT ''
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_data_source_id START 1`,
	`CREATE TABLE IF NOT EXISTS data_sources (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_data_source_id'),
		digest VARCHAR NOT NULL,
		filetype VARCHAR NOT NULL,
		gzipped BOOLEAN NOT NULL DEFAULT false,
		owner VARCHAR NOT NULL,
		UNIQUE(owner, digest)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_variation_id START 1`,
	`CREATE TABLE IF NOT EXISTS variations (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_variation_id'),
		sample_id BIGINT NOT NULL REFERENCES samples(id),
		data_source_id BIGINT NOT NULL REFERENCES data_sources(id),
		UNIQUE(sample_id, data_source_id)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_coverage_id START 1`,
	`CREATE TABLE IF NOT EXISTS coverages (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_coverage_id'),
		sample_id BIGINT NOT NULL REFERENCES samples(id),
		data_source_id BIGINT NOT NULL REFERENCES data_sources(id),
		UNIQUE(sample_id, data_source_id)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_variant_id START 1`,
	`CREATE TABLE IF NOT EXISTS variants (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_variant_id'),
		chrom VARCHAR NOT NULL,
		begin BIGINT NOT NULL,
		"end" BIGINT NOT NULL,
		observed VARCHAR NOT NULL,
		UNIQUE(chrom, begin, "end", observed)
	)`,

	`CREATE TABLE IF NOT EXISTS observations (
		variant_id BIGINT NOT NULL REFERENCES variants(id),
		variation_id BIGINT NOT NULL REFERENCES variations(id),
		support INTEGER NOT NULL CHECK (support >= 1),
		zygosity VARCHAR NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_variant ON observations(variant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_variation ON observations(variation_id)`,

	`CREATE TABLE IF NOT EXISTS covered_regions (
		coverage_id BIGINT NOT NULL REFERENCES coverages(id),
		chrom VARCHAR NOT NULL,
		begin BIGINT NOT NULL,
		"end" BIGINT NOT NULL,
		bin INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_regions_chrom_bin ON covered_regions(chrom, bin)`,
	`CREATE INDEX IF NOT EXISTS idx_regions_coverage ON covered_regions(coverage_id)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_task_id START 1`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_task_id'),
		kind VARCHAR NOT NULL,
		state VARCHAR NOT NULL DEFAULT 'waiting',
		progress INTEGER NOT NULL DEFAULT 0,
		error VARCHAR NOT NULL DEFAULT '',
		target VARCHAR NOT NULL DEFAULT '',
		checkpoint_offset BIGINT NOT NULL DEFAULT 0,
		rows_accepted BIGINT NOT NULL DEFAULT 0,
		rows_rejected BIGINT NOT NULL DEFAULT 0,
		cancel_requested BOOLEAN NOT NULL DEFAULT false
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_annotation_id START 1`,
	`CREATE TABLE IF NOT EXISTS annotations (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_annotation_id'),
		original_data_source_id BIGINT NOT NULL REFERENCES data_sources(id),
		annotated_data_source_id BIGINT REFERENCES data_sources(id),
		task_id BIGINT NOT NULL REFERENCES tasks(id)
	)`,

	`CREATE TABLE IF NOT EXISTS annotation_queries (
		annotation_id BIGINT NOT NULL REFERENCES annotations(id),
		ord INTEGER NOT NULL,
		slug VARCHAR NOT NULL,
		expression VARCHAR NOT NULL
	)`,

	// sample_groups backs the group:<id> clause of the selection grammar
	// (§4.6). Group membership itself is managed out of band (by whatever
	// assigns samples to a cohort); this table only records it.
	`CREATE TABLE IF NOT EXISTS sample_groups (
		sample_id BIGINT NOT NULL REFERENCES samples(id),
		group_id BIGINT NOT NULL,
		UNIQUE(sample_id, group_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sample_groups_group ON sample_groups(group_id)`,
}
