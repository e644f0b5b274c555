// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package ingest

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/varda/varda/internal/blobstore"
	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/task"
	"github.com/varda/varda/internal/varderr"
)

// CoverageImporter implements §4.5's coverage-import flow: a BED stream of
// zero-based half-open (chrom, begin, end) rows is converted to one-based
// closed, merged where adjacent-or-overlapping within the batch, binned,
// and flushed into C5 as CoveredRegion rows.
type CoverageImporter struct {
	Store *store.Store
	Blobs blobstore.Store

	Owner    string
	SampleID int64
	Digest   string
	Gzipped  bool

	BatchSize       int
	CheckpointEvery int
	ResumeOffset    int64
}

func (im *CoverageImporter) config() ingestConfig {
	cfg := defaultConfig()
	if im.BatchSize > 0 {
		cfg.batchSize = im.BatchSize
	}
	if im.CheckpointEvery > 0 {
		cfg.checkpointEvery = im.CheckpointEvery
	}
	return cfg
}

// Run implements Importer.
func (im *CoverageImporter) Run(ctx context.Context, h *task.Handle) (Stats, error) {
	var stats Stats
	cfg := im.config()

	_, coverageID, err := resumeOrCreate(ctx, im.Store, im.Owner, im.Digest, "bed", im.Gzipped, im.SampleID, im.ResumeOffset, "coverage",
		im.Store.CoverageIDFor, im.Store.CreateCoverage)
	if err != nil {
		return stats, err
	}

	rc, err := OpenSource(ctx, im.Blobs, im.Owner, im.Digest, im.Gzipped, im.ResumeOffset)
	if err != nil {
		return stats, err
	}
	defer rc.Close()

	counting := &CountingReader{r: rc}
	scanner := bufio.NewScanner(counting)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	batch := make([]store.RegionRow, 0, cfg.batchSize)
	flushesSinceCheckpoint := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		merged := sortRegions(batch)
		if err := im.Store.AddRegions(ctx, merged); err != nil {
			return err
		}
		batch = batch[:0]
		flushesSinceCheckpoint++
		stats.BytesConsumed = im.ResumeOffset + counting.n
		if flushesSinceCheckpoint >= cfg.checkpointEvery {
			flushesSinceCheckpoint = 0
			if err := h.Checkpoint(ctx, 0, stats.BytesConsumed, stats.Accepted, stats.Rejected); err != nil {
				return err
			}
		}
		if cancelled, err := h.Cancelled(ctx); err != nil {
			return err
		} else if cancelled {
			return varderr.New(varderr.Cancelled, "ingest cancelled")
		}
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			stats.Rejected++
			continue
		}
		chrom := fields[0]
		begin0, err1 := strconv.ParseUint(fields[1], 10, 64)
		end0, err2 := strconv.ParseUint(fields[2], 10, 64)
		if err1 != nil || err2 != nil || end0 <= begin0 {
			stats.Rejected++
			continue
		}
		batch = append(batch, store.RegionRow{
			CoverageID: coverageID,
			Chrom:      chrom,
			Begin:      begin0 + 1, // zero-based half-open -> one-based closed
			End:        end0,
		})
		stats.Accepted++
		if len(batch) >= cfg.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("ingest: scan bed: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}
