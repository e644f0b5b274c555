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

	log "github.com/sirupsen/logrus"

	"github.com/varda/varda/internal/blobstore"
	"github.com/varda/varda/internal/reference"
	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/task"
	"github.com/varda/varda/internal/variant"
	"github.com/varda/varda/internal/varderr"
)

// VariationImporter implements §4.5's variation-import flow: a VCF stream
// is parsed, normalized, and flushed into C5 as batches of Observation
// rows against a single pooled target Sample.
type VariationImporter struct {
	Store  *store.Store
	Blobs  blobstore.Store
	Oracle reference.Oracle // nil disables reference validation (§4.3)

	Owner    string
	SampleID int64
	Digest   string
	Gzipped  bool

	BatchSize              int
	CheckpointEvery        int
	ZygosityMode           ZygosityMode
	PLQualityThreshold     float64
	MismatchAbortThreshold int64

	// ResumeOffset is the decompressed byte offset to fast-forward past
	// on start, taken from a prior checkpoint (§4.5 resumption).
	ResumeOffset int64
}

func (im *VariationImporter) config() ingestConfig {
	cfg := defaultConfig()
	if im.BatchSize > 0 {
		cfg.batchSize = im.BatchSize
	}
	if im.CheckpointEvery > 0 {
		cfg.checkpointEvery = im.CheckpointEvery
	}
	cfg.zygosityMode = im.ZygosityMode
	cfg.plQualityThreshold = im.PLQualityThreshold
	cfg.mismatchAbortThreshold = im.MismatchAbortThreshold
	cfg.oracle = im.Oracle
	return cfg
}

// Run implements Importer.
func (im *VariationImporter) Run(ctx context.Context, h *task.Handle) (Stats, error) {
	var stats Stats
	cfg := im.config()

	_, variationID, err := resumeOrCreate(ctx, im.Store, im.Owner, im.Digest, "vcf", im.Gzipped, im.SampleID, im.ResumeOffset, "variation",
		im.Store.VariationIDFor, im.Store.CreateVariation)
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

	batch := make([]store.ObservationRow, 0, cfg.batchSize)
	flushesSinceCheckpoint := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.Store.AddObservations(ctx, batch); err != nil {
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

	var sampleColumns int
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "##") {
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			sampleColumns = len(strings.Split(line, "\t")) - 9
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 8 {
			stats.Rejected++
			continue
		}
		chrom := fields[0]
		pos, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			stats.Rejected++
			continue
		}
		ref := fields[3]
		alts := splitAlts(fields[4])
		if len(alts) == 0 {
			continue
		}
		var formatCol string
		var sampleCols []string
		if sampleColumns > 0 && len(fields) >= 9+sampleColumns {
			formatCol = fields[8]
			sampleCols = fields[9 : 9+sampleColumns]
		}

		for i, alt := range alts {
			v, err := variant.Canonicalize(cfg.oracle, chrom, pos, ref, alt)
			if err != nil {
				if varderr.Is(err, varderr.ReferenceMismatch) {
					stats.MismatchWarnings++
					if cfg.mismatchAbortThreshold > 0 && stats.MismatchWarnings > cfg.mismatchAbortThreshold {
						return stats, err
					}
					logRejected(chrom, pos, err)
					continue
				}
				stats.Rejected++
				logRejected(chrom, pos, err)
				continue
			}

			support, zygosity := alleleSupport(cfg, formatCol, sampleCols, i+1)
			if support == 0 {
				continue
			}

			variantID, err := im.Store.UpsertVariant(ctx, nil, v)
			if err != nil {
				return stats, err
			}
			batch = append(batch, store.ObservationRow{
				VariantID:   variantID,
				VariationID: variationID,
				Support:     support,
				Zygosity:    zygosity,
			})
			stats.Accepted++
			if len(batch) >= cfg.batchSize {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("ingest: scan vcf: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}
	if stats.MismatchWarnings > 0 {
		log.Warnf("ingest: sample %d: %d reference-mismatch warnings", im.SampleID, stats.MismatchWarnings)
	}
	return stats, nil
}
