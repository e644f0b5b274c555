// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package ingest implements the streaming variation/coverage import
// pipeline (§4.5, C6). Parsing is hand-rolled in the teacher's
// byte-scanning style (taglib.go's FindAll is the template: a bufio
// reader, no regexp in the hot path) rather than reaching for a VCF
// library, since none of the retrieved examples carry one and the format
// here is a handful of tab-separated columns.
package ingest

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"

	"github.com/varda/varda/internal/blobstore"
	"github.com/varda/varda/internal/reference"
	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/task"
	"github.com/varda/varda/internal/varderr"
)

// ZygosityMode selects how a genotype call is derived from a VCF data
// line (§4.5 step 3).
type ZygosityMode int

const (
	// GTBased reads the GT subfield directly (the default).
	GTBased ZygosityMode = iota
	// PLBased picks the most likely genotype from the PL subfield,
	// dropping calls below PLQualityThreshold.
	PLBased
)

// Stats accumulates the bookkeeping an ingest run returns from Run:
// accepted/rejected rows, the supplemented reference-mismatch warning
// counter (SPEC_FULL.md §4), and the decompressed bytes consumed. Only the
// row counts and the byte offset reach the task row, through the periodic
// checkpoints; no checkpoint is forced when the run ends.
type Stats struct {
	Accepted          int64
	Rejected          int64
	MismatchWarnings  int64
	BytesConsumed     int64
}

// Importer is the shared contract both import flavors satisfy, so
// internal/task's worker loop can drive either one without knowing which.
type Importer interface {
	Run(ctx context.Context, h *task.Handle) (Stats, error)
}

const (
	defaultBatchSize      = 5000
	defaultCheckpointEvery = 10
)

// checkDuplicate implements §4.5 "Duplication": before starting, if the
// owner+digest pair already resolves to a row of the same kind bound to
// sampleID, fail with DuplicateImport.
func checkDuplicate(ctx context.Context, s *store.Store, owner, digest string, sampleID int64, kind string) error {
	dsID, ok, err := s.DataSourceByDigest(ctx, owner, digest)
	if err != nil || !ok {
		return err
	}
	var bound bool
	switch kind {
	case "variation":
		bound, err = s.HasVariationFor(ctx, sampleID, dsID)
	case "coverage":
		bound, err = s.HasCoverageFor(ctx, sampleID, dsID)
	}
	if err != nil {
		return err
	}
	if bound {
		return varderr.New(varderr.DuplicateImport, fmt.Sprintf("%s already imported for this sample from this data source", kind))
	}
	return nil
}

// resumeOrCreate implements §4.5's resumption rule (S6): a worker re-
// dispatched against a crashed run (resumeOffset > 0) reuses the DataSource
// and child row (Variation or Coverage) a prior attempt already created,
// instead of re-running checkDuplicate — which would otherwise see its own
// earlier attempt as a pre-existing import and reject the resume with
// DuplicateImport. A fresh run (resumeOffset == 0) always goes through
// checkDuplicate, reuses the owner's DataSource for this digest when one
// exists (another sample may already have imported the same file), and
// creates the child row.
func resumeOrCreate(
	ctx context.Context, s *store.Store, owner, digest, filetype string, gzipped bool,
	sampleID, resumeOffset int64, kind string,
	idFor func(ctx context.Context, sampleID, dataSourceID int64) (int64, bool, error),
	create func(ctx context.Context, sampleID, dataSourceID int64) (int64, error),
) (dsID, childID int64, err error) {
	if resumeOffset > 0 {
		existing, ok, err := s.DataSourceByDigest(ctx, owner, digest)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			dsID = existing
			if id, ok, err := idFor(ctx, sampleID, dsID); err != nil {
				return 0, 0, err
			} else if ok {
				childID = id
			}
		}
	}
	if dsID == 0 {
		if err := checkDuplicate(ctx, s, owner, digest, sampleID, kind); err != nil {
			return 0, 0, err
		}
		existing, ok, err := s.DataSourceByDigest(ctx, owner, digest)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			dsID = existing
		} else if dsID, err = s.CreateDataSource(ctx, digest, filetype, gzipped, owner); err != nil {
			return 0, 0, err
		}
	}
	if childID == 0 {
		childID, err = create(ctx, sampleID, dsID)
		if err != nil {
			return 0, 0, err
		}
	}
	return dsID, childID, nil
}

// openerFor is implemented by a Store that supports an owner-scoped
// secondary-root fallback (blobstore.SecondaryStore.OpenFor); a plain Store
// only implements Open, which never consults SECONDARY_DATA_DIR (§6).
type openerFor interface {
	OpenFor(ctx context.Context, owner, digest string) (io.ReadCloser, error)
}

// OpenSource opens the blob, transparently decompressing when gzipped,
// and fast-forwards resumeOffset bytes of the *decompressed* stream so a
// restarted worker can resume a checkpointed run without re-deriving rows
// it already flushed (§4.5, SPEC_FULL.md §4 "checkpoint byte-count
// fast-forward"): the checkpoint records a position in the decompressed
// stream, since that's the only position stable across different gzip
// block boundaries on resumption. When blobs is a SecondaryStore, the open
// routes through OpenFor so a miss on the primary root falls back to
// SECONDARY_DATA_DIR (§6); a plain Store just uses Open.
func OpenSource(ctx context.Context, blobs blobstore.Store, owner, digest string, gzipped bool, resumeOffset int64) (io.ReadCloser, error) {
	var raw io.ReadCloser
	var err error
	if of, ok := blobs.(openerFor); ok {
		raw, err = of.OpenFor(ctx, owner, digest)
	} else {
		raw, err = blobs.Open(ctx, digest)
	}
	if err != nil {
		return nil, err
	}
	var r io.Reader = raw
	if gzipped {
		gz, err := pgzip.NewReader(raw)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("ingest: open gzip stream: %w", err)
		}
		r = gz
	}
	if resumeOffset > 0 {
		if _, err := io.CopyN(io.Discard, r, resumeOffset); err != nil {
			raw.Close()
			return nil, fmt.Errorf("ingest: fast-forward to checkpoint offset %d: %w", resumeOffset, err)
		}
	}
	return struct {
		io.Reader
		io.Closer
	}{r, raw}, nil
}

// CountingReader tracks bytes read so progress/checkpointing can be
// computed from the decompressed stream position without the scanner
// exposing it directly.
type CountingReader struct {
	r io.Reader
	n int64
}

// NewCountingReader wraps r so its cumulative byte count can be read back
// via N, for use by any streaming consumer (ingest, annotate) that
// checkpoints by decompressed byte offset.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// N reports the number of bytes read so far.
func (c *CountingReader) N() int64 {
	return c.n
}

func splitAlts(alt string) []string {
	if alt == "" || alt == "." {
		return nil
	}
	return strings.Split(alt, ",")
}

// alleleSupport reports how many copies of alt-allele index (1-based, VCF
// convention: 0 = REF) appear across every sample column of a VCF data
// line, implementing the "pooling" semantics of §4 (a multi-sample VCF's
// columns are flattened into one target Sample's Observation).
func alleleSupport(cfg ingestConfig, formatCol string, sampleCols []string, alleleIndex int) (support int, zygosity string) {
	gtSubfield := -1
	plSubfield := -1
	for i, key := range strings.Split(formatCol, ":") {
		switch key {
		case "GT":
			gtSubfield = i
		case "PL":
			plSubfield = i
		}
	}
	for _, col := range sampleCols {
		parts := strings.Split(col, ":")
		var gt string
		switch cfg.zygosityMode {
		case PLBased:
			if plSubfield < 0 || plSubfield >= len(parts) {
				continue
			}
			gt = mostLikelyGenotype(parts[plSubfield], cfg.plQualityThreshold)
		default:
			if gtSubfield < 0 || gtSubfield >= len(parts) {
				continue
			}
			gt = parts[gtSubfield]
		}
		if gt == "" {
			continue
		}
		alleles := strings.FieldsFunc(gt, func(r rune) bool { return r == '/' || r == '|' })
		copies := 0
		for _, a := range alleles {
			n, err := strconv.Atoi(a)
			if err == nil && n == alleleIndex {
				copies++
			}
		}
		if copies == 0 {
			continue
		}
		support += copies
		if copies >= 2 {
			zygosity = "hom"
		} else if zygosity == "" {
			zygosity = "het"
		}
	}
	return support, zygosity
}

// mostLikelyGenotype picks the genotype with the lowest (most likely) PL
// value, dropping the call entirely if the best and second-best PL are
// too close to distinguish confidently (below threshold separation).
func mostLikelyGenotype(pl string, threshold float64) string {
	vals := strings.Split(pl, ",")
	if len(vals) == 0 {
		return ""
	}
	best, bestIdx := -1.0, -1
	second := math.Inf(1)
	for i, v := range vals {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return ""
		}
		if bestIdx == -1 || n < best {
			if bestIdx != -1 {
				second = best
			}
			best, bestIdx = n, i
		} else if n < second {
			second = n
		}
	}
	if bestIdx == -1 || second-best < threshold {
		return ""
	}
	// vals is a PL-ordered triangular genotype list: index k corresponds
	// to genotype (a,b) with a<=b and k = b*(b+1)/2 + a. Diploid-only.
	b := 0
	for b*(b+1)/2 <= bestIdx {
		b++
	}
	b--
	a := bestIdx - b*(b+1)/2
	return fmt.Sprintf("%d/%d", a, b)
}

type ingestConfig struct {
	batchSize        int
	checkpointEvery  int
	zygosityMode     ZygosityMode
	plQualityThreshold float64
	mismatchAbortThreshold int64
	oracle           reference.Oracle
}

func defaultConfig() ingestConfig {
	return ingestConfig{
		batchSize:       defaultBatchSize,
		checkpointEvery: defaultCheckpointEvery,
	}
}

func logRejected(chrom string, pos uint64, err error) {
	log.WithError(err).Debugf("ingest: rejecting record at %s:%d", chrom, pos)
}

// sortRegions implements the "merged where adjacent-or-overlapping within
// a single record" rule of §4.5 for BED coverage rows: a sort-and-sweep
// pass, since BED input isn't required to arrive pre-sorted.
func sortRegions(rows []store.RegionRow) []store.RegionRow {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Chrom != rows[j].Chrom {
			return rows[i].Chrom < rows[j].Chrom
		}
		return rows[i].Begin < rows[j].Begin
	})
	var merged []store.RegionRow
	for _, r := range rows {
		if n := len(merged); n > 0 && merged[n-1].Chrom == r.Chrom && r.Begin <= merged[n-1].End+1 {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
