// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package annotate implements §4.8's annotation pipeline (C8): rewriting a
// submitted VCF with per-variant frequency fields drawn from a set of named
// sample selections. The streaming line-by-line rewrite is generalized
// from the teacher's annotate.go (which streams a tile library and emits
// one diff record per tile) to emitting one rewritten VCF record per input
// record, with the I/O structure kept the same: a bufio reader, a
// bufio writer, and nothing held in memory beyond the current line.
package annotate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/varda/varda/internal/blobstore"
	"github.com/varda/varda/internal/frequency"
	"github.com/varda/varda/internal/ingest"
	"github.com/varda/varda/internal/reference"
	"github.com/varda/varda/internal/selection"
	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/task"
	"github.com/varda/varda/internal/variant"
	"github.com/varda/varda/internal/varderr"
)

// NamedQuery is one (slug, selection) pair from an annotation request
// (§3 Annotation, §4.8 step 1). Slug must already be a valid INFO-ID
// fragment; the caller (boundary layer) is responsible for sanitizing it.
type NamedQuery struct {
	Slug string
	Expr selection.Expr
}

// Stats reports per-run bookkeeping, mirroring ingest.Stats so the two
// pipelines checkpoint the same way.
type Stats struct {
	RecordsAnnotated int64
	BytesConsumed    int64
}

const defaultCheckpointEvery = 5000

// Pipeline runs C8 against a Store/blobstore pair.
type Pipeline struct {
	Store  *store.Store
	Blobs  blobstore.Store
	Oracle reference.Oracle // nil disables reference validation (§4.3)

	CheckpointEvery int
	// ResumeOffset is the decompressed byte offset to fast-forward past,
	// taken from a prior checkpoint (mirrors C6's resumption rule).
	ResumeOffset int64
}

func (p *Pipeline) checkpointEvery() int {
	if p.CheckpointEvery > 0 {
		return p.CheckpointEvery
	}
	return defaultCheckpointEvery
}

// Annotate implements §4.8: it streams annotationID's original DataSource,
// appends `<slug>_OBS`/`<slug>_COV`/`<slug>_FREQ` INFO fields for every
// query and every allele, writes the result through the blob store, and
// records the resulting DataSource on the Annotation. Only VCF originals
// are supported: BED coverage tracks carry no REF/ALT allele to compute a
// frequency against, so there is nothing for C7 to annotate (see
// DESIGN.md).
func (p *Pipeline) Annotate(ctx context.Context, h *task.Handle, annotationID int64) (annotatedDigest string, stats Stats, err error) {
	ann, err := p.Store.GetAnnotation(ctx, annotationID)
	if err != nil {
		return "", stats, err
	}
	storedQueries, err := p.Store.AnnotationQueries(ctx, annotationID)
	if err != nil {
		return "", stats, err
	}
	if len(storedQueries) == 0 {
		return "", stats, varderr.New(varderr.BadRequest, "annotation has no queries")
	}
	queries := make([]NamedQuery, len(storedQueries))
	for i, sq := range storedQueries {
		expr, err := selection.Parse(sq.Expression)
		if err != nil {
			return "", stats, fmt.Errorf("annotate: parse query %q selection %q: %w", sq.Slug, sq.Expression, err)
		}
		queries[i] = NamedQuery{Slug: sq.Slug, Expr: expr}
	}
	ds, err := p.Store.GetDataSource(ctx, ann.OriginalDataSourceID)
	if err != nil {
		return "", stats, err
	}
	if ds.Filetype != "vcf" {
		return "", stats, varderr.New(varderr.BadRequest, fmt.Sprintf("annotation requires a vcf original, got %q", ds.Filetype))
	}

	src, err := ingest.OpenSource(ctx, p.Blobs, ds.Owner, ds.Digest, ds.Gzipped, p.ResumeOffset)
	if err != nil {
		return "", stats, err
	}
	defer src.Close()
	counting := ingest.NewCountingReader(src)
	scanner := bufio.NewScanner(counting)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	pr, pw := io.Pipe()
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- runWriter(ctx, pw, p, scanner, h, &stats, queries, counting)
	}()

	digest, _, putErr := p.Blobs.Put(ctx, pr)
	werr := <-writeErr
	if werr != nil {
		pr.CloseWithError(werr)
		return "", stats, werr
	}
	if putErr != nil {
		return "", stats, fmt.Errorf("annotate: put output: %w", putErr)
	}

	outDS, err := p.Store.CreateDataSource(ctx, digest, "vcf", false, ds.Owner)
	if err != nil {
		return "", stats, err
	}
	if err := p.Store.SetAnnotationResult(ctx, annotationID, outDS); err != nil {
		return "", stats, err
	}
	return digest, stats, nil
}

// runWriter owns the output side of the pipe: it always closes pw (with an
// error, if one occurred) so the Put on the other end unblocks.
func runWriter(ctx context.Context, pw *io.PipeWriter, p *Pipeline, scanner *bufio.Scanner, h *task.Handle, stats *Stats, queries []NamedQuery, counting *ingest.CountingReader) (err error) {
	defer func() {
		pw.CloseWithError(err)
	}()
	bw := bufio.NewWriterSize(pw, 256*1024)
	defer bw.Flush()

	headerWritten := false
	writeInfoHeaders := func() error {
		for _, q := range queries {
			lines := []string{
				fmt.Sprintf("##INFO=<ID=%s_OBS,Number=A,Type=Integer,Description=\"Observed allele count for selection %q\">\n", q.Slug, q.Slug),
				fmt.Sprintf("##INFO=<ID=%s_COV,Number=A,Type=Integer,Description=\"Covering sample pool size for selection %q\">\n", q.Slug, q.Slug),
				fmt.Sprintf("##INFO=<ID=%s_FREQ,Number=A,Type=Float,Description=\"Observed/covered frequency for selection %q\">\n", q.Slug, q.Slug),
			}
			for _, l := range lines {
				if _, err := io.WriteString(bw, l); err != nil {
					return err
				}
			}
		}
		return nil
	}

	linesSinceCheckpoint := 0
	checkpoint := func() error {
		stats.BytesConsumed = p.ResumeOffset + counting.N()
		linesSinceCheckpoint = 0
		if err := h.Checkpoint(ctx, 0, stats.BytesConsumed, stats.RecordsAnnotated, 0); err != nil {
			return err
		}
		cancelled, err := h.Cancelled(ctx)
		if err != nil {
			return err
		}
		if cancelled {
			return varderr.New(varderr.Cancelled, "annotate cancelled")
		}
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "##") {
			if _, err := io.WriteString(bw, line+"\n"); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			if !headerWritten {
				if err := writeInfoHeaders(); err != nil {
					return err
				}
				headerWritten = true
			}
			if _, err := io.WriteString(bw, line+"\n"); err != nil {
				return err
			}
			continue
		}
		out, err := annotateRecord(ctx, line, p, queries)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(bw, out+"\n"); err != nil {
			return err
		}
		stats.RecordsAnnotated++
		linesSinceCheckpoint++
		if linesSinceCheckpoint >= p.checkpointEvery() {
			if err := checkpoint(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("annotate: scan vcf: %w", err)
	}
	return checkpoint()
}

// annotateRecord appends the three INFO fields per query, per allele, to
// one VCF data line (§4.8 step 2).
func annotateRecord(ctx context.Context, line string, p *Pipeline, queries []NamedQuery) (string, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return line, nil
	}
	chrom := fields[0]
	pos, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return line, nil
	}
	ref := fields[3]
	alts := strings.Split(fields[4], ",")

	var added []string
	for _, q := range queries {
		var obs, cov, frq []string
		for _, alt := range alts {
			v, err := variant.Canonicalize(p.Oracle, chrom, pos, ref, alt)
			if err != nil {
				obs = append(obs, ".")
				cov = append(cov, ".")
				frq = append(frq, ".")
				continue
			}
			result, err := frequency.Freq(ctx, p.Store, v, q.Expr)
			if err != nil {
				return "", fmt.Errorf("annotate: freq for %s:%d: %w", chrom, pos, err)
			}
			obs = append(obs, strconv.Itoa(result.Observed))
			cov = append(cov, strconv.Itoa(result.Covered))
			frq = append(frq, strconv.FormatFloat(result.Ratio(), 'f', 6, 64))
		}
		added = append(added,
			fmt.Sprintf("%s_OBS=%s", q.Slug, strings.Join(obs, ",")),
			fmt.Sprintf("%s_COV=%s", q.Slug, strings.Join(cov, ",")),
			fmt.Sprintf("%s_FREQ=%s", q.Slug, strings.Join(frq, ",")),
		)
	}

	info := fields[7]
	if info == "" || info == "." {
		fields[7] = strings.Join(added, ";")
	} else {
		fields[7] = info + ";" + strings.Join(added, ";")
	}
	return strings.Join(fields, "\t"), nil
}
