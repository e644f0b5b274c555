// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package annotate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/varda/varda/internal/blobstore"
	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/task"
	"github.com/varda/varda/internal/variant"
)

func TestAnnotateAppendsFrequencyFields(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	blobs, err := blobstore.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}

	sampleID, err := s.CreateSample(ctx, "alice", "s1", 10, false, false, "")
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	vcfDigest, _, err := blobs.Put(ctx, strings.NewReader(
		"##fileformat=VCFv4.2\n"+
			"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\n"+
			"chr1\t100\t.\tA\tT\t.\tPASS\t.\tGT\t0/1\n"))
	if err != nil {
		t.Fatalf("Put source vcf: %v", err)
	}

	m := task.NewManager(s)
	if _, err := m.CreateTask(ctx, "ingest", "sample:1"); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	ih, _, ok, err := m.Claim(ctx, "ingest")
	if err != nil || !ok {
		t.Fatalf("Claim ingest: ok=%v err=%v", ok, err)
	}
	dsID, err := s.CreateDataSource(ctx, vcfDigest, "vcf", false, "alice")
	if err != nil {
		t.Fatalf("CreateDataSource: %v", err)
	}
	variationID, err := s.CreateVariation(ctx, sampleID, dsID)
	if err != nil {
		t.Fatalf("CreateVariation: %v", err)
	}
	v, err := variant.Canonicalize(nil, "chr1", 100, "A", "T")
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	variantID, err := s.UpsertVariant(ctx, nil, v)
	if err != nil {
		t.Fatalf("UpsertVariant: %v", err)
	}
	if err := s.AddObservations(ctx, []store.ObservationRow{{
		VariantID:   variantID,
		VariationID: variationID,
		Support:     1,
		Zygosity:    "het",
	}}); err != nil {
		t.Fatalf("AddObservations: %v", err)
	}
	if err := m.Finish(ctx, ih.TaskID(), true, ""); err != nil {
		t.Fatalf("Finish ingest: %v", err)
	}

	annTaskID, err := m.CreateTask(ctx, "annotate", "data_source:1")
	if err != nil {
		t.Fatalf("CreateTask annotate: %v", err)
	}
	// Selected by an explicit sample:<id> clause, so §4.7(ii) contributes
	// this sample's pool_size unconditionally even without a coverage
	// profile or any CoveredRegion.
	annotationID, err := s.CreateAnnotation(ctx, dsID, annTaskID, []store.AnnotationQuery{
		{Slug: "global", Expression: fmt.Sprintf("sample:%d", sampleID)},
	})
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	h, _, ok, err := m.Claim(ctx, "annotate")
	if err != nil || !ok {
		t.Fatalf("Claim annotate: ok=%v err=%v", ok, err)
	}

	p := &Pipeline{Store: s, Blobs: blobs}
	digest, stats, err := p.Annotate(ctx, h, annotationID)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if stats.RecordsAnnotated != 1 {
		t.Fatalf("expected 1 record annotated, got %d", stats.RecordsAnnotated)
	}

	rc, err := blobs.Open(ctx, digest)
	if err != nil {
		t.Fatalf("Open annotated blob: %v", err)
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	text := string(out)
	if !strings.Contains(text, "##INFO=<ID=global_OBS") {
		t.Fatalf("missing global_OBS header, got:\n%s", text)
	}
	if !strings.Contains(text, "global_OBS=1;global_COV=10;global_FREQ=0.100000") {
		t.Fatalf("missing expected INFO annotation, got:\n%s", text)
	}

	ann, err := s.GetAnnotation(ctx, annotationID)
	if err != nil {
		t.Fatalf("GetAnnotation: %v", err)
	}
	if ann.AnnotatedDataSourceID == 0 {
		t.Fatalf("expected annotation to record the annotated data source")
	}
}
