// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"database/sql"
	"strconv"
	"testing"

	"github.com/varda/varda/internal/selection"
	"github.com/varda/varda/internal/variant"
	"github.com/varda/varda/internal/varderr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSampleLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.CreateSample(ctx, "alice", "cohort-a", 2, true, false, "")
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	sm, err := s.GetSample(ctx, id)
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if sm.Active {
		t.Fatalf("new sample should start inactive")
	}
	if sm.PoolSize != 2 || sm.Owner != "alice" {
		t.Fatalf("unexpected sample: %+v", sm)
	}

	if _, err := s.CreateSample(ctx, "alice", "bad", 0, false, false, ""); !varderr.Is(err, varderr.BadRequest) {
		t.Fatalf("expected BadRequest for pool_size 0, got %v", err)
	}

	if _, err := s.GetSample(ctx, 999999); !varderr.Is(err, varderr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDataSourceDuplicateDetection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sampleID, err := s.CreateSample(ctx, "alice", "s1", 1, false, false, "")
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	if _, ok, err := s.DataSourceByDigest(ctx, "alice", "deadbeef"); err != nil || ok {
		t.Fatalf("expected no data source yet, got ok=%v err=%v", ok, err)
	}

	dsID, err := s.CreateDataSource(ctx, "deadbeef", "vcf", false, "alice")
	if err != nil {
		t.Fatalf("CreateDataSource: %v", err)
	}

	if _, ok, err := s.DataSourceByDigest(ctx, "alice", "deadbeef"); err != nil || !ok {
		t.Fatalf("expected data source to resolve, got ok=%v err=%v", ok, err)
	}

	if _, err := s.CreateVariation(ctx, sampleID, dsID); err != nil {
		t.Fatalf("CreateVariation: %v", err)
	}
	if _, err := s.CreateVariation(ctx, sampleID, dsID); !varderr.Is(err, varderr.IntegrityConflict) {
		t.Fatalf("expected IntegrityConflict on duplicate variation, got %v", err)
	}
}

func TestUpsertVariantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	v := variant.Normalize("chr1", 100, "A", "T")
	var id1, id2 int64
	var err error
	id1, err = s.UpsertVariant(ctx, nil, v)
	if err != nil {
		t.Fatalf("UpsertVariant: %v", err)
	}
	id2, err = s.UpsertVariant(ctx, nil, v)
	if err != nil {
		t.Fatalf("UpsertVariant (second): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id, got %d and %d", id1, id2)
	}

	row, ok, err := s.FindVariant(ctx, v)
	if err != nil || !ok {
		t.Fatalf("FindVariant: ok=%v err=%v", ok, err)
	}
	if row.ID != id1 {
		t.Fatalf("FindVariant id mismatch: %d != %d", row.ID, id1)
	}
}

func TestObservationsAndFrequencySelection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sampleA, err := s.CreateSample(ctx, "alice", "a", 2, true, false, "")
	if err != nil {
		t.Fatalf("CreateSample a: %v", err)
	}
	sampleB, err := s.CreateSample(ctx, "alice", "b", 3, true, false, "")
	if err != nil {
		t.Fatalf("CreateSample b: %v", err)
	}
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.SetSampleActiveTx(ctx, tx, sampleA, true); err != nil {
			return err
		}
		return s.SetSampleActiveTx(ctx, tx, sampleB, true)
	}); err != nil {
		t.Fatalf("activate samples: %v", err)
	}

	dsA, err := s.CreateDataSource(ctx, "digestA", "vcf", false, "alice")
	if err != nil {
		t.Fatalf("CreateDataSource a: %v", err)
	}
	dsB, err := s.CreateDataSource(ctx, "digestB", "vcf", false, "alice")
	if err != nil {
		t.Fatalf("CreateDataSource b: %v", err)
	}
	variationA, err := s.CreateVariation(ctx, sampleA, dsA)
	if err != nil {
		t.Fatalf("CreateVariation a: %v", err)
	}
	variationB, err := s.CreateVariation(ctx, sampleB, dsB)
	if err != nil {
		t.Fatalf("CreateVariation b: %v", err)
	}

	v := variant.Normalize("chr1", 500, "G", "A")
	variantID, err := s.UpsertVariant(ctx, nil, v)
	if err != nil {
		t.Fatalf("UpsertVariant: %v", err)
	}

	if err := s.AddObservations(ctx, []ObservationRow{
		{VariantID: variantID, VariationID: variationA, Support: 1, Zygosity: "het"},
		{VariantID: variantID, VariationID: variationB, Support: 2, Zygosity: "hom"},
	}); err != nil {
		t.Fatalf("AddObservations: %v", err)
	}

	all, err := selection.Parse("*")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	total, err := s.CountObservations(ctx, variantID, all)
	if err != nil {
		t.Fatalf("CountObservations: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected support sum 3, got %d", total)
	}

	onlyA, err := selection.Parse("sample:" + strconv.FormatInt(sampleA, 10))
	if err != nil {
		t.Fatalf("Parse sample clause: %v", err)
	}
	aOnly, err := s.CountObservations(ctx, variantID, onlyA)
	if err != nil {
		t.Fatalf("CountObservations (sample A): %v", err)
	}
	if aOnly != 1 {
		t.Fatalf("expected support sum 1 for sample A, got %d", aOnly)
	}
}

func TestTaskClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.CreateTask(ctx, "ingest", "sample:1")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	task, ok, err := s.ClaimTask(ctx, "ingest")
	if err != nil || !ok {
		t.Fatalf("ClaimTask: ok=%v err=%v", ok, err)
	}
	if task.ID != id || task.State != TaskRunning {
		t.Fatalf("unexpected claimed task: %+v", task)
	}

	if _, ok, err := s.ClaimTask(ctx, "ingest"); err != nil || ok {
		t.Fatalf("expected no further waiting tasks, got ok=%v err=%v", ok, err)
	}

	if err := s.Checkpoint(ctx, id, 50, 1024, 10, 1); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	reloaded, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if reloaded.Progress != 50 || reloaded.CheckpointOffset != 1024 {
		t.Fatalf("checkpoint not persisted: %+v", reloaded)
	}

	if err := s.FinishTask(ctx, id, true, ""); err != nil {
		t.Fatalf("FinishTask: %v", err)
	}
	final, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask (final): %v", err)
	}
	if final.State != TaskSuccess || final.Progress != 100 {
		t.Fatalf("unexpected final task state: %+v", final)
	}
}

func TestTaskCancelFlag(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.CreateTask(ctx, "ingest", "sample:1")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, _, err := s.ClaimTask(ctx, "ingest"); err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if err := s.RequestCancel(ctx, id); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	flag, err := s.CancelRequested(ctx, id)
	if err != nil {
		t.Fatalf("CancelRequested: %v", err)
	}
	if !flag {
		t.Fatalf("expected cancel flag to be set")
	}
}

func TestGroupSelection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sampleA, err := s.CreateSample(ctx, "alice", "a", 1, false, false, "")
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if err := s.AddSampleToGroup(ctx, sampleA, 9); err != nil {
		t.Fatalf("AddSampleToGroup: %v", err)
	}
	members, err := s.GroupMembers(ctx, 9)
	if err != nil {
		t.Fatalf("GroupMembers: %v", err)
	}
	if len(members) != 1 || members[0] != sampleA {
		t.Fatalf("unexpected group members: %v", members)
	}
	if err := s.RemoveSampleFromGroup(ctx, sampleA, 9); err != nil {
		t.Fatalf("RemoveSampleFromGroup: %v", err)
	}
	members, err = s.GroupMembers(ctx, 9)
	if err != nil {
		t.Fatalf("GroupMembers (after remove): %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty group after removal, got %v", members)
	}
}
