// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package task

import (
	"context"
	"strconv"
	"testing"

	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/varderr"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	s, err := store.Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewManager(s), s
}

func TestActivateRequiresVariation(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	sampleID, err := s.CreateSample(ctx, "alice", "s1", 1, false, false, "")
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	if err := m.Activate(ctx, sampleID); !varderr.Is(err, varderr.BadRequest) {
		t.Fatalf("expected BadRequest activating sample with no Variation, got %v", err)
	}

	dsID, err := s.CreateDataSource(ctx, "digest1", "vcf", false, "alice")
	if err != nil {
		t.Fatalf("CreateDataSource: %v", err)
	}
	if _, err := s.CreateVariation(ctx, sampleID, dsID); err != nil {
		t.Fatalf("CreateVariation: %v", err)
	}

	if err := m.Activate(ctx, sampleID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	sm, err := s.GetSample(ctx, sampleID)
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if !sm.Active {
		t.Fatalf("expected sample to be active")
	}
}

func TestActivateRequiresCoverageWhenDeclared(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	sampleID, err := s.CreateSample(ctx, "alice", "s1", 1, true, false, "")
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	dsID, err := s.CreateDataSource(ctx, "digest1", "vcf", false, "alice")
	if err != nil {
		t.Fatalf("CreateDataSource: %v", err)
	}
	if _, err := s.CreateVariation(ctx, sampleID, dsID); err != nil {
		t.Fatalf("CreateVariation: %v", err)
	}

	if err := m.Activate(ctx, sampleID); !varderr.Is(err, varderr.BadRequest) {
		t.Fatalf("expected BadRequest without a Coverage, got %v", err)
	}

	dsID2, err := s.CreateDataSource(ctx, "digest2", "bed", false, "alice")
	if err != nil {
		t.Fatalf("CreateDataSource 2: %v", err)
	}
	if _, err := s.CreateCoverage(ctx, sampleID, dsID2); err != nil {
		t.Fatalf("CreateCoverage: %v", err)
	}
	if err := m.Activate(ctx, sampleID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
}

func TestActivateBlockedByActiveTask(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	sampleID, err := s.CreateSample(ctx, "alice", "s1", 1, false, false, "")
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	dsID, err := s.CreateDataSource(ctx, "digest1", "vcf", false, "alice")
	if err != nil {
		t.Fatalf("CreateDataSource: %v", err)
	}
	if _, err := s.CreateVariation(ctx, sampleID, dsID); err != nil {
		t.Fatalf("CreateVariation: %v", err)
	}
	if _, err := m.CreateTask(ctx, "ingest", sampleTarget(sampleID)); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := m.Activate(ctx, sampleID); !varderr.Is(err, varderr.BadRequest) {
		t.Fatalf("expected BadRequest while a task is waiting, got %v", err)
	}
}

func TestClaimIsIdempotentUnderDoubleDelivery(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	taskID, err := m.CreateTask(ctx, "ingest", "sample:1")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	h1, t1, ok1, err := m.Claim(ctx, "ingest")
	if err != nil || !ok1 {
		t.Fatalf("first Claim: ok=%v err=%v", ok1, err)
	}
	if t1.ID != taskID {
		t.Fatalf("unexpected claimed id: %d", t1.ID)
	}

	// A redelivered "work may be available" signal finds nothing waiting.
	_, _, ok2, err := m.Claim(ctx, "ingest")
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if ok2 {
		t.Fatalf("expected second Claim to find no waiting task")
	}

	if err := h1.Checkpoint(ctx, 10, 100, 5, 0); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	cancelled, err := h1.Cancelled(ctx)
	if err != nil {
		t.Fatalf("Cancelled: %v", err)
	}
	if cancelled {
		t.Fatalf("expected not cancelled")
	}
}

func sampleTarget(id int64) string {
	return "sample:" + strconv.FormatInt(id, 10)
}
