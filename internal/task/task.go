// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package task drives the task state machine and the sample activation
// guard of §4.9 (C9). The worker poll loop (claim, run, record the outcome,
// and retry a failed claim on the next tick at the same fixed interval) is
// grounded on the teacher's arvadosContainerRunner.RunContext
// container-request poll loop: a select over a refresh ticker and a
// cancellation context, generalized from "poll an Arvados container
// request" to "poll/claim a row in the tasks table".
package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/varderr"
)

// Manager owns the task state machine and the sample activation guard. It
// holds no state of its own beyond the store — all durable state lives in
// the tasks/samples tables, so a Manager is cheap to construct per request
// or per worker.
type Manager struct {
	store *store.Store
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Handle is the worker-facing view of a claimed task: a narrow surface
// (Checkpoint, Cancelled) so ingest/annotate pipelines don't need
// the full store API.
type Handle struct {
	store  *store.Store
	taskID int64
}

func (h *Handle) TaskID() int64 { return h.taskID }

// Checkpoint persists progress, decompressed-stream byte offset, and
// accept/reject counters so a restarted worker can fast-forward past
// already-processed input (§4.5, §4.8).
func (h *Handle) Checkpoint(ctx context.Context, progress int, offset, accepted, rejected int64) error {
	return h.store.Checkpoint(ctx, h.taskID, progress, offset, accepted, rejected)
}

// Cancelled reports whether an admin has requested cancellation of this
// task. Callers poll it at each batch/checkpoint boundary (§5).
func (h *Handle) Cancelled(ctx context.Context) (bool, error) {
	return h.store.CancelRequested(ctx, h.taskID)
}

// Claim implements the at-most-one-effect contract of §4.9: it takes the
// per-task row lock (a DuckDB transaction) and transitions the oldest
// waiting task of kind to running, exiting idempotently (found == false)
// if none is waiting. A broker that redelivers the "there may be work"
// signal twice just causes a second Claim that finds nothing to do.
func (m *Manager) Claim(ctx context.Context, kind string) (*Handle, store.Task, bool, error) {
	t, ok, err := m.store.ClaimTask(ctx, kind)
	if err != nil || !ok {
		return nil, store.Task{}, false, err
	}
	return &Handle{store: m.store, taskID: t.ID}, t, true, nil
}

// CreateTask enqueues a new waiting task; a worker picks it up via Claim.
func (m *Manager) CreateTask(ctx context.Context, kind, target string) (int64, error) {
	return m.store.CreateTask(ctx, kind, target)
}

// Finish transitions a running task to its terminal state.
func (m *Manager) Finish(ctx context.Context, taskID int64, success bool, msg string) error {
	return m.store.FinishTask(ctx, taskID, success, msg)
}

// Reschedule implements §4.9's admin action: a failed (or successful) task
// may be returned to waiting, with progress/error cleared, for a retry.
func (m *Manager) Reschedule(ctx context.Context, taskID int64) error {
	return m.store.RescheduleTask(ctx, taskID)
}

// RequestCancel flags a waiting or running task for cooperative
// cancellation (§5); it is a no-op against an already-finished task.
func (m *Manager) RequestCancel(ctx context.Context, taskID int64) error {
	return m.store.RequestCancel(ctx, taskID)
}

// Work is the body a Run loop executes once a task is claimed.
type Work func(ctx context.Context, h *Handle, t store.Task) error

// Run polls for waiting tasks of kind every pollInterval until ctx is
// cancelled, claiming and executing each one found. Modeled on the
// teacher's container-request poll loop: a select over a ticker and the
// caller's context replaces the teacher's websocket event subscription,
// since there is no broker-pushed event channel in scope here — only
// polling against the authoritative Task.State (§1, external collaborator
// "broker" out of scope).
func (m *Manager) Run(ctx context.Context, kind string, pollInterval time.Duration, work Work) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h, t, ok, err := m.Claim(ctx, kind)
			if err != nil {
				log.WithError(err).Warn("task: claim failed, will retry on next tick")
				continue
			}
			if !ok {
				continue
			}
			if err := work(ctx, h, t); err != nil {
				log.WithError(err).Errorf("task %d: %s failed", t.ID, kind)
				if ferr := m.Finish(ctx, t.ID, false, err.Error()); ferr != nil {
					log.WithError(ferr).Errorf("task %d: failed to record failure", t.ID)
				}
				continue
			}
			if err := m.Finish(ctx, t.ID, true, ""); err != nil {
				log.WithError(err).Errorf("task %d: failed to record success", t.ID)
			}
		}
	}
}

// Activate implements §4.9's activation guard: the per-sample advisory
// lock, the no-active-task check, the variation/coverage existence check,
// and the flip to active, all inside one transaction — centralizing the
// guard in one place so it can never be bypassed by a caller that forgets
// a step (REDESIGN FLAGS §9, "sample state as a gate").
func (m *Manager) Activate(ctx context.Context, sampleID int64) error {
	return m.store.WithSampleLock(sampleID, func() error {
		return m.store.WithTx(ctx, func(tx *sql.Tx) error {
			sampleTarget := fmt.Sprintf("sample:%d", sampleID)
			active, err := m.store.CountActiveTasksForSample(ctx, tx, sampleTarget)
			if err != nil {
				return err
			}
			if active > 0 {
				return varderr.New(varderr.BadRequest, "a task targeting this sample is still waiting or running")
			}
			// Read through tx: the store has a single connection, and tx
			// holds it until commit.
			var coverageProfile bool
			err = tx.QueryRowContext(ctx, `SELECT coverage_profile FROM samples WHERE id = ?`, sampleID).Scan(&coverageProfile)
			if errors.Is(err, sql.ErrNoRows) {
				return varderr.New(varderr.NotFound, fmt.Sprintf("sample %d", sampleID))
			} else if err != nil {
				return err
			}
			variations, err := m.store.CountVariations(ctx, tx, sampleID)
			if err != nil {
				return err
			}
			if variations == 0 {
				return varderr.New(varderr.BadRequest, "sample has no Variation to activate with")
			}
			if coverageProfile {
				coverages, err := m.store.CountCoverages(ctx, tx, sampleID)
				if err != nil {
					return err
				}
				if coverages == 0 {
					return varderr.New(varderr.BadRequest, "sample declares a coverage profile but has no Coverage")
				}
			}
			return m.store.SetSampleActiveTx(ctx, tx, sampleID, true)
		})
	})
}

// Deactivate is admin-only per §4.9; the guard only runs in the activate
// direction, so deactivation is unconditional once the per-sample lock is
// held.
func (m *Manager) Deactivate(ctx context.Context, sampleID int64) error {
	return m.store.WithSampleLock(sampleID, func() error {
		return m.store.WithTx(ctx, func(tx *sql.Tx) error {
			return m.store.SetSampleActiveTx(ctx, tx, sampleID, false)
		})
	})
}
