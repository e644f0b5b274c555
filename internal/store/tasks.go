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

// TaskState is one node of the waiting -> running -> {success, failure}
// state machine of §4.8.
type TaskState string

const (
	TaskWaiting TaskState = "waiting"
	TaskRunning TaskState = "running"
	TaskSuccess TaskState = "success"
	TaskFailure TaskState = "failure"
)

// Task mirrors §3's Task entity.
type Task struct {
	ID               int64
	Kind             string
	State            TaskState
	Progress         int
	Error            string
	Target           string
	CheckpointOffset int64
	RowsAccepted     int64
	RowsRejected     int64
	CancelRequested  bool
}

// CreateTask inserts a new, waiting task (§4.8: tasks are created waiting
// and claimed by a worker, never started inline by the request handler).
func (s *Store) CreateTask(ctx context.Context, kind, target string) (int64, error) {
	var id int64
	row := s.db.QueryRowContext(ctx, `INSERT INTO tasks (kind, target) VALUES (?, ?) RETURNING id`, kind, target)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("store: create task: %w", err)
	}
	return id, nil
}

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (Task, error) {
	t, err := s.getTaskTx(ctx, nil, id)
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Store) getTaskTx(ctx context.Context, tx *sql.Tx, id int64) (Task, error) {
	var t Task
	var state string
	row := sqlExecer(tx, s.db).QueryRowContext(ctx, `SELECT id, kind, state, progress, error, target,
		checkpoint_offset, rows_accepted, rows_rejected, cancel_requested FROM tasks WHERE id = ?`, id)
	err := row.Scan(&t.ID, &t.Kind, &state, &t.Progress, &t.Error, &t.Target,
		&t.CheckpointOffset, &t.RowsAccepted, &t.RowsRejected, &t.CancelRequested)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, varderr.New(varderr.NotFound, fmt.Sprintf("task %d", id))
	} else if err != nil {
		return Task{}, fmt.Errorf("store: get task: %w", err)
	}
	t.State = TaskState(state)
	return t, nil
}

// ClaimTask atomically transitions the oldest waiting task of kind from
// waiting to running and returns it, implementing the worker poll loop's
// "claim" step (§4.8, grounded on the container-runner poll pattern: a
// worker repeatedly asks "is there work for me" rather than work being
// pushed to it). Returns (Task{}, false, nil) if no waiting task exists.
func (s *Store) ClaimTask(ctx context.Context, kind string) (Task, bool, error) {
	var claimed Task
	var found bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM tasks WHERE kind = ? AND state = ? ORDER BY id LIMIT 1`, kind, TaskWaiting).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		} else if err != nil {
			return fmt.Errorf("store: claim task: select: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET state = ? WHERE id = ?`, TaskRunning, id); err != nil {
			return fmt.Errorf("store: claim task: update: %w", err)
		}
		t, err := s.getTaskTx(ctx, tx, id)
		if err != nil {
			return err
		}
		claimed, found = t, true
		return nil
	})
	if err != nil {
		return Task{}, false, err
	}
	return claimed, found, nil
}

// Checkpoint persists a running task's progress and byte offset so a
// restarted worker can fast-forward past already-processed input (§4.8,
// supplemented feature in SPEC_FULL.md §4: checkpoint byte-count
// fast-forward).
func (s *Store) Checkpoint(ctx context.Context, taskID int64, progress int, offset, accepted, rejected int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET progress = ?, checkpoint_offset = ?, rows_accepted = ?, rows_rejected = ?
		WHERE id = ? AND state = ?`, progress, offset, accepted, rejected, taskID, TaskRunning)
	if err != nil {
		return fmt.Errorf("store: checkpoint task: %w", err)
	}
	return nil
}

// FinishTask transitions a running task to success or failure (§4.8). msg
// is recorded as the task's error field on failure and ignored on success.
func (s *Store) FinishTask(ctx context.Context, taskID int64, success bool, msg string) error {
	state := TaskSuccess
	if !success {
		state = TaskFailure
	} else {
		msg = ""
	}
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET state = ?, error = ?, progress = 100 WHERE id = ?`, state, msg, taskID)
	if err != nil {
		return fmt.Errorf("store: finish task: %w", err)
	}
	return nil
}

// RescheduleTask implements §4.9's admin action: a finished task (success or
// failure) is returned to waiting so a worker can claim it again. error is
// cleared and progress reset to 0; checkpoint_offset/rows_accepted/
// rows_rejected are left intact so a subsequent Claim can resume past
// already-processed input (§4.5, S6) instead of starting over.
func (s *Store) RescheduleTask(ctx context.Context, taskID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET state = ?, error = '', progress = 0
		WHERE id = ? AND state IN (?, ?)`, TaskWaiting, taskID, TaskSuccess, TaskFailure)
	if err != nil {
		return fmt.Errorf("store: reschedule task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: reschedule task: %w", err)
	}
	if n == 0 {
		return varderr.New(varderr.BadRequest, "only a finished task may be rescheduled")
	}
	return nil
}

// RequestCancel sets the cancel flag a running task's worker polls for
// (§4.8). Cancellation of an already-finished task is a silent no-op.
func (s *Store) RequestCancel(ctx context.Context, taskID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET cancel_requested = true WHERE id = ? AND state IN (?, ?)`,
		taskID, TaskWaiting, TaskRunning)
	if err != nil {
		return fmt.Errorf("store: request cancel: %w", err)
	}
	return nil
}

// CancelRequested reports whether taskID's cancel flag is set, polled by a
// running worker between batches.
func (s *Store) CancelRequested(ctx context.Context, taskID int64) (bool, error) {
	var flag bool
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM tasks WHERE id = ?`, taskID).Scan(&flag)
	if err != nil {
		return false, fmt.Errorf("store: cancel requested: %w", err)
	}
	return flag, nil
}
