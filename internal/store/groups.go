// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"fmt"
)

// AddSampleToGroup records sampleID as a member of groupID, idempotently.
func (s *Store) AddSampleToGroup(ctx context.Context, sampleID, groupID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sample_groups (sample_id, group_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, sampleID, groupID)
	if err != nil {
		return fmt.Errorf("store: add sample to group: %w", err)
	}
	return nil
}

// RemoveSampleFromGroup reverses AddSampleToGroup.
func (s *Store) RemoveSampleFromGroup(ctx context.Context, sampleID, groupID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sample_groups WHERE sample_id = ? AND group_id = ?`, sampleID, groupID)
	if err != nil {
		return fmt.Errorf("store: remove sample from group: %w", err)
	}
	return nil
}

// GroupMembers returns the sample ids belonging to groupID.
func (s *Store) GroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sample_id FROM sample_groups WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, fmt.Errorf("store: group members: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: group members scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
