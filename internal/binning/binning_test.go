// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package binning

import (
	"testing"

	"github.com/varda/varda/internal/varderr"
)

func TestAssignOutOfRange(t *testing.T) {
	_, err := Assign(0, MaxCoord+1)
	if !varderr.Is(err, varderr.OutOfRange) {
		t.Fatalf("expected OutOfRange, got %v", err)
	}
}

func TestAssignDeterministic(t *testing.T) {
	b1, err := Assign(1000, 2000)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := Assign(1000, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if b1 != b2 {
		t.Fatalf("Assign not deterministic: %d != %d", b1, b2)
	}
}

// TestBinningCorrectness is invariant 4 from spec §8: for every interval I
// and query interval Q that overlaps I, Assign(I) is in Overlapping(Q).
func TestBinningCorrectness(t *testing.T) {
	intervals := [][2]uint64{
		{100, 200},
		{1 << 16, 1 << 16 + 500},
		{1 << 20, 1 << 22},
		{0, 1},
		{1 << 28, 1<<28 + 1<<20},
	}
	queries := [][2]uint64{
		{0, 1 << 30},
		{1 << 16, 1 << 16 + 10},
		{1 << 20, 1 << 21},
		{1 << 28, 1 << 29},
	}
	for _, iv := range intervals {
		bin, err := Assign(iv[0], iv[1])
		if err != nil {
			t.Fatalf("Assign(%v): %v", iv, err)
		}
		for _, q := range queries {
			overlaps := q[0] < iv[1] && iv[0] < q[1]
			if !overlaps {
				continue
			}
			found := false
			for _, b := range Overlapping(q[0], q[1]) {
				if b == bin {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("interval %v (bin %d) overlaps query %v but bin not in Overlapping(query)", iv, bin, q)
			}
		}
	}
}

func TestOverlappingSmallAndDeterministic(t *testing.T) {
	a := Overlapping(100, 200)
	b := Overlapping(100, 200)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic length")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic at %d: %d != %d", i, a[i], b[i])
		}
	}
	if len(a) == 0 || len(a) > 64 {
		t.Fatalf("expected a small bounded fan-out, got %d bins", len(a))
	}
}
