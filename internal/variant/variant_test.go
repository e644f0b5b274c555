// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package variant

import (
	"testing"

	"github.com/varda/varda/internal/reference"
	"github.com/varda/varda/internal/varderr"
)

// TestNormalizeIdempotent is invariant 1 of spec §8.
func TestNormalizeIdempotent(t *testing.T) {
	cases := []struct {
		begin    uint64
		ref, obs string
	}{
		{100, "A", "G"},
		{100, "ACAAA", "A"},
		{100, "A", "ACAAA"},
		{100, "", "A"},
		{100, "AC", "GT"},
	}
	for _, c := range cases {
		v1 := Normalize("19", c.begin, c.ref, c.obs)
		v2 := Normalize(v1.Chrom, v1.Begin, v1.Ref, v1.Observed)
		if v1 != v2 {
			t.Errorf("not idempotent: %+v != %+v", v1, v2)
		}
	}
}

// TestDeletionIdentity is scenario S3: "chr19 100 . ACAAA A" normalizes to
// (chr19, 101, 104, ""), a deletion of CAAA, and a right-shifted
// representation of the same event maps to the same identity.
func TestDeletionIdentity(t *testing.T) {
	v := Normalize("chr19", 100, "ACAAA", "A")
	if v.Begin != 101 || v.End != 104 || v.Ref != "CAAA" || v.Observed != "" {
		t.Fatalf("got %+v", v)
	}
	if v.Classify() != Deletion {
		t.Fatalf("expected Deletion, got %v", v.Classify())
	}

	// Right-shifted equivalent: CAAAC deleted starting one base later,
	// same net event once trimmed.
	right := Normalize("chr19", 101, "CAAAC", "C")
	if right != v {
		t.Fatalf("right-shifted form %+v does not match canonical %+v", right, v)
	}
}

func TestInsertion(t *testing.T) {
	v := Normalize("19", 100, "", "ACGT")
	if v.End != v.Begin-1 {
		t.Fatalf("expected End == Begin-1 for insertion, got %+v", v)
	}
	if v.Classify() != Insertion {
		t.Fatalf("expected Insertion, got %v", v.Classify())
	}
}

func TestSNV(t *testing.T) {
	v := Normalize("19", 100, "A", "G")
	if v.Begin != 100 || v.End != 100 || v.Classify() != SNV {
		t.Fatalf("got %+v classify %v", v, v.Classify())
	}
}

func TestCanonicalizeChromosomeAlias(t *testing.T) {
	oracle := reference.Mem{"19": repeatSeq("A", 300)}
	oracle["19"] = setBase(oracle["19"], 100, 'A')
	v, err := Canonicalize(oracle, "chr19", 100, "A", "G")
	if err != nil {
		t.Fatal(err)
	}
	if v.Chrom != "19" {
		t.Fatalf("expected canonical chrom 19, got %s", v.Chrom)
	}
}

func TestCanonicalizeUnknownChromosome(t *testing.T) {
	oracle := reference.Mem{"19": "ACGT"}
	_, err := Canonicalize(oracle, "chr20", 1, "A", "G")
	if !varderr.Is(err, varderr.UnknownChromosome) {
		t.Fatalf("expected UnknownChromosome, got %v", err)
	}
}

func TestCanonicalizeReferenceMismatch(t *testing.T) {
	oracle := reference.Mem{"19": repeatSeq("A", 300)}
	_, err := Canonicalize(oracle, "19", 100, "G", "T")
	if !varderr.Is(err, varderr.ReferenceMismatch) {
		t.Fatalf("expected ReferenceMismatch, got %v", err)
	}
}

func repeatSeq(base string, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = base[0]
	}
	return string(out)
}

func setBase(seq string, pos uint64, b byte) string {
	out := []byte(seq)
	out[pos-1] = b
	return string(out)
}
