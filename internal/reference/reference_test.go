// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package reference

import (
	"testing"

	"github.com/varda/varda/internal/varderr"
)

func TestMemBases(t *testing.T) {
	m := Mem{"19": "ACGTACGTAC"}
	bases, err := m.Bases("19", 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if bases != "ACGT" {
		t.Fatalf("got %q", bases)
	}
}

func TestMemCanonical(t *testing.T) {
	m := Mem{"19": "ACGT"}
	if name, ok := m.Canonical("chr19"); !ok || name != "19" {
		t.Fatalf("Canonical(chr19) = %q, %v", name, ok)
	}
	if name, ok := m.Canonical("19"); !ok || name != "19" {
		t.Fatalf("Canonical(19) = %q, %v", name, ok)
	}
	if _, ok := m.Canonical("20"); ok {
		t.Fatalf("expected Canonical(20) to fail")
	}
}

func TestMemOutOfRange(t *testing.T) {
	m := Mem{"19": "ACGT"}
	_, err := m.Bases("19", 1, 10)
	if !varderr.Is(err, varderr.OutOfRange) {
		t.Fatalf("expected OutOfRange, got %v", err)
	}
}

func TestMemUnknownChromosome(t *testing.T) {
	m := Mem{"19": "ACGT"}
	_, err := m.Bases("20", 1, 2)
	if !varderr.Is(err, varderr.UnknownChromosome) {
		t.Fatalf("expected UnknownChromosome, got %v", err)
	}
}
