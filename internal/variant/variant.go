// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package variant implements the normalization rule (§4.3) that decides
// when two textual variant descriptions denote the same genomic event.
package variant

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/varda/varda/internal/reference"
	"github.com/varda/varda/internal/varderr"
)

// Kind classifies a normalized variant by shape.
type Kind int

const (
	SNV Kind = iota
	Insertion
	Deletion
	MNV
)

func (k Kind) String() string {
	switch k {
	case SNV:
		return "snv"
	case Insertion:
		return "insertion"
	case Deletion:
		return "deletion"
	case MNV:
		return "mnv"
	default:
		return "unknown"
	}
}

// Variant is the canonical identity of a genomic event (§3). Begin is the
// first affected reference position (one-based); End = Begin+len(Ref)-1,
// inclusive, or Begin-1 for a pure insertion.
type Variant struct {
	Chrom    string
	Begin    uint64
	End      uint64
	Ref      string
	Observed string
}

// Classify reports the shape of a normalized variant.
func (v Variant) Classify() Kind {
	switch {
	case len(v.Ref) == 1 && len(v.Observed) == 1:
		return SNV
	case len(v.Ref) == 0:
		return Insertion
	case len(v.Observed) == 0:
		return Deletion
	default:
		return MNV
	}
}

// Normalize implements §4.3: trim the longest common suffix, then the
// longest common prefix, adjusting begin and recomputing end. It is
// idempotent (invariant 1 of §8): normalizing an already-normalized
// variant returns it unchanged.
func Normalize(chrom string, begin uint64, ref, obs string) Variant {
	r, o := []byte(ref), []byte(obs)

	// Longest common suffix.
	suf := 0
	for suf < len(r) && suf < len(o) && r[len(r)-1-suf] == o[len(o)-1-suf] {
		suf++
	}
	r = r[:len(r)-suf]
	o = o[:len(o)-suf]

	// Longest common prefix of what remains.
	pre := 0
	for pre < len(r) && pre < len(o) && r[pre] == o[pre] {
		pre++
	}
	r = r[pre:]
	o = o[pre:]

	newBegin := begin + uint64(pre)
	var end uint64
	if len(r) == 0 {
		end = newBegin - 1
	} else {
		end = newBegin + uint64(len(r)) - 1
	}

	return Variant{
		Chrom:    chrom,
		Begin:    newBegin,
		End:      end,
		Ref:      string(r),
		Observed: string(o),
	}
}

// Canonicalize resolves chrom through the oracle's chromosome-name set
// (e.g. "chr20" vs "20") before normalizing, and, when oracle is non-nil,
// validates the claimed ref sequence against the reference (§4.3). A
// mismatch is returned as a *varderr.E with Kind ReferenceMismatch, along
// with the normalized variant, so callers can downgrade it to a counted
// warning instead of aborting the whole ingestion task.
func Canonicalize(oracle reference.Oracle, chrom string, begin uint64, ref, obs string) (Variant, error) {
	name := chrom
	if oracle != nil {
		if canon, ok := oracle.Canonical(chrom); ok {
			name = canon
		} else {
			return Variant{}, varderr.New(varderr.UnknownChromosome, chrom)
		}
	}
	v := Normalize(name, begin, ref, obs)
	if oracle != nil && len(ref) > 0 {
		claimedEnd := begin + uint64(len(ref)) - 1
		actual, err := oracle.Bases(name, begin, claimedEnd)
		if err != nil {
			return v, err
		}
		if actual != ref {
			return v, varderr.New(varderr.ReferenceMismatch, mismatchMessage(name, begin, ref, actual))
		}
	}
	return v, nil
}

func mismatchMessage(chrom string, begin uint64, claimed, actual string) string {
	diffs, _ := diffmatchpatch.New().DiffMain(claimed, actual, false)
	desc := diffmatchpatch.New().DiffPrettyText(diffs)
	return fmt.Sprintf("%s:%d claimed ref %q but reference has %q (%s)", chrom, begin, claimed, actual, desc)
}
