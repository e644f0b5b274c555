// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package reference

import (
	"fmt"
	"strings"

	"github.com/varda/varda/internal/varderr"
)

// Mem is an in-memory Oracle backed by a plain map, for tests that don't
// want to mmap a real FASTA file.
type Mem map[string]string

func (m Mem) Chromosomes() []Chromosome {
	out := make([]Chromosome, 0, len(m))
	for name, seq := range m {
		out = append(out, Chromosome{Name: name, Length: uint64(len(seq))})
	}
	return out
}

func (m Mem) Canonical(chrom string) (string, bool) {
	if _, ok := m[chrom]; ok {
		return chrom, true
	}
	alt := strings.TrimPrefix(chrom, "chr")
	if alt != chrom {
		if _, ok := m[alt]; ok {
			return alt, true
		}
	} else if _, ok := m["chr"+chrom]; ok {
		return "chr" + chrom, true
	}
	return "", false
}

func (m Mem) Bases(chrom string, begin, end uint64) (string, error) {
	seq, ok := m[chrom]
	if !ok {
		return "", varderr.New(varderr.UnknownChromosome, chrom)
	}
	if begin < 1 || end > uint64(len(seq)) || begin > end {
		return "", varderr.New(varderr.OutOfRange, fmt.Sprintf("%s:%d-%d exceeds length %d", chrom, begin, end, len(seq)))
	}
	return seq[begin-1 : end], nil
}
