// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package binning implements the UCSC binning scheme (Kent et al. 2002)
// used to bound "does this interval overlap that interval" queries at
// genome scale: every interval is assigned to the smallest bin in a
// fixed-depth hierarchy that fully contains it, and a query interval
// enumerates the small, deterministic set of bins that could contain
// something it overlaps.
package binning

import "github.com/varda/varda/internal/varderr"

// binOffsets gives the bin-id offset of each level, finest first, matching
// the classic UCSC extended binning scheme (6 levels, each 8x coarser than
// the one below it, from 128 kb leaf bins up to a single root bin; there is
// no level finer than 128 kb).
var binOffsets = []uint64{4096 + 512 + 64 + 8 + 1, 512 + 64 + 8 + 1, 64 + 8 + 1, 8 + 1, 1, 0}

// binShiftFirst is the bit-shift of the finest (leaf) level; each
// successively coarser level adds binNextShift more bits.
const (
	binShiftFirst = 17 // leaf bin spans 2^17 = 131072 bases
	binNextShift  = 3  // each level is 8x the span of the one below
)

// MaxCoord is the largest end coordinate representable by this binning
// scheme: 2^32 (about 4.3 Gb), the span of the single root bin, enough for
// any single vertebrate chromosome read as one contig.
const MaxCoord = uint64(1) << (binShiftFirst + binNextShift*5)

// Assign returns the smallest bin that fully contains [begin, end)
// (begin inclusive, end exclusive, zero-based — callers pass 0-based
// half-open coordinates; internal/variant deals in 1-based inclusive and
// converts before calling this).
func Assign(begin, end uint64) (uint32, error) {
	if end > MaxCoord || begin > end {
		return 0, varderr.New(varderr.OutOfRange, "interval exceeds binning range")
	}
	if end == begin {
		end = begin + 1
	}
	end--
	startBin, endBin := begin, end
	for level, offset := range binOffsets {
		shift := uint(binShiftFirst + binNextShift*level)
		startBin >>= shift
		endBin >>= shift
		if startBin == endBin {
			return uint32(offset + startBin), nil
		}
		// restore shifted values for the next (coarser) iteration
		startBin, endBin = begin, end
	}
	// Only the root level (offset 0) can be reached here, spanning the
	// whole chromosome.
	return 0, nil
}

// Overlapping returns every bin that can contain an interval overlapping
// [begin, end): at each level, finest first, every bin the query's span
// touches. A short query yields one bin per level; a long one yields more
// at the finer levels. The order is deterministic.
func Overlapping(begin, end uint64) []uint32 {
	if end == begin {
		end = begin + 1
	}
	endIncl := end - 1
	var bins []uint32
	for level, offset := range binOffsets {
		shift := uint(binShiftFirst + binNextShift*level)
		startBin := begin >> shift
		endBin := endIncl >> shift
		for b := startBin; b <= endBin; b++ {
			bins = append(bins, uint32(offset+b))
		}
	}
	return bins
}
