// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package frequency implements §4.7's freq() operation: for a variant and a
// sample selection, the summed support of matching observations, the summed
// pool size of selected samples covering the position, and the total
// support (equal to the covered sum).
package frequency

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/varda/varda/internal/selection"
	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/variant"
)

// Result is the triple §4.7 defines a frequency query to return: Observed
// is Σ support over matching observations, Covered is Σ pool_size over
// samples matched by the selection that cover the position, and
// TotalSupport is the denominator §4.7 names separately from Covered but
// defines as identical to it ("total_support ≡ covered for denominators").
type Result struct {
	Observed     int
	Covered      int
	TotalSupport int
}

// Ratio computes the observed/covered frequency, 0 when nothing covers the
// position (§4.7: a position nothing covers has frequency 0, not an error).
func (r Result) Ratio() float64 {
	if r.Covered == 0 {
		return 0
	}
	return float64(r.Observed) / float64(r.Covered)
}

// Freq implements §4.7 exactly: a variant that hasn't been observed by
// anyone still has a well-defined (zero) frequency, so a missing variants
// row is not an error. One bin-restricted query (via internal/binning,
// inside CountCoveringSamples) bounds the covered-samples half; observed
// support is summed by a second query joined on the variant's own id.
func Freq(ctx context.Context, s *store.Store, v variant.Variant, sel selection.Expr) (Result, error) {
	covered, err := s.CountCoveringSamples(ctx, v.Chrom, v.Begin, sel)
	if err != nil {
		return Result{}, fmt.Errorf("frequency: count covering samples: %w", err)
	}

	row, ok, err := s.FindVariant(ctx, v)
	if err != nil {
		return Result{}, fmt.Errorf("frequency: find variant: %w", err)
	}
	if !ok {
		return Result{Observed: 0, Covered: covered, TotalSupport: covered}, nil
	}

	observed, err := s.CountObservations(ctx, row.ID, sel)
	if err != nil {
		return Result{}, fmt.Errorf("frequency: count observations: %w", err)
	}

	return Result{Observed: observed, Covered: covered, TotalSupport: covered}, nil
}

var chisquared = distuv.ChiSquared{K: 1, Src: rand.NewSource(rand.Uint64())}

// Compare reports the two-tailed p-value for a's frequency differing from
// b's, via a chi-square test on the 2x2 observed/not-observed by cohort
// table. Grounded on the teacher's chisquare.go pvalue helper, generalized
// from a per-tile-variant significance check to a per-query frequency
// comparison (e.g. case cohort vs. control cohort on the same variant).
func Compare(a, b Result) float64 {
	tab := [4]float64{
		float64(a.Covered - a.Observed), float64(b.Covered - b.Observed),
		float64(a.Observed), float64(b.Observed),
	}
	rowTotal := [2]float64{tab[0] + tab[1], tab[2] + tab[3]}
	colTotal := [2]float64{tab[0] + tab[2], tab[1] + tab[3]}
	total := rowTotal[0] + rowTotal[1]
	if total == 0 || rowTotal[0] == 0 || rowTotal[1] == 0 || colTotal[0] == 0 || colTotal[1] == 0 {
		return 1
	}
	var stat float64
	expect := [4]float64{
		rowTotal[0] * colTotal[0] / total, rowTotal[0] * colTotal[1] / total,
		rowTotal[1] * colTotal[0] / total, rowTotal[1] * colTotal[1] / total,
	}
	for i, obs := range tab {
		d := obs - expect[i]
		stat += d * d / expect[i]
	}
	return 1 - chisquared.CDF(stat)
}
