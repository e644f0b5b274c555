// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package selection

import (
	"strings"
	"testing"

	"github.com/varda/varda/internal/varderr"
)

func TestParseTautology(t *testing.T) {
	e, err := Parse("*")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sql, args := e.Plan("sm")
	if sql != "sm.active AND sm.coverage_profile" {
		t.Fatalf("unexpected SQL: %s", sql)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestParseSampleClause(t *testing.T) {
	e, err := Parse("sample:42")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sql, args := e.Plan("sm")
	if sql != "sm.id = ?" {
		t.Fatalf("unexpected SQL: %s", sql)
	}
	if len(args) != 1 || args[0] != int64(42) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestParseAndOrPrecedence(t *testing.T) {
	// 'and' binds tighter than 'or': "sample:1 or sample:2 and sample:3"
	// parses as "sample:1 or (sample:2 and sample:3)".
	e, err := Parse("sample:1 or sample:2 and sample:3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	o, ok := e.(or)
	if !ok {
		t.Fatalf("expected top-level or, got %T", e)
	}
	if _, ok := o.l.(sampleClause); !ok {
		t.Fatalf("expected left of or to be a bare sampleClause, got %T", o.l)
	}
	if _, ok := o.r.(and); !ok {
		t.Fatalf("expected right of or to be an and, got %T", o.r)
	}
}

func TestParseNotPrecedence(t *testing.T) {
	e, err := Parse("* and not sample:1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, ok := e.(and)
	if !ok {
		t.Fatalf("expected top-level and, got %T", e)
	}
	if _, ok := a.r.(not); !ok {
		t.Fatalf("expected right of and to be not, got %T", a.r)
	}
}

func TestParseParens(t *testing.T) {
	e, err := Parse("(sample:1 or sample:2) and group:3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, ok := e.(and)
	if !ok {
		t.Fatalf("expected top-level and, got %T", e)
	}
	if _, ok := a.l.(or); !ok {
		t.Fatalf("expected left of and to be or, got %T", a.l)
	}
}

func TestParseRejectsBareNotStar(t *testing.T) {
	_, err := Parse("not *")
	if !varderr.Is(err, varderr.InvalidSelection) {
		t.Fatalf("expected InvalidSelection, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("sample:abc"); !varderr.Is(err, varderr.InvalidSelection) {
		t.Fatalf("expected InvalidSelection for bad id, got %v", err)
	}
	if _, err := Parse("sample:1 and"); err == nil {
		t.Fatalf("expected error for dangling operator")
	}
	if _, err := Parse("(sample:1"); err == nil {
		t.Fatalf("expected error for unclosed paren")
	}
}

func TestPlanExplicitSampleIDsBypassesCoverage(t *testing.T) {
	e, err := Parse("* or sample:7")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sql, args := PlanExplicitSampleIDs(e, "sm")
	if sql == "false" {
		t.Fatalf("expected a real condition, got false")
	}
	found := false
	for _, a := range args {
		if a == int64(7) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sample id 7 among bound args, got %v", args)
	}
}

func TestPlanExplicitSampleIDsEmptyWhenNoSampleClause(t *testing.T) {
	e, err := Parse("group:3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sql, args := PlanExplicitSampleIDs(e, "sm")
	if sql != "false" || len(args) != 0 {
		t.Fatalf("expected false/no-args for group-only selection, got %q %v", sql, args)
	}
}

func TestPlanExplicitSampleIDsExcludesNegatedSample(t *testing.T) {
	// "not sample:5" never matches sample 5, so even though 5 is named
	// literally, the conjunction with Plan(alias) filters it back out.
	e, err := Parse("* and not sample:5")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sql, _ := PlanExplicitSampleIDs(e, "sm")
	if sql == "false" {
		t.Fatalf("expected a real (if unsatisfiable for sm=5) condition")
	}
	if !strings.Contains(sql, "NOT (sm.id = ?)") {
		t.Fatalf("expected the negated sample clause in the condition, got %q", sql)
	}
}
