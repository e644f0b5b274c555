// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package selection implements the sample-selection grammar of §4.6: a
// Boolean expression over sample:<id> and group:<id> clauses, 'and'/'or'/
// 'not', parentheses, and the tautology '*'. Parsing produces an Expr
// whose Plan method compiles it to a SQL fragment plus bound parameters,
// so the planner folds selection directly into internal/store's frequency
// queries in one round-trip.
package selection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/varda/varda/internal/varderr"
)

// Expr is a parsed selection expression.
type Expr interface {
	// Plan compiles the expression to a boolean SQL fragment (without
	// surrounding parens) referencing the samples table under the given
	// alias, plus the parameters it binds in left-to-right order.
	Plan(alias string) (sql string, args []any)
	// explicitSampleIDs collects every sample id named by a (possibly
	// nested) sample:<id> clause, used to implement the "explicit
	// sample clauses bypass the coverage-profile filter" rule of §4.7.
	explicitSampleIDs(out map[int64]bool)
}

// PlanExplicitSampleIDs compiles the sub-condition of §4.7(ii): samples
// that both satisfy the overall selection and were named by a literal
// sample:<id> clause somewhere in it, and therefore contribute pool_size
// unconditionally regardless of coverage profile.
func PlanExplicitSampleIDs(e Expr, alias string) (string, []any) {
	ids := map[int64]bool{}
	e.explicitSampleIDs(ids)
	if len(ids) == 0 {
		return "false", nil
	}
	planSQL, planArgs := e.Plan(alias)
	placeholders := make([]string, 0, len(ids))
	args := append([]any{}, planArgs...)
	for id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	return fmt.Sprintf("(%s) AND (%s.id IN (%s))", planSQL, alias, strings.Join(placeholders, ",")), args
}

type tautology struct{}

func (tautology) Plan(alias string) (string, []any) {
	return fmt.Sprintf("%s.active AND %s.coverage_profile", alias, alias), nil
}
func (tautology) explicitSampleIDs(map[int64]bool) {}

type sampleClause struct{ id int64 }

func (c sampleClause) Plan(alias string) (string, []any) {
	return fmt.Sprintf("%s.id = ?", alias), []any{c.id}
}
func (c sampleClause) explicitSampleIDs(out map[int64]bool) { out[c.id] = true }

type groupClause struct{ id int64 }

func (c groupClause) Plan(alias string) (string, []any) {
	return fmt.Sprintf("%s.id IN (SELECT sample_id FROM sample_groups WHERE group_id = ?)", alias), []any{c.id}
}
func (groupClause) explicitSampleIDs(map[int64]bool) {}

type not struct{ e Expr }

func (n not) Plan(alias string) (string, []any) {
	sql, args := n.e.Plan(alias)
	return fmt.Sprintf("NOT (%s)", sql), args
}
func (n not) explicitSampleIDs(out map[int64]bool) { n.e.explicitSampleIDs(out) }

type and struct{ l, r Expr }

func (e and) Plan(alias string) (string, []any) {
	lsql, largs := e.l.Plan(alias)
	rsql, rargs := e.r.Plan(alias)
	return fmt.Sprintf("(%s) AND (%s)", lsql, rsql), append(largs, rargs...)
}
func (e and) explicitSampleIDs(out map[int64]bool) {
	e.l.explicitSampleIDs(out)
	e.r.explicitSampleIDs(out)
}

type or struct{ l, r Expr }

func (e or) Plan(alias string) (string, []any) {
	lsql, largs := e.l.Plan(alias)
	rsql, rargs := e.r.Plan(alias)
	return fmt.Sprintf("(%s) OR (%s)", lsql, rsql), append(largs, rargs...)
}
func (e or) explicitSampleIDs(out map[int64]bool) {
	e.l.explicitSampleIDs(out)
	e.r.explicitSampleIDs(out)
}

// Parse parses a selection expression per the grammar in §4.6:
//
//	expr   := '*' | clause | '(' expr ')' | 'not' expr | expr 'and' expr | expr 'or' expr
//	clause := 'sample:' id | 'group:' id
//
// with precedence not > and > or, left-associative.
func Parse(input string) (Expr, error) {
	toks, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, varderr.New(varderr.InvalidSelection, fmt.Sprintf("unexpected token %q", p.toks[p.pos]))
	}
	if err := checkUnboundedNot(e); err != nil {
		return nil, err
	}
	return e, nil
}

// checkUnboundedNot rejects `not *` anywhere in the expression, not only at
// the root (§4.6: "to prevent accidentally unbounded queries") — e.g.
// `* or not *` nests the same unbounded negation one level down `or`, so
// the walk recurses through `not`/`and`/`or` rather than only inspecting e
// itself.
func checkUnboundedNot(e Expr) error {
	switch v := e.(type) {
	case not:
		if _, isTaut := v.e.(tautology); isTaut {
			return varderr.New(varderr.InvalidSelection, "'not *' is not allowed without at least one positive clause")
		}
		return checkUnboundedNot(v.e)
	case and:
		if err := checkUnboundedNot(v.l); err != nil {
			return err
		}
		return checkUnboundedNot(v.r)
	case or:
		if err := checkUnboundedNot(v.l); err != nil {
			return err
		}
		return checkUnboundedNot(v.r)
	}
	return nil
}

type token struct {
	kind string // "star","sample","group","and","or","not","lparen","rparen"
	id   int64
}

func (t token) String() string { return t.kind }

func tokenize(input string) ([]token, error) {
	var toks []token
	i := 0
	n := len(input)
	for i < n {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{kind: "lparen"})
			i++
		case c == ')':
			toks = append(toks, token{kind: "rparen"})
			i++
		case c == '*':
			toks = append(toks, token{kind: "star"})
			i++
		default:
			j := i
			for j < n && input[j] != ' ' && input[j] != '(' && input[j] != ')' {
				j++
			}
			word := input[i:j]
			i = j
			switch {
			case word == "and":
				toks = append(toks, token{kind: "and"})
			case word == "or":
				toks = append(toks, token{kind: "or"})
			case word == "not":
				toks = append(toks, token{kind: "not"})
			case strings.HasPrefix(word, "sample:"):
				id, err := strconv.ParseInt(strings.TrimPrefix(word, "sample:"), 10, 64)
				if err != nil {
					return nil, varderr.New(varderr.InvalidSelection, fmt.Sprintf("bad sample id in %q", word))
				}
				toks = append(toks, token{kind: "sample", id: id})
			case strings.HasPrefix(word, "group:"):
				id, err := strconv.ParseInt(strings.TrimPrefix(word, "group:"), 10, 64)
				if err != nil {
					return nil, varderr.New(varderr.InvalidSelection, fmt.Sprintf("bad group id in %q", word))
				}
				toks = append(toks, token{kind: "group", id: id})
			default:
				return nil, varderr.New(varderr.InvalidSelection, fmt.Sprintf("unrecognized token %q", word))
			}
		}
	}
	return toks, nil
}

// parser is a small hand-written recursive-descent parser: the grammar has
// five productions, so a parser-generator dependency (participle, antlr)
// would be pure overhead (see DESIGN.md).
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

// parseOr := parseAnd (('or') parseAnd)*
func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != "or" {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = or{left, right}
	}
}

// parseAnd := parseNot (('and') parseNot)*
func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != "and" {
			return left, nil
		}
		p.pos++
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = and{left, right}
	}
}

// parseNot := 'not' parseNot | parseAtom
func (p *parser) parseNot() (Expr, error) {
	tok, ok := p.peek()
	if ok && tok.kind == "not" {
		p.pos++
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return not{inner}, nil
	}
	return p.parseAtom()
}

// parseAtom := '*' | 'sample:' id | 'group:' id | '(' parseOr ')'
func (p *parser) parseAtom() (Expr, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, varderr.New(varderr.InvalidSelection, "unexpected end of expression")
	}
	switch tok.kind {
	case "star":
		p.pos++
		return tautology{}, nil
	case "sample":
		p.pos++
		return sampleClause{id: tok.id}, nil
	case "group":
		p.pos++
		return groupClause{id: tok.id}, nil
	case "lparen":
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != "rparen" {
			return nil, varderr.New(varderr.InvalidSelection, "expected closing paren")
		}
		p.pos++
		return e, nil
	default:
		return nil, varderr.New(varderr.InvalidSelection, fmt.Sprintf("unexpected token %q", tok))
	}
}
