// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/varda/varda/internal/annotate"
	"github.com/varda/varda/internal/store"
)

// queryFlags collects repeated -query slug=expr flags (§4.8 step 1).
type queryFlags []store.AnnotationQuery

func (q *queryFlags) String() string { return fmt.Sprint([]store.AnnotationQuery(*q)) }

func (q *queryFlags) Set(v string) error {
	slug, expr, ok := strings.Cut(v, "=")
	if !ok || slug == "" || expr == "" {
		return fmt.Errorf("expected slug=expression, got %q", v)
	}
	*q = append(*q, store.AnnotationQuery{Slug: slug, Expression: expr})
	return nil
}

// annotateCmd runs a single §4.8 annotation run against an already-stored
// DataSource, synchronously (see importCmd's doc comment for why).
type annotateCmd struct{}

func (c *annotateCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	flags.SetOutput(stderr)
	dataSourceID := flags.Int64("datasource", 0, "original data source `id`")
	var queries queryFlags
	flags.Var(&queries, "query", "slug=expression, may be repeated")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *dataSourceID == 0 || len(queries) == 0 {
		fmt.Fprintln(stderr, "usage: -datasource <id> -query slug=expr [-query slug2=expr2 ...]")
		return 2
	}

	e, err := newEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer e.close()
	ctx := backgroundContext()

	taskID, err := e.manager.CreateTask(ctx, "annotate", fmt.Sprintf("data_source:%d", *dataSourceID))
	if err != nil {
		fmt.Fprintln(stderr, "create task:", err)
		return 1
	}
	annotationID, err := e.store.CreateAnnotation(ctx, *dataSourceID, taskID, queries)
	if err != nil {
		fmt.Fprintln(stderr, "create annotation:", err)
		return 1
	}
	h, claimed, ok, err := e.manager.Claim(ctx, "annotate")
	if err != nil || !ok {
		fmt.Fprintln(stderr, "claim:", err)
		return 1
	}

	p := &annotate.Pipeline{Store: e.store, Blobs: e.blobs, Oracle: e.oracle, ResumeOffset: claimed.CheckpointOffset}
	digest, stats, err := p.Annotate(ctx, h, annotationID)
	if err != nil {
		e.manager.Finish(ctx, taskID, false, err.Error())
		fmt.Fprintln(stderr, "annotate failed:", err)
		return 1
	}
	if err := e.manager.Finish(ctx, taskID, true, ""); err != nil {
		fmt.Fprintln(stderr, "finish:", err)
		return 1
	}
	fmt.Fprintf(stdout, "annotation %d: %d records -> digest %s\n", annotationID, stats.RecordsAnnotated, digest)
	return 0
}
