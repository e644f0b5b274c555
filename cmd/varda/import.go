// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/varda/varda/internal/ingest"
)

// importCmd drives a single §4.5 variation or coverage import from a local
// file, synchronously: create the task row, claim it, run the importer,
// record the terminal state. This is the "local operation" half of
// SPEC_FULL's cmd/varda role; a worker process instead drains the queue
// via serveCmd.
type importCmd struct {
	kind string // "variation" | "coverage"
}

func (c *importCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	flags.SetOutput(stderr)
	sampleID := flags.Int64("sample", 0, "target sample `id`")
	path := flags.String("file", "", "input VCF/BED `file`")
	gzipped := flags.Bool("gzip", false, "input is gzip-compressed")
	owner := flags.String("owner", "", "owning user")
	batchSize := flags.Int("batch-size", 0, "rows per batch (0 = default)")
	plMode := flags.Bool("pl-zygosity", false, "derive genotype from PL instead of GT (variation only)")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *sampleID == 0 || *path == "" || *owner == "" {
		fmt.Fprintln(stderr, "usage: -sample <id> -owner <user> -file <path> [-gzip]")
		return 2
	}

	e, err := newEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer e.close()
	ctx := backgroundContext()

	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer f.Close()
	digest, _, err := e.blobs.Put(ctx, f)
	if err != nil {
		fmt.Fprintln(stderr, "put:", err)
		return 1
	}

	target := encodeIngestTarget(*sampleID, digest, *gzipped, *owner)
	taskID, err := e.manager.CreateTask(ctx, c.kind, target)
	if err != nil {
		fmt.Fprintln(stderr, "create task:", err)
		return 1
	}
	h, claimed, ok, err := e.manager.Claim(ctx, c.kind)
	if err != nil || !ok {
		fmt.Fprintln(stderr, "claim:", err)
		return 1
	}

	var stats ingest.Stats
	switch c.kind {
	case "variation":
		mode := ingest.GTBased
		if *plMode {
			mode = ingest.PLBased
		}
		im := &ingest.VariationImporter{
			Store: e.store, Blobs: e.blobs, Oracle: e.oracle,
			Owner: *owner, SampleID: *sampleID, Digest: digest, Gzipped: *gzipped,
			BatchSize: *batchSize, ZygosityMode: mode,
			ResumeOffset: claimed.CheckpointOffset,
		}
		stats, err = im.Run(ctx, h)
	case "coverage":
		im := &ingest.CoverageImporter{
			Store: e.store, Blobs: e.blobs,
			Owner: *owner, SampleID: *sampleID, Digest: digest, Gzipped: *gzipped,
			BatchSize: *batchSize,
			ResumeOffset: claimed.CheckpointOffset,
		}
		stats, err = im.Run(ctx, h)
	}
	if err != nil {
		e.manager.Finish(ctx, taskID, false, err.Error())
		fmt.Fprintln(stderr, "import failed:", err)
		return 1
	}
	if err := e.manager.Finish(ctx, taskID, true, ""); err != nil {
		fmt.Fprintln(stderr, "finish:", err)
		return 1
	}
	fmt.Fprintf(stdout, "task %d: accepted=%d rejected=%d mismatches=%d\n", taskID, stats.Accepted, stats.Rejected, stats.MismatchWarnings)
	return 0
}
