// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/varda/varda/internal/annotate"
	log "github.com/sirupsen/logrus"

	"github.com/varda/varda/internal/ingest"
	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/task"
)

// encodeIngestTarget packs everything a worker needs to replay a variation
// or coverage import into the task's opaque Target column, since there is
// no external broker payload to carry it (§1's broker is an external
// collaborator out of scope; C9's Task.target is this system's only
// channel for it).
func encodeIngestTarget(sampleID int64, digest string, gzipped bool, owner string) string {
	return strings.Join([]string{
		strconv.FormatInt(sampleID, 10), digest, strconv.FormatBool(gzipped), owner,
	}, "|")
}

func decodeIngestTarget(target string) (sampleID int64, digest string, gzipped bool, owner string, err error) {
	parts := strings.Split(target, "|")
	if len(parts) != 4 {
		return 0, "", false, "", fmt.Errorf("malformed ingest target %q", target)
	}
	sampleID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false, "", err
	}
	gzipped, err = strconv.ParseBool(parts[2])
	if err != nil {
		return 0, "", false, "", err
	}
	return sampleID, parts[1], gzipped, parts[3], nil
}

// serveCmd runs the worker poll loop of §4.9 (C9) against the "variation",
// "coverage", and "annotate" task kinds concurrently, generalized from the
// teacher's arvadosContainerRunner.RunContext container-poll loop (see
// internal/task's doc comment).
type serveCmd struct{}

func (c *serveCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	flags.SetOutput(stderr)
	poll := flags.Duration("poll", 2*time.Second, "queue poll interval")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	e, err := newEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer e.close()
	ctx := backgroundContext()

	var wg sync.WaitGroup
	kinds := map[string]task.Work{
		"variation": ingestWork(e, ingest.GTBased),
		"coverage":  coverageWork(e),
		"annotate":  annotateWork(e),
	}
	for kind, work := range kinds {
		kind, work := kind, work
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.manager.Run(ctx, kind, *poll, work); err != nil {
				log.WithError(err).Warnf("serve: %s loop exited", kind)
			}
		}()
	}
	log.Infof("serve: polling every %s for variation/coverage/annotate tasks", *poll)
	wg.Wait()
	return 0
}

func ingestWork(e *env, mode ingest.ZygosityMode) task.Work {
	return func(ctx context.Context, h *task.Handle, t store.Task) error {
		sampleID, digest, gzipped, owner, err := decodeIngestTarget(t.Target)
		if err != nil {
			return err
		}
		im := &ingest.VariationImporter{
			Store: e.store, Blobs: e.blobs, Oracle: e.oracle,
			Owner: owner, SampleID: sampleID, Digest: digest, Gzipped: gzipped,
			ZygosityMode: mode,
			ResumeOffset: t.CheckpointOffset,
		}
		stats, err := im.Run(ctx, h)
		if err != nil {
			return err
		}
		log.Infof("task %d: variation import accepted=%d rejected=%d", t.ID, stats.Accepted, stats.Rejected)
		return nil
	}
}

func coverageWork(e *env) task.Work {
	return func(ctx context.Context, h *task.Handle, t store.Task) error {
		sampleID, digest, gzipped, owner, err := decodeIngestTarget(t.Target)
		if err != nil {
			return err
		}
		im := &ingest.CoverageImporter{
			Store: e.store, Blobs: e.blobs,
			Owner: owner, SampleID: sampleID, Digest: digest, Gzipped: gzipped,
			ResumeOffset: t.CheckpointOffset,
		}
		stats, err := im.Run(ctx, h)
		if err != nil {
			return err
		}
		log.Infof("task %d: coverage import accepted=%d rejected=%d", t.ID, stats.Accepted, stats.Rejected)
		return nil
	}
}

func annotateWork(e *env) task.Work {
	return func(ctx context.Context, h *task.Handle, t store.Task) error {
		ann, err := e.store.AnnotationByTask(ctx, t.ID)
		if err != nil {
			return err
		}
		p := &annotate.Pipeline{Store: e.store, Blobs: e.blobs, Oracle: e.oracle, ResumeOffset: t.CheckpointOffset}
		digest, stats, err := p.Annotate(ctx, h, ann.ID)
		if err != nil {
			return err
		}
		log.Infof("task %d: annotation %d produced %s (%d records)", t.ID, ann.ID, digest, stats.RecordsAnnotated)
		return nil
	}
}
