// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"fmt"
	"path/filepath"

	"github.com/varda/varda/internal/blobstore"
	"github.com/varda/varda/internal/config"
	"github.com/varda/varda/internal/reference"
	"github.com/varda/varda/internal/store"
	"github.com/varda/varda/internal/task"
)

// env bundles the dependencies every subcommand needs, built once from the
// process environment (§6). Constructed fresh per command invocation: this
// is a CLI, not a long-lived server, so there's no benefit to caching it
// across commands.
type env struct {
	cfg     config.Config
	store   *store.Store
	blobs   blobstore.Store
	oracle  reference.Oracle
	manager *task.Manager
}

// newEnv loads the current environment and opens the store at
// DATA_DIR/catalog.duckdb (the process's durable state lives alongside its
// blobs, under the one directory spec §6 names).
func newEnv() (*env, error) {
	cfg := config.Load()
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("DATA_DIR must be set")
	}
	s, err := store.Open(filepath.Join(cfg.DataDir, "catalog.duckdb"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	primary, err := blobstore.NewFilesystemStore(cfg.DataDir)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	var blobs blobstore.Store = primary
	if cfg.SecondaryDataDir != "" {
		blobs = blobstore.NewSecondaryStore(primary, cfg.SecondaryDataDir, cfg.SecondaryDataByUser)
	}
	var oracle reference.Oracle
	if cfg.Genome != "" {
		fa, err := reference.Open(cfg.Genome)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open reference %s: %w", cfg.Genome, err)
		}
		oracle = fa
	}
	return &env{
		cfg:     cfg,
		store:   s,
		blobs:   blobs,
		oracle:  oracle,
		manager: task.NewManager(s),
	}, nil
}

func (e *env) close() {
	e.store.Close()
	if c, ok := e.oracle.(interface{ Close() error }); ok {
		c.Close()
	}
}
