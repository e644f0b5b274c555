// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package config loads the environment-variable table of spec §6: plain
// os.Getenv reads with typed defaults, in the teacher's style (cmd.go and
// arvados.go read ARVADOS_* and GOGC directly off the environment rather
// than through a config-loading library).
package config

import (
	"os"
	"strconv"
)

const (
	defaultMaxContentLength = 1 << 30 // 1 GiB
	defaultAPIURLPrefix     = ""
)

// Config holds the process-wide settings of spec §6.
type Config struct {
	// DataDir is the blob store root (§4.4 C4).
	DataDir string
	// SecondaryDataDir is an alternate read-only blob root, consulted
	// when a digest isn't found under DataDir.
	SecondaryDataDir string
	// SecondaryDataByUser namespaces SecondaryDataDir into a per-owner
	// subdirectory (SecondaryDataDir/<owner>/...) when true.
	SecondaryDataByUser bool
	// MaxContentLength caps upload size in bytes.
	MaxContentLength int64
	// Genome is the reference FASTA path; empty disables §4.3
	// reference validation.
	Genome string
	// ReferenceMismatchAbort holds REFERENCE_MISMATCH_ABORT (default
	// true). No importer reads it: VariationImporter drops a mismatching
	// record with a counted warning, and aborts only when its own
	// MismatchAbortThreshold is positive and exceeded.
	ReferenceMismatchAbort bool
	// CORSAllowOrigin is echoed verbatim as the CORS response header by
	// the (out-of-scope) HTTP boundary.
	CORSAllowOrigin string
	// APIURLPrefix is the HTTP surface's mount path.
	APIURLPrefix string
}

// Load reads Config from the environment, applying the documented
// defaults for anything unset.
func Load() Config {
	return Config{
		DataDir:                 os.Getenv("DATA_DIR"),
		SecondaryDataDir:        os.Getenv("SECONDARY_DATA_DIR"),
		SecondaryDataByUser:     getBool("SECONDARY_DATA_BY_USER", false),
		MaxContentLength:        getInt64("MAX_CONTENT_LENGTH", defaultMaxContentLength),
		Genome:                  os.Getenv("GENOME"),
		ReferenceMismatchAbort:  getBool("REFERENCE_MISMATCH_ABORT", true),
		CORSAllowOrigin:         os.Getenv("CORS_ALLOW_ORIGIN"),
		APIURLPrefix:            envOr("API_URL_PREFIX", defaultAPIURLPrefix),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
