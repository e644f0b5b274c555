// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"DATA_DIR", "SECONDARY_DATA_DIR", "SECONDARY_DATA_BY_USER",
		"MAX_CONTENT_LENGTH", "GENOME", "REFERENCE_MISMATCH_ABORT",
		"CORS_ALLOW_ORIGIN", "API_URL_PREFIX",
	} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.MaxContentLength != defaultMaxContentLength {
		t.Fatalf("expected default max content length, got %d", c.MaxContentLength)
	}
	if !c.ReferenceMismatchAbort {
		t.Fatalf("expected REFERENCE_MISMATCH_ABORT to default true")
	}
	if c.SecondaryDataByUser {
		t.Fatalf("expected SECONDARY_DATA_BY_USER to default false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/data")
	t.Setenv("MAX_CONTENT_LENGTH", "2048")
	t.Setenv("REFERENCE_MISMATCH_ABORT", "false")
	t.Setenv("SECONDARY_DATA_BY_USER", "true")
	t.Setenv("API_URL_PREFIX", "/api")

	c := Load()
	if c.DataDir != "/data" {
		t.Fatalf("unexpected DataDir: %q", c.DataDir)
	}
	if c.MaxContentLength != 2048 {
		t.Fatalf("unexpected MaxContentLength: %d", c.MaxContentLength)
	}
	if c.ReferenceMismatchAbort {
		t.Fatalf("expected ReferenceMismatchAbort false")
	}
	if !c.SecondaryDataByUser {
		t.Fatalf("expected SecondaryDataByUser true")
	}
	if c.APIURLPrefix != "/api" {
		t.Fatalf("unexpected APIURLPrefix: %q", c.APIURLPrefix)
	}
}
