// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestPutOpenRoundtrip(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	digest, size, err := store.Put(ctx, strings.NewReader("hello genome"))
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len("hello genome")) {
		t.Fatalf("size = %d", size)
	}
	rc, err := store.Open(ctx, digest)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello genome" {
		t.Fatalf("got %q", got)
	}
}

func TestPutIsContentAddressed(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	d1, _, err := store.Put(ctx, strings.NewReader("same bytes"))
	if err != nil {
		t.Fatal(err)
	}
	d2, _, err := store.Put(ctx, strings.NewReader("same bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatalf("expected identical digest for identical content, got %s != %s", d1, d2)
	}
}

func TestOpenMissing(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.Open(context.Background(), "0000000000000000000000000000000000000000000000000000000000000000")
	if err == nil {
		t.Fatal("expected error for missing digest")
	}
}

func TestDigestMatchesPut(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	want, err := Digest(strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := store.Put(context.Background(), strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("Digest() = %s, Put() digest = %s", want, got)
	}
}
