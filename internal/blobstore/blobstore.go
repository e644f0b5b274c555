// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package blobstore is the content-addressed facade over uploaded and
// generated files (§4.4 C4). Objects are named by the blake2b-256 digest of
// their bytes exactly as stored (a gzipped upload is hashed compressed; no
// decompression happens here) and are immutable once written, mirroring the
// append-only collection model the teacher's arvados.go client talks to.
package blobstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"github.com/varda/varda/internal/varderr"
)

// Store persists blobs keyed by content digest and opens them again as
// restartable byte streams.
type Store interface {
	// Put consumes r fully, computes its digest, and persists it.
	// Calling Put twice with identical content is a no-op on the second
	// call: the same digest is returned both times (§3 DataSource:
	// "immutable once created").
	Put(ctx context.Context, r io.Reader) (digest string, size int64, err error)
	// Open returns a restartable reader for the blob named by digest.
	Open(ctx context.Context, digest string) (io.ReadCloser, error)
	// Exists reports whether a blob with the given digest is present.
	Exists(ctx context.Context, digest string) (bool, error)
}

// Digest computes the content digest Varda uses to name blobs, without
// storing anything: for the same bytes it returns the same value Put
// returns.
func Digest(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FilesystemStore is the primary Store implementation: a fan-out directory
// tree under a root, named by digest, written via write-to-temp-then-rename
// so a reader never observes a partially written blob.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore returns a Store rooted at dir (Varda's DATA_DIR).
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: mkdir %s: %w", dir, err)
	}
	return &FilesystemStore{root: dir}, nil
}

func (s *FilesystemStore) pathFor(digest string) (string, error) {
	if len(digest) < 4 {
		return "", varderr.New(varderr.BadRequest, "digest too short")
	}
	return filepath.Join(s.root, digest[:2], digest[2:4], digest), nil
}

func (s *FilesystemStore) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(s.root, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", 0, err
	}
	digest := hex.EncodeToString(h.Sum(nil))

	dst, err := s.pathFor(digest)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, fmt.Errorf("blobstore: mkdir: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}
	if _, err := os.Stat(dst); err == nil {
		// Content already stored under this digest: immutable, so
		// there is nothing left to do (§3 DataSource dedup note).
		return digest, n, nil
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", 0, fmt.Errorf("blobstore: rename into place: %w", err)
	}
	return digest, n, nil
}

func (s *FilesystemStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	path, err := s.pathFor(digest)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, varderr.New(varderr.NotFound, "blob "+digest)
	} else if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", digest, err)
	}
	return f, nil
}

func (s *FilesystemStore) Exists(ctx context.Context, digest string) (bool, error) {
	path, err := s.pathFor(digest)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// SecondaryStore wraps a primary Store with a second, read-only root
// consulted on Open miss (spec §6 SECONDARY_DATA_DIR / SECONDARY_DATA_BY_USER).
type SecondaryStore struct {
	Store
	secondaryRoot string
	byUser        bool
}

// NewSecondaryStore wraps primary with a read-only fallback rooted at
// secondaryRoot. When byUser is true, lookups are namespaced by owner under
// secondaryRoot/<owner>/<digest-fanout>.
func NewSecondaryStore(primary Store, secondaryRoot string, byUser bool) *SecondaryStore {
	return &SecondaryStore{Store: primary, secondaryRoot: secondaryRoot, byUser: byUser}
}

func (s *SecondaryStore) secondaryPath(owner, digest string) string {
	base := s.secondaryRoot
	if s.byUser && owner != "" {
		base = filepath.Join(base, owner)
	}
	if len(digest) < 4 {
		return filepath.Join(base, digest)
	}
	return filepath.Join(base, digest[:2], digest[2:4], digest)
}

// OpenFor behaves like Open, but falls back to the secondary root (scoped to
// owner, if SECONDARY_DATA_BY_USER) when the primary store doesn't have the
// blob.
func (s *SecondaryStore) OpenFor(ctx context.Context, owner, digest string) (io.ReadCloser, error) {
	rc, err := s.Store.Open(ctx, digest)
	if err == nil {
		return rc, nil
	}
	if !varderr.Is(err, varderr.NotFound) || s.secondaryRoot == "" {
		return nil, err
	}
	f, serr := os.Open(s.secondaryPath(owner, digest))
	if serr != nil {
		return nil, err
	}
	return f, nil
}
