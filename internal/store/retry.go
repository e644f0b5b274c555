// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package store

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// isTransientStoreError classifies errors worth retrying: DuckDB's
// single-writer model surfaces contention as a conflict/busy error on the
// losing transaction rather than blocking it, which is exactly the
// "Transient" category of §7.
func isTransientStoreError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"busy", "locked", "conflict", "could not serialize"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// retryDo runs fn up to attempts times, sleeping backoff*2^i between
// attempts i and i+1, stopping early on success, context cancellation, or a
// non-transient error (isTransient returns false). It implements §7's
// "Transient: retry with exponential backoff, bounded attempts" for the
// batch-flush paths of AddObservations/AddRegions.
func retryDo(ctx context.Context, attempts int, backoff time.Duration, isTransient func(error) bool, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if isTransient != nil && !isTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		wait := backoff * time.Duration(uint(1)<<uint(i))
		log.WithError(err).Warnf("store: transient error, retrying in %s (attempt %d/%d)", wait, i+1, attempts)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
