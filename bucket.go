/************************************************************************************
 *
 * wireclient, a Go core for a chat-platform REST + gateway client
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2025 Marouane Souiri
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package wireclient

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// GlobalBucketKey is the reserved bucket-table key the global lockout is
// installed under.
const GlobalBucketKey = "global"

// Response header names recognized by BucketTable.Observe. The
// teacher (requester.go) reads the same set, case-sensitively; http.Header
// lookups are already case-insensitive so we keep the canonical casing for
// readability only.
const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerBucket     = "X-RateLimit-Bucket"
	headerResetAfter = "X-RateLimit-Reset-After"
	headerRetryAfter = "Retry-After"
	headerGlobal     = "X-RateLimit-Global"
	headerScope      = "X-RateLimit-Scope"
)

// Bucket is the mutable per-route (or global) quota window. Its mutex is
// held for the duration of a pre-emptive sleep by
// LockUntilReset, and merely acquired-then-released as a barrier by
// WaitUntilAvailable.
type Bucket struct {
	mu        sync.Mutex
	limit     int
	remaining int
	resetAt   time.Time
}

// WaitUntilAvailable acquires and immediately releases the bucket mutex: a
// barrier that blocks the caller only while some other goroutine holds the
// mutex across a pre-emptive sleep.
func (b *Bucket) WaitUntilAvailable() {
	b.mu.Lock()
	b.mu.Unlock()
}

// LockUntilReset holds the mutex for the time remaining until resetAt, then
// releases it. A reset time at or before now waits zero (never underflows).
func (b *Bucket) LockUntilReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	wait := time.Until(b.resetAt)
	if wait > 0 {
		time.Sleep(wait)
	}
}

// snapshot returns the fields needed by WillRateLimit/logging without exposing
// the mutex to callers outside this file.
func (b *Bucket) snapshot() (limit, remaining int, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit, b.remaining, b.resetAt
}

// WillRateLimit reports whether a request against this bucket right now is
// predicted to block.
func (b *Bucket) WillRateLimit() bool {
	limit, remaining, resetAt := b.snapshot()
	_ = limit
	now := time.Now()
	return remaining-1 < 0 && !now.After(resetAt)
}

// ResetAt returns the bucket's current reset instant.
func (b *Bucket) ResetAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resetAt
}

// BucketTable maps route keys and bucket ids to the Bucket objects that
// hold their quota state. Both maps always bind to *Bucket, never to a raw
// bucket id string; a separate
// id index tracks which id a route key currently redirects to, so a single
// canonical object is ever mutated per bucket id.
type BucketTable struct {
	mu      sync.RWMutex
	byKey   map[string]*Bucket // route_key -> *Bucket (fallback, pre-id)
	byID    map[string]*Bucket // bucket_id -> *Bucket (canonical once known)
	keyToID map[string]string  // route_key -> bucket_id, once observed
	logger  Logger
}

// NewBucketTable constructs an empty table.
func NewBucketTable(logger Logger) *BucketTable {
	if logger == nil {
		logger = NewLogger()
	}
	return &BucketTable{
		byKey:   make(map[string]*Bucket),
		byID:    make(map[string]*Bucket),
		keyToID: make(map[string]string),
		logger:  logger,
	}
}

// Lookup resolves route_key -> bucket_id -> bucket if an id is already
// known, otherwise falls back to the route_key-keyed bucket. Returns
// (nil, false) if the route has never been observed.
func (t *BucketTable) Lookup(routeKey string) (*Bucket, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id, ok := t.keyToID[routeKey]; ok {
		if b, ok := t.byID[id]; ok {
			return b, true
		}
	}
	if b, ok := t.byKey[routeKey]; ok {
		return b, true
	}
	return nil, false
}

// GlobalBucket returns (creating if necessary) the reserved global bucket.
func (t *BucketTable) GlobalBucket() *Bucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.byID[GlobalBucketKey]
	if !ok {
		b = &Bucket{limit: 1, remaining: 1}
		t.byID[GlobalBucketKey] = b
	}
	return b
}

// Observe idempotently updates bucket state from response headers (spec
// §4.2). When limit/remaining/reset-after/bucket are all present, the
// bucket is (re)bound under its bucket id and the route key is redirected
// to that id. When only retry-after is present (a bare 429 with no bucket
// id yet assigned), a limit=0/remaining=0 bucket is installed whose reset
// is now + retry_after_ms/1000. Otherwise state is left untouched.
func (t *BucketTable) Observe(routeKey string, headers http.Header, trace string) {
	bucketID := headers.Get(headerBucket)
	limitStr := headers.Get(headerLimit)
	remainingStr := headers.Get(headerRemaining)
	resetAfterStr := headers.Get(headerResetAfter)
	retryAfterStr := headers.Get(headerRetryAfter)

	switch {
	case bucketID != "" && limitStr != "" && remainingStr != "" && resetAfterStr != "":
		limit, errL := strconv.Atoi(limitStr)
		remaining, errR := strconv.Atoi(remainingStr)
		resetAfter, errT := strconv.ParseFloat(resetAfterStr, 64)
		if errL != nil || errR != nil || errT != nil {
			t.logger.WithField("trace", trace).Debug("bucket headers present but unparseable")
			return
		}
		resetAt := time.Now().Add(time.Duration(resetAfter * float64(time.Second)))

		t.mu.Lock()
		b, ok := t.byID[bucketID]
		if !ok {
			b = &Bucket{}
			t.byID[bucketID] = b
		}
		t.keyToID[routeKey] = bucketID
		t.mu.Unlock()

		b.mu.Lock()
		b.limit, b.remaining, b.resetAt = limit, remaining, resetAt
		b.mu.Unlock()

	case retryAfterStr != "":
		retryMS, err := strconv.ParseFloat(retryAfterStr, 64)
		if err != nil {
			t.logger.WithField("trace", trace).Debug("retry-after present but unparseable")
			return
		}
		resetAt := time.Now().Add(time.Duration(retryMS) * time.Millisecond)

		t.mu.Lock()
		b, ok := t.byKey[routeKey]
		if !ok {
			b = &Bucket{}
			t.byKey[routeKey] = b
		}
		t.mu.Unlock()

		b.mu.Lock()
		b.limit, b.remaining, b.resetAt = 0, 0, resetAt
		b.mu.Unlock()

	default:
		t.logger.WithField("trace", trace).Debug("no rate-limit headers to observe")
	}
}

// GlobalLock installs/updates the reserved global bucket from a 429
// response that signals a global (or Discord's "shared"-scope, see
// SPEC_FULL.md §4) lockout, and blocks the caller for the remaining reset
// window.
func (t *BucketTable) GlobalLock(headers http.Header, trace string) {
	isGlobal := headers.Get(headerGlobal) == "true"
	isShared := headers.Get(headerScope) == "shared"
	if !isGlobal && !isShared {
		return
	}
	retryAfterStr := headers.Get(headerRetryAfter)
	retryMS, err := strconv.ParseFloat(retryAfterStr, 64)
	if err != nil {
		t.logger.WithField("trace", trace).Debug("global lock signalled but retry-after unparseable")
		return
	}
	resetAt := time.Now().Add(time.Duration(retryMS) * time.Millisecond)

	g := t.GlobalBucket()
	g.mu.Lock()
	g.limit, g.remaining, g.resetAt = 1, 0, resetAt
	g.mu.Unlock()

	t.logger.WithField("trace", trace).WithField("reset_at", resetAt).Warn("global rate limit engaged")
	g.LockUntilReset()
}
