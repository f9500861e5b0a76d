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
	"context"
	"net/http"
	"sync"
	"time"
)

type rlContextKey struct{}

// rlContext carries the per-request coordination data the middleware needs:
// the rate-limit key derived from the Route, and a short trace id for
// logging and error attribution.
type rlContext struct {
	key   string
	trace string
}

// withRLContext attaches rlContext to a request context; used by the REST
// dispatcher (rest.go) before handing a request to the transport.
func withRLContext(ctx context.Context, key, trace string) context.Context {
	return context.WithValue(ctx, rlContextKey{}, rlContext{key: key, trace: trace})
}

func rlContextFrom(ctx context.Context) (rlContext, bool) {
	v, ok := ctx.Value(rlContextKey{}).(rlContext)
	return v, ok
}

// RateLimitTransport wraps an underlying http.RoundTripper with Discord-style
// per-bucket rate limiting. Requests that don't carry an
// rlContext (i.e. weren't built by RESTClient) pass straight through, so the
// transport can be reused standalone in tests.
//
// HTTP construction, retry and rate-limiting are deliberately kept separate
// concerns: rate-limit behavior (this file) is independently testable from
// request construction and retrying (rest.go).
type RateLimitTransport struct {
	Next    http.RoundTripper
	Table   *BucketTable
	Logger  Logger
	Metrics *Metrics

	queues sync.Map // rl_key -> *sync.Mutex
}

// NewRateLimitTransport wraps next with Discord-style bucket rate limiting.
func NewRateLimitTransport(next http.RoundTripper, table *BucketTable, logger Logger) *RateLimitTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = NewLogger()
	}
	return &RateLimitTransport{Next: next, Table: table, Logger: logger}
}

// WithMetrics attaches a Metrics bundle the transport reports bucket wait
// times through; passing nil (the default) disables reporting.
func (t *RateLimitTransport) WithMetrics(m *Metrics) *RateLimitTransport {
	t.Metrics = m
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rc, ok := rlContextFrom(req.Context())
	if !ok {
		return t.Next.RoundTrip(req)
	}

	queueIface, _ := t.queues.LoadOrStore(rc.key, &sync.Mutex{})
	queue := queueIface.(*sync.Mutex)

	queue.Lock()
	defer queue.Unlock()

	// Global barrier: every request waits behind the global bucket even
	// though it shares no route key with whoever is holding it.
	t.Table.GlobalBucket().WaitUntilAvailable()

	// Pre-emptive sleep: a known, exhausted bucket blocks before the call
	// ever reaches the wire.
	if b, ok := t.Table.Lookup(rc.key); ok && b.WillRateLimit() {
		t.Logger.WithField("trace", rc.trace).WithField("rl_key", rc.key).Debug("pre-emptive rate limit sleep")
		waitStart := time.Now()
		b.LockUntilReset()
		t.Metrics.ObserveBucketWait(time.Since(waitStart).Seconds())
	}

	resp, err := t.Next.RoundTrip(req)
	if err != nil {
		return nil, &TransportError{Op: "round-trip", Err: err}
	}

	t.Table.Observe(rc.key, resp.Header, rc.trace)

	if resp.StatusCode == http.StatusTooManyRequests {
		if resp.Header.Get(headerGlobal) == "true" || resp.Header.Get(headerScope) == "shared" {
			// Background holder: don't make this caller (who is about to
			// retry anyway) wait twice; just make sure concurrent callers on
			// other keys start blocking at the barrier immediately.
			go t.Table.GlobalLock(resp.Header, rc.trace)
		}
	}

	return resp, nil
}
