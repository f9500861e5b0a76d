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
	"net/http/httptest"
	"testing"
)

func TestRateLimitTransport_PassesThroughWithoutRLContext(t *testing.T) {
	upstream := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: http.NoBody, Header: http.Header{}}, nil
	})
	transport := NewRateLimitTransport(upstream, NewBucketTable(nil), nil)

	req := httptest.NewRequest("GET", "http://example.invalid/gateway", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestRateLimitTransport_ObservesHeadersOnEveryResponse(t *testing.T) {
	table := NewBucketTable(nil)
	upstream := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		h := http.Header{}
		h.Set(headerBucket, "b1")
		h.Set(headerLimit, "1")
		h.Set(headerRemaining, "0")
		h.Set(headerResetAfter, "0.01")
		return &http.Response{StatusCode: 200, Body: http.NoBody, Header: h}, nil
	})
	transport := NewRateLimitTransport(upstream, table, nil)

	route := NewRoute("GET", "/channels/%{channel_id}", map[string]string{"channel_id": "1"})
	req := httptest.NewRequest("GET", "http://example.invalid/channels/1", nil)
	req = req.WithContext(withRLContext(req.Context(), route.RateLimitKey(), "trace"))

	if _, err := transport.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}

	if _, ok := table.Lookup(route.RateLimitKey()); !ok {
		t.Fatal("expected the response headers to populate the bucket table")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
