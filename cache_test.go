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

import "testing"

func TestInMemoryKV_SetGetDelete(t *testing.T) {
	c := NewInMemoryKV[Snowflake, string]()

	if _, ok := c.Get(1); ok {
		t.Fatal("expected a miss on an empty cache")
	}

	c.Set(1, "alice")
	val, ok := c.Get(1)
	if !ok || val.Unwrap() != "alice" {
		t.Fatalf("Get(1) = (%v, %v), want (alice, true)", val, ok)
	}

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}

	if !c.Delete(1) {
		t.Fatal("expected Delete(1) to report true")
	}
	if c.Delete(1) {
		t.Fatal("expected a second Delete(1) to report false")
	}
}

func TestInMemoryKV_GetOrCompute(t *testing.T) {
	c := NewInMemoryKV[string, int]()
	calls := 0
	compute := func() int { calls++; return 99 }

	first := c.GetOrCompute("k", compute)
	second := c.GetOrCompute("k", compute)

	if first != 99 || second != 99 {
		t.Fatalf("got (%d, %d), want (99, 99)", first, second)
	}
	if calls != 1 {
		t.Fatalf("compute called %d times, want 1", calls)
	}
}

func TestCacheManager_RegisterLookup(t *testing.T) {
	m := NewCacheManager(nil)
	users := NewInMemoryKV[Snowflake, string]()
	m.Register("user", users)

	got, ok := m.Lookup("user")
	if !ok {
		t.Fatal("expected user cache to be registered")
	}
	if got.(*InMemoryKV[Snowflake, string]) != users {
		t.Fatal("Lookup returned a different store than was registered")
	}

	if _, ok := m.Lookup("guild"); ok {
		t.Fatal("expected no registration under an unused name")
	}
}
