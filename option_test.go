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
	"encoding/json"
	"testing"
)

func TestOption_SomeNone(t *testing.T) {
	some := Some(5)
	if !some.IsSome() || some.Unwrap() != 5 {
		t.Fatalf("Some(5) = %+v", some)
	}

	none := None[int]()
	if !none.IsNone() {
		t.Fatal("expected None to report IsNone() true")
	}
	if none.UnwrapOr(7) != 7 {
		t.Fatalf("UnwrapOr(7) = %d, want 7", none.UnwrapOr(7))
	}
}

func TestOption_Unwrap_PanicsWhenEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Unwrap() on an empty Option to panic")
		}
	}()
	None[string]().Unwrap()
}

type fieldEnvelope struct {
	Name Field[string] `json:"name"`
}

func TestField_AbsentVsNullVsPresent(t *testing.T) {
	var absent Field[string]
	if !absent.IsAbsent() {
		t.Fatal("zero-value Field should be Absent")
	}

	null := Null[string]()
	if !null.IsNull() || null.IsAbsent() {
		t.Fatalf("Null() field: isNull=%v isAbsent=%v", null.IsNull(), null.IsAbsent())
	}

	present := Present("alice")
	if present.IsAbsent() || present.IsNull() || present.Value() != "alice" {
		t.Fatalf("Present(%q) field misreported its state", present.Value())
	}
}

func TestField_UnmarshalJSON(t *testing.T) {
	var env fieldEnvelope
	if err := json.Unmarshal([]byte(`{"name":"bob"}`), &env); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if env.Name.IsAbsent() || env.Name.Value() != "bob" {
		t.Fatalf("Name = %+v", env.Name)
	}

	var nullEnv fieldEnvelope
	if err := json.Unmarshal([]byte(`{"name":null}`), &nullEnv); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !nullEnv.Name.IsNull() {
		t.Fatal("expected a JSON null to decode to IsNull() true")
	}
}

func TestField_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(Present(42))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(out) != "42" {
		t.Fatalf("Marshal(Present(42)) = %s", out)
	}

	out, err = json.Marshal(Null[int]())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(out) != "null" {
		t.Fatalf("Marshal(Null()) = %s", out)
	}
}

func TestBuildJSONBody_DropsAbsentKeepsEverythingElse(t *testing.T) {
	body := BuildJSONBody(map[string]any{
		"guild_id": "1",
		"limit":    0,
		"query":    Field[string]{},
		"nonce":    Present("abc"),
		"since":    Null[int64](),
	})

	if _, ok := body["query"]; ok {
		t.Fatal("expected an Absent Field to be dropped from the body")
	}
	if len(body) != 4 {
		t.Fatalf("len(body) = %d, want 4 (guild_id, limit, nonce, since)", len(body))
	}
	if body["guild_id"] != "1" || body["limit"] != 0 {
		t.Fatalf("non-Field values were altered: %+v", body)
	}
	if _, ok := body["nonce"].(Field[string]); !ok {
		t.Fatalf("Present Field should pass through unchanged, got %T", body["nonce"])
	}
}
