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

import "encoding/json"

// Option is a first-party stand-in for the sibling "stdx/optional" package the
// original client imports but never vendors as a real, independently
// fetchable module; see DESIGN.md for why it is reimplemented locally instead
// of carried as a dependency.
type Option[T any] struct {
	value T
	some  bool
}

// Some wraps a present value.
func Some[T any](v T) Option[T] { return Option[T]{value: v, some: true} }

// None represents an absent value.
func None[T any]() Option[T] { return Option[T]{} }

// FromPair builds an Option from a map-lookup-style (value, ok) pair.
func FromPair[T any](v T, ok bool) Option[T] {
	if !ok {
		return None[T]()
	}
	return Some(v)
}

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool { return o.some }

// IsNone reports whether the value is absent.
func (o Option[T]) IsNone() bool { return !o.some }

// Unwrap returns the contained value, panicking if absent.
func (o Option[T]) Unwrap() T {
	if !o.some {
		panic("wireclient: Unwrap called on an empty Option")
	}
	return o.value
}

// UnwrapOr returns the contained value, or fallback if absent.
func (o Option[T]) UnwrapOr(fallback T) T {
	if !o.some {
		return fallback
	}
	return o.value
}

// Get mirrors the (value, ok) idiom for callers that prefer it over Unwrap.
func (o Option[T]) Get() (T, bool) { return o.value, o.some }

// Field is the "Absent | Null | Present(value)" sentinel the design notes
// call for: Discord (and any similar JSON API) needs to distinguish a field
// the caller never mentioned from one explicitly set to null. A plain
// pointer can express nil vs Present, but not Absent vs Null, so PATCH
// endpoints need this three-state type to avoid clobbering fields the caller
// didn't intend to touch.
type Field[T any] struct {
	value   T
	present bool
	isNull  bool
}

// Absent returns a field sentinel that is dropped entirely from the
// marshaled JSON object.
func Absent[T any]() Field[T] { return Field[T]{} }

// Null returns a field sentinel that marshals to a JSON null.
func Null[T any]() Field[T] { return Field[T]{present: true, isNull: true} }

// Present returns a field sentinel carrying v.
func Present[T any](v T) Field[T] { return Field[T]{value: v, present: true} }

// IsAbsent reports whether the field should be omitted from the payload.
func (f Field[T]) IsAbsent() bool { return !f.present }

// IsNull reports whether the field is present but explicitly null.
func (f Field[T]) IsNull() bool { return f.present && f.isNull }

// Value returns the carried value; zero value if absent or null.
func (f Field[T]) Value() T { return f.value }

// MarshalJSON implements json.Marshaler. Callers are expected to drop Absent
// fields themselves (via BuildJSONBody below) since encoding/json has no way
// to omit a struct field based on runtime state; this method only covers the
// Null/Present distinction for fields that do get serialized.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.isNull {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON implements json.Unmarshaler, decoding into Present unless the
// wire value was a literal null.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.present = true
	if string(data) == "null" {
		f.isNull = true
		return nil
	}
	return json.Unmarshal(data, &f.value)
}

// fieldAbsence lets BuildJSONBody recognize a Field[T] regardless of its
// type parameter, without reflection: Field[T]'s IsAbsent method has a value
// receiver, so every instantiation satisfies this interface.
type fieldAbsence interface {
	IsAbsent() bool
}

// BuildJSONBody assembles a JSON object from named values, dropping any
// entry whose value is a Field[T] reporting IsAbsent and passing every other
// value through unchanged. This is how the Absent|Null|Present policy
// actually gets applied to an outgoing payload: a struct tagged
// `json:",omitempty"` can't distinguish Null from Absent, so callers that
// need the distinction build the request body as a map through this helper
// instead (see Session.RequestGuildMembers and Session.PresenceUpdate).
func BuildJSONBody(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if fa, ok := v.(fieldAbsence); ok && fa.IsAbsent() {
			continue
		}
		out[k] = v
	}
	return out
}
