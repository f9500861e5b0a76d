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

func TestEmitter_HandlersRunInRegistrationOrder(t *testing.T) {
	e := NewEmitter(nil)
	var order []int

	e.On("ready", func(any) { order = append(order, 1) })
	e.On("ready", func(any) { order = append(order, 2) })
	e.On("ready", func(any) { order = append(order, 3) })

	e.Emit("ready", nil)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestEmitter_PayloadDelivered(t *testing.T) {
	e := NewEmitter(nil)
	var got any
	e.On("message", func(p any) { got = p })

	e.Emit("message", "hello")
	if got != "hello" {
		t.Fatalf("got %v, want %q", got, "hello")
	}
}

func TestEmitter_PanicInOneHandlerDoesNotBlockOthers(t *testing.T) {
	e := NewEmitter(nil)
	secondRan := false

	e.On("evt", func(any) { panic("boom") })
	e.On("evt", func(any) { secondRan = true })

	e.Emit("evt", nil) // must not panic out of Emit
	if !secondRan {
		t.Fatal("expected the second handler to still run after the first panicked")
	}
}

func TestEmitter_UnregisteredEventIsNoop(t *testing.T) {
	e := NewEmitter(nil)
	e.Emit("nothing-subscribed", "payload") // must not panic
}
