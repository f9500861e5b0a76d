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

import "sync"

// EventHandler receives one dispatched payload. It should not block for
// long: handlers run synchronously, in registration order, on the caller
// of Emit.
type EventHandler func(payload any)

// Emitter is a generic named-event bus: Session dispatches decoded gateway
// events through one, and callers subscribe by event name without the
// emitter itself knowing anything about gateway semantics — a single
// reusable primitive in place of per-event-type handler wiring.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   Logger
}

// NewEmitter constructs an empty Emitter.
func NewEmitter(logger Logger) *Emitter {
	if logger == nil {
		logger = NewLogger()
	}
	return &Emitter{handlers: make(map[string][]EventHandler), logger: logger}
}

// On registers handler to run whenever name is emitted. Multiple handlers
// for the same name all run, in the order they were registered.
func (e *Emitter) On(name string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = append(e.handlers[name], handler)
}

// Emit synchronously invokes every handler registered for name, in
// registration order. A handler that panics is recovered and logged so one
// misbehaving subscriber can't take down the dispatch loop or block
// handlers registered after it.
func (e *Emitter) Emit(name string, payload any) {
	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers[name]...)
	e.mu.RUnlock()

	for _, h := range handlers {
		e.invoke(name, h, payload)
	}
}

func (e *Emitter) invoke(name string, h EventHandler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("event", name).WithField("panic", r).Error("event handler panicked")
		}
	}()
	h(payload)
}
