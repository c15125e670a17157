// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/aio/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package aio is a cooperative, single-goroutine asynchronous concurrency
// core: an event loop driver, a single-assignment promise primitive, and a
// backpressured single-consumer async iterator layered on top of both.
//
// The loop multiplexes deferred callbacks, timers, stream readiness, and
// signal deliveries onto one goroutine. Watcher callbacks and promise
// continuations always run to completion without preemption; a continuation
// registered on a promise — settled or not — never runs in the tick that
// registered it.
package aio

import "os"

// WatcherID is the opaque identifier of a watcher registered with a Driver.
// Identifiers are unique within a driver for its whole lifetime; the id of a
// cancelled watcher is never reused.
type WatcherID string

// WatcherKind discriminates the event source a watcher is attached to.
type WatcherKind uint8

// Watcher kinds.
const (
	WatcherDefer WatcherKind = iota
	WatcherDelay
	WatcherRepeat
	WatcherReadable
	WatcherWritable
	WatcherSignal
)

// String returns the string representation of a WatcherKind.
func (k WatcherKind) String() string {
	switch k {
	case WatcherDefer:
		return "defer"
	case WatcherDelay:
		return "delay"
	case WatcherRepeat:
		return "repeat"
	case WatcherReadable:
		return "readable"
	case WatcherWritable:
		return "writable"
	case WatcherSignal:
		return "signal"
	}

	panic("you shall not pass")
}

// DeferCallback is invoked for defer watchers. The watcher id is already
// invalidated when the callback runs (defer watchers are one-shot). A non-nil
// returned error is routed to the driver's error handler.
type DeferCallback func(id WatcherID, datum any) error

// TimerCallback is invoked for delay and repeat watchers. For delay watchers
// the id is invalidated before entry; for repeat watchers it stays valid and
// may be used to cancel the repetition.
type TimerCallback func(id WatcherID, datum any) error

// IOCallback is invoked for readable and writable watchers with the stream
// whose readiness fired the watcher.
type IOCallback func(id WatcherID, stream Stream, datum any) error

// SignalCallback is invoked for signal watchers with the delivered signal.
type SignalCallback func(id WatcherID, sig os.Signal, datum any) error

// ErrorHandler receives every error escaping a watcher callback, either
// returned or recovered from a panic. A panic inside the handler itself is
// fatal to Driver.Run.
type ErrorHandler func(err error)

// WatcherCount holds the number of enabled and disabled watchers of one kind.
type WatcherCount struct {
	Enabled  int
	Disabled int
}

// ReferenceCount splits the currently enabled watchers into the ones keeping
// the loop alive and the ones that do not.
type ReferenceCount struct {
	Referenced   int
	Unreferenced int
}

// Info is a point-in-time snapshot of a driver's watcher population, exposed
// for diagnostics.
type Info struct {
	Defer      WatcherCount
	Delay      WatcherCount
	Repeat     WatcherCount
	OnReadable WatcherCount
	OnWritable WatcherCount
	OnSignal   WatcherCount

	EnabledWatchers ReferenceCount

	Running bool
}
