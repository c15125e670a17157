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

package aio

import (
	"os"
	"time"
)

// Stream is a readable or writable endpoint identified by an OS file
// descriptor. *os.File satisfies it directly. The loop never owns a stream:
// callers close it themselves, after cancelling its watchers.
type Stream interface {
	Fd() uintptr
}

// IOMode selects the readiness direction of a Watch registration.
type IOMode uint8

// IO modes.
const (
	IORead IOMode = iota
	IOWrite
)

// Readiness is the outcome of one Multiplexer.Poll: the streams that became
// readable or writable, and the signals delivered since the previous poll.
type Readiness struct {
	Readable []Stream
	Writable []Stream
	Signals  []os.Signal
}

// Multiplexer is the OS-facing half of the loop: it blocks the loop
// goroutine until a watched stream is ready, a subscribed signal arrives, or
// the timeout elapses. The loop drives exactly one multiplexer and calls it
// from the loop goroutine only.
//
// The default implementation uses poll(2) on unix platforms; any
// implementation obeying this contract can be injected with
// WithMultiplexer, which is how driver tests stay hermetic.
type Multiplexer interface {
	// Watch registers interest in one readiness direction of a stream. The
	// loop calls it when the first watcher of a (descriptor, mode) pair
	// attaches, and again only after the matching Unwatch.
	Watch(stream Stream, mode IOMode) error
	// Unwatch drops a Watch registration.
	Unwatch(stream Stream, mode IOMode)

	// NotifySignal subscribes to deliveries of sig.
	NotifySignal(sig os.Signal) error
	// IgnoreSignal drops a NotifySignal subscription.
	IgnoreSignal(sig os.Signal)

	// Poll blocks up to timeout for readiness. A negative timeout blocks
	// indefinitely, zero polls without blocking. A poll interrupted before
	// anything happened returns an empty Readiness and a nil error.
	Poll(timeout time.Duration) (Readiness, error)

	// Close releases OS resources. The multiplexer is unusable afterwards.
	Close() error
}
