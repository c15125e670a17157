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

import "os"

// Driver is the contract of an event loop. The default implementation is
// *Loop; tests may install any other implementation process-wide with
// SetDriver.
//
// A driver is confined to a single goroutine: Run blocks that goroutine, and
// every other method must be called either before Run or from inside a
// watcher callback or promise continuation.
type Driver interface {
	// Run dispatches watchers until Stop is called or no enabled referenced
	// watcher remains. It returns the fatal error of an unhandled callback
	// failure, or nil on a drained or stopped loop.
	Run() error
	// Stop makes Run return after the current tick.
	Stop()

	// Defer schedules cb to run once in the next tick. The watcher cannot
	// fire in the tick that created it.
	Defer(cb DeferCallback, datum any) WatcherID
	// Delay schedules cb to run once, ms milliseconds from now.
	Delay(ms int64, cb TimerCallback, datum any) (WatcherID, error)
	// Repeat schedules cb to run every ms milliseconds. Expirations missed
	// while the loop was blocked coalesce into a single dispatch, and the
	// next deadline is always dispatch time plus ms.
	Repeat(ms int64, cb TimerCallback, datum any) (WatcherID, error)
	// OnReadable invokes cb whenever stream has data to read.
	OnReadable(stream Stream, cb IOCallback, datum any) (WatcherID, error)
	// OnWritable invokes cb whenever stream accepts writes.
	OnWritable(stream Stream, cb IOCallback, datum any) (WatcherID, error)
	// OnSignal invokes cb for every delivery of sig.
	OnSignal(sig os.Signal, cb SignalCallback, datum any) (WatcherID, error)

	// Enable re-arms a disabled watcher; it activates at the next tick.
	// Fails with ErrInvalidWatcher on an unknown or cancelled id.
	Enable(id WatcherID) error
	// Disable takes effect immediately: the watcher no longer fires, even
	// later in the current tick. A no-op on unknown ids.
	Disable(id WatcherID)
	// Cancel disables the watcher, releases its OS resources, and
	// invalidates the id permanently. A no-op on unknown ids.
	Cancel(id WatcherID)
	// Reference makes the watcher count towards keeping Run alive (the
	// default). Fails with ErrInvalidWatcher on unknown or cancelled ids.
	Reference(id WatcherID) error
	// Unreference lets the watcher keep firing without extending the life
	// of Run. Fails with ErrInvalidWatcher on unknown or cancelled ids.
	Unreference(id WatcherID) error

	// SetErrorHandler installs the funnel for callback errors and returns
	// the previous handler. With a nil handler installed, any callback
	// error terminates Run.
	SetErrorHandler(handler ErrorHandler) ErrorHandler

	// SetState stores a loop-bound value under key.
	SetState(key string, value any)
	// GetState returns the loop-bound value under key, or nil.
	GetState(key string) any

	// Info returns a snapshot of the watcher population.
	Info() Info
}
